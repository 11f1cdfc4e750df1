package usecase

import (
	"testing"

	"github.com/totegamma/bookshelf/internal/domain"
)

const (
	authorAddr = "0x360D70542Fe578A4d614179D71048599C33d3007"
	buyerAddr  = "0x00000000000000000000000000000000000000b1"
)

func TestIsAuthor(t *testing.T) {
	cases := []struct {
		active, author string
		want           bool
	}{
		{"", authorAddr, false},
		{authorAddr, "", false},
		{"", "", false},
		{authorAddr, authorAddr, true},
		{"0x360d70542fe578a4d614179d71048599c33d3007", authorAddr, true},
		{buyerAddr, authorAddr, false},
	}

	for _, c := range cases {
		for i := 0; i < 2; i++ {
			if got := IsAuthor(c.active, c.author); got != c.want {
				t.Fatalf("IsAuthor(%q, %q) = %v, want %v", c.active, c.author, got, c.want)
			}
		}
	}
}

func TestCanPurchaseBranches(t *testing.T) {
	cases := []struct {
		name   string
		status domain.BookStatus
		active string
		want   bool
	}{
		{"available buyer", domain.StatusAvailable, buyerAddr, true},
		{"unavailable buyer", domain.StatusUnavailable, buyerAddr, false},
		{"available no account", domain.StatusAvailable, "", false},
		{"available author", domain.StatusAvailable, authorAddr, false},
		{"unavailable author", domain.StatusUnavailable, authorAddr, false},
		{"unavailable no account", domain.StatusUnavailable, "", false},
	}

	for _, c := range cases {
		if got := CanPurchase(c.status, c.active, authorAddr); got != c.want {
			t.Fatalf("%s: expected %v got %v", c.name, c.want, got)
		}
	}
}

func TestSelectViewFollowsAccountSwitch(t *testing.T) {
	if v := SelectView("", authorAddr); v != domain.ViewDisconnected {
		t.Fatalf("expected disconnected got %s", v)
	}
	if v := SelectView(authorAddr, authorAddr); v != domain.ViewAuthor {
		t.Fatalf("expected author got %s", v)
	}
	if v := SelectView(buyerAddr, authorAddr); v != domain.ViewBuyer {
		t.Fatalf("expected buyer got %s", v)
	}
	if v := SelectView(authorAddr, ""); v != domain.ViewBuyer {
		t.Fatalf("expected buyer while author unknown, got %s", v)
	}
}

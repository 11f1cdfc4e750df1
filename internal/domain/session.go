package domain

import (
	"fmt"
	"time"
)

// View is the top-level screen selected for the active account.
type View int

const (
	ViewDisconnected View = iota
	ViewBuyer
	ViewAuthor
)

func (v View) String() string {
	switch v {
	case ViewAuthor:
		return "author"
	case ViewBuyer:
		return "buyer"
	default:
		return "disconnected"
	}
}

func (v View) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *View) UnmarshalText(text []byte) error {
	switch string(text) {
	case "author":
		*v = ViewAuthor
	case "buyer":
		*v = ViewBuyer
	case "disconnected":
		*v = ViewDisconnected
	default:
		return fmt.Errorf("unknown view %q", text)
	}
	return nil
}

type SessionState struct {
	ActiveAccount string `json:"activeAccount,omitempty"`
	AuthorAddress string `json:"authorAddress,omitempty"`
	Contract      string `json:"contract"`
	IsAuthor      bool   `json:"isAuthor"`
	View          View   `json:"view"`
}

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a user-visible message.
type Notice struct {
	Level         NoticeLevel `json:"level"`
	Message       string      `json:"message"`
	TransactionID string      `json:"transactionId,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

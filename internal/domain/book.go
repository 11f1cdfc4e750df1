package domain

import (
	"fmt"
	"time"
)

type BookStatus uint8

const (
	StatusUnavailable BookStatus = 0
	StatusAvailable   BookStatus = 1
)

const SelectionUnavailable = "Unavailable"

// StatusFromSelection maps the publish form's availability selector to the stored code.
// Only the literal "Unavailable" maps to StatusUnavailable; every other value, the empty
// default included, maps to StatusAvailable.
func StatusFromSelection(selection string) BookStatus {
	if selection == SelectionUnavailable {
		return StatusUnavailable
	}
	return StatusAvailable
}

func (s BookStatus) String() string {
	if s == StatusAvailable {
		return "Available"
	}
	return "Not Available"
}

func (s BookStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *BookStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Available", "1":
		*s = StatusAvailable
	case "Not Available", "Unavailable", "0":
		*s = StatusUnavailable
	default:
		return fmt.Errorf("unknown book status %q", text)
	}
	return nil
}

// BookRecord is a decoded book. ID is assigned by the registry and starts at 1.
type BookRecord struct {
	ID              uint64     `json:"id"`
	Title           string     `json:"title"`
	AuthorName      string     `json:"authorName"`
	PublishedDate   string     `json:"publishedDate"`
	Content         string     `json:"content"`
	Price           Amount     `json:"price"`
	CopiesRemaining uint64     `json:"copiesRemaining"`
	Status          BookStatus `json:"status"`
}

type DisplayBookRecord struct {
	BookRecord
	CanBuy       bool     `json:"canBuy"`
	Degraded     bool     `json:"degraded,omitempty"`
	DecodeErrors []string `json:"decodeErrors,omitempty"`
}

// ListingKey is the set of inputs a listing depends on.
type ListingKey struct {
	Confirmations uint64 `json:"confirmations"`
	Account       string `json:"account"`
	Author        string `json:"author"`
}

type Listing struct {
	Seq       uint64              `json:"seq"`
	Key       ListingKey          `json:"key"`
	Books     []DisplayBookRecord `json:"books"`
	Hash      string              `json:"hash"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

func (l Listing) Lookup(bookID uint64) (DisplayBookRecord, bool) {
	for _, b := range l.Books {
		if b.ID == bookID {
			return b, true
		}
	}
	return DisplayBookRecord{}, false
}

package bookshelf

import (
	"math/big"
	"time"
)

const (
	EventTypeListing     = "listing"
	EventTypeTransaction = "transaction"
	EventTypeNotice      = "notice"
	EventTypeSession     = "session"
)

// RawBookRecord is a book as returned by the registry contract.
// Byte fields carry the 0x-prefixed hex form.
type RawBookRecord struct {
	Title           string   `json:"title"`
	AuthorName      string   `json:"author_name"`
	PublishedDate   string   `json:"published_date"`
	Content         string   `json:"content"`
	Price           *big.Int `json:"price"`
	Status          uint8    `json:"status"`
	PurchaseCounter uint64   `json:"purchase_counter"`
}

// PublishRequest holds the validated arguments of a publishBook call.
type PublishRequest struct {
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	AuthorName      string   `json:"authorName"`
	PublishedDate   string   `json:"publishedDate"`
	PurchaseCounter uint64   `json:"purchaseCounter"`
	Price           *big.Int `json:"price"`
	Status          uint8    `json:"status"`
}

type Receipt struct {
	From            string `json:"from"`
	To              string `json:"to"`
	TransactionHash string `json:"transactionHash"`
	BlockHash       string `json:"blockHash"`
	BlockNumber     uint64 `json:"blockNumber"`
}

type Event struct {
	Channel   string    `json:"channel"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

type WellKnownBookshelf struct {
	Version   string            `json:"version"`
	ChainID   string            `json:"chainID"`
	Contract  string            `json:"contract"`
	Author    string            `json:"author,omitempty"`
	Endpoints map[string]string `json:"endpoints"`
}

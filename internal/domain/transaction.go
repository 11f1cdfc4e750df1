package domain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/totegamma/bookshelf"
)

type TxStatus int

const (
	TxPending TxStatus = iota
	TxSuccess
	TxFailure
)

func (s TxStatus) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxSuccess:
		return "success"
	case TxFailure:
		return "failure"
	default:
		return "unknown"
	}
}

func (s TxStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TxStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pending":
		*s = TxPending
	case "success":
		*s = TxSuccess
	case "failure":
		*s = TxFailure
	default:
		return fmt.Errorf("unknown transaction status %q", text)
	}
	return nil
}

const (
	TxKindPublish  = "publish"
	TxKindPurchase = "purchase"
)

// TransactionHandle tracks one submission. It starts pending and settles exactly once.
type TransactionHandle struct {
	ID        string
	Kind      string
	Account   string
	BookID    uint64
	CreatedAt time.Time

	mu          sync.Mutex
	status      TxStatus
	receipt     bookshelf.Receipt
	hash        string
	err         error
	done        chan struct{}
	subscribers []func(*TransactionHandle)
}

func NewTransactionHandle(kind, account string) *TransactionHandle {
	return &TransactionHandle{
		ID:        uuid.NewString(),
		Kind:      kind,
		Account:   account,
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// FailedTransaction returns a handle that is already settled with err.
func FailedTransaction(kind, account string, err error) *TransactionHandle {
	h := NewTransactionHandle(kind, account)
	h.Fail(err)
	return h
}

// SetHash records the broadcast transaction hash while still pending.
func (h *TransactionHandle) SetHash(hash string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hash = hash
}

func (h *TransactionHandle) Resolve(receipt bookshelf.Receipt) bool {
	return h.settle(TxSuccess, receipt, nil)
}

func (h *TransactionHandle) Fail(err error) bool {
	return h.settle(TxFailure, bookshelf.Receipt{}, err)
}

func (h *TransactionHandle) settle(status TxStatus, receipt bookshelf.Receipt, err error) bool {
	h.mu.Lock()
	if h.status != TxPending {
		h.mu.Unlock()
		return false
	}
	h.status = status
	h.receipt = receipt
	if receipt.TransactionHash != "" {
		h.hash = receipt.TransactionHash
	}
	h.err = err
	subscribers := h.subscribers
	h.subscribers = nil
	close(h.done)
	h.mu.Unlock()

	for _, fn := range subscribers {
		fn(h)
	}
	return true
}

// Subscribe registers fn to run once the handle settles. If it already has, fn runs now.
func (h *TransactionHandle) Subscribe(fn func(*TransactionHandle)) {
	h.mu.Lock()
	if h.status == TxPending {
		h.subscribers = append(h.subscribers, fn)
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	fn(h)
}

func (h *TransactionHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle settles or ctx ends, returning the failure if any.
func (h *TransactionHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *TransactionHandle) Status() TxStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *TransactionHandle) Receipt() (bookshelf.Receipt, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.receipt, h.status == TxSuccess
}

func (h *TransactionHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

type TransactionSummary struct {
	ID        string             `json:"id"`
	Kind      string             `json:"kind"`
	Account   string             `json:"account"`
	BookID    uint64             `json:"bookId,omitempty"`
	Status    TxStatus           `json:"status"`
	Hash      string             `json:"hash,omitempty"`
	Receipt   *bookshelf.Receipt `json:"receipt,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

func (h *TransactionHandle) Summary() TransactionSummary {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := TransactionSummary{
		ID:        h.ID,
		Kind:      h.Kind,
		Account:   h.Account,
		BookID:    h.BookID,
		Status:    h.status,
		Hash:      h.hash,
		CreatedAt: h.CreatedAt,
	}
	if h.status == TxSuccess {
		receipt := h.receipt
		s.Receipt = &receipt
	}
	if h.err != nil {
		s.Error = h.err.Error()
	}
	return s
}

// TransactionRecord is a settled transaction kept in history.
type TransactionRecord struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	Account         string    `json:"account"`
	BookID          uint64    `json:"bookId,omitempty"`
	Status          string    `json:"status"`
	From            string    `json:"from,omitempty"`
	To              string    `json:"to,omitempty"`
	TransactionHash string    `json:"transactionHash,omitempty"`
	BlockHash       string    `json:"blockHash,omitempty"`
	BlockNumber     uint64    `json:"blockNumber,omitempty"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (h *TransactionHandle) Record() TransactionRecord {
	s := h.Summary()
	r := TransactionRecord{
		ID:              s.ID,
		Kind:            s.Kind,
		Account:         s.Account,
		BookID:          s.BookID,
		Status:          s.Status.String(),
		TransactionHash: s.Hash,
		Error:           s.Error,
		CreatedAt:       s.CreatedAt,
	}
	if s.Receipt != nil {
		r.From = s.Receipt.From
		r.To = s.Receipt.To
		r.BlockHash = s.Receipt.BlockHash
		r.BlockNumber = s.Receipt.BlockNumber
	}
	return r
}

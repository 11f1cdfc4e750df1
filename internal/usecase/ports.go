package usecase

import (
	"context"
	"math/big"

	"github.com/totegamma/bookshelf"
	"github.com/totegamma/bookshelf/internal/domain"
)

// LedgerReader reads registry state.
type LedgerReader interface {
	ReadAuthor(ctx context.Context) (string, error)
	ReadAuthorBooks(ctx context.Context) ([]bookshelf.RawBookRecord, error)
	ReadPurchasedBook(ctx context.Context, account string, bookID uint64) (bookshelf.RawBookRecord, error)
}

// LedgerWriter submits transactions. A returned handle is pending; an error means
// the transaction was never dispatched.
type LedgerWriter interface {
	SubmitPublish(ctx context.Context, account string, req bookshelf.PublishRequest) (*domain.TransactionHandle, error)
	SubmitPurchase(ctx context.Context, account string, bookID uint64, payment *big.Int) (*domain.TransactionHandle, error)
}

// LedgerClient is the narrow interface to the external Ledger Service.
type LedgerClient interface {
	LedgerReader
	LedgerWriter
}

// PurchasedBookCache keeps purchased book reads per account.
type PurchasedBookCache interface {
	Get(ctx context.Context, account string, bookID uint64) (bookshelf.RawBookRecord, bool)
	Set(ctx context.Context, account string, bookID uint64, record bookshelf.RawBookRecord) error
}

// TransactionRepository stores settled transactions.
type TransactionRepository interface {
	Save(ctx context.Context, record domain.TransactionRecord) error
	List(ctx context.Context, account string, limit int) ([]domain.TransactionRecord, error)
	Get(ctx context.Context, id string) (domain.TransactionRecord, error)
}

// Notifier fans events out to realtime listeners.
type Notifier interface {
	Publish(ctx context.Context, channel string, event bookshelf.Event) error
}

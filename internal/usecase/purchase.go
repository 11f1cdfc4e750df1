package usecase

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/bookshelf/internal/domain"
)

// BookLookup resolves a book id against the listing currently shown.
type BookLookup interface {
	Lookup(bookID uint64) (domain.DisplayBookRecord, bool)
}

type PurchaseInput struct {
	Account string
	Author  string
	BookID  uint64
}

type PurchaseUsecase struct {
	ledger  LedgerWriter
	books   BookLookup
	timeout time.Duration
}

func NewPurchaseUsecase(ledger LedgerWriter, books BookLookup, timeout time.Duration) *PurchaseUsecase {
	return &PurchaseUsecase{
		ledger:  ledger,
		books:   books,
		timeout: timeout,
	}
}

// Submit buys one copy of a listed book, paying its listed price in the smallest unit.
// Every precondition is checked before the ledger is contacted.
func (uc *PurchaseUsecase) Submit(ctx context.Context, in PurchaseInput) (*domain.TransactionHandle, error) {
	ctx, span := tracer.Start(ctx, "Purchase.Usecase.Submit")
	defer span.End()
	span.SetAttributes(attribute.Int64("bookID", int64(in.BookID)))

	if in.Account == "" {
		return nil, domain.AuthorizationError{Action: "purchase", Reason: domain.NoticeConnectWallet}
	}

	book, ok := uc.books.Lookup(in.BookID)
	if !ok {
		return nil, domain.ValidationError{Field: "book", Reason: "unknown book id"}
	}
	if book.Status != domain.StatusAvailable {
		return nil, domain.ValidationError{Field: "book", Reason: "book is not available"}
	}
	if IsAuthor(in.Account, in.Author) {
		return nil, domain.AuthorizationError{Action: "purchase", Reason: "the author cannot buy their own book"}
	}

	payment := book.Price.SmallestUnit()
	handle, err := uc.ledger.SubmitPurchase(ctx, in.Account, in.BookID, payment)
	if err != nil {
		span.RecordError(errors.Wrap(err, "Purchase.Usecase.Submit: SubmitPurchase failed"))
		return nil, domain.TransactionError{Op: "purchase", Err: err}
	}

	watchConfirmation(handle, uc.timeout)
	return handle, nil
}

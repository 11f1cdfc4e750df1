package usecase

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/totegamma/bookshelf/internal/domain"
)

type PurchasedBookUsecase struct {
	ledger LedgerReader
	cache  PurchasedBookCache
}

func NewPurchasedBookUsecase(ledger LedgerReader, cache PurchasedBookCache) *PurchasedBookUsecase {
	return &PurchasedBookUsecase{
		ledger: ledger,
		cache:  cache,
	}
}

// Get reads a book's full record as account. The ledger decides whether the account
// may see it; a denial surfaces as a TransactionError.
func (uc *PurchasedBookUsecase) Get(ctx context.Context, account string, bookID uint64) (domain.BookRecord, error) {
	ctx, span := tracer.Start(ctx, "PurchasedBook.Usecase.Get")
	defer span.End()

	if account == "" {
		return domain.BookRecord{}, domain.AuthorizationError{Action: "read book", Reason: domain.NoticeConnectWallet}
	}
	if bookID == 0 {
		return domain.BookRecord{}, domain.ValidationError{Field: "book", Reason: "unknown book id"}
	}

	if uc.cache != nil {
		if raw, ok := uc.cache.Get(ctx, account, bookID); ok {
			return DecodeRecord(bookID, raw, account, "").BookRecord, nil
		}
	}

	raw, err := uc.ledger.ReadPurchasedBook(ctx, account, bookID)
	if err != nil {
		span.RecordError(errors.Wrap(err, "PurchasedBook.Usecase.Get: ReadPurchasedBook failed"))
		return domain.BookRecord{}, domain.TransactionError{Op: "read purchased book", Err: err}
	}

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, account, bookID, raw); err != nil {
			slog.WarnContext(ctx, "failed to cache purchased book",
				slog.String("error", err.Error()),
				slog.String("module", "usecase"),
			)
		}
	}

	return DecodeRecord(bookID, raw, account, "").BookRecord, nil
}

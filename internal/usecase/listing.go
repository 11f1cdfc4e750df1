package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/bookshelf"
	"github.com/totegamma/bookshelf/codec"
	"github.com/totegamma/bookshelf/internal/domain"
)

var tracer = otel.Tracer("usecase")

// BuildListing decodes raw records in ledger order. The record at position i gets id i+1.
// The returned sequence can be ranged over any number of times.
func BuildListing(raw []bookshelf.RawBookRecord, activeAccount, authorAddress string) iter.Seq[domain.DisplayBookRecord] {
	return func(yield func(domain.DisplayBookRecord) bool) {
		for i, r := range raw {
			if !yield(DecodeRecord(uint64(i+1), r, activeAccount, authorAddress)) {
				return
			}
		}
	}
}

// DecodeRecord turns one raw record into its display form. A field that fails to decode
// is replaced by the placeholder and the record is marked degraded.
func DecodeRecord(id uint64, raw bookshelf.RawBookRecord, activeAccount, authorAddress string) domain.DisplayBookRecord {
	var decodeErrors []string
	field := func(name, payload string) string {
		text, err := codec.Decode(payload)
		if err != nil {
			decodeErrors = append(decodeErrors, fmt.Sprintf("%s: %v", name, err))
			return domain.PlaceholderText
		}
		return text
	}

	status := domain.BookStatus(raw.Status)
	book := domain.BookRecord{
		ID:              id,
		Title:           field("title", raw.Title),
		AuthorName:      field("author_name", raw.AuthorName),
		PublishedDate:   field("published_date", raw.PublishedDate),
		Content:         field("content", raw.Content),
		Price:           domain.AmountFromInt(raw.Price),
		CopiesRemaining: raw.PurchaseCounter,
		Status:          status,
	}

	return domain.DisplayBookRecord{
		BookRecord:   book,
		CanBuy:       CanPurchase(status, activeAccount, authorAddress),
		Degraded:     len(decodeErrors) > 0,
		DecodeErrors: decodeErrors,
	}
}

func listingHash(books []domain.DisplayBookRecord) string {
	b, err := json.Marshal(books)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", xxh3.Hash(b))
}

// ListingUsecase keeps the latest listing. Every refresh is tagged with a sequence
// number and only the most recently issued one may become visible.
type ListingUsecase struct {
	ledger LedgerReader
	issued atomic.Uint64

	mu       sync.Mutex
	current  domain.Listing
	disposed bool
}

func NewListingUsecase(ledger LedgerReader) *ListingUsecase {
	return &ListingUsecase{ledger: ledger}
}

// Begin issues the sequence number of the next refresh. It must be called when the
// refresh is requested, before any asynchronous work starts, so that issue order is
// request order.
func (uc *ListingUsecase) Begin() uint64 {
	return uc.issued.Add(1)
}

// Refresh re-reads every book and rebuilds the listing for key under seq, obtained from
// Begin. A read whose seq is no longer the latest issued, or that lands after Close,
// returns domain.ErrStaleRead and leaves the visible listing untouched.
func (uc *ListingUsecase) Refresh(ctx context.Context, seq uint64, key domain.ListingKey) (domain.Listing, error) {
	ctx, span := tracer.Start(ctx, "Listing.Usecase.Refresh")
	defer span.End()

	span.SetAttributes(attribute.Int64("seq", int64(seq)))
	if uc.superseded(seq) {
		return domain.Listing{}, domain.StaleReadDiscarded{Seq: seq}
	}

	raw, err := uc.ledger.ReadAuthorBooks(ctx)
	if err != nil {
		if uc.superseded(seq) {
			return domain.Listing{}, domain.StaleReadDiscarded{Seq: seq}
		}
		span.RecordError(errors.Wrap(err, "Listing.Usecase.Refresh: ReadAuthorBooks failed"))
		return domain.Listing{}, domain.TransactionError{Op: "read books", Err: err}
	}

	books := slices.Collect(BuildListing(raw, key.Account, key.Author))
	if books == nil {
		books = []domain.DisplayBookRecord{}
	}

	listing := domain.Listing{
		Seq:       seq,
		Key:       key,
		Books:     books,
		Hash:      listingHash(books),
		UpdatedAt: time.Now(),
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.disposed || seq != uc.issued.Load() {
		return domain.Listing{}, domain.StaleReadDiscarded{Seq: seq}
	}
	uc.current = listing
	return listing, nil
}

func (uc *ListingUsecase) superseded(seq uint64) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.disposed || seq != uc.issued.Load()
}

func (uc *ListingUsecase) Current() domain.Listing {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.current
}

func (uc *ListingUsecase) Lookup(bookID uint64) (domain.DisplayBookRecord, bool) {
	return uc.Current().Lookup(bookID)
}

// Close stops any in-flight refresh from publishing its result.
func (uc *ListingUsecase) Close() {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.disposed = true
}

package usecase

import (
	"context"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/bookshelf"
	"github.com/totegamma/bookshelf/internal/domain"
)

// PublishForm is the raw, user-editable publish input.
type PublishForm struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	AuthorName    string `json:"authorName"`
	PublishedDate string `json:"publishedDate"`
	Price         string `json:"price"`
	Copies        string `json:"copies"`
	Status        string `json:"status"`
}

func DefaultPublishForm() PublishForm {
	return PublishForm{
		Price:  "0",
		Copies: strconv.Itoa(domain.DefaultCopies),
	}
}

// ValidateDraft converts a form into publishBook arguments.
func ValidateDraft(form PublishForm) (bookshelf.PublishRequest, error) {
	required := []struct{ field, value string }{
		{"title", form.Title},
		{"author name", form.AuthorName},
		{"published date", form.PublishedDate},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return bookshelf.PublishRequest{}, domain.ValidationError{Field: r.field, Reason: "must not be empty"}
		}
	}

	priceText := strings.TrimSpace(form.Price)
	if priceText == "" {
		priceText = "0"
	}
	price, ok := new(big.Int).SetString(priceText, 10)
	if !ok {
		return bookshelf.PublishRequest{}, domain.ValidationError{Field: "price", Reason: "must be a whole number"}
	}
	if price.Sign() < 0 {
		return bookshelf.PublishRequest{}, domain.ValidationError{Field: "price", Reason: "must not be negative"}
	}

	copies := uint64(domain.DefaultCopies)
	if c := strings.TrimSpace(form.Copies); c != "" {
		n, err := strconv.ParseUint(c, 10, 64)
		if err != nil {
			return bookshelf.PublishRequest{}, domain.ValidationError{Field: "copies", Reason: "must be a non-negative whole number"}
		}
		copies = n
	}

	return bookshelf.PublishRequest{
		Title:           form.Title,
		Content:         form.Content,
		AuthorName:      form.AuthorName,
		PublishedDate:   form.PublishedDate,
		PurchaseCounter: copies,
		Price:           price,
		Status:          uint8(domain.StatusFromSelection(form.Status)),
	}, nil
}

type PublishUsecase struct {
	ledger  LedgerWriter
	timeout time.Duration

	mu   sync.Mutex
	form PublishForm
	last *domain.TransactionHandle
}

func NewPublishUsecase(ledger LedgerWriter, timeout time.Duration) *PublishUsecase {
	return &PublishUsecase{
		ledger:  ledger,
		timeout: timeout,
		form:    DefaultPublishForm(),
	}
}

func (uc *PublishUsecase) Form() PublishForm {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.form
}

func (uc *PublishUsecase) UpdateForm(form PublishForm) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.form = form
}

// LastTransaction returns the most recent publish attempt, or nil.
func (uc *PublishUsecase) LastTransaction() *domain.TransactionHandle {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.last
}

// Submit publishes the current form as activeAccount. Validation failures keep the
// form; once dispatch is attempted the form is reset regardless of the outcome.
func (uc *PublishUsecase) Submit(ctx context.Context, activeAccount, authorAddress string) (*domain.TransactionHandle, error) {
	ctx, span := tracer.Start(ctx, "Publish.Usecase.Submit")
	defer span.End()

	if !IsAuthor(activeAccount, authorAddress) {
		return nil, domain.AuthorizationError{Action: "publish", Reason: domain.NoticeAuthorOnly}
	}

	uc.mu.Lock()
	form := uc.form
	uc.mu.Unlock()

	req, err := ValidateDraft(form)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("title", req.Title))

	handle, err := uc.ledger.SubmitPublish(ctx, activeAccount, req)

	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.form = DefaultPublishForm()

	if err != nil {
		span.RecordError(errors.Wrap(err, "Publish.Usecase.Submit: SubmitPublish failed"))
		txErr := domain.TransactionError{Op: "publish", Err: err}
		uc.last = domain.FailedTransaction(domain.TxKindPublish, activeAccount, txErr)
		return uc.last, txErr
	}

	uc.last = handle
	watchConfirmation(handle, uc.timeout)
	return handle, nil
}

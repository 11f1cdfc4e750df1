package application

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/totegamma/bookshelf"
	"github.com/totegamma/bookshelf/codec"
	"github.com/totegamma/bookshelf/internal/domain"
	"github.com/totegamma/bookshelf/internal/usecase"
)

const (
	authorAddr = "0x360D70542Fe578A4d614179D71048599C33d3007"
	buyerAddr  = "0x00000000000000000000000000000000000000b1"
)

type mockLedger struct {
	mu        sync.Mutex
	author    string
	books     []bookshelf.RawBookRecord
	bookReads int
	submitErr error
	payments  []*big.Int
	handles   []*domain.TransactionHandle
}

func (m *mockLedger) ReadAuthor(ctx context.Context) (string, error) {
	return m.author, nil
}

func (m *mockLedger) ReadAuthorBooks(ctx context.Context) ([]bookshelf.RawBookRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookReads++
	return append([]bookshelf.RawBookRecord(nil), m.books...), nil
}

func (m *mockLedger) ReadPurchasedBook(ctx context.Context, account string, bookID uint64) (bookshelf.RawBookRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(bookID) > len(m.books) {
		return bookshelf.RawBookRecord{}, errors.New("execution reverted")
	}
	return m.books[bookID-1], nil
}

func (m *mockLedger) SubmitPublish(ctx context.Context, account string, req bookshelf.PublishRequest) (*domain.TransactionHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	// the fake ledger stores the book in its wire form as soon as it is dispatched
	m.books = append(m.books, bookshelf.RawBookRecord{
		Title:           codec.Encode(req.Title),
		AuthorName:      codec.Encode(req.AuthorName),
		PublishedDate:   codec.Encode(req.PublishedDate),
		Content:         codec.Encode(req.Content),
		Price:           req.Price,
		Status:          req.Status,
		PurchaseCounter: req.PurchaseCounter,
	})
	h := domain.NewTransactionHandle(domain.TxKindPublish, account)
	m.handles = append(m.handles, h)
	return h, nil
}

func (m *mockLedger) SubmitPurchase(ctx context.Context, account string, bookID uint64, payment *big.Int) (*domain.TransactionHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.payments = append(m.payments, payment)
	h := domain.NewTransactionHandle(domain.TxKindPurchase, account)
	h.BookID = bookID
	m.handles = append(m.handles, h)
	return h, nil
}

func (m *mockLedger) reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bookReads
}

type mockHistory struct {
	mu      sync.Mutex
	records map[string]domain.TransactionRecord
}

func (h *mockHistory) Save(ctx context.Context, record domain.TransactionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.records == nil {
		h.records = map[string]domain.TransactionRecord{}
	}
	h.records[record.ID] = record
	return nil
}

func (h *mockHistory) List(ctx context.Context, account string, limit int) ([]domain.TransactionRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var records []domain.TransactionRecord
	for _, r := range h.records {
		if bookshelf.SameAddress(r.Account, account) {
			records = append(records, r)
		}
	}
	return records, nil
}

func (h *mockHistory) Get(ctx context.Context, id string) (domain.TransactionRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.records[id]
	if !ok {
		return domain.TransactionRecord{}, domain.NotFoundError{Resource: "transaction"}
	}
	return r, nil
}

type mockNotifier struct {
	mu     sync.Mutex
	events []bookshelf.Event
}

func (n *mockNotifier) Publish(ctx context.Context, channel string, event bookshelf.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *mockNotifier) count(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Type == eventType {
			c++
		}
	}
	return c
}

func rawBook(title string, price int64, status domain.BookStatus) bookshelf.RawBookRecord {
	return bookshelf.RawBookRecord{
		Title:           codec.Encode(title),
		AuthorName:      codec.Encode("Herbert"),
		PublishedDate:   codec.Encode("1965-08-01"),
		Content:         codec.Encode(title + " content"),
		Price:           big.NewInt(price),
		Status:          uint8(status),
		PurchaseCounter: 10,
	}
}

func newTestSession(t *testing.T) (*Session, *mockLedger, *mockHistory, *mockNotifier) {
	t.Helper()
	ledger := &mockLedger{
		author: authorAddr,
		books: []bookshelf.RawBookRecord{
			rawBook("one", 1, domain.StatusAvailable),
			rawBook("two", 2, domain.StatusUnavailable),
			rawBook("three", 3, domain.StatusAvailable),
		},
	}
	history := &mockHistory{}
	notifier := &mockNotifier{}
	s := NewSession(ledger, Options{
		Contract:       authorAddr,
		ConfirmTimeout: time.Minute,
		History:        history,
		Notifier:       notifier,
	})
	t.Cleanup(s.Close)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	s.WaitRefresh()
	return s, ledger, history, notifier
}

func hasNotice(s *Session, message string) bool {
	for _, n := range s.Notices() {
		if n.Message == message {
			return true
		}
	}
	return false
}

func TestSessionStartLoadsListing(t *testing.T) {
	s, _, _, notifier := newTestSession(t)

	state := s.State()
	if state.AuthorAddress != authorAddr || state.View != domain.ViewDisconnected || state.IsAuthor {
		t.Fatalf("unexpected state %+v", state)
	}

	listing := s.Listing()
	if len(listing.Books) != 3 || listing.Books[2].ID != 3 {
		t.Fatalf("unexpected listing %+v", listing.Books)
	}
	for _, b := range listing.Books {
		if b.CanBuy {
			t.Fatalf("nothing is buyable while disconnected")
		}
	}
	if listing.Key.Author != authorAddr {
		t.Fatalf("listing must be keyed by the loaded author, got %+v", listing.Key)
	}
	if notifier.count(bookshelf.EventTypeListing) == 0 {
		t.Fatalf("expected a listing event")
	}
}

func TestSessionViewFollowsAccount(t *testing.T) {
	s, _, _, _ := newTestSession(t)

	state, err := s.Connect(buyerAddr)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if state.View != domain.ViewBuyer {
		t.Fatalf("expected buyer view, got %s", state.View)
	}
	s.WaitRefresh()
	books := s.Listing().Books
	if !books[0].CanBuy || books[1].CanBuy || !books[2].CanBuy {
		t.Fatalf("unexpected eligibility for buyer: %v %v %v", books[0].CanBuy, books[1].CanBuy, books[2].CanBuy)
	}

	state, _ = s.Connect("0x360d70542fe578a4d614179d71048599c33d3007")
	if state.View != domain.ViewAuthor || !state.IsAuthor {
		t.Fatalf("expected author view, got %+v", state)
	}
	s.WaitRefresh()
	for _, b := range s.Listing().Books {
		if b.CanBuy {
			t.Fatalf("author must not be offered Buy")
		}
	}

	if s.Disconnect().View != domain.ViewDisconnected {
		t.Fatalf("expected disconnected view")
	}

	if _, err := s.Connect("garbage"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSessionPurchaseConfirmation(t *testing.T) {
	s, ledger, history, _ := newTestSession(t)
	s.Connect(buyerAddr)
	s.WaitRefresh()

	handle, err := s.Purchase(context.Background(), 3)
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	want, _ := new(big.Int).SetString("3000000000000000000", 10)
	if ledger.payments[0].Cmp(want) != 0 {
		t.Fatalf("unexpected payment %s", ledger.payments[0])
	}

	before := ledger.reads()
	handle.Resolve(bookshelf.Receipt{TransactionHash: "0xabc", BlockNumber: 9})
	s.WaitRefresh()

	if !hasNotice(s, domain.NoticePurchaseSuccess) {
		t.Fatalf("expected success notice, got %+v", s.Notices())
	}
	if ledger.reads() <= before {
		t.Fatalf("expected a refresh after confirmation")
	}
	if s.Listing().Key.Confirmations != 1 {
		t.Fatalf("expected confirmation counter 1, got %d", s.Listing().Key.Confirmations)
	}

	record, err := s.Transaction(context.Background(), handle.ID)
	if err != nil || record.Status != "success" || record.BlockNumber != 9 {
		t.Fatalf("unexpected record %+v (%v)", record, err)
	}
	if _, ok := history.records[handle.ID]; !ok {
		t.Fatalf("expected history row")
	}
}

func TestSessionPurchaseFailure(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	s.Connect(buyerAddr)
	s.WaitRefresh()

	handle, err := s.Purchase(context.Background(), 1)
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	handle.Fail(domain.TransactionError{Op: "purchase", Reason: "transaction reverted"})
	s.WaitRefresh()

	if !hasNotice(s, domain.NoticePurchaseFailed) {
		t.Fatalf("expected failure notice")
	}
	if s.Listing().Key.Confirmations != 0 {
		t.Fatalf("failed transactions must not count as confirmations")
	}
}

func TestSessionPurchaseWithoutAccount(t *testing.T) {
	s, ledger, _, _ := newTestSession(t)

	_, err := s.Purchase(context.Background(), 1)
	if !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if !hasNotice(s, domain.NoticeConnectWallet) {
		t.Fatalf("expected connect wallet notice")
	}
	if len(ledger.payments) != 0 {
		t.Fatalf("ledger must not be called")
	}
}

func TestSessionPublishGate(t *testing.T) {
	s, ledger, _, _ := newTestSession(t)
	s.UpdateDraft(usecase.PublishForm{
		Title:         "Dune",
		AuthorName:    "Herbert",
		PublishedDate: "1965-08-01",
		Price:         "2",
	})

	s.Connect(buyerAddr)
	if _, err := s.Publish(context.Background()); !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}

	s.Connect(authorAddr)
	handle, err := s.Publish(context.Background())
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(ledger.handles) != 1 {
		t.Fatalf("expected one dispatch")
	}
	if s.Draft() != usecase.DefaultPublishForm() {
		t.Fatalf("expected draft reset")
	}

	handle.Resolve(bookshelf.Receipt{TransactionHash: "0xdef"})
	s.WaitRefresh()
	if !hasNotice(s, domain.NoticePublishSuccess) {
		t.Fatalf("expected publish notice")
	}
}

func TestSessionPublishDispatchFailure(t *testing.T) {
	s, ledger, _, _ := newTestSession(t)
	ledger.submitErr = errors.New("user rejected")
	s.Connect(authorAddr)
	s.UpdateDraft(usecase.PublishForm{Title: "Dune", AuthorName: "Herbert", PublishedDate: "1965"})

	handle, err := s.Publish(context.Background())
	if !errors.Is(err, domain.ErrTransaction) {
		t.Fatalf("expected transaction error, got %v", err)
	}
	if handle.Status() != domain.TxFailure || !hasNotice(s, domain.NoticePublishFailed) {
		t.Fatalf("expected failed status indicator and notice")
	}
}

func TestSessionTransactionsInMemory(t *testing.T) {
	ledger := &mockLedger{author: authorAddr, books: []bookshelf.RawBookRecord{rawBook("one", 1, domain.StatusAvailable)}}
	s := NewSession(ledger, Options{Contract: authorAddr})
	defer s.Close()
	s.Start(context.Background())
	s.Connect(buyerAddr)
	s.WaitRefresh()

	h, err := s.Purchase(context.Background(), 1)
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	records, err := s.Transactions(context.Background(), 10)
	if err != nil || len(records) != 1 || records[0].ID != h.ID || records[0].Status != "pending" {
		t.Fatalf("unexpected records %+v (%v)", records, err)
	}

	if _, err := s.Transaction(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionCloseStopsRefresh(t *testing.T) {
	s, ledger, _, _ := newTestSession(t)
	s.Close()

	before := ledger.reads()
	s.Connect(buyerAddr)
	s.WaitRefresh()
	if ledger.reads() != before {
		t.Fatalf("closed session must not refresh")
	}
}

func TestSessionPurchasedBook(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	s.Connect(buyerAddr)

	book, err := s.PurchasedBook(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if book.Content != "one content" {
		t.Fatalf("unexpected content %q", book.Content)
	}
}

func TestSessionLastAccountChangeWins(t *testing.T) {
	for i := 0; i < 50; i++ {
		s, _, _, _ := newTestSession(t)

		if listing := s.Listing(); listing.Key.Author != authorAddr {
			t.Fatalf("round %d: listing built before the author was loaded: %+v", i, listing.Key)
		}

		s.Connect(authorAddr)
		s.Connect(buyerAddr)
		s.WaitRefresh()

		listing := s.Listing()
		if listing.Key.Account != buyerAddr {
			t.Fatalf("round %d: listing keyed by %s, expected %s", i, listing.Key.Account, buyerAddr)
		}
		if !listing.Books[0].CanBuy || !listing.Books[2].CanBuy {
			t.Fatalf("round %d: buyer must be offered Buy", i)
		}
		if s.State().View != domain.ViewBuyer {
			t.Fatalf("round %d: unexpected view %s", i, s.State().View)
		}

		s.Connect(buyerAddr)
		s.Disconnect()
		s.WaitRefresh()
		if s.Listing().Key.Account != "" || s.Listing().Books[0].CanBuy {
			t.Fatalf("round %d: expected disconnected listing, got %+v", i, s.Listing().Key)
		}
	}
}

func TestSessionPublishedBookRoundTrips(t *testing.T) {
	s, ledger, _, _ := newTestSession(t)
	s.Connect(authorAddr)
	s.WaitRefresh()

	s.UpdateDraft(usecase.PublishForm{
		Title:         "Dune",
		Content:       "A desert planet.",
		AuthorName:    "Herbert",
		PublishedDate: "1965-08-01",
		Price:         "2",
		Copies:        "5",
	})
	handle, err := s.Publish(context.Background())
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	ledger.mu.Lock()
	stored := ledger.books[len(ledger.books)-1]
	ledger.mu.Unlock()
	if stored.Title != "0x44756e65" {
		t.Fatalf("unexpected wire title %s", stored.Title)
	}

	handle.Resolve(bookshelf.Receipt{TransactionHash: "0xabc"})
	s.WaitRefresh()

	book, ok := s.Listing().Lookup(4)
	if !ok {
		t.Fatalf("published book missing from listing %+v", s.Listing().Books)
	}
	if book.Title != "Dune" || book.AuthorName != "Herbert" || book.PublishedDate != "1965-08-01" || book.Content != "A desert planet." {
		t.Fatalf("fields did not round trip: %+v", book.BookRecord)
	}
	if book.Price.String() != "2" || book.CopiesRemaining != 5 || book.Status != domain.StatusAvailable || book.Degraded {
		t.Fatalf("unexpected book %+v", book)
	}
	if book.CanBuy {
		t.Fatalf("author must not be offered Buy on their own book")
	}
	if s.Listing().Key.Confirmations != 1 {
		t.Fatalf("expected listing keyed by the confirmation, got %+v", s.Listing().Key)
	}
}

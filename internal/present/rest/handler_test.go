package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/totegamma/bookshelf"
	"github.com/totegamma/bookshelf/codec"
	"github.com/totegamma/bookshelf/internal/application"
	"github.com/totegamma/bookshelf/internal/domain"
	"github.com/totegamma/bookshelf/internal/present/rest/middleware"
)

const (
	authorAddr = "0x360D70542Fe578A4d614179D71048599C33d3007"
	buyerAddr  = "0x00000000000000000000000000000000000000b1"
)

// --- mocks ---

type mockLedger struct {
	mu       sync.Mutex
	books    []bookshelf.RawBookRecord
	payments []*big.Int
}

func (m *mockLedger) ReadAuthor(ctx context.Context) (string, error) { return authorAddr, nil }

func (m *mockLedger) ReadAuthorBooks(ctx context.Context) ([]bookshelf.RawBookRecord, error) {
	return m.books, nil
}

func (m *mockLedger) ReadPurchasedBook(ctx context.Context, account string, bookID uint64) (bookshelf.RawBookRecord, error) {
	if bookshelf.SameAddress(account, buyerAddr) && bookID == 1 {
		return m.books[0], nil
	}
	return bookshelf.RawBookRecord{}, errors.New("execution reverted: not a buyer")
}

func (m *mockLedger) SubmitPublish(ctx context.Context, account string, req bookshelf.PublishRequest) (*domain.TransactionHandle, error) {
	return domain.NewTransactionHandle(domain.TxKindPublish, account), nil
}

func (m *mockLedger) SubmitPurchase(ctx context.Context, account string, bookID uint64, payment *big.Int) (*domain.TransactionHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, payment)
	h := domain.NewTransactionHandle(domain.TxKindPurchase, account)
	h.BookID = bookID
	return h, nil
}

func book(title string, price int64, status domain.BookStatus) bookshelf.RawBookRecord {
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

func newTestServer(t *testing.T) (*echo.Echo, *application.Session, *mockLedger) {
	t.Helper()
	ledger := &mockLedger{books: []bookshelf.RawBookRecord{
		book("Dune", 2, domain.StatusAvailable),
		book("Emma", 1, domain.StatusUnavailable),
	}}
	session := application.NewSession(ledger, application.Options{Contract: authorAddr})
	t.Cleanup(session.Close)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	session.WaitRefresh()

	h := NewHandler(domain.Config{Version: "1.0", ChainID: "11155111", Contract: authorAddr}, session, nil)

	e := echo.New()
	e.Use(middleware.NewSessionMiddleware(session).IdentifyAccount)
	h.RegisterRoutes(e)
	return e, session, ledger
}

func do(e *echo.Echo, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)
	return res
}

// --- tests ---

func TestHandleWellKnown(t *testing.T) {
	e, _, _ := newTestServer(t)

	res := do(e, http.MethodGet, "/.well-known/bookshelf", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	var wk bookshelf.WellKnownBookshelf
	if err := json.Unmarshal(res.Body.Bytes(), &wk); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if wk.Author != authorAddr || wk.Contract != authorAddr || wk.Endpoints["bookshelf.books"] == "" {
		t.Fatalf("unexpected well-known %+v", wk)
	}
}

func TestHandleBooksETag(t *testing.T) {
	e, _, _ := newTestServer(t)

	res := do(e, http.MethodGet, "/api/v1/books", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	etag := res.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected etag")
	}

	var listing domain.Listing
	if err := json.Unmarshal(res.Body.Bytes(), &listing); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(listing.Books) != 2 || listing.Books[0].Title != "Dune" || listing.Books[0].ID != 1 {
		t.Fatalf("unexpected books %+v", listing.Books)
	}

	res = do(e, http.MethodGet, "/api/v1/books", nil, "If-None-Match", etag)
	if res.Code != http.StatusNotModified {
		t.Fatalf("expected 304 got %d", res.Code)
	}
}

func TestHandleConnectAndPurchase(t *testing.T) {
	e, session, ledger := newTestServer(t)

	res := do(e, http.MethodPost, "/api/v1/books/1/purchase", nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without account, got %d", res.Code)
	}

	res = do(e, http.MethodPost, "/api/v1/session/connect", echo.Map{"account": buyerAddr})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", res.Code, res.Body.String())
	}
	session.WaitRefresh()

	res = do(e, http.MethodPost, "/api/v1/books/1/purchase", nil)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", res.Code, res.Body.String())
	}
	if res.Header().Get(middleware.AccountHeader) != buyerAddr {
		t.Fatalf("expected account header")
	}
	var summary domain.TransactionSummary
	if err := json.Unmarshal(res.Body.Bytes(), &summary); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if summary.BookID != 1 || summary.Kind != domain.TxKindPurchase {
		t.Fatalf("unexpected summary %+v", summary)
	}
	want, _ := new(big.Int).SetString("2000000000000000000", 10)
	if ledger.payments[0].Cmp(want) != 0 {
		t.Fatalf("unexpected payment %s", ledger.payments[0])
	}

	res = do(e, http.MethodGet, "/api/v1/transactions/"+summary.ID, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}

	res = do(e, http.MethodPost, "/api/v1/books/2/purchase", nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unavailable book, got %d", res.Code)
	}

	res = do(e, http.MethodPost, "/api/v1/books/abc/purchase", nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid id, got %d", res.Code)
	}
}

func TestHandleBookContent(t *testing.T) {
	e, session, _ := newTestServer(t)
	session.Connect(buyerAddr)

	res := do(e, http.MethodGet, "/api/v1/books/1/content", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	var record domain.BookRecord
	if err := json.Unmarshal(res.Body.Bytes(), &record); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if record.Content != "Dune content" {
		t.Fatalf("unexpected content %q", record.Content)
	}

	res = do(e, http.MethodGet, "/api/v1/books/2/content", nil)
	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for denied read, got %d", res.Code)
	}
}

func TestHandlePublishFlow(t *testing.T) {
	e, session, _ := newTestServer(t)

	draft := echo.Map{"title": "Dune", "authorName": "Herbert", "publishedDate": "1965-08-01", "price": "2"}
	res := do(e, http.MethodPut, "/api/v1/draft", draft)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}

	session.Connect(buyerAddr)
	res = do(e, http.MethodPost, "/api/v1/publish", nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for buyer, got %d", res.Code)
	}

	session.Connect(authorAddr)
	res = do(e, http.MethodPost, "/api/v1/publish", nil)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", res.Code, res.Body.String())
	}

	res = do(e, http.MethodGet, "/api/v1/draft", nil)
	var form map[string]string
	json.Unmarshal(res.Body.Bytes(), &form)
	if form["title"] != "" || form["copies"] != "10" || form["price"] != "0" {
		t.Fatalf("expected reset draft, got %v", form)
	}

	res = do(e, http.MethodGet, "/api/v1/notices", nil)
	var notices []domain.Notice
	json.Unmarshal(res.Body.Bytes(), &notices)
	if len(notices) == 0 || notices[len(notices)-1].Message != domain.NoticePublishSubmitted {
		t.Fatalf("unexpected notices %+v", notices)
	}
}

func TestHandleRealtimeUnconfigured(t *testing.T) {
	e, _, _ := newTestServer(t)

	res := do(e, http.MethodGet, "/realtime", nil)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", res.Code)
	}
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/totegamma/bookshelf"
	"github.com/totegamma/bookshelf/internal/domain"
	"github.com/totegamma/bookshelf/internal/usecase"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "bookshelf-client/1.0"
)

var defaultEndpoints = map[string]string{
	"bookshelf.session":      "/api/v1/session",
	"bookshelf.books":        "/api/v1/books",
	"bookshelf.book.content": "/api/v1/books/{id}/content",
	"bookshelf.book.buy":     "/api/v1/books/{id}/purchase",
	"bookshelf.draft":        "/api/v1/draft",
	"bookshelf.publish":      "/api/v1/publish",
	"bookshelf.transactions": "/api/v1/transactions",
	"bookshelf.notices":      "/api/v1/notices",
}

type Client struct {
	client    *http.Client
	cache     *cache.Cache
	userAgent string
	baseURL   string
	debug     bool
}

func New(baseURL string) *Client {
	httpClient := http.Client{
		Timeout: defaultTimeout,
	}

	c := &Client{
		client:    &httpClient,
		cache:     cache.New(10*time.Minute, 15*time.Minute),
		userAgent: userAgent,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
	httpClient.Transport = c
	return c
}

// SetDebug prints every request the client makes.
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	return http.DefaultTransport.RoundTrip(req)
}

// StatusError is a non-success response from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status code: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %v", err)
		}
		reader = bytes.NewReader(b)
	}

	url := c.baseURL + path
	if c.debug {
		fmt.Printf("Making request to URL: %s %s\n", method, url)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %v", err)
	}
	return resp, nil
}

func (c *Client) HttpRequest(ctx context.Context, method, path string, body any, response any) error {
	resp, err := c.do(ctx, method, path, body, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readStatusError(resp)
	}

	if response == nil {
		return nil
	}
	err = json.NewDecoder(resp.Body).Decode(response)
	if err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}

func readStatusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}

func (c *Client) GetWellKnown(ctx context.Context) (bookshelf.WellKnownBookshelf, error) {
	cacheKey := "wellknown:" + c.baseURL
	x, found := c.cache.Get(cacheKey)
	if found {
		return x.(bookshelf.WellKnownBookshelf), nil
	}

	var wk bookshelf.WellKnownBookshelf
	err := c.HttpRequest(ctx, http.MethodGet, "/.well-known/bookshelf", nil, &wk)
	if err != nil {
		return bookshelf.WellKnownBookshelf{}, fmt.Errorf("failed to get well-known bookshelf: %v", err)
	}

	c.cache.Set(cacheKey, wk, cache.DefaultExpiration)
	return wk, nil
}

// endpoint resolves a named endpoint through the well-known document, falling
// back to the built-in layout when the server does not advertise it.
func (c *Client) endpoint(ctx context.Context, name string, id uint64) string {
	template := defaultEndpoints[name]
	if wk, err := c.GetWellKnown(ctx); err == nil {
		if advertised, ok := wk.Endpoints[name]; ok {
			template = advertised
		}
	}
	return strings.ReplaceAll(template, "{id}", strconv.FormatUint(id, 10))
}

func (c *Client) Session(ctx context.Context) (domain.SessionState, error) {
	var state domain.SessionState
	err := c.HttpRequest(ctx, http.MethodGet, c.endpoint(ctx, "bookshelf.session", 0), nil, &state)
	return state, err
}

func (c *Client) Connect(ctx context.Context, account string) (domain.SessionState, error) {
	var state domain.SessionState
	path := c.endpoint(ctx, "bookshelf.session", 0) + "/connect"
	err := c.HttpRequest(ctx, http.MethodPost, path, map[string]string{"account": account}, &state)
	return state, err
}

func (c *Client) Disconnect(ctx context.Context) (domain.SessionState, error) {
	var state domain.SessionState
	path := c.endpoint(ctx, "bookshelf.session", 0) + "/disconnect"
	err := c.HttpRequest(ctx, http.MethodPost, path, nil, &state)
	return state, err
}

// Books returns the current listing, reusing the cached copy while the server's
// ETag is unchanged.
func (c *Client) Books(ctx context.Context) (domain.Listing, error) {
	cacheKey := "books:" + c.baseURL

	header := http.Header{}
	var cached domain.Listing
	if x, found := c.cache.Get(cacheKey); found {
		cached = x.(domain.Listing)
		header.Set("If-None-Match", fmt.Sprintf(`"%s"`, cached.Hash))
	}

	resp, err := c.do(ctx, http.MethodGet, c.endpoint(ctx, "bookshelf.books", 0), nil, header)
	if err != nil {
		return domain.Listing{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return cached, nil
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Listing{}, readStatusError(resp)
	}

	var listing domain.Listing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return domain.Listing{}, fmt.Errorf("failed to decode listing: %v", err)
	}
	if listing.Hash != "" {
		c.cache.Set(cacheKey, listing, cache.DefaultExpiration)
	}
	return listing, nil
}

func (c *Client) BookContent(ctx context.Context, bookID uint64) (domain.BookRecord, error) {
	var book domain.BookRecord
	err := c.HttpRequest(ctx, http.MethodGet, c.endpoint(ctx, "bookshelf.book.content", bookID), nil, &book)
	return book, err
}

func (c *Client) Purchase(ctx context.Context, bookID uint64) (domain.TransactionSummary, error) {
	var summary domain.TransactionSummary
	err := c.HttpRequest(ctx, http.MethodPost, c.endpoint(ctx, "bookshelf.book.buy", bookID), nil, &summary)
	return summary, err
}

func (c *Client) Draft(ctx context.Context) (usecase.PublishForm, error) {
	var form usecase.PublishForm
	err := c.HttpRequest(ctx, http.MethodGet, c.endpoint(ctx, "bookshelf.draft", 0), nil, &form)
	return form, err
}

func (c *Client) UpdateDraft(ctx context.Context, form usecase.PublishForm) (usecase.PublishForm, error) {
	var updated usecase.PublishForm
	err := c.HttpRequest(ctx, http.MethodPut, c.endpoint(ctx, "bookshelf.draft", 0), form, &updated)
	return updated, err
}

func (c *Client) Publish(ctx context.Context) (domain.TransactionSummary, error) {
	var summary domain.TransactionSummary
	err := c.HttpRequest(ctx, http.MethodPost, c.endpoint(ctx, "bookshelf.publish", 0), nil, &summary)
	return summary, err
}

func (c *Client) Transactions(ctx context.Context, limit int) ([]domain.TransactionRecord, error) {
	var records []domain.TransactionRecord
	path := c.endpoint(ctx, "bookshelf.transactions", 0) + "?limit=" + strconv.Itoa(limit)
	err := c.HttpRequest(ctx, http.MethodGet, path, nil, &records)
	return records, err
}

func (c *Client) Transaction(ctx context.Context, id string) (domain.TransactionRecord, error) {
	var record domain.TransactionRecord
	path := c.endpoint(ctx, "bookshelf.transactions", 0) + "/" + id
	err := c.HttpRequest(ctx, http.MethodGet, path, nil, &record)
	return record, err
}

// WaitTransaction polls a transaction until it leaves the pending state.
func (c *Client) WaitTransaction(ctx context.Context, id string, interval time.Duration) (domain.TransactionRecord, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		record, err := c.Transaction(ctx, id)
		if err != nil {
			return domain.TransactionRecord{}, err
		}
		if record.Status != domain.TxPending.String() {
			return record, nil
		}
		select {
		case <-ctx.Done():
			return record, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) Notices(ctx context.Context) ([]domain.Notice, error) {
	var notices []domain.Notice
	err := c.HttpRequest(ctx, http.MethodGet, c.endpoint(ctx, "bookshelf.notices", 0), nil, &notices)
	return notices, err
}

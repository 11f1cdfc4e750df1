package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/totegamma/bookshelf"
	"github.com/totegamma/bookshelf/internal/application"
	"github.com/totegamma/bookshelf/internal/domain"
	"github.com/totegamma/bookshelf/internal/present/rest/presenter"
	"github.com/totegamma/bookshelf/internal/service"
	"github.com/totegamma/bookshelf/internal/usecase"
)

type Handler struct {
	config  domain.Config
	session *application.Session
	signal  *service.SignalService
}

func NewHandler(
	config domain.Config,
	session *application.Session,
	signal *service.SignalService,
) *Handler {
	return &Handler{
		config:  config,
		session: session,
		signal:  signal,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/.well-known/bookshelf", h.handleWellKnown)
	e.GET("/api/v1/session", h.handleSession)
	e.POST("/api/v1/session/connect", h.handleConnect)
	e.POST("/api/v1/session/disconnect", h.handleDisconnect)
	e.GET("/api/v1/books", h.handleBooks)
	e.GET("/api/v1/books/:id/content", h.handleBookContent)
	e.POST("/api/v1/books/:id/purchase", h.handlePurchase)
	e.GET("/api/v1/draft", h.handleGetDraft)
	e.PUT("/api/v1/draft", h.handlePutDraft)
	e.POST("/api/v1/publish", h.handlePublish)
	e.GET("/api/v1/transactions", h.handleTransactions)
	e.GET("/api/v1/transactions/:id", h.handleTransaction)
	e.GET("/api/v1/notices", h.handleNotices)
	e.GET("/realtime", h.handleRealtime)
}

func (h *Handler) handleWellKnown(c echo.Context) error {
	wellknown := bookshelf.WellKnownBookshelf{
		Version:  h.config.Version,
		ChainID:  h.config.ChainID,
		Contract: h.config.Contract,
		Author:   h.session.State().AuthorAddress,
		Endpoints: map[string]string{
			"bookshelf.session":      "/api/v1/session",
			"bookshelf.books":        "/api/v1/books",
			"bookshelf.book.content": "/api/v1/books/{id}/content",
			"bookshelf.book.buy":     "/api/v1/books/{id}/purchase",
			"bookshelf.draft":        "/api/v1/draft",
			"bookshelf.publish":      "/api/v1/publish",
			"bookshelf.transactions": "/api/v1/transactions",
			"bookshelf.notices":      "/api/v1/notices",
			"bookshelf.realtime":     "/realtime",
		},
	}
	return presenter.OK(c, wellknown)
}

func (h *Handler) handleSession(c echo.Context) error {
	return presenter.OK(c, h.session.State())
}

type connectRequest struct {
	Account string `json:"account"`
}

func (h *Handler) handleConnect(c echo.Context) error {
	var req connectRequest
	err := c.Bind(&req)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	state, err := h.session.Connect(req.Account)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, state)
}

func (h *Handler) handleDisconnect(c echo.Context) error {
	return presenter.OK(c, h.session.Disconnect())
}

func (h *Handler) handleBooks(c echo.Context) error {
	listing := h.session.Listing()

	etag := fmt.Sprintf(`"%s"`, listing.Hash)
	if listing.Hash != "" {
		if c.Request().Header.Get("If-None-Match") == etag {
			return c.NoContent(http.StatusNotModified)
		}
		c.Response().Header().Set("ETag", etag)
	}
	return presenter.OK(c, listing)
}

func parseBookID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, domain.ValidationError{Field: "book id", Reason: "must be a positive integer"}
	}
	return id, nil
}

func (h *Handler) handleBookContent(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseBookID(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	book, err := h.session.PurchasedBook(ctx, id)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, book)
}

func (h *Handler) handlePurchase(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseBookID(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	handle, err := h.session.Purchase(ctx, id)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Accepted(c, handle.Summary())
}

func (h *Handler) handleGetDraft(c echo.Context) error {
	return presenter.OK(c, h.session.Draft())
}

func (h *Handler) handlePutDraft(c echo.Context) error {
	var form usecase.PublishForm
	err := c.Bind(&form)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	return presenter.OK(c, h.session.UpdateDraft(form))
}

func (h *Handler) handlePublish(c echo.Context) error {
	ctx := c.Request().Context()

	handle, err := h.session.Publish(ctx)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Accepted(c, handle.Summary())
}

func (h *Handler) handleTransactions(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 20
	limitStr := c.QueryParam("limit")
	if limitStr != "" {
		limitInt, err := strconv.Atoi(limitStr)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid limit parameter")
		}
		limit = limitInt
	}
	if limit > 100 {
		limit = 100
	}

	records, err := h.session.Transactions(ctx, limit)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, records)
}

func (h *Handler) handleTransaction(c echo.Context) error {
	ctx := c.Request().Context()

	record, err := h.session.Transaction(ctx, c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, record)
}

func (h *Handler) handleNotices(c echo.Context) error {
	return presenter.OK(c, h.session.Notices())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Request struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	if h.signal == nil {
		return presenter.Unavailable(c, "realtime is not configured")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []string)
	output := make(chan bookshelf.Event)

	go h.signal.Realtime(ctx, input, output)

	quit := make(chan struct{})

	go func() {
		defer close(quit)
		for {
			var req Request
			err := ws.ReadJSON(&req)
			if err != nil {
				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}
				return
			}

			switch req.Type {
			case "listen":
				select {
				case input <- req.Channels:
				case <-ctx.Done():
					return
				}
				slog.DebugContext(
					ctx, fmt.Sprintf("Socket subscribe: %s", req.Channels),
					slog.String("module", "socket"),
				)
			case "h": // heartbeat
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event := <-output:
			err := ws.WriteJSON(event)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}

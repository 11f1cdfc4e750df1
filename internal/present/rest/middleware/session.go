package middleware

import (
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/totegamma/bookshelf/internal/domain"
)

var tracer = otel.Tracer("session")

const (
	AccountHeader = "Bookshelf-Account"
	TraceHeader   = "Trace-Id"
)

// StateProvider returns the current session state.
type StateProvider interface {
	State() domain.SessionState
}

type SessionMiddleware struct {
	session StateProvider
}

func NewSessionMiddleware(session StateProvider) *SessionMiddleware {
	return &SessionMiddleware{
		session: session,
	}
}

// IdentifyAccount opens the request span, tags it with the session's account and view,
// and echoes the account and trace id in the response headers.
func (s *SessionMiddleware) IdentifyAccount(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(
			c.Request().Context(),
			"Session.Middleware.IdentifyAccount",
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		if sc := span.SpanContext(); sc.HasTraceID() {
			c.Response().Header().Set(TraceHeader, sc.TraceID().String())
		}

		state := s.session.State()
		if state.ActiveAccount != "" {
			span.SetAttributes(attribute.String("ActiveAccount", state.ActiveAccount))
			c.Response().Header().Set(AccountHeader, state.ActiveAccount)
		}
		span.SetAttributes(attribute.String("View", state.View.String()))

		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// Package handlers implements the tenantcast REST endpoints and the websocket
// hub endpoints.
//
// Routes are registered by the app router; handlers never register their own.
// REST callers are identified from verified token claims with the same
// resolver the hubs use. The query-string fallback is never consulted for
// REST calls.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tenantcast.dev/tenantcast/internal/api/middleware"
	"tenantcast.dev/tenantcast/internal/domain"
	"tenantcast.dev/tenantcast/internal/governance/audit"
	"tenantcast.dev/tenantcast/internal/identity"
	"tenantcast.dev/tenantcast/internal/notification"
	apperrors "tenantcast.dev/tenantcast/internal/pkg/errors"
	"tenantcast.dev/tenantcast/internal/realtime"
)

// ReadinessCheck reports whether one dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Server holds the dependencies of every handler.
type Server struct {
	dispatcher *notification.Dispatcher
	inApp      *notification.InAppSender
	push       *notification.PushSender
	resolver   *identity.Resolver
	ws         *realtime.WebSocketServer
	audit      *audit.Logger
	checks     map[string]ReadinessCheck
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Dispatcher *notification.Dispatcher
	InApp      *notification.InAppSender
	Push       *notification.PushSender
	Resolver   *identity.Resolver
	WebSocket  *realtime.WebSocketServer
	// Audit records admin sends. Nil disables auditing.
	Audit *audit.Logger
	// Checks are run by the readiness probe, keyed by dependency name.
	Checks map[string]ReadinessCheck
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	resolver := deps.Resolver
	if resolver == nil {
		resolver = identity.NewResolver()
	}
	ws := deps.WebSocket
	if ws == nil {
		ws = realtime.NewWebSocketServer(realtime.DefaultTransportConfig())
	}
	return &Server{
		dispatcher: deps.Dispatcher,
		inApp:      deps.InApp,
		push:       deps.Push,
		resolver:   resolver,
		ws:         ws,
		audit:      deps.Audit,
		checks:     deps.Checks,
	}
}

// caller resolves the authenticated identity of a REST request. On failure
// the error is recorded on c and ok is false.
func (s *Server) caller(c *gin.Context) (identity.Identity, bool) {
	claims := middleware.GetClaims(c.Request.Context())
	id, err := s.resolver.Resolve(identity.Handshake{Claims: claims})
	if err != nil {
		fail(c, apperrors.Unauthorized(apperrors.CodeIdentityNotFound, "token does not identify a tenant and user"))
		return identity.Identity{}, false
	}
	return id, true
}

// fail records err for ErrorHandler and stops the chain.
func fail(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			err = apperrors.Wrap(err, "NOT_FOUND", "resource not found", http.StatusNotFound)
		default:
			err = apperrors.Wrap(err, apperrors.CodeInternal, "An internal error occurred", http.StatusInternalServerError)
		}
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidField(c *gin.Context, field string, cause error) {
	e := apperrors.ErrInvalidRequestFieldf(field)
	e.Err = cause
	fail(c, e)
}

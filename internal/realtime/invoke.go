package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/identity"
	apperrors "tenantcast.dev/tenantcast/internal/pkg/errors"
)

// Method handles one client invocation. Returning an *errors.AppError sends
// its code and message to the caller; the connection stays open.
type Method func(ctx context.Context, call *Call) (any, error)

// Call is one client invocation.
type Call struct {
	Hub     *Hub
	Session *Session
	Target  string
	args    []json.RawMessage
}

// Caller returns the invoking identity.
func (c *Call) Caller() identity.Identity { return c.Session.Identity }

// ConnectionID returns the invoking connection.
func (c *Call) ConnectionID() string { return c.Session.ID() }

// SendToCaller delivers an event to the invoking connection only.
func (c *Call) SendToCaller(ctx context.Context, target string, args ...any) error {
	return c.Hub.SendToConnection(ctx, c.ConnectionID(), target, args...)
}

// Bind decodes argument i into v.
func (c *Call) Bind(i int, v any) error {
	if i >= len(c.args) {
		return apperrors.ErrInvalidRequestFieldf(fmt.Sprintf("arguments[%d]", i))
	}
	if err := json.Unmarshal(c.args[i], v); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidRequestField,
			fmt.Sprintf("malformed argument %d", i), http.StatusBadRequest)
	}
	return nil
}

// String decodes a required non-empty string argument.
func (c *Call) String(i int, name string) (string, error) {
	var s string
	if err := c.Bind(i, &s); err != nil {
		return "", apperrors.ErrInvalidRequestFieldf(name)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", apperrors.ErrInvalidRequestFieldf(name)
	}
	return s, nil
}

// OptionalString decodes a string argument, returning "" when absent or null.
func (c *Call) OptionalString(i int) string {
	if i >= len(c.args) {
		return ""
	}
	var s *string
	if err := json.Unmarshal(c.args[i], &s); err != nil || s == nil {
		return ""
	}
	return *s
}

// Handle registers a method. Registration happens before serving.
func (h *Hub) Handle(target string, m Method) {
	h.methods[target] = m
}

// Invoke schedules an inbound invoke frame on the worker pool.
func (h *Hub) Invoke(ctx context.Context, conn Conn, frame Frame) {
	s, ok := h.Session(conn.ID())
	if !ok {
		h.log.Warn("Invocation from unadmitted connection dropped",
			zap.String("connection_id", conn.ID()),
			zap.String("target", frame.Target),
		)
		return
	}

	err := h.pool.Submit(ctx, func(ctx context.Context) {
		h.invoke(ctx, s, frame)
	})
	if err != nil {
		h.log.Warn("Invocation not scheduled",
			zap.String("connection_id", conn.ID()),
			zap.String("target", frame.Target),
			zap.Error(err),
		)
		h.deliver(s, NewCompletion(frame.ID, nil,
			apperrors.New(apperrors.CodeInvocationFail, "server busy", http.StatusServiceUnavailable)))
	}
}

func (h *Hub) invoke(ctx context.Context, s *Session, frame Frame) {
	defer func() {
		if p := recover(); p != nil {
			h.log.Error("Hub method panicked",
				zap.String("target", frame.Target),
				zap.String("connection_id", s.ID()),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			h.deliver(s, NewCompletion(frame.ID, nil, fmt.Errorf("panic: %v", p)))
		}
	}()

	m, ok := h.methods[frame.Target]
	if !ok {
		h.deliver(s, NewCompletion(frame.ID, nil,
			apperrors.NotFound(apperrors.CodeMethodNotFound, "unknown method "+frame.Target)))
		return
	}

	result, err := m(ctx, &Call{Hub: h, Session: s, Target: frame.Target, args: frame.Arguments})
	if err != nil {
		if _, isApp := apperrors.IsAppError(err); !isApp {
			h.log.Error("Hub method failed",
				zap.String("target", frame.Target),
				zap.String("connection_id", s.ID()),
				zap.String("user_id", s.Identity.UserID),
				zap.Error(err),
			)
		}
		h.deliver(s, NewCompletion(frame.ID, nil, err))
		return
	}
	if frame.ID != "" {
		h.deliver(s, NewCompletion(frame.ID, result, nil))
	}
}

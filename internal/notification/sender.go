// Package notification implements multi-channel notification dispatch.
//
// The Dispatcher loads (or lazily creates) the recipient's preferences, drops
// everything during quiet hours, and fans out to the requested and enabled
// channels concurrently. Each channel is fault isolated: its failure is
// logged and recorded in the Result, never surfaced as a dispatch error.
// In-app delivery persists before it pushes live, so a client that reconnects
// can always fetch what it missed.
package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/domain"
	"tenantcast.dev/tenantcast/internal/pkg/logger"
)

// EventReceiveNotification is the client event carrying a notification.
const EventReceiveNotification = "ReceiveNotification"

// Request is a notification addressed to one user.
type Request struct {
	TenantID  string
	UserID    string
	Title     string
	Message   string
	Type      domain.NotificationType
	Channels  domain.Channels
	ActionURL string
	ImageURL  string
	Data      map[string]string
}

// TenantRequest is a notification broadcast to a whole tenant.
type TenantRequest struct {
	TenantID  string
	Title     string
	Message   string
	Type      domain.NotificationType
	Channels  domain.Channels
	ActionURL string
	Data      map[string]string
}

// Validate checks the required fields.
func (r Request) Validate() error {
	switch {
	case r.TenantID == "":
		return fmt.Errorf("tenant_id is required")
	case r.UserID == "":
		return fmt.Errorf("user_id is required")
	case r.Title == "":
		return fmt.Errorf("title is required")
	}
	return nil
}

// ChannelSender delivers a notification through one channel.
type ChannelSender interface {
	Channel() domain.Channel
	Deliver(ctx context.Context, req Request) error
}

// TenantBroadcaster delivers a tenant-wide notification through one channel.
type TenantBroadcaster interface {
	Channel() domain.Channel
	Broadcast(ctx context.Context, req TenantRequest) error
}

// Payload is the live ReceiveNotification body.
type Payload struct {
	ID        string                  `json:"id"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Type      domain.NotificationType `json:"type"`
	ActionURL string                  `json:"actionUrl,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

// PayloadOf renders a stored notification for the wire.
func PayloadOf(n *domain.UserNotification) Payload {
	return Payload{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		ActionURL: n.ActionURL,
		Timestamp: n.CreatedAt,
	}
}

// InAppSender stores notifications and pushes them to live connections.
type InAppSender struct {
	store NotificationStore
	live  LiveSender
	now   func() time.Time
}

// NewInAppSender creates an in-app sender.
func NewInAppSender(store NotificationStore, live LiveSender) *InAppSender {
	return &InAppSender{store: store, live: live, now: time.Now}
}

// Channel implements ChannelSender.
func (s *InAppSender) Channel() domain.Channel { return domain.ChannelInApp }

// Deliver persists the notification, then pushes it to the user's live
// connections. A persistence failure aborts the live push.
func (s *InAppSender) Deliver(ctx context.Context, req Request) error {
	n := domain.NewUserNotification(req.TenantID, req.UserID, req.Title, req.Message, req.Type, req.ActionURL, s.now())
	if err := s.store.Add(ctx, n); err != nil {
		return fmt.Errorf("persist notification for user %s: %w", req.UserID, err)
	}

	if err := s.live.SendToUserInTenant(ctx, req.TenantID, req.UserID, EventReceiveNotification, PayloadOf(n)); err != nil {
		return fmt.Errorf("live push of %s: %w", n.ID, err)
	}

	logger.Debug("In-app notification delivered",
		zap.String("notification_id", n.ID),
		zap.String("tenant_id", req.TenantID),
		zap.String("user_id", req.UserID),
	)
	return nil
}

// Broadcast pushes a live notification to every connection of a tenant.
// Nothing is persisted per user.
func (s *InAppSender) Broadcast(ctx context.Context, req TenantRequest) error {
	typ := req.Type
	if typ == "" {
		typ = domain.TypeInfo
	}
	// The ID only correlates client-side; there is no row behind it.
	n := domain.NewUserNotification(req.TenantID, "", req.Title, req.Message, typ, req.ActionURL, s.now())
	return s.live.SendToTenant(ctx, req.TenantID, EventReceiveNotification, PayloadOf(n))
}

// List returns the user's notifications, newest first.
func (s *InAppSender) List(ctx context.Context, userID string, limit int, unreadOnly bool) ([]*domain.UserNotification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit, unreadOnly)
}

// UnreadCount returns the number of unread notifications.
func (s *InAppSender) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.store.CountUnread(ctx, userID)
}

// MarkAsRead marks one of the user's notifications read. Marking an already
// read notification succeeds. Notifications of other users are reported as
// domain.ErrNotFound.
func (s *InAppSender) MarkAsRead(ctx context.Context, userID, id string) error {
	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return domain.ErrNotFound
	}
	if _, err := s.store.MarkRead(ctx, id, s.now()); err != nil {
		return fmt.Errorf("mark %s read: %w", id, err)
	}
	return nil
}

// MarkAllAsRead marks every unread notification of the user read.
func (s *InAppSender) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkAllRead(ctx, userID, s.now())
}

var (
	_ ChannelSender     = (*InAppSender)(nil)
	_ TenantBroadcaster = (*InAppSender)(nil)
)

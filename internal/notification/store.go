package notification

import (
	"context"
	"time"

	"tenantcast.dev/tenantcast/internal/domain"
)

// NotificationStore persists in-app notifications. Missing rows are
// reported as domain.ErrNotFound.
type NotificationStore interface {
	Add(ctx context.Context, n *domain.UserNotification) error
	GetByID(ctx context.Context, id string) (*domain.UserNotification, error)
	// ListByUser returns newest first.
	ListByUser(ctx context.Context, userID string, limit int, unreadOnly bool) ([]*domain.UserNotification, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	// MarkRead reports false when the row was already read.
	MarkRead(ctx context.Context, id string, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
}

// PreferencesStore persists per-user preferences.
type PreferencesStore interface {
	GetByUserID(ctx context.Context, userID string) (*domain.NotificationPreferences, error)
	// Create inserts p unless a row for the user exists, and returns the
	// stored row either way.
	Create(ctx context.Context, p *domain.NotificationPreferences) (*domain.NotificationPreferences, error)
	Update(ctx context.Context, p *domain.NotificationPreferences) error
}

// PushTokenStore persists device tokens. Token values are unique; Add
// reports domain.ErrAlreadyExists on conflict.
type PushTokenStore interface {
	GetByToken(ctx context.Context, token string) (*domain.PushToken, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.PushToken, error)
	ListActiveByTenant(ctx context.Context, tenantID string) ([]*domain.PushToken, error)
	CountActiveByUser(ctx context.Context, userID string) (int64, error)
	Add(ctx context.Context, t *domain.PushToken) error
	Update(ctx context.Context, t *domain.PushToken) error
	// Deactivate reports false when the token is unknown or already inactive.
	Deactivate(ctx context.Context, token string, at time.Time) (bool, error)
	Touch(ctx context.Context, tokens []string, at time.Time) error
}

// LiveSender pushes events to connected clients. *realtime.Hub implements it.
type LiveSender interface {
	SendToUserInTenant(ctx context.Context, tenantID, userID, target string, args ...any) error
	SendToTenant(ctx context.Context, tenantID, target string, args ...any) error
}

package domain

import (
	"fmt"
	"time"

	"tenantcast.dev/tenantcast/internal/pkg/ids"
)

// NotificationType classifies a notification for presentation.
type NotificationType string

const (
	TypeInfo    NotificationType = "info"
	TypeSuccess NotificationType = "success"
	TypeWarning NotificationType = "warning"
	TypeError   NotificationType = "error"
)

// ParseNotificationType validates s. Empty defaults to info.
func ParseNotificationType(s string) (NotificationType, error) {
	switch NotificationType(s) {
	case "":
		return TypeInfo, nil
	case TypeInfo, TypeSuccess, TypeWarning, TypeError:
		return NotificationType(s), nil
	default:
		return "", fmt.Errorf("unknown notification type %q", s)
	}
}

// UserNotification is a persisted in-app notification.
// Rows are append-only apart from the read state.
type UserNotification struct {
	ID        string           `json:"id"`
	TenantID  string           `json:"tenant_id"`
	UserID    string           `json:"user_id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	ActionURL string           `json:"action_url,omitempty"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
}

// NewUserNotification creates an unread notification stamped with now.
func NewUserNotification(tenantID, userID, title, message string, typ NotificationType, actionURL string, now time.Time) *UserNotification {
	if typ == "" {
		typ = TypeInfo
	}
	return &UserNotification{
		ID:        ids.New(ids.PrefixNotification),
		TenantID:  tenantID,
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      typ,
		ActionURL: actionURL,
		CreatedAt: now.UTC(),
	}
}

// MarkAsRead sets the read state. It reports false if already read.
func (n *UserNotification) MarkAsRead(now time.Time) bool {
	if n.IsRead {
		return false
	}
	at := now.UTC()
	n.IsRead = true
	n.ReadAt = &at
	return true
}

// Stats is the per-user multi-channel summary.
type Stats struct {
	Total        int64 `json:"total"`
	Unread       int64 `json:"unread"`
	Read         int64 `json:"read"`
	ActiveTokens int64 `json:"active_device_tokens"`
}

// NewStats derives Read from Total and Unread.
func NewStats(total, unread, activeTokens int64) Stats {
	return Stats{
		Total:        total,
		Unread:       unread,
		Read:         total - unread,
		ActiveTokens: activeTokens,
	}
}

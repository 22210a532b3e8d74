// Package audit records operator actions: targeted sends and tenant
// broadcasts made through the admin API.
//
// Audit records are append-only. Nothing updates or deletes them.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/pkg/logger"
)

// Actions recorded by the admin endpoints.
const (
	ActionNotificationSent = "notification.sent"
	ActionTenantBroadcast  = "notification.broadcast"
)

// Record is one audit entry.
type Record struct {
	ID           string         `json:"id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	TenantID     string         `json:"tenant_id"`
	Actor        string         `json:"actor"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Store appends records.
type Store interface {
	Append(ctx context.Context, r *Record) error
}

// Logger writes audit records to a Store. A nil *Logger discards records.
type Logger struct {
	store Store
	now   func() time.Time
}

// NewLogger creates a new audit Logger.
func NewLogger(store Store) *Logger {
	return &Logger{store: store, now: time.Now}
}

// LogAction records an auditable action.
func (l *Logger) LogAction(ctx context.Context, action, resourceType, resourceID, tenantID, actor string, details map[string]any) error {
	if l == nil || l.store == nil {
		return nil
	}
	r := &Record{
		ID:           generateAuditID(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		TenantID:     tenantID,
		Actor:        actor,
		Details:      details,
		CreatedAt:    l.now().UTC(),
	}
	if err := l.store.Append(ctx, r); err != nil {
		logger.Error("Failed to write audit log",
			zap.String("action", action),
			zap.String("resource_type", resourceType),
			zap.String("resource_id", resourceID),
			zap.Error(err),
		)
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// LogNotificationSent records a targeted send to one user.
func (l *Logger) LogNotificationSent(ctx context.Context, actor, tenantID, userID string, details map[string]any) error {
	return l.LogAction(ctx, ActionNotificationSent, "user", userID, tenantID, actor, details)
}

// LogTenantBroadcast records a broadcast to every member of a tenant.
func (l *Logger) LogTenantBroadcast(ctx context.Context, actor, tenantID string, details map[string]any) error {
	return l.LogAction(ctx, ActionTenantBroadcast, "tenant", tenantID, tenantID, actor, details)
}

func generateAuditID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return fmt.Sprintf("audit-%s", id.String())
}

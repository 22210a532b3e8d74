package repository

import (
	"context"
	"fmt"

	"tenantcast.dev/tenantcast/internal/domain"
)

const preferencesColumns = `id, tenant_id, user_id, email_enabled, in_app_enabled, push_enabled, sms_enabled,
	quiet_hours_start, quiet_hours_end, created_at, updated_at`

// PreferencesRepository stores one preferences row per user.
type PreferencesRepository struct {
	db DBTX
}

// NewPreferencesRepository creates a repository on db.
func NewPreferencesRepository(db DBTX) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

func quietColumns(q *domain.QuietHours) (start, end *int16) {
	if q == nil {
		return nil, nil
	}
	s, e := int16(q.Start), int16(q.End)
	return &s, &e
}

func (r *PreferencesRepository) GetByUserID(ctx context.Context, userID string) (*domain.NotificationPreferences, error) {
	var (
		p          domain.NotificationPreferences
		start, end *int16
	)
	err := r.db.QueryRow(ctx,
		`SELECT `+preferencesColumns+` FROM notification_preferences WHERE user_id = $1`, userID).
		Scan(&p.ID, &p.TenantID, &p.UserID, &p.EmailEnabled, &p.InAppEnabled, &p.PushEnabled, &p.SMSEnabled,
			&start, &end, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if start != nil && end != nil {
		p.QuietHours = &domain.QuietHours{Start: domain.ClockTime(*start), End: domain.ClockTime(*end)}
	}
	return &p, nil
}

// Create inserts p unless the user already has a row, then returns the
// stored row. Concurrent first dispatches converge on a single row.
func (r *PreferencesRepository) Create(ctx context.Context, p *domain.NotificationPreferences) (*domain.NotificationPreferences, error) {
	start, end := quietColumns(p.QuietHours)
	_, err := r.db.Exec(ctx, `
		INSERT INTO notification_preferences (`+preferencesColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO NOTHING`,
		p.ID, p.TenantID, p.UserID, p.EmailEnabled, p.InAppEnabled, p.PushEnabled, p.SMSEnabled,
		start, end, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert preferences: %w", err)
	}
	return r.GetByUserID(ctx, p.UserID)
}

func (r *PreferencesRepository) Update(ctx context.Context, p *domain.NotificationPreferences) error {
	start, end := quietColumns(p.QuietHours)
	tag, err := r.db.Exec(ctx, `
		UPDATE notification_preferences
		SET email_enabled = $2, in_app_enabled = $3, push_enabled = $4, sms_enabled = $5,
			quiet_hours_start = $6, quiet_hours_end = $7, updated_at = $8
		WHERE user_id = $1`,
		p.UserID, p.EmailEnabled, p.InAppEnabled, p.PushEnabled, p.SMSEnabled, start, end, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

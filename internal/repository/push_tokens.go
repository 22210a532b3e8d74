package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tenantcast.dev/tenantcast/internal/domain"
)

const tokenColumns = `id, tenant_id, user_id, token, device_type, device_info, is_active, last_used_at, created_at, updated_at`

// PushTokenRepository stores device tokens. Inactive rows are kept.
type PushTokenRepository struct {
	db DBTX
}

// NewPushTokenRepository creates a repository on db.
func NewPushTokenRepository(db DBTX) *PushTokenRepository {
	return &PushTokenRepository{db: db}
}

func scanToken(row pgx.Row) (*domain.PushToken, error) {
	var t domain.PushToken
	var device string
	if err := row.Scan(&t.ID, &t.TenantID, &t.UserID, &t.Token, &device, &t.DeviceInfo,
		&t.IsActive, &t.LastUsedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.DeviceType = domain.DeviceType(device)
	return &t, nil
}

func (r *PushTokenRepository) GetByToken(ctx context.Context, token string) (*domain.PushToken, error) {
	t, err := scanToken(r.db.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM push_notification_tokens WHERE token = $1`, token))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (r *PushTokenRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.PushToken, error) {
	return r.list(ctx, `SELECT `+tokenColumns+`
		FROM push_notification_tokens WHERE user_id = $1 AND is_active ORDER BY id`, userID)
}

func (r *PushTokenRepository) ListActiveByTenant(ctx context.Context, tenantID string) ([]*domain.PushToken, error) {
	return r.list(ctx, `SELECT `+tokenColumns+`
		FROM push_notification_tokens WHERE tenant_id = $1 AND is_active ORDER BY id`, tenantID)
}

func (r *PushTokenRepository) list(ctx context.Context, query string, arg string) ([]*domain.PushToken, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list push tokens: %w", err)
	}
	defer rows.Close()

	var out []*domain.PushToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan push token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PushTokenRepository) CountActiveByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM push_notification_tokens WHERE user_id = $1 AND is_active`, userID).Scan(&n)
	return n, err
}

// Add inserts a token. A duplicate token value yields domain.ErrAlreadyExists.
func (r *PushTokenRepository) Add(ctx context.Context, t *domain.PushToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO push_notification_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.TenantID, t.UserID, t.Token, string(t.DeviceType), t.DeviceInfo,
		t.IsActive, t.LastUsedAt, t.CreatedAt, t.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert push token: %w", err)
	}
	return nil
}

func (r *PushTokenRepository) Update(ctx context.Context, t *domain.PushToken) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE push_notification_tokens
		SET tenant_id = $2, user_id = $3, device_type = $4, device_info = $5,
			is_active = $6, last_used_at = $7, updated_at = $8
		WHERE token = $1`,
		t.Token, t.TenantID, t.UserID, string(t.DeviceType), t.DeviceInfo, t.IsActive, t.LastUsedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update push token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate reports false when the token is unknown or already inactive.
func (r *PushTokenRepository) Deactivate(ctx context.Context, token string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE push_notification_tokens SET is_active = FALSE, updated_at = $2 WHERE token = $1 AND is_active`,
		token, at.UTC())
	if err != nil {
		return false, fmt.Errorf("deactivate push token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Touch bumps last_used_at of the given tokens.
func (r *PushTokenRepository) Touch(ctx context.Context, tokens []string, at time.Time) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE push_notification_tokens SET last_used_at = $2 WHERE token = ANY($1)`, tokens, at.UTC())
	if err != nil {
		return fmt.Errorf("touch push tokens: %w", err)
	}
	return nil
}

// DeactivateStale deactivates active tokens unused since cutoff.
func (r *PushTokenRepository) DeactivateStale(ctx context.Context, cutoff, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE push_notification_tokens SET is_active = FALSE, updated_at = $2
		WHERE is_active AND last_used_at < $1`, cutoff.UTC(), at.UTC())
	if err != nil {
		return 0, fmt.Errorf("deactivate stale push tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

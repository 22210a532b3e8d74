package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tenantcast.dev/tenantcast/internal/domain"
)

const notificationColumns = `id, tenant_id, user_id, title, message, type, action_url, is_read, created_at, read_at`

// NotificationRepository stores in-app notifications.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a repository on db.
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func scanNotification(row pgx.Row) (*domain.UserNotification, error) {
	var n domain.UserNotification
	var typ string
	if err := row.Scan(&n.ID, &n.TenantID, &n.UserID, &n.Title, &n.Message, &typ,
		&n.ActionURL, &n.IsRead, &n.CreatedAt, &n.ReadAt); err != nil {
		return nil, err
	}
	n.Type = domain.NotificationType(typ)
	return &n, nil
}

func (r *NotificationRepository) Add(ctx context.Context, n *domain.UserNotification) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		n.ID, n.TenantID, n.UserID, n.Title, n.Message, string(n.Type),
		n.ActionURL, n.IsRead, n.CreatedAt, n.ReadAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*domain.UserNotification, error) {
	n, err := scanNotification(r.db.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM user_notifications WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int, unreadOnly bool) ([]*domain.UserNotification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM user_notifications
		WHERE user_id = $1 AND ($2::boolean = FALSE OR NOT is_read)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []*domain.UserNotification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM user_notifications WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM user_notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&n)
	return n, err
}

// MarkRead reports false when the notification was already read and
// ErrNotFound when it does not exist.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_notifications SET is_read = TRUE, read_at = $2 WHERE id = $1 AND NOT is_read`,
		id, at.UTC())
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_notifications SET is_read = TRUE, read_at = $2 WHERE user_id = $1 AND NOT is_read`,
		userID, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Package repository implements the notification, preferences, push token
// conversation membership and audit stores on PostgreSQL through pgx.
package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tenantcast.dev/tenantcast/internal/conversation"
	"tenantcast.dev/tenantcast/internal/domain"
	"tenantcast.dev/tenantcast/internal/governance/audit"
	"tenantcast.dev/tenantcast/internal/notification"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned for missing rows.
var ErrNotFound = domain.ErrNotFound

const uniqueViolation = "23505"

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var (
	_ notification.NotificationStore = (*NotificationRepository)(nil)
	_ notification.PreferencesStore  = (*PreferencesRepository)(nil)
	_ notification.PushTokenStore    = (*PushTokenRepository)(nil)
	_ conversation.MembershipStore   = (*ConversationRepository)(nil)
	_ audit.Store                    = (*AuditRepository)(nil)
)

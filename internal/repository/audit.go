package repository

import (
	"context"
	"fmt"

	"tenantcast.dev/tenantcast/internal/governance/audit"
)

// AuditRepository appends audit records. There is no update or delete.
type AuditRepository struct {
	db DBTX
}

// NewAuditRepository creates a repository on db.
func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Append(ctx context.Context, rec *audit.Record) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_logs (id, action, resource_type, resource_id, tenant_id, actor, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.Action, rec.ResourceType, rec.ResourceID, rec.TenantID, rec.Actor, rec.Details, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit record %s: %w", rec.ID, err)
	}
	return nil
}

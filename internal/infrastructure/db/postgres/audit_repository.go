package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
)

// AuditRepository is the primary audit sink. audit_log rejects updates and
// deletes at the database level.
type AuditRepository struct {
	db *sql.DB
}

var (
	_ ports.AuditSink   = (*AuditRepository)(nil)
	_ ports.AuditReader = (*AuditRepository)(nil)
)

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append is idempotent on the entry id so that outbox replays of an entry
// that did land are harmless.
func (r *AuditRepository) Append(ctx context.Context, e *domain.AuditEntry) error {
	var changes any
	if len(e.Changes) > 0 {
		changes = []byte(e.Changes)
	}
	_, err := r.db.ExecContext(ctx, `
		insert into audit_log (id, actor_id, actor_role, tenant_id, action, entity, entity_id, changes, ip, user_agent, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		on conflict (id) do nothing`,
		e.ID, e.ActorID, string(e.ActorRole), nullString(e.TenantID), e.Action, e.Entity,
		nullString(e.EntityID), changes, nullString(e.IP), nullString(e.UserAgent), e.Timestamp)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) List(ctx context.Context, scope domain.TenantScope, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	var q filter
	q.scope(scope)
	if f.Entity != "" {
		q.add("entity = $%d", f.Entity)
	}
	if f.EntityID != "" {
		q.add("entity_id = $%d", f.EntityID)
	}
	if f.ActorID != "" {
		q.add("actor_id = $%d", f.ActorID)
	}
	query := `select id, actor_id, actor_role, tenant_id, action, entity, entity_id, changes, ip, user_agent, created_at
		from audit_log` + q.where() + ` order by created_at desc, id desc` + q.page(f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, q.args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e                           domain.AuditEntry
			role                        string
			tenant, entityID, ip, agent sql.NullString
			changes                     []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &role, &tenant, &e.Action, &e.Entity, &entityID, &changes, &ip, &agent, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ActorRole = domain.Role(role)
		e.TenantID, e.EntityID, e.IP, e.UserAgent = tenant.String, entityID.String, ip.String, agent.String
		if len(changes) > 0 {
			e.Changes = json.RawMessage(changes)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

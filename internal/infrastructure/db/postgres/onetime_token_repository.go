package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
)

// OneTimeTokenRepository stores password reset and invitation tokens.
type OneTimeTokenRepository struct {
	db *sql.DB
}

var _ ports.OneTimeTokenRepository = (*OneTimeTokenRepository)(nil)

func NewOneTimeTokenRepository(db *sql.DB) *OneTimeTokenRepository {
	return &OneTimeTokenRepository{db: db}
}

func (r *OneTimeTokenRepository) Create(ctx context.Context, t *domain.OneTimeToken) error {
	_, err := r.db.ExecContext(ctx, `
		insert into one_time_tokens
			(id, token_hash, purpose, principal_id, principal_kind, email, tenant_id, role, name, created_by, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.TokenHash, string(t.Purpose),
		nullString(t.PrincipalID), nullString(string(t.PrincipalKind)),
		nullString(t.Email), nullString(t.TenantID), nullString(string(t.Role)), nullString(t.Name),
		nullString(t.CreatedBy), t.ExpiresAt, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert one-time token: %w", err)
	}
	return nil
}

// ConsumePasswordReset marks the token used, replaces the password, clears
// the lockout and deletes every session of the principal, all or nothing.
func (r *OneTimeTokenRepository) ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (domain.PrincipalKind, string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = tx.Rollback() }()

	var kind, id sql.NullString
	err = tx.QueryRowContext(ctx, `
		update one_time_tokens
		set used = true, used_at = $2
		where token_hash = $1 and purpose = $3 and used = false and expires_at > $2
		returning principal_kind, principal_id`,
		tokenHash, now, string(domain.PurposePasswordReset)).Scan(&kind, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", domain.ErrInvalidOneTimeToken
	}
	if err != nil {
		return "", "", fmt.Errorf("consume reset token: %w", err)
	}

	pk := domain.PrincipalKind(kind.String)
	if err := setPassword(ctx, tx, pk, id.String, passwordHash); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", "", domain.ErrInvalidOneTimeToken
		}
		return "", "", err
	}
	if _, err := tx.ExecContext(ctx, `delete from sessions where principal_kind = $1 and principal_id = $2`, kind.String, id.String); err != nil {
		return "", "", fmt.Errorf("revoke sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", "", err
	}
	return pk, id.String, nil
}

// ConsumeInvitation marks the invitation used and inserts the staff account
// with the invited email, tenant and role. A duplicate email rolls back and
// leaves the invitation unused.
func (r *OneTimeTokenRepository) ConsumeInvitation(ctx context.Context, tokenHash string, staff *domain.StaffPrincipal, now time.Time) (*domain.StaffPrincipal, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var email, tenantID, role, name sql.NullString
	err = tx.QueryRowContext(ctx, `
		update one_time_tokens
		set used = true, used_at = $2
		where token_hash = $1 and purpose = $3 and used = false and expires_at > $2
		returning email, tenant_id, role, name`,
		tokenHash, now, string(domain.PurposeInvitation)).Scan(&email, &tenantID, &role, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInvalidOneTimeToken
	}
	if err != nil {
		return nil, fmt.Errorf("consume invitation: %w", err)
	}

	created := *staff
	created.Email = email.String
	created.TenantID = tenantID.String
	created.Role = domain.Role(role.String)
	if created.Name == "" {
		created.Name = name.String
	}

	_, err = tx.ExecContext(ctx, `
		insert into staff_users (id, tenant_id, role, email, name, password_hash, verified, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		created.ID, nullString(created.TenantID), string(created.Role), created.Email, created.Name,
		created.PasswordHash, created.Verified, created.CreatedAt, created.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("insert invited staff: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &created, nil
}

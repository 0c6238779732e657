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

const (
	staffColumns  = `id, tenant_id, role, email, name, password_hash, verified, failed_login_count, lockout_until, created_at, updated_at`
	portalColumns = `id, tenant_id, patient_id, email, password_hash, active, last_login_at, failed_login_count, lockout_until, created_at`
)

// PrincipalRepository stores staff and portal accounts.
type PrincipalRepository struct {
	db *sql.DB
}

var (
	_ ports.CredentialRepository = (*PrincipalRepository)(nil)
	_ ports.StaffRepository      = (*PrincipalRepository)(nil)
)

func NewPrincipalRepository(db *sql.DB) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

func (r *PrincipalRepository) FindStaffByEmail(ctx context.Context, email string) (*domain.StaffPrincipal, error) {
	row := r.db.QueryRowContext(ctx, `select `+staffColumns+` from staff_users where email = $1`, email)
	s, err := scanStaff(row)
	if err != nil {
		return nil, notFound(err, "find staff")
	}
	return s, nil
}

func (r *PrincipalRepository) FindPortalByEmail(ctx context.Context, tenantID, email string) (*domain.PortalPrincipal, error) {
	row := r.db.QueryRowContext(ctx, `select `+portalColumns+` from portal_users where tenant_id = $1 and email = $2`, tenantID, email)
	p, err := scanPortal(row)
	if err != nil {
		return nil, notFound(err, "find portal user")
	}
	return p, nil
}

func (r *PrincipalRepository) FindAccount(ctx context.Context, kind domain.PrincipalKind, id string) (*domain.Account, error) {
	switch kind {
	case domain.KindStaff:
		s, err := scanStaff(r.db.QueryRowContext(ctx, `select `+staffColumns+` from staff_users where id = $1`, id))
		if err != nil {
			return nil, notFound(err, "find staff")
		}
		return &domain.Account{Kind: kind, Staff: s}, nil
	case domain.KindPortal:
		p, err := scanPortal(r.db.QueryRowContext(ctx, `select `+portalColumns+` from portal_users where id = $1`, id))
		if err != nil {
			return nil, notFound(err, "find portal user")
		}
		return &domain.Account{Kind: kind, Portal: p}, nil
	}
	return nil, domain.ErrNotFound
}

func (r *PrincipalRepository) UpdateLoginState(ctx context.Context, kind domain.PrincipalKind, id string, state domain.LoginState, lastLoginAt *time.Time) error {
	var (
		res sql.Result
		err error
	)
	switch kind {
	case domain.KindStaff:
		res, err = r.db.ExecContext(ctx, `
			update staff_users
			set failed_login_count = $2, lockout_until = $3, updated_at = now()
			where id = $1`,
			id, state.FailedLoginCount, nullTime(state.LockoutUntil))
	case domain.KindPortal:
		res, err = r.db.ExecContext(ctx, `
			update portal_users
			set failed_login_count = $2, lockout_until = $3, last_login_at = coalesce($4, last_login_at)
			where id = $1`,
			id, state.FailedLoginCount, nullTime(state.LockoutUntil), nullTime(lastLoginAt))
	default:
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update login state: %w", err)
	}
	return requireRow(res)
}

// ChangePassword stores the hash, clears the lockout and deletes every session
// of the principal in one transaction.
func (r *PrincipalRepository) ChangePassword(ctx context.Context, kind domain.PrincipalKind, id, passwordHash string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := setPassword(ctx, tx, kind, id, passwordHash); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from sessions where principal_kind = $1 and principal_id = $2`, string(kind), id); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return tx.Commit()
}

func (r *PrincipalRepository) List(ctx context.Context, scope domain.TenantScope, f ports.StaffFilter) ([]*domain.StaffPrincipal, error) {
	var q filter
	q.scope(scope)
	if f.Role != "" {
		q.add("role = $%d", string(f.Role))
	}
	query := `select ` + staffColumns + ` from staff_users` + q.where() + ` order by created_at, id` + q.page(f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, q.args...)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	var out []*domain.StaffPrincipal
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, fmt.Errorf("scan staff: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get returns domain.ErrNotFound for rows outside the scope.
func (r *PrincipalRepository) Get(ctx context.Context, scope domain.TenantScope, id string) (*domain.StaffPrincipal, error) {
	var q filter
	q.add("id = $%d", id)
	q.scope(scope)
	s, err := scanStaff(r.db.QueryRowContext(ctx, `select `+staffColumns+` from staff_users`+q.where(), q.args...))
	if err != nil {
		return nil, notFound(err, "get staff")
	}
	return s, nil
}

// UpdateRole never touches super_admin rows.
func (r *PrincipalRepository) UpdateRole(ctx context.Context, scope domain.TenantScope, id string, role domain.Role) (*domain.StaffPrincipal, error) {
	q := filter{args: []any{string(role)}}
	q.add("id = $%d", id)
	q.scope(scope)
	q.conds = append(q.conds, "role <> 'super_admin'")

	query := `update staff_users set role = $1, updated_at = now()` + q.where() + ` returning ` + staffColumns
	s, err := scanStaff(r.db.QueryRowContext(ctx, query, q.args...))
	if err != nil {
		return nil, notFound(err, "update role")
	}
	return s, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setPassword(ctx context.Context, db execer, kind domain.PrincipalKind, id, hash string) error {
	var table string
	switch kind {
	case domain.KindStaff:
		table = "staff_users"
	case domain.KindPortal:
		table = "portal_users"
	default:
		return domain.ErrNotFound
	}
	res, err := db.ExecContext(ctx, `update `+table+`
		set password_hash = $2, failed_login_count = 0, lockout_until = null
		where id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireRow(res)
}

func scanStaff(row rowScanner) (*domain.StaffPrincipal, error) {
	var (
		s       domain.StaffPrincipal
		tenant  sql.NullString
		role    string
		lockout sql.NullTime
	)
	if err := row.Scan(&s.ID, &tenant, &role, &s.Email, &s.Name, &s.PasswordHash, &s.Verified,
		&s.LoginState.FailedLoginCount, &lockout, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.TenantID = tenant.String
	s.Role = domain.Role(role)
	s.LoginState.LockoutUntil = timePtr(lockout)
	return &s, nil
}

func scanPortal(row rowScanner) (*domain.PortalPrincipal, error) {
	var (
		p         domain.PortalPrincipal
		lastLogin sql.NullTime
		lockout   sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.TenantID, &p.LinkedPatientID, &p.Email, &p.PasswordHash, &p.Active,
		&lastLogin, &p.LoginState.FailedLoginCount, &lockout, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.LastLoginAt = timePtr(lastLogin)
	p.LoginState.LockoutUntil = timePtr(lockout)
	return &p, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

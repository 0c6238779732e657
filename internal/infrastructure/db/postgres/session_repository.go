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

// SessionRepository stores refresh sessions keyed by token hash.
type SessionRepository struct {
	db *sql.DB
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	return insertSession(ctx, r.db, s)
}

// Rotate deletes the presented session and inserts its successor in one
// transaction. The delete takes the row lock: a concurrent rotation of the
// same hash waits, then finds no row and gets ErrInvalidRefreshToken.
func (r *SessionRepository) Rotate(ctx context.Context, oldHash string, next *domain.Session, now time.Time) (*domain.Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		old  domain.Session
		kind string
	)
	err = tx.QueryRowContext(ctx, `
		delete from sessions
		where token_hash = $1
		returning id, principal_id, principal_kind, issued_at, expires_at`, oldHash).
		Scan(&old.ID, &old.PrincipalID, &kind, &old.IssuedAt, &old.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("consume session: %w", err)
	}
	old.TokenHash = oldHash
	old.PrincipalKind = domain.PrincipalKind(kind)

	if old.ExpiredAt(now) {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return nil, domain.ErrRefreshTokenExpired
	}

	next.PrincipalID = old.PrincipalID
	next.PrincipalKind = old.PrincipalKind
	if err := insertSession(ctx, tx, next); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &old, nil
}

func (r *SessionRepository) DeleteByHash(ctx context.Context, hash string) error {
	if _, err := r.db.ExecContext(ctx, `delete from sessions where token_hash = $1`, hash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteByPrincipal(ctx context.Context, kind domain.PrincipalKind, principalID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from sessions where principal_kind = $1 and principal_id = $2`, string(kind), principalID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	return res.RowsAffected()
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from sessions where expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func insertSession(ctx context.Context, db execer, s *domain.Session) error {
	_, err := db.ExecContext(ctx, `
		insert into sessions (id, principal_id, principal_kind, token_hash, issued_at, expires_at)
		values ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.PrincipalID, string(s.PrincipalKind), s.TokenHash, s.IssuedAt, s.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

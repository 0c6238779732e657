package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/medora/clinic-core/internal/core/domain"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxOpenConns = 20

	pgErrUniqueViolation = "23505"
)

// Config captures the settings required to open the relational store.
type Config struct {
	DSN          string
	MaxOpenConns int
	Timeout      time.Duration
}

// Connect opens a pgx-backed *sql.DB, tunes the pool and verifies
// connectivity with a ping.
func Connect(ctx context.Context, cfg Config) (*sql.DB, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// filter accumulates "and"-joined conditions with positional arguments.
type filter struct {
	conds []string
	args  []any
}

// add appends cond, which must contain one %d for the placeholder index.
func (f *filter) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, fmt.Sprintf(cond, len(f.args)))
}

// scope restricts the query to the scope's tenant. An invalid scope compares
// against the empty tenant id, which no tenant-owned row carries.
func (f *filter) scope(s domain.TenantScope) {
	if s.Unrestricted() {
		return
	}
	f.add("tenant_id = $%d", s.TenantID())
}

func (f *filter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " where " + strings.Join(f.conds, " and ")
}

// page appends limit/offset placeholders.
func (f *filter) page(limit, offset int) string {
	f.args = append(f.args, limit, offset)
	return fmt.Sprintf(" limit $%d offset $%d", len(f.args)-1, len(f.args))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

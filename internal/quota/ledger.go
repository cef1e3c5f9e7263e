package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ledger errors. Storage faults are returned wrapped so callers can
// tell an operational failure apart from a legitimate denial.
var (
	ErrUserNotFound  = errors.New("no quota record for user")
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// Ledger is the only component allowed to read or mutate a user's
// usage counter. CheckAndIncrement returns nil when the request is
// allowed (and the counter was incremented unless the tier is
// unlimited), ErrUserNotFound or ErrQuotaExceeded on denial, and any
// other error on storage failure.
type Ledger interface {
	CheckAndIncrement(ctx context.Context, userID string, maxQuota int64) error
}

// PgxIface is the subset of pgxpool.Pool the ledger needs; pgxmock
// implements it for tests.
type PgxIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger enforces quota directly against the users table. The
// check and the increment are a single conditional update, so two
// concurrent requests can never push the counter past the ceiling.
type PostgresLedger struct {
	db PgxIface
}

// NewPostgresLedger creates a Postgres-backed quota ledger
func NewPostgresLedger(db PgxIface) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// CheckAndIncrement allows the request when usage is still below
// maxQuota and advances the counter in the same statement. A zero
// ceiling means the unlimited tier: always allowed, nothing mutated.
func (l *PostgresLedger) CheckAndIncrement(ctx context.Context, userID string, maxQuota int64) error {
	if maxQuota == 0 {
		return nil
	}

	id, err := parseUserID(userID)
	if err != nil {
		return ErrUserNotFound
	}

	tag, err := l.db.Exec(ctx, `
		UPDATE users
		SET api_usage_quota = api_usage_quota + 1, updated_on = NOW()
		WHERE user_id = $1 AND api_usage_quota < $2
	`, id, maxQuota)
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows: either the user does not exist or the ceiling is hit.
	var exists bool
	err = l.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check user existence: %w", err)
	}
	if !exists {
		return ErrUserNotFound
	}
	return ErrQuotaExceeded
}

func parseUserID(userID string) (int64, error) {
	if userID == "" {
		return 0, ErrUserNotFound
	}
	return strconv.ParseInt(userID, 10, 64)
}

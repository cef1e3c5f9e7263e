package quota

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

const (
	updateUsagePattern = `UPDATE users\s+SET api_usage_quota = api_usage_quota \+ 1, updated_on = NOW\(\)\s+WHERE user_id = \$1 AND api_usage_quota < \$2`
	existsPattern      = `SELECT EXISTS\(SELECT 1 FROM users WHERE user_id = \$1\)`
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return mock
}

func TestPostgresLedger_UnlimitedTierSkipsStorage(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	ledger := NewPostgresLedger(mock)

	// maxQuota 0 means unlimited: no statement may reach the database.
	err := ledger.CheckAndIncrement(context.Background(), "42", 0)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_AllowsBelowCeiling(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	ledger := NewPostgresLedger(mock)

	mock.ExpectExec(updateUsagePattern).
		WithArgs(int64(42), int64(100)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := ledger.CheckAndIncrement(context.Background(), "42", 100)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_DeniesAtCeiling(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	ledger := NewPostgresLedger(mock)

	// The conditional update matches no row once usage has reached
	// the ceiling; the follow-up existence check tells denial apart
	// from an unknown user.
	mock.ExpectExec(updateUsagePattern).
		WithArgs(int64(42), int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(existsPattern).
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	err := ledger.CheckAndIncrement(context.Background(), "42", 2)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_UnknownUser(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	ledger := NewPostgresLedger(mock)

	mock.ExpectExec(updateUsagePattern).
		WithArgs(int64(999), int64(10)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(existsPattern).
		WithArgs(int64(999)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	err := ledger.CheckAndIncrement(context.Background(), "999", 10)
	require.ErrorIs(t, err, ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_NonNumericSubject(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	ledger := NewPostgresLedger(mock)

	err := ledger.CheckAndIncrement(context.Background(), "not-a-number", 10)
	require.ErrorIs(t, err, ErrUserNotFound)

	err = ledger.CheckAndIncrement(context.Background(), "", 10)
	require.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_StorageFailure(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	ledger := NewPostgresLedger(mock)

	storageErr := errors.New("connection refused")
	mock.ExpectExec(updateUsagePattern).
		WithArgs(int64(42), int64(10)).
		WillReturnError(storageErr)

	err := ledger.CheckAndIncrement(context.Background(), "42", 10)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrQuotaExceeded)
	require.NotErrorIs(t, err, ErrUserNotFound)
	require.ErrorIs(t, err, storageErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresLedger_CeilingBoundary walks a user from zero usage to
// the ceiling: a ceiling of n admits exactly n requests and denies the
// n+1th.
func TestPostgresLedger_CeilingBoundary(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	ledger := NewPostgresLedger(mock)

	const ceiling = int64(3)

	for i := int64(0); i < ceiling; i++ {
		mock.ExpectExec(updateUsagePattern).
			WithArgs(int64(42), ceiling).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	}
	mock.ExpectExec(updateUsagePattern).
		WithArgs(int64(42), ceiling).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(existsPattern).
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	for i := int64(0); i < ceiling; i++ {
		require.NoError(t, ledger.CheckAndIncrement(context.Background(), "42", ceiling))
	}
	err := ledger.CheckAndIncrement(context.Background(), "42", ceiling)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/inkwell-io/inkwell/internal/cache"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// Lua script for atomic check-and-increment against a cached counter.
// Returns: new usage count, -1 if the key is missing, -2 if the
// counter has reached the ceiling.
const luaIncrementIfBelow = `
local key = KEYS[1]
local ceiling = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
    return -1
end

current = tonumber(current)
if current >= ceiling then
    return -2
end

redis.call('INCR', key)
return current + 1
`

// RedisLedger enforces quota against a Redis counter with write-behind
// sync to Postgres. The Lua script keeps the check and the increment in
// one round trip; Postgres stays the system of record and fills the
// cache on miss.
type RedisLedger struct {
	redis    *cache.Redis
	fallback *PostgresLedger
	db       PgxIface
}

// NewRedisLedger creates a Redis-accelerated quota ledger backed by
// the given Postgres pool.
func NewRedisLedger(r *cache.Redis, db PgxIface) *RedisLedger {
	return &RedisLedger{
		redis:    r,
		fallback: NewPostgresLedger(db),
		db:       db,
	}
}

// CheckAndIncrement checks and advances the cached counter atomically.
// On a cache miss the counter is filled from Postgres and the check is
// retried once; if Redis is unreachable the Postgres ledger decides.
func (l *RedisLedger) CheckAndIncrement(ctx context.Context, userID string, maxQuota int64) error {
	if maxQuota == 0 {
		return nil
	}

	key := usageKey(userID)
	for attempt := 0; attempt < 2; attempt++ {
		result, err := l.redis.Client.Eval(ctx, luaIncrementIfBelow, []string{key}, maxQuota).Int64()
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Redis quota check failed, falling back to Postgres")
			return l.fallback.CheckAndIncrement(ctx, userID, maxQuota)
		}

		switch {
		case result == -2:
			return ErrQuotaExceeded
		case result == -1:
			if err := l.fillFromDB(ctx, userID); err != nil {
				return err
			}
			continue
		default:
			// Write-behind: the cached counter already advanced, persist
			// the increment without holding up the request.
			go l.syncToDB(context.WithoutCancel(ctx), userID)
			return nil
		}
	}

	return fmt.Errorf("quota check did not settle for user %s", userID)
}

// fillFromDB seeds the cached counter from the users table.
func (l *RedisLedger) fillFromDB(ctx context.Context, userID string) error {
	id, err := parseUserID(userID)
	if err != nil {
		return ErrUserNotFound
	}

	var usage int64
	err = l.db.QueryRow(ctx, `SELECT api_usage_quota FROM users WHERE user_id = $1`, id).Scan(&usage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to load usage from database: %w", err)
	}

	// SetNX so a concurrent fill never clobbers increments that landed
	// between our read and this write.
	if err := l.redis.Client.SetNX(ctx, usageKey(userID), usage, 0).Err(); err != nil {
		return fmt.Errorf("failed to seed usage cache: %w", err)
	}
	return nil
}

// syncToDB persists one increment to the system of record.
func (l *RedisLedger) syncToDB(ctx context.Context, userID string) {
	id, err := parseUserID(userID)
	if err != nil {
		return
	}

	_, err = l.db.Exec(ctx, `
		UPDATE users
		SET api_usage_quota = api_usage_quota + 1, updated_on = NOW()
		WHERE user_id = $1
	`, id)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to sync usage to database")
	}
}

func usageKey(userID string) string {
	return fmt.Sprintf("quota:usage:%s", userID)
}

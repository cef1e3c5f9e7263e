package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/inkwell-io/inkwell/internal/models"
	"github.com/jackc/pgx/v5"
)

// ErrUserNotFound is returned when no user row matches the id.
var ErrUserNotFound = errors.New("user not found")

// PgxIface is the subset of pgxpool.Pool the service needs.
type PgxIface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service handles user lookups. Usage counters are read-only here;
// only the quota ledger mutates them.
type Service struct {
	db PgxIface
}

// NewService creates a new users service
func NewService(db PgxIface) *Service {
	return &Service{db: db}
}

// List returns a page of users with their usage counters. Limit
// defaults to 10, offset to 0.
func (s *Service) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
		SELECT user_id, user_name, user_email, api_usage_quota, created_on, updated_on
		FROM users
		ORDER BY user_id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var items []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.APIUsageQuota, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}

	return items, nil
}

// Get retrieves a single user by id
func (s *Service) Get(ctx context.Context, userID int64) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx, `
		SELECT user_id, user_name, user_email, api_usage_quota, created_on, updated_on
		FROM users WHERE user_id = $1
	`, userID).Scan(&u.ID, &u.Name, &u.Email, &u.APIUsageQuota, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &u, nil
}

package posts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/inkwell-io/inkwell/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Service errors
var (
	ErrPostNotFound = errors.New("post not found")
	ErrInvalidTitle = errors.New("post title must be between 3 and 255 characters")
	ErrInvalidBody  = errors.New("post content is required")
	ErrInvalidUser  = errors.New("post user id must be a positive integer")
)

// PgxIface is the subset of pgxpool.Pool the service needs; pgxmock
// implements it for tests.
type PgxIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service handles blog post CRUD operations
type Service struct {
	db PgxIface
}

// NewService creates a new posts service
func NewService(db PgxIface) *Service {
	return &Service{db: db}
}

// CreateRequest carries the fields for a new post
type CreateRequest struct {
	UserID int64  `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// UpdateRequest carries a partial update; nil fields are left untouched
type UpdateRequest struct {
	Title *string `json:"title"`
	Body  *string `json:"body"`
}

// List returns a page of posts ordered by id. Limit defaults to 10,
// offset to 0.
func (s *Service) List(ctx context.Context, limit, offset int) ([]models.Post, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
		SELECT pid, post_uuid, user_id, post_title, post_body, created_on, updated_on
		FROM posts
		ORDER BY pid
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var items []models.Post
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.UUID, &p.UserID, &p.Title, &p.Body, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read posts: %w", err)
	}

	return items, nil
}

// Get retrieves a single post by id
func (s *Service) Get(ctx context.Context, postID int64) (*models.Post, error) {
	var p models.Post
	err := s.db.QueryRow(ctx, `
		SELECT pid, post_uuid, user_id, post_title, post_body, created_on, updated_on
		FROM posts WHERE pid = $1
	`, postID).Scan(&p.ID, &p.UUID, &p.UserID, &p.Title, &p.Body, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	return &p, nil
}

// Create inserts a new post and returns it with its generated id and
// uuid.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*models.Post, error) {
	if err := validateTitle(req.Title); err != nil {
		return nil, err
	}
	if req.Body == "" {
		return nil, ErrInvalidBody
	}
	if req.UserID <= 0 {
		return nil, ErrInvalidUser
	}

	postUUID := uuid.New()
	var p models.Post
	err := s.db.QueryRow(ctx, `
		INSERT INTO posts (post_uuid, user_id, post_title, post_body)
		VALUES ($1, $2, $3, $4)
		RETURNING pid, post_uuid, user_id, post_title, post_body, created_on, updated_on
	`, postUUID, req.UserID, req.Title, req.Body).Scan(
		&p.ID, &p.UUID, &p.UserID, &p.Title, &p.Body, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	return &p, nil
}

// Update applies a partial update to a post. The update is scoped to
// the owning user: a post id that exists but belongs to someone else
// is reported the same way as a missing post.
func (s *Service) Update(ctx context.Context, postID, userID int64, req *UpdateRequest) error {
	if req.Title == nil && req.Body == nil {
		return nil
	}
	if req.Title != nil {
		if err := validateTitle(*req.Title); err != nil {
			return err
		}
	}
	if req.Body != nil && *req.Body == "" {
		return ErrInvalidBody
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE posts
		SET post_title = COALESCE($1, post_title),
		    post_body = COALESCE($2, post_body),
		    updated_on = NOW()
		WHERE pid = $3 AND user_id = $4
	`, req.Title, req.Body, postID, userID)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPostNotFound
	}

	return nil
}

// Delete removes a post, scoped to the owning user
func (s *Service) Delete(ctx context.Context, postID, userID int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM posts WHERE pid = $1 AND user_id = $2`, postID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}

func validateTitle(title string) error {
	if len(title) < 3 || len(title) > 255 {
		return ErrInvalidTitle
	}
	return nil
}

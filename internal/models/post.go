package models

import (
	"time"

	"github.com/google/uuid"
)

// Post represents a blog post
type Post struct {
	ID        int64     `json:"id" db:"pid"`
	UUID      uuid.UUID `json:"uuid" db:"post_uuid"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Title     string    `json:"title" db:"post_title"`
	Body      string    `json:"body" db:"post_body"`
	CreatedAt time.Time `json:"created_at" db:"created_on"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_on"`
}

package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type seedUser struct {
	name  string
	email string
}

type seedPost struct {
	userID int64
	title  string
	body   string
}

var seedUsers = []seedUser{
	{"Peter", "peter@example.com"},
	{"Alice", "alice@example.com"},
	{"John", "john@example.com"},
	{"Sarah", "sarah@example.com"},
	{"Michael", "michael@example.com"},
	{"Emily", "emily@example.com"},
	{"James", "james@example.com"},
	{"Olivia", "olivia@example.com"},
	{"Robert", "robert@example.com"},
	{"Linda", "linda@example.com"},
}

var seedPosts = []seedPost{
	{1, "Getting Started with Inkwell", "Learn the basics of setting up and running your first project with the Inkwell blog service."},
	{2, "Designing REST Endpoints", "How the post endpoints are laid out, and why list, read, create, update and delete each get their own route."},
	{3, "Guarding Requests with Middleware", "The auth gate validates a bearer token and charges the caller's quota before any handler runs."},
	{4, "Issuing API Keys from the CLI", "Step-by-step guide to generating a signed API key with an embedded usage ceiling."},
	{5, "Running Inkwell in Production", "Best practices for configuration, migrations and monitoring when deploying the service."},
}

// Seed loads the demo data set. It is a no-op when the users table
// already has rows, so it is safe to run repeatedly.
func Seed(ctx context.Context, pool *pgxpool.Pool) error {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		log.Info().Int("users", count).Msg("Database already seeded, skipping")
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, u := range seedUsers {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (user_name, user_email, api_usage_quota)
			VALUES ($1, $2, 0)
		`, u.name, u.email)
		if err != nil {
			return fmt.Errorf("failed to seed user %s: %w", u.name, err)
		}
	}

	for _, p := range seedPosts {
		_, err := tx.Exec(ctx, `
			INSERT INTO posts (post_uuid, user_id, post_title, post_body)
			VALUES ($1, $2, $3, $4)
		`, uuid.New(), p.userID, p.title, p.body)
		if err != nil {
			return fmt.Errorf("failed to seed post %q: %w", p.title, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit seed data: %w", err)
	}

	log.Info().
		Int("users", len(seedUsers)).
		Int("posts", len(seedPosts)).
		Msg("Database seeded")
	return nil
}

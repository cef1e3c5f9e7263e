package models

import "time"

// User represents an API user with a cumulative usage counter. The
// counter is only ever mutated by the quota ledger.
type User struct {
	ID            int64     `json:"id" db:"user_id"`
	Name          string    `json:"name" db:"user_name"`
	Email         string    `json:"email" db:"user_email"`
	APIUsageQuota int64     `json:"api_usage_quota" db:"api_usage_quota"`
	CreatedAt     time.Time `json:"created_at" db:"created_on"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_on"`
}

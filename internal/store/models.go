package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	FullName       *string   `json:"full_name"` // Nullable
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"` // Do not expose this in JSON responses
	Disabled       bool      `json:"disabled"`
	CreatedAt      time.Time `json:"created_at"`
}

// Summary is one persisted summarization result. Rows are never updated.
type Summary struct {
	ID           int64           `json:"id"`
	UserID       string          `json:"user_id"`
	Filename     string          `json:"filename"`
	OriginalText string          `json:"original_text"`
	SummaryText  string          `json:"summary"`
	Metadata     json.RawMessage `json:"metadata"` // Stored as JSON text
	CreatedAt    time.Time       `json:"created_at"`
}

type NewSummary struct {
	UserID       string
	Filename     string
	OriginalText string
	SummaryText  string
	Metadata     json.RawMessage
}

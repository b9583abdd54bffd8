package storage

import (
	"errors"
	"time"

	"hwbot/internal/datex"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
	ErrNotFound = errors.New("not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "file": dependency-free file backend (jsonl journal + snapshot)
//
// If Driver is "none", Open returns ErrDisabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Notice is a homework assignment. It is never mutated after creation.
type Notice struct {
	ID          int64      `json:"id"`
	SubjectID   string     `json:"subject_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     datex.Date `json:"due_date"`
	CreatedBy   *int64     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewNotice carries the operator input for InsertNotice.
type NewNotice struct {
	SubjectID   string
	Title       string
	Description string
	DueDate     datex.Date
	CreatedBy   *int64
}

type Subscriber struct {
	UserID     int64     `json:"user_id"`
	FirstName  string    `json:"first_name"`
	Username   string    `json:"username,omitempty"`
	Subscribed bool      `json:"subscribed"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditEntry records an operator action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	ID            string    `json:"id"`
	At            time.Time `json:"at"`
	ActorID       int64     `json:"actor_id"`
	ActorUsername string    `json:"actor_username,omitempty"`
	ChatID        int64     `json:"chat_id,omitempty"`
	Action        string    `json:"action"`
	Target        string    `json:"target,omitempty"`
	OK            int       `json:"ok,omitempty"`
	Fail          int       `json:"fail,omitempty"`
	Error         string    `json:"error,omitempty"`
	TookMS        int64     `json:"took_ms,omitempty"`
	MetaJSON      string    `json:"meta,omitempty"`
}

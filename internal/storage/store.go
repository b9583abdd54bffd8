package storage

import (
	"context"
	"errors"
	"strings"

	"hwbot/internal/datex"
	logx "hwbot/pkg/logx"
)

// Store is the persistence port used by the conversation, broadcast and
// retention layers.
type Store interface {
	InsertNotice(ctx context.Context, n NewNotice) (Notice, error)
	ListAll(ctx context.Context, limit int) ([]Notice, error)
	ListByDate(ctx context.Context, due datex.Date) ([]Notice, error)
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]Notice, error)
	// DeleteDueBefore removes notices whose due date is strictly before cutoff.
	DeleteDueBefore(ctx context.Context, cutoff datex.Date) (int, error)

	// UpsertSubscriber creates or refreshes a subscriber and marks it subscribed.
	UpsertSubscriber(ctx context.Context, userID int64, firstName, username string) error
	SetSubscribed(ctx context.Context, userID int64, subscribed bool) error
	ListSubscribedIDs(ctx context.Context) ([]int64, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

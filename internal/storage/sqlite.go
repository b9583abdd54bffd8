package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"hwbot/internal/datex"
	logx "hwbot/pkg/logx"
)

type sqliteStore struct {
	db  *sqlx.DB
	log logx.Logger
	now func() time.Time
}

type noticeRow struct {
	ID          int64         `db:"id"`
	SubjectID   string        `db:"subject_id"`
	Title       string        `db:"title"`
	Description string        `db:"description"`
	DueDate     string        `db:"due_date"`
	CreatedBy   sql.NullInt64 `db:"created_by"`
	CreatedAt   string        `db:"created_at"`
}

func (r noticeRow) notice() (Notice, error) {
	due, err := datex.FromStorage(r.DueDate)
	if err != nil {
		return Notice{}, fmt.Errorf("notice %d: bad due_date %q: %w", r.ID, r.DueDate, err)
	}
	n := Notice{
		ID:          r.ID,
		SubjectID:   r.SubjectID,
		Title:       r.Title,
		Description: r.Description,
		DueDate:     due,
	}
	if r.CreatedBy.Valid {
		v := r.CreatedBy.Int64
		n.CreatedBy = &v
	}
	if t, err := time.Parse(time.RFC3339Nano, r.CreatedAt); err == nil {
		n.CreatedAt = t
	}
	return n, nil
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection: serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if cfg.BusyTimeout > 0 {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds())); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setting busy_timeout: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log, now: time.Now}
	if err := st.runMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) runMigrations() error {
	current := 0
	var tables int
	if err := s.db.Get(&tables, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'"); err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tables > 0 {
		if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// inTx runs fn in its own transaction and commits it.
func (s *sqliteStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) InsertNotice(ctx context.Context, in NewNotice) (Notice, error) {
	n := Notice{
		SubjectID:   in.SubjectID,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   s.now().UTC(),
	}
	var createdBy any
	if in.CreatedBy != nil {
		createdBy = *in.CreatedBy
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO notices (subject_id, title, description, due_date, created_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			n.SubjectID, n.Title, n.Description, datex.ToStorage(n.DueDate), createdBy,
			n.CreatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return err
		}
		n.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return Notice{}, fmt.Errorf("inserting notice: %w", err)
	}
	return n, nil
}

func (s *sqliteStore) notices(ctx context.Context, q NoticeQuery) ([]Notice, error) {
	var (
		conds []string
		args  []any
	)
	if q.SubjectID != "" {
		conds = append(conds, "subject_id = ?")
		args = append(args, q.SubjectID)
	}
	if q.Due != nil {
		conds = append(conds, "due_date = ?")
		args = append(args, datex.ToStorage(*q.Due))
	}

	query := "SELECT id, subject_id, title, description, due_date, created_by, created_at FROM notices"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " " + q.order().sql()
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	var rows []noticeRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying notices: %w", err)
	}
	out := make([]Notice, 0, len(rows))
	for _, r := range rows {
		n, err := r.notice()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *sqliteStore) ListAll(ctx context.Context, limit int) ([]Notice, error) {
	return s.notices(ctx, NoticeQuery{Limit: listLimit(limit)})
}

func (s *sqliteStore) ListByDate(ctx context.Context, due datex.Date) ([]Notice, error) {
	return s.notices(ctx, NoticeQuery{Due: &due})
}

func (s *sqliteStore) ListBySubject(ctx context.Context, subjectID string, limit int) ([]Notice, error) {
	return s.notices(ctx, NoticeQuery{SubjectID: subjectID, Limit: listLimit(limit)})
}

func (s *sqliteStore) DeleteDueBefore(ctx context.Context, cutoff datex.Date) (int, error) {
	var n int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM notices WHERE due_date < ?", datex.ToStorage(cutoff))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("deleting notices before %s: %w", datex.ToStorage(cutoff), err)
	}
	return int(n), nil
}

func (s *sqliteStore) UpsertSubscriber(ctx context.Context, userID int64, firstName, username string) error {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO subscribers (user_id, first_name, handle, is_subscribed, created_at)
			 VALUES (?, ?, ?, 1, ?)
			 ON CONFLICT(user_id) DO UPDATE SET
			   first_name = excluded.first_name,
			   handle = excluded.handle,
			   is_subscribed = 1`,
			userID, firstName, nullStr(username), s.now().UTC().Format(time.RFC3339Nano),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upserting subscriber %d: %w", userID, err)
	}
	return nil
}

func (s *sqliteStore) SetSubscribed(ctx context.Context, userID int64, subscribed bool) error {
	flag := 0
	if subscribed {
		flag = 1
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE subscribers SET is_subscribed = ? WHERE user_id = ?", flag, userID)
		if err != nil {
			return err
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("updating subscriber %d: %w", userID, err)
	}
	return nil
}

func (s *sqliteStore) ListSubscribedIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, "SELECT user_id FROM subscribers WHERE is_subscribed = 1 ORDER BY user_id"); err != nil {
		return nil, fmt.Errorf("listing subscribers: %w", err)
	}
	return ids, nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = s.now()
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit (id, at, actor_id, actor_username, chat_id, action, target, ok, fail, err, took_ms, meta)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.At.UTC().Format(time.RFC3339Nano), e.ActorID, nullStr(e.ActorUsername), e.ChatID,
		e.Action, e.Target, e.OK, e.Fail, nullStr(e.Error), e.TookMS, nullStr(e.MetaJSON),
	)
	if err != nil {
		return fmt.Errorf("appending audit: %w", err)
	}
	return nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

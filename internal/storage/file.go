package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hwbot/internal/datex"
	logx "hwbot/pkg/logx"
)

// fileStore keeps every table in memory and persists it as:
//   - <prefix>.snapshot.json (compacted state)
//   - <prefix>.journal.jsonl (append-only mutations since the snapshot)
//   - <prefix>.audit.jsonl   (append-only audit log)
//
// Each mutation is journaled and fsynced before it is applied in memory.
type fileStore struct {
	log logx.Logger
	now func() time.Time

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	audit        *os.File

	state  fileState
	writes int
}

type fileState struct {
	NextID      int64                `json:"next_id"`
	Notices     map[int64]Notice     `json:"notices"`
	Subscribers map[int64]Subscriber `json:"subscribers"`
}

const (
	opNoticeInsert       = "notice.insert"
	opNoticeDeleteBefore = "notice.delete_before"
	opSubscriberUpsert   = "subscriber.upsert"
	opSubscriberSet      = "subscriber.set"

	compactEvery = 500
)

type journalRecord struct {
	Op         string      `json:"op"`
	Notice     *Notice     `json:"notice,omitempty"`
	Cutoff     *datex.Date `json:"cutoff,omitempty"`
	Subscriber *Subscriber `json:"subscriber,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	st := newFileState()
	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"
	if err := loadSnapshot(snapPath, &st); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	skipped, err := replayJournal(journalPath, &st)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("replaying journal: %w", err)
	}
	if skipped > 0 {
		log.Warn("skipped unreadable journal records", logx.Int("count", skipped))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = jf.Close()
		return nil, err
	}

	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("notices", len(st.Notices)))
	return &fileStore{
		log:          log,
		now:          time.Now,
		snapshotPath: snapPath,
		journal:      jf,
		audit:        af,
		state:        st,
	}, nil
}

func newFileState() fileState {
	return fileState{
		NextID:      1,
		Notices:     map[int64]Notice{},
		Subscribers: map[int64]Subscriber{},
	}
}

func (st *fileState) apply(r journalRecord) {
	switch r.Op {
	case opNoticeInsert:
		if r.Notice == nil {
			return
		}
		st.Notices[r.Notice.ID] = *r.Notice
		if r.Notice.ID >= st.NextID {
			st.NextID = r.Notice.ID + 1
		}
	case opNoticeDeleteBefore:
		if r.Cutoff == nil {
			return
		}
		for id, n := range st.Notices {
			if n.DueDate.Before(*r.Cutoff) {
				delete(st.Notices, id)
			}
		}
	case opSubscriberUpsert, opSubscriberSet:
		if r.Subscriber == nil {
			return
		}
		st.Subscribers[r.Subscriber.UserID] = *r.Subscriber
	}
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	if err := s.compactLocked(); err != nil {
		s.log.Warn("compact on close failed", logx.Err(err))
	}
	err1 := s.journal.Close()
	err2 := s.audit.Close()
	s.journal, s.audit = nil, nil
	if err1 != nil {
		return err1
	}
	return err2
}

// commitLocked journals r durably, then applies it.
func (s *fileStore) commitLocked(r journalRecord) error {
	if s.journal == nil {
		return ErrClosed
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if _, err := s.journal.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("writing journal: %w", err)
	}
	if err := s.journal.Sync(); err != nil {
		return fmt.Errorf("syncing journal: %w", err)
	}
	s.state.apply(r)

	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) InsertNotice(ctx context.Context, in NewNotice) (Notice, error) {
	if err := ctx.Err(); err != nil {
		return Notice{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := Notice{
		ID:          s.state.NextID,
		SubjectID:   in.SubjectID,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.commitLocked(journalRecord{Op: opNoticeInsert, Notice: &n}); err != nil {
		return Notice{}, fmt.Errorf("inserting notice: %w", err)
	}
	return n, nil
}

func (s *fileStore) notices(ctx context.Context, q NoticeQuery) ([]Notice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	all := make([]Notice, 0, len(s.state.Notices))
	for _, n := range s.state.Notices {
		all = append(all, n)
	}
	return q.apply(all), nil
}

func (s *fileStore) ListAll(ctx context.Context, limit int) ([]Notice, error) {
	return s.notices(ctx, NoticeQuery{Limit: listLimit(limit)})
}

func (s *fileStore) ListByDate(ctx context.Context, due datex.Date) ([]Notice, error) {
	return s.notices(ctx, NoticeQuery{Due: &due})
}

func (s *fileStore) ListBySubject(ctx context.Context, subjectID string, limit int) ([]Notice, error) {
	return s.notices(ctx, NoticeQuery{SubjectID: subjectID, Limit: listLimit(limit)})
}

func (s *fileStore) DeleteDueBefore(ctx context.Context, cutoff datex.Date) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, notice := range s.state.Notices {
		if notice.DueDate.Before(cutoff) {
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.commitLocked(journalRecord{Op: opNoticeDeleteBefore, Cutoff: &cutoff}); err != nil {
		return 0, fmt.Errorf("deleting notices before %s: %w", datex.ToStorage(cutoff), err)
	}
	return n, nil
}

func (s *fileStore) UpsertSubscriber(ctx context.Context, userID int64, firstName, username string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.state.Subscribers[userID]
	if !ok {
		sub = Subscriber{UserID: userID, CreatedAt: s.now().UTC()}
	}
	sub.FirstName = firstName
	sub.Username = username
	sub.Subscribed = true
	if err := s.commitLocked(journalRecord{Op: opSubscriberUpsert, Subscriber: &sub}); err != nil {
		return fmt.Errorf("upserting subscriber %d: %w", userID, err)
	}
	return nil
}

func (s *fileStore) SetSubscribed(ctx context.Context, userID int64, subscribed bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.state.Subscribers[userID]
	if !ok {
		return fmt.Errorf("updating subscriber %d: %w", userID, ErrNotFound)
	}
	sub.Subscribed = subscribed
	if err := s.commitLocked(journalRecord{Op: opSubscriberSet, Subscriber: &sub}); err != nil {
		return fmt.Errorf("updating subscriber %d: %w", userID, err)
	}
	return nil
}

func (s *fileStore) ListSubscribedIDs(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	ids := make([]int64, 0, len(s.state.Subscribers))
	for id, sub := range s.state.Subscribers {
		if sub.Subscribed {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = s.now()
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.audit).Encode(e); err != nil {
		return fmt.Errorf("appending audit: %w", err)
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.state); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out *fileState) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var st fileState
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		return err
	}
	if st.Notices == nil {
		st.Notices = map[int64]Notice{}
	}
	if st.Subscribers == nil {
		st.Subscribers = map[int64]Subscriber{}
	}
	if st.NextID < 1 {
		st.NextID = 1
	}
	*out = st
	return nil
}

// replayJournal applies every readable record and reports how many were skipped.
func replayJournal(path string, st *fileState) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	skipped := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var r journalRecord
		if err := json.Unmarshal(line, &r); err != nil || r.Op == "" {
			skipped++
			continue
		}
		st.apply(r)
	}
	return skipped, sc.Err()
}

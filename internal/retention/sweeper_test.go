package retention

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"hwbot/internal/datex"
	"hwbot/internal/eventbus"
	"hwbot/internal/storage"
	logx "hwbot/pkg/logx"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) lines() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(s.b.String()), "\n") {
		var m map[string]any
		if json.Unmarshal([]byte(l), &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

func fixedNow() time.Time {
	// 23:30 UTC on Jan 9 is already Jan 10 in Yekaterinburg (UTC+5).
	return time.Date(2024, 1, 9, 23, 30, 0, 0, time.UTC)
}

func TestSweepIsIdempotentAndLogsZero(t *testing.T) {
	ctx := context.Background()
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: ":memory:"}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	for _, d := range []civil.Date{{Year: 2024, Month: 1, Day: 8}, {Year: 2024, Month: 1, Day: 9}, {Year: 2024, Month: 1, Day: 10}} {
		if _, err := st.InsertNotice(ctx, storage.NewNotice{SubjectID: "math", Title: "x", DueDate: d}); err != nil {
			t.Fatal(err)
		}
	}

	loc, err := time.LoadLocation("Asia/Yekaterinburg")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	buf := &syncBuffer{}
	s := New(Config{Days: 0, Location: loc}, st, logx.FromZerolog(zerolog.New(buf)), WithClock(fixedNow))

	n, err := s.Sweep(ctx)
	if err != nil || n != 2 {
		t.Fatalf("first sweep = %d, %v; want 2", n, err)
	}
	n, err = s.Sweep(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second sweep = %d, %v; want 0", n, err)
	}

	lines := buf.lines()
	if len(lines) != 2 {
		t.Fatalf("want one log line per sweep, got %d", len(lines))
	}
	if lines[1]["deleted"] != float64(0) || lines[1]["cutoff"] != "2024-01-10" {
		t.Fatalf("second sweep log = %v", lines[1])
	}

	left, _ := st.ListAll(ctx, 0)
	if len(left) != 1 || datex.ToStorage(left[0].DueDate) != "2024-01-10" {
		t.Fatalf("survivors = %+v", left)
	}
}

type flakyDeleter struct {
	mu      sync.Mutex
	calls   int
	cutoffs []datex.Date
}

func (f *flakyDeleter) DeleteDueBefore(ctx context.Context, cutoff datex.Date) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.calls == 1 {
		return 0, errors.New("database is locked")
	}
	return 1, nil
}

func TestSweepFailureDoesNotStick(t *testing.T) {
	t.Parallel()
	d := &flakyDeleter{}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()
	s := New(Config{Days: 7}, d, logx.Nop(), WithClock(fixedNow), WithBus(bus))

	if _, err := s.Sweep(context.Background()); err == nil {
		t.Fatal("expected error from first sweep")
	}
	if n, err := s.Sweep(context.Background()); err != nil || n != 1 {
		t.Fatalf("second sweep = %d, %v", n, err)
	}
	if got := datex.ToStorage(d.cutoffs[0]); got != "2024-01-02" {
		t.Fatalf("cutoff = %s, want today-7 in UTC", got)
	}

	first := (<-ch).Data.(eventbus.RetentionSwept)
	second := (<-ch).Data.(eventbus.RetentionSwept)
	if first.Err == "" || second.Err != "" || second.Deleted != 1 {
		t.Fatalf("events = %+v, %+v", first, second)
	}
}

type countingExpirer struct {
	mu    sync.Mutex
	calls int
}

func (c *countingExpirer) Expire(time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 0
}

func TestStartRunsInitialSweepAndStops(t *testing.T) {
	t.Parallel()
	d := &flakyDeleter{calls: 1}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()
	exp := &countingExpirer{}
	s := New(Config{Schedule: "@every 1h", IdleSchedule: "@every 1s"}, d, logx.Nop(), WithBus(bus), WithExpirer(exp))

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case e := <-ch:
		if e.Type != eventbus.TypeRetentionSwept {
			t.Fatalf("event = %s", e.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("initial sweep did not run")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		exp.mu.Lock()
		calls := exp.calls
		exp.mu.Unlock()
		if calls > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("idle expiry job never ran")
		}
		time.Sleep(50 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop = %v", err)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	s := New(Config{Schedule: "every hour please"}, &flakyDeleter{}, logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

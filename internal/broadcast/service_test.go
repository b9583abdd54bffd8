package broadcast

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

type scriptedSender struct {
	mu    sync.Mutex
	calls []int64
	// errs[chatID] is consumed one error per call; nil means success.
	errs map[int64][]error
}

func (s *scriptedSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, to.ChatID)
	if q := s.errs[to.ChatID]; len(q) > 0 {
		s.errs[to.ChatID] = q[1:]
		if q[0] != nil {
			return kit.MessageRef{}, q[0]
		}
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(s.calls)}, nil
}

type recordedSleep struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return nil
}

func newTestService(t *testing.T, sender kit.Sender, sl *recordedSleep) *Service {
	t.Helper()
	return New(Config{RatePerSec: 1e6}, sender, logx.Nop(), WithSleep(sl.sleep))
}

func TestRunRetriesFloodOnce(t *testing.T) {
	t.Parallel()
	sender := &scriptedSender{errs: map[int64][]error{
		2: {&kit.FloodError{RetryAfter: 2 * time.Second}},
	}}
	sl := &recordedSleep{}
	s := newTestService(t, sender, sl)

	rep := s.Run(context.Background(), Job{ID: "j", Text: "hi", Recipients: []int64{1, 2, 3}})
	if rep.Sent != 3 || rep.Failed != 0 || rep.Retried != 1 {
		t.Fatalf("report = %+v, want sent=3 failed=0 retried=1", rep)
	}
	if len(sl.sleeps) != 1 || sl.sleeps[0] != 3*time.Second {
		t.Fatalf("sleeps = %v, want [3s]", sl.sleeps)
	}
	want := []int64{1, 2, 2, 3}
	if len(sender.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", sender.calls, want)
	}
	for i := range want {
		if sender.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", sender.calls, want)
		}
	}
}

func TestRunCountsPermanentFailures(t *testing.T) {
	t.Parallel()
	blocked := errors.New("bot was blocked by the user")
	sender := &scriptedSender{errs: map[int64][]error{
		1: {blocked},
		2: {&kit.FloodError{RetryAfter: time.Second}, &kit.FloodError{RetryAfter: time.Second}},
	}}
	sl := &recordedSleep{}
	s := newTestService(t, sender, sl)

	rep := s.Run(context.Background(), Job{Recipients: []int64{1, 2, 3}})
	if rep.Sent != 1 || rep.Failed != 2 || rep.Retried != 1 {
		t.Fatalf("report = %+v, want sent=1 failed=2 retried=1", rep)
	}
	// The non-flood failure is attempted exactly once.
	n := 0
	for _, c := range sender.calls {
		if c == 1 {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("recipient 1 attempted %d times, want 1", n)
	}
}

func TestSubmitDeliversAndReports(t *testing.T) {
	t.Parallel()
	sender := &scriptedSender{errs: map[int64][]error{}}
	s := New(Config{RatePerSec: 1e6, QueueSize: 1}, sender, logx.Nop())

	if _, err := s.Submit(Job{Recipients: []int64{1}}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Submit before Start = %v, want ErrNotRunning", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	done := make(chan Report, 1)
	id, err := s.Submit(Job{Text: "x", Recipients: []int64{10, 11}, OnDone: func(r Report) { done <- r }})
	if err != nil || id == "" {
		t.Fatalf("Submit = %q, %v", id, err)
	}
	select {
	case rep := <-done:
		if rep.JobID != id || rep.Sent != 2 || rep.Total != 2 {
			t.Fatalf("report = %+v", rep)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}
}

func TestSubmitRejectsWhenQueueFull(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	s := New(Config{RatePerSec: 1e6, QueueSize: 1}, blockingSender{started: started, release: release}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())
	defer close(release)

	if _, err := s.Submit(Job{Recipients: []int64{1}}); err != nil {
		t.Fatal(err)
	}
	<-started // worker holds the first job
	if _, err := s.Submit(Job{Recipients: []int64{2}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Submit(Job{Recipients: []int64{3}}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("third Submit = %v, want ErrQueueFull", err)
	}
}

type blockingSender struct {
	started chan struct{}
	release chan struct{}
}

func (b blockingSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
	case <-ctx.Done():
		return kit.MessageRef{}, ctx.Err()
	}
	return kit.MessageRef{}, nil
}

func TestSubmitRejectsTextLongerThanOneMessage(t *testing.T) {
	t.Parallel()
	sender := &scriptedSender{errs: map[int64][]error{}}
	s := New(Config{RatePerSec: 1e6}, sender, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	long := strings.Repeat("я", kit.MaxTextRunes+1)
	if _, err := s.Submit(Job{Text: long, Recipients: []int64{1}}); !errors.Is(err, ErrTextTooLong) {
		t.Fatalf("Submit = %v, want ErrTextTooLong", err)
	}
	if !FitsOneMessage(long[:len(long)-len("я")]) {
		t.Fatal("text at the limit must fit")
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.calls) != 0 {
		t.Fatalf("sender called %d times", len(sender.calls))
	}
}

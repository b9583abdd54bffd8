package conversation

import (
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreBasics(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore(0)
	if _, ok := s.Get(1); ok {
		t.Fatal("empty store returned a state")
	}
	s.Set(1, newState(FlowBroadcast, StepAwaitingText))
	st, ok := s.Get(1)
	if !ok || st.Flow != FlowBroadcast || st.UpdatedAt.IsZero() {
		t.Fatalf("Get = %+v, %v", st, ok)
	}
	// A new flow entry replaces the old one outright.
	s.Set(1, newState(FlowDateLookup, StepAwaitingDate))
	if st, _ := s.Get(1); st.Flow != FlowDateLookup {
		t.Fatalf("flow = %s, want replaced", st.Flow)
	}
	s.Clear(1)
	if _, ok := s.Get(1); ok {
		t.Fatal("state survived Clear")
	}
}

func TestMemoryStoreUpdateIsAtomic(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore(0)
	s.Set(7, State{Flow: FlowNoticeEntry, Fields: map[string]string{"n": ""}})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(7, func(cur State, ok bool) (State, bool) {
				return cur.advance(cur.Step, "n", cur.Fields["n"]+"x"), ok
			})
		}()
	}
	wg.Wait()
	st, _ := s.Get(7)
	if got := len(st.Fields["n"]); got != 100 {
		t.Fatalf("lost updates: len = %d, want 100", got)
	}

	s.Update(7, func(cur State, ok bool) (State, bool) { return cur, false })
	if _, ok := s.Get(7); ok {
		t.Fatal("keep=false should delete")
	}
}

func TestMemoryStoreIdleExpiry(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(30 * time.Minute)
	s.now = func() time.Time { return now }

	s.Set(1, newState(FlowDateLookup, StepAwaitingDate))
	s.Set(2, newState(FlowBroadcast, StepAwaitingText))

	now = now.Add(20 * time.Minute)
	s.Set(2, newState(FlowBroadcast, StepAwaitingText)) // activity refreshes

	now = now.Add(15 * time.Minute)
	if _, ok := s.Get(1); ok {
		t.Fatal("idle state should read as absent")
	}
	if _, ok := s.Get(2); !ok {
		t.Fatal("recently touched state expired")
	}
	if n := s.Expire(now); n != 1 {
		t.Fatalf("Expire = %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

package conversation

import (
	"sync"
	"time"
)

// StateStore holds at most one State per user. Per-key operations are atomic.
type StateStore interface {
	Get(userID int64) (State, bool)
	Set(userID int64, st State)
	Clear(userID int64)
	// Update runs fn under the key's lock; keep=false deletes the entry.
	Update(userID int64, fn func(cur State, ok bool) (next State, keep bool))
	// Expire drops idle states and reports how many were removed.
	Expire(now time.Time) int
}

const storeShards = 32

// MemoryStore is a striped in-memory StateStore. States idle longer than
// the TTL read as absent and are removed by Expire.
type MemoryStore struct {
	ttl    time.Duration
	now    func() time.Time
	shards [storeShards]stateShard
}

type stateShard struct {
	mu sync.Mutex
	m  map[int64]State
}

// NewMemoryStore returns a store; ttl<=0 disables idle expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{ttl: ttl, now: time.Now}
	for i := range s.shards {
		s.shards[i].m = map[int64]State{}
	}
	return s
}

func (s *MemoryStore) shard(userID int64) *stateShard {
	return &s.shards[uint64(userID)%storeShards]
}

func (s *MemoryStore) live(st State, now time.Time) bool {
	return s.ttl <= 0 || now.Sub(st.UpdatedAt) <= s.ttl
}

func (s *MemoryStore) Get(userID int64) (State, bool) {
	sh := s.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	st, ok := sh.m[userID]
	if !ok || !s.live(st, s.now()) {
		return State{}, false
	}
	return st, true
}

func (s *MemoryStore) Set(userID int64, st State) {
	st.UpdatedAt = s.now()
	sh := s.shard(userID)
	sh.mu.Lock()
	sh.m[userID] = st
	sh.mu.Unlock()
}

func (s *MemoryStore) Clear(userID int64) {
	sh := s.shard(userID)
	sh.mu.Lock()
	delete(sh.m, userID)
	sh.mu.Unlock()
}

func (s *MemoryStore) Update(userID int64, fn func(cur State, ok bool) (State, bool)) {
	sh := s.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	now := s.now()
	cur, ok := sh.m[userID]
	if ok && !s.live(cur, now) {
		cur, ok = State{}, false
	}
	next, keep := fn(cur, ok)
	if !keep {
		delete(sh.m, userID)
		return
	}
	next.UpdatedAt = now
	sh.m[userID] = next
}

func (s *MemoryStore) Expire(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, st := range sh.m {
			if !s.live(st, now) {
				delete(sh.m, id)
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}

// Len counts stored states, expired or not.
func (s *MemoryStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.m)
		sh.mu.Unlock()
	}
	return n
}

// Package eventbus is an in-process fanout of small lifecycle signals
// (notice added, broadcast finished, retention swept, config reloaded).
package eventbus

import (
	"sync"
	"time"
)

const (
	TypeNoticeAdded       = "notice.added"
	TypeBroadcastStarted  = "broadcast.started"
	TypeBroadcastFinished = "broadcast.finished"
	TypeRetentionSwept    = "retention.swept"
	TypeConfigReloaded    = "config.reloaded"
)

// Event is a lightweight signal. Publish never blocks; subscribers with a
// full buffer miss events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	next uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Held for reading across the sends so unsubscribe cannot close a channel
	// mid-send; sends never block.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	return ch, func() {}
}

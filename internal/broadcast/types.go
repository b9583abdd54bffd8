package broadcast

import (
	"errors"
	"time"
	"unicode/utf8"

	kit "hwbot/internal/transport"
)

var (
	ErrQueueFull   = errors.New("broadcast queue full")
	ErrNotRunning  = errors.New("broadcast service not running")
	ErrTextTooLong = errors.New("broadcast text exceeds one message")
)

type Config struct {
	RatePerSec  float64       // sends per second across all jobs; <=0 means 25
	QueueSize   int           // pending jobs; <=0 means 16
	FloodMargin time.Duration // added to the flood wait; 0 means 1s
	SendTimeout time.Duration // per attempt; 0 means 15s
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 25
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.FloodMargin <= 0 {
		c.FloodMargin = time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	return c
}

// Job is one broadcast run over a fixed recipient snapshot.
type Job struct {
	ID          string
	Text        string
	Recipients  []int64
	InitiatorID int64
	// OnDone runs on the worker goroutine after the last recipient.
	OnDone func(Report)
}

// Report is the outcome of one job.
type Report struct {
	JobID   string
	Total   int
	Sent    int
	Failed  int
	Retried int
	Took    time.Duration
}

// FitsOneMessage reports whether text is delivered as a single message, so a
// flood retry never repeats part of it.
func FitsOneMessage(text string) bool {
	return utf8.RuneCountInString(text) <= kit.MaxTextRunes
}

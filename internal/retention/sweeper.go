// Package retention runs the recurring housekeeping jobs: the hourly notice
// sweep and the conversation idle-state expiry.
package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"hwbot/internal/datex"
	"hwbot/internal/eventbus"
	rtsup "hwbot/internal/runtime/supervisor"
	logx "hwbot/pkg/logx"
)

// Deleter is the slice of the record store the sweep needs.
type Deleter interface {
	DeleteDueBefore(ctx context.Context, cutoff datex.Date) (int, error)
}

// Expirer drops idle conversation states.
type Expirer interface {
	Expire(now time.Time) int
}

type Config struct {
	// Days is the retention window; <=0 keeps today and later.
	Days     int
	Location *time.Location
	// Schedule is a cron spec; empty means "@every 1h".
	Schedule string
	// IdleSchedule drives Expirer; empty means "@every 1m".
	IdleSchedule string
	// RunTimeout bounds one sweep; 0 means 1m.
	RunTimeout time.Duration
}

type Sweeper struct {
	store  Deleter
	states Expirer
	bus    eventbus.Bus
	log    logx.Logger
	now    func() time.Time

	mu  sync.Mutex
	cfg Config
	c   *cron.Cron
	sup *rtsup.Supervisor
}

type Option func(*Sweeper)

func WithClock(fn func() time.Time) Option { return func(s *Sweeper) { s.now = fn } }

func WithBus(b eventbus.Bus) Option { return func(s *Sweeper) { s.bus = b } }

// WithExpirer enables the idle-state job.
func WithExpirer(e Expirer) Option { return func(s *Sweeper) { s.states = e } }

func New(cfg Config, store Deleter, log logx.Logger, opts ...Option) *Sweeper {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Sweeper{store: store, bus: eventbus.Nop{}, log: log, now: time.Now, cfg: cfg}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Apply swaps the window and zone used by later runs. Schedules are fixed at Start.
func (s *Sweeper) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.Schedule, cfg.IdleSchedule = s.cfg.Schedule, s.cfg.IdleSchedule
	s.cfg = cfg
}

func (s *Sweeper) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1h"
	}
	if cfg.IdleSchedule == "" {
		cfg.IdleSchedule = "@every 1m"
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = time.Minute
	}
	return cfg
}

// Start registers the jobs, runs one sweep immediately in the background and
// starts the cron loop.
func (s *Sweeper) Start(ctx context.Context) error {
	cfg := s.config()
	clog := cronLogger{log: s.log}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(cfg.Location),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	sup := rtsup.New(ctx, rtsup.WithLogger(s.log))
	runCtx := sup.Context()
	if _, err := c.AddFunc(cfg.Schedule, func() { _, _ = s.Sweep(runCtx) }); err != nil {
		return fmt.Errorf("retention.schedule %q: %w", cfg.Schedule, err)
	}
	if s.states != nil {
		if _, err := c.AddFunc(cfg.IdleSchedule, s.expireIdle); err != nil {
			return fmt.Errorf("conversation idle schedule %q: %w", cfg.IdleSchedule, err)
		}
	}

	s.mu.Lock()
	if s.c != nil {
		s.mu.Unlock()
		sup.Cancel()
		return errors.New("retention already started")
	}
	s.c, s.sup = c, sup
	s.mu.Unlock()

	sup.Go0("retention.initial_sweep", func(c context.Context) { _, _ = s.Sweep(c) })
	c.Start()
	s.log.Info("retention scheduler started", logx.String("schedule", cfg.Schedule), logx.Int("days", cfg.Days), logx.String("tz", cfg.Location.String()))
	return nil
}

// Stop halts the cron loop and waits for a running sweep.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, sup := s.c, s.sup
	s.c, s.sup = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	sup.Cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return sup.Wait(ctx)
}

// Sweep deletes notices due strictly before the cutoff. Failures are logged
// and returned; they never stop the schedule.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cfg := s.config()
	today := datex.Today(s.now(), cfg.Location)
	cutoff := datex.RetentionCutoff(today, cfg.Days)

	rctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()
	start := time.Now()
	n, err := s.store.DeleteDueBefore(rctx, cutoff)

	ev := eventbus.RetentionSwept{Cutoff: datex.ToStorage(cutoff), Deleted: n}
	if err != nil {
		ev.Err = err.Error()
		s.log.Error("retention sweep failed", logx.String("cutoff", ev.Cutoff), logx.Err(err))
	} else {
		s.log.Info("retention sweep finished", logx.String("cutoff", ev.Cutoff), logx.Int("deleted", n), logx.Duration("took", time.Since(start)))
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeRetentionSwept, Data: ev})
	return n, err
}

func (s *Sweeper) expireIdle() {
	if n := s.states.Expire(s.now()); n > 0 {
		s.log.Debug("expired idle conversations", logx.Int("count", n))
	}
}

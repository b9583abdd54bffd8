package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	rtsup "hwbot/internal/runtime/supervisor"
	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

type Service struct {
	cfg    Config
	sender kit.Sender
	log    logx.Logger

	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time

	mu    sync.Mutex
	queue chan Job
	sup   *rtsup.Supervisor
}

type Option func(*Service)

// WithSleep replaces the flood-wait suspension (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.sleep = fn }
}

// WithClock replaces time.Now for Report.Took (tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) { s.now = fn }
}

func New(cfg Config, sender kit.Sender, log logx.Logger, opts ...Option) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:     cfg,
		sender:  sender,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		sleep:   sleepCtx,
		now:     time.Now,
		queue:   make(chan Job, cfg.QueueSize),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches the single delivery worker. Pending jobs survive a Stop/Start.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	queue := s.queue
	s.sup.GoRestart0("broadcast.worker", func(c context.Context) {
		s.worker(c, queue)
	}, rtsup.WithRestartBackoff(time.Second, 10*time.Second))
	s.log.Info("service started", logx.Any("rps", s.cfg.RatePerSec), logx.Int("queue", cap(queue)))
}

// Stop cancels the worker; a job in flight is abandoned at its next send.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	start := time.Now()
	err := sup.Stop(ctx)
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)), logx.Int("pending", len(s.queue)))
	return err
}

// Submit enqueues job without blocking and returns its id.
func (s *Service) Submit(job Job) (string, error) {
	if !FitsOneMessage(job.Text) {
		return "", ErrTextTooLong
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	s.mu.Lock()
	running := s.sup != nil
	s.mu.Unlock()
	if !running {
		return "", ErrNotRunning
	}
	select {
	case s.queue <- job:
		s.log.Debug("broadcast job enqueued", logx.String("job", job.ID), logx.Int("total", len(job.Recipients)), logx.Int("queue_len", len(s.queue)))
		return job.ID, nil
	default:
		s.log.Warn("broadcast queue full; rejecting job", logx.String("job", job.ID), logx.Int("queue_cap", cap(s.queue)))
		return "", ErrQueueFull
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

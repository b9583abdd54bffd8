// Package router feeds adapter updates to the conversation engine and writes
// its replies back to Telegram.
package router

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"hwbot/internal/conversation"
	rtsup "hwbot/internal/runtime/supervisor"
	kit "hwbot/internal/transport"
	"hwbot/internal/transport/telegram/keyboard"
	logx "hwbot/pkg/logx"
)

const txtBusy = "Бот перегружен, попробуйте ещё раз"

// Handler is the conversation engine.
type Handler interface {
	Handle(ctx context.Context, ev conversation.Event) conversation.Reply
}

type Config struct {
	// Workers is the number of shards; each shard handles its users in order.
	Workers int
	// QueueSize is the per-shard backlog.
	QueueSize int
	// Timeout bounds one update, reply delivery included.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// Dispatcher routes updates to per-user shards so one user's events are
// processed strictly in arrival order while different users run in parallel.
type Dispatcher struct {
	cfg     Config
	adapter kit.Adapter
	h       Handler
	log     logx.Logger

	mu      sync.RWMutex
	shards  []chan func()
	running bool
}

func New(cfg Config, adapter kit.Adapter, h Handler, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{cfg: cfg.withDefaults(), adapter: adapter, h: h, log: log.With(logx.String("comp", "telegram.router"))}
}

func shardOf(userID int64, n int) int {
	h := fnv.New32a()
	var b [8]byte
	for i := range b {
		b[i] = byte(userID >> (8 * i))
	}
	_, _ = h.Write(b[:])
	return int(h.Sum32() % uint32(n))
}

// Run consumes updates until ctx is done or updates is closed.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(d.log), rtsup.WithCancelOnError(false))

	shards := make([]chan func(), d.cfg.Workers)
	for i := range shards {
		shards[i] = make(chan func(), d.cfg.QueueSize)
	}
	d.mu.Lock()
	d.shards, d.running = shards, true
	d.mu.Unlock()

	for i, q := range shards {
		idx, q := i, q
		sup.GoRestart0("dispatch.worker."+strconv.Itoa(idx), func(c context.Context) {
			for {
				select {
				case <-c.Done():
					return
				case job, ok := <-q:
					if !ok {
						return
					}
					job()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}
	d.log.Info("dispatcher started", logx.Int("workers", len(shards)), logx.Int("queue", d.cfg.QueueSize))

	defer func() {
		d.mu.Lock()
		d.running = false
		for _, q := range shards {
			close(q)
		}
		d.mu.Unlock()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		d.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			d.route(ctx, up)
		}
	}
}

func (d *Dispatcher) route(root context.Context, up kit.Update) {
	if up.Message != nil && up.Message.IsGroup {
		return
	}
	req, ok := newRequest(up, d.log)
	if !ok {
		return
	}
	final := Chain(d.serve, MWPanicRecover(), MWRequestLog(), MWTimeout(d.cfg.Timeout))
	if d.enqueue(req.Event.UserID, func() { _ = final(root, req) }) {
		return
	}
	req.Logger.Warn("shard queue full, update rejected")
	if cb := up.Callback; cb != nil {
		_ = d.adapter.AnswerCallback(root, cb.ID, txtBusy, false)
		return
	}
	_, _ = d.adapter.SendText(root, req.Chat, txtBusy, nil)
}

func (d *Dispatcher) enqueue(userID int64, job func()) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return false
	}
	select {
	case d.shards[shardOf(userID, len(d.shards))] <- job:
		return true
	default:
		return false
	}
}

// serve runs the engine and delivers its reply. Callback spinners are always
// cleared, even when the reply is empty.
func (d *Dispatcher) serve(ctx context.Context, req *Request) error {
	rep := d.h.Handle(ctx, req.Event)
	var errs []error
	if cb := req.Update.Callback; cb != nil {
		if err := d.adapter.AnswerCallback(ctx, cb.ID, rep.Toast, rep.Alert); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.send(ctx, req.Chat, rep); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, to kit.ChatTarget, rep conversation.Reply) error {
	out, err := keyboard.Render(rep)
	if err != nil {
		// Deliver the text anyway; a missing keyboard is recoverable.
		d.log.Error("reply keyboard invalid", logx.Err(err))
		rep.Menu = conversation.MenuNone
		if out, err = keyboard.Render(rep); err != nil {
			return err
		}
	}
	if out.HTML == "" {
		return nil
	}
	opt := &kit.SendOptions{ParseMode: tele.ModeHTML, DisablePreview: true}
	if out.Markup != nil {
		opt.ReplyMarkupAdapter = out.Markup
	}
	_, err = d.adapter.SendText(ctx, to, out.HTML, opt)
	return err
}

// Notify delivers a reply outside of any update, e.g. a broadcast summary.
func (d *Dispatcher) Notify(ctx context.Context, chatID int64, rep conversation.Reply) error {
	return d.send(ctx, kit.ChatTarget{ChatID: chatID}, rep)
}

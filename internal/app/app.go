package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"hwbot/internal/broadcast"
	"hwbot/internal/config"
	"hwbot/internal/conversation"
	"hwbot/internal/eventbus"
	"hwbot/internal/retention"
	rtsup "hwbot/internal/runtime/supervisor"
	"hwbot/internal/storage"
	kit "hwbot/internal/transport"
	"hwbot/internal/transport/telegram/adapter"
	"hwbot/internal/transport/telegram/router"
	logx "hwbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter  kit.Adapter
	states   *conversation.MemoryStore
	bcast    *broadcast.Service
	sweeper  *retention.Sweeper
	dispatch *router.Dispatcher

	settings atomic.Pointer[conversation.Settings]
	updates  chan kit.Update
}

// NewApp loads the config and builds the Telegram adapter. A rejected bot
// token fails here.
func NewApp(cfgm *config.Manager) (*App, error) {
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	logs, log := logx.New(mapLogConfig(cfg))
	ad, err := adapter.New(mapAdapterConfig(cfg), log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return build(cfgm, cfg, ad, logs, log)
}

func build(cfgm *config.Manager, cfg *config.Config, ad kit.Adapter, logs *logx.Service, log logx.Logger) (*App, error) {
	cfgm.SetLogger(log)
	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logs,
		bus:     eventbus.New(),
		adapter: ad,
		updates: make(chan kit.Update, 256),
	}
	set, err := mapSettings(cfg)
	if err != nil {
		return nil, err
	}
	a.settings.Store(&set)

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.store, err = storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	a.log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	rc, err := mapRetentionConfig(cfg)
	if err != nil {
		_ = a.store.Close()
		return nil, err
	}
	a.states = conversation.NewMemoryStore(cfg.Conversation.IdleTTL.D())
	a.bcast = broadcast.New(mapBroadcastConfig(cfg), ad, log.With(logx.String("comp", "broadcast")))
	a.sweeper = retention.New(rc, a.store, log.With(logx.String("comp", "retention")),
		retention.WithBus(a.bus),
		retention.WithExpirer(a.states),
	)

	var disp *router.Dispatcher
	conv := conversation.NewRouter(conversation.Deps{
		States:      a.states,
		Records:     a.store,
		Broadcaster: a.bcast,
		Notifier: conversation.NotifierFunc(func(ctx context.Context, chatID int64, r conversation.Reply) error {
			return disp.Notify(ctx, chatID, r)
		}),
		Settings: func() conversation.Settings { return *a.settings.Load() },
		Bus:      a.bus,
		Log:      log.With(logx.String("comp", "conversation")),
	})
	disp = router.New(mapDispatchConfig(cfg), ad, conv, log)
	a.dispatch = disp
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.bcast.Start(runCtx)
	if err := a.sweeper.Start(runCtx); err != nil {
		return err
	}
	a.sup.Go("dispatch", func(c context.Context) error {
		return a.dispatch.Run(c, a.updates)
	})
	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	if err := router.PublishCommands(runCtx, a.adapter); err != nil {
		a.log.Warn("command menu not published", logx.Err(err))
	}

	events, unsub := a.bus.Subscribe(64)
	a.sup.Go0("events.log", func(c context.Context) {
		defer unsub()
		a.logEvents(c, events)
	})

	cfgCh := a.cfgm.Subscribe(1)
	a.sup.Go0("config.apply", func(c context.Context) {
		defer a.cfgm.Unsubscribe(cfgCh)
		prev := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-cfgCh:
				if !ok {
					return
				}
				a.applyConfig(prev, next)
				prev = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig hot-applies the reloadable sections: admins, subjects, zone,
// logging and retention days.
func (a *App) applyConfig(prev, next *config.Config) {
	ch := config.SummarizeChange(prev, next)
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if ch.Has("logging") {
		a.logs.Apply(mapLogConfig(next))
	}
	if ch.Has("admins") || ch.Has("subjects") || ch.Has("retention") {
		set, err := mapSettings(next)
		if err != nil {
			a.log.Warn("settings not applied", logx.Err(err))
		} else {
			a.settings.Store(&set)
		}
	}
	if ch.Has("retention") {
		if rc, err := mapRetentionConfig(next); err == nil {
			a.sweeper.Apply(rc)
		}
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
	a.log.Info("config reloaded", fields...)
	if len(ch.RestartRequired) > 0 {
		a.log.Warn("config sections need a restart to take effect", logx.String("sections", strings.Join(ch.RestartRequired, ",")))
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: eventbus.ConfigReloaded{Changed: ch.Sections}})
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Intake first, then the workers that consume it.
	step("adapter", 3*time.Second, a.adapter.Stop)
	a.sup.Cancel()
	step("retention", 3*time.Second, a.sweeper.Stop)
	step("broadcast", 3*time.Second, a.bcast.Stop)
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "hwbot/pkg/logx"
)

// Manager loads the config, keeps the committed copy and publishes validated
// changes of the watched files.
type Manager struct {
	path string
	env  Env

	mu       sync.RWMutex
	cfg      *Config
	lastHash uint64

	subsMu sync.Mutex
	subs   []chan *Config

	log      logx.Logger
	debounce time.Duration
}

func NewManager(path string, env Env, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{path: path, env: env, log: log.With(logx.String("comp", "config")), debounce: 250 * time.Millisecond}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log.With(logx.String("comp", "config")) }

// Parse builds a candidate config: file, env overlay, subject catalog,
// defaults and validation. An empty path means env-only configuration.
func (m *Manager) Parse() (*Config, error) {
	cfg := &Config{Logging: LoggingConfig{Console: true}}
	if m.path != "" {
		b, err := os.ReadFile(m.path)
		if err != nil {
			return nil, err
		}
		if cfg, err = Decode(m.path, b); err != nil {
			return nil, fmt.Errorf("%s: %w", m.path, err)
		}
	}
	m.env.Apply(cfg)
	m.resolveSubjects(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (m *Manager) resolveSubjects(cfg *Config) {
	if len(cfg.Subjects) > 0 {
		return
	}
	if p := m.subjectsPath(cfg); p != "" {
		subs, err := ReadSubjectsFile(p)
		if err == nil {
			cfg.Subjects = subs
			return
		}
		m.log.Warn("subjects file unusable, using default catalog", logx.String("path", p), logx.Err(err))
	}
	cfg.Subjects = append([]Subject(nil), DefaultSubjects...)
}

// subjectsPath resolves subjects_file relative to the config file.
func (m *Manager) subjectsPath(cfg *Config) string {
	p := strings.TrimSpace(cfg.SubjectsFile)
	if p == "" || filepath.IsAbs(p) || m.path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(m.path), p)
}

func (m *Manager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// publish delivers the newest config; a slow subscriber loses the older one.
func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			m.log.Debug("config update dropped (subscriber slow)", logx.Int("queue_cap", cap(ch)))
		}
	}
}

// Reload parses, validates and, when the content changed, commits and
// publishes. It reports whether a new config was published.
func (m *Manager) Reload() (bool, error) {
	cfg, err := m.Parse()
	if err != nil {
		return false, err
	}
	h := hashConfig(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		return false, nil
	}
	m.Commit(cfg)
	m.publish(cfg)
	return true, nil
}

func (m *Manager) watchedFiles() map[string]string {
	files := map[string]string{}
	if m.path != "" {
		files[strings.ToLower(filepath.Base(m.path))] = filepath.Dir(m.path)
	}
	if cfg := m.Get(); cfg != nil && len(cfg.Subjects) > 0 {
		if p := m.subjectsPath(cfg); p != "" {
			files[strings.ToLower(filepath.Base(p))] = filepath.Dir(p)
		}
	}
	return files
}

// Watch reloads on changes of the config file or the subjects file until ctx
// is done. A broken watcher is recreated with backoff.
func (m *Manager) Watch(ctx context.Context) error {
	files := m.watchedFiles()
	if len(files) == 0 {
		<-ctx.Done()
		return nil
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	trigger := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(m.debounce, func() {
			published, err := m.Reload()
			switch {
			case err != nil:
				m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
			case published:
				m.log.Debug("config published", logx.String("path", m.path))
			}
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	const (
		backoffBase = 250 * time.Millisecond
		backoffMax  = 5 * time.Second
	)
	backoff := backoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	sleep := func() bool {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		backoff = min(backoff*2, backoffMax)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
			return true
		}
	}

	for ctx.Err() == nil {
		w, err := newWatcher(files)
		if err != nil {
			m.log.Warn("config watch init failed", logx.Err(err))
			if !sleep() {
				return nil
			}
			continue
		}
		backoff = backoffBase
		m.log.Debug("config watcher started", logx.Int("files", len(files)))

		err = m.watchLoop(ctx, w, files, trigger)
		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		m.log.Warn("config watcher stopped; restarting", logx.Err(err))
		if !sleep() {
			return nil
		}
	}
	return nil
}

func newWatcher(files map[string]string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dirs := map[string]struct{}{}
	for _, d := range files {
		dirs[d] = struct{}{}
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("watch %s: %w", d, err)
		}
	}
	return w, nil
}

var errWatcherClosed = errors.New("watcher closed")

func (m *Manager) watchLoop(ctx context.Context, w *fsnotify.Watcher, files map[string]string, trigger func()) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if _, watched := files[strings.ToLower(filepath.Base(ev.Name))]; !watched {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				trigger()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherClosed
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; forcing reload")
				trigger()
				continue
			}
			m.log.Warn("config watch error", logx.Err(err))
		}
	}
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"

	logx "hwbot/pkg/logx"
)

const baseYAML = `
telegram:
  token: file-token
  admin_user_ids: [1, 2]
logging:
  level: debug
storage:
  driver: sqlite
  path: ./hw.db
  busy_timeout: 5s
retention:
  days: 3
conversation:
  idle_ttl: 10m
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseYAMLWithDefaults(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.yaml", baseYAML)
	cfg, err := NewManager(p, Env{}, logx.Nop()).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "file-token" || len(cfg.Telegram.AdminUserIDs) != 2 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Storage.BusyTimeout.D() != 5*time.Second || cfg.Conversation.IdleTTL.D() != 10*time.Minute {
		t.Fatalf("durations = %v %v", cfg.Storage.BusyTimeout.D(), cfg.Conversation.IdleTTL.D())
	}
	if cfg.Retention.Timezone != DefaultTimezone || cfg.Retention.Schedule != DefaultRetentionCron {
		t.Fatalf("retention defaults = %+v", cfg.Retention)
	}
	if !cfg.Logging.Console {
		t.Fatal("console logging should default on")
	}
	if len(cfg.Subjects) != len(DefaultSubjects) {
		t.Fatalf("subjects = %d, want default catalog", len(cfg.Subjects))
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", baseYAML)
	writeFile(t, dir, "subjects.json", `[{"id":"algebra","name":"Алгебра"}]`)

	env, err := ReadEnv(context.Background(), envconfig.MapLookuper(map[string]string{
		"BOT_TOKEN":         "env-token",
		"ADMIN_WHITELIST":   " 10, 20 ,,30",
		"HW_RETENTION_DAYS": "7",
		"TIMEZONE":          "UTC",
		"SUBJECTS_FILE":     "subjects.json",
		"DATABASE_PATH":     "/var/lib/hw.db",
	}))
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := NewManager(p, env, logx.Nop()).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if got := cfg.Telegram.AdminUserIDs; len(got) != 3 || got[0] != 10 || got[2] != 30 {
		t.Fatalf("admins = %v", got)
	}
	if cfg.Retention.Days != 7 || cfg.Retention.Timezone != "UTC" || cfg.Storage.Path != "/var/lib/hw.db" {
		t.Fatalf("overlay = %+v %+v", cfg.Retention, cfg.Storage)
	}
	if len(cfg.Subjects) != 1 || cfg.Subjects[0].ID != "algebra" {
		t.Fatalf("subjects = %+v", cfg.Subjects)
	}
}

func TestEnvOnlyConfig(t *testing.T) {
	t.Parallel()
	cfg, err := NewManager("", Env{BotToken: "x"}, logx.Nop()).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Driver != DefaultStorageDriver || cfg.Retention.Days != 0 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, file, body string
		env              Env
		want             string
	}{
		{"unknown field", "c.json", `{"telegram":{"token":"x"},"webhook":{}}`, Env{}, "unknown field"},
		{"missing token", "c.json", `{}`, Env{}, "telegram.token"},
		{"bad timezone", "c.json", `{"telegram":{"token":"x"},"retention":{"timezone":"Mars/Olympus"}}`, Env{}, "retention.timezone"},
		{"bad schedule", "c.json", `{"telegram":{"token":"x"},"retention":{"schedule":"whenever"}}`, Env{}, "retention.schedule"},
		{"bad duration", "c.yaml", "telegram: {token: x}\nconversation: {idle_ttl: soon}\n", Env{}, "invalid duration"},
		{"duplicate subject", "c.json", `{"telegram":{"token":"x"},"subjects":[{"id":"a","name":"A"},{"id":"a","name":"B"}]}`, Env{}, "duplicate"},
		{"trailing data", "c.json", `{"telegram":{"token":"x"}} {}`, Env{}, "trailing"},
	}
	for _, c := range cases {
		p := writeFile(t, t.TempDir(), c.file, c.body)
		_, err := NewManager(p, c.env, logx.Nop()).Parse()
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Fatalf("%s: err = %v, want %q", c.name, err, c.want)
		}
	}
}

func TestReadEnvRejectsMalformedNumbers(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"ADMIN_WHITELIST":   "12,abc",
		"HW_RETENTION_DAYS": "week",
	}
	for key, val := range cases {
		_, err := ReadEnv(context.Background(), envconfig.MapLookuper(map[string]string{key: val}))
		if err == nil {
			t.Fatalf("%s=%q: expected error", key, val)
		}
	}
}

func TestReadEnvUnsetLeavesFileValues(t *testing.T) {
	t.Parallel()
	env, err := ReadEnv(context.Background(), envconfig.MapLookuper(map[string]string{"HW_RETENTION_DAYS": "0"}))
	if err != nil {
		t.Fatal(err)
	}
	if env.AdminWhitelist != nil {
		t.Fatalf("whitelist = %v, want nil when unset", env.AdminWhitelist)
	}
	cfg := &Config{Telegram: TelegramConfig{AdminUserIDs: []int64{5}}, Retention: RetentionConfig{Days: 3}}
	env.Apply(cfg)
	if len(cfg.Telegram.AdminUserIDs) != 1 || cfg.Telegram.AdminUserIDs[0] != 5 {
		t.Fatalf("admins = %v", cfg.Telegram.AdminUserIDs)
	}
	if cfg.Retention.Days != 0 {
		t.Fatalf("days = %d, want explicit 0 from env", cfg.Retention.Days)
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	a := &Config{Telegram: TelegramConfig{Token: "t", AdminUserIDs: []int64{1}}, Retention: RetentionConfig{Days: 1}}
	b := *a
	b.Telegram.AdminUserIDs = []int64{1, 2}
	b.Retention.Days = 5
	b.Storage.Path = "other.db"

	ch := SummarizeChange(a, &b)
	for _, s := range []string{"admins", "retention", "storage"} {
		if !ch.Has(s) {
			t.Fatalf("missing section %q in %v", s, ch.Sections)
		}
	}
	if ch.Has("telegram") {
		t.Fatal("token unchanged but telegram reported")
	}
	if len(ch.RestartRequired) != 1 || ch.RestartRequired[0] != "storage" {
		t.Fatalf("restart = %v", ch.RestartRequired)
	}
}

func TestWatchPublishesValidChangesOnly(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"telegram":{"token":"x","admin_user_ids":[1]}}`)
	m := NewManager(p, Env{}, logx.Nop())
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	writeFile(t, dir, "config.json", `{"telegram":{"token":"x","admin_user_ids":[1]},"nope":1}`)
	select {
	case <-ch:
		t.Fatal("invalid config was published")
	case <-time.After(400 * time.Millisecond):
	}
	if got := m.Get().Telegram.AdminUserIDs; len(got) != 1 {
		t.Fatalf("committed config changed: %v", got)
	}

	writeFile(t, dir, "config.json", `{"telegram":{"token":"x","admin_user_ids":[1,5]}}`)
	select {
	case cfg := <-ch:
		if len(cfg.Telegram.AdminUserIDs) != 2 {
			t.Fatalf("published admins = %v", cfg.Telegram.AdminUserIDs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("valid change was not published")
	}
}

func TestDurationJSON(t *testing.T) {
	t.Parallel()
	var d Duration
	if err := d.UnmarshalJSON([]byte(`"1m30s"`)); err != nil || d.D() != 90*time.Second {
		t.Fatalf("d = %v, err = %v", d.D(), err)
	}
	if err := d.UnmarshalJSON([]byte(`"-1s"`)); err == nil {
		t.Fatal("negative duration accepted")
	}
	if err := d.UnmarshalJSON([]byte(`30`)); err == nil {
		t.Fatal("numeric duration accepted")
	}
}

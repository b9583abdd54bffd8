package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Env holds the environment overrides. Set values win over the file.
type Env struct {
	BotToken string `env:"BOT_TOKEN"`
	// Comma separated; blank items decode to 0 and are dropped by Apply.
	AdminWhitelist []int64 `env:"ADMIN_WHITELIST,noinit"`
	RetentionDays  *int    `env:"HW_RETENTION_DAYS,noinit"`
	Timezone       string  `env:"TIMEZONE"`
	SubjectsFile   string  `env:"SUBJECTS_FILE"`
	DatabasePath   string  `env:"DATABASE_PATH"`
	LogLevel       string  `env:"LOG_LEVEL"`
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ReadEnv maps variables from l onto Env. A nil l reads the process environment.
func ReadEnv(ctx context.Context, l envconfig.Lookuper) (Env, error) {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	var e Env
	if err := envconfig.ProcessWith(ctx, &e, l); err != nil {
		return Env{}, fmt.Errorf("parsing env vars: %w", err)
	}
	return e, nil
}

// Apply overlays set variables onto cfg.
func (e Env) Apply(cfg *Config) {
	if v := strings.TrimSpace(e.BotToken); v != "" {
		cfg.Telegram.Token = v
	}
	if e.AdminWhitelist != nil {
		ids := make([]int64, 0, len(e.AdminWhitelist))
		for _, id := range e.AdminWhitelist {
			if id != 0 {
				ids = append(ids, id)
			}
		}
		cfg.Telegram.AdminUserIDs = ids
	}
	if e.RetentionDays != nil {
		cfg.Retention.Days = *e.RetentionDays
	}
	if v := strings.TrimSpace(e.Timezone); v != "" {
		cfg.Retention.Timezone = v
	}
	if v := strings.TrimSpace(e.SubjectsFile); v != "" {
		cfg.SubjectsFile = v
	}
	if v := strings.TrimSpace(e.DatabasePath); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(e.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
}

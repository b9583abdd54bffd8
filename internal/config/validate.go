package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"hwbot/internal/datex"
	"hwbot/pkg/tgui"
)

const (
	DefaultTimezone       = "Asia/Yekaterinburg"
	DefaultRetentionCron  = "@every 1h"
	DefaultIdleTTL        = 30 * time.Minute
	DefaultStorageDriver  = "sqlite"
	DefaultStoragePath    = "homework.db"
	subjectCallbackPrefix = "SUBJECT:"
	DefaultWorkers        = 4
)

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// applyDefaults fills zero values. Subject resolution happens in the Manager.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DefaultStorageDriver
	}
	if cfg.Storage.Path == "" && cfg.Storage.Driver != "none" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Retention.Timezone == "" {
		cfg.Retention.Timezone = DefaultTimezone
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = DefaultRetentionCron
	}
	if cfg.Conversation.IdleTTL == 0 {
		cfg.Conversation.IdleTTL = Duration(DefaultIdleTTL)
	}
	if cfg.Conversation.Workers <= 0 {
		cfg.Conversation.Workers = DefaultWorkers
	}
}

// Validate reports every problem found, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required (or BOT_TOKEN)"))
	}
	for _, id := range cfg.Telegram.AdminUserIDs {
		if id <= 0 {
			errs = append(errs, fmt.Errorf("telegram.admin_user_ids: invalid id %d", id))
		}
	}
	if _, err := time.LoadLocation(cfg.Retention.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("retention.timezone: %w", err))
	}
	if _, err := scheduleParser.Parse(cfg.Retention.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("retention.schedule: %w", err))
	}
	if cfg.Broadcast.RatePerSec < 0 {
		errs = append(errs, errors.New("broadcast.rate_per_sec must be >= 0"))
	}
	errs = append(errs, validateSubjects(cfg.Subjects)...)
	return errors.Join(errs...)
}

func validateSubjects(subjects []Subject) []error {
	var errs []error
	if len(subjects) == 0 {
		return []error{errors.New("subjects: catalog is empty")}
	}
	seen := make(map[string]struct{}, len(subjects))
	for i, s := range subjects {
		switch {
		case strings.TrimSpace(s.ID) == "":
			errs = append(errs, fmt.Errorf("subjects[%d]: empty id", i))
		case strings.TrimSpace(s.Name) == "":
			errs = append(errs, fmt.Errorf("subjects[%d] %q: empty name", i, s.ID))
		case tgui.CheckData(subjectCallbackPrefix+s.ID) != nil:
			errs = append(errs, fmt.Errorf("subjects[%d] %q: id too long for a button", i, s.ID))
		}
		if _, dup := seen[s.ID]; dup {
			errs = append(errs, fmt.Errorf("subjects[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = struct{}{}
	}
	return errs
}

// Location resolves the configured zone.
func (c *Config) Location() (*time.Location, error) {
	return datex.LoadLocation(c.Retention.Timezone)
}

// AdminSet returns the admin ids as a set.
func (c *Config) AdminSet() map[int64]struct{} {
	out := make(map[int64]struct{}, len(c.Telegram.AdminUserIDs))
	for _, id := range c.Telegram.AdminUserIDs {
		out[id] = struct{}{}
	}
	return out
}

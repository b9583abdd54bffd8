package app

import (
	"fmt"
	"strings"
	"time"

	"hwbot/internal/broadcast"
	"hwbot/internal/config"
	"hwbot/internal/conversation"
	"hwbot/internal/retention"
	"hwbot/internal/storage"
	"hwbot/internal/transport/telegram/adapter"
	"hwbot/internal/transport/telegram/router"
	logx "hwbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: sc.Path}, nil
	case "sqlite", "sqlite3":
		if strings.TrimSpace(sc.Path) == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy := sc.BusyTimeout.D()
		if busy <= 0 {
			busy = time.Second
		}
		return storage.Config{Driver: driver, Path: sc.Path, BusyTimeout: busy}, nil
	case "none":
		return storage.Config{}, fmt.Errorf("storage.driver=none: notices need a record store")
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapAdapterConfig(cfg *config.Config) adapter.Config {
	return adapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeout.D(),
		APIURL:      cfg.Telegram.APIURL,
	}
}

func mapBroadcastConfig(cfg *config.Config) broadcast.Config {
	return broadcast.Config{
		RatePerSec:  cfg.Broadcast.RatePerSec,
		QueueSize:   cfg.Broadcast.QueueSize,
		FloodMargin: cfg.Broadcast.FloodMargin.D(),
		SendTimeout: cfg.Broadcast.SendTimeout.D(),
	}
}

func mapDispatchConfig(cfg *config.Config) router.Config {
	return router.Config{
		Workers:   cfg.Conversation.Workers,
		QueueSize: cfg.Conversation.QueueSize,
		Timeout:   cfg.Conversation.Timeout.D(),
	}
}

func mapRetentionConfig(cfg *config.Config) (retention.Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return retention.Config{}, err
	}
	return retention.Config{
		Days:     cfg.Retention.Days,
		Location: loc,
		Schedule: cfg.Retention.Schedule,
	}, nil
}

func mapSettings(cfg *config.Config) (conversation.Settings, error) {
	loc, err := cfg.Location()
	if err != nil {
		return conversation.Settings{}, err
	}
	subjects := make([]conversation.Subject, 0, len(cfg.Subjects))
	for _, s := range cfg.Subjects {
		subjects = append(subjects, conversation.Subject{ID: s.ID, Name: s.Name})
	}
	return conversation.Settings{Admins: cfg.AdminSet(), Subjects: subjects, Location: loc}, nil
}

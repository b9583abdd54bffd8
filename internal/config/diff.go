package config

import (
	"reflect"
	"slices"

	logx "hwbot/pkg/logx"
)

// Change describes a reload.
type Change struct {
	// Sections lists changed top-level sections.
	Sections []string
	// Attrs are log-safe fields (the token is never included).
	Attrs []logx.Field
	// RestartRequired lists sections whose change takes effect only after a restart.
	RestartRequired []string
}

func (c Change) Has(section string) bool { return slices.Contains(c.Sections, section) }

// SummarizeChange compares two configs section by section.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, attrs ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		ch.Attrs = append(ch.Attrs, attrs...)
		if restart {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
	}

	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout ||
		oldCfg.Telegram.APIURL != newCfg.Telegram.APIURL {
		mark("telegram", true, logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token))
	}
	if !slices.Equal(oldCfg.Telegram.AdminUserIDs, newCfg.Telegram.AdminUserIDs) {
		mark("admins", false, logx.Int("admins.count", len(newCfg.Telegram.AdminUserIDs)))
	}
	if oldCfg.Logging != newCfg.Logging {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		mark("storage", true, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Retention.Days != newCfg.Retention.Days || oldCfg.Retention.Timezone != newCfg.Retention.Timezone {
		mark("retention", false,
			logx.Int("retention.days", newCfg.Retention.Days),
			logx.String("retention.timezone", newCfg.Retention.Timezone),
		)
	}
	if oldCfg.Retention.Schedule != newCfg.Retention.Schedule {
		mark("retention.schedule", true, logx.String("retention.schedule", newCfg.Retention.Schedule))
	}
	if oldCfg.Conversation != newCfg.Conversation {
		mark("conversation", true, logx.Int("conversation.workers", newCfg.Conversation.Workers))
	}
	if oldCfg.Broadcast != newCfg.Broadcast {
		mark("broadcast", true, logx.Any("broadcast.rate_per_sec", newCfg.Broadcast.RatePerSec))
	}
	if !reflect.DeepEqual(oldCfg.Subjects, newCfg.Subjects) {
		mark("subjects", false, logx.Int("subjects.count", len(newCfg.Subjects)))
	}
	return ch
}

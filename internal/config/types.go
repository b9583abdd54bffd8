package config

// Config is the on-disk configuration (JSON or YAML). Environment overrides are
// applied on top by the Manager.
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Logging      LoggingConfig      `json:"logging"`
	Storage      StorageConfig      `json:"storage"`
	Retention    RetentionConfig    `json:"retention"`
	Conversation ConversationConfig `json:"conversation"`
	Broadcast    BroadcastConfig    `json:"broadcast"`

	// Subjects is the inline catalog. When empty, SubjectsFile is read; when
	// that fails too, DefaultSubjects is used.
	Subjects     []Subject `json:"subjects,omitempty"`
	SubjectsFile string    `json:"subjects_file,omitempty"`
}

type TelegramConfig struct {
	Token        string   `json:"token"`
	AdminUserIDs []int64  `json:"admin_user_ids"`
	PollTimeout  Duration `json:"poll_timeout,omitempty"`
	// APIURL overrides the Bot API endpoint (local bot-api server).
	APIURL string `json:"api_url,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the Record Store adapter.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./homework.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Driver      string   `json:"driver"`
	Path        string   `json:"path"`
	BusyTimeout Duration `json:"busy_timeout,omitempty"`
}

type RetentionConfig struct {
	// Days is how many past days of notices are kept; <=0 keeps only today and later.
	Days     int    `json:"days"`
	Timezone string `json:"timezone,omitempty"`
	Schedule string `json:"schedule,omitempty"`
}

type ConversationConfig struct {
	IdleTTL   Duration `json:"idle_ttl,omitempty"`
	Workers   int      `json:"workers,omitempty"`
	QueueSize int      `json:"queue_size,omitempty"`
	Timeout   Duration `json:"timeout,omitempty"`
}

type BroadcastConfig struct {
	RatePerSec  float64  `json:"rate_per_sec,omitempty"`
	QueueSize   int      `json:"queue_size,omitempty"`
	FloodMargin Duration `json:"flood_margin,omitempty"`
	SendTimeout Duration `json:"send_timeout,omitempty"`
}

type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

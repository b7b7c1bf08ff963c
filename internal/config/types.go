package config

// Config is the on-disk configuration. JSON or YAML; unknown fields are
// rejected. All durations are Go duration strings ("100ms", "30s", "720h").
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Alarms   AlarmsConfig   `json:"alarms"`
	Notifier NotifierConfig `json:"notifier"`
	History  HistoryConfig  `json:"history"`
	HTTP     HTTPConfig     `json:"http"`
	Metrics  MetricsConfig  `json:"metrics"`
	Systemd  SystemdConfig  `json:"systemd"`
	Pprof    PprofConfig    `json:"pprof"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// AlarmsConfig controls the store, scheduler and journal.
//
// Defaults:
//   - log_file: log/events.log
//   - timezone: local
//   - poll_interval: 100ms
//   - callback_timeout: 2m
type AlarmsConfig struct {
	LogFile         string `json:"log_file"`
	Timezone        string `json:"timezone,omitempty"`
	PollInterval    string `json:"poll_interval,omitempty"`
	CallbackTimeout string `json:"callback_timeout,omitempty"`
}

type NotifierConfig struct {
	Timeout    string         `json:"timeout,omitempty"`
	RatePerSec int            `json:"rate_per_sec,omitempty"`
	Console    bool           `json:"console"`
	Webhook    WebhookConfig  `json:"webhook"`
	Telegram   TelegramConfig `json:"telegram"`
}

type WebhookConfig struct {
	URL     string `json:"url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
}

// HistoryConfig selects the notification history backend and its retention.
//
// driver: memory (default), file, sqlite, postgres.
// prune_schedule is a cron spec (robfig/cron, optional seconds field);
// empty disables pruning.
type HistoryConfig struct {
	Driver        string `json:"driver,omitempty"`
	Path          string `json:"path,omitempty"`
	DSN           string `json:"dsn,omitempty"`
	MaxRecords    int    `json:"max_records,omitempty"`
	Retention     string `json:"retention,omitempty"`
	PruneSchedule string `json:"prune_schedule,omitempty"`
	BusyTimeout   string `json:"busy_timeout,omitempty"`
}

type HTTPConfig struct {
	Addr         string `json:"addr"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type SystemdConfig struct {
	Notify bool `json:"notify"`
}

// PprofConfig controls the profiling listener. It is applied live on reload.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Prefix        string `json:"prefix,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

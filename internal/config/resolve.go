package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultLogFile         = "log/events.log"
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultCallbackTimeout = 2 * time.Minute
	DefaultNotifyTimeout   = 30 * time.Second
	DefaultHTTPAddr        = "127.0.0.1:8080"
	DefaultMetricsPath     = "/metrics"
)

// CronParser accepts standard five-field specs, an optional leading seconds
// field and descriptors such as @daily.
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Alarms holds the resolved alarm settings.
type Alarms struct {
	LogFile         string
	Location        *time.Location
	PollInterval    time.Duration
	CallbackTimeout time.Duration
}

func (c AlarmsConfig) Resolve() (Alarms, error) {
	out := Alarms{LogFile: strings.TrimSpace(c.LogFile), Location: time.Local}
	if out.LogFile == "" {
		out.LogFile = DefaultLogFile
	}
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return out, fmt.Errorf("alarms.timezone: %w", err)
		}
		out.Location = loc
	}
	var err error
	if out.PollInterval, err = ParseDurationOrDefault("alarms.poll_interval", c.PollInterval, DefaultPollInterval); err != nil {
		return out, err
	}
	if out.CallbackTimeout, err = ParseDurationOrDefault("alarms.callback_timeout", c.CallbackTimeout, DefaultCallbackTimeout); err != nil {
		return out, err
	}
	return out, nil
}

// History holds the resolved retention settings.
type History struct {
	Retention   time.Duration
	BusyTimeout time.Duration
	Schedule    cron.Schedule
}

func (c HistoryConfig) Resolve() (History, error) {
	var (
		out History
		err error
	)
	if out.Retention, err = ParseDurationField("history.retention", c.Retention); err != nil {
		return out, err
	}
	if out.BusyTimeout, err = ParseDurationField("history.busy_timeout", c.BusyTimeout); err != nil {
		return out, err
	}
	if c.MaxRecords < 0 {
		return out, errors.New("history.max_records must be >= 0")
	}
	if spec := strings.TrimSpace(c.PruneSchedule); spec != "" {
		if out.Schedule, err = CronParser.Parse(spec); err != nil {
			return out, fmt.Errorf("history.prune_schedule: %w", err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "", "memory", "file", "sqlite", "sqlite3", "postgres", "postgresql", "pgx":
	default:
		return out, fmt.Errorf("history.driver: unknown driver %q", c.Driver)
	}
	return out, nil
}

// HTTP holds the resolved server timeouts.
type HTTP struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (c HTTPConfig) Resolve() (HTTP, error) {
	out := HTTP{Addr: strings.TrimSpace(c.Addr)}
	if out.Addr == "" {
		out.Addr = DefaultHTTPAddr
	}
	var err error
	if out.ReadTimeout, err = ParseDurationOrDefault("http.read_timeout", c.ReadTimeout, 10*time.Second); err != nil {
		return out, err
	}
	if out.WriteTimeout, err = ParseDurationOrDefault("http.write_timeout", c.WriteTimeout, 10*time.Second); err != nil {
		return out, err
	}
	if out.IdleTimeout, err = ParseDurationOrDefault("http.idle_timeout", c.IdleTimeout, time.Minute); err != nil {
		return out, err
	}
	return out, nil
}

// Validate checks every section. The watcher runs it before committing a
// reload.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if _, err := c.Alarms.Resolve(); err != nil {
		return err
	}
	if _, err := c.History.Resolve(); err != nil {
		return err
	}
	if _, err := c.HTTP.Resolve(); err != nil {
		return err
	}
	if _, err := ParseDurationField("notifier.timeout", c.Notifier.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("notifier.webhook.timeout", c.Notifier.Webhook.Timeout); err != nil {
		return err
	}
	if c.Notifier.RatePerSec < 0 {
		return errors.New("notifier.rate_per_sec must be >= 0")
	}
	if u := strings.TrimSpace(c.Notifier.Webhook.URL); u != "" {
		pu, err := url.Parse(u)
		if err != nil || (pu.Scheme != "http" && pu.Scheme != "https") || pu.Host == "" {
			return fmt.Errorf("notifier.webhook.url: invalid url %q", u)
		}
	}
	if strings.TrimSpace(c.Notifier.Telegram.Token) != "" && c.Notifier.Telegram.ChatID == 0 {
		return errors.New("notifier.telegram.chat_id is required when token is set")
	}
	if p := strings.TrimSpace(c.Metrics.Path); p != "" && !strings.HasPrefix(p, "/") {
		return fmt.Errorf("metrics.path must start with /: %q", p)
	}
	return nil
}

// MetricsPath returns the configured metrics path or the default.
func (c MetricsConfig) MetricsPath() string {
	if p := strings.TrimSpace(c.Path); p != "" {
		return p
	}
	return DefaultMetricsPath
}

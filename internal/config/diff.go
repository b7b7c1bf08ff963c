package config

import (
	"strings"

	logx "smartalarm/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and log-safe fields
// describing the new values. Secrets such as tokens, the postgres DSN and the
// webhook URL are reported only as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)
	o, n := oldCfg, newCfg

	if o.Logging != n.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", n.Logging.Level),
			logx.Bool("logging.console", n.Logging.Console),
			logx.Bool("logging.file_enabled", n.Logging.File.Enabled),
		)
	}

	if o.Alarms != n.Alarms {
		changed = append(changed, "alarms")
		attrs = append(attrs,
			logx.String("alarms.log_file", strings.TrimSpace(n.Alarms.LogFile)),
			logx.String("alarms.timezone", strings.TrimSpace(n.Alarms.Timezone)),
			logx.String("alarms.poll_interval", strings.TrimSpace(n.Alarms.PollInterval)),
			logx.String("alarms.callback_timeout", strings.TrimSpace(n.Alarms.CallbackTimeout)),
		)
	}

	if o.Notifier != n.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.String("notifier.timeout", strings.TrimSpace(n.Notifier.Timeout)),
			logx.Int("notifier.rate_per_sec", n.Notifier.RatePerSec),
			logx.Bool("notifier.console", n.Notifier.Console),
			logx.Bool("notifier.webhook_set", strings.TrimSpace(n.Notifier.Webhook.URL) != ""),
			logx.Bool("notifier.telegram_set", strings.TrimSpace(n.Notifier.Telegram.Token) != ""),
			logx.Int64("notifier.telegram_chat_id", n.Notifier.Telegram.ChatID),
		)
	}

	if o.History != n.History {
		changed = append(changed, "history")
		attrs = append(attrs,
			logx.String("history.driver", strings.TrimSpace(n.History.Driver)),
			logx.String("history.path", strings.TrimSpace(n.History.Path)),
			logx.Bool("history.dsn_set", strings.TrimSpace(n.History.DSN) != ""),
			logx.Int("history.max_records", n.History.MaxRecords),
			logx.String("history.retention", strings.TrimSpace(n.History.Retention)),
			logx.String("history.prune_schedule", strings.TrimSpace(n.History.PruneSchedule)),
		)
	}

	if o.HTTP != n.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs, logx.String("http.addr", strings.TrimSpace(n.HTTP.Addr)))
	}
	if o.Metrics != n.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs, logx.Bool("metrics.enabled", n.Metrics.Enabled), logx.String("metrics.path", n.Metrics.Path))
	}
	if o.Systemd != n.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs, logx.Bool("systemd.notify", n.Systemd.Notify))
	}
	if o.Pprof != n.Pprof {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", n.Pprof.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(n.Pprof.Addr)),
			logx.Bool("pprof.token_set", strings.TrimSpace(n.Pprof.Token) != ""),
		)
	}
	return changed, attrs
}

// RestartRequired lists changed sections that only take effect after a
// restart.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Alarms != newCfg.Alarms {
		out = append(out, "alarms")
	}
	on, nn := oldCfg.Notifier, newCfg.Notifier
	on.RatePerSec, nn.RatePerSec = 0, 0
	on.Timeout, nn.Timeout = "", ""
	if on != nn {
		out = append(out, "notifier.deliverers")
	}
	oh, nh := oldCfg.History, newCfg.History
	oh.Retention, nh.Retention = "", ""
	oh.MaxRecords, nh.MaxRecords = 0, 0
	oh.PruneSchedule, nh.PruneSchedule = "", ""
	if oh != nh {
		out = append(out, "history.backend")
	}
	if oldCfg.HTTP != newCfg.HTTP {
		out = append(out, "http")
	}
	if oldCfg.Metrics != newCfg.Metrics {
		out = append(out, "metrics")
	}
	return out
}

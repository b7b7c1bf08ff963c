package app

import (
	"strings"

	"smartalarm/internal/config"
	"smartalarm/internal/notifier"
	"smartalarm/internal/observability/pprof"
	"smartalarm/internal/storage"
	logx "smartalarm/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapNotifier(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	timeout, err := config.ParseDurationOrDefault("notifier.timeout", nc.Timeout, config.DefaultNotifyTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	hookTimeout, err := config.ParseDurationField("notifier.webhook.timeout", nc.Webhook.Timeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Timeout:    timeout,
		RatePerSec: nc.RatePerSec,
		Console:    nc.Console,
		Webhook: notifier.WebhookConfig{
			URL:     strings.TrimSpace(nc.Webhook.URL),
			Timeout: hookTimeout,
		},
		Telegram: notifier.TelegramConfig{
			Token:    strings.TrimSpace(nc.Telegram.Token),
			ChatID:   nc.Telegram.ChatID,
			ThreadID: nc.Telegram.ThreadID,
			APIURL:   strings.TrimSpace(nc.Telegram.APIURL),
		},
	}, nil
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	hc := cfg.History
	res, err := hc.Resolve()
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(hc.Driver)),
		Path:        strings.TrimSpace(hc.Path),
		DSN:         strings.TrimSpace(hc.DSN),
		MaxRecords:  hc.MaxRecords,
		BusyTimeout: res.BusyTimeout,
	}, nil
}

func mapPprof(cfg *config.Config) pprof.Config {
	pc := cfg.Pprof
	return pprof.Config{
		Enabled:       pc.Enabled,
		Addr:          strings.TrimSpace(pc.Addr),
		Prefix:        strings.TrimSpace(pc.Prefix),
		Token:         strings.TrimSpace(pc.Token),
		AllowInsecure: pc.AllowInsecure,
	}
}

package notifier

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "smartalarm/pkg/logx"
)

// Config selects deliverers and throttling.
type Config struct {
	Timeout    time.Duration
	RatePerSec int
	Console    bool
	Webhook    WebhookConfig
	Telegram   TelegramConfig
}

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	APIURL   string
}

const (
	defaultTimeout    = 30 * time.Second
	defaultRatePerSec = 3
)

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = defaultRatePerSec
	}
	return c
}

// Service is the Notifier the firing controller talks to.
type Service struct {
	log logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	out     Multi
}

// New builds the deliverers named in cfg. With none configured, alarms are
// written to the log only.
func New(cfg Config, log logx.Logger, extra ...Notifier) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()

	var out Multi
	if cfg.Console {
		out = append(out, NewConsole(os.Stdout))
	}
	if cfg.Webhook.URL != "" {
		var opts []WebhookOption
		if cfg.Webhook.Timeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.Webhook.Timeout}))
		}
		w, err := NewWebhook(cfg.Webhook.URL, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if cfg.Telegram.Token != "" {
		t, err := NewTelegram(cfg.Telegram)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	out = append(out, extra...)
	if len(out) == 0 {
		out = append(out, logNotifier{log: log})
	}

	s := &Service{log: log, out: out}
	s.applyLocked(cfg)
	log.Info("notifier ready", logx.Int("deliverers", len(out)), logx.Int("rate_per_sec", cfg.RatePerSec), logx.Duration("timeout", cfg.Timeout))
	return s, nil
}

// Apply updates throttling and timeout. Deliverers are fixed at startup.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg.withDefaults())
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	s.cfg = cfg
	// burst = rate per sec, so short spikes don't block too hard.
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
		return
	}
	s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	s.limiter.SetBurst(cfg.RatePerSec)
}

// Timeout is the bound callers should give each Notify.
func (s *Service) Timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Timeout
}

func (s *Service) Notify(ctx context.Context, name, triggerTime string) error {
	s.mu.Lock()
	lim := s.limiter
	out := s.out
	s.mu.Unlock()

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}
	return out.Notify(ctx, name, triggerTime)
}

type logNotifier struct{ log logx.Logger }

func (l logNotifier) Notify(_ context.Context, name, triggerTime string) error {
	l.log.Warn(Message, logx.String("name", name), logx.String("trigger_time", triggerTime))
	return nil
}

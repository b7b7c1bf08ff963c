package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-systemd/v22/daemon"

	"smartalarm/internal/alarm"
	"smartalarm/internal/api"
	"smartalarm/internal/config"
	"smartalarm/internal/eventbus"
	"smartalarm/internal/firing"
	"smartalarm/internal/journal"
	"smartalarm/internal/metrics"
	"smartalarm/internal/notifier"
	"smartalarm/internal/observability/pprof"
	"smartalarm/internal/scheduler"
	"smartalarm/internal/storage"
	logx "smartalarm/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service

	alarmsCfg config.Alarms
	metrics   *metrics.Metrics
	bus       eventbus.Bus
	history   storage.History
	journal   *journal.Log
	sched     *scheduler.Service
	store     *alarm.Store
	notif     *notifier.Service
	ctl       *firing.Controller
	pruner    *pruner
	server    *api.Server
	pprof     *pprof.Service

	sdNotify bool
}

// NewApp loads the config and constructs every component. Nothing runs until
// Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.NewService(mapLogging(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logs,
		sdNotify: cfg.Systemd.Notify,
	}
	if err := a.build(cfg); err != nil {
		a.closeStorage()
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *Config) error {
	var err error
	if a.alarmsCfg, err = cfg.Alarms.Resolve(); err != nil {
		return err
	}
	hist, err := cfg.History.Resolve()
	if err != nil {
		return err
	}
	httpCfg, err := cfg.HTTP.Resolve()
	if err != nil {
		return err
	}
	nc, err := mapNotifier(cfg)
	if err != nil {
		return err
	}
	sc, err := mapStorage(cfg)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
	}

	if a.history, err = storage.Open(sc, a.log.With(logx.String("comp", "history"))); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if a.journal, err = journal.Open(a.alarmsCfg.LogFile, a.log.With(logx.String("comp", "journal"))); err != nil {
		return fmt.Errorf("journal: %w", err)
	}

	a.sched = scheduler.New(scheduler.Config{
		PollInterval:    a.alarmsCfg.PollInterval,
		CallbackTimeout: a.alarmsCfg.CallbackTimeout,
	}, a.log.With(logx.String("comp", "scheduler")))

	storeOpts := []alarm.Option{}
	if a.metrics != nil {
		storeOpts = append(storeOpts, alarm.WithObserver(a.metrics))
	}
	a.store = alarm.NewStore(a.sched, a.journal, a.log.With(logx.String("comp", "alarms")), storeOpts...)

	if a.notif, err = notifier.New(nc, a.log.With(logx.String("comp", "notifier"))); err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	a.bus = eventbus.New()
	a.ctl = firing.New(a.store, a.notif, a.history, a.log.With(logx.String("comp", "firing")),
		firing.WithMetrics(a.metrics),
		firing.WithEvents(a.bus),
	)
	a.store.Bind(a.ctl)

	a.pruner = newPruner(a.history, a.metrics, a.log)
	a.pruner.apply(cfg.History.MaxRecords, hist.Retention)
	a.pruner.schedule = hist.Schedule

	var metricsHandler http.Handler
	if a.metrics != nil {
		metricsHandler = a.metrics.Handler()
	}
	handler := api.NewHandler(a.store, a.history, a.alarmsCfg.Location,
		a.log.With(logx.String("comp", "api")), metricsHandler, cfg.Metrics.MetricsPath())
	a.server = api.NewServer(api.ServerConfig{
		Addr:         httpCfg.Addr,
		ReadTimeout:  httpCfg.ReadTimeout,
		WriteTimeout: httpCfg.WriteTimeout,
		IdleTimeout:  httpCfg.IdleTimeout,
	}, handler, a.log)
	a.pprof = pprof.New(mapPprof(cfg), a.log)
	return nil
}

// Store exposes the alarm store for embedding callers and tests.
func (a *App) Store() *alarm.Store { return a.store }

func (a *App) History() storage.History { return a.history }

// Addr blocks until the HTTP listener is bound.
func (a *App) Addr(ctx context.Context) (string, error) { return a.server.Addr(ctx) }

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = NewSupervisor(ctx,
		WithLogger(a.log),
		WithCancelOnError(false),
	)
	a.cfgm.SetValidator(func(_ context.Context, cfg *Config) error {
		_, err := mapNotifier(cfg)
		return err
	})

	rep := journal.Restore(a.journal.Path(), a.store, a.alarmsCfg.Location, a.log.With(logx.String("comp", "journal")))
	a.metrics.Recovered(rep.Restored, rep.Expired, rep.Skipped)
	if rep.Reason == nil {
		a.log.Info("alarms recovered",
			logx.Int("restored", rep.Restored),
			logx.Int("expired", rep.Expired),
			logx.Int("skipped", rep.Skipped),
		)
	}

	a.sched.Start(a.sup.Context())
	a.metrics.WatchPending(a.sched.Pending)
	a.pruner.start(a.alarmsCfg.Location)
	a.server.Start(a.sup.Context())
	a.pprof.Start(a.sup.Context())

	a.watchEvents()
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.watchReloads()

	if a.sdNotify {
		if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			a.log.Warn("sd_notify ready failed", logx.Err(err))
		} else if !ok {
			a.log.Debug("sd_notify unsupported (NOTIFY_SOCKET unset)")
		}
	}
	a.log.Info("smartalarm started",
		logx.String("config", a.cfgPath),
		logx.String("log_file", a.alarmsCfg.LogFile),
		logx.Int("alarms", a.store.Len()),
	)
	return nil
}

func (a *App) watchEvents() {
	events, unsub := a.bus.Subscribe(128)
	log := a.log.With(logx.String("comp", "events"))
	a.sup.Go0("events.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				fields := []logx.Field{
					logx.String("type", string(e.Kind)),
					logx.String("name", e.Name),
					logx.String("at", alarm.FormatTime(e.TriggerTime)),
				}
				if !e.Next.IsZero() {
					fields = append(fields, logx.String("next", alarm.FormatTime(e.Next)))
				}
				if e.Err != "" {
					fields = append(fields, logx.String("err", e.Err))
				}
				log.Debug("event", fields...)
			}
		}
	})
}

// watchReloads fans committed configs out to the live-tunable components.
func (a *App) watchReloads() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
}

func (a *App) applyConfig(oldCfg, newCfg *Config) {
	if newCfg == nil {
		return
	}
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)

	a.logs.Apply(mapLogging(newCfg))
	if nc, err := mapNotifier(newCfg); err == nil {
		a.notif.Apply(nc)
	}
	a.pprof.Reconfigure(a.sup.Context(), mapPprof(newCfg))
	if hist, err := newCfg.History.Resolve(); err == nil {
		a.pruner.apply(newCfg.History.MaxRecords, hist.Retention)
	}
	if oldCfg != nil && oldCfg.History.PruneSchedule != newCfg.History.PruneSchedule {
		a.log.Warn("history.prune_schedule changed; restart required for changes to take effect")
	}
	if restart := config.RestartRequired(oldCfg, newCfg); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}
}

// Stop tears components down in reverse start order. The journal and the
// history store are closed last.
func (a *App) Stop(ctx context.Context) {
	if a.sdNotify {
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	}
	a.log.Info("stopping")

	if a.pprof != nil {
		a.pprof.Stop(ctx)
	}
	if a.server != nil {
		a.server.Stop(ctx)
	}
	if a.pruner != nil {
		a.pruner.stop(ctx)
	}
	if a.sched != nil {
		a.sched.Stop(ctx)
	}
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("supervisor stop", logx.Err(err))
		}
	}
	a.closeStorage()
	if a.bus != nil && a.bus.Dropped() > 0 {
		a.log.Warn("events dropped by slow listeners", logx.Uint64("dropped", a.bus.Dropped()))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
}

func (a *App) closeStorage() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Warn("journal close", logx.Err(err))
		}
		a.journal = nil
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.log.Warn("history close", logx.Err(err))
		}
		a.history = nil
	}
}

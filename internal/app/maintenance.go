package app

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"smartalarm/internal/config"
	"smartalarm/internal/metrics"
	"smartalarm/internal/storage"
	logx "smartalarm/pkg/logx"
)

// pruner trims notification history on a cron schedule. Keep and retention
// follow config reloads; the schedule itself is fixed at startup.
type pruner struct {
	history storage.History
	metrics *metrics.Metrics
	log     logx.Logger
	now     func() time.Time
	// schedule is nil when pruning is disabled.
	schedule cron.Schedule

	mu        sync.Mutex
	keep      int
	retention time.Duration
	c         *cron.Cron
}

func newPruner(h storage.History, m *metrics.Metrics, log logx.Logger) *pruner {
	return &pruner{history: h, metrics: m, log: log.With(logx.String("comp", "history.prune")), now: time.Now}
}

func (p *pruner) apply(keep int, retention time.Duration) {
	p.mu.Lock()
	p.keep, p.retention = keep, retention
	p.mu.Unlock()
}

func (p *pruner) start(loc *time.Location) {
	sched := p.schedule
	if sched == nil {
		p.log.Debug("prune disabled")
		return
	}
	if loc == nil {
		loc = time.Local
	}
	p.c = cron.New(cron.WithParser(config.CronParser), cron.WithLocation(loc))
	p.c.Schedule(sched, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		p.run(ctx)
	}))
	p.c.Start()
	p.log.Info("prune scheduled", logx.Time("next", sched.Next(p.now())))
}

func (p *pruner) run(ctx context.Context) int64 {
	p.mu.Lock()
	keep, retention := p.keep, p.retention
	p.mu.Unlock()
	if keep <= 0 && retention <= 0 {
		return 0
	}
	var cutoff time.Time
	if retention > 0 {
		cutoff = p.now().Add(-retention)
	}
	n, err := p.history.Prune(ctx, keep, cutoff)
	if err != nil {
		p.log.Warn("prune failed", logx.Err(err))
		return 0
	}
	p.metrics.Pruned(n)
	if n > 0 {
		p.log.Info("history pruned", logx.Int64("removed", n), logx.Int("keep", keep), logx.Duration("retention", retention))
	}
	return n
}

func (p *pruner) stop(ctx context.Context) {
	if p.c == nil {
		return
	}
	done := p.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		p.log.Warn("prune job still running at shutdown")
	}
}

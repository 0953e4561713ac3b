package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"newswire/internal/config"
	"newswire/internal/logger"
	"newswire/pkg/models"
)

// Default cron schedules per tier.
var defaultSchedules = map[models.PriorityTier]string{
	models.TierHigh:   "0 * * * *",
	models.TierMedium: "0 */3 * * *",
	models.TierLow:    "0 */6 * * *",
}

// Runner triggers tier sweeps on their cron schedules. Sweeps of the same
// tier never overlap: a trigger that fires while the previous sweep is still
// going is skipped.
type Runner struct {
	service *Service
	cron    *cron.Cron
	running map[models.PriorityTier]*atomic.Bool
	tiers   map[string]config.TierConfig
	logger  logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(cfg config.SchedulerConfig, service *Service, log logger.Logger) *Runner {
	running := make(map[models.PriorityTier]*atomic.Bool, len(models.AllTiers()))
	for _, tier := range models.AllTiers() {
		running[tier] = &atomic.Bool{}
	}
	return &Runner{
		service: service,
		cron:    cron.New(),
		running: running,
		tiers:   cfg.Tiers,
		logger:  log,
	}
}

func (r *Runner) schedule(tier models.PriorityTier) string {
	if tc, ok := r.tiers[string(tier)]; ok && tc.Schedule != "" {
		return tc.Schedule
	}
	return defaultSchedules[tier]
}

// Start registers all tier triggers and starts the cron loop.
func (r *Runner) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	for _, tier := range models.AllTiers() {
		tier := tier
		spec := r.schedule(tier)
		if _, err := r.cron.AddFunc(spec, func() {
			r.TriggerTier(tier)
		}); err != nil {
			return err
		}
		r.logger.Infow("Tier sweep scheduled",
			"tier", string(tier),
			"schedule", spec,
		)
	}

	r.cron.Start()
	return nil
}

// TriggerTier runs one sweep for a tier unless one is already in flight.
// It returns immediately; the sweep runs on its own goroutine.
func (r *Runner) TriggerTier(tier models.PriorityTier) bool {
	guard := r.running[tier]
	if guard == nil || !guard.CompareAndSwap(false, true) {
		r.logger.Warnw("Tier sweep still running, skipping trigger",
			"tier", string(tier),
		)
		return false
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer guard.Store(false)
		r.service.RunForTier(r.ctx, tier)
	}()
	return true
}

// Stop halts the cron loop and waits for in-flight sweeps.
func (r *Runner) Stop() {
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

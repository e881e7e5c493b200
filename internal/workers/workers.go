package workers

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fleetwatch/internal/config"
	"fleetwatch/internal/logger"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/storage"
)

// Retention runs the auto-close and auto-delete workers as independent
// periodic loops against the shared store.
type Retention struct {
	autoClose  *AutoCloseWorker
	autoDelete *AutoDeleteWorker
	interval   time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRetention builds both workers from config.
func NewRetention(store storage.Store, cfg *config.Config) *Retention {
	ctx, cancel := context.WithCancel(context.Background())
	return &Retention{
		autoClose:  NewAutoCloseWorker(store, cfg.Rules),
		autoDelete: NewAutoDeleteWorker(store, cfg.Retention.DeleteGrace()),
		interval:   cfg.Retention.PollInterval(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches one loop per worker.
func (r *Retention) Start() {
	log := logger.WithComponent("retention")
	log.Info().
		Dur("interval", r.interval).
		Msg("starting retention workers")

	r.wg.Add(2)
	go r.loop("auto_close", r.autoClose.Tick)
	go r.loop("auto_delete", r.autoDelete.Tick)
}

// Stop cancels both loops and waits for in-flight ticks to finish.
func (r *Retention) Stop() {
	log := logger.WithComponent("retention")
	log.Info().Msg("stopping retention workers")
	r.cancel()
	r.wg.Wait()
	log.Info().Msg("retention workers stopped")
}

// loop fires the tick on a fixed interval. The tick runs synchronously in
// the loop goroutine, so an overrunning tick coalesces subsequent ticker
// fires instead of overlapping: at most one active tick per worker.
func (r *Retention) loop(name string, tick func(context.Context)) {
	defer r.wg.Done()

	log := logger.WithComponent(name)
	log.Info().Msg("worker started")
	defer log.Info().Msg("worker stopped")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.safeTick(name, log, tick)
		}
	}
}

func (r *Retention) safeTick(name string, log zerolog.Logger, tick func(context.Context)) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("worker tick panic recovered")
			metrics.PanicsRecovered.WithLabelValues(name).Inc()
		}
	}()

	start := time.Now()
	tick(r.ctx)
	metrics.WorkerTickDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

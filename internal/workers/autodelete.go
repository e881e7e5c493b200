package workers

import (
	"context"
	"time"

	"fleetwatch/internal/logger"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/storage"
)

// AutoDeleteWorker removes alerts that stayed AUTO_CLOSED beyond the
// deletion grace period, events first, alert row second, atomically.
type AutoDeleteWorker struct {
	store storage.Store
	grace time.Duration
	now   func() time.Time
}

func NewAutoDeleteWorker(store storage.Store, grace time.Duration) *AutoDeleteWorker {
	return &AutoDeleteWorker{
		store: store,
		grace: grace,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Tick deletes every eligible alert, isolating per-alert failures.
func (w *AutoDeleteWorker) Tick(ctx context.Context) {
	log := logger.WithComponent("auto_delete")

	cutoff := w.now().Add(-w.grace)
	ids, err := w.store.DeleteCandidates(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("candidate scan failed")
		return
	}
	if len(ids) > 0 {
		log.Info().Int("count", len(ids)).Msg("delete candidates found")
	}

	for _, id := range ids {
		if err := w.store.DeleteAlert(ctx, id); err != nil {
			log.Error().Err(err).Str("alert_id", id).Msg("auto-delete failed")
			metrics.WorkerErrors.WithLabelValues("auto_delete").Inc()
			continue
		}
		metrics.AlertsDeleted.Inc()
		log.Info().Str("alert_id", id).Msg("alert deleted")
	}
}

package workers

import (
	"context"
	"errors"
	"time"

	"fleetwatch/internal/config"
	"fleetwatch/internal/logger"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/models"
	"fleetwatch/internal/storage"
)

// AutoCloseWorker force-closes alerts that sat in a non-terminal status
// for longer than their source's configured timeout.
type AutoCloseWorker struct {
	store storage.Store
	rules map[string]config.SourceRule
	now   func() time.Time
}

func NewAutoCloseWorker(store storage.Store, rules map[string]config.SourceRule) *AutoCloseWorker {
	return &AutoCloseWorker{
		store: store,
		rules: rules,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Tick scans every configured source once. A failure closing one alert is
// isolated to that alert; a failure enumerating candidates aborts the tick
// to be retried next interval.
func (w *AutoCloseWorker) Tick(ctx context.Context) {
	log := logger.WithComponent("auto_close")

	for src, rule := range w.rules {
		if rule.AutoCloseAfterMins <= 0 {
			continue
		}

		cutoff := w.now().Add(-rule.AutoCloseAfter())
		refs, err := w.store.AutoCloseCandidates(ctx, src, cutoff)
		if err != nil {
			log.Error().Err(err).Str("source_type", src).Msg("candidate scan failed")
			return
		}
		if len(refs) > 0 {
			log.Info().Int("count", len(refs)).Str("source_type", src).Msg("auto-close candidates found")
		}

		for _, ref := range refs {
			meta := models.Metadata{"reason": "timeout", "src": src}
			err := w.store.CloseAlert(ctx, ref.AlertID, ref.Status, w.now(), meta)
			if errors.Is(err, storage.ErrStaleStatus) {
				// Another instance got there first.
				log.Debug().Str("alert_id", ref.AlertID).Msg("alert already transitioned")
				continue
			}
			if err != nil {
				log.Error().Err(err).Str("alert_id", ref.AlertID).Msg("auto-close failed")
				metrics.WorkerErrors.WithLabelValues("auto_close").Inc()
				continue
			}
			metrics.AlertsAutoClosed.Inc()
			log.Info().
				Str("alert_id", ref.AlertID).
				Str("old_status", string(ref.Status)).
				Str("source_type", src).
				Msg("alert auto-closed")
		}
	}
}

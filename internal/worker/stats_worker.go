package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/fleetrent/internal/domain"
	"github.com/yourorg/fleetrent/internal/observability/metrics"
)

// StatsWorker periodically refreshes the active-reservation gauge. It only
// observes; it never mutates bookings.
type StatsWorker struct {
	reservations domain.ReservationRepository
	logger       *slog.Logger
	interval     time.Duration
}

// NewStatsWorker creates a new stats worker.
func NewStatsWorker(reservations domain.ReservationRepository, logger *slog.Logger, interval time.Duration) *StatsWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &StatsWorker{reservations: reservations, logger: logger, interval: interval}
}

// Start runs the refresh loop until the context is cancelled.
func (w *StatsWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("stats worker started", slog.Duration("interval", w.interval))
	w.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stats worker stopped")
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *StatsWorker) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	count, err := w.reservations.CountActive(ctx)
	if err != nil {
		w.logger.Warn("failed to count active reservations", slog.String("error", err.Error()))
		return
	}
	metrics.SetActiveReservations(count)
}

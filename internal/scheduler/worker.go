package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/Veraticus/tally/internal/budget"
)

// DefaultInterval is how often the worker checks for due work.
const DefaultInterval = time.Hour

// Worker runs the scheduler and budget renewal on a ticker.
type Worker struct {
	scheduler *Scheduler
	budgets   *budget.Service
	logger    *slog.Logger
	now       func() time.Time
	interval  time.Duration
}

// NewWorker creates a worker. budgets may be nil to skip budget renewal.
func NewWorker(s *Scheduler, budgets *budget.Service, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		scheduler: s,
		budgets:   budgets,
		interval:  interval,
		logger:    logger.With("component", "worker"),
		now:       time.Now,
	}
}

// Run processes due work once immediately and then on every tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "interval", w.interval)

	w.RunOnce(ctx, w.now())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return nil
		case <-ticker.C:
			w.RunOnce(ctx, w.now())
			w.logger.Debug("next check", "at", w.now().Add(w.interval).Format("15:04:05"))
		}
	}
}

// RunOnce fires due periodic transactions and renews expired budgets.
// Errors are logged; the worker keeps going.
func (w *Worker) RunOnce(ctx context.Context, now time.Time) {
	report, err := w.scheduler.RunAll(ctx, now)
	if err != nil {
		w.logger.Error("periodic processing failed", "error", err, "failed", report.Failed)
	} else {
		w.logger.Info("periodic processing complete", "fired", report.Fired, "transactions_created", report.Created)
	}

	if w.budgets == nil {
		return
	}
	renewed, err := w.budgets.RenewExpired(ctx, now)
	if err != nil {
		w.logger.Error("budget renewal failed", "error", err, "failed", renewed.Failed)
		return
	}
	if len(renewed.Created) > 0 {
		w.logger.Info("renewed budgets", "count", len(renewed.Created))
	}
}

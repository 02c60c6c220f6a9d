// Package scheduler turns due periodic templates into ledger transactions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/events"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// DefaultMaxCatchUp bounds how many times one template fires per RunAll pass.
const DefaultMaxCatchUp = 12

// Scheduler fires periodic transactions.
type Scheduler struct {
	store      service.Storage
	ledger     *ledger.Engine
	publisher  events.Publisher
	logger     *slog.Logger
	maxCatchUp int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPublisher sends periodic.fired events to p.
func WithPublisher(p events.Publisher) Option {
	return func(s *Scheduler) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxCatchUp caps how often a single template fires in one pass.
func WithMaxCatchUp(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxCatchUp = n
		}
	}
}

// New creates a scheduler that submits transactions through engine.
func New(store service.Storage, engine *ledger.Engine, opts ...Option) (*Scheduler, error) {
	if store == nil || engine == nil {
		return nil, fmt.Errorf("%w: storage and ledger are required", common.ErrMissingConfig)
	}

	s := &Scheduler{
		store:      store,
		ledger:     engine,
		publisher:  events.Nop{},
		logger:     slog.Default(),
		maxCatchUp: DefaultMaxCatchUp,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	return s, nil
}

// GetDue returns the templates whose next occurrence is at or before now.
func (s *Scheduler) GetDue(ctx context.Context, now time.Time) ([]model.PeriodicTransaction, error) {
	due, err := s.store.ListDuePeriodic(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due periodic transactions: %w", err)
	}
	return due, nil
}

// Fire submits one occurrence of p, timestamped at its due date, and then
// either deletes a one-shot template or advances it to the next due date.
// Everything happens in one storage transaction: on failure neither the
// ledger nor the template changes. On success p reflects the stored template.
func (s *Scheduler) Fire(ctx context.Context, p *model.PeriodicTransaction) ([]model.Transaction, error) {
	var created []model.Transaction

	advanced := *p
	if !p.OneShot() {
		advanced.NextTransaction = p.FollowingDate()
	}

	err := common.WithTx(ctx, s.store, func(tx service.Tx) error {
		instance := p.Instance()
		rows, err := s.ledger.ProcessTx(ctx, tx, &instance)
		if err != nil {
			return err
		}
		created = rows

		if p.OneShot() {
			return tx.DeletePeriodic(ctx, p.ID)
		}
		return tx.UpdatePeriodic(ctx, &advanced)
	})
	if err != nil {
		return nil, fmt.Errorf("fire periodic transaction %d: %w", p.ID, err)
	}

	s.logger.Info("fired periodic transaction",
		"id", p.ID,
		"due", p.NextTransaction.Format(time.DateOnly),
		"rows", len(created),
		"one_shot", p.OneShot())

	s.ledger.Publish(ctx, events.TransactionCreated, created...)
	s.publishFired(ctx, p, created)

	*p = advanced
	return created, nil
}

// RunReport summarizes one RunAll pass.
type RunReport struct {
	Fired   int
	Deleted int
	Failed  int
	Created int
}

// RunAll fires every due template. A template that is still due after firing
// fires again, up to the catch-up limit. Failures are collected and joined;
// they never stop the remaining templates.
func (s *Scheduler) RunAll(ctx context.Context, now time.Time) (RunReport, error) {
	var report RunReport

	due, err := s.GetDue(ctx, now)
	if err != nil {
		return report, err
	}

	var errs []error
	for i := range due {
		p := due[i]
		for n := 0; n < s.maxCatchUp && p.Due(now); n++ {
			if err := ctx.Err(); err != nil {
				return report, errors.Join(append(errs, err)...)
			}

			oneShot := p.OneShot()
			rows, err := s.Fire(ctx, &p)
			if err != nil {
				s.logger.Error("failed to fire periodic transaction", "id", p.ID, "error", err)
				errs = append(errs, err)
				report.Failed++
				break
			}

			report.Fired++
			report.Created += len(rows)
			if oneShot {
				report.Deleted++
				break
			}
		}
	}

	if report.Fired > 0 || report.Failed > 0 {
		s.logger.Info("periodic run complete",
			"fired", report.Fired,
			"deleted", report.Deleted,
			"failed", report.Failed)
	}
	return report, errors.Join(errs...)
}

func (s *Scheduler) publishFired(ctx context.Context, p *model.PeriodicTransaction, rows []model.Transaction) {
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	event, err := events.New(events.PeriodicFired, p.ID, firedPayload{
		Due:            p.NextTransaction,
		TransactionIDs: ids,
		Deleted:        p.OneShot(),
	})
	if err != nil {
		s.logger.Warn("failed to build event", "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "kind", event.Kind, "periodic_id", p.ID, "error", err)
	}
}

type firedPayload struct {
	Due            time.Time `json:"due"`
	TransactionIDs []int64   `json:"transaction_ids"`
	Deleted        bool      `json:"deleted"`
}

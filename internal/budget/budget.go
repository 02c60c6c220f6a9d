// Package budget manages budget windows: creation with category links and
// renewal of recurring budgets into their next window.
package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/events"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultMaxCatchUp bounds how many windows one set can advance per renewal pass.
const DefaultMaxCatchUp = 24

// Service creates and renews budgets.
type Service struct {
	store      service.Storage
	publisher  events.Publisher
	logger     *slog.Logger
	maxCatchUp int
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sends budget.renewed events to p.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxCatchUp caps renewals per budget set in one RenewExpired pass.
func WithMaxCatchUp(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCatchUp = n
		}
	}
}

// NewService creates a budget service.
func NewService(store service.Storage, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: storage is required", common.ErrMissingConfig)
	}

	s := &Service{
		store:      store,
		publisher:  events.Nop{},
		logger:     slog.Default(),
		maxCatchUp: DefaultMaxCatchUp,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "budget")
	return s, nil
}

// Next returns the window that follows b. The start advances by the budget
// interval from the old end; the new end is always IntervalLength days later.
func Next(b model.Budget) model.Budget {
	next := b
	next.ID = 0
	next.AmountSpent = decimal.Zero
	next.StartDate = model.Advance(b.EndDate, b.Interval, b.IntervalLength)
	next.EndDate = model.AddDays(next.StartDate, b.IntervalLength)
	return next
}

// CreateNext stores the window following the budget with the given id and
// copies its category links. Spent starts from the linked expenses already
// inside the new window, usually none. The source budget is not modified.
func (s *Service) CreateNext(ctx context.Context, budgetID int64) (*model.Budget, error) {
	var next *model.Budget
	err := common.WithTx(ctx, s.store, func(tx service.Tx) error {
		src, err := tx.GetBudget(ctx, budgetID)
		if err != nil {
			return err
		}
		next, err = createNextTx(ctx, tx, src)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("created next budget window",
		"budget_set", next.BudgetSet,
		"id", next.ID,
		"start", next.StartDate.Format(time.DateOnly),
		"end", next.EndDate.Format(time.DateOnly))
	s.publish(ctx, next)
	return next, nil
}

func createNextTx(ctx context.Context, q service.Queries, src *model.Budget) (*model.Budget, error) {
	if !src.Recurring() {
		return nil, fmt.Errorf("%w: budget %d", common.ErrNotRecurring, src.ID)
	}

	categories, err := q.GetBudgetCategories(ctx, src.ID)
	if err != nil {
		return nil, err
	}

	next := Next(*src)
	if err := q.CreateBudget(ctx, &next); err != nil {
		return nil, err
	}
	if err := q.SetBudgetCategories(ctx, next.ID, categoryIDs(categories)); err != nil {
		return nil, err
	}
	// Expenses recorded before the window existed were never counted.
	if err := recompute(ctx, q, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// RenewReport summarizes one RenewExpired pass.
type RenewReport struct {
	Created []model.Budget
	Failed  int
}

// RenewExpired brings every recurring budget set up to date: while the latest
// window of a set has ended at or before now, the next one is created.
// A failing set does not stop the others; all failures are joined.
func (s *Service) RenewExpired(ctx context.Context, now time.Time) (RenewReport, error) {
	var report RenewReport

	latest, err := s.store.LatestBudgetPerSet(ctx)
	if err != nil {
		return report, fmt.Errorf("list budget sets: %w", err)
	}

	var errs []error
	for _, b := range latest {
		if !b.Recurring() || b.EndDate.After(now) {
			continue
		}

		current := b
		failed := false
		for i := 0; i < s.maxCatchUp && !current.EndDate.After(now); i++ {
			next, err := s.CreateNext(ctx, current.ID)
			if err != nil {
				s.logger.Error("failed to renew budget", "budget_set", b.BudgetSet, "id", current.ID, "error", err)
				errs = append(errs, fmt.Errorf("renew budget set %s: %w", b.BudgetSet, err))
				report.Failed++
				failed = true
				break
			}
			report.Created = append(report.Created, *next)
			current = *next
		}

		if !failed && !current.EndDate.After(now) {
			s.logger.Warn("budget set still behind after catch-up limit",
				"budget_set", b.BudgetSet, "end", current.EndDate.Format(time.DateOnly))
		}
	}

	return report, errors.Join(errs...)
}

// Create stores a budget with its category links. A missing BudgetSet starts a
// new recurrence lineage. AmountSpent is computed from the existing expenses
// that fall inside the window.
func (s *Service) Create(ctx context.Context, b *model.Budget, categoryIDs []int64) error {
	b.Currency = model.NormalizeCurrency(b.Currency)
	if err := b.Validate(); err != nil {
		return err
	}
	if b.BudgetSet == "" {
		b.BudgetSet = uuid.NewString()
	}

	err := common.WithTx(ctx, s.store, func(tx service.Tx) error {
		b.AmountSpent = decimal.Zero
		if err := tx.CreateBudget(ctx, b); err != nil {
			return err
		}
		if err := tx.SetBudgetCategories(ctx, b.ID, categoryIDs); err != nil {
			return err
		}
		return recompute(ctx, tx, b)
	})
	if err != nil {
		return err
	}

	s.logger.Info("created budget", "id", b.ID, "budget_set", b.BudgetSet, "spent", b.AmountSpent.String())
	return nil
}

// Update stores new budget fields and recomputes AmountSpent for the new window.
func (s *Service) Update(ctx context.Context, b *model.Budget) error {
	b.Currency = model.NormalizeCurrency(b.Currency)
	if err := b.Validate(); err != nil {
		return err
	}

	return common.WithTx(ctx, s.store, func(tx service.Tx) error {
		if _, err := tx.GetBudget(ctx, b.ID); err != nil {
			return err
		}
		if err := tx.UpdateBudget(ctx, b); err != nil {
			return err
		}
		return recompute(ctx, tx, b)
	})
}

// SetCategories replaces the category links of a budget and recomputes AmountSpent.
func (s *Service) SetCategories(ctx context.Context, budgetID int64, categoryIDs []int64) error {
	return common.WithTx(ctx, s.store, func(tx service.Tx) error {
		b, err := tx.GetBudget(ctx, budgetID)
		if err != nil {
			return err
		}
		if err := tx.SetBudgetCategories(ctx, budgetID, categoryIDs); err != nil {
			return err
		}
		return recompute(ctx, tx, b)
	})
}

// Delete removes a budget and its links. Transactions are not touched.
func (s *Service) Delete(ctx context.Context, budgetID int64) error {
	return s.store.DeleteBudget(ctx, budgetID)
}

func recompute(ctx context.Context, q service.Queries, b *model.Budget) error {
	spent, err := q.SumExpensesForBudget(ctx, b.ID)
	if err != nil {
		return err
	}
	if err := q.SetBudgetSpent(ctx, b.ID, spent); err != nil {
		return err
	}
	b.AmountSpent = spent
	return nil
}

func (s *Service) publish(ctx context.Context, b *model.Budget) {
	event, err := events.New(events.BudgetRenewed, b.ID, renewedPayload{
		BudgetSet: b.BudgetSet,
		Start:     b.StartDate,
		End:       b.EndDate,
	})
	if err != nil {
		s.logger.Warn("failed to build event", "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "kind", event.Kind, "budget_id", b.ID, "error", err)
	}
}

type renewedPayload struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	BudgetSet string    `json:"budget_set"`
}

func categoryIDs(categories []model.Category) []int64 {
	ids := make([]int64, len(categories))
	for i, c := range categories {
		ids[i] = c.ID
	}
	return ids
}

package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/budget"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/currency"
	"github.com/Veraticus/tally/internal/events"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/scheduler"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	db        *testutil.TestDB
	scheduler *scheduler.Scheduler
	recorder  *events.Recorder
	account   model.Account
	category  model.Category
}

func setup(t *testing.T, opts ...scheduler.Option) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)

	static, err := currency.NewStatic(nil)
	require.NoError(t, err)
	rec := &events.Recorder{}
	engine, err := ledger.New(db.Storage, static, testutil.AggregateAccountID, ledger.WithPublisher(rec))
	require.NoError(t, err)

	s, err := scheduler.New(db.Storage, engine, append([]scheduler.Option{scheduler.WithPublisher(rec)}, opts...)...)
	require.NoError(t, err)

	return &fixture{
		db:        db,
		scheduler: s,
		recorder:  rec,
		account:   db.MustAccount("Checking", "USD"),
		category:  db.MustCategory("Bills"),
	}
}

func (f *fixture) template(t *testing.T, next time.Time, interval model.Interval, length int) *model.PeriodicTransaction {
	t.Helper()
	p := &model.PeriodicTransaction{
		Type:            model.TypeExpense,
		Title:           "Rent",
		Currency:        "USD",
		Amount:          decimal.NewFromInt(100),
		SenderAccountID: f.account.ID,
		CategoryID:      f.category.ID,
		NextTransaction: next,
		Interval:        interval,
		IntervalLength:  length,
	}
	require.NoError(t, f.db.Storage.CreatePeriodic(context.Background(), p))
	return p
}

func TestScheduler_GetDue(t *testing.T) {
	f := setup(t)
	now := day(2024, 3, 1)

	onTime := f.template(t, now, model.IntervalMonths, 1)
	past := f.template(t, day(2024, 2, 1), model.IntervalMonths, 1)
	f.template(t, now.Add(time.Second), model.IntervalMonths, 1)

	due, err := f.scheduler.GetDue(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, past.ID, due[0].ID)
	assert.Equal(t, onTime.ID, due[1].ID)
}

func TestScheduler_FireAdvancesTemplate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p := f.template(t, day(2024, 1, 15), model.IntervalMonths, 1)

	rows, err := f.scheduler.Fire(ctx, p)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, day(2024, 1, 15), rows[0].Timestamp)
	assert.True(t, rows[0].AmountConverted.Equal(decimal.NewFromInt(100)))

	assert.Equal(t, day(2024, 2, 15), p.NextTransaction)
	stored, err := f.db.Storage.GetPeriodic(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 2, 15), stored.NextTransaction)

	assert.True(t, f.db.Balance(f.account.ID).Equal(decimal.NewFromInt(-100)))
	assert.Equal(t, []events.Kind{events.TransactionCreated, events.PeriodicFired}, f.recorder.Kinds())
}

func TestScheduler_FireOneShotDeletesTemplate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p := f.template(t, day(2024, 1, 15), "", 0)

	report, err := f.scheduler.RunAll(ctx, day(2024, 1, 20))
	require.NoError(t, err)
	assert.Equal(t, scheduler.RunReport{Fired: 1, Deleted: 1, Created: 1}, report)

	_, err = f.db.Storage.GetPeriodic(ctx, p.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, 1, f.db.CountTransactions())
}

func TestScheduler_FireTransferTemplate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	savings := f.db.MustAccount("Savings", "USD")
	p := f.template(t, day(2024, 1, 1), model.IntervalWeeks, 1)
	p.Type = model.TypeTransfer
	p.RecipientAccountID = &savings.ID
	require.NoError(t, f.db.Storage.UpdatePeriodic(ctx, p))

	rows, err := f.scheduler.Fire(ctx, p)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, day(2024, 1, 8), p.NextTransaction)

	assert.True(t, f.db.Balance(savings.ID).Equal(decimal.NewFromInt(100)))
	assert.True(t, f.db.Balance(f.account.ID).Equal(decimal.NewFromInt(-100)))
	assert.True(t, f.db.Balance(testutil.AggregateAccountID).IsZero())
}

func TestScheduler_FailureLeavesTemplateUnchanged(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	euro := f.db.MustAccount("Euro", "EUR")
	broken := f.template(t, day(2024, 1, 1), model.IntervalMonths, 1)
	broken.SenderAccountID = euro.ID
	require.NoError(t, f.db.Storage.UpdatePeriodic(ctx, broken))

	healthy := f.template(t, day(2024, 1, 2), "", 0)

	report, err := f.scheduler.RunAll(ctx, day(2024, 1, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrConversion)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Fired)

	stored, err := f.db.Storage.GetPeriodic(ctx, broken.ID)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 1, 1), stored.NextTransaction)

	_, err = f.db.Storage.GetPeriodic(ctx, healthy.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	list, err := f.db.Storage.ListTransactions(ctx, service.TransactionFilter{AccountID: &euro.ID})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.True(t, f.db.Balance(euro.ID).IsZero())
}

func TestScheduler_RunAllCatchesUp(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		wantFired int
		wantNext  time.Time
	}{
		{name: "default limit", limit: 0, wantFired: 4, wantNext: day(2024, 5, 15)},
		{name: "capped", limit: 2, wantFired: 2, wantNext: day(2024, 3, 15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, scheduler.WithMaxCatchUp(tt.limit))
			ctx := context.Background()

			p := f.template(t, day(2024, 1, 15), model.IntervalMonths, 1)

			report, err := f.scheduler.RunAll(ctx, day(2024, 4, 20))
			require.NoError(t, err)
			assert.Equal(t, tt.wantFired, report.Fired)
			assert.Equal(t, tt.wantFired, f.db.CountTransactions())

			stored, err := f.db.Storage.GetPeriodic(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNext, stored.NextTransaction)
		})
	}
}

func TestScheduler_RunAllBudgets(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	b := f.db.MustBudget("Bills", day(2024, 1, 1), day(2024, 2, 1), f.category.ID)
	f.template(t, day(2024, 1, 31), model.IntervalDays, 1)

	_, err := f.scheduler.RunAll(ctx, day(2024, 2, 1))
	require.NoError(t, err)

	// Jan 31 lands in the budget, Feb 1 does not.
	assert.True(t, f.db.Spent(b.ID).Equal(decimal.NewFromInt(100)), "spent %s", f.db.Spent(b.ID))
	assert.Equal(t, 2, f.db.CountTransactions())
}

func TestWorker_RunOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	budgets, err := budget.NewService(f.db.Storage)
	require.NoError(t, err)

	f.template(t, day(2024, 1, 1), "", 0)
	b := f.db.MustBudget("Bills", day(2023, 12, 1), day(2024, 1, 1), f.category.ID)

	w := scheduler.NewWorker(f.scheduler, budgets, time.Minute, nil)
	w.RunOnce(ctx, day(2024, 1, 2))

	assert.Equal(t, 1, f.db.CountTransactions())

	latest, err := f.db.Storage.LatestBudgetPerSet(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.NotEqual(t, b.ID, latest[0].ID)
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	f := setup(t)
	w := scheduler.NewWorker(f.scheduler, nil, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

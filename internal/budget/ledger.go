// Package budget maintains one budget amount per owner, context and month and
// sums those rows into the period budget shown against spending.
package budget

import (
	"context"
	"fmt"

	"kharcha/internal/core"
	"kharcha/internal/store"
)

// Ledger reads and replaces budget rows. Month buckets come from the view:
// a trip context always spans the trip's full start/end interval, while the
// casual context follows whatever range the view currently shows. Re-saving a
// casual budget after changing the filter range therefore touches a different
// set of months.
type Ledger struct {
	budgets store.BudgetStore
	trips   store.TripStore
}

func NewLedger(budgets store.BudgetStore, trips store.TripStore) *Ledger {
	return &Ledger{budgets: budgets, trips: trips}
}

// PeriodBudget sums the rows for every month the view overlaps.
func (l *Ledger) PeriodBudget(ctx context.Context, vctx core.ViewContext) (core.Money, error) {
	months, err := l.months(ctx, vctx)
	if err != nil {
		return core.Money{}, err
	}
	total, err := l.budgets.SumBudgets(ctx, vctx.Owner, vctx.TripID, months)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum budgets: %w", err)
	}
	return total, nil
}

// SetBudget replaces the rows for the view's months with one row per month
// carrying the given amount. Prior per-month amounts inside the touched range
// are lost. The delete and the insert are two store calls, not one
// transaction; a crash between them leaves the months empty until the next
// save.
func (l *Ledger) SetBudget(ctx context.Context, vctx core.ViewContext, amount core.Money) error {
	months, err := l.months(ctx, vctx)
	if err != nil {
		return err
	}
	if err := l.budgets.DeleteBudgets(ctx, vctx.Owner, vctx.TripID, months); err != nil {
		return fmt.Errorf("delete budgets: %w", err)
	}
	rows := make([]core.BudgetRow, 0, len(months))
	for _, m := range months {
		rows = append(rows, core.BudgetRow{
			Owner:  vctx.Owner,
			TripID: vctx.TripID,
			Month:  m,
			Amount: amount,
		})
	}
	if err := l.budgets.InsertBudgets(ctx, rows); err != nil {
		return fmt.Errorf("insert budgets: %w", err)
	}
	return nil
}

// Months lists the buckets the view's budget rows live in: the trip's full
// span for a trip context, the active range otherwise. PeriodBudget and
// SetBudget operate over exactly this list.
func (l *Ledger) Months(ctx context.Context, vctx core.ViewContext) ([]core.MonthBucket, error) {
	return l.months(ctx, vctx)
}

func (l *Ledger) months(ctx context.Context, vctx core.ViewContext) ([]core.MonthBucket, error) {
	if vctx.IsCasual() {
		return vctx.Range.MonthBuckets(), nil
	}
	trip, err := l.trips.GetTrip(ctx, vctx.Owner, vctx.TripID)
	if err != nil {
		return nil, fmt.Errorf("load trip: %w", err)
	}
	return core.RangeOfTrip(trip).MonthBuckets(), nil
}

package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kharcha/internal/budget"
	"kharcha/internal/categorize"
	"kharcha/internal/core"
	"kharcha/internal/log"
	"kharcha/internal/notify"
	"kharcha/internal/store"
)

// recordingObserver captures the operational counters the services report.
type recordingObserver struct {
	mu        sync.Mutex
	storeOps  []string
	published []string
}

func (o *recordingObserver) StoreError(op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.storeOps = append(o.storeOps, op)
}

func (o *recordingObserver) EventPublished(op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published = append(o.published, op)
}

func (o *recordingObserver) snapshot() (storeOps, published []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.storeOps...), append([]string(nil), o.published...)
}

type fixture struct {
	store    *store.MemoryStore
	bus      *notify.MemoryBus
	obs      *recordingObserver
	expenses *ExpenseService
	cats     *CategoryService
	view     core.ViewContext
}

// newFixture wires the service stack over memory backends with the clock
// pinned inside the view range, so resolution never needs explicit dates.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	bus := notify.NewMemoryBus()
	logger := log.New(log.DefaultConfig())

	r, err := core.ParseDateRange("2025-03-01", "2025-03-31")
	require.NoError(t, err)
	vctx := core.ViewContext{Owner: "u1", Range: r}

	clock := func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) }
	resolver := categorize.NewResolver(nil, categorize.WithClock(clock))
	ledger := budget.NewLedger(s, s)
	obs := &recordingObserver{}

	return &fixture{
		store:    s,
		bus:      bus,
		obs:      obs,
		expenses: NewExpenseService(s, resolver, ledger, bus, obs, logger),
		cats:     NewCategoryService(s, obs, logger),
		view:     vctx,
	}
}

func (f *fixture) seedCategories(t *testing.T, names ...string) map[string]core.Category {
	t.Helper()
	out := make(map[string]core.Category, len(names))
	for _, n := range names {
		c, err := f.cats.Create(context.Background(), "u1", n)
		require.NoError(t, err)
		out[n] = c
	}
	return out
}

func collect(t *testing.T, sub notify.Subscription) notify.Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return notify.Event{}
	}
}

func TestAdd_ResolvesPersistsPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cats := f.seedCategories(t, "Food", "Transport", "Other")

	sub, err := f.bus.Subscribe(ctx, notify.Filter{Owner: "u1"})
	require.NoError(t, err)
	defer sub.Close()

	e, err := f.expenses.Add(ctx, f.view, "250 lunch with friends", time.Time{})
	require.NoError(t, err)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, int64(25000), e.Amount.Cents)
	assert.Equal(t, core.KindExpense, e.Kind)
	assert.Equal(t, cats["Food"].ID, e.CategoryID)
	assert.Equal(t, "lunch with friends", e.Note)
	assert.Equal(t, "250 lunch with friends", e.Input)
	assert.Equal(t, categorize.MethodPattern, e.Provenance.Method)

	ev := collect(t, sub)
	assert.Equal(t, notify.OpInsert, ev.Op)
	assert.Equal(t, e.ID, ev.Expense.ID)

	stored, err := f.store.GetExpense(ctx, "u1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, e, stored)
}

func TestAdd_ResolverErrorsPersistNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCategories(t, "Other")

	_, err := f.expenses.Add(ctx, f.view, "lunch with friends", time.Time{})
	assert.ErrorIs(t, err, core.ErrMissingAmount)

	n, err := f.store.CountView(ctx, f.view)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdate_PublishesPostMutationRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCategories(t, "Food", "Other")

	e, err := f.expenses.Add(ctx, f.view, "100 groceries", time.Time{})
	require.NoError(t, err)

	sub, err := f.bus.Subscribe(ctx, notify.Filter{Owner: "u1"})
	require.NoError(t, err)
	defer sub.Close()

	edit := e
	edit.Amount = core.Money{Cents: 12345}
	edit.Note = "weekly groceries"
	edit.Input = "attempted rewrite"
	updated, err := f.expenses.Update(ctx, edit)
	require.NoError(t, err)

	assert.Equal(t, int64(12345), updated.Amount.Cents)
	assert.Equal(t, "weekly groceries", updated.Note)
	assert.Equal(t, "100 groceries", updated.Input, "input text is immutable")

	ev := collect(t, sub)
	assert.Equal(t, notify.OpUpdate, ev.Op)
	assert.Equal(t, updated, ev.Expense)
}

func TestUpdate_RejectsBadAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCategories(t, "Other")

	e, err := f.expenses.Add(ctx, f.view, "100 misc", time.Time{})
	require.NoError(t, err)

	e.Amount = core.Money{Cents: 0}
	_, err = f.expenses.Update(ctx, e)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestDelete_PublishesLastKnownState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCategories(t, "Other")

	e, err := f.expenses.Add(ctx, f.view, "75 taxi", time.Time{})
	require.NoError(t, err)

	sub, err := f.bus.Subscribe(ctx, notify.Filter{Owner: "u1"})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, f.expenses.Delete(ctx, "u1", e.ID))

	ev := collect(t, sub)
	assert.Equal(t, notify.OpDelete, ev.Op)
	assert.Equal(t, e.ID, ev.Expense.ID)

	_, err = f.store.GetExpense(ctx, "u1", e.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, f.expenses.Delete(ctx, "u1", e.ID), store.ErrNotFound)
}

func TestSummary_CombinesViewCategoriesAndBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCategories(t, "Food", "Transport", "Other")

	_, err := f.expenses.Add(ctx, f.view, "250 lunch", time.Time{})
	require.NoError(t, err)
	_, err = f.expenses.Add(ctx, f.view, "500 borrowed from Raj", time.Time{})
	require.NoError(t, err)

	ledger := budget.NewLedger(f.store, f.store)
	require.NoError(t, ledger.SetBudget(ctx, f.view, core.Money{Cents: 100000}))

	sum, err := f.expenses.Summary(ctx, f.view)
	require.NoError(t, err)

	assert.Equal(t, int64(25000), sum.Spent.Cents)
	assert.Equal(t, int64(50000), sum.Borrowed.Cents)
	assert.Equal(t, int64(100000), sum.Budget.Cents)
	assert.Equal(t, int64(75000), sum.Balance.Cents)
	// Every known category appears, zero totals included.
	assert.Len(t, sum.Groups, 3)
}

func TestCategoryDelete_ReassignsToOther(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cats := f.seedCategories(t, "Food", "other")

	e, err := f.expenses.Add(ctx, f.view, "250 lunch", time.Time{})
	require.NoError(t, err)
	require.Equal(t, cats["Food"].ID, e.CategoryID)

	require.NoError(t, f.cats.Delete(ctx, "u1", cats["Food"].ID))

	got, err := f.store.GetExpense(ctx, "u1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, cats["other"].ID, got.CategoryID, "match on Other is case-insensitive")

	list, err := f.cats.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCategoryDelete_NoOtherLeavesUncategorized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cats := f.seedCategories(t, "Food")

	e, err := f.expenses.Add(ctx, f.view, "250 lunch", time.Time{})
	require.NoError(t, err)
	require.Equal(t, cats["Food"].ID, e.CategoryID)

	require.NoError(t, f.cats.Delete(ctx, "u1", cats["Food"].ID))

	got, err := f.store.GetExpense(ctx, "u1", e.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CategoryID)
}

func TestObserver_CountsPublishedEventsAndStoreErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCategories(t, "Food", "Other")

	e, err := f.expenses.Add(ctx, f.view, "250 lunch", time.Time{})
	require.NoError(t, err)

	edit := e
	edit.Note = "team lunch"
	_, err = f.expenses.Update(ctx, edit)
	require.NoError(t, err)

	require.NoError(t, f.expenses.Delete(ctx, "u1", e.ID))

	storeOps, published := f.obs.snapshot()
	assert.Equal(t, []string{"insert", "update", "delete"}, published)
	assert.Empty(t, storeOps)

	assert.ErrorIs(t, f.expenses.Delete(ctx, "u1", "missing"), store.ErrNotFound)
	storeOps, published = f.obs.snapshot()
	assert.Equal(t, []string{"get_expense"}, storeOps)
	assert.Len(t, published, 3, "a failed operation publishes nothing")
}

func TestCategoryDelete_Unknown(t *testing.T) {
	f := newFixture(t)
	err := f.cats.Delete(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

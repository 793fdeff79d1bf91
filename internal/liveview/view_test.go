package liveview

import (
	"errors"
	"testing"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/notify"
)

func marchContext(t *testing.T) core.ViewContext {
	t.Helper()
	r, err := core.ParseDateRange("2025-03-01", "2025-03-31")
	if err != nil {
		t.Fatal(err)
	}
	return core.ViewContext{Owner: "u1", Range: r}
}

func rec(id string, day int, cents int64) core.Expense {
	return core.Expense{
		ID:         id,
		Owner:      "u1",
		Amount:     core.Money{Cents: cents},
		Kind:       core.KindExpense,
		Note:       "n",
		OccurredAt: time.Date(2025, 3, day, 12, 0, 0, 0, time.UTC),
	}
}

func ids(v *View) []string {
	snap := v.Snapshot()
	out := make([]string, len(snap))
	for i, e := range snap {
		out[i] = e.ID
	}
	return out
}

func TestView_BulkLoadOrdersNewestFirst(t *testing.T) {
	v := New(marchContext(t))
	v.SetLoaded([]core.Expense{rec("a", 5, 100), rec("c", 20, 300), rec("b", 10, 200)})

	got := ids(v)
	want := []string{"c", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestView_InsertDedupeIdempotent(t *testing.T) {
	v := New(marchContext(t))
	e := rec("a", 10, 100)

	if !v.Insert(e) {
		t.Fatal("first insert rejected")
	}
	// Same identifier again, via both the optimistic and push paths.
	if v.Insert(e) {
		t.Error("duplicate insert applied")
	}
	v.Apply(notify.Event{Op: notify.OpInsert, Expense: e})
	if v.Len() != 1 {
		t.Errorf("len = %d after duplicate notifications, want 1", v.Len())
	}
}

func TestView_InsertFilters(t *testing.T) {
	v := New(marchContext(t))

	foreign := rec("x", 10, 100)
	foreign.Owner = "u2"
	if v.Insert(foreign) {
		t.Error("accepted record of another owner")
	}

	tripRecord := rec("y", 10, 100)
	tripRecord.TripID = "t1"
	if v.Insert(tripRecord) {
		t.Error("accepted trip record in casual view")
	}

	outside := rec("z", 10, 100)
	outside.OccurredAt = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	if v.Insert(outside) {
		t.Error("accepted record outside the range")
	}
}

func TestView_UpdateOutOfRangeEvicts(t *testing.T) {
	v := New(marchContext(t))
	v.SetLoaded([]core.Expense{rec("a", 10, 100), rec("b", 20, 200)})

	moved := rec("a", 10, 100)
	moved.OccurredAt = time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	v.Apply(notify.Event{Op: notify.OpUpdate, Expense: moved})

	got := ids(v)
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("collection = %v, want [b]", got)
	}
}

func TestView_UpdateInRangeMergesInPlace(t *testing.T) {
	v := New(marchContext(t))
	held := rec("a", 10, 100)
	held.CategoryID = "1"
	held.Input = "100 lunch"
	v.SetLoaded([]core.Expense{rec("b", 20, 200), held})

	// Partial push: new amount and note, zero timestamp and kind.
	push := core.Expense{ID: "a", Owner: "u1", Amount: core.Money{Cents: 150}, Note: "lunch, corrected", CategoryID: "2"}
	v.Apply(notify.Event{Op: notify.OpUpdate, Expense: push})

	snap := v.Snapshot()
	if snap[1].ID != "a" {
		t.Fatalf("updated record moved: %v", ids(v))
	}
	got := snap[1]
	if got.Amount.Cents != 150 {
		t.Errorf("amount = %d, want pushed 150", got.Amount.Cents)
	}
	if got.Note != "lunch, corrected" || got.CategoryID != "2" {
		t.Errorf("note/category not overlaid: %+v", got)
	}
	if !got.OccurredAt.Equal(held.OccurredAt) {
		t.Errorf("zero pushed timestamp wiped held one: %v", got.OccurredAt)
	}
	if got.Kind != core.KindExpense {
		t.Errorf("zero pushed kind wiped held one: %v", got.Kind)
	}
}

func TestView_UpdateUnknownInRangeInserts(t *testing.T) {
	v := New(marchContext(t))
	v.SetLoaded(nil)

	v.Apply(notify.Event{Op: notify.OpUpdate, Expense: rec("a", 10, 100)})
	if v.Len() != 1 {
		t.Errorf("len = %d, want 1 (update of unknown in-range record inserts)", v.Len())
	}
}

func TestView_Delete(t *testing.T) {
	v := New(marchContext(t))
	v.SetLoaded([]core.Expense{rec("a", 10, 100)})

	v.Apply(notify.Event{Op: notify.OpDelete, Expense: core.Expense{ID: "a", Owner: "u1"}})
	if v.Len() != 0 {
		t.Fatalf("len = %d after delete, want 0", v.Len())
	}
	// Duplicate delete is a no-op.
	v.Apply(notify.Event{Op: notify.OpDelete, Expense: core.Expense{ID: "a", Owner: "u1"}})
	if v.Len() != 0 {
		t.Fatal("duplicate delete changed the collection")
	}
}

func TestView_LoadErrorLeavesEmpty(t *testing.T) {
	v := New(marchContext(t))
	v.SetLoaded([]core.Expense{rec("a", 10, 100)})

	v.SetLoadError(errors.New("store down"))
	if v.Len() != 0 {
		t.Error("failed load left a stale collection")
	}
	if v.Err() == nil {
		t.Error("load error not surfaced")
	}

	v.SetLoaded([]core.Expense{rec("b", 11, 100)})
	if v.Err() != nil {
		t.Error("successful reload did not clear the error state")
	}
}

// Package liveview maintains the in-memory record collection behind one
// view context, reconciling three input streams: the initial bulk load,
// optimistic local inserts, and server-pushed change notifications.
// Records are deduplicated by identifier, so the optimistic path and the
// authoritative push may arrive in either order.
package liveview

import (
	"sort"
	"sync"

	"kharcha/internal/core"
	"kharcha/internal/notify"
)

// View is the mutable collection for one (owner, context, range)
// fingerprint. All mutation goes through the methods below; each one
// read-merges-writes the collection atomically relative to the others.
type View struct {
	mu      sync.Mutex
	vctx    core.ViewContext
	records []core.Expense // ordered newest-first
	loaded  bool
	loadErr error
}

func New(vctx core.ViewContext) *View {
	return &View{vctx: vctx}
}

func (v *View) Context() core.ViewContext { return v.vctx }

func (v *View) Fingerprint() string { return v.vctx.Fingerprint() }

// SetLoaded replaces the entire collection with a fresh bulk-load result
// and clears any prior load error. Input order does not matter; the
// collection is kept timestamp-descending.
func (v *View) SetLoaded(records []core.Expense) {
	sorted := make([]core.Expense, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.After(sorted[j].OccurredAt)
	})

	v.mu.Lock()
	defer v.mu.Unlock()
	v.records = sorted
	v.loaded = true
	v.loadErr = nil
}

// SetLoadError records a failed bulk load: the collection is left empty,
// never partial or stale.
func (v *View) SetLoadError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.records = nil
	v.loaded = false
	v.loadErr = err
}

// Err returns the load-error state, if any.
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loadErr
}

// Insert applies an insert from either source — optimistic local or
// server push — and reports whether the record entered the collection.
// It is a no-op when the record belongs to another owner or context,
// falls outside the range, or is already present.
func (v *View) Insert(e core.Expense) bool {
	if !v.belongs(e) || !v.vctx.Range.Contains(e.OccurredAt) {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.indexOf(e.ID) >= 0 {
		return false
	}
	v.records = append([]core.Expense{e}, v.records...)
	return true
}

// Apply dispatches one server-pushed change notification.
func (v *View) Apply(ev notify.Event) {
	switch ev.Op {
	case notify.OpInsert:
		v.Insert(ev.Expense)
	case notify.OpUpdate:
		v.update(ev.Expense)
	case notify.OpDelete:
		v.remove(ev.Expense.ID)
	}
}

// update recomputes range membership with the pushed timestamp: a record
// moved outside the range is evicted from this view (it still exists in
// storage); an in-range update merges pushed fields over held fields and
// replaces in place. An update for an unknown in-range record behaves as
// an insert, which covers push streams that compact insert+update.
func (v *View) update(e core.Expense) {
	if !v.belongs(e) {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	i := v.indexOf(e.ID)
	if i < 0 {
		if v.vctx.Range.Contains(e.OccurredAt) {
			v.records = append([]core.Expense{e}, v.records...)
		}
		return
	}

	merged := merge(v.records[i], e)
	if !v.vctx.Range.Contains(merged.OccurredAt) {
		v.records = append(v.records[:i], v.records[i+1:]...)
		return
	}
	v.records[i] = merged
}

func (v *View) remove(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i := v.indexOf(id); i >= 0 {
		v.records = append(v.records[:i], v.records[i+1:]...)
	}
}

// Snapshot returns a copy of the current collection, newest-first.
func (v *View) Snapshot() []core.Expense {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]core.Expense, len(v.records))
	copy(out, v.records)
	return out
}

func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.records)
}

func (v *View) belongs(e core.Expense) bool {
	return e.Owner == v.vctx.Owner && e.TripID == v.vctx.TripID
}

// indexOf requires v.mu held.
func (v *View) indexOf(id string) int {
	for i := range v.records {
		if v.records[i].ID == id {
			return i
		}
	}
	return -1
}

// merge overlays pushed fields on the held record. Pushed fields win when
// they disagree; zero-valued scalars in the payload keep the held value so
// partial-field pushes do not wipe data. CategoryID, Note and Input are
// always taken from the push, because the bus carries full rows and an
// emptied category is a legitimate update.
func merge(held, pushed core.Expense) core.Expense {
	out := held
	if pushed.Amount.Cents != 0 {
		out.Amount = pushed.Amount
	}
	if pushed.Kind != "" {
		out.Kind = pushed.Kind
	}
	if !pushed.OccurredAt.IsZero() {
		out.OccurredAt = pushed.OccurredAt
	}
	if pushed.Provenance != (core.Provenance{}) {
		out.Provenance = pushed.Provenance
	}
	out.CategoryID = pushed.CategoryID
	out.Note = pushed.Note
	out.Input = pushed.Input
	return out
}

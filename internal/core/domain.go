package core

import (
	"errors"
	"strings"
	"time"
)

const (
	KindExpense  Kind = "expense"
	KindBorrowed Kind = "borrowed"
	KindLended   Kind = "lended"
)

type (
	// Kind classifies a monetary record: an ordinary expense, money the
	// user borrowed (owes), or money the user lended (is owed).
	Kind string

	Money struct {
		Cents int64
	}

	// Provenance records how an expense was categorized.
	Provenance struct {
		Method     string  // "model", "pattern", "name", "default", "manual"
		Confidence float64 // 0..1, lowest for the default fallback
		Reasoning  string
	}

	// Expense is a single monetary record. An empty CategoryID means
	// uncategorized, which is distinct from a category named "Other".
	// An empty TripID places the record in the casual (ungrouped) context.
	Expense struct {
		ID         string
		Owner      string
		Amount     Money
		Kind       Kind
		CategoryID string
		Note       string
		Input      string // original free-text input
		OccurredAt time.Time
		TripID     string
		Provenance Provenance
	}

	Category struct {
		ID    string
		Owner string
		Name  string
	}

	// Trip is a bounded budget envelope with its own date span.
	// Invariant: End is strictly after Start, enforced at creation.
	Trip struct {
		ID    string
		Owner string
		Name  string
		Start time.Time
		End   time.Time
	}

	// MonthBucket identifies a calendar year-month ("2006-01"), the
	// budgeting granularity.
	MonthBucket string

	// BudgetRow holds one budget amount per (owner, context, month).
	// An empty TripID means the casual context.
	BudgetRow struct {
		Owner  string
		TripID string
		Month  MonthBucket
		Amount Money
	}
)

var (
	ErrMissingAmount    = errors.New("no amount found in input")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrDateOutOfRange   = errors.New("date outside the active range")
	ErrInvalidDateRange = errors.New("invalid date range")
	ErrInvalidTripSpan  = errors.New("trip end must be after start")
	ErrEmptyInput       = errors.New("empty input")
)

func (k Kind) IsValid() bool {
	switch k {
	case KindExpense, KindBorrowed, KindLended:
		return true
	default:
		return false
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// MonthBucketOf returns the bucket containing the given instant (UTC).
func MonthBucketOf(t time.Time) MonthBucket {
	return MonthBucket(t.UTC().Format("2006-01"))
}

func (e Expense) Validate() error {
	if e.Owner == "" {
		return errors.New("expense without owner")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !e.Kind.IsValid() {
		return errors.New("invalid kind: " + string(e.Kind))
	}
	if len(strings.TrimSpace(e.Note)) == 0 {
		return errors.New("empty note")
	}
	if len(e.Note) > 200 {
		return errors.New("note too long (max 200 characters)")
	}
	if e.OccurredAt.IsZero() {
		return errors.New("expense without date")
	}
	return nil
}

func (t Trip) Validate() error {
	if t.Owner == "" {
		return errors.New("trip without owner")
	}
	if len(strings.TrimSpace(t.Name)) == 0 {
		return errors.New("empty trip name")
	}
	if t.Start.IsZero() || t.End.IsZero() {
		return errors.New("trip without span")
	}
	if !t.End.After(t.Start) {
		return ErrInvalidTripSpan
	}
	return nil
}

// Overlaps reports whether the trip's span intersects the range, using
// closed-interval overlap: trip.Start <= range.End && trip.End >= range.Start.
func (t Trip) Overlaps(r DateRange) bool {
	return !t.Start.After(r.End) && !t.End.Before(r.Start)
}

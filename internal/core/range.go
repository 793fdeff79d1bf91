package core

import (
	"fmt"
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

// DateRange is a closed interval of UTC instants. Start sits on a day's
// 00:00:00.000 and End on a day's 23:59:59.999; a record timestamped
// exactly on either bound is in range.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange builds the inclusive UTC bounds for two calendar-date
// strings ("2006-01-02"). Malformed dates, or an end day before the start
// day, yield ErrInvalidDateRange.
func ParseDateRange(from, to string) (DateRange, error) {
	s, err := time.ParseInLocation(dateLayout, from, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: start %q", ErrInvalidDateRange, from)
	}
	e, err := time.ParseInLocation(dateLayout, to, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: end %q", ErrInvalidDateRange, to)
	}
	if e.Before(s) {
		return DateRange{}, fmt.Errorf("%w: end %q before start %q", ErrInvalidDateRange, to, from)
	}
	return NewDateRange(s, e), nil
}

// NewDateRange widens two instants to full-day inclusive bounds: the start
// instant's day at 00:00:00.000 and the end instant's day at 23:59:59.999.
func NewDateRange(start, end time.Time) DateRange {
	start = start.UTC()
	end = end.UTC()
	return DateRange{
		Start: time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		End:   time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 999e6, time.UTC),
	}
}

// RangeOfTrip is the trip's full start-to-end span as a day-inclusive
// range. Trip budgets always cover this span regardless of the currently
// viewed sub-range.
func RangeOfTrip(t Trip) DateRange {
	return NewDateRange(t.Start, t.End)
}

// Contains reports range membership with inclusive bounds.
func (r DateRange) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(r.Start) && !t.After(r.End)
}

// MonthBuckets enumerates the ordered, deduplicated calendar year-months
// fully or partially spanned by the range, both endpoints included.
func (r DateRange) MonthBuckets() []MonthBucket {
	var buckets []MonthBucket
	cur := time.Date(r.Start.Year(), r.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(r.End.Year(), r.End.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(last) {
		buckets = append(buckets, MonthBucketOf(cur))
		cur = cur.AddDate(0, 1, 0)
	}
	return buckets
}

// ViewContext selects what is visible: one owner, either the casual
// context (empty TripID) or a specific trip, and an active date range.
// It is an immutable value threaded through every core operation, never
// ambient state.
type ViewContext struct {
	Owner  string
	TripID string
	Range  DateRange
}

// IsCasual reports whether the view is the ungrouped, trip-independent one.
func (v ViewContext) IsCasual() bool {
	return v.TripID == ""
}

// Fingerprint identifies a (owner, context, range) combination. Results
// arriving from a subscription or load started under a different
// fingerprint must be discarded.
func (v ViewContext) Fingerprint() string {
	return v.Owner + "|" + v.TripID + "|" +
		strconv.FormatInt(v.Range.Start.UnixMilli(), 10) + "|" +
		strconv.FormatInt(v.Range.End.UnixMilli(), 10)
}

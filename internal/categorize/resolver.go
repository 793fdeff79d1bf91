// Package categorize turns free-text input like "250 lunch with friends"
// into a structured expense candidate. A primary classifier (normally a
// language model behind HTTP) suggests the category; every failure of that
// path degrades silently to a deterministic keyword fallback, so resolution
// never surfaces a classifier error to the caller.
package categorize

import (
	"context"
	"regexp"
	"strings"
	"time"

	"kharcha/internal/core"
)

// Context tags passed to the primary classifier.
const (
	TagCasual = "casual"
	TagTrip   = "trip"
)

// Provenance methods recorded on resolved expenses.
const (
	MethodModel   = "model"
	MethodPattern = "pattern"
	MethodName    = "name"
	MethodDefault = "default"
)

// Confidence assigned by the fallback path. The model path reports its own.
const (
	confidencePattern = 0.5
	confidenceName    = 0.3
	confidenceDefault = 0.1
)

const fallbackCategory = "Other"

// amountToken matches the first integer or two-decimal amount in the input.
var amountToken = regexp.MustCompile(`[0-9]+(?:[.,][0-9]{1,2})?`)

// Suggestion is the primary classifier's answer.
type Suggestion struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classifier is the primary text-to-category resolver. Implementations may
// fail or return garbage; the Resolver absorbs both.
type Classifier interface {
	Classify(ctx context.Context, text string, categories []string, tag string) (Suggestion, error)
}

// Observer receives categorization telemetry. Implementations must be
// cheap; calls happen on the request path.
type Observer interface {
	ClassifierFallback(reason string)
	Confidence(method string, confidence float64)
}

// Input carries everything Resolve needs. ExplicitDate is optional (zero
// means absent) and only consulted when the current moment falls outside
// the view's range.
type Input struct {
	Text         string
	ExplicitDate time.Time
	View         core.ViewContext
	Categories   []core.Category
}

// Result is the resolved expense candidate. CategoryID is empty when no
// category could be mapped (uncategorized).
type Result struct {
	Amount       core.Money
	Kind         core.Kind
	CategoryID   string
	CategoryName string
	Note         string
	Date         time.Time
	Provenance   core.Provenance
}

// Resolver resolves free text into expense candidates. It is a pure
// function over its inputs plus the classifier call; persistence and event
// emission belong to the caller.
type Resolver struct {
	classifier Classifier
	observer   Observer
	now        func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithObserver attaches categorization telemetry.
func WithObserver(o Observer) Option {
	return func(r *Resolver) { r.observer = o }
}

// NewResolver builds a Resolver. classifier may be nil, in which case every
// resolution takes the fallback path.
func NewResolver(classifier Classifier, opts ...Option) *Resolver {
	r := &Resolver{
		classifier: classifier,
		now:        time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve extracts amount, kind, note and date from the text and resolves
// the category via the primary classifier with keyword fallback.
func (r *Resolver) Resolve(ctx context.Context, in Input) (Result, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Result{}, core.ErrEmptyInput
	}

	token := amountToken.FindString(text)
	if token == "" {
		return Result{}, core.ErrMissingAmount
	}
	cents, err := core.ParseDecimalToCents(token)
	if err != nil {
		return Result{}, err
	}

	kind := inferKind(text)

	date, err := r.resolveDate(in)
	if err != nil {
		return Result{}, err
	}

	name, prov := r.resolveCategory(ctx, text, in)
	id := mapCategoryID(name, in.Categories)

	note := stripAmount(text, token)
	if note == "" {
		note = name
	}

	if r.observer != nil {
		r.observer.Confidence(prov.Method, prov.Confidence)
	}

	return Result{
		Amount:       core.Money{Cents: cents},
		Kind:         kind,
		CategoryID:   id,
		CategoryName: name,
		Note:         note,
		Date:         date,
		Provenance:   prov,
	}, nil
}

// inferKind checks borrow markers before lend markers so ambiguous text
// resolves deterministically.
func inferKind(text string) core.Kind {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "borrow") {
		return core.KindBorrowed
	}
	if strings.Contains(lower, "lend") || strings.Contains(lower, "lent") {
		return core.KindLended
	}
	return core.KindExpense
}

// resolveDate uses the current moment when it falls inside the view range;
// otherwise an explicit in-range date is required.
func (r *Resolver) resolveDate(in Input) (time.Time, error) {
	now := r.now().UTC()
	if in.View.Range.Contains(now) {
		return now, nil
	}
	if in.ExplicitDate.IsZero() || !in.View.Range.Contains(in.ExplicitDate) {
		return time.Time{}, core.ErrDateOutOfRange
	}
	return in.ExplicitDate.UTC(), nil
}

func (r *Resolver) resolveCategory(ctx context.Context, text string, in Input) (string, core.Provenance) {
	names := make([]string, len(in.Categories))
	for i, c := range in.Categories {
		names[i] = c.Name
	}

	tag := TagCasual
	if !in.View.IsCasual() {
		tag = TagTrip
	}

	if r.classifier != nil {
		s, err := r.classifier.Classify(ctx, text, names, tag)
		if err == nil && strings.TrimSpace(s.Category) != "" {
			return strings.TrimSpace(s.Category), core.Provenance{
				Method:     MethodModel,
				Confidence: s.Confidence,
				Reasoning:  s.Reasoning,
			}
		}
		if r.observer != nil {
			reason := "malformed"
			if err != nil {
				reason = "error"
			}
			r.observer.ClassifierFallback(reason)
		}
	}

	return fallbackResolve(text, names)
}

// stripAmount removes the first occurrence of the matched amount token and
// tidies the remainder.
func stripAmount(text, token string) string {
	idx := strings.Index(text, token)
	if idx < 0 {
		return strings.TrimSpace(text)
	}
	rest := text[:idx] + text[idx+len(token):]
	return strings.TrimSpace(strings.Join(strings.Fields(rest), " "))
}

// mapCategoryID maps a resolved category name to a stored category id:
// exact case-insensitive match, then substring containment, then the id of
// a category literally named "Other", then empty (uncategorized).
func mapCategoryID(name string, categories []core.Category) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return otherID(categories)
	}
	for _, c := range categories {
		if strings.ToLower(c.Name) == lower {
			return c.ID
		}
	}
	for _, c := range categories {
		cl := strings.ToLower(c.Name)
		if strings.Contains(cl, lower) || strings.Contains(lower, cl) {
			return c.ID
		}
	}
	return otherID(categories)
}

func otherID(categories []core.Category) string {
	for _, c := range categories {
		if strings.EqualFold(c.Name, fallbackCategory) {
			return c.ID
		}
	}
	return ""
}

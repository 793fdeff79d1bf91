package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"kharcha/internal/core"
)

var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// applies migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// nullable maps the domain's empty-string references to SQL NULL.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const expenseColumns = "id, owner, amount_cents, kind, category_id, note, input, occurred_at_ms, trip_id, method, confidence, reasoning"

func scanExpense(row interface{ Scan(...any) error }) (core.Expense, error) {
	var (
		e          core.Expense
		categoryID sql.NullString
		tripID     sql.NullString
		occurredMs int64
	)
	err := row.Scan(&e.ID, &e.Owner, &e.Amount.Cents, &e.Kind, &categoryID, &e.Note,
		&e.Input, &occurredMs, &tripID, &e.Provenance.Method, &e.Provenance.Confidence, &e.Provenance.Reasoning)
	if err != nil {
		return core.Expense{}, err
	}
	e.CategoryID = categoryID.String
	e.TripID = tripID.String
	e.OccurredAt = time.UnixMilli(occurredMs).UTC()
	return e, nil
}

func (s *SQLiteStore) InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Owner, e.Amount.Cents, string(e.Kind), nullable(e.CategoryID), e.Note,
		e.Input, e.OccurredAt.UnixMilli(), nullable(e.TripID),
		e.Provenance.Method, e.Provenance.Confidence, e.Provenance.Reasoning)
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) UpdateExpense(ctx context.Context, e core.Expense) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses
		SET amount_cents = ?, kind = ?, category_id = ?, note = ?, occurred_at_ms = ?,
		    method = ?, confidence = ?, reasoning = ?
		WHERE owner = ? AND id = ?`,
		e.Amount.Cents, string(e.Kind), nullable(e.CategoryID), e.Note, e.OccurredAt.UnixMilli(),
		e.Provenance.Method, e.Provenance.Confidence, e.Provenance.Reasoning,
		e.Owner, e.ID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) DeleteExpense(ctx context.Context, owner, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) GetExpense(ctx context.Context, owner, id string) (core.Expense, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE owner = ? AND id = ?`, owner, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

// tripPredicate builds the trip-context equality clause: casual means a
// NULL trip reference, not "any".
func tripPredicate(tripID string, args *[]any) string {
	if tripID == "" {
		return "trip_id IS NULL"
	}
	*args = append(*args, tripID)
	return "trip_id = ?"
}

func (s *SQLiteStore) ListView(ctx context.Context, vctx core.ViewContext) ([]core.Expense, error) {
	args := []any{vctx.Owner}
	trip := tripPredicate(vctx.TripID, &args)
	args = append(args, vctx.Range.Start.UnixMilli(), vctx.Range.End.UnixMilli())

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE owner = ? AND `+trip+` AND occurred_at_ms BETWEEN ? AND ?
		ORDER BY occurred_at_ms DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list view: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list view: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) CountView(ctx context.Context, vctx core.ViewContext) (int64, error) {
	args := []any{vctx.Owner}
	trip := tripPredicate(vctx.TripID, &args)
	args = append(args, vctx.Range.Start.UnixMilli(), vctx.Range.End.UnixMilli())

	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM expenses
		WHERE owner = ? AND `+trip+` AND occurred_at_ms BETWEEN ? AND ?`, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count view: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) DeleteExpensesByTrip(ctx context.Context, owner, tripID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE owner = ? AND trip_id = ?`, owner, tripID)
	if err != nil {
		return fmt.Errorf("delete expenses by trip: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReassignCategory(ctx context.Context, owner, fromID, toID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET category_id = ? WHERE owner = ? AND category_id = ?`,
		nullable(toID), owner, fromID)
	if err != nil {
		return fmt.Errorf("reassign category: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, owner, name) VALUES (?, ?, ?)`, c.ID, c.Owner, c.Name)
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListCategories(ctx context.Context, owner string) ([]core.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, name FROM categories WHERE owner = ? ORDER BY name COLLATE NOCASE`, owner)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Owner, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteCategory(ctx context.Context, owner, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM categories WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) InsertTrip(ctx context.Context, t core.Trip) (core.Trip, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trips (id, owner, name, start_ms, end_ms) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Owner, t.Name, t.Start.UnixMilli(), t.End.UnixMilli())
	if err != nil {
		return core.Trip{}, fmt.Errorf("insert trip: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) GetTrip(ctx context.Context, owner, id string) (core.Trip, error) {
	var (
		t              core.Trip
		startMs, endMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner, name, start_ms, end_ms FROM trips WHERE owner = ? AND id = ?`,
		owner, id).Scan(&t.ID, &t.Owner, &t.Name, &startMs, &endMs)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Trip{}, ErrNotFound
	}
	if err != nil {
		return core.Trip{}, fmt.Errorf("get trip: %w", err)
	}
	t.Start = time.UnixMilli(startMs).UTC()
	t.End = time.UnixMilli(endMs).UTC()
	return t, nil
}

func (s *SQLiteStore) ListTrips(ctx context.Context, owner string) ([]core.Trip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, name, start_ms, end_ms FROM trips WHERE owner = ? ORDER BY start_ms DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	var out []core.Trip
	for rows.Next() {
		var (
			t              core.Trip
			startMs, endMs int64
		)
		if err := rows.Scan(&t.ID, &t.Owner, &t.Name, &startMs, &endMs); err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		t.Start = time.UnixMilli(startMs).UTC()
		t.End = time.UnixMilli(endMs).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteTrip(ctx context.Context, owner, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM trips WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete trip: %w", err)
	}
	return requireRow(res)
}

func monthPlaceholders(months []core.MonthBucket, args *[]any) string {
	ph := make([]string, len(months))
	for i, m := range months {
		ph[i] = "?"
		*args = append(*args, string(m))
	}
	return strings.Join(ph, ", ")
}

func (s *SQLiteStore) SumBudgets(ctx context.Context, owner, tripID string, months []core.MonthBucket) (core.Money, error) {
	if len(months) == 0 {
		return core.Money{}, nil
	}
	args := []any{owner}
	trip := tripPredicate(tripID, &args)
	in := monthPlaceholders(months, &args)

	var cents int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM budgets
		WHERE owner = ? AND `+trip+` AND month IN (`+in+`)`, args...).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum budgets: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

func (s *SQLiteStore) DeleteBudgets(ctx context.Context, owner, tripID string, months []core.MonthBucket) error {
	if len(months) == 0 {
		return nil
	}
	args := []any{owner}
	trip := tripPredicate(tripID, &args)
	in := monthPlaceholders(months, &args)

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM budgets
		WHERE owner = ? AND `+trip+` AND month IN (`+in+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete budgets: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertBudgets(ctx context.Context, rows []core.BudgetRow) error {
	for _, r := range rows {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO budgets (owner, trip_id, month, amount_cents) VALUES (?, ?, ?, ?)`,
			r.Owner, nullable(r.TripID), string(r.Month), r.Amount.Cents)
		if err != nil {
			return fmt.Errorf("insert budget row %s: %w", r.Month, err)
		}
	}
	return nil
}

func (s *SQLiteStore) DeleteBudgetsByTrip(ctx context.Context, owner, tripID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM budgets WHERE owner = ? AND trip_id = ?`, owner, tripID)
	if err != nil {
		return fmt.Errorf("delete budgets by trip: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

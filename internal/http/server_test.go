package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"

	"kharcha/internal/budget"
	"kharcha/internal/categorize"
	"kharcha/internal/identity"
	"kharcha/internal/log"
	"kharcha/internal/metrics"
	"kharcha/internal/notify"
	"kharcha/internal/services"
	"kharcha/internal/store"
	"kharcha/internal/trips"
)

const testDate = "2025-03-15"

type testEnv struct {
	srv   *Server
	ts    *httptest.Server
	store *store.MemoryStore
	token string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s := store.NewMemoryStore()
	bus := notify.NewMemoryBus()
	logger := log.New(log.DefaultConfig())
	m := metrics.New(prometheus.NewRegistry())

	clock := func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) }
	resolver := categorize.NewResolver(nil, categorize.WithClock(clock))
	ledger := budget.NewLedger(s, s)

	ident := identity.NewService("client-id", []byte("0123456789abcdef"), time.Hour,
		identity.WithGoogleValidator(func(_ context.Context, _, _ string) (*idtoken.Payload, error) {
			return &idtoken.Payload{Claims: map[string]any{"email": "ana@example.com"}}, nil
		}))

	srv := NewServer("127.0.0.1:0",
		services.NewExpenseService(s, resolver, ledger, bus, m, logger),
		services.NewCategoryService(s, m, logger),
		trips.NewService(s),
		ledger,
		ident,
		bus,
		m,
		logger,
	)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})

	env := &testEnv{srv: srv, ts: ts, store: s}
	env.token = env.signIn(t)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (e *testEnv) signIn(t *testing.T) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/auth/google", signInRequest{IDToken: "google-token"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out signInResponse
	decodeInto(t, resp, &out)
	require.NotEmpty(t, out.Token)
	return out.Token
}

func (e *testEnv) seedCategories(t *testing.T, names ...string) map[string]string {
	t.Helper()
	ids := make(map[string]string, len(names))
	for _, n := range names {
		resp := e.do(t, http.MethodPost, "/api/categories", createCategoryRequest{Name: n}, e.token)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var c categoryJSON
		decodeInto(t, resp, &c)
		ids[n] = c.ID
	}
	return ids
}

func marchPath(path string) string {
	return fmt.Sprintf("%s?from=2025-03-01&to=2025-03-31", path)
}

func TestCreateExpenseRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	cats := env.seedCategories(t, "Food", "Other")

	resp := env.do(t, http.MethodPost, marchPath("/api/expenses"),
		createExpenseRequest{Text: "250 lunch with friends"}, env.token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created expenseJSON
	decodeInto(t, resp, &created)
	assert.Equal(t, int64(25000), created.AmountCents)
	assert.Equal(t, "expense", created.Kind)
	assert.Equal(t, cats["Food"], created.CategoryID)
	assert.Equal(t, "lunch with friends", created.Note)

	resp = env.do(t, http.MethodGet, marchPath("/api/expenses"), nil, env.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []expenseJSON
	decodeInto(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
}

func TestCreateExpenseValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategories(t, "Other")

	tests := []struct {
		name string
		body createExpenseRequest
		want int
	}{
		{"missing amount", createExpenseRequest{Text: "lunch with friends"}, http.StatusUnprocessableEntity},
		{"empty input", createExpenseRequest{Text: "   "}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, marchPath("/api/expenses"), tt.body, env.token)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestWritesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, marchPath("/api/expenses"),
		createExpenseRequest{Text: "250 lunch"}, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, marchPath("/api/expenses"),
		createExpenseRequest{Text: "250 lunch"}, "forged.session.token")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAnonymousReadsSeeNoData(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategories(t, "Food", "Other")
	resp := env.do(t, http.MethodPost, marchPath("/api/expenses"),
		createExpenseRequest{Text: "250 lunch"}, env.token)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodGet, marchPath("/api/expenses"), nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []expenseJSON
	decodeInto(t, resp, &list)
	assert.Empty(t, list)
}

func TestSummaryWithBudget(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategories(t, "Food", "Transport", "Other")

	resp := env.do(t, http.MethodPost, marchPath("/api/expenses"),
		createExpenseRequest{Text: "250 lunch"}, env.token)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPut, marchPath("/api/budget"),
		setBudgetRequest{AmountCents: 100000}, env.token)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, marchPath("/api/summary"), nil, env.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum summaryJSON
	decodeInto(t, resp, &sum)

	assert.Equal(t, int64(25000), sum.SpentCents)
	assert.Equal(t, int64(100000), sum.BudgetCents)
	assert.Equal(t, int64(75000), sum.BalanceCents)
	assert.InDelta(t, 25.0, sum.UsagePercent, 0.01)
	assert.Len(t, sum.Groups, 3, "every category appears, zero totals included")
}

func TestSummaryCacheInvalidatedByWrites(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategories(t, "Food", "Other")

	resp := env.do(t, http.MethodGet, marchPath("/api/summary"), nil, env.token)
	var before summaryJSON
	decodeInto(t, resp, &before)
	require.Zero(t, before.SpentCents)

	resp = env.do(t, http.MethodPost, marchPath("/api/expenses"),
		createExpenseRequest{Text: "250 lunch"}, env.token)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodGet, marchPath("/api/summary"), nil, env.token)
	var after summaryJSON
	decodeInto(t, resp, &after)
	assert.Equal(t, int64(25000), after.SpentCents)
}

func TestTripLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategories(t, "Other")

	resp := env.do(t, http.MethodPost, "/api/trips",
		createTripRequest{Name: "Goa", Start: "2025-03-10", End: "2025-03-20"}, env.token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var trip tripJSON
	decodeInto(t, resp, &trip)

	resp = env.do(t, http.MethodPost, marchPath("/api/expenses")+"&trip="+trip.ID,
		createExpenseRequest{Text: "300 beach shack"}, env.token)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Overlap listing.
	resp = env.do(t, http.MethodGet, marchPath("/api/trips"), nil, env.token)
	var overlapping []tripJSON
	decodeInto(t, resp, &overlapping)
	require.Len(t, overlapping, 1)

	resp = env.do(t, http.MethodGet, "/api/trips?from=2025-06-01&to=2025-06-30", nil, env.token)
	var none []tripJSON
	decodeInto(t, resp, &none)
	assert.Empty(t, none)

	// Cascade delete clears the trip's expenses.
	resp = env.do(t, http.MethodDelete, "/api/trips/"+trip.ID, nil, env.token)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, marchPath("/api/expenses")+"&trip="+trip.ID, nil, env.token)
	var list []expenseJSON
	decodeInto(t, resp, &list)
	assert.Empty(t, list)
}

func TestCreateTripRejectsBadSpan(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/trips",
		createTripRequest{Name: "bad", Start: "2025-03-20", End: "2025-03-20"}, env.token)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestDeleteUnknownExpense(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodDelete, "/api/expenses/missing", nil, env.token)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateExpense(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategories(t, "Food", "Other")

	resp := env.do(t, http.MethodPost, marchPath("/api/expenses"),
		createExpenseRequest{Text: "100 groceries"}, env.token)
	var created expenseJSON
	decodeInto(t, resp, &created)

	resp = env.do(t, http.MethodPut, "/api/expenses/"+created.ID, updateExpenseRequest{
		AmountCents: 15000,
		Kind:        "expense",
		CategoryID:  created.CategoryID,
		Note:        "weekly groceries",
		OccurredAt:  testDate,
	}, env.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated expenseJSON
	decodeInto(t, resp, &updated)
	assert.Equal(t, int64(15000), updated.AmountCents)
	assert.Equal(t, "weekly groceries", updated.Note)
}

func TestCategoryDeleteReassigns(t *testing.T) {
	env := newTestEnv(t)
	cats := env.seedCategories(t, "Food", "Other")

	resp := env.do(t, http.MethodPost, marchPath("/api/expenses"),
		createExpenseRequest{Text: "250 lunch"}, env.token)
	var created expenseJSON
	decodeInto(t, resp, &created)
	require.Equal(t, cats["Food"], created.CategoryID)

	resp = env.do(t, http.MethodDelete, "/api/categories/"+cats["Food"], nil, env.token)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err := env.store.GetExpense(context.Background(), "ana@example.com", created.ID)
	require.NoError(t, err)
	assert.Equal(t, cats["Other"], got.CategoryID)
}

func TestEventStreamDeliversInserts(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategories(t, "Food", "Other")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.ts.URL+"/api/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+env.token)

	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)
	require.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	// Headers arrive only after the subscription is live, so a write from
	// here on must reach the stream.
	resp := env.do(t, http.MethodPost, marchPath("/api/expenses"),
		createExpenseRequest{Text: "250 lunch"}, env.token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created expenseJSON
	decodeInto(t, resp, &created)

	reader := bufio.NewReader(stream.Body)
	eventLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: insert\n", eventLine)

	dataLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(dataLine, "data: "))
	var ev struct {
		Op      string      `json:"op"`
		Expense expenseWire `json:"expense"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(dataLine), "data: ")), &ev))
	assert.Equal(t, "insert", ev.Op)
	assert.Equal(t, created.ID, ev.Expense.ID)
}

// expenseWire picks the identifier out of a streamed change payload.
type expenseWire struct {
	ID string `json:"ID"`
}

func TestEventStreamRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.ts.URL + "/api/events")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBudgetMonthsFollowTripSpan(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/trips",
		createTripRequest{Name: "Coast", Start: "2025-03-20", End: "2025-06-05"}, env.token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var trip tripJSON
	decodeInto(t, resp, &trip)

	resp = env.do(t, http.MethodPut, marchPath("/api/budget")+"&trip="+trip.ID,
		setBudgetRequest{AmountCents: 2000}, env.token)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The amount is summed over the trip's four months, so the month list
	// must name those four months even though the view shows only March.
	resp = env.do(t, http.MethodGet, marchPath("/api/budget")+"&trip="+trip.ID, nil, env.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got budgetJSON
	decodeInto(t, resp, &got)
	assert.Equal(t, int64(4*2000), got.AmountCents)
	assert.Equal(t, []string{"2025-03", "2025-04", "2025-05", "2025-06"}, got.Months)
}

func TestMalformedDateIsFormatError(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategories(t, "Food", "Other")

	resp := env.do(t, http.MethodPost, marchPath("/api/expenses"),
		createExpenseRequest{Text: "250 lunch", Date: "15/03/2025"}, env.token)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var body errorBody
	decodeInto(t, resp, &body)
	assert.Contains(t, body.Error, "YYYY-MM-DD", "parse failures name the format, not the range")

	resp = env.do(t, http.MethodPost, marchPath("/api/expenses"),
		createExpenseRequest{Text: "250 lunch"}, env.token)
	var created expenseJSON
	decodeInto(t, resp, &created)

	resp = env.do(t, http.MethodPut, "/api/expenses/"+created.ID, updateExpenseRequest{
		AmountCents: 25000,
		Kind:        "expense",
		OccurredAt:  "yesterday",
	}, env.token)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var updateBody errorBody
	decodeInto(t, resp, &updateBody)
	assert.Contains(t, updateBody.Error, "YYYY-MM-DD")
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(env.ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

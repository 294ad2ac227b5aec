package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/auth"
	"spendwise/internal/cache"
	"spendwise/internal/core"
	"spendwise/internal/log"
	"spendwise/internal/services"
	"spendwise/internal/storage/memory"
)

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Results *int            `json:"results"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	t      *testing.T
	server *Server
}

func newTestAPI(t *testing.T, authPerMinute int) *testAPI {
	t.Helper()
	store := memory.New()
	clock := core.FixedClock{T: time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)}
	issuer, err := auth.NewIssuer("test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	analytics := services.NewAnalyticsService(store, cache.NewLRUCache[any](100, time.Minute), clock, nil)
	proc := services.NewRecurringProcessor(store, nil,
		services.WithProcessorClock(clock),
		services.WithInvalidator(analytics))
	svc := Services{
		Auth:      services.NewAuthService(store, issuer, proc, clock, nil),
		Ledger:    services.NewLedgerService(store, nil, analytics, clock, nil),
		Recurring: services.NewRecurringService(store, clock, nil),
		Processor: proc,
		Analytics: analytics,
		Budgets:   services.NewBudgetService(store, clock, nil),
	}
	s := NewServer(":0", svc, Options{
		Issuer:                issuer,
		Clock:                 clock,
		AuthRequestsPerMinute: authPerMinute,
		CORSAllowedOrigins:    []string{"http://localhost:5173"},
	})
	t.Cleanup(s.limiter.Stop)
	return &testAPI{t: t, server: s}
}

func (a *testAPI) do(method, path, token string, body any) (*httptest.ResponseRecorder, apiResponse) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, req)

	var resp apiResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func (a *testAPI) register(name, email string) string {
	a.t.Helper()
	rec, resp := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "secret1",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess struct {
		Token string `json:"token"`
	}
	require.NoError(a.t, json.Unmarshal(resp.Data, &sess))
	require.NotEmpty(a.t, sess.Token)
	return sess.Token
}

func decodeData[T any](t *testing.T, resp apiResponse) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	return v
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, 20)
	rec, resp := api.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec, _ = api.do(http.MethodGet, "/api/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t, 20)
	token := api.register("Ada", "ada@example.com")

	rec, resp := api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ada", "email": "ADA@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "User with this email already exists", resp.Message)

	rec, resp = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "wrong-pw",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password", resp.Message)

	rec, _ = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = api.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeData[core.User](t, resp)
	assert.Equal(t, "ada@example.com", me.Email)
	assert.NotContains(t, string(resp.Data), "password")

	rec, resp = api.do(http.MethodPut, "/api/auth/me", token, map[string]string{"name": "Ada L."})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ada L.", decodeData[core.User](t, resp).Name)

	rec, resp = api.do(http.MethodPut, "/api/auth/change-password", token, map[string]string{
		"currentPassword": "nope00", "newPassword": "another1",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Current password is incorrect", resp.Message)

	rec, _ = api.do(http.MethodPut, "/api/auth/change-password", token, map[string]string{
		"currentPassword": "secret1", "newPassword": "123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = api.do(http.MethodPut, "/api/auth/change-password", token, map[string]string{
		"currentPassword": "secret1", "newPassword": "another1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Password changed successfully", resp.Message)

	rec, _ = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "another1",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t, 20)
	paths := []string{"/api/transactions", "/api/budgets", "/api/recurring", "/api/analytics/summary", "/api/auth/me"}
	for _, p := range paths {
		rec, resp := api.do(http.MethodGet, p, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, p)
		assert.Equal(t, "Not authorized, no token", resp.Message, p)
	}

	rec, resp := api.do(http.MethodGet, "/api/transactions", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authorized, token failed", resp.Message)
}

func TestTransactionsCRUD(t *testing.T) {
	api := newTestAPI(t, 20)
	token := api.register("Ada", "ada@example.com")
	other := api.register("Bob", "bob@example.com")

	rec, resp := api.do(http.MethodPost, "/api/transactions", token, map[string]any{
		"amount": 12.5, "type": "expense", "category": "Food", "date": "2024-03-18",
		"description": "Lunch", "paymentMethod": "card",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeData[core.Transaction](t, resp)
	assert.Equal(t, int64(1250), created.Amount.Cents)
	assert.False(t, created.IsRecurring)

	_, _ = api.do(http.MethodPost, "/api/transactions", token, map[string]any{
		"amount": "3000", "type": "income", "category": "Salary", "date": "2024-03-01",
	})

	rec, resp = api.do(http.MethodPost, "/api/transactions", token, map[string]any{
		"amount": -5, "type": "expense", "category": "Food", "date": "2024-03-18",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Message, "amount")

	rec, _ = api.do(http.MethodPost, "/api/transactions", token, map[string]any{
		"amount": 5, "type": "expense", "category": "Food",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = api.do(http.MethodGet, "/api/transactions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.Results)
	assert.Equal(t, 2, *resp.Results)
	list := decodeData[[]core.Transaction](t, resp)
	assert.Equal(t, created.ID, list[0].ID, "newest date first")

	rec, resp = api.do(http.MethodGet, "/api/transactions?type=income", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, *resp.Results)

	rec, _ = api.do(http.MethodGet, "/api/transactions?type=bogus", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = api.do(http.MethodGet, "/api/transactions", other, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, *resp.Results, "users only see their own ledger")

	rec, resp = api.do(http.MethodPut, "/api/transactions/"+created.ID, other, map[string]any{"amount": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Transaction not found", resp.Message)

	rec, resp = api.do(http.MethodPut, "/api/transactions/"+created.ID, token, map[string]any{"amount": 15})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1500), decodeData[core.Transaction](t, resp).Amount.Cents)

	rec, _ = api.do(http.MethodGet, "/api/transactions/"+created.ID, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = api.do(http.MethodDelete, "/api/transactions/"+created.ID, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = api.do(http.MethodDelete, "/api/transactions/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportTransactions(t *testing.T) {
	api := newTestAPI(t, 20)
	token := api.register("Ada", "ada@example.com")
	_, _ = api.do(http.MethodPost, "/api/transactions", token, map[string]any{
		"amount": 9.99, "type": "expense", "category": "Books", "date": "2024-03-02", "description": "Go book",
	})

	rec, _ := api.do(http.MethodGet, "/api/transactions/export?category=Books", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "transactions-2024-03-20.csv")
	assert.Equal(t, "1", rec.Header().Get("X-Total-Count"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "date,type,category,amount,description,payment_method,recurring", lines[0])
	assert.Equal(t, "2024-03-02,expense,Books,9.99,Go book,other,false", lines[1])
}

func TestBudgets(t *testing.T) {
	api := newTestAPI(t, 20)
	token := api.register("Ada", "ada@example.com")

	rec, resp := api.do(http.MethodPost, "/api/budgets", token, map[string]any{
		"category": "Food", "limit": 100, "month": 3, "year": 2024,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	budget := decodeData[core.Budget](t, resp)

	rec, resp = api.do(http.MethodPost, "/api/budgets", token, map[string]any{
		"category": "Food", "limit": 50, "month": 3, "year": 2024,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "A budget for this category and month already exists", resp.Message)

	rec, _ = api.do(http.MethodPost, "/api/budgets", token, map[string]any{
		"category": "Fun", "limit": 50, "month": 13, "year": 2024,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, _ = api.do(http.MethodPost, "/api/transactions", token, map[string]any{
		"amount": 120, "type": "expense", "category": "Food", "date": "2024-03-05",
	})

	// defaults to the current month of the server clock
	rec, resp = api.do(http.MethodGet, "/api/budgets", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	usage := decodeData[[]core.BudgetUsage](t, resp)
	require.Len(t, usage, 1)
	assert.Equal(t, int64(12000), usage[0].Spent.Cents)
	assert.Equal(t, int64(-2000), usage[0].Remaining.Cents)
	assert.Equal(t, 120.0, usage[0].PercentUsed)
	assert.True(t, usage[0].IsExceeded)

	rec, resp = api.do(http.MethodGet, "/api/budgets?month=2&year=2024", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, *resp.Results)

	rec, _ = api.do(http.MethodGet, "/api/budgets?month=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = api.do(http.MethodPut, "/api/budgets/"+budget.ID, token, map[string]any{"limit": 150})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(15000), decodeData[core.Budget](t, resp).Limit.Cents)

	rec, _ = api.do(http.MethodPut, "/api/budgets/"+budget.ID, token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = api.do(http.MethodDelete, "/api/budgets/"+budget.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Budget deleted successfully", resp.Message)

	rec, resp = api.do(http.MethodDelete, "/api/budgets/"+budget.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Budget not found", resp.Message)
}

func TestRecurringRulesAndLoginRun(t *testing.T) {
	api := newTestAPI(t, 20)
	token := api.register("Ada", "ada@example.com")

	rec, resp := api.do(http.MethodPost, "/api/recurring", token, map[string]any{
		"title": "Rent", "amount": 800, "type": "expense", "category": "Housing",
		"frequency": "monthly", "startDate": "2024-02-20",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rule := decodeData[core.RecurringRule](t, resp)
	assert.Equal(t, 1, rule.Interval)
	assert.Equal(t, core.RuleActive, rule.Status)

	rec, _ = api.do(http.MethodPost, "/api/recurring", token, map[string]any{"title": "Broken"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = api.do(http.MethodGet, "/api/recurring/"+rule.ID+"/next", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ev := decodeData[services.Evaluation](t, resp)
	assert.Equal(t, services.OutcomeDue, ev.Outcome)
	assert.Equal(t, "2024-03-20", ev.NextRun.String())

	// login materializes the due occurrence before answering
	rec, _ = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp = api.do(http.MethodGet, "/api/transactions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txs := decodeData[[]core.Transaction](t, resp)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].IsRecurring)
	assert.Equal(t, "2024-03-20", txs[0].Date.String())
	require.NotNil(t, txs[0].RecurringID)
	assert.Equal(t, rule.ID, *txs[0].RecurringID)

	// a manual run on the same day creates nothing more
	rec, resp = api.do(http.MethodPost, "/api/recurring/run", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeData[services.RunReport](t, resp)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 0, report.Created)

	rec, resp = api.do(http.MethodPatch, "/api/recurring/"+rule.ID+"/status", token, map[string]string{"status": "paused"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.RulePaused, decodeData[core.RecurringRule](t, resp).Status)

	rec, _ = api.do(http.MethodPatch, "/api/recurring/"+rule.ID+"/status", token, map[string]string{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = api.do(http.MethodPut, "/api/recurring/"+rule.ID, token, map[string]any{"title": "Flat rent"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Flat rent", decodeData[core.RecurringRule](t, resp).Title)

	rec, resp = api.do(http.MethodGet, "/api/recurring", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, *resp.Results)

	rec, _ = api.do(http.MethodDelete, "/api/recurring/"+rule.ID, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, resp = api.do(http.MethodGet, "/api/recurring/"+rule.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Recurring rule not found", resp.Message)
}

func TestAnalyticsEndpoints(t *testing.T) {
	api := newTestAPI(t, 20)
	token := api.register("Ada", "ada@example.com")
	for _, tx := range []map[string]any{
		{"amount": 2000, "type": "income", "category": "Salary", "date": "2024-03-01"},
		{"amount": 300, "type": "expense", "category": "Food", "date": "2024-03-05"},
		{"amount": 100, "type": "expense", "category": "Fun", "date": "2024-03-06"},
		{"amount": 50, "type": "expense", "category": "Food", "date": "2024-02-10"},
	} {
		rec, _ := api.do(http.MethodPost, "/api/transactions", token, tx)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, resp := api.do(http.MethodGet, "/api/analytics/summary?startDate=2024-03-01&endDate=2024-03-31", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decodeData[core.Summary](t, resp)
	assert.Equal(t, int64(200000), sum.TotalIncome.Cents)
	assert.Equal(t, int64(40000), sum.TotalExpense.Cents)
	assert.Equal(t, int64(160000), sum.Savings.Cents)

	rec, resp = api.do(http.MethodGet, "/api/analytics/by-category?startDate=2024-03-01", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	breakdown := decodeData[core.CategoryBreakdown](t, resp)
	require.Len(t, breakdown.Categories, 2)
	assert.Equal(t, "Food", breakdown.Categories[0].Category)
	assert.Equal(t, 75.0, breakdown.Categories[0].Percentage)

	rec, resp = api.do(http.MethodGet, "/api/analytics/trend", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, *resp.Results)

	rec, resp = api.do(http.MethodGet, "/api/analytics/month-compare", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cmp := decodeData[core.MonthComparison](t, resp)
	assert.Equal(t, int64(40000), cmp.CurrentMonth.Expense.Cents)
	assert.Equal(t, int64(5000), cmp.PreviousMonth.Expense.Cents)

	rec, _ = api.do(http.MethodGet, "/api/analytics/summary?startDate=yesterday", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// a write invalidates the cached summary
	_, _ = api.do(http.MethodPost, "/api/transactions", token, map[string]any{
		"amount": 10, "type": "expense", "category": "Fun", "date": "2024-03-07",
	})
	_, resp = api.do(http.MethodGet, "/api/analytics/summary?startDate=2024-03-01&endDate=2024-03-31", token, nil)
	assert.Equal(t, int64(41000), decodeData[core.Summary](t, resp).TotalExpense.Cents)
}

func TestAuthRateLimit(t *testing.T) {
	api := newTestAPI(t, 2)
	body := map[string]string{"email": "nobody@example.com", "password": "whatever"}
	for i := 0; i < 2; i++ {
		rec, _ := api.do(http.MethodPost, "/api/auth/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec, resp := api.do(http.MethodPost, "/api/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "error", resp.Status)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t, 20)
	rec, resp := api.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route not found", resp.Message)
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t, 20)
	req := httptest.NewRequest(http.MethodOptions, "/api/transactions", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	api.server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestReadyReflectsStorePing(t *testing.T) {
	api := newTestAPI(t, 100)

	rec, resp := api.do(http.MethodGet, "/api/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", resp.Status)

	api.server.ping = func(context.Context) error { return errors.New("database is locked") }
	rec, resp = api.do(http.MethodGet, "/api/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Service not ready", resp.Message)
}

func TestFailHidesAndLogsUnexpectedErrors(t *testing.T) {
	api := newTestAPI(t, 100)
	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelInfo, Format: "json", Output: &buf})

	req := httptest.NewRequest(http.MethodPost, "/api/transactions", nil)
	req = req.WithContext(log.NewContext(req.Context(), logger))
	rec := httptest.NewRecorder()
	api.server.fail(rec, req, errors.New("disk I/O error"), resTransaction, "creating transaction")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk I/O error")
	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Server error while creating transaction", resp.Message)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "disk I/O error", entry[log.FieldError])
	assert.Equal(t, "creating transaction", entry[log.FieldOperation])
	assert.Equal(t, "/api/transactions", entry[log.FieldPath])
}

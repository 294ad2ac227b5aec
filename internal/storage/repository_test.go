package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"spendwise/internal/core"
	"spendwise/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, repo *SQLiteRepository, id, email string) {
	t.Helper()
	require.NoError(t, repo.CreateUser(context.Background(), core.User{
		ID: id, Name: id, Email: email, PasswordHash: "x", AvatarColor: core.DefaultAvatarColor,
		CreatedAt: testNow, UpdatedAt: testNow,
	}))
}

func tx(id, user string, flow core.Flow, cents int64, cat string, d core.Date) core.Transaction {
	return core.Transaction{
		ID: id, UserID: user, Amount: core.Money{Cents: cents}, Type: flow, Category: cat, Date: d,
		PaymentMethod: core.PaymentOther, CreatedAt: testNow, UpdatedAt: testNow,
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedUser(t, repo, "u1", "a@example.com")

	err := repo.CreateUser(ctx, core.User{ID: "u2", Name: "b", Email: "a@example.com", PasswordHash: "x", CreatedAt: testNow, UpdatedAt: testNow})
	assert.ErrorIs(t, err, ports.ErrConflict)

	u, err := repo.GetUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.True(t, u.CreatedAt.Equal(testNow))

	_, err = repo.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestTransactionsFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedUser(t, repo, "u1", "a@example.com")
	seedUser(t, repo, "u2", "b@example.com")

	require.NoError(t, repo.CreateTransaction(ctx, tx("t1", "u1", core.Income, 50000, "Salary", core.NewDate(2024, 1, 5))))
	require.NoError(t, repo.CreateTransaction(ctx, tx("t2", "u1", core.Expense, 20000, "Food", core.NewDate(2024, 1, 31))))
	require.NoError(t, repo.CreateTransaction(ctx, tx("t3", "u1", core.Expense, 10000, "Food", core.NewDate(2024, 2, 1))))
	require.NoError(t, repo.CreateTransaction(ctx, tx("t4", "u2", core.Expense, 99900, "Food", core.NewDate(2024, 1, 10))))

	all, err := repo.ListTransactions(ctx, "u1", ports.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "t3", all[0].ID)
	assert.Equal(t, "t1", all[2].ID)

	jan, _ := core.ParseDateRange("2024-01-01", "2024-01-31")
	list, err := repo.ListTransactions(ctx, "u1", ports.TransactionFilter{Type: core.Expense, Range: jan})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "t2", list[0].ID)

	_, err = repo.GetTransaction(ctx, "u2", "t1")
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteTransaction(ctx, "u2", "t1"), ports.ErrNotFound)
}

func TestAnalyticsQueries(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedUser(t, repo, "u1", "a@example.com")

	require.NoError(t, repo.CreateTransaction(ctx, tx("t1", "u1", core.Income, 50000, "Salary", core.NewDate(2024, 1, 5))))
	require.NoError(t, repo.CreateTransaction(ctx, tx("t2", "u1", core.Expense, 20000, "Rent", core.NewDate(2024, 1, 10))))
	require.NoError(t, repo.CreateTransaction(ctx, tx("t3", "u1", core.Expense, 10000, "Food", core.NewDate(2024, 2, 1))))
	require.NoError(t, repo.CreateTransaction(ctx, tx("t4", "u1", core.Expense, 5000, "Food", core.NewDate(2024, 2, 3))))

	jan, _ := core.ParseDateRange("2024-01-01", "2024-01-31")
	totals, err := repo.FlowTotals(ctx, "u1", jan)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), totals.Income.Cents)
	assert.Equal(t, int64(20000), totals.Expense.Cents)

	cats, err := repo.ExpenseByCategory(ctx, "u1", core.DateRange{})
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Rent", cats[0].Category)
	assert.Equal(t, int64(15000), cats[1].Total.Cents)

	trend, err := repo.MonthlyTrend(ctx, "u1", core.DateRange{})
	require.NoError(t, err)
	require.Len(t, trend, 2)
	assert.Equal(t, core.TrendPoint{Year: 2024, Month: 1, Income: core.Money{Cents: 50000}, Expense: core.Money{Cents: 20000}}, trend[0])
	assert.Equal(t, core.TrendPoint{Year: 2024, Month: 2, Expense: core.Money{Cents: 15000}}, trend[1])
}

func TestBudgets(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedUser(t, repo, "u1", "a@example.com")

	b := core.Budget{ID: "b1", UserID: "u1", Category: "Food", Limit: core.Money{Cents: 30000}, Month: 1, Year: 2024, CreatedAt: testNow, UpdatedAt: testNow}
	require.NoError(t, repo.CreateBudget(ctx, b))
	b.ID = "b2"
	assert.ErrorIs(t, repo.CreateBudget(ctx, b), ports.ErrConflict)

	list, err := repo.ListBudgets(ctx, "u1", 1, 2024)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(30000), list[0].Limit.Cents)
}

func newRule(id, user string, start core.Date) core.RecurringRule {
	return core.RecurringRule{
		ID: id, UserID: user, Title: "Rent", Amount: core.Money{Cents: 100000}, Type: core.Expense,
		Category: "Rent", PaymentMethod: core.PaymentOther, Frequency: core.Monthly, Interval: 1,
		StartDate: start, Status: core.RuleActive, CreatedAt: testNow, UpdatedAt: testNow,
	}
}

func TestRulesRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedUser(t, repo, "u1", "a@example.com")

	r := newRule("r1", "u1", core.NewDate(2024, 1, 15))
	end := core.NewDate(2024, 12, 31)
	r.EndDate = &end
	require.NoError(t, repo.CreateRule(ctx, r))

	got, err := repo.GetRule(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", got.StartDate.String())
	require.NotNil(t, got.EndDate)
	assert.Equal(t, "2024-12-31", got.EndDate.String())
	assert.Nil(t, got.LastExecutedAt)

	got.Status = core.RulePaused
	_, err = repo.UpdateRule(ctx, got)
	require.NoError(t, err)
	active, err := repo.ListRules(ctx, "u1", ports.RuleFilter{Status: core.RuleActive})
	require.NoError(t, err)
	assert.Empty(t, active)

	owners, err := repo.ListRuleOwners(ctx)
	require.NoError(t, err)
	assert.Empty(t, owners)
}

func TestMaterializeOccurrence(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedUser(t, repo, "u1", "a@example.com")
	require.NoError(t, repo.CreateRule(ctx, newRule("r1", "u1", core.NewDate(2024, 1, 15))))

	ruleID := "r1"
	entry := tx("e1", "u1", core.Expense, 100000, "Rent", core.NewDate(2024, 3, 20))
	entry.IsRecurring = true
	entry.RecurringID = &ruleID
	require.NoError(t, repo.MaterializeOccurrence(ctx, "r1", nil, entry))

	// Same stale marker: the compare-and-set fails and nothing is written.
	entry.ID = "e2"
	assert.ErrorIs(t, repo.MaterializeOccurrence(ctx, "r1", nil, entry), ports.ErrOccurrenceConflict)

	// Correct marker but same date: the unique occurrence index rejects it.
	last := core.NewDate(2024, 3, 20)
	entry.ID = "e3"
	assert.ErrorIs(t, repo.MaterializeOccurrence(ctx, "r1", &last, entry), ports.ErrOccurrenceConflict)

	got, err := repo.GetRule(ctx, "u1", "r1")
	require.NoError(t, err)
	require.NotNil(t, got.LastExecutedAt)
	assert.Equal(t, "2024-03-20", got.LastExecutedAt.String())

	list, err := repo.ListTransactions(ctx, "u1", ports.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsRecurring)
	require.NotNil(t, list[0].RecurringID)
	assert.Equal(t, "r1", *list[0].RecurringID)

	entry.ID = "e4"
	entry.UserID = "someone-else"
	assert.ErrorIs(t, repo.MaterializeOccurrence(ctx, "r1", &last, entry), ports.ErrNotFound)
}

func TestMaterializeOccurrenceConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedUser(t, repo, "u1", "a@example.com")
	require.NoError(t, repo.CreateRule(ctx, newRule("r1", "u1", core.NewDate(2024, 1, 15))))

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	ruleID := "r1"
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry := tx(string(rune('a'+i)), "u1", core.Expense, 100000, "Rent", core.NewDate(2024, 3, 20))
			entry.RecurringID = &ruleID
			entry.IsRecurring = true
			if err := repo.MaterializeOccurrence(ctx, "r1", nil, entry); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ports.ErrOccurrenceConflict)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	list, err := repo.ListTransactions(ctx, "u1", ports.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpdateRuleNeverRewindsMarker(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedUser(t, repo, "u1", "a@example.com")
	require.NoError(t, repo.CreateRule(ctx, newRule("r1", "u1", core.NewDate(2024, 1, 15))))

	// An edit prepared from a read taken before the engine ran.
	stale, err := repo.GetRule(ctx, "u1", "r1")
	require.NoError(t, err)

	ruleID := "r1"
	entry := tx("e1", "u1", core.Expense, 100000, "Rent", core.NewDate(2024, 3, 20))
	entry.IsRecurring = true
	entry.RecurringID = &ruleID
	require.NoError(t, repo.MaterializeOccurrence(ctx, "r1", nil, entry))

	stale.Title = "Flat rent"
	got, err := repo.UpdateRule(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, "Flat rent", got.Title)
	require.NotNil(t, got.LastExecutedAt)
	assert.Equal(t, "2024-03-20", got.LastExecutedAt.String())

	// A start date past the stored marker clears it.
	got.StartDate = core.NewDate(2024, 4, 1)
	got, err = repo.UpdateRule(ctx, got)
	require.NoError(t, err)
	assert.Nil(t, got.LastExecutedAt)

	_, err = repo.UpdateRule(ctx, core.RecurringRule{ID: "r1", UserID: "u2", StartDate: got.StartDate})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

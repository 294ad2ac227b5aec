// Package memory is a process-local backend. It implements every port with
// plain maps guarded by one mutex and is used for development and tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"spendwise/internal/core"
	"spendwise/internal/ports"
)

type Store struct {
	mu      sync.Mutex
	users   map[string]core.User
	txs     map[string]core.Transaction
	rules   map[string]core.RecurringRule
	budgets map[string]core.Budget
}

var _ ports.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:   map[string]core.User{},
		txs:     map[string]core.Transaction{},
		rules:   map[string]core.RecurringRule{},
		budgets: map[string]core.Budget{},
	}
}

func (s *Store) Close() error { return nil }

// Users

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ports.ErrConflict
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, ports.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return core.User{}, ports.ErrNotFound
}

func (s *Store) UpdateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return ports.ErrNotFound
	}
	s.users[u.ID] = u
	return nil
}

// Ledger

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[t.ID] = t
	return nil
}

func (s *Store) GetTransaction(_ context.Context, userID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok || t.UserID != userID {
		return core.Transaction{}, ports.ErrNotFound
	}
	return t, nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, f ports.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0)
	for _, t := range s.txs {
		if t.UserID != userID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if !f.Range.Contains(t.Date) {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b core.Transaction) int {
		if c := b.Date.Compare(a.Date.Time); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.txs[t.ID]
	if !ok || old.UserID != t.UserID {
		return ports.ErrNotFound
	}
	s.txs[t.ID] = t
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok || t.UserID != userID {
		return ports.ErrNotFound
	}
	delete(s.txs, id)
	return nil
}

// Recurring rules

func (s *Store) CreateRule(_ context.Context, r core.RecurringRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = r
	return nil
}

func (s *Store) GetRule(_ context.Context, userID, id string) (core.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok || r.UserID != userID {
		return core.RecurringRule{}, ports.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListRules(_ context.Context, userID string, f ports.RuleFilter) ([]core.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.RecurringRule, 0)
	for _, r := range s.rules {
		if r.UserID != userID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b core.RecurringRule) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) UpdateRule(_ context.Context, r core.RecurringRule) (core.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.rules[r.ID]
	if !ok || old.UserID != r.UserID {
		return core.RecurringRule{}, ports.ErrNotFound
	}
	r.CreatedAt = old.CreatedAt
	r.LastExecutedAt = old.LastExecutedAt
	if r.LastExecutedAt != nil && r.LastExecutedAt.Before(r.StartDate) {
		r.LastExecutedAt = nil
	}
	s.rules[r.ID] = r
	return r, nil
}

func (s *Store) DeleteRule(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok || r.UserID != userID {
		return ports.ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

func (s *Store) ListRuleOwners(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, r := range s.rules {
		if r.Status != core.RuleActive {
			continue
		}
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		out = append(out, r.UserID)
	}
	slices.Sort(out)
	return out, nil
}

// MaterializeOccurrence holds the store lock across the check and both writes,
// so a concurrent caller observes either nothing or the whole transition.
func (s *Store) MaterializeOccurrence(_ context.Context, ruleID string, prev *core.Date, entry core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok || r.UserID != entry.UserID {
		return ports.ErrNotFound
	}
	if !sameDate(r.LastExecutedAt, prev) {
		return ports.ErrOccurrenceConflict
	}
	for _, t := range s.txs {
		if t.RecurringID != nil && *t.RecurringID == ruleID && t.Date.Equal(entry.Date) {
			return ports.ErrOccurrenceConflict
		}
	}
	s.txs[entry.ID] = entry
	d := entry.Date
	r.LastExecutedAt = &d
	r.UpdatedAt = entry.CreatedAt
	s.rules[ruleID] = r
	return nil
}

func sameDate(a, b *core.Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Budgets

func (s *Store) CreateBudget(_ context.Context, b core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.budgets {
		if existing.UserID == b.UserID && existing.Category == b.Category &&
			existing.Month == b.Month && existing.Year == b.Year {
			return ports.ErrConflict
		}
	}
	s.budgets[b.ID] = b
	return nil
}

func (s *Store) GetBudget(_ context.Context, userID, id string) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok || b.UserID != userID {
		return core.Budget{}, ports.ErrNotFound
	}
	return b, nil
}

func (s *Store) ListBudgets(_ context.Context, userID string, month, year int) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Budget, 0)
	for _, b := range s.budgets {
		if b.UserID == userID && b.Month == month && b.Year == year {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b core.Budget) int { return strings.Compare(a.Category, b.Category) })
	return out, nil
}

func (s *Store) UpdateBudget(_ context.Context, b core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.budgets[b.ID]
	if !ok || old.UserID != b.UserID {
		return ports.ErrNotFound
	}
	s.budgets[b.ID] = b
	return nil
}

func (s *Store) DeleteBudget(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok || b.UserID != userID {
		return ports.ErrNotFound
	}
	delete(s.budgets, id)
	return nil
}

// Analytics

func (s *Store) inRange(userID string, r core.DateRange) []core.Transaction {
	var out []core.Transaction
	for _, t := range s.txs {
		if t.UserID == userID && r.Contains(t.Date) {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) FlowTotals(_ context.Context, userID string, r core.DateRange) (core.FlowTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out core.FlowTotals
	for _, t := range s.inRange(userID, r) {
		switch t.Type {
		case core.Income:
			out.Income = out.Income.Add(t.Amount)
		case core.Expense:
			out.Expense = out.Expense.Add(t.Amount)
		}
	}
	return out, nil
}

func (s *Store) ExpenseByCategory(_ context.Context, userID string, r core.DateRange) ([]core.CategoryAmount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := map[string]core.Money{}
	for _, t := range s.inRange(userID, r) {
		if t.Type == core.Expense {
			totals[t.Category] = totals[t.Category].Add(t.Amount)
		}
	}
	out := make([]core.CategoryAmount, 0, len(totals))
	for c, m := range totals {
		out = append(out, core.CategoryAmount{Category: c, Total: m})
	}
	slices.SortFunc(out, func(a, b core.CategoryAmount) int {
		if c := cmp.Compare(b.Total.Cents, a.Total.Cents); c != 0 {
			return c
		}
		return strings.Compare(a.Category, b.Category)
	})
	return out, nil
}

func (s *Store) MonthlyTrend(_ context.Context, userID string, r core.DateRange) ([]core.TrendPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type key struct{ y, m int }
	buckets := map[key]*core.TrendPoint{}
	for _, t := range s.inRange(userID, r) {
		k := key{t.Date.Year(), t.Date.Month()}
		p, ok := buckets[k]
		if !ok {
			p = &core.TrendPoint{Year: k.y, Month: k.m}
			buckets[k] = p
		}
		switch t.Type {
		case core.Income:
			p.Income = p.Income.Add(t.Amount)
		case core.Expense:
			p.Expense = p.Expense.Add(t.Amount)
		}
	}
	out := make([]core.TrendPoint, 0, len(buckets))
	for _, p := range buckets {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b core.TrendPoint) int {
		if c := cmp.Compare(a.Year, b.Year); c != 0 {
			return c
		}
		return cmp.Compare(a.Month, b.Month)
	})
	return out, nil
}

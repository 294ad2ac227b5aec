package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"spendwise/internal/core"
	"spendwise/internal/log"
	"spendwise/internal/ports"
)

// BudgetInput is the body of a budget create request.
type BudgetInput struct {
	Category string      `json:"category"`
	Limit    *core.Money `json:"limit"`
	Month    *int        `json:"month"`
	Year     *int        `json:"year"`
}

// BudgetStore is what BudgetService needs from storage.
type BudgetStore interface {
	ports.BudgetStore
	ports.AnalyticsReader
}

type BudgetService struct {
	store  BudgetStore
	clock  core.Clock
	logger *log.Logger
	newID  func() string
}

func NewBudgetService(store BudgetStore, clock core.Clock, logger *log.Logger) *BudgetService {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &BudgetService{
		store:  store,
		clock:  clock,
		logger: logger.WithComponent(log.ComponentBudget),
		newID:  uuid.NewString,
	}
}

// Create stores a budget. A second budget for the same category and month
// yields ports.ErrConflict.
func (s *BudgetService) Create(ctx context.Context, userID string, in BudgetInput) (core.Budget, error) {
	switch {
	case strings.TrimSpace(in.Category) == "":
		return core.Budget{}, core.Invalid("category", core.ErrMissingRequiredField)
	case in.Limit == nil:
		return core.Budget{}, core.Invalid("limit", core.ErrMissingRequiredField)
	case in.Month == nil:
		return core.Budget{}, core.Invalid("month", core.ErrMissingRequiredField)
	case in.Year == nil:
		return core.Budget{}, core.Invalid("year", core.ErrMissingRequiredField)
	}

	now := s.clock.Now().UTC()
	b := core.Budget{
		ID:        s.newID(),
		UserID:    userID,
		Category:  strings.TrimSpace(in.Category),
		Limit:     *in.Limit,
		Month:     *in.Month,
		Year:      *in.Year,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if err := s.store.CreateBudget(ctx, b); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return core.Budget{}, err
		}
		return core.Budget{}, fmt.Errorf("save budget: %w", err)
	}
	s.logger.InfoContext(ctx, "Budget created",
		log.FieldUserID, userID,
		log.FieldBudgetID, b.ID,
		log.FieldCategory, b.Category)
	return b, nil
}

// ResolvePeriod fills a missing month or year from the clock's current day.
func (s *BudgetService) ResolvePeriod(month, year int) (int, int) {
	today := core.Today(s.clock)
	if month == 0 {
		month = today.Month()
	}
	if year == 0 {
		year = today.Year()
	}
	return month, year
}

// List returns the budgets of one month joined with what was spent per
// category in that month.
func (s *BudgetService) List(ctx context.Context, userID string, month, year int) ([]core.BudgetUsage, error) {
	month, year = s.ResolvePeriod(month, year)
	if month < 1 || month > 12 {
		return nil, core.Invalid("month", core.ErrInvalidMonth)
	}
	if year < 1 {
		return nil, core.Invalid("year", core.ErrInvalidYear)
	}

	budgets, err := s.store.ListBudgets(ctx, userID, month, year)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	out := make([]core.BudgetUsage, 0, len(budgets))
	if len(budgets) == 0 {
		return out, nil
	}

	spent, err := s.store.ExpenseByCategory(ctx, userID, core.MonthRange(year, month))
	if err != nil {
		return nil, fmt.Errorf("expense by category: %w", err)
	}
	byCategory := make(map[string]core.Money, len(spent))
	for _, c := range spent {
		byCategory[c.Category] = c.Total
	}
	for _, b := range budgets {
		out = append(out, core.UsageOf(b, byCategory[b.Category]))
	}
	return out, nil
}

// UpdateLimit changes the limit of one budget.
func (s *BudgetService) UpdateLimit(ctx context.Context, userID, id string, limit *core.Money) (core.Budget, error) {
	if limit == nil {
		return core.Budget{}, core.Invalid("limit", core.ErrMissingRequiredField)
	}
	b, err := s.store.GetBudget(ctx, userID, id)
	if err != nil {
		return core.Budget{}, err
	}
	b.Limit = *limit
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	b.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.UpdateBudget(ctx, b); err != nil {
		return core.Budget{}, err
	}
	return b, nil
}

func (s *BudgetService) Delete(ctx context.Context, userID, id string) error {
	return s.store.DeleteBudget(ctx, userID, id)
}

package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"spendwise/internal/cache"
	"spendwise/internal/core"
	"spendwise/internal/log"
	"spendwise/internal/ports"
)

const (
	DefaultAnalyticsCacheSize = 1000
	DefaultAnalyticsCacheTTL  = 5 * time.Minute
)

// AnalyticsService answers the read-side aggregate queries over a user's
// ledger. Results are cached per user until the next ledger write.
type AnalyticsService struct {
	reader ports.AnalyticsReader
	cache  cache.Cache[any]
	clock  core.Clock
	logger *log.Logger

	// gens counts invalidations per user; a result computed under an older
	// generation is returned but not cached.
	mu   sync.Mutex
	gens map[string]uint64
}

// NewAnalyticsService builds the service. A nil cache disables caching.
func NewAnalyticsService(reader ports.AnalyticsReader, c cache.Cache[any], clock core.Clock, logger *log.Logger) *AnalyticsService {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &AnalyticsService{
		reader: reader,
		cache:  c,
		clock:  clock,
		logger: logger.WithComponent(log.ComponentAnalytics),
		gens:   make(map[string]uint64),
	}
}

// Invalidate drops every cached aggregate of userID.
func (s *AnalyticsService) Invalidate(userID string) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	s.gens[userID]++
	n := s.cache.DeletePrefix(userID + "|")
	s.mu.Unlock()
	if n > 0 {
		s.logger.Debug("Analytics cache invalidated", log.FieldUserID, userID, "entries", n)
	}
}

func (s *AnalyticsService) generation(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[userID]
}

func cached[T any](ctx context.Context, s *AnalyticsService, userID, kind string, compute func(context.Context) (T, error)) (T, error) {
	if s.cache == nil {
		return compute(ctx)
	}
	key := userID + "|" + kind
	if v, ok := s.cache.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	gen := s.generation(userID)
	v, err := compute(ctx)
	if err != nil {
		return v, err
	}
	s.mu.Lock()
	if s.gens[userID] == gen {
		s.cache.Set(key, v)
	}
	s.mu.Unlock()
	return v, nil
}

// Summary totals income and expense in r.
func (s *AnalyticsService) Summary(ctx context.Context, userID string, r core.DateRange) (core.Summary, error) {
	return cached(ctx, s, userID, "summary|"+r.Key(), func(ctx context.Context) (core.Summary, error) {
		f, err := s.reader.FlowTotals(ctx, userID, r)
		if err != nil {
			return core.Summary{}, fmt.Errorf("flow totals: %w", err)
		}
		return core.NewSummary(f.Income, f.Expense), nil
	})
}

// ByCategory splits expenses in r by category, largest first. Percentages are
// all zero when there is no expense at all.
func (s *AnalyticsService) ByCategory(ctx context.Context, userID string, r core.DateRange) (core.CategoryBreakdown, error) {
	return cached(ctx, s, userID, "category|"+r.Key(), func(ctx context.Context) (core.CategoryBreakdown, error) {
		rows, err := s.reader.ExpenseByCategory(ctx, userID, r)
		if err != nil {
			return core.CategoryBreakdown{}, fmt.Errorf("expense by category: %w", err)
		}
		var total core.Money
		for _, row := range rows {
			total = total.Add(row.Total)
		}
		out := make([]core.CategoryAmount, len(rows))
		for i, row := range rows {
			row.Percentage = core.Percent(row.Total, total, -1)
			out[i] = row
		}
		return core.CategoryBreakdown{TotalExpense: total, Categories: out}, nil
	})
}

// Trend returns per-month income and expense in r, oldest month first.
func (s *AnalyticsService) Trend(ctx context.Context, userID string, r core.DateRange) ([]core.TrendPoint, error) {
	return cached(ctx, s, userID, "trend|"+r.Key(), func(ctx context.Context) ([]core.TrendPoint, error) {
		points, err := s.reader.MonthlyTrend(ctx, userID, r)
		if err != nil {
			return nil, fmt.Errorf("monthly trend: %w", err)
		}
		if points == nil {
			points = []core.TrendPoint{}
		}
		return points, nil
	})
}

// MonthCompare contrasts the current month up to today with the whole
// previous month.
func (s *AnalyticsService) MonthCompare(ctx context.Context, userID string) (core.MonthComparison, error) {
	today := core.Today(s.clock)
	first := today.StartOfMonth()
	prevFirst := first.AddMonths(-1)
	current := core.DateRange{Start: &first, End: &today}
	previous := core.MonthRange(prevFirst.Year(), prevFirst.Month())

	return cached(ctx, s, userID, "compare|"+today.String(), func(ctx context.Context) (core.MonthComparison, error) {
		var cmp core.MonthComparison
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			f, err := s.reader.FlowTotals(gctx, userID, current)
			if err != nil {
				return fmt.Errorf("current month totals: %w", err)
			}
			cmp.CurrentMonth = core.MonthTotalsOf(f)
			return nil
		})
		g.Go(func() error {
			f, err := s.reader.FlowTotals(gctx, userID, previous)
			if err != nil {
				return fmt.Errorf("previous month totals: %w", err)
			}
			cmp.PreviousMonth = core.MonthTotalsOf(f)
			return nil
		})
		if err := g.Wait(); err != nil {
			return core.MonthComparison{}, err
		}
		return cmp, nil
	})
}

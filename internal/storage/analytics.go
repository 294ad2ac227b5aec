package storage

import (
	"context"
	"fmt"

	"spendwise/internal/core"
)

func (r *SQLiteRepository) FlowTotals(ctx context.Context, userID string, dr core.DateRange) (core.FlowTotals, error) {
	clause, args := rangeClause(dr)
	rows, err := r.db.QueryContext(ctx, `
		SELECT type, COALESCE(SUM(amount_cents), 0)
		FROM transactions
		WHERE user_id = ?`+clause+`
		GROUP BY type`, append([]any{userID}, args...)...)
	if err != nil {
		return core.FlowTotals{}, fmt.Errorf("flow totals: %w", err)
	}
	defer rows.Close()

	var out core.FlowTotals
	for rows.Next() {
		var (
			typ   string
			cents int64
		)
		if err := rows.Scan(&typ, &cents); err != nil {
			return core.FlowTotals{}, fmt.Errorf("scan flow total: %w", err)
		}
		switch core.Flow(typ) {
		case core.Income:
			out.Income = core.Money{Cents: cents}
		case core.Expense:
			out.Expense = core.Money{Cents: cents}
		}
	}
	if err := rows.Err(); err != nil {
		return core.FlowTotals{}, fmt.Errorf("iterate flow totals: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) ExpenseByCategory(ctx context.Context, userID string, dr core.DateRange) ([]core.CategoryAmount, error) {
	clause, args := rangeClause(dr)
	rows, err := r.db.QueryContext(ctx, `
		SELECT category, SUM(amount_cents) AS total
		FROM transactions
		WHERE user_id = ? AND type = 'expense'`+clause+`
		GROUP BY category
		ORDER BY total DESC, category`, append([]any{userID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("expense by category: %w", err)
	}
	defer rows.Close()

	out := make([]core.CategoryAmount, 0)
	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.Category, &ca.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		out = append(out, ca)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category totals: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) MonthlyTrend(ctx context.Context, userID string, dr core.DateRange) ([]core.TrendPoint, error) {
	clause, args := rangeClause(dr)
	rows, err := r.db.QueryContext(ctx, `
		SELECT CAST(substr(date, 1, 4) AS INTEGER) AS y,
		       CAST(substr(date, 6, 2) AS INTEGER) AS m,
		       COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents END), 0),
		       COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents END), 0)
		FROM transactions
		WHERE user_id = ?`+clause+`
		GROUP BY y, m
		ORDER BY y, m`, append([]any{userID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("monthly trend: %w", err)
	}
	defer rows.Close()

	out := make([]core.TrendPoint, 0)
	for rows.Next() {
		var p core.TrendPoint
		if err := rows.Scan(&p.Year, &p.Month, &p.Income.Cents, &p.Expense.Cents); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend: %w", err)
	}
	return out, nil
}

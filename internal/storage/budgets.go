package storage

import (
	"context"
	"fmt"

	"spendwise/internal/core"
	"spendwise/internal/ports"
)

const budgetColumns = `id, user_id, category, limit_cents, month, year, created_at, updated_at`

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (`+budgetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Category, b.Limit.Cents, b.Month, b.Year, unixNano(b.CreatedAt), unixNano(b.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ports.ErrConflict
		}
		return fmt.Errorf("create budget: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, userID, id string) (core.Budget, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = ? AND user_id = ?`, id, userID)
	b, err := scanBudget(row)
	if err != nil {
		return core.Budget{}, notFound(err, "get budget")
	}
	return b, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID string, month, year int) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+budgetColumns+` FROM budgets
		WHERE user_id = ? AND month = ? AND year = ?
		ORDER BY category`, userID, month, year)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	out := make([]core.Budget, 0)
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateBudget(ctx context.Context, b core.Budget) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE budgets SET category = ?, limit_cents = ?, month = ?, year = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		b.Category, b.Limit.Cents, b.Month, b.Year, unixNano(b.UpdatedAt), b.ID, b.UserID)
	if err != nil {
		if isUniqueViolation(err) {
			return ports.ErrConflict
		}
		return fmt.Errorf("update budget: %w", err)
	}
	return expectOne(res, "update budget")
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	return expectOne(res, "delete budget")
}

func scanBudget(s scanner) (core.Budget, error) {
	var (
		b                    core.Budget
		createdAt, updatedAt int64
	)
	if err := s.Scan(&b.ID, &b.UserID, &b.Category, &b.Limit.Cents, &b.Month, &b.Year, &createdAt, &updatedAt); err != nil {
		return core.Budget{}, err
	}
	b.CreatedAt = fromUnixNano(createdAt)
	b.UpdatedAt = fromUnixNano(updatedAt)
	return b, nil
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"spendwise/internal/core"
	"spendwise/internal/ports"
)

const transactionColumns = `id, user_id, amount_cents, type, category, date, description,
	payment_method, is_recurring, recurring_id, created_at, updated_at`

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) error {
	if err := insertTransaction(ctx, r.db, t); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTransaction(ctx context.Context, db execer, t core.Transaction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Amount.Cents, string(t.Type), t.Category, t.Date.String(), t.Description,
		string(t.PaymentMethod), t.IsRecurring, nullableString(t.RecurringID),
		unixNano(t.CreatedAt), unixNano(t.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, notFound(err, "get transaction")
	}
	return t, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, f ports.TransactionFilter) ([]core.Transaction, error) {
	var (
		q    strings.Builder
		args = []any{userID}
	)
	q.WriteString(`SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ?`)
	if f.Type != "" {
		q.WriteString(" AND type = ?")
		args = append(args, string(f.Type))
	}
	if f.Category != "" {
		q.WriteString(" AND category = ?")
		args = append(args, f.Category)
	}
	clause, rangeArgs := rangeClause(f.Range)
	q.WriteString(clause)
	args = append(args, rangeArgs...)
	q.WriteString(" ORDER BY date DESC, created_at DESC")

	rows, err := r.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET amount_cents = ?, type = ?, category = ?, date = ?, description = ?, payment_method = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		t.Amount.Cents, string(t.Type), t.Category, t.Date.String(), t.Description,
		string(t.PaymentMethod), unixNano(t.UpdatedAt), t.ID, t.UserID)
	if err != nil {
		if isUniqueViolation(err) {
			return ports.ErrConflict
		}
		return fmt.Errorf("update transaction: %w", err)
	}
	return expectOne(res, "update transaction")
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return expectOne(res, "delete transaction")
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                    core.Transaction
		typ, date, method    string
		recurringID          sql.NullString
		createdAt, updatedAt int64
	)
	err := s.Scan(&t.ID, &t.UserID, &t.Amount.Cents, &typ, &t.Category, &date, &t.Description,
		&method, &t.IsRecurring, &recurringID, &createdAt, &updatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.Flow(typ)
	t.PaymentMethod = core.PaymentMethod(method)
	if t.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	if recurringID.Valid {
		id := recurringID.String
		t.RecurringID = &id
	}
	t.CreatedAt = fromUnixNano(createdAt)
	t.UpdatedAt = fromUnixNano(updatedAt)
	return t, nil
}

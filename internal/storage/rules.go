package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"spendwise/internal/core"
	"spendwise/internal/ports"
)

const ruleColumns = `id, user_id, title, amount_cents, type, category, payment_method, frequency,
	interval_n, start_date, end_date, last_executed_at, status, created_at, updated_at`

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.RecurringRule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.UserID, rule.Title, rule.Amount.Cents, string(rule.Type), rule.Category,
		string(rule.PaymentMethod), string(rule.Frequency), rule.Interval, rule.StartDate.String(),
		nullableDate(rule.EndDate), nullableDate(rule.LastExecutedAt), string(rule.Status),
		unixNano(rule.CreatedAt), unixNano(rule.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create recurring rule: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetRule(ctx context.Context, userID, id string) (core.RecurringRule, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM recurring_rules WHERE id = ? AND user_id = ?`, id, userID)
	rule, err := scanRule(row)
	if err != nil {
		return core.RecurringRule{}, notFound(err, "get recurring rule")
	}
	return rule, nil
}

func (r *SQLiteRepository) ListRules(ctx context.Context, userID string, f ports.RuleFilter) ([]core.RecurringRule, error) {
	q := `SELECT ` + ruleColumns + ` FROM recurring_rules WHERE user_id = ?`
	args := []any{userID}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	q += ` ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list recurring rules: %w", err)
	}
	defer rows.Close()

	out := make([]core.RecurringRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring rule: %w", err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recurring rules: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	// SET expressions see the row before the update, so the marker check uses
	// whatever the engine last committed.
	row := r.db.QueryRowContext(ctx, `
		UPDATE recurring_rules
		SET title = ?, amount_cents = ?, type = ?, category = ?, payment_method = ?, frequency = ?,
		    interval_n = ?, start_date = ?, end_date = ?, status = ?, updated_at = ?,
		    last_executed_at = CASE WHEN last_executed_at < ? THEN NULL ELSE last_executed_at END
		WHERE id = ? AND user_id = ?
		RETURNING `+ruleColumns,
		rule.Title, rule.Amount.Cents, string(rule.Type), rule.Category, string(rule.PaymentMethod),
		string(rule.Frequency), rule.Interval, rule.StartDate.String(), nullableDate(rule.EndDate),
		string(rule.Status), unixNano(rule.UpdatedAt), rule.StartDate.String(),
		rule.ID, rule.UserID)
	stored, err := scanRule(row)
	if err != nil {
		return core.RecurringRule{}, notFound(err, "update recurring rule")
	}
	return stored, nil
}

func (r *SQLiteRepository) DeleteRule(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recurring_rules WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete recurring rule: %w", err)
	}
	return expectOne(res, "delete recurring rule")
}

func (r *SQLiteRepository) ListRuleOwners(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM recurring_rules WHERE status = ? ORDER BY user_id`, string(core.RuleActive))
	if err != nil {
		return nil, fmt.Errorf("list rule owners: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan rule owner: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MaterializeOccurrence runs the marker compare-and-set and the ledger insert
// in one transaction. The unique index on (recurring_id, date) backs up the
// compare-and-set when two writers hold the same stale marker.
func (r *SQLiteRepository) MaterializeOccurrence(ctx context.Context, ruleID string, prev *core.Date, entry core.Transaction) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin occurrence: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.ErrorContext(ctx, "Rollback failed", "rule_id", ruleID, "error", rbErr)
			}
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE recurring_rules SET last_executed_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND last_executed_at IS ?`,
		entry.Date.String(), unixNano(entry.CreatedAt), ruleID, entry.UserID, nullableDate(prev))
	if err != nil {
		return fmt.Errorf("advance rule marker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance rule marker: rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM recurring_rules WHERE id = ? AND user_id = ?`, ruleID, entry.UserID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check rule: %w", err)
		}
		if exists == 0 {
			return ports.ErrNotFound
		}
		return ports.ErrOccurrenceConflict
	}

	if err = insertTransaction(ctx, tx, entry); err != nil {
		if isUniqueViolation(err) {
			return ports.ErrOccurrenceConflict
		}
		return fmt.Errorf("insert occurrence: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit occurrence: %w", err)
	}
	return nil
}

func scanRule(s scanner) (core.RecurringRule, error) {
	var (
		rule                          core.RecurringRule
		typ, method, freq, start, sts string
		end, last                     sql.NullString
		createdAt, updatedAt          int64
	)
	err := s.Scan(&rule.ID, &rule.UserID, &rule.Title, &rule.Amount.Cents, &typ, &rule.Category, &method,
		&freq, &rule.Interval, &start, &end, &last, &sts, &createdAt, &updatedAt)
	if err != nil {
		return core.RecurringRule{}, err
	}
	rule.Type = core.Flow(typ)
	rule.PaymentMethod = core.PaymentMethod(method)
	rule.Frequency = core.Frequency(freq)
	rule.Status = core.RuleStatus(sts)
	if rule.StartDate, err = core.ParseDate(start); err != nil {
		return core.RecurringRule{}, fmt.Errorf("parse stored start date %q: %w", start, err)
	}
	if rule.EndDate, err = parseNullDate(end); err != nil {
		return core.RecurringRule{}, err
	}
	if rule.LastExecutedAt, err = parseNullDate(last); err != nil {
		return core.RecurringRule{}, err
	}
	rule.CreatedAt = fromUnixNano(createdAt)
	rule.UpdatedAt = fromUnixNano(updatedAt)
	return rule, nil
}

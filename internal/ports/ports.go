// Package ports declares the outbound interfaces services depend on. Every
// storage backend implements the same set so services stay backend-agnostic.
package ports

import (
	"context"
	"errors"
	"time"

	"spendwise/internal/core"
)

var (
	// ErrNotFound is returned when an owner-scoped lookup matches nothing.
	// Records owned by another user are indistinguishable from missing ones.
	ErrNotFound = errors.New("not found")

	// ErrConflict reports a uniqueness violation (duplicate email, duplicate
	// budget tuple).
	ErrConflict = errors.New("conflict")

	// ErrOccurrenceConflict means another run already materialized the
	// occurrence or advanced the rule's marker first.
	ErrOccurrenceConflict = errors.New("occurrence already materialized")
)

type (
	// TransactionFilter narrows a ledger listing. Zero fields do not filter.
	TransactionFilter struct {
		Type     core.Flow
		Category string
		Range    core.DateRange
	}

	// RuleFilter narrows a rule listing. An empty Status lists every rule.
	RuleFilter struct {
		Status core.RuleStatus
	}
)

// Ports for outbound adapters.
type (
	UserStore interface {
		CreateUser(ctx context.Context, u core.User) error
		GetUser(ctx context.Context, id string) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		UpdateUser(ctx context.Context, u core.User) error
	}

	LedgerStore interface {
		CreateTransaction(ctx context.Context, t core.Transaction) error
		GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
		// ListTransactions returns entries sorted by date, then creation time, newest first.
		ListTransactions(ctx context.Context, userID string, f TransactionFilter) ([]core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) error
		DeleteTransaction(ctx context.Context, userID, id string) error
	}

	RuleStore interface {
		CreateRule(ctx context.Context, r core.RecurringRule) error
		GetRule(ctx context.Context, userID, id string) (core.RecurringRule, error)
		// ListRules returns rules newest first.
		ListRules(ctx context.Context, userID string, f RuleFilter) ([]core.RecurringRule, error)
		// UpdateRule writes the user-editable fields of r and returns the stored
		// rule. It never sets lastExecutedAt; it only clears a stored marker
		// that precedes r.StartDate, judged against the row at write time.
		UpdateRule(ctx context.Context, r core.RecurringRule) (core.RecurringRule, error)
		DeleteRule(ctx context.Context, userID, id string) error

		// ListRuleOwners returns the ids of users holding at least one active rule.
		ListRuleOwners(ctx context.Context) ([]string, error)

		// MaterializeOccurrence appends entry to the ledger and moves the rule's
		// lastExecutedAt from prev to entry.Date as one atomic step. It fails
		// with ErrOccurrenceConflict when the marker no longer equals prev or
		// an entry for the same rule and date already exists; in that case
		// nothing is written.
		MaterializeOccurrence(ctx context.Context, ruleID string, prev *core.Date, entry core.Transaction) error
	}

	BudgetStore interface {
		CreateBudget(ctx context.Context, b core.Budget) error
		GetBudget(ctx context.Context, userID, id string) (core.Budget, error)
		ListBudgets(ctx context.Context, userID string, month, year int) ([]core.Budget, error)
		UpdateBudget(ctx context.Context, b core.Budget) error
		DeleteBudget(ctx context.Context, userID, id string) error
	}

	// AnalyticsReader provides aggregated ledger data. All methods honor the
	// inclusive-start, inclusive-end-of-day semantics of core.DateRange.
	AnalyticsReader interface {
		FlowTotals(ctx context.Context, userID string, r core.DateRange) (core.FlowTotals, error)
		// ExpenseByCategory returns expense totals per category, largest first.
		// Percentage is left zero.
		ExpenseByCategory(ctx context.Context, userID string, r core.DateRange) ([]core.CategoryAmount, error)
		// MonthlyTrend returns one point per (year, month) that has entries, ascending.
		MonthlyTrend(ctx context.Context, userID string, r core.DateRange) ([]core.TrendPoint, error)
	}

	// Store is everything a full backend provides.
	Store interface {
		UserStore
		LedgerStore
		RuleStore
		BudgetStore
		AnalyticsReader
		Close() error
	}
)

// EventType names a ledger event on the message bus.
type EventType string

const (
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionUpdated EventType = "transaction.updated"
	EventTransactionDeleted EventType = "transaction.deleted"
	EventRecurringExecuted  EventType = "recurring.executed"
)

// Event is a notification about a ledger change.
type Event struct {
	Type          EventType  `json:"type"`
	UserID        string     `json:"userId"`
	TransactionID string     `json:"transactionId"`
	RuleID        string     `json:"ruleId,omitempty"`
	Amount        core.Money `json:"amount"`
	Flow          core.Flow  `json:"flow"`
	Date          core.Date  `json:"date"`
	OccurredAt    time.Time  `json:"occurredAt"`
}

// EventPublisher delivers ledger events. Publishing is best effort; callers
// log failures and carry on.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// EventFromTransaction builds an event of type typ describing t.
func EventFromTransaction(typ EventType, t core.Transaction, at time.Time) Event {
	ev := Event{
		Type:          typ,
		UserID:        t.UserID,
		TransactionID: t.ID,
		Amount:        t.Amount,
		Flow:          t.Type,
		Date:          t.Date,
		OccurredAt:    at,
	}
	if t.RecurringID != nil {
		ev.RuleID = *t.RecurringID
	}
	return ev
}

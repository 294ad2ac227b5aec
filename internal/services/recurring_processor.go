package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"spendwise/internal/core"
	"spendwise/internal/log"
	"spendwise/internal/ports"
)

// Outcome is what happened to one rule during a run.
type Outcome string

const (
	OutcomeDue          Outcome = "due"
	OutcomeCreated      Outcome = "created"
	SkipPaused          Outcome = "paused"
	SkipNotStarted      Outcome = "not_started"
	SkipWindowClosed    Outcome = "window_closed"
	SkipNotDue          Outcome = "not_due"
	SkipAlreadyExecuted Outcome = "already_executed"
	SkipRuleGone        Outcome = "rule_gone"
	OutcomeFailed       Outcome = "failed"
)

const defaultSweepWorkers = 4

// IsSkip reports whether o leaves the rule untouched without being an error.
func (o Outcome) IsSkip() bool {
	switch o {
	case SkipPaused, SkipNotStarted, SkipWindowClosed, SkipNotDue, SkipAlreadyExecuted, SkipRuleGone:
		return true
	}
	return false
}

// Evaluation is the due check of one rule against a day.
type Evaluation struct {
	Outcome Outcome    `json:"outcome"`
	LastRun core.Date  `json:"lastRun"`
	NextRun *core.Date `json:"nextRun"`
}

// RuleOutcome is one line of a run report.
type RuleOutcome struct {
	RuleID        string     `json:"ruleId"`
	Title         string     `json:"title"`
	Outcome       Outcome    `json:"outcome"`
	NextRun       *core.Date `json:"nextRun,omitempty"`
	TransactionID string     `json:"transactionId,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// RunReport summarizes one RunFor invocation.
type RunReport struct {
	UserID   string        `json:"userId"`
	AsOf     core.Date     `json:"asOf"`
	Checked  int           `json:"checked"`
	Created  int           `json:"created"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Outcomes []RuleOutcome `json:"outcomes"`
	// Err is set when the rule listing itself failed and nothing was checked.
	Err error `json:"-"`
}

// SweepReport aggregates RunFor over many users.
type SweepReport struct {
	AsOf    core.Date `json:"asOf"`
	Users   int       `json:"users"`
	Checked int       `json:"checked"`
	Created int       `json:"created"`
	Skipped int       `json:"skipped"`
	Failed  int       `json:"failed"`
}

// Invalidator drops cached reads derived from a user's ledger.
type Invalidator interface {
	Invalidate(userID string)
}

// RecurringProcessor materializes due occurrences of recurring rules.
//
// Each active rule produces at most one ledger entry per invocation, dated the
// invocation day. Missed periods are not backfilled: a rule that is several
// periods behind catches up one entry per run.
type RecurringProcessor struct {
	rules       ports.RuleStore
	events      ports.EventPublisher
	invalidator Invalidator
	logger      *log.Logger
	clock       core.Clock
	newID       func() string
	workers     int
	group       singleflight.Group
}

type ProcessorOption func(*RecurringProcessor)

func WithProcessorLogger(l *log.Logger) ProcessorOption {
	return func(p *RecurringProcessor) { p.logger = l.WithComponent(log.ComponentRecurring) }
}

func WithProcessorClock(c core.Clock) ProcessorOption {
	return func(p *RecurringProcessor) { p.clock = c }
}

func WithInvalidator(inv Invalidator) ProcessorOption {
	return func(p *RecurringProcessor) { p.invalidator = inv }
}

func WithIDGenerator(f func() string) ProcessorOption {
	return func(p *RecurringProcessor) { p.newID = f }
}

// WithSweepWorkers bounds how many users SweepAll processes at once.
func WithSweepWorkers(n int) ProcessorOption {
	return func(p *RecurringProcessor) {
		if n > 0 {
			p.workers = n
		}
	}
}

func NewRecurringProcessor(rules ports.RuleStore, events ports.EventPublisher, opts ...ProcessorOption) *RecurringProcessor {
	p := &RecurringProcessor{
		rules:   rules,
		events:  events,
		logger:  log.Discard().WithComponent(log.ComponentRecurring),
		clock:   core.SystemClock{},
		newID:   uuid.NewString,
		workers: defaultSweepWorkers,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.events == nil {
		p.events = ports.NopPublisher{}
	}
	return p
}

// Evaluate decides whether rule is due on asOf. It never touches the store.
func Evaluate(rule core.RecurringRule, asOf core.Date) (Evaluation, error) {
	lastRun := rule.StartDate
	if rule.LastExecutedAt != nil {
		lastRun = *rule.LastExecutedAt
	}
	next, err := NextRun(lastRun, rule.Frequency, rule.Interval)
	if err != nil {
		return Evaluation{Outcome: OutcomeFailed, LastRun: lastRun}, err
	}
	ev := Evaluation{LastRun: lastRun, NextRun: &next}

	switch {
	case rule.Status == core.RulePaused:
		ev.Outcome = SkipPaused
	case asOf.Before(rule.StartDate):
		ev.Outcome = SkipNotStarted
	case rule.EndDate != nil && asOf.After(*rule.EndDate):
		ev.Outcome = SkipWindowClosed
		ev.NextRun = nil
	case asOf.Before(next):
		ev.Outcome = SkipNotDue
	default:
		ev.Outcome = OutcomeDue
	}
	return ev, nil
}

// RunFor processes every active rule of userID as of the day of asOf.
//
// Failures are isolated per rule and reported, never returned: the caller
// (typically login) must not fail because of recurrence processing.
// Concurrent calls for the same user and day in this process share one run,
// which is detached from the first caller's cancellation so that the other
// callers still get a full report.
func (p *RecurringProcessor) RunFor(ctx context.Context, userID string, asOf time.Time) RunReport {
	day := core.DateOf(asOf)
	key := userID + "|" + day.String()
	shared := context.WithoutCancel(ctx)
	v, _, _ := p.group.Do(key, func() (any, error) {
		return p.runFor(shared, userID, day), nil
	})
	return v.(RunReport)
}

// RunToday is RunFor with the processor clock's current day.
func (p *RecurringProcessor) RunToday(ctx context.Context, userID string) RunReport {
	return p.RunFor(ctx, userID, p.clock.Now())
}

func (p *RecurringProcessor) runFor(ctx context.Context, userID string, asOf core.Date) RunReport {
	report := RunReport{UserID: userID, AsOf: asOf, Outcomes: make([]RuleOutcome, 0)}
	logger := p.logger.With(log.FieldUserID, userID, log.FieldAsOf, asOf.String())

	rules, err := p.rules.ListRules(ctx, userID, ports.RuleFilter{Status: core.RuleActive})
	if err != nil {
		report.Err = fmt.Errorf("list active rules: %w", err)
		logger.ErrorContext(ctx, "Failed to list recurring rules", log.FieldError, err)
		return report
	}

	for _, rule := range rules {
		report.Checked++
		out := p.processRule(ctx, rule, asOf)
		switch {
		case out.Outcome == OutcomeCreated:
			report.Created++
		case out.Outcome.IsSkip():
			report.Skipped++
		default:
			report.Failed++
			logger.ErrorContext(ctx, "Recurring rule failed",
				log.FieldRuleID, rule.ID,
				log.FieldError, out.Error)
		}
		report.Outcomes = append(report.Outcomes, out)
	}

	if report.Created > 0 && p.invalidator != nil {
		p.invalidator.Invalidate(userID)
	}

	logger.InfoContext(ctx, "Recurring run complete",
		log.FieldChecked, report.Checked,
		log.FieldCreated, report.Created,
		log.FieldSkipped, report.Skipped,
		log.FieldFailed, report.Failed)
	return report
}

func (p *RecurringProcessor) processRule(ctx context.Context, rule core.RecurringRule, asOf core.Date) RuleOutcome {
	out := RuleOutcome{RuleID: rule.ID, Title: rule.Title}
	if err := ctx.Err(); err != nil {
		out.Outcome, out.Error = OutcomeFailed, err.Error()
		return out
	}

	ev, err := Evaluate(rule, asOf)
	out.Outcome, out.NextRun = ev.Outcome, ev.NextRun
	if err != nil {
		out.Error = err.Error()
		return out
	}
	if ev.Outcome != OutcomeDue {
		p.logger.DebugContext(ctx, "Recurring rule skipped",
			log.FieldRuleID, rule.ID,
			log.FieldOutcome, string(ev.Outcome))
		return out
	}

	now := p.clock.Now().UTC()
	ruleID := rule.ID
	entry := core.Transaction{
		ID:            p.newID(),
		UserID:        rule.UserID,
		Amount:        rule.Amount,
		Type:          rule.Type,
		Category:      rule.Category,
		Date:          asOf,
		Description:   rule.Title,
		PaymentMethod: rule.PaymentMethod.OrDefault(),
		IsRecurring:   true,
		RecurringID:   &ruleID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = p.rules.MaterializeOccurrence(ctx, rule.ID, rule.LastExecutedAt, entry)
	switch {
	case err == nil:
	case errors.Is(err, ports.ErrOccurrenceConflict):
		out.Outcome = SkipAlreadyExecuted
		return out
	case errors.Is(err, ports.ErrNotFound):
		out.Outcome = SkipRuleGone
		return out
	default:
		out.Outcome, out.Error = OutcomeFailed, err.Error()
		return out
	}

	out.Outcome = OutcomeCreated
	out.TransactionID = entry.ID
	if next, err := NextRun(asOf, rule.Frequency, rule.Interval); err == nil {
		out.NextRun = &next
	}

	p.logger.InfoContext(ctx, "Created transaction from recurring rule",
		log.FieldRuleID, rule.ID,
		log.FieldTxID, entry.ID,
		log.FieldAmountCents, entry.Amount.Cents,
		log.FieldFlow, string(entry.Type),
		log.FieldCategory, entry.Category)

	if err := p.events.Publish(ctx, ports.EventFromTransaction(ports.EventRecurringExecuted, entry, now)); err != nil {
		p.logger.WarnContext(ctx, "Failed to publish recurring event",
			log.FieldRuleID, rule.ID, log.FieldError, err)
	}
	return out
}

// SweepAll runs RunFor for every user with an active rule, a bounded number
// of users at a time. The at-most-one-entry-per-rule guarantee is the same as
// for a single RunFor.
func (p *RecurringProcessor) SweepAll(ctx context.Context, asOf time.Time) (SweepReport, error) {
	day := core.DateOf(asOf)
	report := SweepReport{AsOf: day}

	owners, err := p.rules.ListRuleOwners(ctx)
	if err != nil {
		return report, fmt.Errorf("list rule owners: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, userID := range owners {
		g.Go(func() error {
			// Runs are detached from cancellation; stop starting new ones.
			if gctx.Err() != nil {
				return nil
			}
			r := p.RunFor(gctx, userID, asOf)
			mu.Lock()
			defer mu.Unlock()
			report.Users++
			report.Checked += r.Checked
			report.Created += r.Created
			report.Skipped += r.Skipped
			report.Failed += r.Failed
			if r.Err != nil {
				report.Failed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	p.logger.InfoContext(ctx, "Recurring sweep complete",
		log.FieldAsOf, day.String(),
		"users", report.Users,
		log.FieldChecked, report.Checked,
		log.FieldCreated, report.Created,
		log.FieldSkipped, report.Skipped,
		log.FieldFailed, report.Failed)
	return report, nil
}

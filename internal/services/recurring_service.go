package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"spendwise/internal/core"
	"spendwise/internal/log"
	"spendwise/internal/ports"
)

// RuleInput is the body of a rule create request.
type RuleInput struct {
	Title         string             `json:"title"`
	Amount        *core.Money        `json:"amount"`
	Type          core.Flow          `json:"type"`
	Category      string             `json:"category"`
	PaymentMethod core.PaymentMethod `json:"paymentMethod"`
	Frequency     core.Frequency     `json:"frequency"`
	Interval      *int               `json:"interval"`
	StartDate     *core.Date         `json:"startDate"`
	EndDate       *core.Date         `json:"endDate"`
}

// OptionalDate tells an absent JSON field apart from an explicit null.
type OptionalDate struct {
	Set   bool
	Value *core.Date
}

func (o *OptionalDate) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(b, []byte("null")) {
		o.Value = nil
		return nil
	}
	var d core.Date
	if err := json.Unmarshal(b, &d); err != nil {
		return err
	}
	o.Value = &d
	return nil
}

// RulePatch is a partial rule update. LastExecutedAt is not patchable:
// only the processor moves it.
type RulePatch struct {
	Title         *string             `json:"title"`
	Amount        *core.Money         `json:"amount"`
	Type          *core.Flow          `json:"type"`
	Category      *string             `json:"category"`
	PaymentMethod *core.PaymentMethod `json:"paymentMethod"`
	Frequency     *core.Frequency     `json:"frequency"`
	Interval      *int                `json:"interval"`
	StartDate     *core.Date          `json:"startDate"`
	EndDate       OptionalDate        `json:"endDate"`
	Status        *core.RuleStatus    `json:"status"`
}

// RecurringService manages recurring rules on behalf of their owner.
type RecurringService struct {
	rules  ports.RuleStore
	clock  core.Clock
	logger *log.Logger
	newID  func() string
}

func NewRecurringService(rules ports.RuleStore, clock core.Clock, logger *log.Logger) *RecurringService {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &RecurringService{
		rules:  rules,
		clock:  clock,
		logger: logger.WithComponent(log.ComponentRecurring),
		newID:  uuid.NewString,
	}
}

func (s *RecurringService) Create(ctx context.Context, userID string, in RuleInput) (core.RecurringRule, error) {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return core.RecurringRule{}, core.Invalid("title", core.ErrMissingRequiredField)
	case in.Amount == nil:
		return core.RecurringRule{}, core.Invalid("amount", core.ErrMissingRequiredField)
	case in.Type == "":
		return core.RecurringRule{}, core.Invalid("type", core.ErrMissingRequiredField)
	case strings.TrimSpace(in.Category) == "":
		return core.RecurringRule{}, core.Invalid("category", core.ErrMissingRequiredField)
	case in.Frequency == "":
		return core.RecurringRule{}, core.Invalid("frequency", core.ErrMissingRequiredField)
	case in.StartDate == nil || in.StartDate.IsEmpty():
		return core.RecurringRule{}, core.Invalid("startDate", core.ErrMissingRequiredField)
	}

	interval := 1
	if in.Interval != nil {
		interval = *in.Interval
	}
	now := s.clock.Now().UTC()
	r := core.RecurringRule{
		ID:            s.newID(),
		UserID:        userID,
		Title:         strings.TrimSpace(in.Title),
		Amount:        *in.Amount,
		Type:          in.Type,
		Category:      strings.TrimSpace(in.Category),
		PaymentMethod: in.PaymentMethod.OrDefault(),
		Frequency:     in.Frequency,
		Interval:      interval,
		StartDate:     *in.StartDate,
		EndDate:       in.EndDate,
		Status:        core.RuleActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.Validate(); err != nil {
		return core.RecurringRule{}, err
	}
	if err := s.rules.CreateRule(ctx, r); err != nil {
		return core.RecurringRule{}, fmt.Errorf("save recurring rule: %w", err)
	}
	s.logger.InfoContext(ctx, "Recurring rule created",
		log.FieldUserID, userID,
		log.FieldRuleID, r.ID,
		"frequency", string(r.Frequency),
		"interval", r.Interval)
	return r, nil
}

func (s *RecurringService) List(ctx context.Context, userID string) ([]core.RecurringRule, error) {
	rules, err := s.rules.ListRules(ctx, userID, ports.RuleFilter{})
	if err != nil {
		return nil, fmt.Errorf("list recurring rules: %w", err)
	}
	return rules, nil
}

func (s *RecurringService) Get(ctx context.Context, userID, id string) (core.RecurringRule, error) {
	return s.rules.GetRule(ctx, userID, id)
}

// Update applies patch to a rule. Moving startDate past the last execution
// clears the marker in the store so that lastExecutedAt never precedes
// startDate; the next run then counts from the new start. Moving it backward
// never fires the skipped occurrences, because the marker still governs.
func (s *RecurringService) Update(ctx context.Context, userID, id string, patch RulePatch) (core.RecurringRule, error) {
	r, err := s.rules.GetRule(ctx, userID, id)
	if err != nil {
		return core.RecurringRule{}, err
	}
	if patch.Title != nil {
		r.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Amount != nil {
		r.Amount = *patch.Amount
	}
	if patch.Type != nil {
		r.Type = *patch.Type
	}
	if patch.Category != nil {
		r.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.PaymentMethod != nil {
		r.PaymentMethod = patch.PaymentMethod.OrDefault()
	}
	if patch.Frequency != nil {
		r.Frequency = *patch.Frequency
	}
	if patch.Interval != nil {
		r.Interval = *patch.Interval
	}
	if patch.StartDate != nil {
		r.StartDate = *patch.StartDate
	}
	if patch.EndDate.Set {
		r.EndDate = patch.EndDate.Value
	}
	if patch.Status != nil {
		r.Status = *patch.Status
	}
	if err := r.Validate(); err != nil {
		return core.RecurringRule{}, err
	}
	r.UpdatedAt = s.clock.Now().UTC()

	return s.rules.UpdateRule(ctx, r)
}

// SetStatus pauses or resumes a rule without touching any date.
func (s *RecurringService) SetStatus(ctx context.Context, userID, id string, status core.RuleStatus) (core.RecurringRule, error) {
	if err := status.Validate(); err != nil {
		return core.RecurringRule{}, core.Invalid("status", err)
	}
	r, err := s.rules.GetRule(ctx, userID, id)
	if err != nil {
		return core.RecurringRule{}, err
	}
	r.Status = status
	r.UpdatedAt = s.clock.Now().UTC()
	r, err = s.rules.UpdateRule(ctx, r)
	if err != nil {
		return core.RecurringRule{}, err
	}
	s.logger.InfoContext(ctx, "Recurring rule status changed",
		log.FieldUserID, userID,
		log.FieldRuleID, id,
		"status", string(status))
	return r, nil
}

func (s *RecurringService) Delete(ctx context.Context, userID, id string) error {
	return s.rules.DeleteRule(ctx, userID, id)
}

// PreviewNext evaluates a rule against today without executing it.
func (s *RecurringService) PreviewNext(ctx context.Context, userID, id string) (Evaluation, error) {
	r, err := s.rules.GetRule(ctx, userID, id)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluate(r, core.Today(s.clock))
}

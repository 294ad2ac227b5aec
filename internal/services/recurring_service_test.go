package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/core"
	"spendwise/internal/ports"
	"spendwise/internal/storage/memory"
)

func intPtr(n int) *int { return &n }

func newRecurringSvc(t *testing.T, today core.Date) (*RecurringService, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewRecurringService(store, core.FixedClock{T: today.Time}, nil), store
}

func TestRecurringCreateDefaults(t *testing.T) {
	svc, _ := newRecurringSvc(t, core.NewDate(2024, 1, 1))
	start := core.NewDate(2024, 1, 15)
	r, err := svc.Create(context.Background(), "u1", RuleInput{
		Title:     "Rent",
		Amount:    money(100000),
		Type:      core.Expense,
		Category:  "Housing",
		Frequency: core.Monthly,
		StartDate: &start,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Interval)
	assert.Equal(t, core.RuleActive, r.Status)
	assert.Equal(t, core.PaymentOther, r.PaymentMethod)
	assert.Nil(t, r.LastExecutedAt)
}

func TestRecurringCreateValidation(t *testing.T) {
	svc, _ := newRecurringSvc(t, core.NewDate(2024, 1, 1))
	start := core.NewDate(2024, 1, 15)
	early := core.NewDate(2024, 1, 1)
	base := func() RuleInput {
		return RuleInput{Title: "Rent", Amount: money(1), Type: core.Expense, Category: "Housing", Frequency: core.Monthly, StartDate: &start}
	}
	tests := []struct {
		name   string
		mutate func(*RuleInput)
		field  string
	}{
		{"missing title", func(in *RuleInput) { in.Title = "" }, "title"},
		{"bad frequency", func(in *RuleInput) { in.Frequency = "hourly" }, "frequency"},
		{"zero interval", func(in *RuleInput) { in.Interval = intPtr(0) }, "interval"},
		{"end before start", func(in *RuleInput) { in.EndDate = &early }, "endDate"},
		{"missing start", func(in *RuleInput) { in.StartDate = nil }, "startDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base()
			tt.mutate(&in)
			_, err := svc.Create(context.Background(), "u1", in)
			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRecurringUpdateClearsMarkerWhenStartMovesPastIt(t *testing.T) {
	ctx := context.Background()
	svc, store := newRecurringSvc(t, core.NewDate(2024, 3, 1))
	r := newRule("r1", "u1", core.Monthly, core.NewDate(2024, 1, 15))
	r.LastExecutedAt = datePtr(core.NewDate(2024, 2, 15))
	require.NoError(t, store.CreateRule(ctx, r))

	earlier := core.NewDate(2024, 1, 1)
	got, err := svc.Update(ctx, "u1", "r1", RulePatch{StartDate: &earlier})
	require.NoError(t, err)
	require.NotNil(t, got.LastExecutedAt, "moving start backward keeps the marker")

	later := core.NewDate(2024, 4, 1)
	got, err = svc.Update(ctx, "u1", "r1", RulePatch{StartDate: &later})
	require.NoError(t, err)
	assert.Nil(t, got.LastExecutedAt)
}

func TestRecurringUpdateEndDateClearing(t *testing.T) {
	ctx := context.Background()
	svc, store := newRecurringSvc(t, core.NewDate(2024, 3, 1))
	r := newRule("r1", "u1", core.Monthly, core.NewDate(2024, 1, 15))
	r.EndDate = datePtr(core.NewDate(2024, 12, 31))
	require.NoError(t, store.CreateRule(ctx, r))

	var keep RulePatch
	require.NoError(t, json.Unmarshal([]byte(`{"title":"Flat"}`), &keep))
	got, err := svc.Update(ctx, "u1", "r1", keep)
	require.NoError(t, err)
	assert.Equal(t, "Flat", got.Title)
	require.NotNil(t, got.EndDate)

	var clear RulePatch
	require.NoError(t, json.Unmarshal([]byte(`{"endDate":null}`), &clear))
	got, err = svc.Update(ctx, "u1", "r1", clear)
	require.NoError(t, err)
	assert.Nil(t, got.EndDate)
}

func TestRecurringSetStatus(t *testing.T) {
	ctx := context.Background()
	svc, store := newRecurringSvc(t, core.NewDate(2024, 3, 1))
	r := newRule("r1", "u1", core.Monthly, core.NewDate(2024, 1, 15))
	r.LastExecutedAt = datePtr(core.NewDate(2024, 2, 15))
	require.NoError(t, store.CreateRule(ctx, r))

	got, err := svc.SetStatus(ctx, "u1", "r1", core.RulePaused)
	require.NoError(t, err)
	assert.Equal(t, core.RulePaused, got.Status)
	assert.Equal(t, "2024-02-15", got.LastExecutedAt.String())

	_, err = svc.SetStatus(ctx, "u1", "r1", "archived")
	assert.True(t, core.IsValidation(err))

	_, err = svc.SetStatus(ctx, "u2", "r1", core.RuleActive)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRecurringPreviewNext(t *testing.T) {
	ctx := context.Background()
	svc, store := newRecurringSvc(t, core.NewDate(2024, 2, 1))
	require.NoError(t, store.CreateRule(ctx, newRule("r1", "u1", core.Monthly, core.NewDate(2024, 1, 31))))

	ev, err := svc.PreviewNext(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, SkipNotDue, ev.Outcome)
	assert.Equal(t, "2024-02-29", ev.NextRun.String())

	require.NoError(t, svc.Delete(ctx, "u1", "r1"))
	_, err = svc.PreviewNext(ctx, "u1", "r1")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

// interleavingStore runs onRead once, right after a rule has been read, to
// let another writer commit between a service's read and its write.
type interleavingStore struct {
	*memory.Store
	onRead func()
}

func (s *interleavingStore) GetRule(ctx context.Context, userID, id string) (core.RecurringRule, error) {
	r, err := s.Store.GetRule(ctx, userID, id)
	if s.onRead != nil {
		hook := s.onRead
		s.onRead = nil
		hook()
	}
	return r, err
}

func TestRecurringUpdateKeepsMarkerAdvancedDuringEdit(t *testing.T) {
	ctx := context.Background()
	store := &interleavingStore{Store: memory.New()}
	require.NoError(t, store.CreateRule(ctx, newRule("r1", "u1", core.Monthly, core.NewDate(2024, 1, 15))))

	proc := NewRecurringProcessor(store, nil)
	svc := NewRecurringService(store, core.FixedClock{T: at(2024, 3, 20)}, nil)

	store.onRead = func() {
		report := proc.RunFor(ctx, "u1", at(2024, 3, 20))
		require.Equal(t, 1, report.Created)
	}
	title := "Flat rent"
	got, err := svc.Update(ctx, "u1", "r1", RulePatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Flat rent", got.Title)
	require.NotNil(t, got.LastExecutedAt)
	assert.Equal(t, "2024-03-20", got.LastExecutedAt.String())

	report := proc.RunFor(ctx, "u1", at(2024, 3, 21))
	assert.Equal(t, 0, report.Created)
	assert.Len(t, recurringEntries(t, store.Store, "u1"), 1)
}

func TestRecurringSetStatusKeepsMarkerAdvancedDuringEdit(t *testing.T) {
	ctx := context.Background()
	store := &interleavingStore{Store: memory.New()}
	require.NoError(t, store.CreateRule(ctx, newRule("r1", "u1", core.Monthly, core.NewDate(2024, 1, 15))))

	proc := NewRecurringProcessor(store, nil)
	svc := NewRecurringService(store, core.FixedClock{T: at(2024, 3, 20)}, nil)
	store.onRead = func() { proc.RunFor(ctx, "u1", at(2024, 3, 20)) }

	got, err := svc.SetStatus(ctx, "u1", "r1", core.RulePaused)
	require.NoError(t, err)
	require.NotNil(t, got.LastExecutedAt)
	assert.Equal(t, "2024-03-20", got.LastExecutedAt.String())
}

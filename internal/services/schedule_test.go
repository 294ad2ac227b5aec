package services

import (
	"errors"
	"testing"

	"spendwise/internal/core"
)

func TestNextRun(t *testing.T) {
	tests := []struct {
		name     string
		last     core.Date
		freq     core.Frequency
		interval int
		want     string
	}{
		{"daily", core.NewDate(2024, 1, 1), core.Daily, 1, "2024-01-02"},
		{"every 3 days", core.NewDate(2024, 1, 30), core.Daily, 3, "2024-02-02"},
		{"weekly", core.NewDate(2024, 1, 1), core.Weekly, 1, "2024-01-08"},
		{"biweekly", core.NewDate(2024, 1, 1), core.Weekly, 2, "2024-01-15"},
		{"monthly", core.NewDate(2024, 1, 15), core.Monthly, 1, "2024-02-15"},
		{"monthly clamps jan 31", core.NewDate(2024, 1, 31), core.Monthly, 1, "2024-02-29"},
		{"monthly clamps non-leap", core.NewDate(2023, 1, 31), core.Monthly, 1, "2023-02-28"},
		{"quarterly", core.NewDate(2024, 11, 30), core.Monthly, 3, "2025-02-28"},
		{"yearly", core.NewDate(2024, 3, 1), core.Yearly, 1, "2025-03-01"},
		{"yearly leap day", core.NewDate(2024, 2, 29), core.Yearly, 1, "2025-02-28"},
		{"zero interval is one", core.NewDate(2024, 1, 1), core.Daily, 0, "2024-01-02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRun(tt.last, tt.freq, tt.interval)
			if err != nil {
				t.Fatalf("NextRun() error = %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("NextRun() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNextRunUnknownFrequency(t *testing.T) {
	_, err := NextRun(core.NewDate(2024, 1, 1), "hourly", 1)
	if !errors.Is(err, core.ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
}

type fortnightStep struct{}

func (fortnightStep) Next(last core.Date, interval int) core.Date { return last.AddDays(14 * interval) }

func TestRegisterStepStrategy(t *testing.T) {
	const fortnightly core.Frequency = "fortnightly"
	RegisterStepStrategy(fortnightly, fortnightStep{})
	got, err := NextRun(core.NewDate(2024, 1, 1), fortnightly, 1)
	if err != nil || got.String() != "2024-01-15" {
		t.Fatalf("custom strategy: got %s err=%v", got, err)
	}
}

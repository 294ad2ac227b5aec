// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for recurring-rule scheduling.
// Each frequency (daily, weekly, monthly, yearly) has a step strategy that
// computes the next occurrence from the last one.
package services

import (
	"fmt"
	"sync"

	"spendwise/internal/core"
)

// StepStrategy advances a date by interval units of one frequency.
type StepStrategy interface {
	Next(last core.Date, interval int) core.Date
}

// DailyStep moves interval days forward.
type DailyStep struct{}

func (DailyStep) Next(last core.Date, interval int) core.Date { return last.AddDays(interval) }

// WeeklyStep moves 7*interval days forward.
type WeeklyStep struct{}

func (WeeklyStep) Next(last core.Date, interval int) core.Date { return last.AddDays(7 * interval) }

// MonthlyStep moves interval calendar months forward, clamping the day to the
// end of a shorter target month (Jan 31 -> Feb 28/29).
type MonthlyStep struct{}

func (MonthlyStep) Next(last core.Date, interval int) core.Date { return last.AddMonths(interval) }

// YearlyStep moves interval calendar years forward (Feb 29 -> Feb 28).
type YearlyStep struct{}

func (YearlyStep) Next(last core.Date, interval int) core.Date { return last.AddYears(interval) }

var (
	stepMu         sync.RWMutex
	stepStrategies = map[core.Frequency]StepStrategy{
		core.Daily:   DailyStep{},
		core.Weekly:  WeeklyStep{},
		core.Monthly: MonthlyStep{},
		core.Yearly:  YearlyStep{},
	}
)

// GetStepStrategy returns the strategy for freq.
func GetStepStrategy(freq core.Frequency) (StepStrategy, error) {
	stepMu.RLock()
	defer stepMu.RUnlock()
	s, ok := stepStrategies[freq]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidFrequency, freq)
	}
	return s, nil
}

// RegisterStepStrategy installs or replaces the strategy for freq.
func RegisterStepStrategy(freq core.Frequency, s StepStrategy) {
	stepMu.Lock()
	defer stepMu.Unlock()
	stepStrategies[freq] = s
}

// NextRun returns lastRun advanced by one step of interval units. An interval
// below 1 is treated as 1.
func NextRun(lastRun core.Date, freq core.Frequency, interval int) (core.Date, error) {
	s, err := GetStepStrategy(freq)
	if err != nil {
		return core.Date{}, err
	}
	if interval < 1 {
		interval = 1
	}
	return s.Next(lastRun, interval), nil
}

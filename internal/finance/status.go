// Package finance provides the expense views of a level: listing scoped to
// the selected level, payment status per period and the reference
// dictionaries needed to display them.
//
// Payment status is derived with one strategy per recurrence type.
package finance

import (
	"fmt"
	"time"

	"kincore/internal/api"
)

// Recurrence types reported by the API.
const (
	RecurrenceNone    = "none"
	RecurrenceMonthly = "monthly"
	RecurrenceWeekly  = "weekly"
)

// Period is the month a view is showing.
type Period struct {
	Year  int
	Month time.Month
}

func (p Period) Validate() error {
	if p.Year < 1 {
		return fmt.Errorf("invalid year %d", p.Year)
	}
	if p.Month < time.January || p.Month > time.December {
		return fmt.Errorf("invalid month %d", p.Month)
	}
	return nil
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && t.Month() == p.Month
}

// End returns the last day of the period.
func (p Period) End() time.Time {
	return time.Date(p.Year, p.Month+1, 0, 0, 0, 0, 0, time.UTC)
}

// Status is the paid state of an expense for a period.
type Status struct {
	Paid      bool   `json:"paid"`
	PaidDate  string `json:"paid_date,omitempty"`
	PaymentID int64  `json:"payment_id,omitempty"`
}

func paidBy(p api.Payment) Status {
	return Status{Paid: true, PaidDate: p.PaidDate.String(), PaymentID: p.ID}
}

// StatusChecker is the strategy interface for deciding whether an expense
// counts as paid in the viewed period.
type StatusChecker interface {
	Check(payments []api.Payment, period Period, now time.Time) Status
}

// OneTimeChecker treats any payment as settling the expense.
type OneTimeChecker struct{}

func (OneTimeChecker) Check(payments []api.Payment, _ Period, _ time.Time) Status {
	if len(payments) == 0 {
		return Status{}
	}
	return paidBy(payments[0])
}

// MonthlyChecker looks for a payment inside the viewed month.
type MonthlyChecker struct{}

func (MonthlyChecker) Check(payments []api.Payment, period Period, _ time.Time) Status {
	for _, p := range payments {
		if period.Contains(p.PaidDate.Time) {
			return paidBy(p)
		}
	}
	return Status{}
}

// WeeklyChecker looks for a payment inside the Monday to Sunday week
// containing now, whatever month is being viewed.
type WeeklyChecker struct{}

func (WeeklyChecker) Check(payments []api.Payment, _ Period, now time.Time) Status {
	start, end := WeekBounds(now)
	for _, p := range payments {
		d := p.PaidDate.Time
		if !d.Before(start) && !d.After(end) {
			return paidBy(p)
		}
	}
	return Status{}
}

// WeekBounds returns midnight of the Monday and of the Sunday of the week containing t.
func WeekBounds(t time.Time) (monday, sunday time.Time) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	monday = day.AddDate(0, 0, -offset)
	return monday, monday.AddDate(0, 0, 6)
}

// statusStrategies maps recurrence types to their checkers. An empty type
// is sent for expenses created before recurrence existed.
var statusStrategies = map[string]StatusChecker{
	"":                OneTimeChecker{},
	RecurrenceNone:    OneTimeChecker{},
	RecurrenceMonthly: MonthlyChecker{},
	RecurrenceWeekly:  WeeklyChecker{},
}

// GetStatusChecker returns the checker for a recurrence type.
func GetStatusChecker(recurrence string) (StatusChecker, error) {
	checker, ok := statusStrategies[recurrence]
	if !ok {
		return nil, fmt.Errorf("unknown recurrence type: %s", recurrence)
	}
	return checker, nil
}

// RegisterStatusChecker adds or replaces the checker for a recurrence type.
func RegisterStatusChecker(recurrence string, checker StatusChecker) {
	statusStrategies[recurrence] = checker
}

// PaymentStatus derives the status of e for period. Unknown recurrence types
// are reported as unpaid.
func PaymentStatus(e api.Expense, period Period, now time.Time) Status {
	checker, err := GetStatusChecker(e.RecurrenceType)
	if err != nil {
		return Status{}
	}
	return checker.Check(e.Payments, period, now)
}

package finance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kincore/internal/api"
	"kincore/internal/core"
)

func payment(id int64, y, m, d int) api.Payment {
	return api.Payment{ID: id, PaidDate: core.NewDate(y, m, d)}
}

func TestOneTimeChecker_Check(t *testing.T) {
	checker := OneTimeChecker{}
	period := Period{Year: 2024, Month: time.March}
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		payments []api.Payment
		want     Status
	}{
		{
			name: "no payments - unpaid",
			want: Status{},
		},
		{
			name:     "paid in another year - still paid",
			payments: []api.Payment{payment(7, 2021, 1, 5)},
			want:     Status{Paid: true, PaidDate: "2021-01-05", PaymentID: 7},
		},
		{
			name:     "first payment wins",
			payments: []api.Payment{payment(1, 2024, 2, 1), payment(2, 2024, 3, 1)},
			want:     Status{Paid: true, PaidDate: "2024-02-01", PaymentID: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checker.Check(tt.payments, period, now))
		})
	}
}

func TestMonthlyChecker_Check(t *testing.T) {
	checker := MonthlyChecker{}
	period := Period{Year: 2024, Month: time.March}
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		payments []api.Payment
		want     Status
	}{
		{
			name:     "paid in viewed month",
			payments: []api.Payment{payment(1, 2024, 2, 28), payment(2, 2024, 3, 31)},
			want:     Status{Paid: true, PaidDate: "2024-03-31", PaymentID: 2},
		},
		{
			name:     "same month of another year - unpaid",
			payments: []api.Payment{payment(1, 2023, 3, 10)},
			want:     Status{},
		},
		{
			name:     "only earlier months - unpaid",
			payments: []api.Payment{payment(1, 2024, 2, 10)},
			want:     Status{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checker.Check(tt.payments, period, now))
		})
	}
}

func TestWeeklyChecker_Check(t *testing.T) {
	checker := WeeklyChecker{}
	period := Period{Year: 2024, Month: time.January}

	tests := []struct {
		name     string
		now      time.Time
		payments []api.Payment
		want     bool
	}{
		{
			name:     "paid on monday of current week",
			now:      time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC), // Wednesday
			payments: []api.Payment{payment(1, 2024, 1, 15)},
			want:     true,
		},
		{
			name:     "paid on previous sunday - unpaid",
			now:      time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC),
			payments: []api.Payment{payment(1, 2024, 1, 14)},
			want:     false,
		},
		{
			name:     "sunday belongs to the week that started on monday",
			now:      time.Date(2024, 1, 21, 23, 0, 0, 0, time.UTC), // Sunday
			payments: []api.Payment{payment(1, 2024, 1, 15)},
			want:     true,
		},
		{
			name:     "sunday does not see next monday",
			now:      time.Date(2024, 1, 21, 23, 0, 0, 0, time.UTC),
			payments: []api.Payment{payment(1, 2024, 1, 22)},
			want:     false,
		},
		{
			name:     "week spanning a month boundary",
			now:      time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC), // Thursday
			payments: []api.Payment{payment(1, 2024, 1, 29)},
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checker.Check(tt.payments, period, tt.now).Paid)
		})
	}
}

func TestWeekBounds(t *testing.T) {
	tests := []struct {
		now        time.Time
		wantMonday string
		wantSunday string
	}{
		{time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "2024-01-15", "2024-01-21"},
		{time.Date(2024, 1, 21, 18, 30, 0, 0, time.UTC), "2024-01-15", "2024-01-21"},
		{time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), "2024-02-26", "2024-03-03"},
	}

	for _, tt := range tests {
		monday, sunday := WeekBounds(tt.now)
		assert.Equal(t, tt.wantMonday, monday.Format(time.DateOnly), "monday of %v", tt.now)
		assert.Equal(t, tt.wantSunday, sunday.Format(time.DateOnly), "sunday of %v", tt.now)
	}
}

func TestGetStatusChecker(t *testing.T) {
	for _, rt := range []string{"", RecurrenceNone, RecurrenceMonthly, RecurrenceWeekly} {
		_, err := GetStatusChecker(rt)
		require.NoError(t, err, "recurrence %q", rt)
	}
	_, err := GetStatusChecker("yearly")
	assert.Error(t, err)
}

type alwaysPaid struct{}

func (alwaysPaid) Check([]api.Payment, Period, time.Time) Status { return Status{Paid: true} }

func TestRegisterStatusChecker(t *testing.T) {
	RegisterStatusChecker("test-always", alwaysPaid{})
	t.Cleanup(func() { delete(statusStrategies, "test-always") })

	got := PaymentStatus(api.Expense{RecurrenceType: "test-always"}, Period{Year: 2024, Month: 1}, time.Now())
	assert.True(t, got.Paid, "registered checker was not used")
}

func TestPaymentStatus_UnknownRecurrenceIsUnpaid(t *testing.T) {
	e := api.Expense{RecurrenceType: "yearly", Payments: []api.Payment{payment(1, 2024, 1, 1)}}
	assert.False(t, PaymentStatus(e, Period{Year: 2024, Month: 1}, time.Now()).Paid)
}

func TestPeriod_Validate(t *testing.T) {
	tests := []struct {
		period  Period
		wantErr bool
	}{
		{Period{Year: 2024, Month: time.December}, false},
		{Period{Year: 2024, Month: 13}, true},
		{Period{Year: 2024, Month: 0}, true},
		{Period{Year: 0, Month: 1}, true},
	}
	for _, tt := range tests {
		err := tt.period.Validate()
		if tt.wantErr {
			assert.Error(t, err, "%+v", tt.period)
		} else {
			assert.NoError(t, err, "%+v", tt.period)
		}
	}
}

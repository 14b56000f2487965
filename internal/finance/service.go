package finance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"kincore/internal/api"
	"kincore/internal/core"
	"kincore/internal/log"
	"kincore/internal/session"
)

// Messages shown to the user.
const (
	MsgLoadFailed    = "Ошибка загрузки расходов"
	MsgPayFailed     = "Ошибка оплаты"
	MsgUnpayFailed   = "Ошибка отмены оплаты"
	MsgMissingDate   = "Выберите дату оплаты"
	MsgInvalidDate   = "Некорректная дата оплаты"
	MsgInvalidAmount = "Некорректная сумма"
	MsgBadDate       = "Некорректная дата"
	MsgRequired      = "Заполните все обязательные поля"
	MsgCreateFailed  = "Ошибка добавления"
	MsgSaveFailed    = "Ошибка сохранения"
	MsgDeleteFailed  = "Ошибка удаления"
	MsgNotFound      = "Запись не найдена"
)

// Expense types accepted by the API.
const (
	ExpenseMandatory = "mandatory"
	ExpenseOptional  = "optional"
)

var (
	ErrMissingDate = errors.New("payment date is required")
	ErrRequired    = errors.New("required field missing")
	ErrNotFound    = errors.New("record not found")
)

// maxPages stops paging through a listing whose count never converges.
const maxPages = 100

type ExpenseAPI interface {
	ListExpenses(ctx context.Context, limit, offset int) (*api.ExpensePage, error)
	CreateExpense(ctx context.Context, in api.NewExpense) (*api.Expense, error)
	DeleteExpense(ctx context.Context, id int64) error
	PayExpense(ctx context.Context, id int64, req api.PaymentRequest) error
	UnpayExpense(ctx context.Context, id int64, paidDate core.Date) error
}

type TokenSource interface {
	Token() string
}

// ExpenseView is an expense as displayed: currency resolved, category named,
// status derived for the viewed period.
type ExpenseView struct {
	ID             int64        `json:"id"`
	Name           string       `json:"name"`
	Amount         core.Money   `json:"amount"`
	Currency       api.Currency `json:"currency"`
	Date           core.Date    `json:"date"`
	Category       string       `json:"category,omitempty"`
	Type           string       `json:"type"`
	RecurrenceType string       `json:"recurrence_type"`
	Status         Status       `json:"status"`
}

// MonthView is the expense list of one level for one month.
type MonthView struct {
	Level    core.LevelRef         `json:"level"`
	Year     int                   `json:"year"`
	Month    int                   `json:"month"`
	Expenses []ExpenseView         `json:"expenses"`
	Totals   map[string]core.Money `json:"totals"`
}

type Service struct {
	remote ExpenseAPI
	dicts  *Dictionaries
	tokens TokenSource
	logger *log.Logger
	now    func() time.Time
}

func NewService(remote ExpenseAPI, dicts *Dictionaries, tokens TokenSource, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		remote: remote,
		dicts:  dicts,
		tokens: tokens,
		logger: logger.WithComponent(log.ComponentFinance),
		now:    time.Now,
	}
}

// WithClock replaces the time source used for weekly status.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// InScope reports whether e belongs to level. Circles show the expenses of
// the family they are reached through.
func InScope(level core.Level, e api.Expense) bool {
	return ownedBy(level, e.IsFamily, e.Family)
}

func ownedBy(level core.Level, isFamily bool, family *int64) bool {
	switch level.Type {
	case core.LevelPersonal:
		return !isFamily
	case core.LevelFamily:
		return isFamily && family != nil && *family == level.ID
	case core.LevelCircle:
		return isFamily && family != nil && *family == level.FamilyID
	default:
		return false
	}
}

// ownership is the family fields a record created at level carries, so that
// it is listed back at the same level.
func ownership(level core.Level) (*int64, bool) {
	switch level.Type {
	case core.LevelFamily:
		id := level.ID
		return &id, true
	case core.LevelCircle:
		id := level.FamilyID
		return &id, true
	default:
		return nil, false
	}
}

// InPeriod reports whether e is shown for period. One-time expenses show in
// the month of their date; recurring ones in every month from their start.
func InPeriod(e api.Expense, period Period) bool {
	if e.Date.IsZero() {
		return false
	}
	if e.RecurrenceType == "" || e.RecurrenceType == RecurrenceNone {
		return period.Contains(e.Date.Time)
	}
	return !e.Date.After(period.End())
}

// MonthExpenses lists every expense of level shown in period, newest first.
func (s *Service) MonthExpenses(ctx context.Context, level core.Level, period Period) (*MonthView, error) {
	token := s.tokens.Token()
	if token == "" {
		return nil, session.ErrNotAuthenticated
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}

	all, err := s.listAll(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list expenses",
			log.FieldOperation, log.OpList, log.FieldError, err)
		return nil, core.Fail(api.MessageOr(err, MsgLoadFailed), err)
	}

	dict, err := s.dicts.Load(ctx, token)
	if err != nil {
		s.logger.WarnContext(ctx, "Dictionaries unavailable, showing unresolved references",
			log.FieldError, err)
		dict = newDictionary(nil, nil)
	}

	now := s.now()
	view := &MonthView{
		Level:    level.Ref(),
		Year:     period.Year,
		Month:    int(period.Month),
		Expenses: []ExpenseView{},
		Totals:   map[string]core.Money{},
	}
	for _, e := range all {
		if !InScope(level, e) || !InPeriod(e, period) {
			continue
		}
		cur, _ := dict.Currency(e.Currency)
		view.Expenses = append(view.Expenses, ExpenseView{
			ID:             e.ID,
			Name:           e.Name,
			Amount:         e.Amount,
			Currency:       cur,
			Date:           e.Date,
			Category:       dict.CategoryName(e.Category),
			Type:           e.Type,
			RecurrenceType: e.RecurrenceType,
			Status:         PaymentStatus(e, period, now),
		})
		total := view.Totals[cur.Code]
		total.Cents += e.Amount.Cents
		view.Totals[cur.Code] = total
	}

	sort.SliceStable(view.Expenses, func(i, j int) bool {
		a, b := view.Expenses[i], view.Expenses[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.After(b.Date.Time)
		}
		return a.ID > b.ID
	})

	s.logger.DebugContext(ctx, "Month expenses listed",
		log.FieldLevelType, level.Type.String(), log.FieldLevelID, level.ID,
		log.FieldYear, period.Year, log.FieldMonth, int(period.Month),
		"count", len(view.Expenses))
	return view, nil
}

func (s *Service) listAll(ctx context.Context) ([]api.Expense, error) {
	var all []api.Expense
	offset := 0
	for range maxPages {
		page, err := s.remote.ListExpenses(ctx, api.PageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		offset += len(page.Results)
		if len(page.Results) == 0 || offset >= page.Count {
			return all, nil
		}
	}
	s.logger.WarnContext(ctx, "Expense listing truncated", "pages", maxPages)
	return all, nil
}

// MarkPaid records a payment of expense id on paidDate (YYYY-MM-DD). An empty
// amount lets the server use the expense amount.
func (s *Service) MarkPaid(ctx context.Context, id int64, paidDate, amount string) error {
	date, err := parsePaidDate(paidDate)
	if err != nil {
		return err
	}
	req := api.PaymentRequest{PaidDate: date}
	if strings.TrimSpace(amount) != "" {
		cents, err := core.ParseDecimalToCents(amount)
		if err != nil {
			return core.Fail(MsgInvalidAmount, err)
		}
		req.Amount = &core.Money{Cents: cents}
	}

	if err := s.remote.PayExpense(ctx, id, req); err != nil {
		s.logger.WarnContext(ctx, "Payment rejected",
			log.FieldExpenseID, id, log.FieldError, err)
		return core.Fail(api.MessageOr(err, MsgPayFailed), err)
	}
	s.logger.InfoContext(ctx, "Expense marked paid",
		log.FieldExpenseID, id, "paid_date", date.String())
	return nil
}

// Unmark removes the payment of expense id made on paidDate.
func (s *Service) Unmark(ctx context.Context, id int64, paidDate string) error {
	date, err := parsePaidDate(paidDate)
	if err != nil {
		return err
	}
	if err := s.remote.UnpayExpense(ctx, id, date); err != nil {
		s.logger.WarnContext(ctx, "Payment removal rejected",
			log.FieldExpenseID, id, log.FieldError, err)
		return core.Fail(api.MessageOr(err, MsgUnpayFailed), err)
	}
	s.logger.InfoContext(ctx, "Expense payment removed",
		log.FieldExpenseID, id, "paid_date", date.String())
	return nil
}

func parsePaidDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Date{}, core.Fail(MsgMissingDate, ErrMissingDate)
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, core.Fail(MsgInvalidDate, fmt.Errorf("parse paid date %q: %w", s, err))
	}
	return d, nil
}

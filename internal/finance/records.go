package finance

import (
	"context"
	"fmt"
	"strings"

	"kincore/internal/api"
	"kincore/internal/core"
	"kincore/internal/log"
	"kincore/internal/session"
)

// ExpenseInput is an expense as entered in the create form. Amount and Date
// are raw text.
type ExpenseInput struct {
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Currency int64  `json:"currency"`
	Category *int64 `json:"category"`
	Date     string `json:"date"`
	Type     string `json:"type"`
}

func (in ExpenseInput) toRequest(level core.Level) (api.NewExpense, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || strings.TrimSpace(in.Amount) == "" || in.Currency <= 0 ||
		strings.TrimSpace(in.Date) == "" || in.Type == "" {
		return api.NewExpense{}, core.Fail(MsgRequired, ErrRequired)
	}
	if in.Type != ExpenseMandatory && in.Type != ExpenseOptional {
		return api.NewExpense{}, core.Fail(MsgRequired, fmt.Errorf("%w: type %q", ErrRequired, in.Type))
	}
	cents, err := core.ParseDecimalToCents(in.Amount)
	if err != nil {
		return api.NewExpense{}, core.Fail(MsgInvalidAmount, err)
	}
	date, err := core.ParseDate(strings.TrimSpace(in.Date))
	if err != nil {
		return api.NewExpense{}, core.Fail(MsgBadDate, fmt.Errorf("parse date %q: %w", in.Date, err))
	}
	family, isFamily := ownership(level)
	return api.NewExpense{
		Name:     name,
		Amount:   core.Money{Cents: cents},
		Currency: in.Currency,
		Category: in.Category,
		Date:     date,
		Type:     in.Type,
		Family:   family,
		IsFamily: isFamily,
	}, nil
}

// CreateExpense adds an expense owned by level and returns it as displayed.
func (s *Service) CreateExpense(ctx context.Context, level core.Level, in ExpenseInput) (*ExpenseView, error) {
	token := s.tokens.Token()
	if token == "" {
		return nil, session.ErrNotAuthenticated
	}
	req, err := in.toRequest(level)
	if err != nil {
		return nil, err
	}

	created, err := s.remote.CreateExpense(ctx, req)
	if err != nil {
		s.logger.WarnContext(ctx, "Expense creation rejected",
			log.FieldOperation, log.OpCreate, log.FieldError, err)
		return nil, core.Fail(api.SummaryOr(err, MsgCreateFailed), err)
	}

	dict, err := s.dicts.Load(ctx, token)
	if err != nil {
		dict = newDictionary(nil, nil)
	}
	cur, _ := dict.Currency(created.Currency)
	s.logger.InfoContext(ctx, "Expense created",
		log.FieldExpenseID, created.ID, log.FieldLevelType, level.Type.String(), log.FieldLevelID, level.ID)
	return &ExpenseView{
		ID:             created.ID,
		Name:           created.Name,
		Amount:         created.Amount,
		Currency:       cur,
		Date:           created.Date,
		Category:       dict.CategoryName(created.Category),
		Type:           created.Type,
		RecurrenceType: created.RecurrenceType,
		Status:         PaymentStatus(*created, Period{Year: created.Date.Year(), Month: created.Date.Month()}, s.now()),
	}, nil
}

// DeleteExpense removes expense id.
func (s *Service) DeleteExpense(ctx context.Context, id int64) error {
	if err := s.remote.DeleteExpense(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "Expense deletion rejected",
			log.FieldExpenseID, id, log.FieldError, err)
		return remoteFailure(err, MsgDeleteFailed)
	}
	s.logger.InfoContext(ctx, "Expense deleted", log.FieldExpenseID, id)
	return nil
}

// remoteFailure attaches the user message to a failed write. A 404 becomes
// ErrNotFound.
func remoteFailure(err error, fallback string) error {
	if api.IsNotFound(err) {
		return core.Fail(MsgNotFound, fmt.Errorf("%w: %w", ErrNotFound, err))
	}
	return core.Fail(api.SummaryOr(err, fallback), err)
}

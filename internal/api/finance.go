package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"kincore/internal/core"
)

// PageSize matches the page size the expenses listing is requested with.
const PageSize = 10

type (
	Currency struct {
		ID     int64  `json:"id"`
		Code   string `json:"code"`
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	}

	Category struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	Payment struct {
		ID       int64      `json:"id"`
		Expense  int64      `json:"expense"`
		PaidDate core.Date  `json:"paid_date"`
		Amount   core.Money `json:"amount"`
		Comment  string     `json:"comment,omitempty"`
	}

	Expense struct {
		ID             int64         `json:"id"`
		Name           string        `json:"name"`
		Amount         core.Money    `json:"amount"`
		Currency       Ref[Currency] `json:"currency"`
		Date           core.Date     `json:"date"`
		Category       *int64        `json:"category"`
		Type           string        `json:"type"`
		Family         *int64        `json:"family"`
		IsFamily       bool          `json:"is_family"`
		RecurrenceType string        `json:"recurrence_type,omitempty"`
		Payments       []Payment     `json:"payments,omitempty"`
	}

	// ExpensePage is one page of the listing. The API may return either a
	// bare array or a {count, results} envelope.
	ExpensePage struct {
		Count   int       `json:"count"`
		Results []Expense `json:"results"`
	}

	// NewExpense is the body of an expense create call.
	NewExpense struct {
		Name     string     `json:"name"`
		Amount   core.Money `json:"amount"`
		Currency int64      `json:"currency"`
		Category *int64     `json:"category"`
		Date     core.Date  `json:"date"`
		Type     string     `json:"type"`
		Family   *int64     `json:"family"`
		IsFamily bool       `json:"is_family"`
	}

	PaymentRequest struct {
		PaidDate core.Date   `json:"paid_date"`
		Amount   *core.Money `json:"amount,omitempty"`
	}
)

func (p *ExpensePage) UnmarshalJSON(data []byte) error {
	var list []Expense
	if err := json.Unmarshal(data, &list); err == nil {
		p.Results = list
		p.Count = len(list)
		return nil
	}
	type envelope ExpensePage
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*p = ExpensePage(env)
	if p.Count == 0 {
		p.Count = len(p.Results)
	}
	return nil
}

func (c *Client) ListCurrencies(ctx context.Context) ([]Currency, error) {
	var out []Currency
	if err := c.do(ctx, http.MethodGet, "/finance/currencies/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	if err := c.do(ctx, http.MethodGet, "/finance/categories/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListExpenses(ctx context.Context, limit, offset int) (*ExpensePage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var page ExpensePage
	if err := c.do(ctx, http.MethodGet, "/finance/expenses/?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) CreateExpense(ctx context.Context, in NewExpense) (*Expense, error) {
	var out Expense
	if err := c.do(ctx, http.MethodPost, "/finance/expenses/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteExpense(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/finance/expenses/%d/", id), nil, nil)
}

func (c *Client) PayExpense(ctx context.Context, id int64, req PaymentRequest) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/finance/expenses/%d/pay/", id), req, nil)
}

func (c *Client) UnpayExpense(ctx context.Context, id int64, paidDate core.Date) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/finance/expenses/%d/unpay/", id), PaymentRequest{PaidDate: paidDate}, nil)
}

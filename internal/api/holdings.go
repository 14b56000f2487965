package api

import (
	"context"
	"fmt"
	"net/http"

	"kincore/internal/core"
)

// Liability payment schedules.
const (
	PaymentAnnuity = "annuity"
	PaymentDiff    = "diff"
)

type (
	AssetType struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	LiabilityType struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	Asset struct {
		ID                int64          `json:"id"`
		Name              string         `json:"name"`
		Type              Ref[AssetType] `json:"type"`
		PurchaseValue     core.Money     `json:"purchase_value"`
		PurchaseCurrency  Ref[Currency]  `json:"purchase_currency"`
		CurrentValue      core.Money     `json:"current_value"`
		CurrentCurrency   Ref[Currency]  `json:"current_currency"`
		LastValuationDate core.Date      `json:"last_valuation_date"`
		Family            *int64         `json:"family"`
		IsFamily          bool           `json:"is_family"`
	}

	// AssetWrite is the body of asset create and update calls.
	AssetWrite struct {
		Name             string     `json:"name"`
		Type             int64      `json:"type"`
		PurchaseValue    core.Money `json:"purchase_value"`
		PurchaseCurrency int64      `json:"purchase_currency"`
		CurrentValue     core.Money `json:"current_value"`
		CurrentCurrency  int64      `json:"current_currency"`
		Family           *int64     `json:"family"`
		IsFamily         bool       `json:"is_family"`
	}

	Liability struct {
		ID            int64              `json:"id"`
		Name          string             `json:"name"`
		Type          Ref[LiabilityType] `json:"type"`
		InitialAmount core.Money         `json:"initial_amount"`
		Currency      Ref[Currency]      `json:"currency"`
		OpenDate      core.Date          `json:"open_date"`
		CloseDate     core.Date          `json:"close_date"`
		// InterestRate is a yearly percentage with two decimals.
		InterestRate *core.Money `json:"interest_rate"`
		PaymentType  *string     `json:"payment_type"`
		PaymentDate  core.Date   `json:"payment_date"`
		CurrentDebt  core.Money  `json:"current_debt"`
		Family       *int64      `json:"family"`
		IsFamily     bool        `json:"is_family"`
	}

	LiabilityWrite struct {
		Name          string      `json:"name"`
		Type          int64       `json:"type"`
		InitialAmount core.Money  `json:"initial_amount"`
		Currency      int64       `json:"currency"`
		OpenDate      core.Date   `json:"open_date"`
		CloseDate     core.Date   `json:"close_date"`
		InterestRate  *core.Money `json:"interest_rate"`
		PaymentType   *string     `json:"payment_type"`
		PaymentDate   core.Date   `json:"payment_date"`
		Family        *int64      `json:"family"`
		IsFamily      bool        `json:"is_family"`
	}
)

func (c *Client) ListAssetTypes(ctx context.Context) ([]AssetType, error) {
	var out []AssetType
	if err := c.do(ctx, http.MethodGet, "/finance/asset-types/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListLiabilityTypes(ctx context.Context) ([]LiabilityType, error) {
	var out []LiabilityType
	if err := c.do(ctx, http.MethodGet, "/finance/liability-types/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListAssets(ctx context.Context) ([]Asset, error) {
	var out []Asset
	if err := c.do(ctx, http.MethodGet, "/finance/assets/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateAsset(ctx context.Context, in AssetWrite) (*Asset, error) {
	var out Asset
	if err := c.do(ctx, http.MethodPost, "/finance/assets/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateAsset(ctx context.Context, id int64, in AssetWrite) (*Asset, error) {
	var out Asset
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/finance/assets/%d/", id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteAsset(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/finance/assets/%d/", id), nil, nil)
}

func (c *Client) ListLiabilities(ctx context.Context) ([]Liability, error) {
	var out []Liability
	if err := c.do(ctx, http.MethodGet, "/finance/liabilities/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateLiability(ctx context.Context, in LiabilityWrite) (*Liability, error) {
	var out Liability
	if err := c.do(ctx, http.MethodPost, "/finance/liabilities/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateLiability(ctx context.Context, id int64, in LiabilityWrite) (*Liability, error) {
	var out Liability
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/finance/liabilities/%d/", id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteLiability(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/finance/liabilities/%d/", id), nil, nil)
}

package finance

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"kincore/internal/api"
	"kincore/internal/core"
	"kincore/internal/log"
	"kincore/internal/session"
)

const (
	MsgAssetsLoadFailed      = "Ошибка загрузки активов"
	MsgLiabilitiesLoadFailed = "Ошибка загрузки пассивов"
	MsgInvalidRate           = "Некорректная ставка"
	MsgInvalidPaymentType    = "Некорректный способ погашения"
)

const (
	kindAsset     = "asset"
	kindLiability = "liability"
)

type HoldingsAPI interface {
	ListAssetTypes(ctx context.Context) ([]api.AssetType, error)
	ListAssets(ctx context.Context) ([]api.Asset, error)
	CreateAsset(ctx context.Context, in api.AssetWrite) (*api.Asset, error)
	UpdateAsset(ctx context.Context, id int64, in api.AssetWrite) (*api.Asset, error)
	DeleteAsset(ctx context.Context, id int64) error

	ListLiabilityTypes(ctx context.Context) ([]api.LiabilityType, error)
	ListLiabilities(ctx context.Context) ([]api.Liability, error)
	CreateLiability(ctx context.Context, in api.LiabilityWrite) (*api.Liability, error)
	UpdateLiability(ctx context.Context, id int64, in api.LiabilityWrite) (*api.Liability, error)
	DeleteLiability(ctx context.Context, id int64) error
}

type AssetView struct {
	ID                int64        `json:"id"`
	Name              string       `json:"name"`
	TypeID            int64        `json:"type_id"`
	Type              string       `json:"type"`
	PurchaseValue     core.Money   `json:"purchase_value"`
	PurchaseCurrency  api.Currency `json:"purchase_currency"`
	CurrentValue      core.Money   `json:"current_value"`
	CurrentCurrency   api.Currency `json:"current_currency"`
	LastValuationDate core.Date    `json:"last_valuation_date"`
}

// AssetsView lists the assets of one level with their current value summed
// per currency code.
type AssetsView struct {
	Level  core.LevelRef         `json:"level"`
	Assets []AssetView           `json:"assets"`
	Types  []api.AssetType       `json:"types"`
	Totals map[string]core.Money `json:"totals"`
}

type LiabilityView struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	TypeID        int64        `json:"type_id"`
	Type          string       `json:"type"`
	InitialAmount core.Money   `json:"initial_amount"`
	Currency      api.Currency `json:"currency"`
	OpenDate      core.Date    `json:"open_date"`
	CloseDate     core.Date    `json:"close_date"`
	InterestRate  *core.Money  `json:"interest_rate"`
	PaymentType   string       `json:"payment_type,omitempty"`
	PaymentDate   core.Date    `json:"payment_date"`
	CurrentDebt   core.Money   `json:"current_debt"`
}

// LiabilitiesView lists the liabilities of one level with the current debt
// summed per currency code.
type LiabilitiesView struct {
	Level       core.LevelRef         `json:"level"`
	Liabilities []LiabilityView       `json:"liabilities"`
	Types       []api.LiabilityType   `json:"types"`
	Totals      map[string]core.Money `json:"totals"`
}

// AssetInput is an asset as entered in the form. Values are raw text.
type AssetInput struct {
	Name             string `json:"name"`
	Type             int64  `json:"type"`
	PurchaseValue    string `json:"purchase_value"`
	PurchaseCurrency int64  `json:"purchase_currency"`
	CurrentValue     string `json:"current_value"`
	CurrentCurrency  int64  `json:"current_currency"`
}

// LiabilityInput is a liability as entered in the form. Empty optional
// fields are sent as null.
type LiabilityInput struct {
	Name          string `json:"name"`
	Type          int64  `json:"type"`
	InitialAmount string `json:"initial_amount"`
	Currency      int64  `json:"currency"`
	OpenDate      string `json:"open_date"`
	CloseDate     string `json:"close_date"`
	InterestRate  string `json:"interest_rate"`
	PaymentType   string `json:"payment_type"`
	PaymentDate   string `json:"payment_date"`
}

// Holdings lists and edits the assets and liabilities of a level.
type Holdings struct {
	remote HoldingsAPI
	dicts  *Dictionaries
	tokens TokenSource
	logger *log.Logger
}

func NewHoldings(remote HoldingsAPI, dicts *Dictionaries, tokens TokenSource, logger *log.Logger) *Holdings {
	if logger == nil {
		logger = log.Nop()
	}
	return &Holdings{
		remote: remote,
		dicts:  dicts,
		tokens: tokens,
		logger: logger.WithComponent(log.ComponentFinance),
	}
}

func (h *Holdings) dictionary(ctx context.Context, token string) *Dictionary {
	dict, err := h.dicts.Load(ctx, token)
	if err != nil {
		h.logger.WarnContext(ctx, "Dictionaries unavailable, showing unresolved references",
			log.FieldError, err)
		return newDictionary(nil, nil)
	}
	return dict
}

// Assets lists the assets owned by level, by name.
func (h *Holdings) Assets(ctx context.Context, level core.Level) (*AssetsView, error) {
	token := h.tokens.Token()
	if token == "" {
		return nil, session.ErrNotAuthenticated
	}

	var (
		assets []api.Asset
		types  []api.AssetType
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		assets, err = h.remote.ListAssets(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		types, err = h.remote.ListAssetTypes(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.ErrorContext(ctx, "Failed to list assets",
			log.FieldOperation, log.OpList, log.FieldError, err)
		return nil, core.Fail(api.MessageOr(err, MsgAssetsLoadFailed), err)
	}

	dict := h.dictionary(ctx, token)
	typeByID := make(map[int64]api.AssetType, len(types))
	for _, t := range types {
		typeByID[t.ID] = t
	}

	view := &AssetsView{
		Level:  level.Ref(),
		Assets: []AssetView{},
		Types:  types,
		Totals: map[string]core.Money{},
	}
	for _, a := range assets {
		if !ownedBy(level, a.IsFamily, a.Family) {
			continue
		}
		av := h.assetView(a, dict, typeByID)
		view.Assets = append(view.Assets, av)
		total := view.Totals[av.CurrentCurrency.Code]
		total.Cents += a.CurrentValue.Cents
		view.Totals[av.CurrentCurrency.Code] = total
	}
	sort.SliceStable(view.Assets, func(i, j int) bool {
		return view.Assets[i].Name < view.Assets[j].Name
	})
	return view, nil
}

func (h *Holdings) assetView(a api.Asset, dict *Dictionary, types map[int64]api.AssetType) AssetView {
	t, _ := a.Type.Resolve(func(id int64) (api.AssetType, bool) {
		t, ok := types[id]
		return t, ok
	})
	purchase, _ := dict.Currency(a.PurchaseCurrency)
	current, _ := dict.Currency(a.CurrentCurrency)
	return AssetView{
		ID:                a.ID,
		Name:              a.Name,
		TypeID:            a.Type.ID,
		Type:              t.Name,
		PurchaseValue:     a.PurchaseValue,
		PurchaseCurrency:  purchase,
		CurrentValue:      a.CurrentValue,
		CurrentCurrency:   current,
		LastValuationDate: a.LastValuationDate,
	}
}

func (in AssetInput) toRequest(level core.Level) (api.AssetWrite, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.Type <= 0 || in.PurchaseCurrency <= 0 || in.CurrentCurrency <= 0 {
		return api.AssetWrite{}, core.Fail(MsgRequired, ErrRequired)
	}
	purchase, err := parseValue(in.PurchaseValue)
	if err != nil {
		return api.AssetWrite{}, err
	}
	current, err := parseValue(in.CurrentValue)
	if err != nil {
		return api.AssetWrite{}, err
	}
	family, isFamily := ownership(level)
	return api.AssetWrite{
		Name:             name,
		Type:             in.Type,
		PurchaseValue:    purchase,
		PurchaseCurrency: in.PurchaseCurrency,
		CurrentValue:     current,
		CurrentCurrency:  in.CurrentCurrency,
		Family:           family,
		IsFamily:         isFamily,
	}, nil
}

// CreateAsset adds an asset owned by level.
func (h *Holdings) CreateAsset(ctx context.Context, level core.Level, in AssetInput) (*AssetView, error) {
	req, err := in.toRequest(level)
	if err != nil {
		return nil, err
	}
	a, err := h.remote.CreateAsset(ctx, req)
	if err != nil {
		h.logWriteFailure(ctx, kindAsset, log.OpCreate, 0, err)
		return nil, core.Fail(api.SummaryOr(err, MsgCreateFailed), err)
	}
	h.logWrite(ctx, kindAsset, log.OpCreate, a.ID, level)
	return h.resolvedAsset(ctx, *a), nil
}

// UpdateAsset replaces the fields of asset id, which must belong to level.
func (h *Holdings) UpdateAsset(ctx context.Context, level core.Level, id int64, in AssetInput) (*AssetView, error) {
	req, err := in.toRequest(level)
	if err != nil {
		return nil, err
	}
	if err := h.assetInScope(ctx, level, id); err != nil {
		return nil, err
	}
	a, err := h.remote.UpdateAsset(ctx, id, req)
	if err != nil {
		h.logWriteFailure(ctx, kindAsset, log.OpUpdate, id, err)
		return nil, remoteFailure(err, MsgSaveFailed)
	}
	h.logWrite(ctx, kindAsset, log.OpUpdate, id, level)
	return h.resolvedAsset(ctx, *a), nil
}

// DeleteAsset removes asset id, which must belong to level.
func (h *Holdings) DeleteAsset(ctx context.Context, level core.Level, id int64) error {
	if err := h.assetInScope(ctx, level, id); err != nil {
		return err
	}
	if err := h.remote.DeleteAsset(ctx, id); err != nil {
		h.logWriteFailure(ctx, kindAsset, log.OpDelete, id, err)
		return remoteFailure(err, MsgDeleteFailed)
	}
	h.logWrite(ctx, kindAsset, log.OpDelete, id, level)
	return nil
}

func (h *Holdings) assetInScope(ctx context.Context, level core.Level, id int64) error {
	assets, err := h.remote.ListAssets(ctx)
	if err != nil {
		return core.Fail(api.MessageOr(err, MsgAssetsLoadFailed), err)
	}
	for _, a := range assets {
		if a.ID == id && ownedBy(level, a.IsFamily, a.Family) {
			return nil
		}
	}
	return core.Fail(MsgNotFound, fmt.Errorf("%w: asset %d", ErrNotFound, id))
}

func (h *Holdings) resolvedAsset(ctx context.Context, a api.Asset) *AssetView {
	types, err := h.remote.ListAssetTypes(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "Asset types unavailable", log.FieldError, err)
	}
	byID := make(map[int64]api.AssetType, len(types))
	for _, t := range types {
		byID[t.ID] = t
	}
	v := h.assetView(a, h.dictionary(ctx, h.tokens.Token()), byID)
	return &v
}

// Liabilities lists the liabilities owned by level, by open date.
func (h *Holdings) Liabilities(ctx context.Context, level core.Level) (*LiabilitiesView, error) {
	token := h.tokens.Token()
	if token == "" {
		return nil, session.ErrNotAuthenticated
	}

	var (
		liabilities []api.Liability
		types       []api.LiabilityType
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		liabilities, err = h.remote.ListLiabilities(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		types, err = h.remote.ListLiabilityTypes(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.ErrorContext(ctx, "Failed to list liabilities",
			log.FieldOperation, log.OpList, log.FieldError, err)
		return nil, core.Fail(api.MessageOr(err, MsgLiabilitiesLoadFailed), err)
	}

	dict := h.dictionary(ctx, token)
	typeByID := make(map[int64]api.LiabilityType, len(types))
	for _, t := range types {
		typeByID[t.ID] = t
	}

	view := &LiabilitiesView{
		Level:       level.Ref(),
		Liabilities: []LiabilityView{},
		Types:       types,
		Totals:      map[string]core.Money{},
	}
	for _, l := range liabilities {
		if !ownedBy(level, l.IsFamily, l.Family) {
			continue
		}
		lv := liabilityView(l, dict, typeByID)
		view.Liabilities = append(view.Liabilities, lv)
		total := view.Totals[lv.Currency.Code]
		total.Cents += l.CurrentDebt.Cents
		view.Totals[lv.Currency.Code] = total
	}
	sort.SliceStable(view.Liabilities, func(i, j int) bool {
		a, b := view.Liabilities[i], view.Liabilities[j]
		if !a.OpenDate.Equal(b.OpenDate.Time) {
			return a.OpenDate.Before(b.OpenDate.Time)
		}
		return a.ID < b.ID
	})
	return view, nil
}

func liabilityView(l api.Liability, dict *Dictionary, types map[int64]api.LiabilityType) LiabilityView {
	t, _ := l.Type.Resolve(func(id int64) (api.LiabilityType, bool) {
		t, ok := types[id]
		return t, ok
	})
	cur, _ := dict.Currency(l.Currency)
	v := LiabilityView{
		ID:            l.ID,
		Name:          l.Name,
		TypeID:        l.Type.ID,
		Type:          t.Name,
		InitialAmount: l.InitialAmount,
		Currency:      cur,
		OpenDate:      l.OpenDate,
		CloseDate:     l.CloseDate,
		InterestRate:  l.InterestRate,
		PaymentDate:   l.PaymentDate,
		CurrentDebt:   l.CurrentDebt,
	}
	if l.PaymentType != nil {
		v.PaymentType = *l.PaymentType
	}
	return v
}

func (in LiabilityInput) toRequest(level core.Level) (api.LiabilityWrite, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.Type <= 0 || in.Currency <= 0 || strings.TrimSpace(in.OpenDate) == "" {
		return api.LiabilityWrite{}, core.Fail(MsgRequired, ErrRequired)
	}
	amount, err := parseValue(in.InitialAmount)
	if err != nil {
		return api.LiabilityWrite{}, err
	}
	open, err := parseOptionalDate(in.OpenDate)
	if err != nil {
		return api.LiabilityWrite{}, err
	}
	closeDate, err := parseOptionalDate(in.CloseDate)
	if err != nil {
		return api.LiabilityWrite{}, err
	}
	paymentDate, err := parseOptionalDate(in.PaymentDate)
	if err != nil {
		return api.LiabilityWrite{}, err
	}

	req := api.LiabilityWrite{
		Name:          name,
		Type:          in.Type,
		InitialAmount: amount,
		Currency:      in.Currency,
		OpenDate:      open,
		CloseDate:     closeDate,
		PaymentDate:   paymentDate,
	}
	if rate := strings.TrimSpace(in.InterestRate); rate != "" {
		r, err := core.ParseMoney(rate)
		if err != nil || r.Cents < 0 {
			return api.LiabilityWrite{}, core.Fail(MsgInvalidRate, fmt.Errorf("interest rate %q: %w", rate, core.ErrInvalidAmount))
		}
		req.InterestRate = &r
	}
	switch pt := strings.TrimSpace(in.PaymentType); pt {
	case "":
	case api.PaymentAnnuity, api.PaymentDiff:
		req.PaymentType = &pt
	default:
		return api.LiabilityWrite{}, core.Fail(MsgInvalidPaymentType, fmt.Errorf("payment type %q", pt))
	}
	req.Family, req.IsFamily = ownership(level)
	return req, nil
}

// CreateLiability adds a liability owned by level.
func (h *Holdings) CreateLiability(ctx context.Context, level core.Level, in LiabilityInput) (*LiabilityView, error) {
	req, err := in.toRequest(level)
	if err != nil {
		return nil, err
	}
	l, err := h.remote.CreateLiability(ctx, req)
	if err != nil {
		h.logWriteFailure(ctx, kindLiability, log.OpCreate, 0, err)
		return nil, core.Fail(api.SummaryOr(err, MsgCreateFailed), err)
	}
	h.logWrite(ctx, kindLiability, log.OpCreate, l.ID, level)
	return h.resolvedLiability(ctx, *l), nil
}

// UpdateLiability replaces the fields of liability id, which must belong to level.
func (h *Holdings) UpdateLiability(ctx context.Context, level core.Level, id int64, in LiabilityInput) (*LiabilityView, error) {
	req, err := in.toRequest(level)
	if err != nil {
		return nil, err
	}
	if err := h.liabilityInScope(ctx, level, id); err != nil {
		return nil, err
	}
	l, err := h.remote.UpdateLiability(ctx, id, req)
	if err != nil {
		h.logWriteFailure(ctx, kindLiability, log.OpUpdate, id, err)
		return nil, remoteFailure(err, MsgSaveFailed)
	}
	h.logWrite(ctx, kindLiability, log.OpUpdate, id, level)
	return h.resolvedLiability(ctx, *l), nil
}

// DeleteLiability removes liability id, which must belong to level.
func (h *Holdings) DeleteLiability(ctx context.Context, level core.Level, id int64) error {
	if err := h.liabilityInScope(ctx, level, id); err != nil {
		return err
	}
	if err := h.remote.DeleteLiability(ctx, id); err != nil {
		h.logWriteFailure(ctx, kindLiability, log.OpDelete, id, err)
		return remoteFailure(err, MsgDeleteFailed)
	}
	h.logWrite(ctx, kindLiability, log.OpDelete, id, level)
	return nil
}

func (h *Holdings) liabilityInScope(ctx context.Context, level core.Level, id int64) error {
	liabilities, err := h.remote.ListLiabilities(ctx)
	if err != nil {
		return core.Fail(api.MessageOr(err, MsgLiabilitiesLoadFailed), err)
	}
	for _, l := range liabilities {
		if l.ID == id && ownedBy(level, l.IsFamily, l.Family) {
			return nil
		}
	}
	return core.Fail(MsgNotFound, fmt.Errorf("%w: liability %d", ErrNotFound, id))
}

func (h *Holdings) resolvedLiability(ctx context.Context, l api.Liability) *LiabilityView {
	types, err := h.remote.ListLiabilityTypes(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "Liability types unavailable", log.FieldError, err)
	}
	byID := make(map[int64]api.LiabilityType, len(types))
	for _, t := range types {
		byID[t.ID] = t
	}
	v := liabilityView(l, h.dictionary(ctx, h.tokens.Token()), byID)
	return &v
}

func (h *Holdings) logWrite(ctx context.Context, kind, op string, id int64, level core.Level) {
	h.logger.InfoContext(ctx, "Record written",
		log.FieldRecordKind, kind, log.FieldOperation, op, log.FieldRecordID, id,
		log.FieldLevelType, level.Type.String(), log.FieldLevelID, level.ID)
}

func (h *Holdings) logWriteFailure(ctx context.Context, kind, op string, id int64, err error) {
	h.logger.WarnContext(ctx, "Record write rejected",
		log.FieldRecordKind, kind, log.FieldOperation, op, log.FieldRecordID, id, log.FieldError, err)
}

// parseValue reads a non-negative decimal amount.
func parseValue(s string) (core.Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Money{}, core.Fail(MsgRequired, ErrRequired)
	}
	m, err := core.ParseMoney(s)
	if err != nil {
		return core.Money{}, core.Fail(MsgInvalidAmount, err)
	}
	if m.Cents < 0 {
		return core.Money{}, core.Fail(MsgInvalidAmount, core.ErrInvalidAmount)
	}
	return m, nil
}

func parseOptionalDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, core.Fail(MsgBadDate, fmt.Errorf("parse date %q: %w", s, err))
	}
	return d, nil
}

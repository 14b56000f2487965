package finance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kincore/internal/api"
	"kincore/internal/cache"
	"kincore/internal/core"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func ptr(v int64) *int64 { return &v }

var testExpenses = []map[string]any{
	{"id": 1, "name": "Аренда", "amount": "30000.00", "currency": 1, "date": "2024-03-01", "category": 10, "type": "mandatory", "family": 42, "is_family": true, "recurrence_type": "monthly",
		"payments": []map[string]any{{"id": 100, "expense": 1, "paid_date": "2024-03-05", "amount": "30000.00"}}},
	{"id": 2, "name": "Кофе", "amount": "250.50", "currency": map[string]any{"id": 2, "code": "EUR", "name": "Euro", "symbol": "€"}, "date": "2024-03-10", "category": nil, "type": "optional", "family": nil, "is_family": false},
	{"id": 3, "name": "Кино", "amount": 800, "currency": 1, "date": "2024-02-10", "category": 11, "type": "optional", "family": nil, "is_family": false, "recurrence_type": "none"},
	{"id": 4, "name": "Продукты", "amount": "5000", "currency": 1, "date": "2024-03-20", "category": 10, "type": "mandatory", "family": 42, "is_family": true},
	{"id": 5, "name": "Чужая семья", "amount": "100", "currency": 1, "date": "2024-03-20", "category": 10, "type": "mandatory", "family": 7, "is_family": true},
	{"id": 6, "name": "Такси", "amount": "400", "currency": 1, "date": "2024-03-15", "category": nil, "type": "optional", "family": nil, "is_family": false},
}

type fakeServer struct {
	*httptest.Server
	listCalls       atomic.Int32
	dictionaryCalls atomic.Int32

	mu        sync.Mutex
	lastPay   api.PaymentRequest
	payStatus int
	created   []api.NewExpense
	deleted   []string
}

func (fs *fakeServer) createdExpenses() []api.NewExpense {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]api.NewExpense(nil), fs.created...)
}

func (fs *fakeServer) lastPayment() api.PaymentRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.lastPay
}

func (fs *fakeServer) setPayStatus(status int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.payStatus = status
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{payStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/finance/expenses/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var in api.NewExpense
			_ = json.NewDecoder(r.Body).Decode(&in)
			if in.Name == "Дубль" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"name":["Такой расход уже есть."],"date":["Дата в будущем."]}`))
				return
			}
			fs.mu.Lock()
			fs.created = append(fs.created, in)
			fs.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": 50, "name": in.Name, "amount": in.Amount, "currency": in.Currency, "category": in.Category,
				"date": in.Date, "type": in.Type, "family": in.Family, "is_family": in.IsFamily,
			})
			return
		case http.MethodDelete:
			fs.mu.Lock()
			fs.deleted = append(fs.deleted, r.URL.Path)
			fs.mu.Unlock()
			if r.URL.Path == "/finance/expenses/4/" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Страница не найдена."}`))
			return
		}
		fs.listCalls.Add(1)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		end := min(offset+limit, len(testExpenses))
		if offset > len(testExpenses) {
			offset = len(testExpenses)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"count": len(testExpenses), "results": testExpenses[offset:end]})
	})
	mux.HandleFunc("/finance/expenses/4/pay/", func(w http.ResponseWriter, r *http.Request) {
		var req api.PaymentRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.lastPay = req
		w.WriteHeader(fs.payStatus)
		if fs.payStatus != http.StatusOK {
			_, _ = w.Write([]byte(`{"detail":"Оплата за эту дату уже существует"}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/finance/expenses/4/unpay/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<html>not found</html>`))
	})
	mux.HandleFunc("/finance/currencies/", func(w http.ResponseWriter, r *http.Request) {
		fs.dictionaryCalls.Add(1)
		_, _ = w.Write([]byte(`[{"id":1,"code":"RUB","name":"Рубль","symbol":"₽"},{"id":2,"code":"EUR","name":"Euro","symbol":"€"}]`))
	})
	mux.HandleFunc("/finance/categories/", func(w http.ResponseWriter, r *http.Request) {
		fs.dictionaryCalls.Add(1)
		_, _ = w.Write([]byte(`[{"id":10,"name":"Дом"},{"id":11,"name":"Досуг"}]`))
	})
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func newTestService(t *testing.T, fs *fakeServer, now time.Time) *Service {
	t.Helper()
	client := api.New(fs.URL, func() string { return "tok" })
	dicts := NewDictionaries(client, NewDictionaryCache(time.Minute), nil)
	return NewService(client, dicts, staticToken("tok"), nil).WithClock(func() time.Time { return now })
}

func ids(view *MonthView) []int64 {
	out := make([]int64, 0, len(view.Expenses))
	for _, e := range view.Expenses {
		out = append(out, e.ID)
	}
	return out
}

func TestMonthExpenses_ScopesByLevel(t *testing.T) {
	fs := newFakeServer(t)
	svc := newTestService(t, fs, time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC))
	march := Period{Year: 2024, Month: time.March}

	tests := []struct {
		name  string
		level core.Level
		want  []int64
	}{
		{"personal", core.Level{Type: core.LevelPersonal}, []int64{6, 2}},
		{"family", core.Level{Type: core.LevelFamily, ID: 42}, []int64{4, 1}},
		{"circle through family", core.Level{Type: core.LevelCircle, ID: 9, FamilyID: 42}, []int64{4, 1}},
		{"unrelated family", core.Level{Type: core.LevelFamily, ID: 99}, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := svc.MonthExpenses(context.Background(), tt.level, march)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(view))
		})
	}
}

func TestMonthExpenses_PagesThroughListing(t *testing.T) {
	fs := newFakeServer(t)
	svc := newTestService(t, fs, time.Now())

	_, err := svc.MonthExpenses(context.Background(), core.Level{Type: core.LevelPersonal}, Period{Year: 2024, Month: time.March})

	require.NoError(t, err)
	assert.Equal(t, int32(1), fs.listCalls.Load(), "six expenses fit in one page of ten")
}

func TestMonthExpenses_ResolvesAndDerives(t *testing.T) {
	fs := newFakeServer(t)
	svc := newTestService(t, fs, time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC))

	view, err := svc.MonthExpenses(context.Background(), core.Level{Type: core.LevelFamily, ID: 42}, Period{Year: 2024, Month: time.March})
	require.NoError(t, err)
	require.Len(t, view.Expenses, 2)

	rent := view.Expenses[1]
	assert.Equal(t, "Аренда", rent.Name)
	assert.Equal(t, "RUB", rent.Currency.Code)
	assert.Equal(t, "Дом", rent.Category)
	assert.Equal(t, Status{Paid: true, PaidDate: "2024-03-05", PaymentID: 100}, rent.Status)

	assert.False(t, view.Expenses[0].Status.Paid)
	assert.Equal(t, int64(3500000), view.Totals["RUB"].Cents)
}

func TestMonthExpenses_EmbeddedCurrency(t *testing.T) {
	fs := newFakeServer(t)
	svc := newTestService(t, fs, time.Now())

	view, err := svc.MonthExpenses(context.Background(), core.Level{Type: core.LevelPersonal}, Period{Year: 2024, Month: time.March})
	require.NoError(t, err)

	var coffee ExpenseView
	for _, e := range view.Expenses {
		if e.ID == 2 {
			coffee = e
		}
	}
	assert.Equal(t, "€", coffee.Currency.Symbol)
	assert.Equal(t, int64(25050), coffee.Amount.Cents)
	assert.Empty(t, coffee.Category)
}

func TestMonthExpenses_RecurringShownInLaterMonths(t *testing.T) {
	fs := newFakeServer(t)
	svc := newTestService(t, fs, time.Now())

	view, err := svc.MonthExpenses(context.Background(), core.Level{Type: core.LevelFamily, ID: 42}, Period{Year: 2024, Month: time.May})
	require.NoError(t, err)

	require.Equal(t, []int64{1}, ids(view))
	assert.False(t, view.Expenses[0].Status.Paid, "march payment does not settle may")
}

func TestMonthExpenses_RequiresSession(t *testing.T) {
	fs := newFakeServer(t)
	client := api.New(fs.URL, func() string { return "" })
	svc := NewService(client, NewDictionaries(client, NewDictionaryCache(time.Minute), nil), staticToken(""), nil)

	_, err := svc.MonthExpenses(context.Background(), core.Level{Type: core.LevelPersonal}, Period{Year: 2024, Month: 1})

	assert.Error(t, err)
	assert.Zero(t, fs.listCalls.Load())
}

func TestMonthExpenses_ListFailureFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	client := api.New(srv.URL, func() string { return "tok" })
	svc := NewService(client, NewDictionaries(client, NewDictionaryCache(time.Minute), nil), staticToken("tok"), nil)

	_, err := svc.MonthExpenses(context.Background(), core.Level{Type: core.LevelPersonal}, Period{Year: 2024, Month: 1})

	require.Error(t, err)
	assert.Equal(t, MsgLoadFailed, err.Error())
}

func TestDictionaries_CachedPerToken(t *testing.T) {
	fs := newFakeServer(t)
	client := api.New(fs.URL, func() string { return "tok" })
	dicts := NewDictionaries(client, NewDictionaryCache(time.Minute), nil)
	ctx := context.Background()

	first, err := dicts.Load(ctx, "a")
	require.NoError(t, err)
	_, err = dicts.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fs.dictionaryCalls.Load())

	_, err = dicts.Load(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int32(4), fs.dictionaryCalls.Load())

	dicts.Forget("a")
	_, err = dicts.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int32(6), fs.dictionaryCalls.Load())

	cur, ok := first.Currency(api.Reference[api.Currency](1))
	assert.True(t, ok)
	assert.Equal(t, "₽", cur.Symbol)
	_, ok = first.Currency(api.Reference[api.Currency](99))
	assert.False(t, ok)
	assert.Equal(t, "Досуг", first.CategoryName(ptr(11)))
	assert.Empty(t, first.CategoryName(nil))
}

func TestDictionaries_ExpireWithTTL(t *testing.T) {
	fs := newFakeServer(t)
	client := api.New(fs.URL, func() string { return "tok" })
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := cache.NewLRUCache[*Dictionary](4, time.Minute).WithClock(func() time.Time { return now })
	dicts := NewDictionaries(client, c, nil)

	_, err := dicts.Load(context.Background(), "a")
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = dicts.Load(context.Background(), "a")
	require.NoError(t, err)

	assert.Equal(t, int32(4), fs.dictionaryCalls.Load())
}

func TestMarkPaid(t *testing.T) {
	fs := newFakeServer(t)
	svc := newTestService(t, fs, time.Now())
	ctx := context.Background()

	require.NoError(t, svc.MarkPaid(ctx, 4, "2024-03-21", "5000,5"))
	paid := fs.lastPayment()
	assert.Equal(t, "2024-03-21", paid.PaidDate.String())
	require.NotNil(t, paid.Amount)
	assert.Equal(t, int64(500050), paid.Amount.Cents)

	require.NoError(t, svc.MarkPaid(ctx, 4, "2024-03-22", ""))
	assert.Nil(t, fs.lastPayment().Amount)

	fs.setPayStatus(http.StatusBadRequest)
	err := svc.MarkPaid(ctx, 4, "2024-03-22", "")
	assert.Equal(t, "Оплата за эту дату уже существует", err.Error())
}

func TestMarkPaid_LocalValidation(t *testing.T) {
	fs := newFakeServer(t)
	svc := newTestService(t, fs, time.Now())
	ctx := context.Background()

	tests := []struct {
		name   string
		date   string
		amount string
		want   string
	}{
		{"missing date", "", "", MsgMissingDate},
		{"bad date", "21.03.2024", "", MsgInvalidDate},
		{"bad amount", "2024-03-21", "abc", MsgInvalidAmount},
		{"negative amount", "2024-03-21", "-5", MsgInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.MarkPaid(ctx, 4, tt.date, tt.amount)
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
	assert.Nil(t, fs.lastPayment().Amount)
	assert.True(t, fs.lastPayment().PaidDate.IsZero())
}

func TestUnmark_Fallback(t *testing.T) {
	fs := newFakeServer(t)
	svc := newTestService(t, fs, time.Now())

	err := svc.Unmark(context.Background(), 4, "2024-03-05")

	require.Error(t, err)
	assert.Equal(t, MsgUnpayFailed, err.Error())
}

func TestInScope(t *testing.T) {
	familyExpense := api.Expense{IsFamily: true, Family: ptr(42)}
	personalExpense := api.Expense{}

	assert.True(t, InScope(core.Level{Type: core.LevelPersonal}, personalExpense))
	assert.False(t, InScope(core.Level{Type: core.LevelPersonal}, familyExpense))
	assert.True(t, InScope(core.Level{Type: core.LevelFamily, ID: 42}, familyExpense))
	assert.False(t, InScope(core.Level{Type: core.LevelFamily, ID: 42}, api.Expense{IsFamily: true}))
	assert.True(t, InScope(core.Level{Type: core.LevelCircle, ID: 1, FamilyID: 42}, familyExpense))
}

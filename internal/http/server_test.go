package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kincore/internal/api"
	"kincore/internal/core"
	"kincore/internal/events"
	"kincore/internal/finance"
	"kincore/internal/levels"
	"kincore/internal/membership"
	"kincore/internal/middleware/ratelimit"
	"kincore/internal/middleware/trace"
	"kincore/internal/session"
	"kincore/internal/storage"
)

// fakeKinCore is a minimal stand-in for the remote API.
type fakeKinCore struct {
	mu       sync.Mutex
	families []core.Family
	logouts  int
	expenses []api.NewExpense
}

func (f *fakeKinCore) handler() http.Handler {
	mux := http.NewServeMux()
	user := map[string]any{"id": 1, "username": "anna", "first_name": "Анна", "last_name": "Иванова"}

	mux.HandleFunc("/users/login/", func(w http.ResponseWriter, r *http.Request) {
		var creds api.Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "secret" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Неверный логин или пароль"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "ok", "token": "tok-1", "user": user})
	})
	mux.HandleFunc("/users/logout/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logouts++
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	mux.HandleFunc("/users/update/", func(w http.ResponseWriter, r *http.Request) {
		var patch map[string]string
		_ = json.NewDecoder(r.Body).Decode(&patch)
		updated := map[string]any{"id": 1, "username": "anna", "first_name": patch["first_name"], "last_name": "Иванова"}
		writeJSON(w, http.StatusOK, map[string]any{"message": "ok", "user": updated})
	})
	mux.HandleFunc("/nucfamily/families/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Method == http.MethodPost {
			var g api.NewGroup
			_ = json.NewDecoder(r.Body).Decode(&g)
			f.families = append(f.families, core.Family{ID: 100, Name: g.Name, IsAdmin: true})
			writeJSON(w, http.StatusCreated, map[string]string{"name": g.Name, "description": g.Description})
			return
		}
		writeJSON(w, http.StatusOK, f.families)
	})
	mux.HandleFunc("/nucfamily/families/search_by_code/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["join_code"] != "ABC123" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Код не найден"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": 42, "name": "Ивановы"})
	})
	mux.HandleFunc("/nucfamily/families/42/join/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["join_password"] != "secret" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Неверный пароль"})
			return
		}
		f.mu.Lock()
		f.families = append(f.families, core.Family{
			ID: 42, Name: "Ивановы", UserCanJoinCircles: true,
			Circles: []core.CircleSummary{{ID: 7, Name: "Большая семья"}},
		})
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	mux.HandleFunc("/finance/expenses/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var in api.NewExpense
			_ = json.NewDecoder(r.Body).Decode(&in)
			f.mu.Lock()
			f.expenses = append(f.expenses, in)
			f.mu.Unlock()
			writeJSON(w, http.StatusCreated, map[string]any{
				"id": 31, "name": in.Name, "amount": in.Amount, "currency": in.Currency,
				"date": in.Date, "type": in.Type, "family": in.Family, "is_family": in.IsFamily,
			})
		case http.MethodDelete:
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Страница не найдена."})
		default:
			writeJSON(w, http.StatusOK, []any{})
		}
	})
	mux.HandleFunc("/finance/assets/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 1, "name": "Квартира", "type": 1, "purchase_value": "100.00", "purchase_currency": 1,
				"current_value": "150.00", "current_currency": 1, "family": 42, "is_family": true},
			{"id": 2, "name": "Ноутбук", "type": 1, "purchase_value": "10.00", "purchase_currency": 1,
				"current_value": "5.00", "current_currency": 1, "family": nil, "is_family": false},
		})
	})
	mux.HandleFunc("/finance/liabilities/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	})
	mux.HandleFunc("/finance/asset-types/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 1, "name": "Недвижимость"}})
	})
	mux.HandleFunc("/finance/liability-types/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	})
	mux.HandleFunc("/finance/currencies/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	})
	mux.HandleFunc("/finance/categories/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	})
	return mux
}

type testEnv struct {
	server   *Server
	remote   *fakeKinCore
	recorder *events.Recorder
}

func newTestEnv(t *testing.T, rl ratelimit.Config) *testEnv {
	t.Helper()

	remote := &fakeKinCore{}
	upstream := httptest.NewServer(remote.handler())
	t.Cleanup(upstream.Close)

	store := storage.NewMemoryStore()
	rec := &events.Recorder{}

	var sess *session.Session
	client := api.New(upstream.URL, func() string { return sess.Token() })
	sess = session.New(store, client, nil)
	provider := levels.NewProvider(sess, client, store, rec, nil)
	sess.OnChange(provider.HandleSessionChange)

	dicts := finance.NewDictionaries(client, finance.NewDictionaryCache(time.Minute), nil)
	srv := NewServer(Options{Addr: ":0", RateLimit: rl}, Services{
		Session:      sess,
		Auth:         session.NewAuthenticator(sess, client, rec, nil),
		Levels:       provider,
		Membership:   membership.New(client, provider, rec, nil),
		Finance:      finance.NewService(client, dicts, sess, nil),
		Holdings:     finance.NewHoldings(client, dicts, sess, nil),
		Dictionaries: dicts,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &testEnv{server: srv, remote: remote, recorder: rec}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) login(t *testing.T) sessionResponse {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/session/login", loginRequest{Login: "anna", Password: "secret"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	env.server.svc.Ready = func(context.Context) error { return errors.New("store closed") }
	rr := env.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMiddlewareHeaders(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	rr := env.do(t, http.MethodGet, "/api/session", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(trace.HeaderRequestID))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
}

func TestSession_Unauthenticated(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	rr := env.do(t, http.MethodGet, "/api/session", nil)
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Authenticated)
	assert.Nil(t, resp.Levels)

	for _, path := range []string{"/api/expenses", "/api/membership/circle-gate"} {
		rr := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
		assert.Equal(t, CodeUnauthenticated, decodeError(t, rr).Code)
	}
	rr = env.do(t, http.MethodPost, "/api/levels/select", core.LevelRef{Type: core.LevelPersonal})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	rr := env.do(t, http.MethodPost, "/api/session/login", loginRequest{Login: "anna"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, msgMissingCredentials, decodeError(t, rr).Error)

	rr = env.do(t, http.MethodPost, "/api/session/login", loginRequest{Login: "anna", Password: "wrong"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Неверный логин или пароль", decodeError(t, rr).Error)

	resp := env.login(t)
	assert.True(t, resp.Authenticated)
	require.NotNil(t, resp.User)
	assert.Equal(t, "Анна", resp.User.FirstName)
	require.NotNil(t, resp.Levels)
	require.Len(t, resp.Levels.Directory, 1)
	assert.Equal(t, "Анна Иванова", resp.Levels.Directory[0].Title)
	assert.Contains(t, env.recorder.Types(), events.SessionLogin)
}

func TestLogin_UnknownFieldsRejected(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	rr := env.do(t, http.MethodPost, "/api/session/login", map[string]string{"login": "anna", "password": "secret", "admin": "1"})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, msgInvalidBody, decodeError(t, rr).Error)
}

func TestJoinFamilyThenCircleGate(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	env.login(t)

	rr := env.do(t, http.MethodGet, "/api/membership/circle-gate", nil)
	var gate circleGateResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &gate))
	assert.False(t, gate.Allowed)
	assert.Equal(t, CodeFamilyRequired, gate.Code)
	assert.Equal(t, membership.MsgFamilyRequired, gate.Error)

	rr = env.do(t, http.MethodPost, "/api/membership/circle/join", joinRequest{Code: "C1", Password: "x"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/membership/family/join", joinRequest{Code: "ABC123", Password: "secret"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var joined membershipResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &joined))
	assert.Equal(t, int64(42), joined.Group.ID)
	assert.True(t, joined.Levels.HasFamily)
	assert.True(t, joined.Levels.HasCircle)
	assert.Len(t, joined.Levels.Directory, 3)

	rr = env.do(t, http.MethodGet, "/api/membership/circle-gate", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &gate))
	assert.True(t, gate.Allowed)
}

func TestJoin_Failures(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	env.login(t)

	tests := []struct {
		name       string
		path       string
		body       joinRequest
		wantStatus int
		wantError  string
	}{
		{"unknown code", "/api/membership/family/join", joinRequest{Code: "NOPE", Password: "secret"}, http.StatusNotFound, "Код не найден"},
		{"wrong password", "/api/membership/family/join", joinRequest{Code: "ABC123", Password: "bad"}, http.StatusBadRequest, "Неверный пароль"},
		{"missing code", "/api/membership/family/join", joinRequest{Password: "secret"}, http.StatusBadRequest, membership.MsgMissingCode},
		{"invalid kind", "/api/membership/personal/join", joinRequest{Code: "ABC123", Password: "secret"}, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decodeError(t, rr).Error)
			}
		})
	}
}

func TestCreateFamily(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	env.login(t)

	rr := env.do(t, http.MethodPost, "/api/membership/family/create", createRequest{Name: "  "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, membership.MsgMissingName, decodeError(t, rr).Error)

	rr = env.do(t, http.MethodPost, "/api/membership/family/create", createRequest{Name: "Петровы"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created membershipResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "Петровы", created.Group.Name)
	assert.True(t, created.Levels.HasFamily)
	assert.Contains(t, env.recorder.Types(), events.MembershipCreated)
}

func TestSelectLevel(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	env.login(t)
	env.do(t, http.MethodPost, "/api/membership/family/join", joinRequest{Code: "ABC123", Password: "secret"})

	tests := []struct {
		ref        core.LevelRef
		wantStatus int
		wantRoute  string
	}{
		{core.LevelRef{Type: core.LevelFamily, ID: 42}, http.StatusOK, "/family"},
		{core.LevelRef{Type: core.LevelCircle, ID: 7}, http.StatusOK, "/circle/7"},
		{core.LevelRef{Type: core.LevelPersonal}, http.StatusOK, "/main"},
		{core.LevelRef{Type: core.LevelFamily, ID: 999}, http.StatusNotFound, ""},
		{core.LevelRef{Type: "team", ID: 1}, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		rr := env.do(t, http.MethodPost, "/api/levels/select", tt.ref)
		assert.Equal(t, tt.wantStatus, rr.Code, "%+v: %s", tt.ref, rr.Body.String())
		if tt.wantRoute != "" {
			var nav levels.Navigation
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &nav))
			assert.Equal(t, tt.wantRoute, nav.Route)
		}
	}
}

func TestLevelsCarrySelectorFields(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	env.login(t)
	env.do(t, http.MethodPost, "/api/membership/family/join", joinRequest{Code: "ABC123", Password: "secret"})

	rr := env.do(t, http.MethodGet, "/api/levels", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Directory []struct {
			Type    core.LevelType `json:"type"`
			Key     string         `json:"key"`
			Icon    string         `json:"icon"`
			Caption string         `json:"caption"`
		} `json:"directory"`
		Current struct {
			Key string `json:"key"`
		} `json:"current"`
		HasFamily bool `json:"has_family"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	require.Len(t, resp.Directory, 3)
	assert.Equal(t, "personal", resp.Current.Key)
	assert.True(t, resp.HasFamily)
	keys := []string{resp.Directory[0].Key, resp.Directory[1].Key, resp.Directory[2].Key}
	assert.Equal(t, []string{"personal", "family-42", "circle-7"}, keys)
	assert.Equal(t, "/img/icons/nucfamily_icon.png", resp.Directory[1].Icon)
	assert.Equal(t, "Семейный круг", resp.Directory[2].Caption)
}

func TestProfileRenamesPersonalLevel(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	env.login(t)

	name := "Мария"
	rr := env.do(t, http.MethodPatch, "/api/session/profile", api.ProfilePatch{FirstName: &name})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Мария", resp.User.FirstName)
	assert.Equal(t, "Мария Иванова", resp.Levels.Current.Title)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	env.login(t)

	rr := env.do(t, http.MethodPost, "/api/session/logout", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Authenticated)
	env.remote.mu.Lock()
	assert.Equal(t, 1, env.remote.logouts)
	env.remote.mu.Unlock()

	rr = env.do(t, http.MethodGet, "/api/levels", nil)
	var st levels.State
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, core.LevelPersonal, st.Current.Type)
	assert.False(t, st.HasFamily)
}

func TestExpenses(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	env.login(t)

	rr := env.do(t, http.MethodGet, "/api/expenses?year=2024&month=13", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/expenses?year=2024&month=3", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var view finance.MonthView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, 2024, view.Year)
	assert.Equal(t, 3, view.Month)
	assert.Empty(t, view.Expenses)

	rr = env.do(t, http.MethodPost, "/api/expenses/abc/pay", paymentRequest{PaidDate: "2024-03-01"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/expenses/5/pay", paymentRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, finance.MsgMissingDate, decodeError(t, rr).Error)
}

func TestExpenseCreateAndDelete(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	env.login(t)

	rr := env.do(t, http.MethodPost, "/api/expenses", finance.ExpenseInput{Name: "Кофе"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, finance.MsgRequired, decodeError(t, rr).Error)

	rr = env.do(t, http.MethodPost, "/api/expenses", finance.ExpenseInput{
		Name: "Кофе", Amount: "250", Currency: 1, Date: "2024-03-02", Type: finance.ExpenseOptional,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var view finance.ExpenseView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, int64(31), view.ID)

	env.remote.mu.Lock()
	require.Len(t, env.remote.expenses, 1)
	assert.False(t, env.remote.expenses[0].IsFamily, "created at the personal level")
	env.remote.mu.Unlock()

	rr = env.do(t, http.MethodDelete, "/api/expenses/31", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	resp := decodeError(t, rr)
	assert.Equal(t, CodeNotFound, resp.Code)
	assert.Equal(t, finance.MsgNotFound, resp.Error)
}

func TestAssetsFollowCurrentLevel(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	env.login(t)

	rr := env.do(t, http.MethodGet, "/api/assets", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var view finance.AssetsView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.Len(t, view.Assets, 1)
	assert.Equal(t, "Ноутбук", view.Assets[0].Name)

	// The family asset cannot be deleted from the personal level.
	rr = env.do(t, http.MethodDelete, "/api/assets/1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = env.do(t, http.MethodDelete, "/api/assets/2", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, http.MethodPatch, "/api/assets/2", finance.AssetInput{Name: "Ноутбук"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/liabilities", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var liabilities finance.LiabilitiesView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &liabilities))
	assert.Empty(t, liabilities.Liabilities)

	rr = env.do(t, http.MethodPost, "/api/liabilities", finance.LiabilityInput{Name: "Займ", PaymentType: "balloon"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRateLimitOnMutations(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{RequestsPerSecond: 0.001, Burst: 1})

	first := env.do(t, http.MethodPost, "/api/session/login", loginRequest{Login: "anna", Password: "wrong"})
	second := env.do(t, http.MethodPost, "/api/session/login", loginRequest{Login: "anna", Password: "wrong"})
	read := env.do(t, http.MethodGet, "/api/session", nil)

	assert.Equal(t, http.StatusBadRequest, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, read.Code)
}

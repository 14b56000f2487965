package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMonthParams(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		query     url.Values
		wantYear  int
		wantMonth time.Month
		wantErr   bool
	}{
		{"defaults to now", url.Values{}, 2024, time.June, false},
		{"explicit values", url.Values{"year": {"2023"}, "month": {"2"}}, 2023, time.February, false},
		{"month only", url.Values{"month": {"11"}}, 2024, time.November, false},
		{"non-numeric month", url.Values{"month": {"abc"}}, 0, 0, true},
		{"month out of range", url.Values{"month": {"0"}}, 0, 0, true},
		{"non-numeric year", url.Values{"year": {"twenty"}}, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMonthParams(tt.query, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantYear, got.Year)
			assert.Equal(t, tt.wantMonth, got.Month)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"valid", `{"name":"Ивановы"}`, "Ивановы", false},
		{"empty body", ``, "", false},
		{"unknown field", `{"name":"x","extra":1}`, "", true},
		{"trailing data", `{"name":"x"}{"name":"y"}`, "", true},
		{"malformed", `{"name":`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got body
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.input))
			err := decodeJSON(req, &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestPathID(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.raw)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			got, err := pathID(req, "id")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Ивановы  ", "Ивановы"},
		{"a\x00b\x07c", "abc"},
		{"line1\nline2\ttab", "line1\nline2\ttab"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeInput(tt.in), "sanitizeInput(%q)", tt.in)
	}
}

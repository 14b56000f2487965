package core

import (
	"encoding/json"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	ok := map[string]int64{
		"0.01":   1,
		"1":      100,
		"1.2":    120,
		"1,23":   123,
		"12.345": 1235,
		"12.344": 1234,
		" 7.50 ": 750,
	}
	for in, want := range ok {
		got, err := ParseDecimalToCents(in)
		if err != nil {
			t.Fatalf("%q unexpected error: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q got %d want %d", in, got, want)
		}
	}
	bad := []string{"", "0", "0.00", "-1", "+2", "abc", "1.2.3", "1.a"}
	for _, in := range bad {
		if _, err := ParseDecimalToCents(in); err == nil {
			t.Fatalf("%q expected error", in)
		}
	}
}

func TestParseMoney(t *testing.T) {
	cases := map[string]int64{
		"1500.00": 150000,
		"-12.5":   -1250,
		"0":       0,
		"+3":      300,
	}
	for in, want := range cases {
		m, err := ParseMoney(in)
		if err != nil {
			t.Fatalf("%q unexpected error: %v", in, err)
		}
		if m.Cents != want {
			t.Fatalf("%q got %d want %d", in, m.Cents, want)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	var payload struct {
		A Money `json:"a"`
		B Money `json:"b"`
		C Money `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":"1500.00","b":12.5,"c":null}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.A.Cents != 150000 || payload.B.Cents != 1250 || payload.C.Cents != 0 {
		t.Fatalf("unexpected amounts: %+v", payload)
	}
	out, err := json.Marshal(Money{Cents: -705})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `"-7.05"` {
		t.Fatalf("got %s", out)
	}
}

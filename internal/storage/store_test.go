package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func storeBackends(t *testing.T) map[string]Store {
	t.Helper()

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kincore.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()

	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := s.Get(ctx, KeyToken); err != nil || ok {
				t.Fatalf("Get() on empty store = ok %v, err %v", ok, err)
			}

			if err := s.Set(ctx, KeyToken, "abc"); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if err := s.Set(ctx, KeyToken, "def"); err != nil {
				t.Fatalf("Set() overwrite error = %v", err)
			}
			if err := s.Set(ctx, KeyUser, `{"id":1}`); err != nil {
				t.Fatalf("Set() error = %v", err)
			}

			got, ok, err := s.Get(ctx, KeyToken)
			if err != nil || !ok || got != "def" {
				t.Errorf("Get(token) = %q, %v, %v; want def, true, nil", got, ok, err)
			}

			if err := s.Delete(ctx, KeyToken, KeyUser, "missing"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			for _, k := range []string{KeyToken, KeyUser} {
				if _, ok, _ := s.Get(ctx, k); ok {
					t.Errorf("key %s still present after Delete", k)
				}
			}
		})
	}
}

func TestStore_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()

	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.Set(ctx, KeySelectedLevel, `{"type":"family"}`)
			_ = s.Set(ctx, KeyToken, "tok")
			_ = s.Delete(ctx, KeyToken)

			got, ok, err := s.Get(ctx, KeySelectedLevel)
			if err != nil || !ok || got != `{"type":"family"}` {
				t.Errorf("selectedLevel = %q, %v, %v", got, ok, err)
			}
		})
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "kincore.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := s.Set(ctx, KeyToken, "persisted"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	s.Close()

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, ok, err := reopened.Get(ctx, KeyToken)
	if err != nil || !ok || got != "persisted" {
		t.Errorf("Get() after reopen = %q, %v, %v", got, ok, err)
	}
}

func TestStore_Closed(t *testing.T) {
	ctx := context.Background()

	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			s.Close()
			if err := s.Set(ctx, KeyToken, "x"); !errors.Is(err, ErrClosed) {
				t.Errorf("Set() after Close error = %v, want ErrClosed", err)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		backend BackendType
		path    string
		wantErr bool
	}{
		{"memory", MemoryBackend, "", false},
		{"sqlite", SQLiteBackend, filepath.Join(t.TempDir(), "k.db"), false},
		{"sqlite without path", SQLiteBackend, "", true},
		{"unknown", BackendType("redis"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.backend, tt.path, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if s != nil {
				s.Close()
			}
		})
	}
}

func TestBackendType_IsValid(t *testing.T) {
	for _, b := range BackendTypes() {
		if !b.IsValid() {
			t.Errorf("%s should be valid", b)
		}
	}
	if BackendType("postgres").IsValid() {
		t.Error("postgres should not be valid")
	}
}

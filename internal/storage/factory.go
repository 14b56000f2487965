package storage

import (
	"fmt"
	"log/slog"
)

// BackendType selects the Store implementation.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (b BackendType) String() string {
	return string(b)
}

func (b BackendType) IsValid() bool {
	switch b {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// BackendTypes returns all valid backend types
func BackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, MemoryBackend}
}

// Open builds the Store for the given backend. dbPath is only used by sqlite.
func Open(backend BackendType, dbPath string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch backend {
	case SQLiteBackend:
		if dbPath == "" {
			return nil, fmt.Errorf("SQLite database path is required for sqlite backend")
		}
		s, err := NewSQLiteStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		logger.Info("Using SQLite session store", "path", dbPath)
		return s, nil
	case MemoryBackend:
		logger.Warn("Using in-memory session store; state will not survive restarts")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("invalid backend type: %s", backend)
	}
}

// Package session owns the authentication token and the signed-in user's
// profile, and mirrors both into the durable store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"kincore/internal/core"
	"kincore/internal/log"
	"kincore/internal/storage"
)

var ErrNotAuthenticated = errors.New("not authenticated")

// Invalidator revokes a token on the remote side.
type Invalidator interface {
	Logout(ctx context.Context, token string) error
}

type ChangeKind int

const (
	ChangeLogin ChangeKind = iota + 1
	ChangeLogout
	ChangeProfile
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeLogin:
		return "login"
	case ChangeLogout:
		return "logout"
	case ChangeProfile:
		return "profile"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Token         string     `json:"-"`
	User          *core.User `json:"user"`
	Authenticated bool       `json:"authenticated"`
}

type Listener func(ctx context.Context, kind ChangeKind, snap Snapshot)

type Session struct {
	store  storage.Store
	remote Invalidator
	logger *log.Logger

	mu        sync.RWMutex
	token     string
	user      *core.User
	listeners []Listener
}

func New(store storage.Store, remote Invalidator, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Nop()
	}
	return &Session{
		store:  store,
		remote: remote,
		logger: logger.WithComponent(log.ComponentSession),
	}
}

// OnChange registers l to run after every login, logout and profile update.
func (s *Session) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Restore rebuilds the in-memory state from the store. A missing token
// means unauthenticated whatever user blob is stored.
func (s *Session) Restore(ctx context.Context) error {
	token, ok, err := s.store.Get(ctx, storage.KeyToken)
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if !ok || token == "" {
		s.mu.Lock()
		s.token, s.user = "", nil
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "No stored session", log.FieldOperation, log.OpRestore)
		return nil
	}

	var user *core.User
	raw, ok, err := s.store.Get(ctx, storage.KeyUser)
	if err != nil {
		return fmt.Errorf("read user: %w", err)
	}
	if ok && raw != "" {
		var u core.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			s.logger.WarnContext(ctx, "Stored user profile is unreadable", log.FieldError, err)
		} else {
			user = &u
		}
	}

	s.mu.Lock()
	s.token, s.user = token, user
	s.mu.Unlock()

	fields := []any{log.FieldOperation, log.OpRestore}
	if user != nil {
		fields = append(fields, log.FieldUserID, user.ID)
	}
	s.logger.InfoContext(ctx, "Session restored", fields...)
	return nil
}

// Login stores token and user together. The token format is not checked.
func (s *Session) Login(ctx context.Context, token string, user core.User) error {
	blob, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.store.Set(ctx, storage.KeyToken, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	if err := s.store.Set(ctx, storage.KeyUser, string(blob)); err != nil {
		_ = s.store.Delete(ctx, storage.KeyToken)
		return fmt.Errorf("persist user: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.user = &user
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Signed in", log.FieldOperation, log.OpLogin, log.FieldUserID, user.ID)
	s.notify(ctx, ChangeLogin)
	return nil
}

// Logout asks the remote side to revoke the token, ignoring any failure, then
// clears local state. The local clear happens even when persisting it fails.
func (s *Session) Logout(ctx context.Context) error {
	token := s.Token()

	if token != "" && s.remote != nil {
		if err := s.remote.Logout(ctx, token); err != nil {
			s.logger.WarnContext(ctx, "Remote logout failed; clearing local session anyway",
				log.FieldOperation, log.OpLogout, log.FieldError, err)
		}
	}

	s.mu.Lock()
	s.token, s.user = "", nil
	s.mu.Unlock()

	err := s.store.Delete(ctx, storage.KeyToken, storage.KeyUser)

	s.logger.InfoContext(ctx, "Signed out", log.FieldOperation, log.OpLogout)
	s.notify(ctx, ChangeLogout)

	if err != nil {
		return fmt.Errorf("clear stored session: %w", err)
	}
	return nil
}

// UpdateUser replaces the stored profile and leaves the token alone.
func (s *Session) UpdateUser(ctx context.Context, user core.User) error {
	if !s.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	blob, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.store.Set(ctx, storage.KeyUser, string(blob)); err != nil {
		return fmt.Errorf("persist user: %w", err)
	}

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()

	s.notify(ctx, ChangeProfile)
	return nil
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the profile, or nil when signed out.
func (s *Session) User() *core.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Token: s.token, Authenticated: s.token != ""}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

func (s *Session) notify(ctx context.Context, kind ChangeKind) {
	snap := s.Snapshot()
	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, l := range listeners {
		l(ctx, kind, snap)
	}
}

// Package events fans out session and level changes to other services.
// Publishing is best effort: failures are logged and never reach the caller.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"kincore/internal/core"
	"kincore/internal/log"
)

type Type string

const (
	SessionLogin      Type = "session.login"
	SessionLogout     Type = "session.logout"
	LevelSelected     Type = "level.selected"
	LevelsRefreshed   Type = "levels.refreshed"
	MembershipJoined  Type = "membership.joined"
	MembershipCreated Type = "membership.created"
)

type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	UserID     int64          `json:"user_id,omitempty"`
	Level      *core.LevelRef `json:"level,omitempty"`
	Route      string         `json:"route,omitempty"`
	GroupID    int64          `json:"group_id,omitempty"`
	Count      int            `json:"count,omitempty"`
}

func New(t Type) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
	}
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func FromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Emit publishes e and logs, rather than returns, any failure.
func Emit(ctx context.Context, p Publisher, logger *log.Logger, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil && logger != nil {
		logger.WarnContext(ctx, "Failed to publish event",
			log.FieldEventType, string(e.Type),
			log.FieldOperation, log.OpPublish,
			log.FieldError, err)
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists recorded event types in publish order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

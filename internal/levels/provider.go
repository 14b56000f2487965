package levels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"kincore/internal/core"
	"kincore/internal/events"
	"kincore/internal/log"
	"kincore/internal/session"
	"kincore/internal/storage"
)

var ErrUnknownLevel = errors.New("level is not in the directory")

type FamilyLister interface {
	ListFamilies(ctx context.Context) ([]core.Family, error)
}

// Identity is what the provider needs to know about the session.
type Identity interface {
	IsAuthenticated() bool
	User() *core.User
}

// NavListener receives every successful selection.
type NavListener func(ctx context.Context, nav Navigation)

// Navigation is the outcome of a selection.
type Navigation struct {
	Level core.Level `json:"level"`
	Route string     `json:"route"`
}

// State is a consistent copy of everything the provider exposes.
type State struct {
	Directory      []core.Level `json:"directory"`
	Current        core.Level   `json:"current"`
	Loading        bool         `json:"loading"`
	HasFamily      bool         `json:"has_family"`
	HasCircle      bool         `json:"has_circle"`
	CanJoinCircles bool         `json:"can_join_circles"`
}

// Provider owns the level directory and the current selection.
//
// Every Refresh takes a sequence number; a response is applied only if no
// newer Refresh was issued meanwhile and the session has not changed since
// the request left.
type Provider struct {
	identity  Identity
	remote    FamilyLister
	store     storage.Store
	publisher events.Publisher
	logger    *log.Logger

	mu             sync.Mutex
	directory      []core.Level
	selection      core.Level
	inflight       int
	issued         uint64
	generation     uint64
	restorePending bool
	navListeners   []NavListener

	persistMu sync.Mutex
}

func NewProvider(identity Identity, remote FamilyLister, store storage.Store, publisher events.Publisher, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.Nop()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	personal := core.PersonalLevel(identity.User())
	return &Provider{
		identity:       identity,
		remote:         remote,
		store:          store,
		publisher:      publisher,
		logger:         logger.WithComponent(log.ComponentLevels),
		directory:      []core.Level{personal},
		selection:      personal,
		restorePending: true,
	}
}

// OnNavigate registers fn to receive every selection.
func (p *Provider) OnNavigate(fn NavListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navListeners = append(p.navListeners, fn)
}

// Refresh reloads the directory from the remote family listing. It is a
// no-op without a session. Failures are logged and leave the directory as it was.
func (p *Provider) Refresh(ctx context.Context) {
	if !p.identity.IsAuthenticated() {
		return
	}

	p.mu.Lock()
	p.issued++
	seq := p.issued
	gen := p.generation
	p.inflight++
	p.mu.Unlock()

	families, err := p.remote.ListFamilies(ctx)

	if err != nil {
		p.mu.Lock()
		p.inflight--
		p.mu.Unlock()
		p.logger.ErrorContext(ctx, "Failed to load families; keeping previous directory",
			log.FieldOperation, log.OpRefresh, log.FieldSequence, seq, log.FieldError, err)
		return
	}

	persisted, hasPersisted := p.persistedSelection(ctx)
	dir := BuildDirectory(p.identity.User(), families)

	p.mu.Lock()
	p.inflight--
	if seq != p.issued || gen != p.generation {
		p.mu.Unlock()
		p.logger.DebugContext(ctx, "Discarding superseded family listing",
			log.FieldOperation, log.OpRefresh, log.FieldSequence, seq)
		return
	}

	selection := p.selection
	if p.restorePending {
		p.restorePending = false
		if hasPersisted {
			if l, ok := find(dir, persisted); ok {
				selection = l
			}
		}
	}
	if l, ok := find(dir, selection.Ref()); ok {
		selection = l
	} else {
		p.logger.InfoContext(ctx, "Selected level no longer available; falling back to personal",
			log.NewFields().WithLevel(selection.Type.String(), selection.ID).ToSlice()...)
		selection = dir[0]
	}

	p.directory = dir
	p.selection = selection
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "Level directory refreshed",
		log.FieldOperation, log.OpRefresh,
		log.FieldSequence, seq,
		log.FieldDirectorySize, len(dir),
		log.FieldLevelType, selection.Type.String())

	e := events.New(events.LevelsRefreshed)
	e.Count = len(dir)
	ref := selection.Ref()
	e.Level = &ref
	events.Emit(ctx, p.publisher, p.logger, e)
}

// Select makes ref the current level, persists it and returns where to navigate.
// Non-personal levels must be in the last known directory.
func (p *Provider) Select(ctx context.Context, ref core.LevelRef) (Navigation, error) {
	if err := ref.Validate(); err != nil {
		return Navigation{}, fmt.Errorf("%w: %v", ErrUnknownLevel, err)
	}

	// persistMu orders the in-memory selection and its store write, so the
	// last Select wins in both.
	p.persistMu.Lock()
	p.mu.Lock()
	l, ok := find(p.directory, ref)
	if !ok {
		p.mu.Unlock()
		p.persistMu.Unlock()
		return Navigation{}, fmt.Errorf("%w: %s %d", ErrUnknownLevel, ref.Type, ref.ID)
	}
	p.selection = l
	listeners := append([]NavListener(nil), p.navListeners...)
	p.mu.Unlock()

	if blob, err := json.Marshal(l.Ref()); err == nil {
		if err := p.store.Set(ctx, storage.KeySelectedLevel, string(blob)); err != nil {
			p.logger.WarnContext(ctx, "Failed to persist selected level", log.FieldError, err)
		}
	}
	p.persistMu.Unlock()

	nav := Navigation{Level: l, Route: RouteFor(l)}
	p.logger.InfoContext(ctx, "Level selected",
		append(log.NewFields().WithLevel(l.Type.String(), l.ID).WithOperation(log.OpSelect).ToSlice(), "route", nav.Route)...)

	for _, fn := range listeners {
		fn(ctx, nav)
	}

	e := events.New(events.LevelSelected)
	r := l.Ref()
	e.Level = &r
	e.Route = nav.Route
	if u := p.identity.User(); u != nil {
		e.UserID = u.ID
	}
	events.Emit(ctx, p.publisher, p.logger, e)

	return nav, nil
}

// HandleSessionChange keeps the provider in step with the session. It has
// the session.Listener signature.
func (p *Provider) HandleSessionChange(ctx context.Context, kind session.ChangeKind, snap session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch kind {
	case session.ChangeLogin, session.ChangeLogout:
		personal := core.PersonalLevel(snap.User)
		p.generation++
		p.directory = []core.Level{personal}
		p.selection = personal
		p.restorePending = kind == session.ChangeLogin
	case session.ChangeProfile:
		personal := core.PersonalLevel(snap.User)
		if len(p.directory) > 0 && p.directory[0].Type == core.LevelPersonal {
			p.directory[0] = personal
		}
		if p.selection.Type == core.LevelPersonal {
			p.selection = personal
		}
	}
}

func (p *Provider) persistedSelection(ctx context.Context) (core.LevelRef, bool) {
	raw, ok, err := p.store.Get(ctx, storage.KeySelectedLevel)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to read persisted level", log.FieldError, err)
		return core.LevelRef{}, false
	}
	if !ok || raw == "" {
		return core.LevelRef{}, false
	}
	var ref core.LevelRef
	if err := json.Unmarshal([]byte(raw), &ref); err != nil || ref.Validate() != nil {
		p.logger.WarnContext(ctx, "Ignoring malformed persisted level", "value", raw)
		return core.LevelRef{}, false
	}
	return ref, true
}

func (p *Provider) Current() core.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selection
}

func (p *Provider) Directory() []core.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.Level(nil), p.directory...)
}

func (p *Provider) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight > 0
}

func (p *Provider) HasFamily() bool      { return HasFamily(p.Directory()) }
func (p *Provider) HasCircle() bool      { return HasCircle(p.Directory()) }
func (p *Provider) CanJoinCircles() bool { return CanJoinCircles(p.Directory()) }

// Families returns the family entries of the directory.
func (p *Provider) Families() []core.Level { return filter(p.Directory(), core.LevelFamily) }

func (p *Provider) Circles() []core.Level { return filter(p.Directory(), core.LevelCircle) }

// Lookup returns the directory entry for ref.
func (p *Provider) Lookup(ref core.LevelRef) (core.Level, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return find(p.directory, ref)
}

func (p *Provider) State() State {
	p.mu.Lock()
	dir := append([]core.Level(nil), p.directory...)
	st := State{Directory: dir, Current: p.selection, Loading: p.inflight > 0}
	p.mu.Unlock()

	st.HasFamily = HasFamily(dir)
	st.HasCircle = HasCircle(dir)
	st.CanJoinCircles = CanJoinCircles(dir)
	return st
}

// Package membership runs the join, create and credential flows for families
// and circles. Each successful mutation refreshes the level directory once.
package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kincore/internal/api"
	"kincore/internal/core"
	"kincore/internal/events"
	"kincore/internal/log"
)

var (
	ErrFamilyRequired   = errors.New("family membership required before joining a circle")
	ErrCirclePermission = errors.New("no family membership may join circles")
	ErrMissingCode      = errors.New("join code and password are required")
	ErrNotAdmin         = errors.New("only admins may regenerate credentials")
)

// Messages shown to the user.
const (
	MsgCodeNotFound     = "Код не найден"
	MsgJoinFailed       = "Ошибка присоединения"
	MsgCreateFailed     = "Ошибка создания"
	MsgRegenerateFailed = "Ошибка генерации"
	MsgMissingCode      = "Необходимо указать код присоединения"
	MsgMissingName      = "Необходимо указать название"
	MsgNotAdmin         = "Только администраторы могут регенерировать учетные данные"
	MsgFamilyRequired   = "Для присоединения к семейному кругу вы должны сначала присоединиться к существующей семье или создать свою."
	MsgCirclePermission = "У вас нет прав для присоединения семьи к кругу. Обратитесь к администратору вашей семьи."
)

type Remote interface {
	SearchByCode(ctx context.Context, kind core.LevelType, code string) (*api.Group, error)
	Join(ctx context.Context, kind core.LevelType, id int64, password string) (*api.JoinResult, error)
	CreateGroup(ctx context.Context, kind core.LevelType, g api.NewGroup) (*api.Group, error)
	RegenerateCredentials(ctx context.Context, kind core.LevelType, id int64) (*api.RegeneratedCredentials, error)
}

// Directory is the part of the level provider the workflows depend on.
type Directory interface {
	Refresh(ctx context.Context)
	HasFamily() bool
	CanJoinCircles() bool
	Lookup(ref core.LevelRef) (core.Level, bool)
}

type Workflows struct {
	remote    Remote
	directory Directory
	publisher events.Publisher
	logger    *log.Logger
}

func New(remote Remote, directory Directory, publisher events.Publisher, logger *log.Logger) *Workflows {
	if logger == nil {
		logger = log.Nop()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Workflows{
		remote:    remote,
		directory: directory,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentMembership),
	}
}

// CheckCircleJoin applies the circle join policy: a family membership is
// required, and at least one of them must carry the can-join-circles right.
// A failure wrapping ErrFamilyRequired means the caller should offer the
// family join or create flow instead.
func (w *Workflows) CheckCircleJoin() error {
	if !w.directory.HasFamily() {
		return core.Fail(MsgFamilyRequired, ErrFamilyRequired)
	}
	if !w.directory.CanJoinCircles() {
		return core.Fail(MsgCirclePermission, ErrCirclePermission)
	}
	return nil
}

// Join resolves code to a family or circle, then submits password against it.
// Neither step is retried. The directory is refreshed only after the join succeeds.
func (w *Workflows) Join(ctx context.Context, kind core.LevelType, code, password string) (*api.Group, error) {
	if !kind.IsGroup() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidGroupKind, kind)
	}
	code = strings.TrimSpace(code)
	if code == "" || password == "" {
		return nil, core.Fail(MsgMissingCode, ErrMissingCode)
	}
	if kind == core.LevelCircle {
		if err := w.CheckCircleJoin(); err != nil {
			return nil, err
		}
	}

	group, err := w.remote.SearchByCode(ctx, kind, code)
	if err != nil {
		w.logger.WarnContext(ctx, "Join code lookup failed",
			log.FieldOperation, log.OpJoin, log.FieldGroupKind, kind.String(), log.FieldError, err)
		return nil, core.Fail(api.MessageOr(err, MsgCodeNotFound), err)
	}

	if _, err := w.remote.Join(ctx, kind, group.ID, password); err != nil {
		w.logger.WarnContext(ctx, "Join rejected",
			log.FieldOperation, log.OpJoin, log.FieldGroupKind, kind.String(), log.FieldGroupID, group.ID, log.FieldError, err)
		return nil, core.Fail(api.MessageOr(err, MsgJoinFailed), err)
	}

	w.logger.InfoContext(ctx, "Joined group",
		log.FieldOperation, log.OpJoin, log.FieldGroupKind, kind.String(), log.FieldGroupID, group.ID)

	w.directory.Refresh(ctx)
	w.emit(ctx, events.MembershipJoined, kind, group.ID)
	return group, nil
}

// Create makes a new family or circle. The returned record carries the
// one-time join credentials when the server includes them.
func (w *Workflows) Create(ctx context.Context, kind core.LevelType, name, description string) (*api.Group, error) {
	if !kind.IsGroup() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidGroupKind, kind)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.Fail(MsgMissingName, core.ErrEmptyName)
	}

	created, err := w.remote.CreateGroup(ctx, kind, api.NewGroup{Name: name, Description: strings.TrimSpace(description)})
	if err != nil {
		w.logger.WarnContext(ctx, "Create rejected",
			log.FieldOperation, log.OpCreate, log.FieldGroupKind, kind.String(), log.FieldError, err)
		return nil, core.Fail(api.MessageOr(err, MsgCreateFailed), err)
	}

	w.logger.InfoContext(ctx, "Group created",
		log.FieldOperation, log.OpCreate, log.FieldGroupKind, kind.String(), log.FieldGroupID, created.ID)

	w.directory.Refresh(ctx)
	w.emit(ctx, events.MembershipCreated, kind, created.ID)
	return created, nil
}

// RegenerateCredentials issues a new join code and password for a family or
// circle in the directory. Family admin rights are checked locally; circle
// rights are left to the server.
func (w *Workflows) RegenerateCredentials(ctx context.Context, ref core.LevelRef) (*core.JoinCredentials, error) {
	if !ref.Type.IsGroup() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidGroupKind, ref.Type)
	}
	level, ok := w.directory.Lookup(ref)
	if !ok {
		return nil, fmt.Errorf("regenerate credentials for %s %d: level not in directory", ref.Type, ref.ID)
	}
	if level.Type == core.LevelFamily && !level.IsAdmin {
		return nil, core.Fail(MsgNotAdmin, ErrNotAdmin)
	}

	res, err := w.remote.RegenerateCredentials(ctx, level.Type, level.ID)
	if err != nil {
		return nil, core.Fail(api.MessageOr(err, MsgRegenerateFailed), err)
	}

	w.logger.InfoContext(ctx, "Join credentials regenerated",
		log.FieldGroupKind, level.Type.String(), log.FieldGroupID, level.ID)
	creds := res.JoinCredentials
	return &creds, nil
}

func (w *Workflows) emit(ctx context.Context, t events.Type, kind core.LevelType, id int64) {
	e := events.New(t)
	e.GroupID = id
	e.Level = &core.LevelRef{Type: kind, ID: id}
	events.Emit(ctx, w.publisher, w.logger, e)
}

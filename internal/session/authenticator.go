package session

import (
	"context"
	"errors"

	"kincore/internal/api"
	"kincore/internal/core"
	"kincore/internal/events"
	"kincore/internal/log"
)

const (
	msgLoginFailed    = "Ошибка авторизации"
	msgRegisterFailed = "Ошибка регистрации"
	msgProfileFailed  = "Ошибка обновления профиля"
	msgNetwork        = "Ошибка сети"
)

// AuthAPI is the slice of the remote API the credential flows use.
type AuthAPI interface {
	Login(ctx context.Context, creds api.Credentials) (*api.AuthResult, error)
	Register(ctx context.Context, reg api.Registration) (*api.AuthResult, error)
	UpdateProfile(ctx context.Context, patch api.ProfilePatch) (*core.User, error)
}

// Authenticator runs the credential exchanges and records their outcome in the Session.
type Authenticator struct {
	session   *Session
	remote    AuthAPI
	publisher events.Publisher
	logger    *log.Logger
}

func NewAuthenticator(s *Session, remote AuthAPI, publisher events.Publisher, logger *log.Logger) *Authenticator {
	if logger == nil {
		logger = log.Nop()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Authenticator{
		session:   s,
		remote:    remote,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentSession),
	}
}

func (a *Authenticator) SignIn(ctx context.Context, login, password string) (*core.User, error) {
	res, err := a.remote.Login(ctx, api.Credentials{Login: login, Password: password})
	if err != nil {
		return nil, failure(err, msgLoginFailed)
	}
	return a.establish(ctx, res)
}

func (a *Authenticator) Register(ctx context.Context, reg api.Registration) (*core.User, error) {
	res, err := a.remote.Register(ctx, reg)
	if err != nil {
		return nil, failure(err, msgRegisterFailed)
	}
	return a.establish(ctx, res)
}

func (a *Authenticator) SignOut(ctx context.Context) error {
	var userID int64
	if u := a.session.User(); u != nil {
		userID = u.ID
	}
	err := a.session.Logout(ctx)

	e := events.New(events.SessionLogout)
	e.UserID = userID
	events.Emit(ctx, a.publisher, a.logger, e)
	return err
}

// SaveProfile sends patch to the server and stores the profile it returns.
func (a *Authenticator) SaveProfile(ctx context.Context, patch api.ProfilePatch) (*core.User, error) {
	if !a.session.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	u, err := a.remote.UpdateProfile(ctx, patch)
	if err != nil {
		return nil, failure(err, msgProfileFailed)
	}
	if err := a.session.UpdateUser(ctx, *u); err != nil {
		return nil, err
	}
	return u, nil
}

func (a *Authenticator) establish(ctx context.Context, res *api.AuthResult) (*core.User, error) {
	if res.Token == "" {
		return nil, core.Fail(msgLoginFailed, errors.New("response carried no token"))
	}
	if err := a.session.Login(ctx, res.Token, res.User); err != nil {
		return nil, err
	}

	e := events.New(events.SessionLogin)
	e.UserID = res.User.ID
	events.Emit(ctx, a.publisher, a.logger, e)

	u := res.User
	return &u, nil
}

// failure turns a remote error into the message shown on the form.
func failure(err error, fallback string) error {
	if errors.Is(err, api.ErrTransport) {
		return core.Fail(msgNetwork, err)
	}
	return core.Fail(api.MessageOr(err, fallback), err)
}

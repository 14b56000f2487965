package api

import (
	"context"
	"net/http"

	"kincore/internal/core"
)

type (
	// AuthResult is the body returned by login and register.
	AuthResult struct {
		Message string    `json:"message"`
		Token   string    `json:"token"`
		User    core.User `json:"user"`
	}

	Credentials struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}

	Registration struct {
		Username        string `json:"username"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		PasswordConfirm string `json:"password_confirm"`
		FirstName       string `json:"first_name"`
		LastName        string `json:"last_name"`
		MiddleName      string `json:"middle_name"`
		BirthDate       string `json:"birth_date"`
		Phone           string `json:"phone"`
	}

	// ProfilePatch holds the editable profile fields. Nil fields are left untouched.
	ProfilePatch struct {
		FirstName  *string `json:"first_name,omitempty"`
		LastName   *string `json:"last_name,omitempty"`
		MiddleName *string `json:"middle_name,omitempty"`
		BirthDate  *string `json:"birth_date,omitempty"`
		Phone      *string `json:"phone,omitempty"`
		Email      *string `json:"email,omitempty"`
		Bio        *string `json:"bio,omitempty"`
	}
)

func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResult, error) {
	var res AuthResult
	if err := c.doWithToken(ctx, "", http.MethodPost, "/users/login/", creds, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Register(ctx context.Context, reg Registration) (*AuthResult, error) {
	var res AuthResult
	if err := c.doWithToken(ctx, "", http.MethodPost, "/users/register/", reg, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Logout invalidates token on the server. The token is passed explicitly
// because the caller may already be clearing its local copy.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.doWithToken(ctx, token, http.MethodPost, "/users/logout/", nil, nil)
}

func (c *Client) CurrentUser(ctx context.Context) (*core.User, error) {
	var u core.User
	if err := c.do(ctx, http.MethodGet, "/users/current/", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) UpdateProfile(ctx context.Context, patch ProfilePatch) (*core.User, error) {
	var res struct {
		Message string    `json:"message"`
		User    core.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPatch, "/users/update/", patch, &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

package api

import (
	"context"
	"fmt"
	"net/http"

	"kincore/internal/core"
)

type (
	// Group is a family or circle as returned by search and create.
	Group struct {
		ID           int64  `json:"id"`
		Name         string `json:"name"`
		Description  string `json:"description,omitempty"`
		JoinCode     string `json:"join_code,omitempty"`
		JoinPassword string `json:"join_password,omitempty"`
	}

	NewGroup struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}

	JoinResult struct {
		Message string `json:"message"`
	}

	RegeneratedCredentials struct {
		Message string `json:"message"`
		core.JoinCredentials
	}
)

// groupPath maps a level type to its collection path.
func groupPath(kind core.LevelType) (string, error) {
	switch kind {
	case core.LevelFamily:
		return "/nucfamily/families/", nil
	case core.LevelCircle:
		return "/famcircle/circles/", nil
	default:
		return "", fmt.Errorf("%w: %q", core.ErrInvalidGroupKind, kind)
	}
}

// ListFamilies returns the caller's families with their embedded circles.
func (c *Client) ListFamilies(ctx context.Context) ([]core.Family, error) {
	var families []core.Family
	if err := c.do(ctx, http.MethodGet, "/nucfamily/families/", nil, &families); err != nil {
		return nil, err
	}
	return families, nil
}

// SearchByCode resolves a join code to the group it belongs to.
func (c *Client) SearchByCode(ctx context.Context, kind core.LevelType, code string) (*Group, error) {
	base, err := groupPath(kind)
	if err != nil {
		return nil, err
	}
	var g Group
	if err := c.do(ctx, http.MethodPost, base+"search_by_code/", map[string]string{"join_code": code}, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) Join(ctx context.Context, kind core.LevelType, id int64, password string) (*JoinResult, error) {
	base, err := groupPath(kind)
	if err != nil {
		return nil, err
	}
	var res JoinResult
	path := fmt.Sprintf("%s%d/join/", base, id)
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"join_password": password}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) CreateGroup(ctx context.Context, kind core.LevelType, g NewGroup) (*Group, error) {
	base, err := groupPath(kind)
	if err != nil {
		return nil, err
	}
	var created Group
	if err := c.do(ctx, http.MethodPost, base, g, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// RegenerateCredentials issues a new code/password pair. Only group admins may call it.
func (c *Client) RegenerateCredentials(ctx context.Context, kind core.LevelType, id int64) (*RegeneratedCredentials, error) {
	base, err := groupPath(kind)
	if err != nil {
		return nil, err
	}
	var res RegeneratedCredentials
	path := fmt.Sprintf("%s%d/regenerate_credentials/", base, id)
	if err := c.do(ctx, http.MethodPost, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	LevelPersonal LevelType = "personal"
	LevelFamily   LevelType = "family"
	LevelCircle   LevelType = "circle"
)

type (
	// LevelType tags the three scopes a user can work in.
	LevelType string

	// User is the profile returned by the remote API on login, register and update.
	User struct {
		ID         int64  `json:"id"`
		Username   string `json:"username,omitempty"`
		Email      string `json:"email,omitempty"`
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
		MiddleName string `json:"middle_name,omitempty"`
		FullName   string `json:"full_name,omitempty"`
		Phone      string `json:"phone,omitempty"`
		BirthDate  string `json:"birth_date,omitempty"`
		Avatar     string `json:"avatar,omitempty"`
		Bio        string `json:"bio,omitempty"`
	}

	// Family is one entry of the families listing. Permission flags describe
	// the calling user's membership, not the family itself.
	Family struct {
		ID                        int64           `json:"id"`
		Name                      string          `json:"name"`
		Description               string          `json:"description,omitempty"`
		JoinCode                  string          `json:"join_code,omitempty"`
		MembersCount              int             `json:"members_count,omitempty"`
		UserRole                  string          `json:"user_role,omitempty"`
		IsAdmin                   bool            `json:"is_admin"`
		UserCanJoinCircles        bool            `json:"user_can_join_circles"`
		UserCanShareToCircles     bool            `json:"user_can_share_to_circles"`
		UserCanManageCircleAccess bool            `json:"user_can_manage_circle_access"`
		Circles                   []CircleSummary `json:"circles"`
	}

	// CircleSummary is the compact circle record embedded in a Family.
	CircleSummary struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	// Level is a tagged variant: Personal carries no ID, Family carries role
	// flags, Circle carries a reference to the family it is reached through.
	Level struct {
		Type                  LevelType `json:"type"`
		ID                    int64     `json:"id,omitempty"`
		Title                 string    `json:"title,omitempty"`
		Role                  string    `json:"user_role,omitempty"`
		IsAdmin               bool      `json:"is_admin,omitempty"`
		CanJoinCircles        bool      `json:"can_join_circles,omitempty"`
		CanShareToCircles     bool      `json:"can_share_to_circles,omitempty"`
		CanManageCircleAccess bool      `json:"can_manage_circle_access,omitempty"`
		FamilyID              int64     `json:"family_id,omitempty"`
		FamilyTitle           string    `json:"family_title,omitempty"`
	}

	// LevelRef is the persisted form of a selected level.
	LevelRef struct {
		Type LevelType `json:"type"`
		ID   int64     `json:"id,omitempty"`
	}

	// JoinCredentials is the code/password pair that grants membership.
	JoinCredentials struct {
		JoinCode     string `json:"join_code"`
		JoinPassword string `json:"join_password"`
	}
)

var (
	ErrInvalidLevelType = errors.New("invalid level type")
	ErrInvalidGroupKind = errors.New("group kind must be family or circle")
	ErrEmptyName        = errors.New("empty name")
)

// ParseLevelType accepts the wire names of the three level types.
func ParseLevelType(s string) (LevelType, error) {
	t := LevelType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidLevelType, s)
	}
	return t, nil
}

// ParseGroupKind accepts only the membership-bearing level types.
func ParseGroupKind(s string) (LevelType, error) {
	t, err := ParseLevelType(s)
	if err != nil || !t.IsGroup() {
		return "", fmt.Errorf("%w: %q", ErrInvalidGroupKind, s)
	}
	return t, nil
}

func (t LevelType) IsValid() bool {
	switch t {
	case LevelPersonal, LevelFamily, LevelCircle:
		return true
	default:
		return false
	}
}

// IsGroup reports whether the level type is joined through credentials.
func (t LevelType) IsGroup() bool {
	return t == LevelFamily || t == LevelCircle
}

func (t LevelType) String() string {
	return string(t)
}

// DisplayName returns the "first last" form used as the personal level title.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// PersonalLevel builds the single personal level. The title is derived from
// the user's name and stays empty without a user.
func PersonalLevel(u *User) Level {
	l := Level{Type: LevelPersonal}
	if u != nil {
		l.Title = u.DisplayName()
	}
	return l
}

// FamilyLevel maps a listed family to its level entry.
func FamilyLevel(f Family) Level {
	return Level{
		Type:                  LevelFamily,
		ID:                    f.ID,
		Title:                 f.Name,
		Role:                  f.UserRole,
		IsAdmin:               f.IsAdmin,
		CanJoinCircles:        f.UserCanJoinCircles,
		CanShareToCircles:     f.UserCanShareToCircles,
		CanManageCircleAccess: f.UserCanManageCircleAccess,
	}
}

// CircleLevel maps a circle embedded in family f to its level entry.
func CircleLevel(c CircleSummary, f Family) Level {
	return Level{
		Type:        LevelCircle,
		ID:          c.ID,
		Title:       c.Name,
		FamilyID:    f.ID,
		FamilyTitle: f.Name,
	}
}

// Matches compares levels by type and, except for personal, by ID.
func (l Level) Matches(other Level) bool {
	return l.Ref().Matches(other)
}

// Ref returns the persisted identity of the level.
func (l Level) Ref() LevelRef {
	if l.Type == LevelPersonal {
		return LevelRef{Type: LevelPersonal}
	}
	return LevelRef{Type: l.Type, ID: l.ID}
}

// Key is a stable identifier usable in maps and UI element keys.
func (l Level) Key() string {
	if l.Type == LevelPersonal {
		return string(LevelPersonal)
	}
	return string(l.Type) + "-" + strconv.FormatInt(l.ID, 10)
}

// DisplayName is the caption of the level kind shown in the selector.
func (l Level) DisplayName() string {
	switch l.Type {
	case LevelFamily:
		return "Пространство семьи"
	case LevelCircle:
		return "Семейный круг"
	default:
		return "Личное пространство"
	}
}

// Icon is the selector icon path for the level kind.
func (l Level) Icon() string {
	switch l.Type {
	case LevelFamily:
		return "/img/icons/nucfamily_icon.png"
	case LevelCircle:
		return "/img/icons/famcirclle_icon.png"
	default:
		return "/img/icons/private_icon.png"
	}
}

func (r LevelRef) Matches(l Level) bool {
	if r.Type != l.Type {
		return false
	}
	return r.Type == LevelPersonal || r.ID == l.ID
}

func (r LevelRef) Validate() error {
	if !r.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidLevelType, r.Type)
	}
	if r.Type != LevelPersonal && r.ID <= 0 {
		return fmt.Errorf("level %s requires a positive id", r.Type)
	}
	return nil
}

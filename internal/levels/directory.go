// Package levels derives the levels a user can work in from their family
// memberships and tracks which one is selected.
package levels

import (
	"strconv"

	"kincore/internal/core"
)

// Routes the UI navigates to after a selection.
const (
	RoutePersonal     = "/main"
	RouteFamily       = "/family"
	routeCirclePrefix = "/circle/"
)

// BuildDirectory returns Personal, then one Family per family, then one
// Circle per circle embedded in each family.
func BuildDirectory(user *core.User, families []core.Family) []core.Level {
	dir := make([]core.Level, 0, 1+len(families))
	dir = append(dir, core.PersonalLevel(user))

	for _, f := range families {
		dir = append(dir, core.FamilyLevel(f))
	}
	for _, f := range families {
		for _, c := range f.Circles {
			dir = append(dir, core.CircleLevel(c, f))
		}
	}
	return dir
}

// RouteFor is the navigation target of a level.
func RouteFor(l core.Level) string {
	switch l.Type {
	case core.LevelFamily:
		return RouteFamily
	case core.LevelCircle:
		return routeCirclePrefix + strconv.FormatInt(l.ID, 10)
	default:
		return RoutePersonal
	}
}

func find(dir []core.Level, ref core.LevelRef) (core.Level, bool) {
	for _, l := range dir {
		if ref.Matches(l) {
			return l, true
		}
	}
	return core.Level{}, false
}

func HasFamily(dir []core.Level) bool {
	for _, l := range dir {
		if l.Type == core.LevelFamily {
			return true
		}
	}
	return false
}

func HasCircle(dir []core.Level) bool {
	for _, l := range dir {
		if l.Type == core.LevelCircle {
			return true
		}
	}
	return false
}

// CanJoinCircles reports whether any family membership may join circles.
func CanJoinCircles(dir []core.Level) bool {
	for _, l := range dir {
		if l.Type == core.LevelFamily && l.CanJoinCircles {
			return true
		}
	}
	return false
}

func filter(dir []core.Level, t core.LevelType) []core.Level {
	var out []core.Level
	for _, l := range dir {
		if l.Type == t {
			out = append(out, l)
		}
	}
	return out
}

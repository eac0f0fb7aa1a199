// Package access decides whether a navigation target is permitted for
// the current session. The decision is pure and synchronous: it reads
// the session snapshot, matches the path against the route table, and
// reports what should happen. It owns no timers and makes no network
// calls.
package access

import (
	"strings"

	"github.com/openshelf/shelfctl/pkg/library"
	"github.com/openshelf/shelfctl/pkg/session"
)

// Well-known navigation targets.
const (
	PathLogin     = "/login"
	PathSignup    = "/signup"
	PathDashboard = "/dashboard"
	PathBooks     = "/books"

	// PathForbidden is where wrong-role navigation lands. It is the
	// dashboard, not the login page: the user is authenticated, just
	// not allowed here.
	PathForbidden = PathDashboard
)

// State is the outcome category of a gate evaluation.
type State string

const (
	StateLoading               State = "loading"
	StateGranted               State = "granted"
	StateDeniedUnauthenticated State = "denied-unauthenticated"
	StateDeniedWrongRole       State = "denied-wrong-role"
)

// Decision is the result of evaluating a navigation.
type Decision struct {
	State State

	// RedirectTo is set for the two denied states.
	RedirectTo string

	// From remembers the originally requested location so a
	// successful login can return the user there. Only set for
	// unauthenticated denials.
	From string
}

// rule describes one route pattern. Patterns are segment-matched;
// ":id" matches any single non-empty segment.
type rule struct {
	pattern string
	public  bool
	role    library.Role // empty means any authenticated user
}

// The route table. Order matters: more specific patterns come first
// so /books/new wins over /books/:id.
var routes = []rule{
	{pattern: PathLogin, public: true},
	{pattern: PathSignup, public: true},

	{pattern: "/my-borrowings", role: library.RoleMember},
	{pattern: "/my-history", role: library.RoleMember},

	{pattern: "/books/new", role: library.RoleLibrarian},
	{pattern: "/books/:id/edit", role: library.RoleLibrarian},
	{pattern: "/borrowings/overdue", role: library.RoleLibrarian},
	{pattern: "/borrowings/:id", role: library.RoleLibrarian},
	{pattern: "/borrowings", role: library.RoleLibrarian},

	{pattern: PathDashboard},
	{pattern: "/books/:id"},
	{pattern: PathBooks},
}

// Decide evaluates a navigation to path under the given session
// snapshot.
func Decide(s session.Session, path string) Decision {
	r := ruleFor(path)

	if r.public {
		return Decision{State: StateGranted}
	}

	// Bootstrap has not settled yet: render a placeholder, never
	// redirect on a session that might turn out valid.
	if s.IsLoading {
		return Decision{State: StateLoading}
	}

	if !s.IsAuthenticated {
		return Decision{
			State:      StateDeniedUnauthenticated,
			RedirectTo: PathLogin,
			From:       path,
		}
	}

	if r.role != "" && (s.User == nil || s.User.Role != r.role) {
		return Decision{
			State:      StateDeniedWrongRole,
			RedirectTo: PathForbidden,
		}
	}

	return Decision{State: StateGranted}
}

// ruleFor matches path against the route table. Unknown paths fall
// back to requiring authentication without a role.
func ruleFor(path string) rule {
	segments := splitPath(path)

	for _, r := range routes {
		if matches(splitPath(r.pattern), segments) {
			return r
		}
	}

	return rule{}
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "/")
}

func matches(pattern, segments []string) bool {
	if len(pattern) != len(segments) {
		return false
	}

	for i, p := range pattern {
		if strings.HasPrefix(p, ":") {
			if segments[i] == "" {
				return false
			}

			continue
		}

		if p != segments[i] {
			return false
		}
	}

	return true
}

package access

import "github.com/openshelf/shelfctl/pkg/session"

// Navigator abstracts the navigation surface the redirect-on-401
// behavior needs. The app layer supplies it; tests supply a fake.
type Navigator interface {
	// Current returns the present location.
	Current() string

	// Navigate moves to the given location.
	Navigate(path string)
}

// UnauthorizedHandler builds the hook the HTTP gateway invokes on
// authentication failure: clear the session, then redirect to the
// login page unless already there. The gateway guarantees at most one
// invocation per failed response; the already-there check makes the
// redirect idempotent across overlapping failures.
func UnauthorizedHandler(store *session.Store, nav Navigator) func() {
	return func() {
		store.Logout()

		if nav.Current() != PathLogin {
			nav.Navigate(PathLogin)
		}
	}
}

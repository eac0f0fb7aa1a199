package session

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/openshelf/shelfctl/pkg/library"
)

// State is the outcome of a bootstrap pass.
type State string

const (
	StateChecking        State = "checking"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// CurrentUserFunc fetches the current user from the API. It is the
// only network dependency the bootstrapper has.
type CurrentUserFunc func(ctx context.Context) (*library.User, error)

// Bootstrapper validates the persisted credential against the server
// and reconciles the result into the session store. It runs once per
// credential change: at startup and again after every successful
// login.
type Bootstrapper struct {
	log   logrus.FieldLogger
	store *Store
	fetch CurrentUserFunc
}

// NewBootstrapper creates a bootstrapper bound to the given store.
func NewBootstrapper(log logrus.FieldLogger, store *Store, fetch CurrentUserFunc) *Bootstrapper {
	return &Bootstrapper{
		log:   log.WithField("component", "bootstrap"),
		store: store,
		fetch: fetch,
	}
}

// Run performs one validation pass. It always resolves the loading
// flag, on both paths, so callers never wait on a session that will
// not settle. Failures are terminal for this pass: a failed validation
// means unauthenticated, not retry.
func (b *Bootstrapper) Run(ctx context.Context) State {
	b.store.SetLoading(true)

	hadToken := b.store.CheckAuth().Token != ""

	user, err := b.fetch(ctx)
	if err != nil {
		if hadToken {
			b.log.WithError(err).Debug("Credential validation failed, clearing session")
			b.store.Logout()
		}

		b.store.SetLoading(false)

		return StateUnauthenticated
	}

	b.store.SetUser(user)
	b.store.SetLoading(false)

	return StateAuthenticated
}

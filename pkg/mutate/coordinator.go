// Package mutate coordinates write operations with the cache
// invalidations that keep cached reads consistent afterwards. Each
// domain action invalidates a fixed set of key prefixes, and only
// after the write succeeds; a failed mutation leaves the cache
// untouched and hands the error back for user-visible reporting.
package mutate

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/openshelf/shelfctl/pkg/cache"
	"github.com/openshelf/shelfctl/pkg/client"
	"github.com/openshelf/shelfctl/pkg/library"
	"github.com/openshelf/shelfctl/pkg/session"
)

// Coordinator wraps the API client's write operations.
type Coordinator struct {
	log   logrus.FieldLogger
	api   *client.Client
	cache *cache.Cache
	store *session.Store
}

// NewCoordinator creates a coordinator over the given client, cache,
// and session store.
func NewCoordinator(
	log logrus.FieldLogger,
	api *client.Client,
	c *cache.Cache,
	store *session.Store,
) *Coordinator {
	return &Coordinator{
		log:   log.WithField("component", "mutate"),
		api:   api,
		cache: c,
		store: store,
	}
}

// SignUp registers an account and invalidates the current-user query.
func (m *Coordinator) SignUp(ctx context.Context, in library.SignUpInput) (*client.UserResult, error) {
	result, err := m.api.SignUp(ctx, in)
	if err != nil {
		return nil, err
	}

	m.cache.Invalidate(cache.CurrentUserKey)

	return result, nil
}

// SignIn authenticates, records the session, and invalidates the
// current-user query so the next read hydrates fresh identity data.
func (m *Coordinator) SignIn(ctx context.Context, in library.SignInInput) (*client.UserResult, error) {
	result, token, err := m.api.SignIn(ctx, in)
	if err != nil {
		return nil, err
	}

	// The refresh hook may already have persisted the token; fall
	// back to it when the response header was absent.
	if token == "" {
		token = m.store.Token()
	}

	m.store.Login(&result.User, token)
	m.cache.Invalidate(cache.CurrentUserKey)

	return result, nil
}

// SignOut ends the session server-side, then clears the session store
// and the entire cache.
func (m *Coordinator) SignOut(ctx context.Context) error {
	if err := m.api.SignOut(ctx); err != nil {
		return err
	}

	m.store.Logout()
	m.cache.Clear()

	return nil
}

// CreateBook adds a catalog entry and invalidates book listings.
func (m *Coordinator) CreateBook(ctx context.Context, in library.BookInput) (*client.BookResult, error) {
	result, err := m.api.CreateBook(ctx, in)
	if err != nil {
		return nil, err
	}

	m.cache.Invalidate(cache.BooksListsKey)

	return result, nil
}

// UpdateBook replaces a catalog entry and invalidates its detail plus
// the book listings.
func (m *Coordinator) UpdateBook(ctx context.Context, id int, in library.BookInput) (*client.BookResult, error) {
	result, err := m.api.UpdateBook(ctx, id, in)
	if err != nil {
		return nil, err
	}

	m.cache.Invalidate(cache.BookDetailKey(id))
	m.cache.Invalidate(cache.BooksListsKey)

	return result, nil
}

// DeleteBook removes a catalog entry and invalidates book listings.
func (m *Coordinator) DeleteBook(ctx context.Context, id int) error {
	if err := m.api.DeleteBook(ctx, id); err != nil {
		return err
	}

	m.cache.Invalidate(cache.BooksListsKey)

	return nil
}

// BorrowBook borrows a book and invalidates borrowing listings plus
// book listings, since the available-copies count changed.
func (m *Coordinator) BorrowBook(ctx context.Context, bookID int) (*client.BorrowingResult, error) {
	result, err := m.api.BorrowBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	m.cache.Invalidate(cache.BorrowingsListsKey)
	m.cache.Invalidate(cache.BooksListsKey)

	return result, nil
}

// ReturnBook returns a borrowing and invalidates its detail, the
// borrowing listings, the overdue listings, and the book listings.
func (m *Coordinator) ReturnBook(ctx context.Context, borrowingID int) (*client.BorrowingResult, error) {
	result, err := m.api.ReturnBook(ctx, borrowingID)
	if err != nil {
		return nil, err
	}

	m.cache.Invalidate(cache.BorrowingDetailKey(borrowingID))
	m.cache.Invalidate(cache.BorrowingsListsKey)
	m.cache.Invalidate(cache.BorrowingsOverdueKey)
	m.cache.Invalidate(cache.BooksListsKey)

	return result, nil
}

package mutate

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/shelfctl/pkg/cache"
	"github.com/openshelf/shelfctl/pkg/client"
	"github.com/openshelf/shelfctl/pkg/library"
	"github.com/openshelf/shelfctl/pkg/session"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

type fixture struct {
	coordinator *Coordinator
	cache       *cache.Cache
	store       *session.Store
}

func newFixture(t *testing.T, handler http.Handler) *fixture {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log := testLogger()
	store := session.NewStore(log, &session.MemoryCredentialStore{})
	c := cache.New(log, cache.Config{})
	t.Cleanup(c.Stop)

	api := client.New(log, srv.URL, client.WithTokenSource(store))

	return &fixture{
		coordinator: NewCoordinator(log, api, c, store),
		cache:       c,
		store:       store,
	}
}

// primeKeys populates cache entries so staleness is observable.
func primeKeys(f *fixture, keys ...cache.Key) {
	for _, key := range keys {
		f.cache.Query(context.Background(), key, func(ctx context.Context) (any, error) {
			return "cached", nil
		}, cache.Options{})
	}
}

func assertStale(t *testing.T, c *cache.Cache, key cache.Key, wantStale bool) {
	t.Helper()

	res, ok := c.Peek(key)
	require.True(t, ok, "expected cache entry for %s", key)
	assert.Equal(t, wantStale, res.Stale, "staleness of %s", key)
}

func borrowingBody(id int, returned bool) string {
	returnedAt := "null"
	if returned {
		returnedAt = `"2025-11-01T00:00:00Z"`
	}

	return `{"borrowing":{"id":` + strconv.Itoa(id) + `,"borrowed_at":"2025-10-24T00:00:00Z","due_date":"2025-11-07T00:00:00Z","returned_at":` + returnedAt + `,"book":{"id":1,"title":"Clean Code","author":"Robert C. Martin"},"user":{"id":1,"email":"member@library.com"}}}`
}

func TestReturnBook_InvalidatesAllFourFamilies(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/borrowings/7", r.URL.Path)

		_, _ = w.Write([]byte(borrowingBody(7, true)))
	}))

	detail := cache.BorrowingDetailKey(7)
	list := cache.BorrowingsListKey(library.BorrowingsParams{})
	overdue := cache.OverdueBorrowingsKey(library.BorrowingsParams{})
	books := cache.BooksListKey(library.BooksParams{})
	otherDetail := cache.BorrowingDetailKey(8)

	primeKeys(f, detail, list, overdue, books, otherDetail)

	_, err := f.coordinator.ReturnBook(context.Background(), 7)
	require.NoError(t, err)

	assertStale(t, f.cache, detail, true)
	assertStale(t, f.cache, list, true)
	assertStale(t, f.cache, overdue, true)
	assertStale(t, f.cache, books, true)
	assertStale(t, f.cache, otherDetail, false)
}

func TestReturnBook_FailureLeavesCacheUntouched(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"already returned"}`))
	}))

	detail := cache.BorrowingDetailKey(7)
	list := cache.BorrowingsListKey(library.BorrowingsParams{})
	overdue := cache.OverdueBorrowingsKey(library.BorrowingsParams{})
	books := cache.BooksListKey(library.BooksParams{})

	primeKeys(f, detail, list, overdue, books)

	_, err := f.coordinator.ReturnBook(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, client.IsValidation(err))

	assertStale(t, f.cache, detail, false)
	assertStale(t, f.cache, list, false)
	assertStale(t, f.cache, overdue, false)
	assertStale(t, f.cache, books, false)
}

func TestBorrowBook_InvalidatesBorrowingsAndBooks(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		_, _ = w.Write([]byte(borrowingBody(1, false)))
	}))

	list := cache.BorrowingsListKey(library.BorrowingsParams{})
	books := cache.BooksListKey(library.BooksParams{})
	detail := cache.BookDetailKey(1)

	primeKeys(f, list, books, detail)

	_, err := f.coordinator.BorrowBook(context.Background(), 1)
	require.NoError(t, err)

	assertStale(t, f.cache, list, true)
	assertStale(t, f.cache, books, true)
	// Borrow does not touch individual book details.
	assertStale(t, f.cache, detail, false)
}

func TestUpdateBook_InvalidatesDetailAndLists(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"book":{"id":1,"title":"Clean Code","author":"Robert C. Martin","genre":"Programming","isbn":"9780132350884","total_copies":5,"available_copies":3,"borrowings_count":2,"created_at":"2025-10-29T00:00:00Z","updated_at":"2025-10-29T00:00:00Z"}}`))
	}))

	detail := cache.BookDetailKey(1)
	lists := cache.BooksListKey(library.BooksParams{})

	primeKeys(f, detail, lists)

	_, err := f.coordinator.UpdateBook(context.Background(), 1, library.BookInput{
		Title:           "Clean Code",
		Author:          "Robert C. Martin",
		Genre:           "Programming",
		ISBN:            "9780132350884",
		TotalCopies:     5,
		AvailableCopies: 3,
	})
	require.NoError(t, err)

	assertStale(t, f.cache, detail, true)
	assertStale(t, f.cache, lists, true)
}

func TestCreateBook_ValidatesBeforeNetwork(t *testing.T) {
	var hits int

	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++

		_, _ = w.Write([]byte(`{}`))
	}))

	lists := cache.BooksListKey(library.BooksParams{})
	primeKeys(f, lists)

	_, err := f.coordinator.CreateBook(context.Background(), library.BookInput{
		Title:           "Bad Counts",
		Author:          "Anyone",
		Genre:           "Fiction",
		ISBN:            "1234567890",
		TotalCopies:     5,
		AvailableCopies: 6,
	})
	require.Error(t, err)
	assert.Equal(t, 0, hits, "invalid book must be rejected before any network call")
	assertStale(t, f.cache, lists, false)
}

func TestSignIn_RecordsSessionAndInvalidatesCurrentUser(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Authorization", "Bearer issued-token")
		_, _ = w.Write([]byte(`{"user":{"id":1,"email":"member@library.com","role":"member","created_at":"2025-10-29T00:00:00Z"}}`))
	}))

	primeKeys(f, cache.CurrentUserKey)

	result, err := f.coordinator.SignIn(context.Background(), library.SignInInput{
		Email:    "member@library.com",
		Password: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, library.RoleMember, result.User.Role)

	snap := f.store.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "issued-token", snap.Token)

	assertStale(t, f.cache, cache.CurrentUserKey, true)
}

func TestSignOut_ClearsSessionAndCache(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)

		_, _ = w.Write([]byte(`{"message":"Logged out successfully"}`))
	}))

	f.store.Login(&library.User{ID: 1, Email: "member@library.com", Role: library.RoleMember}, "tok-1")
	primeKeys(f, cache.BooksListKey(library.BooksParams{}), cache.CurrentUserKey)

	require.NoError(t, f.coordinator.SignOut(context.Background()))

	assert.False(t, f.store.Snapshot().IsAuthenticated)

	_, ok := f.cache.Peek(cache.BooksListKey(library.BooksParams{}))
	assert.False(t, ok, "sign out clears the entire cache")
}

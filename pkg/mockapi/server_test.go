package mockapi_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/shelfctl/pkg/client"
	"github.com/openshelf/shelfctl/pkg/config"
	"github.com/openshelf/shelfctl/pkg/library"
	"github.com/openshelf/shelfctl/pkg/mockapi"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

type bearer struct{ token string }

func (b *bearer) Token() string { return b.token }

// startServer boots a seeded mock server on an ephemeral port and
// returns a client pointed at it.
func startServer(t *testing.T) (*client.Client, *bearer) {
	t.Helper()

	cfg := &config.MockConfig{
		Listen: "127.0.0.1:0",
		Seed:   true,
		Database: config.MockDatabaseConfig{
			Driver: "sqlite",
			SQLite: config.SQLiteConfig{
				Path: filepath.Join(t.TempDir(), "mock.db"),
			},
		},
	}

	srv := mockapi.NewServer(testLogger(), cfg)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })

	tok := &bearer{}
	c := client.New(
		testLogger(),
		"http://"+srv.Addr()+"/api/v1",
		client.WithTokenSource(tok),
	)

	return c, tok
}

func signIn(t *testing.T, c *client.Client, tok *bearer, email string) *library.User {
	t.Helper()

	result, refreshed, err := c.SignIn(context.Background(), library.SignInInput{
		Email:    email,
		Password: "password123",
	})
	require.NoError(t, err)
	require.NotEmpty(t, refreshed)

	tok.token = refreshed

	return &result.User
}

func TestSignInIssuesToken(t *testing.T) {
	c, tok := startServer(t)

	user := signIn(t, c, tok, "member@library.com")
	assert.Equal(t, "member@library.com", user.Email)
	assert.Equal(t, library.RoleMember, user.Role)

	me, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)
}

func TestSignInRejectsBadPassword(t *testing.T) {
	c, _ := startServer(t)

	_, _, err := c.SignIn(context.Background(), library.SignInInput{
		Email:    "member@library.com",
		Password: "wrong-password",
	})
	require.Error(t, err)
	assert.True(t, client.IsUnauthorized(err))
}

func TestCurrentUserRequiresToken(t *testing.T) {
	c, _ := startServer(t)

	_, err := c.CurrentUser(context.Background())
	require.Error(t, err)
	assert.True(t, client.IsUnauthorized(err))
}

func TestSignUpValidation(t *testing.T) {
	c, _ := startServer(t)

	// Duplicate email is rejected server-side.
	_, err := c.SignUp(context.Background(), library.SignUpInput{
		Email:                "member@library.com",
		Password:             "password123",
		PasswordConfirmation: "password123",
	})
	require.Error(t, err)
	assert.True(t, client.IsValidation(err))

	// A fresh account signs up and in.
	result, err := c.SignUp(context.Background(), library.SignUpInput{
		Email:                "new@library.com",
		Password:             "password123",
		PasswordConfirmation: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, library.RoleMember, result.User.Role)
}

func TestBooksListingAndFilters(t *testing.T) {
	c, tok := startServer(t)
	signIn(t, c, tok, "member@library.com")

	all, err := c.ListBooks(context.Background(), library.BooksParams{})
	require.NoError(t, err)
	assert.Equal(t, 4, all.Pagination.TotalCount)

	avail := true
	filtered, err := c.ListBooks(context.Background(), library.BooksParams{
		Genre:     "Technology",
		Available: &avail,
	})
	require.NoError(t, err)
	require.Len(t, filtered.Books, 1)
	assert.Equal(t, "Clean Code", filtered.Books[0].Title)

	search, err := c.ListBooks(context.Background(), library.BooksParams{
		Query: "Harari",
	})
	require.NoError(t, err)
	require.Len(t, search.Books, 1)
	assert.Equal(t, "Sapiens", search.Books[0].Title)
}

func TestBookWritesAreLibrarianOnly(t *testing.T) {
	c, tok := startServer(t)
	signIn(t, c, tok, "member@library.com")

	input := library.BookInput{
		Title:           "Refactoring",
		Author:          "Martin Fowler",
		Genre:           "Technology",
		ISBN:            "9780134757599",
		TotalCopies:     2,
		AvailableCopies: 2,
	}

	_, err := c.CreateBook(context.Background(), input)
	require.Error(t, err)
	assert.True(t, client.IsForbidden(err))

	signIn(t, c, tok, "librarian@library.com")

	created, err := c.CreateBook(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "Refactoring", created.Book.Title)
	assert.NotZero(t, created.Book.ID)

	input.AvailableCopies = 1
	updated, err := c.UpdateBook(context.Background(), created.Book.ID, input)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Book.AvailableCopies)

	require.NoError(t, c.DeleteBook(context.Background(), created.Book.ID))

	_, err = c.GetBook(context.Background(), created.Book.ID)
	require.Error(t, err)
	assert.True(t, client.IsNotFound(err))
}

func TestBorrowAndReturnLifecycle(t *testing.T) {
	c, tok := startServer(t)
	signIn(t, c, tok, "member@library.com")

	books, err := c.ListBooks(context.Background(), library.BooksParams{
		Query: "Clean Code",
	})
	require.NoError(t, err)
	require.Len(t, books.Books, 1)

	book := books.Books[0]
	before := book.AvailableCopies

	borrowed, err := c.BorrowBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.True(t, borrowed.Borrowing.Active())
	assert.Equal(t, book.ID, borrowed.Borrowing.Book.ID)

	// Due date lands one borrowing period out.
	days := library.DaysUntilDue(
		borrowed.Borrowing.DueDate, borrowed.Borrowing.BorrowedAt,
	)
	assert.Equal(t, library.BorrowingPeriodDays, days)

	after, err := c.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, before-1, after.Book.AvailableCopies)

	returned, err := c.ReturnBook(context.Background(), borrowed.Borrowing.ID)
	require.NoError(t, err)
	assert.False(t, returned.Borrowing.Active())

	restored, err := c.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, before, restored.Book.AvailableCopies)

	// Returning twice is rejected.
	_, err = c.ReturnBook(context.Background(), borrowed.Borrowing.ID)
	require.Error(t, err)
	assert.True(t, client.IsValidation(err))
}

func TestBorrowRejectedWhenNoCopies(t *testing.T) {
	c, tok := startServer(t)
	signIn(t, c, tok, "member@library.com")

	books, err := c.ListBooks(context.Background(), library.BooksParams{
		Query: "Pragmatic",
	})
	require.NoError(t, err)
	require.Len(t, books.Books, 1)
	require.Zero(t, books.Books[0].AvailableCopies)

	_, err = c.BorrowBook(context.Background(), books.Books[0].ID)
	require.Error(t, err)
	assert.True(t, client.IsValidation(err))
}

func TestBorrowingsAreScopedToMember(t *testing.T) {
	c, tok := startServer(t)
	member := signIn(t, c, tok, "member@library.com")

	books, err := c.ListBooks(context.Background(), library.BooksParams{
		Query: "Mockingbird",
	})
	require.NoError(t, err)
	require.Len(t, books.Books, 1)

	_, err = c.BorrowBook(context.Background(), books.Books[0].ID)
	require.NoError(t, err)

	mine, err := c.ListBorrowings(context.Background(), library.BorrowingsParams{})
	require.NoError(t, err)
	require.Len(t, mine.Borrowings, 1)
	assert.Equal(t, member.ID, mine.Borrowings[0].User.ID)

	// The overdue listing is librarian-only.
	_, err = c.ListOverdueBorrowings(context.Background(), library.BorrowingsParams{})
	require.Error(t, err)
	assert.True(t, client.IsForbidden(err))

	signIn(t, c, tok, "librarian@library.com")

	_, err = c.ListOverdueBorrowings(context.Background(), library.BorrowingsParams{})
	require.NoError(t, err)
}

func TestDashboardShapeFollowsRole(t *testing.T) {
	c, tok := startServer(t)
	signIn(t, c, tok, "member@library.com")

	books, err := c.ListBooks(context.Background(), library.BooksParams{
		Query: "Sapiens",
	})
	require.NoError(t, err)
	require.Len(t, books.Books, 1)

	_, err = c.BorrowBook(context.Background(), books.Books[0].ID)
	require.NoError(t, err)

	memberDash, err := c.Dashboard(context.Background(), library.RoleMember)
	require.NoError(t, err)
	require.NotNil(t, memberDash.Member)
	assert.Nil(t, memberDash.Librarian)
	assert.Equal(t, 1, memberDash.Member.ActiveBorrowingsCount)
	require.Len(t, memberDash.Member.BorrowedBooks, 1)
	assert.Equal(t, "Sapiens", memberDash.Member.BorrowedBooks[0].Book.Title)

	signIn(t, c, tok, "librarian@library.com")

	libDash, err := c.Dashboard(context.Background(), library.RoleLibrarian)
	require.NoError(t, err)
	require.NotNil(t, libDash.Librarian)
	assert.Nil(t, libDash.Member)
	assert.Equal(t, 4, libDash.Librarian.TotalBooks)
	assert.Equal(t, 1, libDash.Librarian.TotalBorrowedBooks)
	assert.Equal(t, 1, libDash.Librarian.TotalMembers)
	require.NotEmpty(t, libDash.Librarian.RecentBorrowings)
}

func TestSignOutInvalidatesSession(t *testing.T) {
	c, tok := startServer(t)
	signIn(t, c, tok, "member@library.com")

	require.NoError(t, c.SignOut(context.Background()))

	_, err := c.CurrentUser(context.Background())
	require.Error(t, err)
	assert.True(t, client.IsUnauthorized(err))
}

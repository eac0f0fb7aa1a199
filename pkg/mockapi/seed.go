package mockapi

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/openshelf/shelfctl/pkg/library"
)

// seedPassword is the password every fixture account signs in with.
const seedPassword = "password123"

var seedBooks = []Book{
	{
		Title:           "Clean Code",
		Author:          "Robert C. Martin",
		Genre:           "Technology",
		ISBN:            "9780132350884",
		TotalCopies:     5,
		AvailableCopies: 3,
	},
	{
		Title:           "The Pragmatic Programmer",
		Author:          "David Thomas",
		Genre:           "Technology",
		ISBN:            "9780135957059",
		TotalCopies:     3,
		AvailableCopies: 0,
	},
	{
		Title:           "To Kill a Mockingbird",
		Author:          "Harper Lee",
		Genre:           "Fiction",
		ISBN:            "9780061120084",
		TotalCopies:     4,
		AvailableCopies: 4,
	},
	{
		Title:           "Sapiens",
		Author:          "Yuval Noah Harari",
		Genre:           "History",
		ISBN:            "9780062316097",
		TotalCopies:     2,
		AvailableCopies: 1,
	},
}

// seed loads fixture accounts and catalog entries so a fresh mock
// server is immediately usable. Safe to call on a database that has
// already been seeded.
func seed(ctx context.Context, store Store) error {
	users := []struct {
		email string
		role  library.Role
	}{
		{"member@library.com", library.RoleMember},
		{"librarian@library.com", library.RoleLibrarian},
	}

	hash, err := bcrypt.GenerateFromPassword(
		[]byte(seedPassword), bcrypt.DefaultCost,
	)
	if err != nil {
		return fmt.Errorf("hashing seed password: %w", err)
	}

	for _, u := range users {
		_, err := store.CreateUser(ctx, u.email, string(hash), string(u.role))
		if errors.Is(err, ErrAlreadyExists) {
			// Already seeded.
			return nil
		}

		if err != nil {
			return fmt.Errorf("seeding user %s: %w", u.email, err)
		}
	}

	for i := range seedBooks {
		book := seedBooks[i]
		if err := store.CreateBook(ctx, &book); err != nil {
			return fmt.Errorf("seeding book %q: %w", book.Title, err)
		}
	}

	return nil
}

package cache

import (
	"fmt"

	"github.com/openshelf/shelfctl/pkg/library"
)

// Key prefixes for the resource families. Mutations invalidate these;
// the concrete query keys below nest under them.
const (
	CurrentUserKey Key = "auth/current-user"

	BooksKey        Key = "books"
	BooksListsKey   Key = "books/list"
	BooksDetailsKey Key = "books/detail"

	BorrowingsKey        Key = "borrowings"
	BorrowingsListsKey   Key = "borrowings/list"
	BorrowingsDetailsKey Key = "borrowings/detail"
	BorrowingsOverdueKey Key = "borrowings/overdue"

	DashboardKey Key = "dashboard/data"
)

// BooksListKey builds the key for one filtered books listing. The
// params encode canonically, so identical logical requests map to the
// same key.
func BooksListKey(params library.BooksParams) Key {
	return paramsKey(BooksListsKey, params.Values().Encode())
}

// BookDetailKey builds the key for a single book.
func BookDetailKey(id int) Key {
	return Key(fmt.Sprintf("%s/%d", BooksDetailsKey, id))
}

// BorrowingsListKey builds the key for one filtered borrowings listing.
func BorrowingsListKey(params library.BorrowingsParams) Key {
	return paramsKey(BorrowingsListsKey, params.Values().Encode())
}

// BorrowingDetailKey builds the key for a single borrowing.
func BorrowingDetailKey(id int) Key {
	return Key(fmt.Sprintf("%s/%d", BorrowingsDetailsKey, id))
}

// OverdueBorrowingsKey builds the key for one overdue listing page.
func OverdueBorrowingsKey(params library.BorrowingsParams) Key {
	return paramsKey(BorrowingsOverdueKey, params.Values().Encode())
}

func paramsKey(prefix Key, encoded string) Key {
	if encoded == "" {
		encoded = "_"
	}

	return Key(string(prefix) + "/" + encoded)
}

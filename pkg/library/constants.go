package library

const (
	// DefaultPerPage is the page size used when the caller does not
	// ask for one.
	DefaultPerPage = 25

	// MaxPerPage is the largest page size the API accepts.
	MaxPerPage = 100

	// BorrowingPeriodDays is the loan length the server applies when
	// a book is borrowed.
	BorrowingPeriodDays = 14

	// DueSoonDays is the window before the due date in which a
	// borrowing is flagged as due soon.
	DueSoonDays = 3
)

// Genres is the catalog genre list the service recognizes.
var Genres = []string{
	"Fiction",
	"Non-Fiction",
	"Science Fiction",
	"Fantasy",
	"Mystery",
	"Thriller",
	"Romance",
	"Horror",
	"Biography",
	"History",
	"Science",
	"Programming",
	"Business",
	"Self-Help",
	"Poetry",
	"Drama",
	"Other",
}

// KnownGenre reports whether g is in the recognized genre list.
func KnownGenre(g string) bool {
	for _, known := range Genres {
		if g == known {
			return true
		}
	}

	return false
}

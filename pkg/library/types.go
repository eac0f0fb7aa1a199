// Package library holds the domain types exchanged with the library
// service API, plus the client-side validation and date helpers the
// CLI applies before and after talking to it.
package library

import "time"

// Role identifies what a user is allowed to do.
type Role string

const (
	RoleMember    Role = "member"
	RoleLibrarian Role = "librarian"
)

// Valid reports whether the role is one the API knows about.
func (r Role) Valid() bool {
	return r == RoleMember || r == RoleLibrarian
}

// User is an account on the library service.
type User struct {
	ID        int       `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Book is a catalog entry. AvailableCopies never exceeds TotalCopies;
// the server enforces it and the client validates it before writes.
type Book struct {
	ID              int       `json:"id" mapstructure:"id"`
	Title           string    `json:"title" mapstructure:"title"`
	Author          string    `json:"author" mapstructure:"author"`
	Genre           string    `json:"genre" mapstructure:"genre"`
	ISBN            string    `json:"isbn" mapstructure:"isbn"`
	TotalCopies     int       `json:"total_copies" mapstructure:"total_copies"`
	AvailableCopies int       `json:"available_copies" mapstructure:"available_copies"`
	BorrowingsCount int       `json:"borrowings_count" mapstructure:"borrowings_count"`
	CreatedAt       time.Time `json:"created_at" mapstructure:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" mapstructure:"updated_at"`
}

// BookRef is the embedded book summary carried on a borrowing.
type BookRef struct {
	ID     int    `json:"id" mapstructure:"id"`
	Title  string `json:"title" mapstructure:"title"`
	Author string `json:"author" mapstructure:"author"`
	ISBN   string `json:"isbn,omitempty" mapstructure:"isbn"`
}

// UserRef is the embedded user summary carried on a borrowing.
type UserRef struct {
	ID    int    `json:"id" mapstructure:"id"`
	Email string `json:"email" mapstructure:"email"`
}

// Borrowing records a member holding (or having held) a copy of a book.
// Overdue is computed server-side and trusted as-is.
type Borrowing struct {
	ID         int        `json:"id" mapstructure:"id"`
	BorrowedAt time.Time  `json:"borrowed_at" mapstructure:"borrowed_at"`
	DueDate    time.Time  `json:"due_date" mapstructure:"due_date"`
	ReturnedAt *time.Time `json:"returned_at" mapstructure:"returned_at"`
	Overdue    bool       `json:"overdue?" mapstructure:"overdue?"`
	Book       BookRef    `json:"book" mapstructure:"book"`
	User       UserRef    `json:"user" mapstructure:"user"`
}

// Active reports whether the borrowing has not been returned yet.
func (b *Borrowing) Active() bool {
	return b.ReturnedAt == nil
}

// Pagination is the paging metadata returned alongside list responses.
type Pagination struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
	TotalCount  int `json:"total_count"`
	PerPage     int `json:"per_page"`
}

// MemberDashboard is the dashboard payload served to members.
type MemberDashboard struct {
	ActiveBorrowingsCount  int         `json:"active_borrowings_count" mapstructure:"active_borrowings_count"`
	OverdueBorrowingsCount int         `json:"overdue_borrowings_count" mapstructure:"overdue_borrowings_count"`
	BooksDueSoon           int         `json:"books_due_soon" mapstructure:"books_due_soon"`
	BorrowedBooks          []Borrowing `json:"borrowed_books" mapstructure:"borrowed_books"`
	BorrowingHistory       []Borrowing `json:"borrowing_history" mapstructure:"borrowing_history"`
}

// LibrarianDashboard is the dashboard payload served to librarians.
type LibrarianDashboard struct {
	TotalBooks              int         `json:"total_books" mapstructure:"total_books"`
	TotalAvailableBooks     int         `json:"total_available_books" mapstructure:"total_available_books"`
	TotalBorrowedBooks      int         `json:"total_borrowed_books" mapstructure:"total_borrowed_books"`
	BooksDueToday           int         `json:"books_due_today" mapstructure:"books_due_today"`
	OverdueBooks            int         `json:"overdue_books" mapstructure:"overdue_books"`
	TotalMembers            int         `json:"total_members" mapstructure:"total_members"`
	MembersWithOverdueBooks int         `json:"members_with_overdue_books" mapstructure:"members_with_overdue_books"`
	RecentBorrowings        []Borrowing `json:"recent_borrowings" mapstructure:"recent_borrowings"`
	PopularBooks            []Book      `json:"popular_books" mapstructure:"popular_books"`
	OverdueBorrowings       []Borrowing `json:"overdue_borrowings" mapstructure:"overdue_borrowings"`
}

// Dashboard is the role-discriminated dashboard result. Exactly one of
// the two fields is set, matching the role the query was issued under.
type Dashboard struct {
	Member    *MemberDashboard
	Librarian *LibrarianDashboard
}

// BookInput is the payload for creating or updating a catalog entry.
type BookInput struct {
	Title           string `json:"title" yaml:"title"`
	Author          string `json:"author" yaml:"author"`
	Genre           string `json:"genre" yaml:"genre"`
	ISBN            string `json:"isbn" yaml:"isbn"`
	TotalCopies     int    `json:"total_copies" yaml:"total_copies"`
	AvailableCopies int    `json:"available_copies" yaml:"available_copies"`
}

// SignUpInput is the payload for account registration.
type SignUpInput struct {
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	Role                 Role   `json:"role,omitempty"`
}

// SignInInput is the payload for authentication.
type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

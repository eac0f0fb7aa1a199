package mockapi

import (
	"time"

	"github.com/openshelf/shelfctl/pkg/library"
)

// User is a stored account.
type User struct {
	ID           int    `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex"`
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Book is a stored catalog entry.
type Book struct {
	ID              int `gorm:"primaryKey"`
	Title           string
	Author          string
	Genre           string
	ISBN            string `gorm:"column:isbn"`
	TotalCopies     int
	AvailableCopies int
	BorrowingsCount int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Borrowing is a stored loan record.
type Borrowing struct {
	ID         int `gorm:"primaryKey"`
	UserID     int `gorm:"index"`
	BookID     int `gorm:"index"`
	BorrowedAt time.Time
	DueDate    time.Time
	ReturnedAt *time.Time

	User User `gorm:"foreignKey:UserID"`
	Book Book `gorm:"foreignKey:BookID"`
}

// Session is an issued bearer token.
type Session struct {
	Token     string `gorm:"primaryKey"`
	UserID    int    `gorm:"index"`
	CreatedAt time.Time
}

func (u *User) toLibrary() library.User {
	return library.User{
		ID:        u.ID,
		Email:     u.Email,
		Role:      library.Role(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

func (b *Book) toLibrary() library.Book {
	return library.Book{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		Genre:           b.Genre,
		ISBN:            b.ISBN,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		BorrowingsCount: b.BorrowingsCount,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func (b *Borrowing) toLibrary(now time.Time) library.Borrowing {
	return library.Borrowing{
		ID:         b.ID,
		BorrowedAt: b.BorrowedAt,
		DueDate:    b.DueDate,
		ReturnedAt: b.ReturnedAt,
		Overdue:    library.IsOverdue(b.DueDate, b.ReturnedAt, now),
		Book: library.BookRef{
			ID:     b.Book.ID,
			Title:  b.Book.Title,
			Author: b.Book.Author,
			ISBN:   b.Book.ISBN,
		},
		User: library.UserRef{
			ID:    b.User.ID,
			Email: b.User.Email,
		},
	}
}

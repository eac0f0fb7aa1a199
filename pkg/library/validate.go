package library

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	isbnPattern  = regexp.MustCompile(`^(?:\d{10}|\d{13})$`)
)

const minPasswordLength = 6

// FieldErrors maps field names to validation messages. It is returned
// by the Validate* helpers and satisfies error so callers can surface
// it directly.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for field, msg := range e {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}

	return strings.Join(parts, "; ")
}

// ValidateSignUp checks a registration payload before it goes on the
// wire.
func ValidateSignUp(in SignUpInput) error {
	errs := FieldErrors{}

	if !emailPattern.MatchString(in.Email) {
		errs["email"] = "invalid email address"
	}

	if len(in.Password) < minPasswordLength {
		errs["password"] = fmt.Sprintf("password must be at least %d characters", minPasswordLength)
	}

	if in.Password != in.PasswordConfirmation {
		errs["password_confirmation"] = "passwords don't match"
	}

	if in.Role != "" && !in.Role.Valid() {
		errs["role"] = fmt.Sprintf("unknown role %q", in.Role)
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// ValidateSignIn checks an authentication payload.
func ValidateSignIn(in SignInInput) error {
	errs := FieldErrors{}

	if !emailPattern.MatchString(in.Email) {
		errs["email"] = "invalid email address"
	}

	if in.Password == "" {
		errs["password"] = "password is required"
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// ValidateBook checks a catalog payload. AvailableCopies exceeding
// TotalCopies is rejected here so it never reaches the server.
func ValidateBook(in BookInput) error {
	errs := FieldErrors{}

	if in.Title == "" {
		errs["title"] = "title is required"
	} else if len(in.Title) > 255 {
		errs["title"] = "title is too long"
	}

	if in.Author == "" {
		errs["author"] = "author is required"
	} else if len(in.Author) > 255 {
		errs["author"] = "author is too long"
	}

	if in.Genre == "" {
		errs["genre"] = "genre is required"
	}

	if !isbnPattern.MatchString(in.ISBN) {
		errs["isbn"] = "isbn must be 10 or 13 digits"
	}

	if in.TotalCopies < 0 {
		errs["total_copies"] = "must be at least 0"
	}

	if in.AvailableCopies < 0 {
		errs["available_copies"] = "must be at least 0"
	} else if in.AvailableCopies > in.TotalCopies {
		errs["available_copies"] = "available copies cannot exceed total copies"
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// ValidateBooksParams checks listing parameters.
func ValidateBooksParams(p BooksParams) error {
	errs := FieldErrors{}

	if p.Sort != "" && p.Sort != SortTitle && p.Sort != SortAuthor && p.Sort != SortCreatedAt {
		errs["sort"] = fmt.Sprintf("unknown sort %q", p.Sort)
	}

	if p.Page < 0 {
		errs["page"] = "must be at least 1"
	}

	if p.PerPage < 0 || p.PerPage > MaxPerPage {
		errs["per_page"] = fmt.Sprintf("must be between 1 and %d", MaxPerPage)
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// ValidateBorrowingsParams checks borrowings listing parameters.
func ValidateBorrowingsParams(p BorrowingsParams) error {
	errs := FieldErrors{}

	if p.Status != "" && p.Status != StatusActive && p.Status != StatusReturned && p.Status != StatusOverdue {
		errs["status"] = fmt.Sprintf("unknown status %q", p.Status)
	}

	if p.Page < 0 {
		errs["page"] = "must be at least 1"
	}

	if p.PerPage < 0 || p.PerPage > MaxPerPage {
		errs["per_page"] = fmt.Sprintf("must be between 1 and %d", MaxPerPage)
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

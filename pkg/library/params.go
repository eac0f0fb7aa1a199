package library

import (
	"net/url"
	"strconv"
)

// Sort orders accepted by the books listing.
const (
	SortTitle     = "title"
	SortAuthor    = "author"
	SortCreatedAt = "created_at"
)

// Borrowing status filters accepted by the borrowings listing.
const (
	StatusActive   = "active"
	StatusReturned = "returned"
	StatusOverdue  = "overdue"
)

// BooksParams filters and pages the books listing.
type BooksParams struct {
	Query     string
	Genre     string
	Available *bool
	Sort      string
	Page      int
	PerPage   int
}

// Values encodes the params as a query string, omitting zero values so
// identical logical requests produce identical cache keys.
func (p BooksParams) Values() url.Values {
	v := url.Values{}

	if p.Query != "" {
		v.Set("query", p.Query)
	}

	if p.Genre != "" {
		v.Set("genre", p.Genre)
	}

	if p.Available != nil {
		v.Set("available", strconv.FormatBool(*p.Available))
	}

	if p.Sort != "" {
		v.Set("sort", p.Sort)
	}

	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}

	if p.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(p.PerPage))
	}

	return v
}

// BorrowingsParams filters and pages the borrowings listing.
type BorrowingsParams struct {
	Status  string
	Page    int
	PerPage int
}

// Values encodes the params as a query string, omitting zero values.
func (p BorrowingsParams) Values() url.Values {
	v := url.Values{}

	if p.Status != "" {
		v.Set("status", p.Status)
	}

	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}

	if p.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(p.PerPage))
	}

	return v
}

package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openshelf/shelfctl/pkg/library"
)

// bookEnvelope wraps book payloads the way the API expects them.
type bookEnvelope struct {
	Book library.BookInput `json:"book"`
}

// BooksResult is a page of the catalog.
type BooksResult struct {
	Books      []library.Book     `json:"books"`
	Pagination library.Pagination `json:"pagination"`
}

// BookResult is a single catalog entry.
type BookResult struct {
	Book    library.Book `json:"book"`
	Message string       `json:"message,omitempty"`
}

// ListBooks fetches a filtered, sorted, paginated slice of the catalog.
func (c *Client) ListBooks(ctx context.Context, params library.BooksParams) (*BooksResult, error) {
	if err := library.ValidateBooksParams(params); err != nil {
		return nil, err
	}

	var out BooksResult
	if err := c.getJSON(ctx, "/books", params.Values(), &out); err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}

	return &out, nil
}

// GetBook fetches one catalog entry by id.
func (c *Client) GetBook(ctx context.Context, id int) (*BookResult, error) {
	var out BookResult
	if err := c.getJSON(ctx, fmt.Sprintf("/books/%d", id), nil, &out); err != nil {
		return nil, fmt.Errorf("fetching book %d: %w", id, err)
	}

	return &out, nil
}

// CreateBook adds a catalog entry. Librarian only; the input is
// validated locally before any network call.
func (c *Client) CreateBook(ctx context.Context, in library.BookInput) (*BookResult, error) {
	if err := library.ValidateBook(in); err != nil {
		return nil, err
	}

	var out BookResult
	if err := c.sendJSON(ctx, http.MethodPost, "/books", bookEnvelope{Book: in}, &out); err != nil {
		return nil, fmt.Errorf("creating book: %w", err)
	}

	return &out, nil
}

// UpdateBook replaces a catalog entry. Librarian only.
func (c *Client) UpdateBook(ctx context.Context, id int, in library.BookInput) (*BookResult, error) {
	if err := library.ValidateBook(in); err != nil {
		return nil, err
	}

	var out BookResult
	if err := c.sendJSON(ctx, http.MethodPut, fmt.Sprintf("/books/%d", id), bookEnvelope{Book: in}, &out); err != nil {
		return nil, fmt.Errorf("updating book %d: %w", id, err)
	}

	return &out, nil
}

// DeleteBook removes a catalog entry. Librarian only.
func (c *Client) DeleteBook(ctx context.Context, id int) error {
	if err := c.sendJSON(ctx, http.MethodDelete, fmt.Sprintf("/books/%d", id), nil, nil); err != nil {
		return fmt.Errorf("deleting book %d: %w", id, err)
	}

	return nil
}

package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openshelf/shelfctl/pkg/library"
)

// borrowEnvelope wraps the borrow payload.
type borrowEnvelope struct {
	Borrowing borrowInput `json:"borrowing"`
}

type borrowInput struct {
	BookID int `json:"book_id"`
}

// returnInput is the return-action payload.
type returnInput struct {
	ActionType string `json:"action_type"`
}

// BorrowingsResult is a page of borrowings.
type BorrowingsResult struct {
	Borrowings []library.Borrowing `json:"borrowings"`
	Pagination library.Pagination  `json:"pagination"`
}

// BorrowingResult is a single borrowing.
type BorrowingResult struct {
	Borrowing library.Borrowing `json:"borrowing"`
	Message   string            `json:"message,omitempty"`
}

// ListBorrowings fetches borrowings. Members see their own, librarians
// see everyone's; the server scopes by the credential's role.
func (c *Client) ListBorrowings(ctx context.Context, params library.BorrowingsParams) (*BorrowingsResult, error) {
	if err := library.ValidateBorrowingsParams(params); err != nil {
		return nil, err
	}

	var out BorrowingsResult
	if err := c.getJSON(ctx, "/borrowings", params.Values(), &out); err != nil {
		return nil, fmt.Errorf("listing borrowings: %w", err)
	}

	return &out, nil
}

// GetBorrowing fetches one borrowing by id.
func (c *Client) GetBorrowing(ctx context.Context, id int) (*BorrowingResult, error) {
	var out BorrowingResult
	if err := c.getJSON(ctx, fmt.Sprintf("/borrowings/%d", id), nil, &out); err != nil {
		return nil, fmt.Errorf("fetching borrowing %d: %w", id, err)
	}

	return &out, nil
}

// ListOverdueBorrowings fetches overdue borrowings. Librarian only.
func (c *Client) ListOverdueBorrowings(ctx context.Context, params library.BorrowingsParams) (*BorrowingsResult, error) {
	if err := library.ValidateBorrowingsParams(params); err != nil {
		return nil, err
	}

	var out BorrowingsResult
	if err := c.getJSON(ctx, "/borrowings/overdue", params.Values(), &out); err != nil {
		return nil, fmt.Errorf("listing overdue borrowings: %w", err)
	}

	return &out, nil
}

// BorrowBook borrows a copy of the given book for the current member.
func (c *Client) BorrowBook(ctx context.Context, bookID int) (*BorrowingResult, error) {
	body := borrowEnvelope{Borrowing: borrowInput{BookID: bookID}}

	var out BorrowingResult
	if err := c.sendJSON(ctx, http.MethodPost, "/borrowings", body, &out); err != nil {
		return nil, fmt.Errorf("borrowing book %d: %w", bookID, err)
	}

	return &out, nil
}

// ReturnBook marks a borrowing returned.
func (c *Client) ReturnBook(ctx context.Context, borrowingID int) (*BorrowingResult, error) {
	body := returnInput{ActionType: "return"}

	var out BorrowingResult
	if err := c.sendJSON(ctx, http.MethodPut, fmt.Sprintf("/borrowings/%d", borrowingID), body, &out); err != nil {
		return nil, fmt.Errorf("returning borrowing %d: %w", borrowingID, err)
	}

	return &out, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openshelf/shelfctl/pkg/cache"
	"github.com/openshelf/shelfctl/pkg/client"
	"github.com/openshelf/shelfctl/pkg/library"
)

var (
	borrowingsStatus  string
	borrowingsPage    int
	borrowingsPerPage int
)

var borrowingsCmd = &cobra.Command{
	Use:   "borrowings",
	Short: "View and manage borrowings",
}

var borrowingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List borrowings (members see their own)",
	RunE: runApp(func(ctx context.Context, a *app, _ []string) error {
		if err := a.requireBorrowingsAccess(ctx); err != nil {
			return err
		}

		params := library.BorrowingsParams{
			Status:  borrowingsStatus,
			Page:    borrowingsPage,
			PerPage: borrowingsPerPage,
		}

		result, err := a.queryBorrowings(ctx, params)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(result)
		}

		renderBorrowings(result.Borrowings)
		renderPagination(result.Pagination)

		return nil
	}),
}

var borrowingsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one borrowing",
	Args:  cobra.ExactArgs(1),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid borrowing id %q", args[0])
		}

		if err := a.requireBorrowingsAccess(ctx); err != nil {
			return err
		}

		res := a.cache.Query(ctx, cache.BorrowingDetailKey(id), func(ctx context.Context) (any, error) {
			return a.api.GetBorrowing(ctx, id)
		}, cache.Options{Disabled: id <= 0})
		if res.Err != nil {
			return fmt.Errorf("fetching borrowing %d: %w", id, res.Err)
		}

		result := res.Data.(*client.BorrowingResult)

		if jsonOutput {
			return printJSON(result)
		}

		renderBorrowings([]library.Borrowing{result.Borrowing})

		return nil
	}),
}

var borrowingsOverdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "List overdue borrowings (librarian)",
	RunE: runApp(func(ctx context.Context, a *app, _ []string) error {
		if err := a.requireAccess(ctx, "/borrowings/overdue"); err != nil {
			return err
		}

		params := library.BorrowingsParams{
			Page:    borrowingsPage,
			PerPage: borrowingsPerPage,
		}

		res := a.cache.Query(ctx, cache.OverdueBorrowingsKey(params), func(ctx context.Context) (any, error) {
			return a.api.ListOverdueBorrowings(ctx, params)
		}, cache.Options{})
		if res.Err != nil {
			return fmt.Errorf("listing overdue borrowings: %w", res.Err)
		}

		result := res.Data.(*client.BorrowingsResult)

		if jsonOutput {
			return printJSON(result)
		}

		renderBorrowings(result.Borrowings)
		renderPagination(result.Pagination)

		return nil
	}),
}

var borrowCmd = &cobra.Command{
	Use:   "borrow <book-id>",
	Short: "Borrow a book",
	Args:  cobra.ExactArgs(1),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		bookID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid book id %q", args[0])
		}

		if err := a.requireBorrowingsAccess(ctx); err != nil {
			return err
		}

		result, err := a.mutator.BorrowBook(ctx, bookID)
		if err != nil {
			return fmt.Errorf("borrowing book: %w", err)
		}

		b := result.Borrowing
		fmt.Printf("Borrowed %q, due %s\n",
			b.Book.Title, b.DueDate.Format("2006-01-02"))

		return nil
	}),
}

var returnCmd = &cobra.Command{
	Use:   "return <borrowing-id>",
	Short: "Return a borrowed book",
	Args:  cobra.ExactArgs(1),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid borrowing id %q", args[0])
		}

		if err := a.requireBorrowingsAccess(ctx); err != nil {
			return err
		}

		result, err := a.mutator.ReturnBook(ctx, id)
		if err != nil {
			return fmt.Errorf("returning book: %w", err)
		}

		fmt.Printf("Returned %q\n", result.Borrowing.Book.Title)

		return nil
	}),
}

// queryBorrowings serves a borrowings listing through the cache.
func (a *app) queryBorrowings(ctx context.Context, params library.BorrowingsParams) (*client.BorrowingsResult, error) {
	res := a.cache.Query(ctx, cache.BorrowingsListKey(params), func(ctx context.Context) (any, error) {
		return a.api.ListBorrowings(ctx, params)
	}, cache.Options{})
	if res.Err != nil {
		return nil, fmt.Errorf("listing borrowings: %w", res.Err)
	}

	return res.Data.(*client.BorrowingsResult), nil
}

func renderBorrowings(borrowings []library.Borrowing) {
	now := time.Now().UTC()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBOOK\tMEMBER\tBORROWED\tDUE\tSTATUS")

	for i := range borrowings {
		b := &borrowings[i]
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, b.Book.Title, b.User.Email,
			b.BorrowedAt.Format("2006-01-02"),
			b.DueDate.Format("2006-01-02"),
			library.StatusText(b, now))
	}

	_ = w.Flush()
}

func init() {
	borrowingsListCmd.Flags().StringVar(&borrowingsStatus, "status", "",
		"filter by status (active, returned, overdue)")
	borrowingsListCmd.Flags().IntVar(&borrowingsPage, "page", 0, "page number")
	borrowingsListCmd.Flags().IntVar(&borrowingsPerPage, "per-page", 0, "results per page")
	borrowingsOverdueCmd.Flags().IntVar(&borrowingsPage, "page", 0, "page number")
	borrowingsOverdueCmd.Flags().IntVar(&borrowingsPerPage, "per-page", 0, "results per page")

	borrowingsCmd.AddCommand(borrowingsListCmd, borrowingsGetCmd, borrowingsOverdueCmd)
	rootCmd.AddCommand(borrowingsCmd, borrowCmd, returnCmd)
}

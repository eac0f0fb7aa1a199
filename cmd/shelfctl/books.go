package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openshelf/shelfctl/pkg/access"
	"github.com/openshelf/shelfctl/pkg/cache"
	"github.com/openshelf/shelfctl/pkg/client"
	"github.com/openshelf/shelfctl/pkg/library"
)

var (
	booksQuery     string
	booksGenre     string
	booksAvailable bool
	booksSort      string
	booksPage      int
	booksPerPage   int

	bookFile string
)

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Browse and manage the catalog",
}

var booksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries",
	RunE: runApp(func(ctx context.Context, a *app, _ []string) error {
		if err := a.requireAccess(ctx, access.PathBooks); err != nil {
			return err
		}

		params := library.BooksParams{
			Query:   booksQuery,
			Genre:   booksGenre,
			Sort:    booksSort,
			Page:    booksPage,
			PerPage: booksPerPage,
		}

		if booksAvailable {
			avail := true
			params.Available = &avail
		}

		result, err := a.queryBooks(ctx, params)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(result)
		}

		renderBooks(result.Books)
		renderPagination(result.Pagination)

		return nil
	}),
}

var booksGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one catalog entry",
	Args:  cobra.ExactArgs(1),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid book id %q", args[0])
		}

		if err := a.requireAccess(ctx, fmt.Sprintf("/books/%d", id)); err != nil {
			return err
		}

		result, err := a.queryBook(ctx, id)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(result)
		}

		renderBooks([]library.Book{result.Book})

		return nil
	}),
}

var booksCreateCmd = &cobra.Command{
	Use:   "create -f <file>",
	Short: "Add a book to the catalog (librarian)",
	RunE: runApp(func(ctx context.Context, a *app, _ []string) error {
		if err := a.requireAccess(ctx, access.PathBooks+"/new"); err != nil {
			return err
		}

		input, err := readBookInput(bookFile)
		if err != nil {
			return err
		}

		result, err := a.mutator.CreateBook(ctx, input)
		if err != nil {
			return fmt.Errorf("creating book: %w", err)
		}

		fmt.Printf("Created book %d: %s\n", result.Book.ID, result.Book.Title)

		return nil
	}),
}

var booksUpdateCmd = &cobra.Command{
	Use:   "update <id> -f <file>",
	Short: "Update a catalog entry (librarian)",
	Args:  cobra.ExactArgs(1),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid book id %q", args[0])
		}

		if err := a.requireAccess(ctx, fmt.Sprintf("/books/%d/edit", id)); err != nil {
			return err
		}

		input, err := readBookInput(bookFile)
		if err != nil {
			return err
		}

		result, err := a.mutator.UpdateBook(ctx, id, input)
		if err != nil {
			return fmt.Errorf("updating book: %w", err)
		}

		fmt.Printf("Updated book %d: %s\n", result.Book.ID, result.Book.Title)

		return nil
	}),
}

var booksDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a catalog entry (librarian)",
	Args:  cobra.ExactArgs(1),
	RunE: runApp(func(ctx context.Context, a *app, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid book id %q", args[0])
		}

		if err := a.requireAccess(ctx, fmt.Sprintf("/books/%d/edit", id)); err != nil {
			return err
		}

		if err := a.mutator.DeleteBook(ctx, id); err != nil {
			return fmt.Errorf("deleting book: %w", err)
		}

		fmt.Printf("Deleted book %d\n", id)

		return nil
	}),
}

// queryBooks serves a books listing through the cache.
func (a *app) queryBooks(ctx context.Context, params library.BooksParams) (*client.BooksResult, error) {
	res := a.cache.Query(ctx, cache.BooksListKey(params), func(ctx context.Context) (any, error) {
		return a.api.ListBooks(ctx, params)
	}, cache.Options{})
	if res.Err != nil {
		return nil, fmt.Errorf("listing books: %w", res.Err)
	}

	return res.Data.(*client.BooksResult), nil
}

// queryBook serves a book detail through the cache. A non-positive id
// disables the query.
func (a *app) queryBook(ctx context.Context, id int) (*client.BookResult, error) {
	res := a.cache.Query(ctx, cache.BookDetailKey(id), func(ctx context.Context) (any, error) {
		return a.api.GetBook(ctx, id)
	}, cache.Options{Disabled: id <= 0})
	if res.Err != nil {
		return nil, fmt.Errorf("fetching book %d: %w", id, res.Err)
	}

	if res.Status == cache.StatusIdle {
		return nil, fmt.Errorf("no usable book id")
	}

	return res.Data.(*client.BookResult), nil
}

func readBookInput(path string) (library.BookInput, error) {
	var input library.BookInput

	if path == "" {
		return input, fmt.Errorf("a book file is required (use -f)")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return input, fmt.Errorf("reading book file: %w", err)
	}

	if err := yaml.Unmarshal(data, &input); err != nil {
		return input, fmt.Errorf("parsing book file: %w", err)
	}

	return input, nil
}

func renderBooks(books []library.Book) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tGENRE\tISBN\tAVAILABLE")

	for i := range books {
		b := &books[i]
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d/%d\n",
			b.ID, b.Title, b.Author, b.Genre, b.ISBN,
			b.AvailableCopies, b.TotalCopies)
	}

	_ = w.Flush()
}

func renderPagination(p library.Pagination) {
	if p.TotalPages > 1 {
		fmt.Printf("Page %d of %d (%d total)\n",
			p.CurrentPage, p.TotalPages, p.TotalCount)
	}
}

func init() {
	booksListCmd.Flags().StringVar(&booksQuery, "query", "", "search title and author")
	booksListCmd.Flags().StringVar(&booksGenre, "genre", "", "filter by genre")
	booksListCmd.Flags().BoolVar(&booksAvailable, "available", false,
		"only books with available copies")
	booksListCmd.Flags().StringVar(&booksSort, "sort", "",
		"sort order (title, author, created_at)")
	booksListCmd.Flags().IntVar(&booksPage, "page", 0, "page number")
	booksListCmd.Flags().IntVar(&booksPerPage, "per-page", 0, "results per page")

	booksCreateCmd.Flags().StringVarP(&bookFile, "file", "f", "", "YAML book definition")
	booksUpdateCmd.Flags().StringVarP(&bookFile, "file", "f", "", "YAML book definition")

	booksCmd.AddCommand(booksListCmd, booksGetCmd, booksCreateCmd,
		booksUpdateCmd, booksDeleteCmd)
	rootCmd.AddCommand(booksCmd)
}

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openshelf/shelfctl/pkg/access"
	"github.com/openshelf/shelfctl/pkg/cache"
	"github.com/openshelf/shelfctl/pkg/library"
)

var dashboardWatch bool

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show the role-specific dashboard",
	Long: `Show the dashboard for the signed-in account: personal borrowing
status for members, collection-wide statistics for librarians.
With --watch the dashboard refreshes periodically until interrupted.`,
	RunE: runApp(func(ctx context.Context, a *app, _ []string) error {
		if err := a.requireAccess(ctx, access.PathDashboard); err != nil {
			return err
		}

		role := a.store.User().Role

		fetcher := func(ctx context.Context) (any, error) {
			return a.api.Dashboard(ctx, role)
		}

		if !dashboardWatch {
			res := a.cache.Query(ctx, cache.DashboardKey, fetcher, cache.Options{})
			if res.Err != nil {
				return fmt.Errorf("fetching dashboard: %w", res.Err)
			}

			return renderDashboardResult(res)
		}

		// Watch mode: subscribe with a refetch interval and re-render
		// on every update until interrupted.
		updates := make(chan cache.Result, 1)

		unsubscribe := a.cache.Subscribe(cache.DashboardKey, fetcher, cache.Options{
			RefetchInterval: a.cfg.Cache.DashboardInterval,
		}, func(res cache.Result) {
			select {
			case updates <- res:
			default:
			}
		})
		defer unsubscribe()

		// The subscription triggers the initial load; every completed
		// fetch lands here.
		for {
			select {
			case res := <-updates:
				if res.Err != nil {
					log.WithError(res.Err).Warn("Dashboard refresh failed")

					continue
				}

				if err := renderDashboardResult(res); err != nil {
					return err
				}
			case <-ctx.Done():
				return nil
			}
		}
	}),
}

func renderDashboardResult(res cache.Result) error {
	dashboard, ok := res.Data.(*library.Dashboard)
	if !ok {
		return fmt.Errorf("unexpected dashboard payload")
	}

	if jsonOutput {
		return printJSON(dashboard)
	}

	switch {
	case dashboard.Member != nil:
		renderMemberDashboard(dashboard.Member)
	case dashboard.Librarian != nil:
		renderLibrarianDashboard(dashboard.Librarian)
	default:
		return fmt.Errorf("empty dashboard payload")
	}

	return nil
}

func renderMemberDashboard(d *library.MemberDashboard) {
	fmt.Printf("As of %s\n\n", time.Now().Format(time.RFC1123))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Active borrowings\t%d\n", d.ActiveBorrowingsCount)
	fmt.Fprintf(w, "Overdue\t%d\n", d.OverdueBorrowingsCount)
	fmt.Fprintf(w, "Due soon\t%d\n", d.BooksDueSoon)
	_ = w.Flush()

	if len(d.BorrowedBooks) > 0 {
		fmt.Println("\nCurrently borrowed:")
		renderBorrowings(d.BorrowedBooks)
	}
}

func renderLibrarianDashboard(d *library.LibrarianDashboard) {
	fmt.Printf("As of %s\n\n", time.Now().Format(time.RFC1123))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Total books\t%d\n", d.TotalBooks)
	fmt.Fprintf(w, "Available\t%d\n", d.TotalAvailableBooks)
	fmt.Fprintf(w, "Borrowed\t%d\n", d.TotalBorrowedBooks)
	fmt.Fprintf(w, "Due today\t%d\n", d.BooksDueToday)
	fmt.Fprintf(w, "Overdue\t%d\n", d.OverdueBooks)
	fmt.Fprintf(w, "Members\t%d\n", d.TotalMembers)
	fmt.Fprintf(w, "Members with overdue\t%d\n", d.MembersWithOverdueBooks)
	_ = w.Flush()

	if len(d.OverdueBorrowings) > 0 {
		fmt.Println("\nOverdue borrowings:")
		renderBorrowings(d.OverdueBorrowings)
	}

	if len(d.PopularBooks) > 0 {
		fmt.Println("\nPopular books:")
		renderBooks(d.PopularBooks)
	}
}

func init() {
	dashboardCmd.Flags().BoolVar(&dashboardWatch, "watch", false,
		"refresh periodically until interrupted")

	rootCmd.AddCommand(dashboardCmd)
}

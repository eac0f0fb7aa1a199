package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/openshelf/shelfctl/pkg/access"
	"github.com/openshelf/shelfctl/pkg/cache"
	"github.com/openshelf/shelfctl/pkg/client"
	"github.com/openshelf/shelfctl/pkg/config"
	"github.com/openshelf/shelfctl/pkg/library"
	"github.com/openshelf/shelfctl/pkg/mutate"
	"github.com/openshelf/shelfctl/pkg/session"
)

var jsonOut = jsoniter.ConfigCompatibleWithStandardLibrary

// app wires the config, session store, API client, cache, and mutation
// coordinator together for one CLI invocation.
type app struct {
	cfg     *config.Config
	store   *session.Store
	api     *client.Client
	cache   *cache.Cache
	mutator *mutate.Coordinator
	boot    *session.Bootstrapper
	nav     *cliNavigator
}

// cliNavigator satisfies the access gate's navigation surface. The CLI
// has no real pages; "navigating" to the login page just tells the
// user to sign in again.
type cliNavigator struct {
	location string
}

func (n *cliNavigator) Current() string { return n.location }

func (n *cliNavigator) Navigate(path string) {
	n.location = path

	if path == access.PathLogin {
		fmt.Fprintln(os.Stderr, "Session expired. Run 'shelfctl login' to sign in again.")
	}
}

// newApp builds the full client stack from configuration.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	credsDir, err := cfg.CredentialsDir()
	if err != nil {
		return nil, fmt.Errorf("resolving credentials dir: %w", err)
	}

	store := session.NewStore(log, session.NewFileCredentialStore(credsDir))
	nav := &cliNavigator{}

	api := client.New(
		log,
		cfg.API.BaseURL,
		client.WithTimeout(cfg.API.Timeout),
		client.WithRateLimit(cfg.API.RequestsPerSecond),
		client.WithReadRetries(cfg.API.ReadRetries),
		client.WithTokenSource(store),
		client.WithTokenRefreshHook(store.SetToken),
		client.WithUnauthorizedHook(access.UnauthorizedHandler(store, nav)),
	)

	c := cache.New(log, cache.Config{
		StaleTime: cfg.Cache.StaleTime,
		GCGrace:   cfg.Cache.GCGrace,
	})
	c.Start(ctx)

	return &app{
		cfg:     cfg,
		store:   store,
		api:     api,
		cache:   c,
		mutator: mutate.NewCoordinator(log, api, c, store),
		boot:    session.NewBootstrapper(log, store, api.CurrentUser),
		nav:     nav,
	}, nil
}

func (a *app) close() {
	a.cache.Stop()
}

// requireAccess restores the persisted session, validates it against
// the server, and checks the access gate for the given location.
func (a *app) requireAccess(ctx context.Context, path string) error {
	a.nav.location = path
	a.boot.Run(ctx)

	return a.checkAccess(path)
}

// requireBorrowingsAccess is requireAccess for the borrowings surface,
// which splits by role: members get their own list, librarians get
// everyone's.
func (a *app) requireBorrowingsAccess(ctx context.Context) error {
	a.boot.Run(ctx)

	path := "/my-borrowings"
	if u := a.store.User(); u != nil && u.Role == library.RoleLibrarian {
		path = "/borrowings"
	}

	a.nav.location = path

	return a.checkAccess(path)
}

func (a *app) checkAccess(path string) error {
	decision := access.Decide(a.store.Snapshot(), path)

	switch decision.State {
	case access.StateGranted:
		return nil
	case access.StateDeniedUnauthenticated:
		return fmt.Errorf("not signed in; run 'shelfctl login'")
	case access.StateDeniedWrongRole:
		return fmt.Errorf("this command requires a librarian account")
	default:
		return fmt.Errorf("session state unresolved")
	}
}

// runApp wraps a command body with app construction and teardown.
func runApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(
			cmd.Context(), syscall.SIGINT, syscall.SIGTERM,
		)
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		return fn(ctx, a, args)
	}
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	data, err := jsonOut.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	fmt.Println(string(data))

	return nil
}

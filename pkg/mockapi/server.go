// Package mockapi runs a self-contained library service speaking the
// same wire protocol as the real backend. It backs local development
// and the integration tests, persisting to SQLite or PostgreSQL.
package mockapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/openshelf/shelfctl/pkg/config"
)

const (
	shutdownTimeout   = 10 * time.Second
	sessionTokenBytes = 32
)

// Server exposes the mock API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	// Addr returns the bound listen address, available after Start.
	Addr() string
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.MockConfig
	store      Store
	httpServer *http.Server
	addr       string
	wg         sync.WaitGroup
	done       chan struct{}
}

// NewServer creates a new mock API server.
func NewServer(log logrus.FieldLogger, cfg *config.MockConfig) Server {
	return &server{
		log:  log.WithField("component", "mockapi"),
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start opens the store, optionally seeds fixture data, and starts the
// HTTP server.
func (s *server) Start(ctx context.Context) error {
	s.store = NewStore(s.log, &s.cfg.Database)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	if s.cfg.Seed {
		if err := seed(ctx, s.store); err != nil {
			return fmt.Errorf("seeding fixtures: %w", err)
		}

		s.log.Info("Fixture data seeded")
	}

	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}

	s.addr = ln.Addr().String()

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.addr).Info("Mock API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server and closes the store.
func (s *server) Stop() error {
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("Mock API server stopped")

	return nil
}

// Addr returns the bound listen address.
func (s *server) Addr() string {
	return s.addr
}

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/sign_up", s.handleSignUp)
			r.Post("/sign_in", s.handleSignIn)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Delete("/sign_out", s.handleSignOut)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/users/me", s.handleCurrentUser)

			r.Route("/books", func(r chi.Router) {
				r.Get("/", s.handleListBooks)
				r.Get("/{id}", s.handleGetBook)

				r.Group(func(r chi.Router) {
					r.Use(s.requireRole("librarian"))
					r.Post("/", s.handleCreateBook)
					r.Put("/{id}", s.handleUpdateBook)
					r.Delete("/{id}", s.handleDeleteBook)
				})
			})

			r.Route("/borrowings", func(r chi.Router) {
				r.Get("/", s.handleListBorrowings)
				r.Post("/", s.handleBorrowBook)

				r.Group(func(r chi.Router) {
					r.Use(s.requireRole("librarian"))
					r.Get("/overdue", s.handleOverdueBorrowings)
				})

				r.Get("/{id}", s.handleGetBorrowing)
				r.Put("/{id}", s.handleReturnBook)
			})

			r.Get("/dashboard", s.handleDashboard)
		})
	})

	return r
}

// corsMiddleware returns a CORS handler configured from the mock config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-Id"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

type contextKey string

const userContextKey contextKey = "user"

// requireAuth validates the Bearer token and injects the user into the
// request context.
func (s *server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{Error: "authentication required"})

			return
		}

		user, err := s.store.GetSessionUser(r.Context(), authHeader[7:])
		if err != nil {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{Error: "invalid or expired session"})

			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole restricts a route to users with the given role.
func (s *server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := userFrom(r)
			if user == nil || user.Role != role {
				writeJSON(w, http.StatusForbidden,
					errorResponse{Error: "insufficient permissions"})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// userFrom returns the authenticated user from the request context.
func userFrom(r *http.Request) *User {
	user, _ := r.Context().Value(userContextKey).(*User)

	return user
}

// generateSessionToken creates a cryptographically random bearer token.
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return hex.EncodeToString(b), nil
}

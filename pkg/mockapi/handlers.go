package mockapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/openshelf/shelfctl/pkg/library"
)

// errorResponse is the standard error payload.
type errorResponse struct {
	Error   string   `json:"error,omitempty"`
	Message string   `json:"message,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// writeValidationErrors reports a 422 with one line per failed field.
func writeValidationErrors(w http.ResponseWriter, err error) {
	var fieldErrs library.FieldErrors
	if !errors.As(err, &fieldErrs) {
		writeJSON(w, http.StatusUnprocessableEntity,
			errorResponse{Error: err.Error()})

		return
	}

	lines := make([]string, 0, len(fieldErrs))
	for field, msg := range fieldErrs {
		lines = append(lines, field+" "+msg)
	}

	sort.Strings(lines)

	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
		Error:  "validation failed",
		Errors: lines,
	})
}

// writeStoreError maps store errors to HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound,
			errorResponse{Error: "record not found"})
	case errors.Is(err, ErrNoCopies):
		writeJSON(w, http.StatusUnprocessableEntity,
			errorResponse{Error: "no copies available"})
	case errors.Is(err, ErrAlreadyExists):
		writeJSON(w, http.StatusUnprocessableEntity,
			errorResponse{Error: "email has already been taken"})
	case errors.Is(err, ErrAlreadyReturn):
		writeJSON(w, http.StatusUnprocessableEntity,
			errorResponse{Error: "borrowing already returned"})
	case errors.Is(err, ErrActiveBorrows):
		writeJSON(w, http.StatusUnprocessableEntity,
			errorResponse{Error: "book has active borrowings"})
	case errors.Is(err, ErrCopiesExceeded):
		writeJSON(w, http.StatusUnprocessableEntity,
			errorResponse{Error: "available copies cannot exceed total copies"})
	default:
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{Error: "internal server error"})
	}
}

func paginationFor(page, perPage int, total int64) library.Pagination {
	page = pageOf(page)
	perPage = perPageOf(perPage)

	pages := int(total) / perPage
	if int(total)%perPage != 0 {
		pages++
	}

	return library.Pagination{
		CurrentPage: page,
		TotalPages:  pages,
		TotalCount:  int(total),
		PerPage:     perPage,
	}
}

func idParam(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))

	return id, err == nil && id > 0
}

// --- Health ---

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Auth handlers ---

type signUpRequest struct {
	User library.SignUpInput `json:"user"`
}

func (s *server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{Error: "invalid request body"})

		return
	}

	if errs := library.ValidateSignUp(req.User); errs != nil {
		writeValidationErrors(w, errs)

		return
	}

	role := req.User.Role
	if role == "" {
		role = library.RoleMember
	}

	hash, err := bcrypt.GenerateFromPassword(
		[]byte(req.User.Password), bcrypt.DefaultCost,
	)
	if err != nil {
		s.log.WithError(err).Error("Failed to hash password")
		writeStoreError(w, err)

		return
	}

	user, err := s.store.CreateUser(
		r.Context(), req.User.Email, string(hash), string(role),
	)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user":    user.toLibrary(),
		"message": "Signed up successfully",
	})
}

type signInRequest struct {
	User library.SignInInput `json:"user"`
}

func (s *server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{Error: "invalid request body"})

		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.User.Email)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized,
			errorResponse{Error: "invalid email or password"})

		return
	}

	if err := bcrypt.CompareHashAndPassword(
		[]byte(user.PasswordHash), []byte(req.User.Password),
	); err != nil {
		writeJSON(w, http.StatusUnauthorized,
			errorResponse{Error: "invalid email or password"})

		return
	}

	token, err := generateSessionToken()
	if err != nil {
		s.log.WithError(err).Error("Failed to generate session token")
		writeStoreError(w, err)

		return
	}

	if err := s.store.CreateSession(r.Context(), token, user.ID); err != nil {
		writeStoreError(w, err)

		return
	}

	// The credential travels back in the Authorization header, matching
	// the real backend's token hand-off.
	w.Header().Set("Authorization", "Bearer "+token)

	writeJSON(w, http.StatusOK, map[string]any{
		"user":    user.toLibrary(),
		"message": "Signed in successfully",
	})
}

func (s *server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")

	if err := s.store.DeleteSession(r.Context(), authHeader[7:]); err != nil {
		writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Signed out successfully",
	})
}

func (s *server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	writeJSON(w, http.StatusOK, map[string]any{
		"user": user.toLibrary(),
	})
}

// --- Book handlers ---

type bookRequest struct {
	Book library.BookInput `json:"book"`
}

func (s *server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := BookFilter{
		Query: q.Get("query"),
		Genre: q.Get("genre"),
		Sort:  q.Get("sort"),
	}

	if q.Get("available") != "" {
		avail := q.Get("available") == "true"
		filter.Available = &avail
	}

	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	books, total, err := s.store.ListBooks(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	out := make([]library.Book, 0, len(books))
	for i := range books {
		out = append(out, books[i].toLibrary())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"books":      out,
		"pagination": paginationFor(filter.Page, filter.PerPage, total),
	})
}

func (s *server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusNotFound,
			errorResponse{Error: "record not found"})

		return
	}

	book, err := s.store.GetBook(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"book": book.toLibrary()})
}

func (s *server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{Error: "invalid request body"})

		return
	}

	if errs := library.ValidateBook(req.Book); errs != nil {
		writeValidationErrors(w, errs)

		return
	}

	book := &Book{
		Title:           req.Book.Title,
		Author:          req.Book.Author,
		Genre:           req.Book.Genre,
		ISBN:            req.Book.ISBN,
		TotalCopies:     req.Book.TotalCopies,
		AvailableCopies: req.Book.AvailableCopies,
	}

	if err := s.store.CreateBook(r.Context(), book); err != nil {
		writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"book":    book.toLibrary(),
		"message": "Book created successfully",
	})
}

func (s *server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusNotFound,
			errorResponse{Error: "record not found"})

		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{Error: "invalid request body"})

		return
	}

	if errs := library.ValidateBook(req.Book); errs != nil {
		writeValidationErrors(w, errs)

		return
	}

	book := &Book{
		ID:              id,
		Title:           req.Book.Title,
		Author:          req.Book.Author,
		Genre:           req.Book.Genre,
		ISBN:            req.Book.ISBN,
		TotalCopies:     req.Book.TotalCopies,
		AvailableCopies: req.Book.AvailableCopies,
	}

	if err := s.store.UpdateBook(r.Context(), book); err != nil {
		writeStoreError(w, err)

		return
	}

	updated, err := s.store.GetBook(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"book":    updated.toLibrary(),
		"message": "Book updated successfully",
	})
}

func (s *server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusNotFound,
			errorResponse{Error: "record not found"})

		return
	}

	if err := s.store.DeleteBook(r.Context(), id); err != nil {
		writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Book deleted successfully",
	})
}

// --- Borrowing handlers ---

type borrowRequest struct {
	Borrowing struct {
		BookID int `json:"book_id"`
	} `json:"borrowing"`
}

type returnRequest struct {
	ActionType string `json:"action_type"`
}

func (s *server) handleListBorrowings(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	q := r.URL.Query()

	filter := BorrowingFilter{
		Status: q.Get("status"),
	}

	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	// Members only ever see their own borrowings.
	if user.Role != string(library.RoleLibrarian) {
		filter.UserID = user.ID
	}

	borrowings, total, err := s.store.ListBorrowings(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"borrowings": toLibraryBorrowings(borrowings, time.Now().UTC()),
		"pagination": paginationFor(filter.Page, filter.PerPage, total),
	})
}

func (s *server) handleOverdueBorrowings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter BorrowingFilter
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	now := time.Now().UTC()

	borrowings, total, err := s.store.ListOverdue(r.Context(), filter, now)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"borrowings": toLibraryBorrowings(borrowings, now),
		"pagination": paginationFor(filter.Page, filter.PerPage, total),
	})
}

func (s *server) handleGetBorrowing(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusNotFound,
			errorResponse{Error: "record not found"})

		return
	}

	borrowing, err := s.store.GetBorrowing(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	if user.Role != string(library.RoleLibrarian) && borrowing.UserID != user.ID {
		writeJSON(w, http.StatusForbidden,
			errorResponse{Error: "insufficient permissions"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"borrowing": borrowing.toLibrary(time.Now().UTC()),
	})
}

func (s *server) handleBorrowBook(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{Error: "invalid request body"})

		return
	}

	if req.Borrowing.BookID <= 0 {
		writeJSON(w, http.StatusUnprocessableEntity,
			errorResponse{Error: "book_id is required"})

		return
	}

	now := time.Now().UTC()

	borrowing, err := s.store.CreateBorrowing(
		r.Context(), user.ID, req.Borrowing.BookID, now,
	)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"borrowing": borrowing.toLibrary(now),
		"message":   "Book borrowed successfully",
	})
}

func (s *server) handleReturnBook(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusNotFound,
			errorResponse{Error: "record not found"})

		return
	}

	var req returnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.ActionType != "return" {
		writeJSON(w, http.StatusUnprocessableEntity,
			errorResponse{Error: "unsupported action"})

		return
	}

	existing, err := s.store.GetBorrowing(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	if user.Role != string(library.RoleLibrarian) && existing.UserID != user.ID {
		writeJSON(w, http.StatusForbidden,
			errorResponse{Error: "insufficient permissions"})

		return
	}

	now := time.Now().UTC()

	borrowing, err := s.store.ReturnBorrowing(r.Context(), id, now)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"borrowing": borrowing.toLibrary(now),
		"message":   "Book returned successfully",
	})
}

// --- Dashboard ---

func (s *server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	if user.Role == string(library.RoleLibrarian) {
		s.librarianDashboard(w, r)

		return
	}

	s.memberDashboard(w, r)
}

func (s *server) memberDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userFrom(r)
	now := time.Now().UTC()

	active, err := s.store.CountBorrowings(ctx, user.ID, library.StatusActive, now)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	overdue, err := s.store.CountBorrowings(ctx, user.ID, library.StatusOverdue, now)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	dueSoon, err := s.store.CountDueBetween(
		ctx, user.ID, now, now.AddDate(0, 0, library.DueSoonDays),
	)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	borrowed, _, err := s.store.ListBorrowings(ctx, BorrowingFilter{
		UserID: user.ID,
		Status: library.StatusActive,
	})
	if err != nil {
		writeStoreError(w, err)

		return
	}

	history, _, err := s.store.ListBorrowings(ctx, BorrowingFilter{
		UserID: user.ID,
		Status: library.StatusReturned,
	})
	if err != nil {
		writeStoreError(w, err)

		return
	}

	dashboard := library.MemberDashboard{
		ActiveBorrowingsCount:  int(active),
		OverdueBorrowingsCount: int(overdue),
		BooksDueSoon:           int(dueSoon),
		BorrowedBooks:          toLibraryBorrowings(borrowed, now),
		BorrowingHistory:       toLibraryBorrowings(history, now),
	}

	writeJSON(w, http.StatusOK, map[string]any{"dashboard": dashboard})
}

const dashboardListLimit = 5

func (s *server) librarianDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	total, available, borrowed, err := s.store.BookStats(ctx)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	startOfDay := time.Date(
		now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC,
	)

	dueToday, err := s.store.CountDueBetween(
		ctx, 0, startOfDay, startOfDay.AddDate(0, 0, 1),
	)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	overdueCount, err := s.store.CountBorrowings(ctx, 0, library.StatusOverdue, now)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	members, err := s.store.CountMembers(ctx)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	membersOverdue, err := s.store.CountMembersWithOverdue(ctx, now)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	recent, err := s.store.RecentBorrowings(ctx, dashboardListLimit)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	popular, err := s.store.PopularBooks(ctx, dashboardListLimit)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	overdueList, _, err := s.store.ListOverdue(ctx, BorrowingFilter{
		PerPage: dashboardListLimit,
	}, now)
	if err != nil {
		writeStoreError(w, err)

		return
	}

	popularOut := make([]library.Book, 0, len(popular))
	for i := range popular {
		popularOut = append(popularOut, popular[i].toLibrary())
	}

	dashboard := library.LibrarianDashboard{
		TotalBooks:              int(total),
		TotalAvailableBooks:     int(available),
		TotalBorrowedBooks:      int(borrowed),
		BooksDueToday:           int(dueToday),
		OverdueBooks:            int(overdueCount),
		TotalMembers:            int(members),
		MembersWithOverdueBooks: int(membersOverdue),
		RecentBorrowings:        toLibraryBorrowings(recent, now),
		PopularBooks:            popularOut,
		OverdueBorrowings:       toLibraryBorrowings(overdueList, now),
	}

	writeJSON(w, http.StatusOK, map[string]any{"dashboard": dashboard})
}

func toLibraryBorrowings(in []Borrowing, now time.Time) []library.Borrowing {
	out := make([]library.Borrowing, 0, len(in))
	for i := range in {
		out = append(out, in[i].toLibrary(now))
	}

	return out
}

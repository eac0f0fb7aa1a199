package mockapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openshelf/shelfctl/pkg/config"
	"github.com/openshelf/shelfctl/pkg/library"
)

// Store errors surfaced to handlers.
var (
	ErrNotFound       = errors.New("record not found")
	ErrNoCopies       = errors.New("no copies available")
	ErrAlreadyExists  = errors.New("record already exists")
	ErrAlreadyReturn  = errors.New("borrowing already returned")
	ErrActiveBorrows  = errors.New("book has active borrowings")
	ErrCopiesExceeded = errors.New("available copies cannot exceed total copies")
)

// BookFilter narrows a catalog listing.
type BookFilter struct {
	Query     string
	Genre     string
	Available *bool
	Sort      string
	Page      int
	PerPage   int
}

// BorrowingFilter narrows a borrowings listing. UserID zero means all
// users (librarian scope).
type BorrowingFilter struct {
	UserID  int
	Status  string
	Page    int
	PerPage int
}

// Store provides persistence for the mock library service.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	CreateUser(ctx context.Context, email, passwordHash, role string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id int) (*User, error)
	CountMembers(ctx context.Context) (int64, error)

	CreateSession(ctx context.Context, token string, userID int) error
	GetSessionUser(ctx context.Context, token string) (*User, error)
	DeleteSession(ctx context.Context, token string) error

	ListBooks(ctx context.Context, f BookFilter) ([]Book, int64, error)
	GetBook(ctx context.Context, id int) (*Book, error)
	CreateBook(ctx context.Context, book *Book) error
	UpdateBook(ctx context.Context, book *Book) error
	DeleteBook(ctx context.Context, id int) error
	PopularBooks(ctx context.Context, limit int) ([]Book, error)
	BookStats(ctx context.Context) (total, available, borrowed int64, err error)

	CreateBorrowing(ctx context.Context, userID, bookID int, now time.Time) (*Borrowing, error)
	GetBorrowing(ctx context.Context, id int) (*Borrowing, error)
	ListBorrowings(ctx context.Context, f BorrowingFilter) ([]Borrowing, int64, error)
	ListOverdue(ctx context.Context, f BorrowingFilter, now time.Time) ([]Borrowing, int64, error)
	ReturnBorrowing(ctx context.Context, id int, now time.Time) (*Borrowing, error)
	RecentBorrowings(ctx context.Context, limit int) ([]Borrowing, error)
	CountBorrowings(ctx context.Context, userID int, status string, now time.Time) (int64, error)
	CountDueBetween(ctx context.Context, userID int, from, to time.Time) (int64, error)
	CountMembersWithOverdue(ctx context.Context, now time.Time) (int64, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.MockDatabaseConfig
	db  *gorm.DB
}

// NewStore creates a Store backed by the configured database driver.
func NewStore(log logrus.FieldLogger, cfg *config.MockDatabaseConfig) Store {
	return &store{
		log: log.WithField("component", "mockstore"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening mock database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&User{},
		&Book{},
		&Borrowing{},
		&Session{},
	); err != nil {
		return fmt.Errorf("running mock migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Mock database connected")

	return nil
}

// Stop closes the database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting database handle: %w", err)
	}

	return sqlDB.Close()
}

func (s *store) CreateUser(ctx context.Context, email, passwordHash, role string) (*User, error) {
	if _, err := s.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrAlreadyExists
	}

	user := &User{
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return user, nil
}

func (s *store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, wrapNotFound(err, "fetching user")
	}

	return &user, nil
}

func (s *store) GetUserByID(ctx context.Context, id int) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, wrapNotFound(err, "fetching user")
	}

	return &user, nil
}

func (s *store) CountMembers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("role = ?", string(library.RoleMember)).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting members: %w", err)
	}

	return count, nil
}

func (s *store) CreateSession(ctx context.Context, token string, userID int) error {
	sess := &Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	return nil
}

func (s *store) GetSessionUser(ctx context.Context, token string) (*User, error) {
	var sess Session
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&sess).Error; err != nil {
		return nil, wrapNotFound(err, "fetching session")
	}

	return s.GetUserByID(ctx, sess.UserID)
}

func (s *store) DeleteSession(ctx context.Context, token string) error {
	if err := s.db.WithContext(ctx).Delete(&Session{}, "token = ?", token).Error; err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

func (s *store) ListBooks(ctx context.Context, f BookFilter) ([]Book, int64, error) {
	q := s.db.WithContext(ctx).Model(&Book{})

	if f.Query != "" {
		pattern := "%" + f.Query + "%"
		q = q.Where("title LIKE ? OR author LIKE ?", pattern, pattern)
	}

	if f.Genre != "" {
		q = q.Where("genre = ?", f.Genre)
	}

	if f.Available != nil && *f.Available {
		q = q.Where("available_copies > 0")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting books: %w", err)
	}

	switch f.Sort {
	case library.SortAuthor:
		q = q.Order("author")
	case library.SortCreatedAt:
		q = q.Order("created_at DESC")
	default:
		q = q.Order("title")
	}

	var books []Book
	if err := q.Offset((pageOf(f.Page) - 1) * perPageOf(f.PerPage)).
		Limit(perPageOf(f.PerPage)).
		Find(&books).Error; err != nil {
		return nil, 0, fmt.Errorf("listing books: %w", err)
	}

	return books, total, nil
}

func (s *store) GetBook(ctx context.Context, id int) (*Book, error) {
	var book Book
	if err := s.db.WithContext(ctx).First(&book, id).Error; err != nil {
		return nil, wrapNotFound(err, "fetching book")
	}

	return &book, nil
}

func (s *store) CreateBook(ctx context.Context, book *Book) error {
	if book.AvailableCopies > book.TotalCopies {
		return ErrCopiesExceeded
	}

	now := time.Now().UTC()
	book.CreatedAt = now
	book.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(book).Error; err != nil {
		return fmt.Errorf("creating book: %w", err)
	}

	return nil
}

func (s *store) UpdateBook(ctx context.Context, book *Book) error {
	if book.AvailableCopies > book.TotalCopies {
		return ErrCopiesExceeded
	}

	book.UpdatedAt = time.Now().UTC()

	result := s.db.WithContext(ctx).Model(&Book{}).Where("id = ?", book.ID).
		Select("Title", "Author", "Genre", "ISBN", "TotalCopies", "AvailableCopies", "UpdatedAt").
		Updates(book)
	if result.Error != nil {
		return fmt.Errorf("updating book: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *store) DeleteBook(ctx context.Context, id int) error {
	var active int64
	if err := s.db.WithContext(ctx).Model(&Borrowing{}).
		Where("book_id = ? AND returned_at IS NULL", id).
		Count(&active).Error; err != nil {
		return fmt.Errorf("counting active borrowings: %w", err)
	}

	if active > 0 {
		return ErrActiveBorrows
	}

	result := s.db.WithContext(ctx).Delete(&Book{}, id)
	if result.Error != nil {
		return fmt.Errorf("deleting book: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *store) PopularBooks(ctx context.Context, limit int) ([]Book, error) {
	var books []Book
	if err := s.db.WithContext(ctx).
		Order("borrowings_count DESC").
		Limit(limit).
		Find(&books).Error; err != nil {
		return nil, fmt.Errorf("listing popular books: %w", err)
	}

	return books, nil
}

func (s *store) BookStats(ctx context.Context) (int64, int64, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&Book{}).Count(&total).Error; err != nil {
		return 0, 0, 0, fmt.Errorf("counting books: %w", err)
	}

	var available int64
	if err := s.db.WithContext(ctx).Model(&Book{}).
		Select("COALESCE(SUM(available_copies), 0)").
		Scan(&available).Error; err != nil {
		return 0, 0, 0, fmt.Errorf("summing available copies: %w", err)
	}

	var borrowed int64
	if err := s.db.WithContext(ctx).Model(&Borrowing{}).
		Where("returned_at IS NULL").
		Count(&borrowed).Error; err != nil {
		return 0, 0, 0, fmt.Errorf("counting borrowed books: %w", err)
	}

	return total, available, borrowed, nil
}

// CreateBorrowing borrows a copy: it decrements the available count
// and stamps the due date one borrowing period out. Runs in a
// transaction so the copy count stays consistent.
func (s *store) CreateBorrowing(ctx context.Context, userID, bookID int, now time.Time) (*Borrowing, error) {
	var borrowing *Borrowing

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book Book
		if err := tx.First(&book, bookID).Error; err != nil {
			return wrapNotFound(err, "fetching book")
		}

		if book.AvailableCopies <= 0 {
			return ErrNoCopies
		}

		book.AvailableCopies--
		book.BorrowingsCount++

		if err := tx.Save(&book).Error; err != nil {
			return fmt.Errorf("updating book copies: %w", err)
		}

		borrowing = &Borrowing{
			UserID:     userID,
			BookID:     bookID,
			BorrowedAt: now,
			DueDate:    now.AddDate(0, 0, library.BorrowingPeriodDays),
		}

		if err := tx.Create(borrowing).Error; err != nil {
			return fmt.Errorf("creating borrowing: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetBorrowing(ctx, borrowing.ID)
}

func (s *store) GetBorrowing(ctx context.Context, id int) (*Borrowing, error) {
	var borrowing Borrowing
	if err := s.db.WithContext(ctx).
		Preload("User").Preload("Book").
		First(&borrowing, id).Error; err != nil {
		return nil, wrapNotFound(err, "fetching borrowing")
	}

	return &borrowing, nil
}

func (s *store) ListBorrowings(ctx context.Context, f BorrowingFilter) ([]Borrowing, int64, error) {
	q := s.db.WithContext(ctx).Model(&Borrowing{})

	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}

	switch f.Status {
	case library.StatusActive:
		q = q.Where("returned_at IS NULL")
	case library.StatusReturned:
		q = q.Where("returned_at IS NOT NULL")
	case library.StatusOverdue:
		q = q.Where("returned_at IS NULL AND due_date < ?", time.Now().UTC())
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting borrowings: %w", err)
	}

	var borrowings []Borrowing
	if err := q.Preload("User").Preload("Book").
		Order("borrowed_at DESC").
		Offset((pageOf(f.Page) - 1) * perPageOf(f.PerPage)).
		Limit(perPageOf(f.PerPage)).
		Find(&borrowings).Error; err != nil {
		return nil, 0, fmt.Errorf("listing borrowings: %w", err)
	}

	return borrowings, total, nil
}

func (s *store) ListOverdue(ctx context.Context, f BorrowingFilter, now time.Time) ([]Borrowing, int64, error) {
	q := s.db.WithContext(ctx).Model(&Borrowing{}).
		Where("returned_at IS NULL AND due_date < ?", now)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting overdue borrowings: %w", err)
	}

	var borrowings []Borrowing
	if err := q.Preload("User").Preload("Book").
		Order("due_date").
		Offset((pageOf(f.Page) - 1) * perPageOf(f.PerPage)).
		Limit(perPageOf(f.PerPage)).
		Find(&borrowings).Error; err != nil {
		return nil, 0, fmt.Errorf("listing overdue borrowings: %w", err)
	}

	return borrowings, total, nil
}

// ReturnBorrowing marks a borrowing returned and gives the copy back.
func (s *store) ReturnBorrowing(ctx context.Context, id int, now time.Time) (*Borrowing, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var borrowing Borrowing
		if err := tx.First(&borrowing, id).Error; err != nil {
			return wrapNotFound(err, "fetching borrowing")
		}

		if borrowing.ReturnedAt != nil {
			return ErrAlreadyReturn
		}

		borrowing.ReturnedAt = &now

		if err := tx.Save(&borrowing).Error; err != nil {
			return fmt.Errorf("updating borrowing: %w", err)
		}

		var book Book
		if err := tx.First(&book, borrowing.BookID).Error; err != nil {
			return wrapNotFound(err, "fetching book")
		}

		book.AvailableCopies++

		if err := tx.Save(&book).Error; err != nil {
			return fmt.Errorf("updating book copies: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetBorrowing(ctx, id)
}

func (s *store) RecentBorrowings(ctx context.Context, limit int) ([]Borrowing, error) {
	var borrowings []Borrowing
	if err := s.db.WithContext(ctx).
		Preload("User").Preload("Book").
		Order("borrowed_at DESC").
		Limit(limit).
		Find(&borrowings).Error; err != nil {
		return nil, fmt.Errorf("listing recent borrowings: %w", err)
	}

	return borrowings, nil
}

func (s *store) CountBorrowings(ctx context.Context, userID int, status string, now time.Time) (int64, error) {
	q := s.db.WithContext(ctx).Model(&Borrowing{})

	if userID > 0 {
		q = q.Where("user_id = ?", userID)
	}

	switch status {
	case library.StatusActive:
		q = q.Where("returned_at IS NULL")
	case library.StatusReturned:
		q = q.Where("returned_at IS NOT NULL")
	case library.StatusOverdue:
		q = q.Where("returned_at IS NULL AND due_date < ?", now)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting borrowings: %w", err)
	}

	return count, nil
}

func (s *store) CountDueBetween(ctx context.Context, userID int, from, to time.Time) (int64, error) {
	q := s.db.WithContext(ctx).Model(&Borrowing{}).
		Where("returned_at IS NULL AND due_date >= ? AND due_date < ?", from, to)

	if userID > 0 {
		q = q.Where("user_id = ?", userID)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting due borrowings: %w", err)
	}

	return count, nil
}

func (s *store) CountMembersWithOverdue(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Borrowing{}).
		Where("returned_at IS NULL AND due_date < ?", now).
		Distinct("user_id").
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting members with overdue: %w", err)
	}

	return count, nil
}

func wrapNotFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}

	return fmt.Errorf("%s: %w", op, err)
}

func pageOf(page int) int {
	if page < 1 {
		return 1
	}

	return page
}

func perPageOf(perPage int) int {
	if perPage < 1 || perPage > library.MaxPerPage {
		return library.DefaultPerPage
	}

	return perPage
}

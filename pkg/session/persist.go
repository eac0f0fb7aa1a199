package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/openshelf/shelfctl/pkg/library"
)

// Fixed file names under the credentials directory, the counterpart of
// the web client's fixed local-storage keys.
const (
	tokenFileName = "token"
	userFileName  = "user.json"

	credFileMode = 0o600
	credDirMode  = 0o700
)

// ErrNoCredentials is returned by Load when nothing is persisted.
var ErrNoCredentials = errors.New("no persisted credentials")

// FileCredentialStore persists the token and user as files under a
// directory, typically ~/.config/shelfctl.
type FileCredentialStore struct {
	dir string
}

// Compile-time interface check.
var _ CredentialStore = (*FileCredentialStore)(nil)

// NewFileCredentialStore creates a file-backed credential store
// rooted at dir.
func NewFileCredentialStore(dir string) *FileCredentialStore {
	return &FileCredentialStore{dir: dir}
}

// Save writes the token and user to disk.
func (f *FileCredentialStore) Save(token string, user *library.User) error {
	if err := os.MkdirAll(f.dir, credDirMode); err != nil {
		return fmt.Errorf("creating credentials dir: %w", err)
	}

	if err := os.WriteFile(
		filepath.Join(f.dir, tokenFileName), []byte(token), credFileMode,
	); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}

	if user != nil {
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("encoding user: %w", err)
		}

		if err := os.WriteFile(
			filepath.Join(f.dir, userFileName), data, credFileMode,
		); err != nil {
			return fmt.Errorf("writing user: %w", err)
		}
	}

	return nil
}

// Load reads the persisted token and user. A missing token yields
// ErrNoCredentials; a missing or corrupt user file is tolerated since
// bootstrap re-fetches the user anyway.
func (f *FileCredentialStore) Load() (string, *library.User, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, tokenFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, ErrNoCredentials
		}

		return "", nil, fmt.Errorf("reading token: %w", err)
	}

	token := string(data)

	var user *library.User

	if userData, err := os.ReadFile(filepath.Join(f.dir, userFileName)); err == nil {
		var u library.User
		if err := json.Unmarshal(userData, &u); err == nil {
			user = &u
		}
	}

	return token, user, nil
}

// Clear removes the persisted credentials.
func (f *FileCredentialStore) Clear() error {
	for _, name := range []string{tokenFileName, userFileName} {
		if err := os.Remove(filepath.Join(f.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", name, err)
		}
	}

	return nil
}

// MemoryCredentialStore is an in-memory CredentialStore for tests.
type MemoryCredentialStore struct {
	mu    sync.Mutex
	token string
	user  *library.User
	set   bool
}

// Compile-time interface check.
var _ CredentialStore = (*MemoryCredentialStore)(nil)

// Save stores the token and user in memory.
func (m *MemoryCredentialStore) Save(token string, user *library.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = token
	m.user = user
	m.set = true

	return nil
}

// Load returns the stored token and user.
func (m *MemoryCredentialStore) Load() (string, *library.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.set {
		return "", nil, ErrNoCredentials
	}

	return m.token, m.user, nil
}

// Clear drops the stored credentials.
func (m *MemoryCredentialStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = ""
	m.user = nil
	m.set = false

	return nil
}

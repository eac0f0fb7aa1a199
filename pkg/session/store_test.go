package session

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/shelfctl/pkg/library"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func testUser() *library.User {
	return &library.User{
		ID:        1,
		Email:     "member@library.com",
		Role:      library.RoleMember,
		CreatedAt: time.Date(2025, 10, 29, 0, 0, 0, 0, time.UTC),
	}
}

func TestStore_AuthenticatedIffUserAndToken(t *testing.T) {
	store := NewStore(testLogger(), &MemoryCredentialStore{})

	// Fresh store: nothing set.
	snap := store.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	assert.True(t, snap.IsLoading)

	// User without token: still not authenticated.
	store.SetUser(testUser())
	assert.False(t, store.Snapshot().IsAuthenticated)

	// Both set.
	store.Login(testUser(), "tok-1")
	snap = store.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.False(t, snap.IsLoading)

	// Logout clears both.
	store.Logout()
	snap = store.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	assert.Nil(t, snap.User)
	assert.Empty(t, snap.Token)
}

func TestStore_LoginPersists(t *testing.T) {
	creds := &MemoryCredentialStore{}
	store := NewStore(testLogger(), creds)

	store.Login(testUser(), "tok-1")

	token, user, err := creds.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, "member@library.com", user.Email)

	store.Logout()

	_, _, err = creds.Load()
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestStore_SetTokenKeepsUser(t *testing.T) {
	creds := &MemoryCredentialStore{}
	store := NewStore(testLogger(), creds)
	store.Login(testUser(), "tok-1")

	store.SetToken("tok-2")

	snap := store.Snapshot()
	assert.Equal(t, "tok-2", snap.Token)
	assert.NotNil(t, snap.User)
	assert.True(t, snap.IsAuthenticated)

	token, _, err := creds.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
}

func TestStore_CheckAuthRestoresPersisted(t *testing.T) {
	creds := &MemoryCredentialStore{}
	require.NoError(t, creds.Save("tok-1", testUser()))

	store := NewStore(testLogger(), creds)

	snap := store.CheckAuth()
	assert.Equal(t, "tok-1", snap.Token)
	require.NotNil(t, snap.User)
	assert.Equal(t, library.RoleMember, snap.User.Role)
	assert.True(t, snap.IsAuthenticated)
}

func TestFileCredentialStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileCredentialStore(dir)

	_, _, err := store.Load()
	assert.ErrorIs(t, err, ErrNoCredentials)

	require.NoError(t, store.Save("tok-1", testUser()))

	token, user, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	require.NotNil(t, user)
	assert.Equal(t, 1, user.ID)

	require.NoError(t, store.Clear())

	_, _, err = store.Load()
	assert.ErrorIs(t, err, ErrNoCredentials)

	// Clearing an already-empty store is fine.
	require.NoError(t, store.Clear())
}

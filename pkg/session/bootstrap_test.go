package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/shelfctl/pkg/library"
)

func TestBootstrapper_Success(t *testing.T) {
	creds := &MemoryCredentialStore{}
	require.NoError(t, creds.Save("tok-1", nil))

	store := NewStore(testLogger(), creds)

	calls := 0
	boot := NewBootstrapper(testLogger(), store, func(ctx context.Context) (*library.User, error) {
		calls++

		return testUser(), nil
	})

	state := boot.Run(context.Background())

	assert.Equal(t, StateAuthenticated, state)
	assert.Equal(t, 1, calls)

	snap := store.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.False(t, snap.IsLoading, "loading must resolve on success")
	assert.Equal(t, "member@library.com", snap.User.Email)
}

func TestBootstrapper_FailureWithTokenClearsSession(t *testing.T) {
	creds := &MemoryCredentialStore{}
	require.NoError(t, creds.Save("stale-token", testUser()))

	store := NewStore(testLogger(), creds)

	boot := NewBootstrapper(testLogger(), store, func(ctx context.Context) (*library.User, error) {
		return nil, errors.New("401 unauthorized")
	})

	state := boot.Run(context.Background())

	assert.Equal(t, StateUnauthenticated, state)

	snap := store.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	assert.False(t, snap.IsLoading, "loading must resolve on failure")
	assert.Empty(t, snap.Token)

	// The stale credential is gone from persistence too.
	_, _, err := creds.Load()
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestBootstrapper_FailureWithoutTokenSkipsLogout(t *testing.T) {
	creds := &MemoryCredentialStore{}
	store := NewStore(testLogger(), creds)

	boot := NewBootstrapper(testLogger(), store, func(ctx context.Context) (*library.User, error) {
		return nil, errors.New("network unreachable")
	})

	state := boot.Run(context.Background())

	assert.Equal(t, StateUnauthenticated, state)
	assert.False(t, store.Snapshot().IsLoading)

	// Nothing was persisted, so nothing should have been cleared; a
	// save after the failed pass must not be wiped by a stray logout.
	require.NoError(t, creds.Save("tok-after", nil))

	token, _, err := creds.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-after", token)
}

func TestBootstrapper_RerunsAfterLogin(t *testing.T) {
	creds := &MemoryCredentialStore{}
	store := NewStore(testLogger(), creds)

	calls := 0
	boot := NewBootstrapper(testLogger(), store, func(ctx context.Context) (*library.User, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("no credential")
		}

		return testUser(), nil
	})

	assert.Equal(t, StateUnauthenticated, boot.Run(context.Background()))

	store.Login(testUser(), "tok-1")

	assert.Equal(t, StateAuthenticated, boot.Run(context.Background()))
	assert.Equal(t, 2, calls)
}

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRefreshStore(t *testing.T) (*RefreshStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRefreshStore(client, time.Hour), mr
}

func TestRefreshStore_CreateAndValidate(t *testing.T) {
	store, _ := setupRefreshStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, 42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := store.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)

	_, err = store.Validate(ctx, "unknown-token")
	assert.True(t, errors.Is(err, ErrRefreshTokenInvalid))
}

func TestRefreshStore_Expiry(t *testing.T) {
	store, mr := setupRefreshStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, 42)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = store.Validate(ctx, token)
	assert.True(t, errors.Is(err, ErrRefreshTokenInvalid))
}

func TestRefreshStore_Revoke(t *testing.T) {
	store, _ := setupRefreshStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, 42)
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, token))
	_, err = store.Validate(ctx, token)
	assert.True(t, errors.Is(err, ErrRefreshTokenInvalid))

	// Revoking an already-gone token is not an error.
	assert.NoError(t, store.Revoke(ctx, token))
}

func TestRefreshStore_RevokeAll(t *testing.T) {
	store, _ := setupRefreshStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, 42)
	require.NoError(t, err)
	second, err := store.Create(ctx, 42)
	require.NoError(t, err)
	other, err := store.Create(ctx, 7)
	require.NoError(t, err)

	require.NoError(t, store.RevokeAll(ctx, 42))

	_, err = store.Validate(ctx, first)
	assert.True(t, errors.Is(err, ErrRefreshTokenInvalid))
	_, err = store.Validate(ctx, second)
	assert.True(t, errors.Is(err, ErrRefreshTokenInvalid))

	// Other users' tokens survive.
	userID, err := store.Validate(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, int64(7), userID)
}

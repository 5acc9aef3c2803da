package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResetStore(t *testing.T, ttl time.Duration) (*ResetSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewResetSessionStore(client, ttl, false), mr
}

func TestResetSessionPopOnce(t *testing.T) {
	store, _ := newTestResetStore(t, 10*time.Minute)
	ctx := context.Background()

	token, err := store.Issue(ctx, 42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	uid, err := store.Pop(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), uid)

	// Consumed on first read.
	_, err = store.Pop(ctx, token)
	assert.ErrorIs(t, err, ErrResetSessionInvalid)
}

func TestResetSessionUnknownToken(t *testing.T) {
	store, _ := newTestResetStore(t, 10*time.Minute)

	_, err := store.Pop(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrResetSessionInvalid)

	_, err = store.Pop(context.Background(), "")
	assert.ErrorIs(t, err, ErrResetSessionInvalid)
}

func TestResetSessionExpires(t *testing.T) {
	store, mr := newTestResetStore(t, 10*time.Minute)
	ctx := context.Background()

	token, err := store.Issue(ctx, 42)
	require.NoError(t, err)

	mr.FastForward(11 * time.Minute)

	_, err = store.Pop(ctx, token)
	assert.ErrorIs(t, err, ErrResetSessionInvalid)
}

func TestResetSessionTokensAreIndependent(t *testing.T) {
	store, _ := newTestResetStore(t, 10*time.Minute)
	ctx := context.Background()

	t1, err := store.Issue(ctx, 1)
	require.NoError(t, err)
	t2, err := store.Issue(ctx, 2)
	require.NoError(t, err)
	require.NotEqual(t, t1, t2)

	uid, err := store.Pop(ctx, t2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), uid)

	uid, err = store.Pop(ctx, t1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), uid)
}

package azureauth

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisFlowStore(t *testing.T, ttl time.Duration) (*RedisFlowStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisFlowStore(client, ttl), mr
}

func TestRedisFlowStoreRoundTrip(t *testing.T) {
	store, _ := newRedisFlowStore(t, time.Minute)
	ctx := context.Background()

	saved := testFlow("state-1")
	require.NoError(t, store.Save(ctx, saved))

	flow, err := store.Take(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, saved.Nonce, flow.Nonce)
	assert.Equal(t, saved.CodeVerifier, flow.CodeVerifier)
	assert.Equal(t, saved.RedirectURL, flow.RedirectURL)
	assert.Equal(t, saved.Scopes, flow.Scopes)

	_, err = store.Take(ctx, "state-1")
	assert.ErrorIs(t, err, ErrFlowNotFound, "a flow is single use")
}

func TestRedisFlowStoreUnknownState(t *testing.T) {
	store, _ := newRedisFlowStore(t, time.Minute)
	_, err := store.Take(context.Background(), "never-saved")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestRedisFlowStoreExpiry(t *testing.T) {
	store, mr := newRedisFlowStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testFlow("state-1")))
	mr.FastForward(2 * time.Minute)

	_, err := store.Take(ctx, "state-1")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestRedisFlowStoreKeyPrefix(t *testing.T) {
	store, mr := newRedisFlowStore(t, time.Minute)
	require.NoError(t, store.Save(context.Background(), testFlow("state-1")))

	assert.True(t, mr.Exists("azureauth:flow:state-1"),
		"flows should be namespaced so they can share a Redis with other data")
}

func TestRedisFlowStoreRejectsEmptyState(t *testing.T) {
	store, _ := newRedisFlowStore(t, time.Minute)
	assert.Error(t, store.Save(context.Background(), &AuthFlow{}))
	assert.Error(t, store.Save(context.Background(), nil))
}

func TestRedisFlowStoreEndToEnd(t *testing.T) {
	idp := newFakeIDP(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	authClient := idp.newClient(t, WithFlowStore(NewRedisFlowStore(client, time.Minute)))
	state := startFlow(t, idp, authClient)

	callback := url.Values{}
	callback.Set("state", state)
	callback.Set("code", "test-auth-code")
	tokens, err := authClient.ValidateAuthResponse(context.Background(), callback)
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
}

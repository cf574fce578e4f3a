package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	store, rdb, err := Dial(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0,
		WithPrefix("flowtest:"+uuid.NewString()+":"),
		WithTTL(time.Minute),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	_, ok, err := store.Get(ctx, "order_id")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "order_id", "42"))
	got, ok, err := store.Get(ctx, "order_id")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "42", got)

	require.NoError(t, store.Delete(ctx, "order_id"))
	_, ok, err = store.Get(ctx, "order_id")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWithTTLRejectsNonPositive(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { WithTTL(0) })
}

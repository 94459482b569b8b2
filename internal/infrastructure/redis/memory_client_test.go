package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryClient()
	c.now = func() time.Time { return now }

	t.Run("SetNXOnlyOnce", func(t *testing.T) {
		ok, err := c.SetNX(ctx, "request:abc", "1", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = c.SetNX(ctx, "request:abc", "1", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "escrow:1", []byte(`{}`), time.Second))
		v, err := c.Get(ctx, "escrow:1")
		require.NoError(t, err)
		assert.Equal(t, "{}", v)

		now = now.Add(2 * time.Second)
		_, err = c.Get(ctx, "escrow:1")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("Del", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "a", "1", 0))
		require.NoError(t, c.Del(ctx, "a", "missing"))
		_, err := c.Get(ctx, "a")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})
}

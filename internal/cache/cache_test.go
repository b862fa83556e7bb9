package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/meridianhealth/claimsim/internal/cache"
)

type snapshot struct {
	TotalClaims int    `json:"total_claims"`
	Note        string `json:"note"`
}

func TestReportCacheWithNoRedisUsesLocalTierOnly(t *testing.T) {
	t.Run("a nil redis client still round-trips through the local tier", func(t *testing.T) {
		c := cache.New(nil, time.Minute)
		ctx := context.Background()

		err := c.Set(ctx, snapshot{TotalClaims: 3, Note: "hello"})
		assert.NoError(t, err)

		var out snapshot
		ok := c.Get(ctx, &out)
		assert.True(t, ok)
		assert.Equal(t, 3, out.TotalClaims)
		assert.Equal(t, "hello", out.Note)
	})
}

func TestReportCacheGetMissWithoutSet(t *testing.T) {
	t.Run("an empty cache reports a miss", func(t *testing.T) {
		c := cache.New(nil, time.Minute)
		var out snapshot
		ok := c.Get(context.Background(), &out)
		assert.False(t, ok)
	})
}

func TestReportCacheInvalidateClearsLocalTier(t *testing.T) {
	t.Run("invalidate removes the cached value", func(t *testing.T) {
		c := cache.New(nil, time.Minute)
		ctx := context.Background()

		c.Set(ctx, snapshot{TotalClaims: 1})
		c.Invalidate(ctx)

		var out snapshot
		ok := c.Get(ctx, &out)
		assert.False(t, ok)
	})
}

func TestReportCacheDefaultsTTLWhenNonPositive(t *testing.T) {
	t.Run("a zero or negative ttl still produces a usable cache", func(t *testing.T) {
		c := cache.New(nil, 0)
		ctx := context.Background()

		assert.NoError(t, c.Set(ctx, snapshot{TotalClaims: 7}))
		var out snapshot
		assert.True(t, c.Get(ctx, &out))
		assert.Equal(t, 7, out.TotalClaims)
	})
}

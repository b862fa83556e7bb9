package ingest_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/meridianhealth/claimsim/internal/claims"
	"github.com/meridianhealth/claimsim/internal/ingest"
	"github.com/meridianhealth/claimsim/internal/jobqueue"
	"github.com/meridianhealth/claimsim/internal/ratelimit"
)

type sliceSource struct {
	mu    sync.Mutex
	items []claims.Claim
	pos   int
}

func (s *sliceSource) Next() (claims.Claim, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.items) {
		return claims.Claim{}, false
	}
	c := s.items[s.pos]
	s.pos++
	return c, true
}

func makeClaims(n int) []claims.Claim {
	out := make([]claims.Claim, n)
	for i := range out {
		out[i] = claims.Claim{ClaimID: "claim"}
	}
	return out
}

func TestIngestorEnqueuesEveryClaimWithCorrelationID(t *testing.T) {
	t.Run("each claim is wrapped in a distinct correlation id", func(t *testing.T) {
		src := &sliceSource{items: makeClaims(5)}
		q := jobqueue.New[claims.ClaimEnvelope]("claims", 4)
		limiter := ratelimit.New(1000)

		ing := ingest.New(src, limiter, q, 5, nil, zap.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var mu sync.Mutex
		seen := map[string]bool{}
		q.Process(ctx, func(ctx context.Context, e claims.ClaimEnvelope) error {
			mu.Lock()
			seen[e.CorrelationID] = true
			mu.Unlock()
			return nil
		})

		ing.Start()

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(seen) == 5
		}, 2*time.Second, 10*time.Millisecond)

		ing.Stop()
	})
}

func TestIngestorStatusReportsProgress(t *testing.T) {
	t.Run("status reflects ingested count and total hint", func(t *testing.T) {
		src := &sliceSource{items: makeClaims(3)}
		q := jobqueue.New[claims.ClaimEnvelope]("claims", 4)
		limiter := ratelimit.New(1000)

		ing := ingest.New(src, limiter, q, 3, nil, zap.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q.Process(ctx, func(ctx context.Context, e claims.ClaimEnvelope) error { return nil })

		ing.Start()

		assert.Eventually(t, func() bool {
			return ing.Status().ClaimsIngested == 3
		}, 2*time.Second, 10*time.Millisecond)

		status := ing.Status()
		assert.Equal(t, int64(3), status.TotalClaims)

		ing.Stop()
	})
}

func TestIngestorStopHaltsBetweenItems(t *testing.T) {
	t.Run("stop prevents further items from being pulled", func(t *testing.T) {
		src := &sliceSource{items: makeClaims(1000)}
		q := jobqueue.New[claims.ClaimEnvelope]("claims", 4)
		limiter := ratelimit.New(2000)

		ing := ingest.New(src, limiter, q, 1000, nil, zap.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q.Process(ctx, func(ctx context.Context, e claims.ClaimEnvelope) error { return nil })

		ing.Start()
		time.Sleep(20 * time.Millisecond)
		ing.Stop()

		stopped := ing.Status().ClaimsIngested
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, stopped, ing.Status().ClaimsIngested, "no further progress after Stop returns")
	})
}

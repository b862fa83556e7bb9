// Package ingest implements the Ingestor: paces a ClaimSource through
// the RateLimiter, assigns correlation ids, and enqueues envelopes onto
// Q_claims.
//
// Lifecycle (start/stop loop with a checked-between-items atomic flag)
// grounded on internal/matching.Engine's Start/ticker-loop shape,
// generalized from a NATS subscription to a pull iterator.
package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridianhealth/claimsim/internal/claims"
	"github.com/meridianhealth/claimsim/internal/jobqueue"
	"github.com/meridianhealth/claimsim/internal/ratelimit"
	"github.com/meridianhealth/claimsim/internal/store"
)

// ClaimSource is a pull iterator over validated claims. Next returns
// (claim, true) while claims remain, (zero, false) once exhausted.
type ClaimSource interface {
	Next() (claims.Claim, bool)
}

// Status is the Ingestor's progress snapshot.
type Status struct {
	ClaimsIngested int64
	TotalClaims    int64
	CurrentRate    float64
	Elapsed        time.Duration
}

// Ingestor is the Ingestor component.
type Ingestor struct {
	source     ClaimSource
	limiter    ratelimit.Limiter
	out        *jobqueue.Queue[claims.ClaimEnvelope]
	claimStore store.ClaimStore
	log        *zap.Logger

	running int32
	start   time.Time
	ingested int64
	total    int64

	wg sync.WaitGroup
}

// New builds an Ingestor. totalHint, if known, is reported in Status
// (0 if the source size is not known up front). claimStore may be nil,
// in which case the store_new_claim/mark_ingested transitions are
// skipped.
func New(source ClaimSource, limiter ratelimit.Limiter, out *jobqueue.Queue[claims.ClaimEnvelope], totalHint int64, claimStore store.ClaimStore, log *zap.Logger) *Ingestor {
	return &Ingestor{
		source:     source,
		limiter:    limiter,
		out:        out,
		total:      totalHint,
		claimStore: claimStore,
		log:        log,
	}
}

// Start begins consuming the source on a background goroutine, running
// until the source is exhausted or Stop is called.
func (i *Ingestor) Start() {
	atomic.StoreInt32(&i.running, 1)
	i.start = time.Now()

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		for atomic.LoadInt32(&i.running) == 1 {
			claim, ok := i.source.Next()
			if !ok {
				return
			}

			i.limiter.Acquire()

			envelope := claims.ClaimEnvelope{
				CorrelationID: uuid.New().String(),
				Claim:         claim,
				IngestedAt:    time.Now(),
			}

			if i.claimStore != nil {
				ctx := context.Background()
				if err := i.claimStore.StoreNewClaim(ctx, envelope); err != nil {
					i.log.Warn("claim store store_new_claim failed", zap.Error(err), zap.String("claim_id", envelope.Claim.ClaimID))
				}
				if err := i.claimStore.MarkIngested(ctx, envelope.Claim.ClaimID); err != nil {
					i.log.Warn("claim store mark_ingested failed", zap.Error(err), zap.String("claim_id", envelope.Claim.ClaimID))
				}
			}

			i.out.Add(envelope, jobqueue.AddOptions{})
			atomic.AddInt64(&i.ingested, 1)
		}
	}()
}

// Stop halts ingestion between items; the in-flight item is not
// revoked.
func (i *Ingestor) Stop() {
	atomic.StoreInt32(&i.running, 0)
	i.wg.Wait()
}

// Status returns the current progress snapshot.
func (i *Ingestor) Status() Status {
	return Status{
		ClaimsIngested: atomic.LoadInt64(&i.ingested),
		TotalClaims:    atomic.LoadInt64(&i.total),
		CurrentRate:    i.limiter.Rate(),
		Elapsed:        time.Since(i.start),
	}
}

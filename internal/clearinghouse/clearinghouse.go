// Package clearinghouse implements the Clearinghouse: routes each
// envelope to the correct per-payer queue, with deterministic fallback
// when the claim names an unconfigured payer.
//
// Queue wiring is grounded on internal/matching.Engine's
// books map[string]*orderbook.OrderBook per-symbol dispatch, generalized
// from order books to per-payer job queues.
package clearinghouse

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/meridianhealth/claimsim/internal/aging"
	"github.com/meridianhealth/claimsim/internal/claims"
	"github.com/meridianhealth/claimsim/internal/jobqueue"
	"github.com/meridianhealth/claimsim/internal/registry"
	"github.com/meridianhealth/claimsim/internal/store"
)

// Clearinghouse routes envelopes from Q_claims to Q_payer[target].
type Clearinghouse struct {
	registry      *registry.Registry
	aging         *aging.Service
	claimStore    store.ClaimStore
	payerQueues   map[string]*jobqueue.Queue[claims.ClaimEnvelope]
	payerNames    map[string]string
	firstPayerID  string
	log           *zap.Logger
}

// New builds a Clearinghouse. payerQueues and payerNames must share keys;
// firstInsertedPayerID fixes the deterministic fallback target and must
// be one of payerQueues' keys (or empty if there are no configured
// payers, in which case every job fails). claimStore may be nil, in
// which case the mark_routed transition is skipped.
func New(payerQueues map[string]*jobqueue.Queue[claims.ClaimEnvelope], payerNames map[string]string, firstInsertedPayerID string, reg *registry.Registry, agingSvc *aging.Service, claimStore store.ClaimStore, log *zap.Logger) *Clearinghouse {
	return &Clearinghouse{
		registry:     reg,
		aging:        agingSvc,
		claimStore:   claimStore,
		payerQueues:  payerQueues,
		payerNames:   payerNames,
		firstPayerID: firstInsertedPayerID,
		log:          log,
	}
}

// Handle is the Q_claims handler.
func (c *Clearinghouse) Handle(ctx context.Context, envelope claims.ClaimEnvelope) error {
	if len(c.payerQueues) == 0 {
		return fmt.Errorf("clearinghouse: no configured payers")
	}

	target := envelope.Claim.PayerID
	if _, ok := c.payerQueues[target]; !ok {
		c.log.Warn("fallback used",
			zap.String("claim_id", envelope.Claim.ClaimID),
			zap.String("requested_payer", target),
			zap.String("fallback_payer", c.firstPayerID))
		target = c.firstPayerID
	}

	c.registry.RecordSubmission(envelope, target)
	c.aging.RecordSubmission(envelope, c.payerNames[target])

	if c.claimStore != nil {
		if err := c.claimStore.MarkRouted(ctx, envelope.Claim.ClaimID, target, c.payerNames[target]); err != nil {
			c.log.Warn("claim store mark_routed failed", zap.Error(err), zap.String("claim_id", envelope.Claim.ClaimID))
		}
	}

	c.payerQueues[target].Add(envelope, jobqueue.AddOptions{})

	return nil
}

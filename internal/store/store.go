// Package store implements the ClaimStore port: optional persistence of
// claim lifecycle transitions. A ClaimStore failure must never be fatal
// to the core pipeline — callers wrap calls through pkg/breaker and
// swallow errors exactly as a no-op store would behave.
package store

import (
	"context"
	"time"

	"github.com/meridianhealth/claimsim/internal/claims"
	"github.com/meridianhealth/claimsim/pkg/breaker"
	"github.com/meridianhealth/claimsim/pkg/money"
)

// AdjudicationStatus mirrors the three outcomes a ClaimStore records.
type AdjudicationStatus string

const (
	AdjStatusPaid    AdjudicationStatus = "paid"
	AdjStatusDenied  AdjudicationStatus = "denied"
	AdjStatusPartial AdjudicationStatus = "partial"
)

// AdjudicationResult is what PayerAdjudicator reports to the store.
type AdjudicationResult struct {
	Status               AdjudicationStatus
	PaidAmount           money.Amount
	PatientResponsibility money.Amount
	DenialReason         string
	DenialCode           string
	ProcessingTimeMS     int64
}

// ClaimStore is the optional persistence port.
type ClaimStore interface {
	StoreNewClaim(ctx context.Context, envelope claims.ClaimEnvelope) error
	MarkIngested(ctx context.Context, claimID string) error
	MarkRouted(ctx context.Context, claimID, payerID, payerName string) error
	MarkAdjudicated(ctx context.Context, claimID string, result AdjudicationResult) error
	MarkBilled(ctx context.Context, claimID string) error
}

// NoopStore discards every call. It is the default ClaimStore.
type NoopStore struct{}

func (NoopStore) StoreNewClaim(context.Context, claims.ClaimEnvelope) error        { return nil }
func (NoopStore) MarkIngested(context.Context, string) error                      { return nil }
func (NoopStore) MarkRouted(context.Context, string, string, string) error        { return nil }
func (NoopStore) MarkAdjudicated(context.Context, string, AdjudicationResult) error { return nil }
func (NoopStore) MarkBilled(context.Context, string) error                        { return nil }

// Breaking wraps a ClaimStore with a circuit breaker: repeated failures
// trip it and short-circuit further calls for a cooldown window, so a
// misbehaving store can never back-pressure the core pipeline.
type Breaking struct {
	inner ClaimStore
	br    *breaker.Breaker
}

// WithBreaker wraps inner in a Breaker using the given failure/cooldown
// policy.
func WithBreaker(inner ClaimStore, maxFailures int, cooldown time.Duration) *Breaking {
	return &Breaking{
		inner: inner,
		br:    breaker.New(breaker.Config{Name: "claimstore", MaxFailures: maxFailures, Cooldown: cooldown}),
	}
}

func (b *Breaking) StoreNewClaim(ctx context.Context, envelope claims.ClaimEnvelope) error {
	return b.br.Call(func() error { return b.inner.StoreNewClaim(ctx, envelope) })
}

func (b *Breaking) MarkIngested(ctx context.Context, claimID string) error {
	return b.br.Call(func() error { return b.inner.MarkIngested(ctx, claimID) })
}

func (b *Breaking) MarkRouted(ctx context.Context, claimID, payerID, payerName string) error {
	return b.br.Call(func() error { return b.inner.MarkRouted(ctx, claimID, payerID, payerName) })
}

func (b *Breaking) MarkAdjudicated(ctx context.Context, claimID string, result AdjudicationResult) error {
	return b.br.Call(func() error { return b.inner.MarkAdjudicated(ctx, claimID, result) })
}

func (b *Breaking) MarkBilled(ctx context.Context, claimID string) error {
	return b.br.Call(func() error { return b.inner.MarkBilled(ctx, claimID) })
}

// Package registry implements the CorrelationRegistry: a map of
// correlation id to CorrelationRecord tracking each envelope from
// submission through completion.
//
// Grounded on internal/positions.Tracker's map-of-maps-under-RWMutex
// shape and its explicit last-write-wins handling of duplicate updates.
package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridianhealth/claimsim/internal/claims"
	"github.com/meridianhealth/claimsim/pkg/money"
)

// ValidationAlert describes a data-integrity concern raised while
// recording a completion (chronology reversal, etc). Never blocks the
// write.
type ValidationAlert struct {
	CorrelationID string
	Message       string
}

// Registry is the CorrelationRegistry.
type Registry struct {
	log *zap.Logger

	mu      sync.RWMutex
	records map[string]*claims.CorrelationRecord
	byPayer map[string]map[string]struct{} // payer_id -> set<correlation_id>
}

// New creates an empty Registry.
func New(log *zap.Logger) *Registry {
	return &Registry{
		log:     log,
		records: make(map[string]*claims.CorrelationRecord),
		byPayer: make(map[string]map[string]struct{}),
	}
}

// RecordSubmission stores (or overwrites, last-write-wins) the record
// for an envelope's correlation id.
func (r *Registry) RecordSubmission(envelope claims.ClaimEnvelope, resolvedPayerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := &claims.CorrelationRecord{
		CorrelationID: envelope.CorrelationID,
		ClaimID:       envelope.Claim.ClaimID,
		PayerID:       resolvedPayerID,
		SubmittedAt:   envelope.IngestedAt,
		Billed:        envelope.Claim.BilledTotal(),
		IsOutstanding: true,
	}
	r.records[envelope.CorrelationID] = rec

	set, ok := r.byPayer[resolvedPayerID]
	if !ok {
		set = make(map[string]struct{})
		r.byPayer[resolvedPayerID] = set
	}
	set[envelope.CorrelationID] = struct{}{}
}

// RecordCompletion updates the record for a remittance. A remittance for
// an unknown correlation id is a no-op + warn. Returns any validation
// alerts raised (reconciliation / chronology), which never prevent the
// update itself, plus whether this was the first completion recorded
// for the correlation id (false on a redelivery) — callers that
// accumulate totals off a completion must only do so on the first).
func (r *Registry) RecordCompletion(rem claims.Remittance) ([]ValidationAlert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[rem.CorrelationID]
	if !ok {
		r.log.Warn("record_completion for unknown correlation id",
			zap.String("correlation_id", rem.CorrelationID))
		return nil, false
	}

	firstCompletion := rec.IsOutstanding

	billed, paid, patientShare := rem.Totals()
	notAllowed := money.Zero
	for _, l := range rem.RemittanceLines {
		notAllowed = notAllowed.Add(l.NotAllowed)
	}

	now := time.Now()
	rec.RemittedAt = &now
	rec.Paid = &paid
	rec.PatientShare = &patientShare
	rec.NotAllowed = &notAllowed
	rec.IsOutstanding = false

	var alerts []ValidationAlert
	if now.Before(rec.SubmittedAt) {
		alerts = append(alerts, ValidationAlert{
			CorrelationID: rem.CorrelationID,
			Message:       "chronology reversal: remitted_at before submitted_at",
		})
	}
	sum := paid.Add(patientShare).Add(notAllowed)
	if sum.Sub(billed).Abs().Float64() > 0.03 {
		alerts = append(alerts, ValidationAlert{
			CorrelationID: rem.CorrelationID,
			Message:       "reconciliation mismatch exceeds tolerance",
		})
	}

	for _, a := range alerts {
		r.log.Warn("correlation registry validation alert",
			zap.String("correlation_id", a.CorrelationID), zap.String("message", a.Message))
	}

	return alerts, firstCompletion
}

// Get returns the record for a correlation id.
func (r *Registry) Get(correlationID string) (claims.CorrelationRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[correlationID]
	if !ok {
		return claims.CorrelationRecord{}, false
	}
	return *rec, true
}

// ByPayer returns every record currently attributed to a payer.
func (r *Registry) ByPayer(payerID string) []claims.CorrelationRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byPayer[payerID]
	out := make([]claims.CorrelationRecord, 0, len(ids))
	for id := range ids {
		if rec, ok := r.records[id]; ok {
			out = append(out, *rec)
		}
	}
	return out
}

// Outstanding returns every record not yet completed.
func (r *Registry) Outstanding() []claims.CorrelationRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]claims.CorrelationRecord, 0)
	for _, rec := range r.records {
		if rec.IsOutstanding {
			out = append(out, *rec)
		}
	}
	return out
}

// Critical returns outstanding-or-completed records whose age is at
// least thresholdMinutes.
func (r *Registry) Critical(thresholdMinutes float64) []claims.CorrelationRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	out := make([]claims.CorrelationRecord, 0)
	for _, rec := range r.records {
		if rec.Age(now).Minutes() >= thresholdMinutes {
			out = append(out, *rec)
		}
	}
	return out
}

// StateStats summarizes outstanding vs. completed counts.
type StateStats struct {
	Total       int
	Outstanding int
	Completed   int
}

// StateStats returns aggregate counts across all records.
func (r *Registry) StateStats() StateStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := StateStats{Total: len(r.records)}
	for _, rec := range r.records {
		if rec.IsOutstanding {
			stats.Outstanding++
		} else {
			stats.Completed++
		}
	}
	return stats
}

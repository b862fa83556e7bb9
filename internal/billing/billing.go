// Package billing implements the BillingAggregator: consumes
// remittances, maintains running totals, per-payer breakdown, patient
// cost-share, and a bounded processing-time histogram. A single-writer
// discipline: one goroutine drains Q_remittance.
package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridianhealth/claimsim/internal/adjudication"
	"github.com/meridianhealth/claimsim/internal/aging"
	"github.com/meridianhealth/claimsim/internal/claims"
	"github.com/meridianhealth/claimsim/internal/registry"
	"github.com/meridianhealth/claimsim/internal/store"
	"github.com/meridianhealth/claimsim/pkg/money"
)

// RemittanceMsg aliases the adjudicator's output payload type.
type RemittanceMsg = adjudication.RemittanceMsg

const maxProcessingSamples = 1000

// PayerBreakdown is one payer's running billing totals.
type PayerBreakdown struct {
	ClaimsCount int
	Billed      money.Amount
	Paid        money.Amount
}

// PatientCostShare is one patient bucket's accumulated cost-share.
type PatientCostShare struct {
	Copay       money.Amount
	Coinsurance money.Amount
	Deductible  money.Amount
	ClaimCount  int
}

// Totals is the aggregator's running claim-level totals.
type Totals struct {
	TotalClaims                int
	TotalBilled                money.Amount
	TotalPaid                  money.Amount
	TotalPatientResponsibility money.Amount
}

// Aggregator is the BillingAggregator.
type Aggregator struct {
	registry   *registry.Registry
	aging      *aging.Service
	claimStore store.ClaimStore
	log        *zap.Logger

	onClaimProcessed func(claims.Remittance)

	mu               sync.Mutex
	totals           Totals
	payerBreakdown   map[string]*PayerBreakdown
	patientCostShare map[string]*PatientCostShare
	processingTimes  []time.Duration

	reportingInterval time.Duration
}

// New builds an Aggregator. claimStore may be a NoopStore; it is marked
// billed, not dispatched, after a remittance is first accounted for.
func New(reg *registry.Registry, agingSvc *aging.Service, claimStore store.ClaimStore, reportingInterval time.Duration, log *zap.Logger) *Aggregator {
	return &Aggregator{
		registry:          reg,
		aging:             agingSvc,
		claimStore:        claimStore,
		log:               log,
		payerBreakdown:    make(map[string]*PayerBreakdown),
		patientCostShare:  make(map[string]*PatientCostShare),
		reportingInterval: reportingInterval,
	}
}

// OnClaimProcessed registers the orchestrator's progress callback,
// invoked once per processed remittance.
func (a *Aggregator) OnClaimProcessed(fn func(claims.Remittance)) {
	a.onClaimProcessed = fn
}

// Handle is the Q_remittance handler. A remittance whose correlation id
// was already completed (a redelivery) updates the registry/aging
// records but does not double-count billing totals.
func (a *Aggregator) Handle(ctx context.Context, msg RemittanceMsg) error {
	rem := msg.Remittance
	start := time.Now()

	_, firstCompletion := a.registry.RecordCompletion(rem)
	a.aging.RecordCompletion(rem)

	if firstCompletion {
		billed, paid, patientShare := rem.Totals()

		a.mu.Lock()
		a.totals.TotalClaims++
		a.totals.TotalBilled = a.totals.TotalBilled.Add(billed)
		a.totals.TotalPaid = a.totals.TotalPaid.Add(paid)
		a.totals.TotalPatientResponsibility = a.totals.TotalPatientResponsibility.Add(patientShare)

		pb, ok := a.payerBreakdown[rem.PayerID]
		if !ok {
			pb = &PayerBreakdown{}
			a.payerBreakdown[rem.PayerID] = pb
		}
		pb.ClaimsCount++
		pb.Billed = pb.Billed.Add(billed)
		pb.Paid = pb.Paid.Add(paid)

		key := claims.PatientKeyFor(rem.CorrelationID)
		pcs, ok := a.patientCostShare[key]
		if !ok {
			pcs = &PatientCostShare{}
			a.patientCostShare[key] = pcs
		}
		for _, l := range rem.RemittanceLines {
			pcs.Copay = pcs.Copay.Add(l.Copay)
			pcs.Coinsurance = pcs.Coinsurance.Add(l.Coinsurance)
			pcs.Deductible = pcs.Deductible.Add(l.Deductible)
		}
		pcs.ClaimCount++
		a.mu.Unlock()

		if err := a.claimStore.MarkBilled(ctx, rem.ClaimID); err != nil {
			a.log.Warn("claim store mark_billed failed", zap.Error(err), zap.String("claim_id", rem.ClaimID))
		}
	} else {
		a.log.Warn("duplicate remittance delivery ignored for billing totals",
			zap.String("correlation_id", rem.CorrelationID), zap.String("claim_id", rem.ClaimID))
	}

	a.mu.Lock()
	a.processingTimes = append(a.processingTimes, time.Since(start))
	if len(a.processingTimes) > maxProcessingSamples {
		a.processingTimes = a.processingTimes[len(a.processingTimes)-maxProcessingSamples:]
	}
	a.mu.Unlock()

	if a.onClaimProcessed != nil {
		a.onClaimProcessed(rem)
	}

	return nil
}

// Snapshot is a point-in-time view of every billing metric.
type Snapshot struct {
	Totals           Totals
	PayerBreakdown   map[string]PayerBreakdown
	PatientCostShare map[string]PatientCostShare
	AverageProcessingMS float64
}

// Snapshot returns a copy of current billing state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		Totals:           a.totals,
		PayerBreakdown:   make(map[string]PayerBreakdown, len(a.payerBreakdown)),
		PatientCostShare: make(map[string]PatientCostShare, len(a.patientCostShare)),
	}
	for k, v := range a.payerBreakdown {
		s.PayerBreakdown[k] = *v
	}
	for k, v := range a.patientCostShare {
		s.PatientCostShare[k] = *v
	}

	if len(a.processingTimes) > 0 {
		var sum time.Duration
		for _, d := range a.processingTimes {
			sum += d
		}
		s.AverageProcessingMS = float64(sum.Milliseconds()) / float64(len(a.processingTimes))
	}

	return s
}

// TopPatientCostShares returns up to n patient keys with the highest
// total cost share, descending.
func (a *Aggregator) TopPatientCostShares(n int) []string {
	a.mu.Lock()
	type entry struct {
		key   string
		total money.Amount
	}
	entries := make([]entry, 0, len(a.patientCostShare))
	for k, v := range a.patientCostShare {
		entries = append(entries, entry{k, v.Copay.Add(v.Coinsurance).Add(v.Deductible)})
	}
	a.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].total.Cmp(entries[j].total) > 0 })
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = entries[i].key
	}
	return out
}

// StartPeriodicReports emits a textual summary every interval via the
// logger until ctx is cancelled. interval == 0 disables it.
func (a *Aggregator) StartPeriodicReports(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := a.Snapshot()
				a.log.Info("billing summary",
					zap.Int("total_claims", s.Totals.TotalClaims),
					zap.String("total_billed", s.Totals.TotalBilled.String()),
					zap.String("total_paid", s.Totals.TotalPaid.String()),
					zap.Float64("avg_processing_ms", s.AverageProcessingMS),
				)
			}
		}
	}()
}

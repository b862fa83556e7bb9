package adjudication

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/meridianhealth/claimsim/internal/claims"
	"github.com/meridianhealth/claimsim/internal/denial"
	"github.com/meridianhealth/claimsim/internal/edi"
	"github.com/meridianhealth/claimsim/internal/jobqueue"
	"github.com/meridianhealth/claimsim/internal/store"
)

// RemittanceMsg is what an adjudicator enqueues onto Q_remittance.
type RemittanceMsg struct {
	Remittance claims.Remittance
	Claim      claims.Claim
}

// Adjudicator is one payer's worker: simulated delay, decision, and
// remittance assembly, consuming from its own Q_payer[payer_id].
//
// Per-worker lifecycle is grounded on internal/matching.Engine's
// per-book processing loop, generalized from order matching to claim
// adjudication.
type Adjudicator struct {
	cfg     claims.PayerConfig
	catalog *denial.Catalog
	encoder *edi.Encoder
	claimStore store.ClaimStore
	out     *jobqueue.Queue[RemittanceMsg]
	log     *zap.Logger
	rnd     RandFunc
	sleep   func(time.Duration)
}

// New builds an Adjudicator publishing completed remittances onto out.
func New(cfg claims.PayerConfig, catalog *denial.Catalog, claimStore store.ClaimStore, out *jobqueue.Queue[RemittanceMsg], log *zap.Logger) *Adjudicator {
	return &Adjudicator{
		cfg:        cfg,
		catalog:    catalog,
		encoder:    edi.New(),
		claimStore: claimStore,
		out:        out,
		log:        log,
		rnd:        rand.Float64,
		sleep:      time.Sleep,
	}
}

// WithRand overrides the random source (tests forcing specific draws).
func (a *Adjudicator) WithRand(rnd RandFunc) *Adjudicator {
	a.rnd = rnd
	return a
}

// Handle processes one envelope through the full pipeline: queued ->
// delaying -> deciding -> emitting -> done. Each invocation owns the
// envelope exclusively; no re-entrancy.
func (a *Adjudicator) Handle(ctx context.Context, envelope claims.ClaimEnvelope) error {
	start := time.Now()

	delayMS := a.cfg.Delay.MinMS
	if a.cfg.Delay.MaxMS > a.cfg.Delay.MinMS {
		delayMS += int(a.rnd() * float64(a.cfg.Delay.MaxMS-a.cfg.Delay.MinMS))
	}
	a.sleep(time.Duration(delayMS) * time.Millisecond)

	lines, overall, totalDenied := Decide(envelope.Claim, a.cfg, a.catalog, a.rnd)

	rem := claims.Remittance{
		CorrelationID:     envelope.CorrelationID,
		ClaimID:           envelope.Claim.ClaimID,
		PayerID:           a.cfg.PayerID,
		RemittanceLines:   lines,
		ProcessedAt:       time.Now(),
		OverallStatus:     overall,
		TotalDeniedAmount: totalDenied,
	}
	rem.EDI835 = a.encoder.Encode(rem, envelope.Claim, edi.Context{PayerName: a.cfg.Name})

	if a.claimStore != nil {
		result := adjudicationResult(rem, start)
		if err := a.claimStore.MarkAdjudicated(ctx, envelope.Claim.ClaimID, result); err != nil {
			a.log.Warn("claim store mark_adjudicated failed", zap.Error(err), zap.String("claim_id", envelope.Claim.ClaimID))
		}
	}

	a.out.Add(RemittanceMsg{Remittance: rem, Claim: envelope.Claim}, jobqueue.AddOptions{})
	return nil
}

func adjudicationResult(rem claims.Remittance, start time.Time) store.AdjudicationResult {
	_, paid, patientShare := rem.Totals()
	status := store.AdjStatusPartial
	switch rem.OverallStatus {
	case claims.StatusApproved:
		status = store.AdjStatusPaid
	case claims.StatusDenied:
		status = store.AdjStatusDenied
	}

	var reason, code string
	if len(rem.RemittanceLines) > 0 && rem.RemittanceLines[0].DenialInfo != nil {
		reason = rem.RemittanceLines[0].DenialInfo.Description
		code = rem.RemittanceLines[0].DenialInfo.Code
	}

	return store.AdjudicationResult{
		Status:                status,
		PaidAmount:            paid,
		PatientResponsibility: patientShare,
		DenialReason:          reason,
		DenialCode:            code,
		ProcessingTimeMS:      time.Since(start).Milliseconds(),
	}
}

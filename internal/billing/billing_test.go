package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/meridianhealth/claimsim/internal/adjudication"
	"github.com/meridianhealth/claimsim/internal/aging"
	"github.com/meridianhealth/claimsim/internal/billing"
	"github.com/meridianhealth/claimsim/internal/claims"
	"github.com/meridianhealth/claimsim/internal/registry"
	"github.com/meridianhealth/claimsim/internal/store"
	"github.com/meridianhealth/claimsim/pkg/money"
)

func remittanceMsg(correlationID, claimID, payerID string, billed, paid, copay float64) billing.RemittanceMsg {
	return adjudication.RemittanceMsg{
		Claim: claims.Claim{ClaimID: claimID, PayerID: payerID},
		Remittance: claims.Remittance{
			CorrelationID: correlationID,
			ClaimID:       claimID,
			PayerID:       payerID,
			OverallStatus: claims.StatusApproved,
			RemittanceLines: []claims.RemittanceLine{
				{
					ServiceLineID: "L1",
					BilledAmount:  money.New(billed),
					PayerPaid:     money.New(paid),
					Copay:         money.New(copay),
				},
			},
		},
	}
}

func newAggregator(t *testing.T) (*billing.Aggregator, *registry.Registry) {
	reg := registry.New(zap.NewNop())
	agingSvc := aging.New(aging.Thresholds{}, zap.NewNop())
	return billing.New(reg, agingSvc, store.NoopStore{}, 0, zap.NewNop()), reg
}

func TestHandleAccumulatesTotals(t *testing.T) {
	t.Run("two remittances accumulate into running totals", func(t *testing.T) {
		agg, reg := newAggregator(t)
		reg.RecordSubmission(claims.ClaimEnvelope{CorrelationID: "c1", Claim: claims.Claim{ClaimID: "claim1"}, IngestedAt: time.Now()}, "payerA")
		reg.RecordSubmission(claims.ClaimEnvelope{CorrelationID: "c2", Claim: claims.Claim{ClaimID: "claim2"}, IngestedAt: time.Now()}, "payerA")

		assert.NoError(t, agg.Handle(context.Background(), remittanceMsg("c1", "claim1", "payerA", 100, 80, 10)))
		assert.NoError(t, agg.Handle(context.Background(), remittanceMsg("c2", "claim2", "payerA", 50, 40, 5)))

		snap := agg.Snapshot()
		assert.Equal(t, 2, snap.Totals.TotalClaims)
		assert.Equal(t, "150.00", snap.Totals.TotalBilled.String())
		assert.Equal(t, "120.00", snap.Totals.TotalPaid.String())
	})
}

func TestHandleTracksPerPayerBreakdown(t *testing.T) {
	t.Run("payer breakdown is keyed independently per payer", func(t *testing.T) {
		agg, reg := newAggregator(t)
		reg.RecordSubmission(claims.ClaimEnvelope{CorrelationID: "c1", Claim: claims.Claim{ClaimID: "claim1"}, IngestedAt: time.Now()}, "payerA")
		reg.RecordSubmission(claims.ClaimEnvelope{CorrelationID: "c2", Claim: claims.Claim{ClaimID: "claim2"}, IngestedAt: time.Now()}, "payerB")

		agg.Handle(context.Background(), remittanceMsg("c1", "claim1", "payerA", 100, 80, 10))
		agg.Handle(context.Background(), remittanceMsg("c2", "claim2", "payerB", 200, 150, 20))

		snap := agg.Snapshot()
		assert.Equal(t, 1, snap.PayerBreakdown["payerA"].ClaimsCount)
		assert.Equal(t, "100.00", snap.PayerBreakdown["payerA"].Billed.String())
		assert.Equal(t, "200.00", snap.PayerBreakdown["payerB"].Billed.String())
	})
}

func TestHandleBucketsPatientCostShareByCorrelationSuffix(t *testing.T) {
	t.Run("two claims sharing a correlation suffix bucket into the same patient key", func(t *testing.T) {
		agg, reg := newAggregator(t)
		reg.RecordSubmission(claims.ClaimEnvelope{CorrelationID: "foo111abc", Claim: claims.Claim{ClaimID: "claim1"}, IngestedAt: time.Now()}, "payerA")
		reg.RecordSubmission(claims.ClaimEnvelope{CorrelationID: "bar111abc", Claim: claims.Claim{ClaimID: "claim2"}, IngestedAt: time.Now()}, "payerA")

		agg.Handle(context.Background(), remittanceMsg("foo111abc", "claim1", "payerA", 100, 80, 10))
		agg.Handle(context.Background(), remittanceMsg("bar111abc", "claim2", "payerA", 100, 80, 10))

		snap := agg.Snapshot()
		pcs, ok := snap.PatientCostShare["patient_111abc"]
		assert.True(t, ok)
		assert.Equal(t, 2, pcs.ClaimCount)
	})
}

func TestTopPatientCostSharesOrdersDescending(t *testing.T) {
	t.Run("the patient with the larger cost share ranks first", func(t *testing.T) {
		agg, reg := newAggregator(t)
		reg.RecordSubmission(claims.ClaimEnvelope{CorrelationID: "lowlow", Claim: claims.Claim{ClaimID: "claim1"}, IngestedAt: time.Now()}, "payerA")
		reg.RecordSubmission(claims.ClaimEnvelope{CorrelationID: "hihihi", Claim: claims.Claim{ClaimID: "claim2"}, IngestedAt: time.Now()}, "payerA")

		agg.Handle(context.Background(), remittanceMsg("lowlow", "claim1", "payerA", 100, 80, 5))
		agg.Handle(context.Background(), remittanceMsg("hihihi", "claim2", "payerA", 100, 50, 50))

		top := agg.TopPatientCostShares(2)
		assert.Equal(t, []string{"patient_hihihi", "patient_lowlow"}, top)
	})
}

func TestHandleRecordsProcessingTimeAverage(t *testing.T) {
	t.Run("snapshot exposes a non-negative average processing time after one claim", func(t *testing.T) {
		agg, reg := newAggregator(t)
		reg.RecordSubmission(claims.ClaimEnvelope{CorrelationID: "c1", Claim: claims.Claim{ClaimID: "claim1"}, IngestedAt: time.Now()}, "payerA")

		agg.Handle(context.Background(), remittanceMsg("c1", "claim1", "payerA", 100, 80, 10))

		snap := agg.Snapshot()
		assert.GreaterOrEqual(t, snap.AverageProcessingMS, float64(0))
	})
}

func TestHandleDoesNotDoubleCountRepeatedCompletion(t *testing.T) {
	t.Run("the same remittance delivered twice is only counted once", func(t *testing.T) {
		agg, reg := newAggregator(t)
		reg.RecordSubmission(claims.ClaimEnvelope{CorrelationID: "c1", Claim: claims.Claim{ClaimID: "claim1"}, IngestedAt: time.Now()}, "payerA")

		msg := remittanceMsg("c1", "claim1", "payerA", 100, 80, 10)
		assert.NoError(t, agg.Handle(context.Background(), msg))
		assert.NoError(t, agg.Handle(context.Background(), msg))

		snap := agg.Snapshot()
		assert.Equal(t, 1, snap.Totals.TotalClaims)
		assert.Equal(t, "100.00", snap.Totals.TotalBilled.String())
		assert.Equal(t, "80.00", snap.Totals.TotalPaid.String())
		assert.Equal(t, 1, snap.PayerBreakdown["payerA"].ClaimsCount)
		assert.Equal(t, 1, snap.PatientCostShare["patient_c1"].ClaimCount)
	})
}

func TestOnClaimProcessedCallbackFires(t *testing.T) {
	t.Run("the registered callback receives the processed remittance", func(t *testing.T) {
		agg, reg := newAggregator(t)
		reg.RecordSubmission(claims.ClaimEnvelope{CorrelationID: "c1", Claim: claims.Claim{ClaimID: "claim1"}, IngestedAt: time.Now()}, "payerA")

		var got claims.Remittance
		agg.OnClaimProcessed(func(r claims.Remittance) { got = r })

		agg.Handle(context.Background(), remittanceMsg("c1", "claim1", "payerA", 100, 80, 10))

		assert.Equal(t, "claim1", got.ClaimID)
	})
}

package aging_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/meridianhealth/claimsim/internal/aging"
	"github.com/meridianhealth/claimsim/internal/claims"
	"github.com/meridianhealth/claimsim/pkg/money"
)

func makeEnvelope(correlationID, claimID, payerID string, billed float64, ingestedAt time.Time) claims.ClaimEnvelope {
	return claims.ClaimEnvelope{
		CorrelationID: correlationID,
		IngestedAt:    ingestedAt,
		Claim: claims.Claim{
			ClaimID: claimID,
			PayerID: payerID,
			ServiceLines: []claims.ServiceLine{
				{ServiceLineID: "L1", UnitChargeAmount: billed, Units: 1},
			},
		},
	}
}

func TestRecordSubmissionRejectsInvalidClaims(t *testing.T) {
	t.Run("zero billed amount raises DATA_VALIDATION and is not tracked", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		svc := aging.New(aging.Thresholds{}, zap.New(core))

		var alerts []aging.Alert
		svc.OnAlert(func(a aging.Alert) { alerts = append(alerts, a) })

		svc.RecordSubmission(makeEnvelope("c1", "claim1", "payerA", 0, time.Now()), "Payer A")

		report := svc.GenerateReport()
		assert.Empty(t, report)
		assert.Equal(t, 1, logs.FilterField(zap.String("type", string(aging.DataValidation))).Len())
	})
}

func TestBucketAssignmentIsMonotonic(t *testing.T) {
	t.Run("older records land in higher buckets", func(t *testing.T) {
		svc := aging.New(aging.Thresholds{}, zap.NewNop())

		now := time.Now()
		svc.RecordSubmission(makeEnvelope("fresh", "claim1", "payerA", 100, now), "Payer A")
		svc.RecordSubmission(makeEnvelope("stale", "claim2", "payerA", 100, now.Add(-150*time.Second)), "Payer A")

		report := svc.GenerateReport()
		rep := report["payerA"]

		assert.Equal(t, 1, rep.BucketCounts[0], "fresh record falls in bucket 0")
		assert.Equal(t, 1, rep.BucketCounts[2], "2.5-minute-old record falls in bucket 2")
	})
}

func TestRecordCompletionFlagsReconciliationMismatch(t *testing.T) {
	t.Run("sum far from billed raises a DATA_VALIDATION alert", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		svc := aging.New(aging.Thresholds{}, zap.New(core))

		var alerts []aging.Alert
		svc.OnAlert(func(a aging.Alert) { alerts = append(alerts, a) })

		svc.RecordSubmission(makeEnvelope("c1", "claim1", "payerA", 100, time.Now()), "Payer A")

		rem := claims.Remittance{
			CorrelationID: "c1",
			RemittanceLines: []claims.RemittanceLine{
				{BilledAmount: money.New(100), PayerPaid: money.New(10)},
			},
		}
		svc.RecordCompletion(rem)

		report := svc.GenerateReport()
		rep := report["payerA"]
		assert.Equal(t, 0, rep.OutstandingCount, "completed record is no longer outstanding")
		assert.Equal(t, 1, logs.FilterField(zap.String("type", string(aging.DataValidation))).Len())
	})
}

func TestCriticalClaimsSortedOldestFirst(t *testing.T) {
	t.Run("oldest record appears first", func(t *testing.T) {
		svc := aging.New(aging.Thresholds{CriticalAgeMinutes: 1}, zap.NewNop())

		now := time.Now()
		svc.RecordSubmission(makeEnvelope("c1", "claim1", "payerA", 50, now.Add(-2*time.Minute)), "Payer A")
		svc.RecordSubmission(makeEnvelope("c2", "claim2", "payerA", 50, now.Add(-5*time.Minute)), "Payer A")

		critical := svc.CriticalClaims()
		assert.Len(t, critical, 2)
		assert.Equal(t, "c2", critical[0].CorrelationID)
		assert.Equal(t, "c1", critical[1].CorrelationID)
	})
}

func TestStuckClaimsAlertOnHighVolumeInOldestBucket(t *testing.T) {
	t.Run("enough bucket-3 claims trips STUCK_CLAIMS", func(t *testing.T) {
		svc := aging.New(aging.Thresholds{HighVolumeThreshold: 2}, zap.NewNop())

		var alerts []aging.Alert
		svc.OnAlert(func(a aging.Alert) { alerts = append(alerts, a) })

		now := time.Now()
		for i := 0; i < 3; i++ {
			svc.RecordSubmission(makeEnvelope(string(rune('a'+i)), "claim", "payerA", 10, now.Add(-10*time.Minute)), "Payer A")
		}

		svc.GenerateReport()

		found := false
		for _, a := range alerts {
			if a.Type == aging.StuckClaims {
				found = true
			}
		}
		assert.True(t, found)
	})
}

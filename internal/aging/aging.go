// Package aging implements the ARAgingService: per-correlation latency
// tracking, bucketed aging reports, and threshold alerts.
//
// Alert shape grounded on internal/risk.Calculator.PublishRiskAlert's
// RiskAlertEvent struct (type/severity/message); periodic
// threshold-crossing checks grounded on internal/alerts.Engine.
package aging

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridianhealth/claimsim/internal/claims"
	"github.com/meridianhealth/claimsim/pkg/money"
)

// AlertType enumerates the aging alert categories.
type AlertType string

const (
	HighAging      AlertType = "HIGH_AGING"
	StuckClaims    AlertType = "STUCK_CLAIMS"
	PayerDelay     AlertType = "PAYER_DELAY"
	DataValidation AlertType = "DATA_VALIDATION"
)

// Severity is an alert's urgency.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is a structured aging alert, delivered via the logger (and,
// optionally, an external notifier for HIGH/CRITICAL severities).
type Alert struct {
	Type       AlertType
	Severity   Severity
	Message    string
	PayerID    string
	ClaimCount int
	Timestamp  time.Time
}

// Thresholds configures alert triggers. Zero values fall back to the
// documented defaults.
type Thresholds struct {
	CriticalAgeMinutes   float64
	HighVolumeThreshold  int
	PayerDelayThreshold  float64 // minutes
}

func (t Thresholds) withDefaults() Thresholds {
	if t.CriticalAgeMinutes <= 0 {
		t.CriticalAgeMinutes = 3
	}
	if t.HighVolumeThreshold <= 0 {
		t.HighVolumeThreshold = 10
	}
	if t.PayerDelayThreshold <= 0 {
		t.PayerDelayThreshold = 2
	}
	return t
}

type record struct {
	correlationID string
	payerID       string
	payerName     string
	claimID       string
	submittedAt   time.Time
	remittedAt    *time.Time
	billed        money.Amount
	paid          money.Amount
	patientShare  money.Amount
	notAllowed    money.Amount
}

func (r *record) age(now time.Time) time.Duration {
	if r.remittedAt != nil {
		return r.remittedAt.Sub(r.submittedAt)
	}
	return now.Sub(r.submittedAt)
}

// Service is the ARAgingService.
type Service struct {
	log        *zap.Logger
	thresholds Thresholds
	onAlert    func(Alert)

	mu      sync.Mutex
	records map[string]*record
}

// New creates a Service.
func New(thresholds Thresholds, log *zap.Logger) *Service {
	return &Service{
		log:        log,
		thresholds: thresholds.withDefaults(),
		records:    make(map[string]*record),
	}
}

// OnAlert registers a callback invoked for every HIGH or CRITICAL alert,
// in addition to the log delivery every alert receives (used to wire an
// optional EventNotifier). MEDIUM alerts are only logged.
func (s *Service) OnAlert(fn func(Alert)) {
	s.onAlert = fn
}

func (s *Service) emit(a Alert) {
	fields := []zap.Field{
		zap.String("type", string(a.Type)),
		zap.String("severity", string(a.Severity)),
		zap.String("payer_id", a.PayerID),
		zap.Int("claim_count", a.ClaimCount),
	}
	switch a.Severity {
	case SeverityCritical, SeverityHigh:
		s.log.Warn(a.Message, fields...)
	default:
		s.log.Info(a.Message, fields...)
	}
	if s.onAlert != nil && (a.Severity == SeverityCritical || a.Severity == SeverityHigh) {
		s.onAlert(a)
	}
}

// RecordSubmission stores an envelope's submission timestamp, indexed by
// payer. Invalid records (missing ids or non-positive billed amount)
// raise a DATA_VALIDATION alert and are skipped.
func (s *Service) RecordSubmission(envelope claims.ClaimEnvelope, payerName string) {
	billed := envelope.Claim.BilledTotal()

	if envelope.Claim.ClaimID == "" || envelope.Claim.PayerID == "" || billed.Cmp(money.Zero) <= 0 {
		s.emit(Alert{
			Type:      DataValidation,
			Severity:  SeverityMedium,
			Message:   "invalid claim submission: missing id or non-positive billed amount",
			Timestamp: time.Now(),
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[envelope.CorrelationID] = &record{
		correlationID: envelope.CorrelationID,
		payerID:       envelope.Claim.PayerID,
		payerName:     payerName,
		claimID:       envelope.Claim.ClaimID,
		submittedAt:   envelope.IngestedAt,
		billed:        billed,
	}
}

// RecordCompletion finalizes a record on remittance, validating
// reconciliation and chronology. Violations raise alerts but the record
// is updated regardless.
func (s *Service) RecordCompletion(rem claims.Remittance) {
	billed, paid, patientShare := rem.Totals()
	notAllowed := money.Zero
	for _, l := range rem.RemittanceLines {
		notAllowed = notAllowed.Add(l.NotAllowed)
	}

	s.mu.Lock()
	rec, ok := s.records[rem.CorrelationID]
	if !ok {
		s.mu.Unlock()
		return
	}

	now := time.Now()
	rec.remittedAt = &now
	rec.paid = paid
	rec.patientShare = patientShare
	rec.notAllowed = notAllowed
	ageAtCompletion := rec.age(now)
	payerID := rec.payerID
	claimID := rec.claimID
	s.mu.Unlock()

	sum := paid.Add(patientShare).Add(notAllowed)
	if sum.Sub(billed).Abs().Float64() > 0.03 {
		s.emit(Alert{Type: DataValidation, Severity: SeverityMedium, Message: "reconciliation mismatch at completion", PayerID: payerID, Timestamp: now})
	}
	if now.Before(rec.submittedAt) {
		s.emit(Alert{Type: DataValidation, Severity: SeverityMedium, Message: "chronology reversal: remitted before submitted", PayerID: payerID, Timestamp: now})
	}

	if ageAtCompletion.Minutes() >= s.thresholds.CriticalAgeMinutes {
		s.emit(Alert{
			Type:     HighAging,
			Severity: SeverityHigh,
			Message:  "claim aged past critical threshold before completion: " + claimID,
			PayerID:  payerID,
			Timestamp: now,
		})
	}
}

// Bucket boundaries in minutes: [0,1), [1,2), [2,3), [3,inf).
const numBuckets = 4

func bucketIndex(ageMinutes float64) int {
	switch {
	case ageMinutes < 1:
		return 0
	case ageMinutes < 2:
		return 1
	case ageMinutes < 3:
		return 2
	default:
		return 3
	}
}

// PayerReport is one payer's aging metrics.
type PayerReport struct {
	PayerID        string
	BucketCounts   [numBuckets]int
	TotalClaims    int
	TotalBilled    money.Amount
	TotalPaid      money.Amount
	OutstandingCount int
	AverageAgeMinutes float64
	OldestAgeMinutes  float64
}

// GenerateReport returns per-payer aging metrics across every tracked
// record.
func (s *Service) GenerateReport() map[string]PayerReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	reports := make(map[string]PayerReport)
	ageSums := make(map[string]float64)

	for _, rec := range s.records {
		rep, ok := reports[rec.payerID]
		if !ok {
			rep = PayerReport{PayerID: rec.payerID}
		}

		ageMinutes := rec.age(now).Minutes()
		rep.BucketCounts[bucketIndex(ageMinutes)]++
		rep.TotalClaims++
		rep.TotalBilled = rep.TotalBilled.Add(rec.billed)
		rep.TotalPaid = rep.TotalPaid.Add(rec.paid)
		if rec.remittedAt == nil {
			rep.OutstandingCount++
		}
		if ageMinutes > rep.OldestAgeMinutes {
			rep.OldestAgeMinutes = ageMinutes
		}
		ageSums[rec.payerID] += ageMinutes

		reports[rec.payerID] = rep
	}

	for payerID, rep := range reports {
		if rep.TotalClaims > 0 {
			rep.AverageAgeMinutes = ageSums[payerID] / float64(rep.TotalClaims)
		}
		reports[payerID] = rep

		if rep.BucketCounts[3] >= s.thresholds.HighVolumeThreshold {
			s.emit(Alert{Type: StuckClaims, Severity: SeverityCritical, Message: "high volume of stuck claims", PayerID: payerID, ClaimCount: rep.BucketCounts[3], Timestamp: now})
		}
		if rep.AverageAgeMinutes >= s.thresholds.PayerDelayThreshold {
			s.emit(Alert{Type: PayerDelay, Severity: SeverityHigh, Message: "payer average age exceeds delay threshold", PayerID: payerID, Timestamp: now})
		}
	}

	return reports
}

// CriticalRecord is one oldest-first entry from CriticalClaims.
type CriticalRecord struct {
	CorrelationID string
	ClaimID       string
	PayerID       string
	AgeMinutes    float64
}

// CriticalClaims returns every record whose age is at least the
// critical threshold, sorted oldest-first.
func (s *Service) CriticalClaims() []CriticalRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]CriticalRecord, 0)
	for _, rec := range s.records {
		age := rec.age(now).Minutes()
		if age >= s.thresholds.CriticalAgeMinutes {
			out = append(out, CriticalRecord{
				CorrelationID: rec.correlationID,
				ClaimID:       rec.claimID,
				PayerID:       rec.payerID,
				AgeMinutes:    age,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgeMinutes > out[j].AgeMinutes })
	return out
}

// StartPeriodicReports runs GenerateReport on the given interval until
// ctx is cancelled. An interval of 0 disables the reporter entirely.
func (s *Service) StartPeriodicReports(ctx context.Context, interval time.Duration) {
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
				s.GenerateReport()
			}
		}
	}()
}

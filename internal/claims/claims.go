// Package claims defines the data model that flows through the
// ingestion -> clearinghouse -> adjudication -> billing pipeline.
package claims

import (
	"time"

	"github.com/meridianhealth/claimsim/pkg/money"
)

// Patient identifies the person a claim is billed for. The simulator
// never derives a real patient identity from it; see ClaimEnvelope's
// PatientKey note.
type Patient struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	DOB       string `json:"dob"`
	Gender    string `json:"gender"`
}

// ServiceLine is one billable line item of a Claim.
type ServiceLine struct {
	ServiceLineID    string  `json:"service_line_id"`
	UnitChargeAmount float64 `json:"unit_charge_amount"`
	Units            float64 `json:"units"`
	Details          string  `json:"details"`
	Currency         string  `json:"currency"`
}

// Billed returns unit_charge_amount * units for this line.
func (l ServiceLine) Billed() money.Amount {
	return money.New(l.UnitChargeAmount).Mul(l.Units)
}

// Claim is immutable once ingested.
type Claim struct {
	ClaimID      string        `json:"claim_id"`
	PayerID      string        `json:"payer_id"`
	Patient      Patient       `json:"patient"`
	ServiceLines []ServiceLine `json:"service_lines"`
}

// BilledTotal sums Billed() across every service line.
func (c Claim) BilledTotal() money.Amount {
	total := money.Zero
	for _, l := range c.ServiceLines {
		total = total.Add(l.Billed())
	}
	return total
}

// ClaimEnvelope wraps a Claim with a correlation id assigned at
// ingestion. Never mutated after construction.
type ClaimEnvelope struct {
	CorrelationID string
	Claim         Claim
	IngestedAt    time.Time
}

// PatientKey derives the simulation-only patient bucket key used by
// BillingAggregator's cost-share map. Not a real patient identifier —
// preserved for compatibility with totals that key off it.
func (e ClaimEnvelope) PatientKey() string {
	return PatientKeyFor(e.CorrelationID)
}

// PatientKeyFor derives the patient bucket key from a bare correlation
// id, for callers (BillingAggregator) that only carry the remittance's
// correlation id, not the originating envelope.
func PatientKeyFor(correlationID string) string {
	id := correlationID
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	return "patient_" + id
}

// DenialSeverity classifies a denial reason.
type DenialSeverity string

const (
	SeverityHard DenialSeverity = "HARD"
	SeveritySoft DenialSeverity = "SOFT"
)

// DenialInfo describes why a line or claim was denied.
type DenialInfo struct {
	Code        string         `json:"code"`
	GroupCode   string         `json:"group_code"`
	ReasonCode  string         `json:"reason_code"`
	Category    string         `json:"category"`
	Severity    DenialSeverity `json:"severity"`
	Description string         `json:"description"`
	Explanation string         `json:"explanation"`
}

// LineStatus is the adjudication outcome of a single service line.
type LineStatus string

const (
	LineApproved LineStatus = "APPROVED"
	LineDenied   LineStatus = "DENIED"
)

// RemittanceLine is one payer's adjudication outcome for a service line.
type RemittanceLine struct {
	ServiceLineID string         `json:"service_line_id"`
	BilledAmount  money.Amount   `json:"billed_amount"`
	PayerPaid     money.Amount   `json:"payer_paid"`
	Coinsurance   money.Amount   `json:"coinsurance"`
	Copay         money.Amount   `json:"copay"`
	Deductible    money.Amount   `json:"deductible"`
	NotAllowed    money.Amount   `json:"not_allowed"`
	Status        LineStatus     `json:"status"`
	DenialInfo    *DenialInfo    `json:"denial_info,omitempty"`
}

// OverallStatus is the claim-level adjudication outcome.
type OverallStatus string

const (
	StatusApproved      OverallStatus = "APPROVED"
	StatusDenied        OverallStatus = "DENIED"
	StatusPartialDenial OverallStatus = "PARTIAL_DENIAL"
)

// Remittance is the payer's reply for one envelope, produced exactly
// once per envelope that survives to completion.
type Remittance struct {
	CorrelationID     string           `json:"correlation_id"`
	ClaimID           string           `json:"claim_id"`
	PayerID           string           `json:"payer_id"`
	RemittanceLines   []RemittanceLine `json:"remittance_lines"`
	ProcessedAt       time.Time        `json:"processed_at"`
	OverallStatus     OverallStatus    `json:"overall_status"`
	TotalDeniedAmount *money.Amount    `json:"total_denied_amount,omitempty"`
	EDI835            string           `json:"edi_835,omitempty"`
}

// Totals sums billed, paid and patient cost-share across every line.
func (r Remittance) Totals() (billed, paid, patientShare money.Amount) {
	billed, paid, patientShare = money.Zero, money.Zero, money.Zero
	for _, l := range r.RemittanceLines {
		billed = billed.Add(l.BilledAmount)
		paid = paid.Add(l.PayerPaid)
		patientShare = patientShare.Add(l.Copay).Add(l.Coinsurance).Add(l.Deductible)
	}
	return
}

// DelayRange is a payer's simulated adjudication delay, in milliseconds.
type DelayRange struct {
	MinMS int
	MaxMS int
}

// PayerConfig configures one payer's adjudication behavior.
type PayerConfig struct {
	PayerID                  string
	Name                     string
	Delay                    DelayRange
	PayerPercentage          float64
	CopayFixed               float64
	DeductiblePercentage     float64
	DenialRate               float64
	HardDenialRate           float64
	PreferredDenialCategories []string
}

// CorrelationRecord tracks one envelope's lifecycle from submission to
// completion inside the CorrelationRegistry.
type CorrelationRecord struct {
	CorrelationID string
	ClaimID       string
	PayerID       string
	SubmittedAt   time.Time
	RemittedAt    *time.Time
	Billed        money.Amount
	Paid          *money.Amount
	PatientShare  *money.Amount
	NotAllowed    *money.Amount
	IsOutstanding bool
}

// Age returns the record's age relative to now (if outstanding) or to
// RemittedAt (if completed).
func (r CorrelationRecord) Age(now time.Time) time.Duration {
	if r.RemittedAt != nil {
		return r.RemittedAt.Sub(r.SubmittedAt)
	}
	return now.Sub(r.SubmittedAt)
}

// Package denial implements the DenialReasonCatalog port: a fixed table
// of denial reasons grouped by category, with severity tags.
//
// Stdlib only — a static lookup table needs no third-party library; see
// DESIGN.md for the justification.
package denial

import (
	"math/rand"
	"sync"

	"github.com/meridianhealth/claimsim/internal/claims"
)

// Catalog serves random and category-scoped denial reasons.
type Catalog struct {
	mu        sync.Mutex
	rng       *rand.Rand
	reasons   []claims.DenialInfo
	byCategory map[string][]claims.DenialInfo
}

// New builds a Catalog seeded with a fixed table spanning the
// categories named in the glossary.
func New() *Catalog {
	reasons := []claims.DenialInfo{
		{Code: "CO-197", GroupCode: "CO", ReasonCode: "197", Category: "AUTHORIZATION", Severity: claims.SeverityHard, Description: "Precertification/authorization absent", Explanation: "No prior authorization on file for this service."},
		{Code: "CO-198", GroupCode: "CO", ReasonCode: "198", Category: "AUTHORIZATION", Severity: claims.SeveritySoft, Description: "Precertification/authorization exceeded", Explanation: "Approved visit count exceeded."},
		{Code: "CO-50", GroupCode: "CO", ReasonCode: "50", Category: "MEDICAL_NECESSITY", Severity: claims.SeverityHard, Description: "Non-covered: not medically necessary", Explanation: "Payer's medical policy does not support this service for the diagnosis billed."},
		{Code: "CO-149", GroupCode: "CO", ReasonCode: "149", Category: "MEDICAL_NECESSITY", Severity: claims.SeveritySoft, Description: "Lifetime benefit maximum met", Explanation: "Requires clinical review for exception."},
		{Code: "PR-27", GroupCode: "PR", ReasonCode: "27", Category: "ELIGIBILITY", Severity: claims.SeverityHard, Description: "Expenses incurred after coverage terminated", Explanation: "Patient not eligible on date of service."},
		{Code: "PR-31", GroupCode: "PR", ReasonCode: "31", Category: "ELIGIBILITY", Severity: claims.SeveritySoft, Description: "Patient cannot be identified as insured", Explanation: "Insurance ID does not match payer records."},
		{Code: "CO-11", GroupCode: "CO", ReasonCode: "11", Category: "CODING", Severity: claims.SeverityHard, Description: "Diagnosis inconsistent with procedure", Explanation: "Billed procedure code is inconsistent with the diagnosis."},
		{Code: "CO-4", GroupCode: "CO", ReasonCode: "4", Category: "CODING", Severity: claims.SeveritySoft, Description: "Procedure/modifier inconsistent", Explanation: "Modifier missing or inappropriate for the procedure billed."},
		{Code: "CO-29", GroupCode: "CO", ReasonCode: "29", Category: "TIMELY_FILING", Severity: claims.SeverityHard, Description: "Time limit for filing expired", Explanation: "Claim submitted after the payer's filing deadline."},
		{Code: "CO-18", GroupCode: "CO", ReasonCode: "18", Category: "DUPLICATE", Severity: claims.SeverityHard, Description: "Duplicate claim/service", Explanation: "An identical claim was already adjudicated."},
	}

	byCategory := make(map[string][]claims.DenialInfo)
	for _, r := range reasons {
		byCategory[r.Category] = append(byCategory[r.Category], r)
	}

	return &Catalog{
		rng:        rand.New(rand.NewSource(1)),
		reasons:    reasons,
		byCategory: byCategory,
	}
}

// PickRandom returns a uniformly chosen reason from the whole table.
func (c *Catalog) PickRandom() claims.DenialInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reasons[c.rng.Intn(len(c.reasons))]
}

// PickByCategory returns a uniformly chosen reason within category,
// falling back to PickRandom if the category is unknown or empty.
func (c *Catalog) PickByCategory(category string) claims.DenialInfo {
	c.mu.Lock()
	pool := c.byCategory[category]
	c.mu.Unlock()

	if len(pool) == 0 {
		return c.PickRandom()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return pool[c.rng.Intn(len(pool))]
}

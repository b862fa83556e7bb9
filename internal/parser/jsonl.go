// Package parser implements a JSONL-backed ClaimSource: newline-
// delimited claim JSON, validated field by field before it enters the
// pipeline.
//
// JSON handling is stdlib only (encoding/json + bufio.Scanner; zap is
// used for warnings) — justified in DESIGN.md:
// no example repo reaches beyond encoding/json for JSON handling.
package parser

import (
	"bufio"
	"encoding/json"
	"io"

	"go.uber.org/zap"

	"github.com/meridianhealth/claimsim/internal/claims"
)

const highChargeWarningThreshold = 10000.0

// Source reads claims from a JSONL stream, validating each one against
// its required fields. Invalid claims are skipped and logged; warnings
// (zero charge, total over $10,000) do not reject.
type Source struct {
	scanner *bufio.Scanner
	log     *zap.Logger
}

// New wraps r as a JSONL ClaimSource.
func New(r io.Reader, log *zap.Logger) *Source {
	return &Source{scanner: bufio.NewScanner(r), log: log}
}

// Next returns the next valid claim, skipping and logging invalid lines,
// until the stream is exhausted.
func (s *Source) Next() (claims.Claim, bool) {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var claim claims.Claim
		if err := json.Unmarshal(line, &claim); err != nil {
			s.log.Warn("parser: malformed claim line skipped", zap.Error(err))
			continue
		}

		if err := validate(claim); err != nil {
			s.log.Warn("parser: invalid claim skipped", zap.Error(err), zap.String("claim_id", claim.ClaimID))
			continue
		}

		warn(claim, s.log)
		return claim, true
	}
	return claims.Claim{}, false
}

func validate(c claims.Claim) error {
	if c.ClaimID == "" {
		return errMissing("claim_id")
	}
	if c.Patient.FirstName == "" {
		return errMissing("patient.first_name")
	}
	if c.Patient.LastName == "" {
		return errMissing("patient.last_name")
	}
	if c.PayerID == "" {
		return errMissing("insurance.payer_id")
	}
	if len(c.ServiceLines) == 0 {
		return errMissing("service_lines")
	}
	for _, l := range c.ServiceLines {
		if l.ServiceLineID == "" {
			return errMissing("service_line_id")
		}
		if l.UnitChargeAmount < 0 {
			return errMissing("non-negative unit_charge_amount")
		}
		if l.Units < 0 {
			return errMissing("non-negative units")
		}
		if l.Details == "" {
			return errMissing("details")
		}
		if l.Currency == "" {
			return errMissing("currency")
		}
	}
	return nil
}

func warn(c claims.Claim, log *zap.Logger) {
	total := c.BilledTotal().Float64()
	for _, l := range c.ServiceLines {
		if l.UnitChargeAmount == 0 {
			log.Warn("parser: zero unit_charge_amount", zap.String("claim_id", c.ClaimID), zap.String("service_line_id", l.ServiceLineID))
		}
	}
	if total > highChargeWarningThreshold {
		log.Warn("parser: claim total exceeds $10,000", zap.String("claim_id", c.ClaimID), zap.Float64("total", total))
	}
}

type validationError string

func (e validationError) Error() string { return "parser: missing/invalid " + string(e) }

func errMissing(field string) error { return validationError(field) }

// Package edi implements the EDI835Encoder port: a minimal EDI-835
// flavored textual serialization of a Remittance. This is not a
// byte-exact X12 835 implementation.
package edi

import (
	"fmt"
	"strings"

	"github.com/meridianhealth/claimsim/internal/claims"
)

// Context supplies the payer display fields the 835 header needs.
type Context struct {
	PayerName    string
	PayerContact string
}

// Encoder renders a Remittance as loop/segment style text.
type Encoder struct{}

// New creates an Encoder.
func New() *Encoder {
	return &Encoder{}
}

// Encode renders remittance/claim/payer context into an 835-flavored
// text block.
func (e *Encoder) Encode(rem claims.Remittance, claim claims.Claim, ctx Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "ISA*00*%-10s*%-10s\n", "", "")
	fmt.Fprintf(&b, "N1*PR*%s\n", ctx.PayerName)
	fmt.Fprintf(&b, "PER*IC*%s\n", ctx.PayerContact)
	fmt.Fprintf(&b, "CLP*%s*%s*%s\n", rem.ClaimID, rem.OverallStatus, rem.PayerID)

	for _, line := range rem.RemittanceLines {
		fmt.Fprintf(&b, "SVC*%s*%s*%s*%s*%s*%s*%s*%s\n",
			line.ServiceLineID,
			line.BilledAmount.String(),
			line.PayerPaid.String(),
			line.Copay.String(),
			line.Coinsurance.String(),
			line.Deductible.String(),
			line.NotAllowed.String(),
			line.Status,
		)
		if line.DenialInfo != nil {
			fmt.Fprintf(&b, "CAS*%s*%s*%s\n", line.DenialInfo.GroupCode, line.DenialInfo.ReasonCode, line.DenialInfo.Description)
		}
	}

	fmt.Fprintf(&b, "SE*%d*%s\n", len(rem.RemittanceLines)+3, rem.CorrelationID)

	return b.String()
}

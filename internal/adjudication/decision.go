// Package adjudication implements the PayerAdjudicator: per-payer
// simulated delay, claim- and line-level denial, payment math, and
// remittance assembly.
package adjudication

import (
	"math/rand"

	"github.com/meridianhealth/claimsim/internal/claims"
	"github.com/meridianhealth/claimsim/internal/denial"
	"github.com/meridianhealth/claimsim/pkg/money"
)

// lineDenialFactor relates claim-level and line-level denial probability.
const lineDenialFactor = 0.33

// reconciliationTolerance is load-bearing; do not tighten.
const reconciliationTolerance = 0.03

// RandFunc returns a value in [0,1); swappable so tests can force
// specific draws (e.g. the scenario fixtures that pin Math.random).
type RandFunc func() float64

// DefaultRand wraps math/rand's global source.
func DefaultRand() float64 { return rand.Float64() }

// Decide runs the full per-claim decision pipeline and returns the
// resulting lines, overall status, and the total denied amount (nil if
// nothing was denied).
func Decide(claim claims.Claim, cfg claims.PayerConfig, catalog *denial.Catalog, rnd RandFunc) ([]claims.RemittanceLine, claims.OverallStatus, *money.Amount) {
	u0 := rnd()
	if u0 < cfg.DenialRate {
		return decideClaimDenial(claim, cfg, catalog, rnd)
	}
	return decideLineByLine(claim, cfg, catalog, rnd)
}

func decideClaimDenial(claim claims.Claim, cfg claims.PayerConfig, catalog *denial.Catalog, rnd RandFunc) ([]claims.RemittanceLine, claims.OverallStatus, *money.Amount) {
	info := pickDenialInfo(cfg, catalog, rnd)

	lines := make([]claims.RemittanceLine, 0, len(claim.ServiceLines))
	total := money.Zero
	for _, sl := range claim.ServiceLines {
		billed := sl.Billed()
		total = total.Add(billed)
		infoCopy := info
		lines = append(lines, claims.RemittanceLine{
			ServiceLineID: sl.ServiceLineID,
			BilledAmount:  billed,
			NotAllowed:    billed,
			Status:        claims.LineDenied,
			DenialInfo:    &infoCopy,
		})
	}
	return lines, claims.StatusDenied, &total
}

func decideLineByLine(claim claims.Claim, cfg claims.PayerConfig, catalog *denial.Catalog, rnd RandFunc) ([]claims.RemittanceLine, claims.OverallStatus, *money.Amount) {
	lines := make([]claims.RemittanceLine, 0, len(claim.ServiceLines))
	approvedCount, deniedCount := 0, 0
	deniedTotal := money.Zero

	for _, sl := range claim.ServiceLines {
		b := sl.Billed()

		if b.Cmp(money.Zero) <= 0 {
			notAllowed := money.MaxZero(b.Neg())
			lines = append(lines, claims.RemittanceLine{
				ServiceLineID: sl.ServiceLineID,
				BilledAmount:  b,
				NotAllowed:    notAllowed,
				Status:        claims.LineDenied,
			})
			deniedCount++
			deniedTotal = deniedTotal.Add(b.Abs())
			continue
		}

		uLine := rnd()
		if uLine < cfg.DenialRate*lineDenialFactor {
			info := catalog.PickRandom()
			lines = append(lines, claims.RemittanceLine{
				ServiceLineID: sl.ServiceLineID,
				BilledAmount:  b,
				NotAllowed:    b,
				Status:        claims.LineDenied,
				DenialInfo:    &info,
			})
			deniedCount++
			deniedTotal = deniedTotal.Add(b)
			continue
		}

		lines = append(lines, adjudicateLine(sl.ServiceLineID, b, cfg, rnd))
		approvedCount++
	}

	overall := claims.StatusPartialDenial
	switch {
	case deniedCount == 0:
		overall = claims.StatusApproved
	case approvedCount == 0:
		overall = claims.StatusDenied
	}

	var total *money.Amount
	if deniedCount > 0 {
		total = &deniedTotal
	}
	return lines, overall, total
}

func adjudicateLine(serviceLineID string, b money.Amount, cfg claims.PayerConfig, rnd RandFunc) claims.RemittanceLine {
	f := 0.9 + 0.2*rnd()

	payerPaid := money.MaxZero(b.Mul(cfg.PayerPercentage).Mul(f))
	copay := money.MaxZero(minAmount(money.New(cfg.CopayFixed), b.Sub(payerPaid)))
	remAfterPayerAndCopay := b.Sub(payerPaid).Sub(copay)
	deductible := money.MaxZero(remAfterPayerAndCopay.Mul(cfg.DeductiblePercentage))
	coinsurance := money.MaxZero(remAfterPayerAndCopay.Sub(deductible))
	notAllowed := money.MaxZero(b.Sub(payerPaid.Add(copay).Add(deductible).Add(coinsurance)))

	payerPaid = payerPaid.RoundCents()
	copay = copay.RoundCents()
	deductible = deductible.RoundCents()
	coinsurance = coinsurance.RoundCents()
	notAllowed = notAllowed.RoundCents()

	payerPaid, copay, deductible, coinsurance, notAllowed = rebalance(payerPaid, copay, deductible, coinsurance, notAllowed, b)

	return claims.RemittanceLine{
		ServiceLineID: serviceLineID,
		BilledAmount:  b,
		PayerPaid:     payerPaid,
		Copay:         copay,
		Deductible:    deductible,
		Coinsurance:   coinsurance,
		NotAllowed:    notAllowed,
		Status:        claims.LineApproved,
	}
}

// rebalance absorbs rounding residue into not_allowed (clamped to >= 0),
// spilling any remaining deficit into payer_paid.
func rebalance(payerPaid, copay, deductible, coinsurance, notAllowed, billed money.Amount) (money.Amount, money.Amount, money.Amount, money.Amount, money.Amount) {
	sum := payerPaid.Add(copay).Add(deductible).Add(coinsurance).Add(notAllowed)
	diff := billed.Sub(sum)
	if diff.Abs().Float64() <= reconciliationTolerance {
		return payerPaid, copay, deductible, coinsurance, notAllowed
	}

	adjusted := notAllowed.Add(diff)
	if adjusted.IsNegative() {
		deficit := adjusted.Neg()
		notAllowed = money.Zero
		payerPaid = payerPaid.Sub(deficit)
	} else {
		notAllowed = adjusted
	}
	return payerPaid, copay, deductible, coinsurance, notAllowed
}

func minAmount(a, b money.Amount) money.Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func pickDenialInfo(cfg claims.PayerConfig, catalog *denial.Catalog, rnd RandFunc) claims.DenialInfo {
	if len(cfg.PreferredDenialCategories) == 0 {
		return catalog.PickRandom()
	}
	idx := int(rnd() * float64(len(cfg.PreferredDenialCategories)))
	if idx >= len(cfg.PreferredDenialCategories) {
		idx = len(cfg.PreferredDenialCategories) - 1
	}
	return catalog.PickByCategory(cfg.PreferredDenialCategories[idx])
}

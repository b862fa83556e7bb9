package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/meridianhealth/claimsim/internal/claims"
	"github.com/meridianhealth/claimsim/internal/config"
	"github.com/meridianhealth/claimsim/internal/orchestrator"
)

type sliceSource struct {
	items []claims.Claim
	pos   int
}

func (s *sliceSource) Next() (claims.Claim, bool) {
	if s.pos >= len(s.items) {
		return claims.Claim{}, false
	}
	c := s.items[s.pos]
	s.pos++
	return c, true
}

func testConfig() *config.Config {
	return &config.Config{
		Ingestion: config.Ingestion{RateLimit: 1000, SourcePath: "unused-in-this-test"},
		Payers: []config.Payer{
			{
				PayerID: "payerA",
				Name:    "Payer A",
				AdjudicationRules: config.AdjudicationRules{
					PayerPercentage:      0.8,
					CopayFixedAmount:     10,
					DeductiblePercentage: 0.1,
				},
			},
		},
	}
}

func claimsFor(n int, payerID string) []claims.Claim {
	out := make([]claims.Claim, n)
	for i := range out {
		out[i] = claims.Claim{
			ClaimID: "claim",
			PayerID: payerID,
			ServiceLines: []claims.ServiceLine{
				{ServiceLineID: "L1", UnitChargeAmount: 100, Units: 1},
			},
		}
	}
	return out
}

func TestOrchestratorRejectsInvalidConfig(t *testing.T) {
	t.Run("New errors when no payer is configured", func(t *testing.T) {
		cfg := testConfig()
		cfg.Payers = nil
		_, err := orchestrator.New(cfg, &sliceSource{}, 0, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestOrchestratorStartThenStopProcessesClaimsEndToEnd(t *testing.T) {
	t.Run("claims submitted through the pipeline land in billing totals", func(t *testing.T) {
		src := &sliceSource{items: claimsFor(5, "payerA")}
		orch, err := orchestrator.New(testConfig(), src, 5, zap.NewNop())
		assert.NoError(t, err)

		assert.NoError(t, orch.Start(context.Background()))

		assert.Eventually(t, func() bool {
			return orch.Stats().Billing.Totals.TotalClaims == 5
		}, 2*time.Second, 20*time.Millisecond)

		status := orch.Status()
		assert.Equal(t, orchestrator.StateRunning, status.State)

		assert.NoError(t, orch.Stop(10*time.Millisecond))

		stats := orch.Stats()
		assert.Equal(t, 5, stats.Billing.Totals.TotalClaims)
		assert.Equal(t, 0, stats.Correlation.Outstanding)
	})
}

func TestOrchestratorStartIsNotReentrant(t *testing.T) {
	t.Run("a second Start on a running orchestrator errors", func(t *testing.T) {
		src := &sliceSource{items: claimsFor(1, "payerA")}
		orch, err := orchestrator.New(testConfig(), src, 1, zap.NewNop())
		assert.NoError(t, err)

		assert.NoError(t, orch.Start(context.Background()))
		assert.Error(t, orch.Start(context.Background()))

		orch.Stop(10 * time.Millisecond)
	})
}

func TestOrchestratorSystemInfoReportsHostAndUptime(t *testing.T) {
	t.Run("system info exposes cpu count and a positive uptime once running", func(t *testing.T) {
		src := &sliceSource{items: claimsFor(1, "payerA")}
		orch, err := orchestrator.New(testConfig(), src, 1, zap.NewNop())
		assert.NoError(t, err)

		assert.NoError(t, orch.Start(context.Background()))
		time.Sleep(5 * time.Millisecond)

		info := orch.SystemInfo()
		assert.Greater(t, info.CPUCount, 0)
		assert.Greater(t, info.WorkerThreads, 0)
		assert.Greater(t, info.Uptime, time.Duration(0))

		orch.Stop(10 * time.Millisecond)
	})
}

func TestOrchestratorUnknownPayerFallsBackDuringRun(t *testing.T) {
	t.Run("a claim naming an unconfigured payer still completes via fallback", func(t *testing.T) {
		src := &sliceSource{items: claimsFor(1, "does-not-exist")}
		orch, err := orchestrator.New(testConfig(), src, 1, zap.NewNop())
		assert.NoError(t, err)

		assert.NoError(t, orch.Start(context.Background()))

		assert.Eventually(t, func() bool {
			return orch.Stats().Billing.Totals.TotalClaims == 1
		}, 2*time.Second, 20*time.Millisecond)

		orch.Stop(10 * time.Millisecond)
	})
}

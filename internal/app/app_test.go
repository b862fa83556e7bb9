package app_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/meridianhealth/claimsim/internal/app"
	"github.com/meridianhealth/claimsim/internal/config"
)

func writeClaimSource(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "claims.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func validClaimLine(claimID string) string {
	return `{"claim_id":"` + claimID + `","payer_id":"payerA","patient":{"first_name":"A","last_name":"B"},"service_lines":[{"service_line_id":"L1","unit_charge_amount":50,"units":1,"details":"visit","currency":"USD"}]}`
}

func testConfig(sourcePath string) *config.Config {
	return &config.Config{
		Ingestion: config.Ingestion{RateLimit: 1000, SourcePath: sourcePath},
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

func TestAppStatusAndStatsBeforeStartReportNotRunning(t *testing.T) {
	t.Run("status/stats return ok=false before any simulation starts", func(t *testing.T) {
		a := app.New(zap.NewNop())
		_, ok := a.Status()
		assert.False(t, ok)
		_, ok = a.Stats()
		assert.False(t, ok)
	})
}

func TestAppStopWithoutStartErrors(t *testing.T) {
	t.Run("stopping an idle app errors", func(t *testing.T) {
		a := app.New(zap.NewNop())
		err := a.Stop()
		assert.Error(t, err)
	})
}

func TestAppStartOpensSourceAndRuns(t *testing.T) {
	t.Run("start opens the configured source and begins a simulation", func(t *testing.T) {
		path := writeClaimSource(t, validClaimLine("claim1"), validClaimLine("claim2"))
		a := app.New(zap.NewNop())

		err := a.Start(testConfig(path))
		assert.NoError(t, err)

		status, ok := a.Status()
		assert.True(t, ok)
		assert.NotEmpty(t, status.State)

		assert.Eventually(t, func() bool {
			stats, ok := a.Stats()
			return ok && stats.Billing.Totals.TotalClaims == 2
		}, 2*time.Second, 20*time.Millisecond)

		assert.NoError(t, a.Stop())
	})
}

func TestAppStartTwiceWithoutStoppingErrors(t *testing.T) {
	t.Run("a second Start while one is running is rejected", func(t *testing.T) {
		path := writeClaimSource(t, validClaimLine("claim1"))
		a := app.New(zap.NewNop())

		assert.NoError(t, a.Start(testConfig(path)))
		err := a.Start(testConfig(path))
		assert.Error(t, err)

		a.Stop()
	})
}

func TestAppStartWithMissingSourceFileErrors(t *testing.T) {
	t.Run("a nonexistent source path fails fast", func(t *testing.T) {
		a := app.New(zap.NewNop())
		err := a.Start(testConfig("/nonexistent/path/claims.jsonl"))
		assert.Error(t, err)

		_, ok := a.Status()
		assert.False(t, ok, "a failed Start leaves the app idle")
	})
}

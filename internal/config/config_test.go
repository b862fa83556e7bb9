package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridianhealth/claimsim/internal/config"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

const validConfig = `
ingestion:
  rateLimit: 10
  sourcePath: claims.jsonl
payers:
  - payer_id: payerA
    name: Payer A
    adjudication_rules:
      payer_percentage: 0.8
      copay_fixed_amount: 10
      deductible_percentage: 0.1
`

func TestLoadValidConfig(t *testing.T) {
	t.Run("a well-formed config loads without error", func(t *testing.T) {
		path := writeConfig(t, validConfig)
		cfg, err := config.Load(path)
		assert.NoError(t, err)
		assert.Len(t, cfg.Payers, 1)
		assert.Equal(t, "payerA", cfg.Payers[0].PayerID)
	})
}

func TestLoadMissingFileErrors(t *testing.T) {
	t.Run("a nonexistent path errors", func(t *testing.T) {
		_, err := config.Load("/nonexistent/config.yaml")
		assert.Error(t, err)
	})
}

func TestLoadMalformedYAMLErrors(t *testing.T) {
	t.Run("invalid YAML syntax errors", func(t *testing.T) {
		path := writeConfig(t, "ingestion: [this is not valid: yaml")
		_, err := config.Load(path)
		assert.Error(t, err)
	})
}

func TestValidateRejectsEmptyPayerList(t *testing.T) {
	t.Run("zero payers is a configuration error", func(t *testing.T) {
		cfg := &config.Config{Ingestion: config.Ingestion{RateLimit: 1, SourcePath: "x"}}
		err := config.Validate(cfg)
		assert.Error(t, err)
	})
}

func TestValidateRejectsDuplicatePayerIDs(t *testing.T) {
	t.Run("two payers sharing a payer_id is a configuration error", func(t *testing.T) {
		cfg := &config.Config{
			Ingestion: config.Ingestion{RateLimit: 1, SourcePath: "x"},
			Payers: []config.Payer{
				{PayerID: "payerA", Name: "A"},
				{PayerID: "payerA", Name: "A again"},
			},
		}
		err := config.Validate(cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	t.Run("a negative rate limit fails struct-tag validation", func(t *testing.T) {
		cfg := &config.Config{
			Ingestion: config.Ingestion{RateLimit: -1, SourcePath: "x"},
			Payers:    []config.Payer{{PayerID: "payerA", Name: "A"}},
		}
		err := config.Validate(cfg)
		assert.Error(t, err)
	})

	t.Run("a payer missing a name fails required validation", func(t *testing.T) {
		cfg := &config.Config{
			Ingestion: config.Ingestion{RateLimit: 1, SourcePath: "x"},
			Payers:    []config.Payer{{PayerID: "payerA"}},
		}
		err := config.Validate(cfg)
		assert.Error(t, err)
	})
}

func TestValidateAcceptsMinimalValidConfig(t *testing.T) {
	t.Run("one payer with required fields passes", func(t *testing.T) {
		cfg := &config.Config{
			Ingestion: config.Ingestion{RateLimit: 1, SourcePath: "x"},
			Payers:    []config.Payer{{PayerID: "payerA", Name: "A"}},
		}
		assert.NoError(t, config.Validate(cfg))
	})
}

// Package config loads and validates simulator configuration from YAML.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// PayerDelay is a payer's uniform simulated-delay range, in ms.
type PayerDelay struct {
	Min int `yaml:"min" validate:"gte=0"`
	Max int `yaml:"max" validate:"gtefield=Min"`
}

// AdjudicationRules configures a payer's payment arithmetic.
type AdjudicationRules struct {
	PayerPercentage      float64 `yaml:"payer_percentage" validate:"gte=0,lte=1"`
	CopayFixedAmount     float64 `yaml:"copay_fixed_amount" validate:"gte=0"`
	DeductiblePercentage float64 `yaml:"deductible_percentage" validate:"gte=0,lte=1"`
}

// DenialSettings configures a payer's denial behavior. Absent (zero
// value) denial_rate means the payer never denies.
type DenialSettings struct {
	DenialRate         float64  `yaml:"denial_rate" validate:"gte=0,lte=1"`
	HardDenialRate     float64  `yaml:"hard_denial_rate" validate:"gte=0,lte=1"`
	PreferredCategories []string `yaml:"preferred_categories"`
}

// Payer is one payers[] entry.
type Payer struct {
	PayerID           string            `yaml:"payer_id" validate:"required"`
	Name              string            `yaml:"name" validate:"required"`
	ProcessingDelayMS PayerDelay        `yaml:"processing_delay_ms"`
	AdjudicationRules AdjudicationRules `yaml:"adjudication_rules"`
	DenialSettings    DenialSettings    `yaml:"denial_settings"`
	// Concurrency overrides the per-payer queue's worker count. Zero
	// means derive it from ProcessingDelayMS per the delay-scaling rule.
	Concurrency int `yaml:"concurrency" validate:"gte=0"`
}

// Ingestion configures the Ingestor/RateLimiter and its claim source.
type Ingestion struct {
	RateLimit  float64 `yaml:"rateLimit" validate:"gt=0"`
	SourcePath string  `yaml:"sourcePath" validate:"required"`
	TotalHint  int64   `yaml:"totalHint" validate:"gte=0"`
}

// Billing configures BillingAggregator's periodic reporter.
type Billing struct {
	ReportingIntervalSeconds int `yaml:"reportingIntervalSeconds" validate:"gte=0"`
}

// Aging configures ARAgingService thresholds and reporter cadence.
type Aging struct {
	ReportingIntervalSeconds int     `yaml:"reportingIntervalSeconds" validate:"gte=0"`
	CriticalAgeMinutes       float64 `yaml:"criticalAgeMinutes" validate:"gte=0"`
	HighVolumeThreshold      int     `yaml:"highVolumeThreshold" validate:"gte=0"`
	PayerDelayThreshold      float64 `yaml:"payerDelayThreshold" validate:"gte=0"`
}

// Queues configures per-queue worker concurrency. Zero for either field
// falls back to the default for that queue (1, preserving submission/
// billing-write ordering); per-payer queues are sized independently
// (see Payer.Concurrency).
type Queues struct {
	ClaimsConcurrency     int `yaml:"claimsConcurrency" validate:"gte=0"`
	RemittanceConcurrency int `yaml:"remittanceConcurrency" validate:"gte=0"`
}

// Cache configures the optional ReportCache.
type Cache struct {
	RedisAddr string `yaml:"redisAddr"`
}

// NotifyConfig configures the optional EventNotifier.
type NotifyConfig struct {
	NATSURL string `yaml:"natsUrl"`
}

// StoreConfig configures the optional ClaimStore.
type StoreConfig struct {
	PostgresDSN string `yaml:"postgresDsn"`
}

// MetricsConfig configures the optional InfluxDB sink.
type MetricsConfig struct {
	InfluxURL   string `yaml:"influxUrl"`
	InfluxToken string `yaml:"influxToken"`
	InfluxOrg   string `yaml:"influxOrg"`
	InfluxBucket string `yaml:"influxBucket"`
}

// GatewayConfig configures the optional HTTP control surface.
type GatewayConfig struct {
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwtSecret"`
}

// Config is the simulator's full configuration, loaded from YAML.
type Config struct {
	Ingestion Ingestion     `yaml:"ingestion"`
	Billing   Billing       `yaml:"billing"`
	Aging     Aging         `yaml:"aging"`
	Payers    []Payer       `yaml:"payers" validate:"dive"`
	Queues    Queues        `yaml:"queues"`
	Cache     Cache         `yaml:"cache"`
	Notify    NotifyConfig  `yaml:"notify"`
	Store     StoreConfig   `yaml:"store"`
	Metrics   MetricsConfig `yaml:"metrics"`
	Gateway   GatewayConfig `yaml:"gateway"`
}

var validate = validator.New()

// Load reads and validates a YAML config file. A validation failure
// means the orchestrator refuses to start.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct-tag validation plus the cross-field rules the
// tags can't express (non-empty payer list, fallback determinism).
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}
	if len(cfg.Payers) == 0 {
		return fmt.Errorf("config: at least one payer must be configured")
	}
	seen := make(map[string]bool, len(cfg.Payers))
	for _, p := range cfg.Payers {
		if seen[p.PayerID] {
			return fmt.Errorf("config: duplicate payer_id %q", p.PayerID)
		}
		seen[p.PayerID] = true
	}
	return nil
}

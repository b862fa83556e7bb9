// Package metrics implements an optional InfluxDB line-protocol sink for
// periodic billing/aging snapshots.
package metrics

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Sink writes periodic simulation metrics to InfluxDB. A nil Sink is
// valid and every method becomes a no-op.
type Sink struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
	org    string
	bucket string
}

// New connects to an InfluxDB instance at url using token, org, bucket.
func New(url, token, org, bucket string) *Sink {
	client := influxdb2.NewClient(url, token)
	return &Sink{
		client: client,
		writer: client.WriteAPIBlocking(org, bucket),
		org:    org,
		bucket: bucket,
	}
}

// WriteBillingSnapshot writes one point summarizing billing totals.
func (s *Sink) WriteBillingSnapshot(ctx context.Context, totalClaims int, totalBilled, totalPaid float64) error {
	if s == nil {
		return nil
	}
	p := influxdb2.NewPoint(
		"billing_snapshot",
		map[string]string{},
		map[string]interface{}{
			"total_claims": totalClaims,
			"total_billed": totalBilled,
			"total_paid":   totalPaid,
		},
		time.Now(),
	)
	return s.writer.WritePoint(ctx, p)
}

// WriteAgingSnapshot writes one point per payer's aging state.
func (s *Sink) WriteAgingSnapshot(ctx context.Context, payerID string, outstanding int, avgAgeMinutes float64) error {
	if s == nil {
		return nil
	}
	p := influxdb2.NewPoint(
		"aging_snapshot",
		map[string]string{"payer_id": payerID},
		map[string]interface{}{
			"outstanding":     outstanding,
			"avg_age_minutes": avgAgeMinutes,
		},
		time.Now(),
	)
	return s.writer.WritePoint(ctx, p)
}

// Close releases the underlying HTTP client.
func (s *Sink) Close() {
	if s == nil {
		return
	}
	s.client.Close()
}

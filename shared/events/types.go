// Package events defines the envelope and payload types published by
// the optional EventNotifier: a small event-sourcing-style envelope
// (BaseEvent/Metadata) plus claims-domain payloads.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event subjects published onto the configured EventNotifier.
const (
	ClaimIngested    = "claim.ingested"
	ClaimRouted      = "claim.routed"
	RemittanceIssued = "remittance.issued"
	AgingAlertType   = "aging.alert"
	BillingSummary   = "billing.summary"
)

// BaseEvent contains common event fields.
type BaseEvent struct {
	ID            uuid.UUID       `json:"id"`
	Type          string          `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	Data          json.RawMessage `json:"data"`
	Metadata      Metadata        `json:"metadata"`
}

// Metadata carries correlation/causation context. No trace/span fields
// since nothing in this module emits distributed traces.
type Metadata struct {
	CorrelationID string            `json:"correlation_id"`
	CausationID   string            `json:"causation_id"`
	Source        string            `json:"source"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// ClaimIngestedData is the payload for the ClaimIngested subject: an
// envelope enqueued onto Q_claims. No component in this module
// publishes it.
type ClaimIngestedData struct {
	CorrelationID string    `json:"correlation_id"`
	ClaimID       string    `json:"claim_id"`
	PayerID       string    `json:"payer_id"`
	BilledAmount  string    `json:"billed_amount"`
	IngestedAt    time.Time `json:"ingested_at"`
}

// ClaimRoutedData is the payload for the ClaimRouted subject: an
// envelope assigned to a payer queue. No component in this module
// publishes it.
type ClaimRoutedData struct {
	CorrelationID   string `json:"correlation_id"`
	ResolvedPayerID string `json:"resolved_payer_id"`
	FallbackUsed    bool   `json:"fallback_used"`
}

// RemittanceData is published after the BillingAggregator has
// processed a remittance.
type RemittanceData struct {
	CorrelationID string    `json:"correlation_id"`
	ClaimID       string    `json:"claim_id"`
	PayerID       string    `json:"payer_id"`
	OverallStatus string    `json:"overall_status"`
	TotalPaid     string    `json:"total_paid"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// AgingAlertData mirrors aging.Alert for external subscribers.
type AgingAlertData struct {
	Type       string    `json:"type"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	PayerID    string    `json:"payer_id,omitempty"`
	ClaimCount int       `json:"claim_count,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// BillingSummaryData is the payload for the BillingSummary subject: a
// billing totals snapshot. No component in this module publishes it.
type BillingSummaryData struct {
	TotalClaims                int    `json:"total_claims"`
	TotalBilled                string `json:"total_billed"`
	TotalPaid                  string `json:"total_paid"`
	TotalPatientResponsibility string `json:"total_patient_responsibility"`
}

// NewEvent builds a BaseEvent wrapping data, JSON-encoded.
func NewEvent(eventType, aggregateID, aggregateType string, data interface{}, metadata Metadata) (*BaseEvent, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &BaseEvent{
		ID:            uuid.New(),
		Type:          eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Timestamp:     time.Now(),
		Version:       1,
		Data:          dataBytes,
		Metadata:      metadata,
	}, nil
}

// ParseData parses event data into the given type.
func (e *BaseEvent) ParseData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// WithCorrelation sets correlation and causation IDs.
func (m *Metadata) WithCorrelation(correlationID, causationID string) *Metadata {
	m.CorrelationID = correlationID
	m.CausationID = causationID
	return m
}

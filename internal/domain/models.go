// Package domain contains the core domain models for conversion attribution.
package domain

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ClickRecord represents one visitor click on a tracked link. Click records
// are created and owned by the click recorder service; this service only
// reads them.
type ClickRecord struct {
	ID          string    `json:"id"`
	LinkID      string    `json:"link_id"`
	WorkspaceID string    `json:"workspace_id"`
	VisitorID   string    `json:"visitor_id"`
	Referer     string    `json:"referer,omitempty"`
	Device      string    `json:"device,omitempty"`
	ClickedAt   time.Time `json:"clicked_at"`
}

// Link is the minimal projection of a tracked short link this service needs:
// ownership and where the thank-you redirect sends the visitor.
type Link struct {
	ID             string `json:"id"`
	WorkspaceID    string `json:"workspace_id"`
	DestinationURL string `json:"destination_url"`
}

// Lead holds the normalized conversion fields extracted from a provider
// payload. ExternalID is the provider-native identifier the lead creation
// service deduplicates on.
type Lead struct {
	ExternalID string `json:"external_id,omitempty"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
	BookingRef string `json:"booking_ref,omitempty"`
	Amount     int64  `json:"amount,omitempty"`
	Currency   string `json:"currency,omitempty"`
	EventName  string `json:"event_name,omitempty"`
}

// PendingWebhook is a conversion event that arrived without a resolvable
// attribution identifier. It waits in the attribution cache for a visitor
// signal or for expiry.
type PendingWebhook struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Provider    string    `json:"provider"`
	Lead        Lead      `json:"lead"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewPendingWebhook builds a PendingWebhook for the given workspace and
// provider with a fresh id and UTC creation time.
func NewPendingWebhook(workspaceID, provider string, lead Lead, reason string) PendingWebhook {
	return PendingWebhook{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Provider:    provider,
		Lead:        lead,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	}
}

// Encode serializes the pending webhook to its cache list representation.
// The exact bytes matter: atomic remove-if-equal compares entries verbatim.
func (p PendingWebhook) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode pending webhook: %w", err)
	}
	return string(data), nil
}

// DecodePendingWebhook parses a cache list entry back into a PendingWebhook.
func DecodePendingWebhook(entry string) (PendingWebhook, error) {
	var p PendingWebhook
	if err := json.Unmarshal([]byte(entry), &p); err != nil {
		return PendingWebhook{}, fmt.Errorf("decode pending webhook: %w", err)
	}
	return p, nil
}

// WaitingConversionMarker records that a visitor reached the thank-you page
// with a recent click on record before any webhook arrived. At most one
// marker is active per workspace and visitor; a later marker overwrites an
// unconsumed earlier one.
type WaitingConversionMarker struct {
	WorkspaceID string    `json:"workspace_id"`
	ClickID     string    `json:"click_id"`
	LinkID      string    `json:"link_id"`
	VisitorID   string    `json:"visitor_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Encode serializes the marker to its cache representation.
func (m WaitingConversionMarker) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode waiting marker: %w", err)
	}
	return string(data), nil
}

// DecodeWaitingMarker parses a cache value back into a marker.
func DecodeWaitingMarker(entry string) (WaitingConversionMarker, error) {
	var m WaitingConversionMarker
	if err := json.Unmarshal([]byte(entry), &m); err != nil {
		return WaitingConversionMarker{}, fmt.Errorf("decode waiting marker: %w", err)
	}
	return m, nil
}

// Outcome is the transient result of a reconciliation attempt. It drives
// branching and telemetry; it is never persisted.
type Outcome string

const (
	// OutcomeMatched means the conversion was attributed to a click.
	OutcomeMatched Outcome = "matched"
	// OutcomeStoredPending means the webhook was cached awaiting a visitor signal.
	OutcomeStoredPending Outcome = "stored_pending"
	// OutcomeStoredWaiting means the visitor signal was cached awaiting a webhook.
	OutcomeStoredWaiting Outcome = "stored_waiting"
	// OutcomeExpiredUnmatched means the reconciliation window elapsed unmatched.
	OutcomeExpiredUnmatched Outcome = "expired_unmatched"
	// OutcomeNoRecentClick means the visitor had no click on record; the
	// conversion cannot be attributed and no state changes.
	OutcomeNoRecentClick Outcome = "no_recent_click"
)

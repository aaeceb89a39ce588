package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/leadlink/conversions/internal/domain"
)

const (
	calcomName            = "calcom"
	calcomSignatureHeader = "X-Cal-Signature-256"
	calcomBookingCreated  = "BOOKING_CREATED"
)

// Calcom handles booking webhooks from Cal.com. The signature header carries
// a hex HMAC-SHA256 of the raw body keyed with the shared webhook secret.
type Calcom struct{}

// NewCalcom creates the Cal.com adapter.
func NewCalcom() *Calcom {
	return &Calcom{}
}

// Name returns the provider key.
func (a *Calcom) Name() string { return calcomName }

type calcomPayload struct {
	TriggerEvent string `json:"triggerEvent"`
	Payload      struct {
		UID       string `json:"uid"`
		Title     string `json:"title"`
		Attendees []struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"attendees"`
		Responses map[string]struct {
			Value any `json:"value"`
		} `json:"responses"`
		Metadata map[string]string `json:"metadata"`
	} `json:"payload"`
}

func (p *calcomPayload) EventType() string { return p.TriggerEvent }

// VerifySignature checks the X-Cal-Signature-256 header against the raw body.
func (a *Calcom) VerifySignature(header http.Header, body []byte, secret string) error {
	sig := header.Get(calcomSignatureHeader)
	if sig == "" {
		return fmt.Errorf("%w: missing %s header", ErrBadSignature, calcomSignatureHeader)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}

// ParseBody parses a Cal.com webhook body.
func (a *Calcom) ParseBody(body []byte) (Payload, error) {
	var p calcomPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.TriggerEvent == "" {
		return nil, fmt.Errorf("%w: missing triggerEvent", ErrMalformedPayload)
	}
	return &p, nil
}

// FilterEvent accepts only booking creations; reschedules, cancellations and
// the rest are acknowledged and dropped.
func (a *Calcom) FilterEvent(p Payload) error {
	if p.EventType() != calcomBookingCreated {
		return fmt.Errorf("%w: %s", ErrUnsupportedEvent, p.EventType())
	}
	return nil
}

// AttributionID tries the booking metadata first, then the booking question
// responses, under each candidate key in order.
func (a *Calcom) AttributionID(p Payload) (string, bool) {
	cp, ok := p.(*calcomPayload)
	if !ok {
		return "", false
	}

	if id, found := firstAttributionKey(cp.Payload.Metadata); found {
		return id, true
	}

	for _, key := range attributionKeys {
		if resp, found := cp.Payload.Responses[key]; found {
			if s, isString := resp.Value.(string); isString && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// Lead extracts the first attendee as the lead, with the booking UID as the
// provider-native dedup key.
func (a *Calcom) Lead(p Payload) domain.Lead {
	cp, ok := p.(*calcomPayload)
	if !ok {
		return domain.Lead{}
	}

	lead := domain.Lead{
		ExternalID: cp.Payload.UID,
		BookingRef: cp.Payload.UID,
		EventName:  cp.TriggerEvent,
	}
	if len(cp.Payload.Attendees) > 0 {
		lead.Email = cp.Payload.Attendees[0].Email
		lead.Name = cp.Payload.Attendees[0].Name
	}
	return lead
}

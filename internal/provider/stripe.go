package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/leadlink/conversions/internal/domain"
)

const (
	stripeName              = "stripe"
	stripeSignatureHeader   = "Stripe-Signature"
	stripeCheckoutCompleted = "checkout.session.completed"

	// stripeTimestampTolerance bounds how old a signed timestamp may be,
	// limiting signature replay.
	stripeTimestampTolerance = 5 * time.Minute
)

// Stripe handles payment webhooks. The signature header carries
// "t=<unix>,v1=<hex hmac>" where the signed payload is "<t>.<raw body>".
type Stripe struct {
	// now is swappable for tests.
	now func() time.Time
}

// NewStripe creates the Stripe adapter.
func NewStripe() *Stripe {
	return &Stripe{now: time.Now}
}

// Name returns the provider key.
func (a *Stripe) Name() string { return stripeName }

type stripePayload struct {
	ID   string `json:"id"`
	Kind string `json:"type"`
	Data struct {
		Object struct {
			ID                string            `json:"id"`
			ClientReferenceID string            `json:"client_reference_id"`
			AmountTotal       int64             `json:"amount_total"`
			Currency          string            `json:"currency"`
			Metadata          map[string]string `json:"metadata"`
			CustomerDetails   struct {
				Email string `json:"email"`
				Name  string `json:"name"`
			} `json:"customer_details"`
		} `json:"object"`
	} `json:"data"`
}

func (p *stripePayload) EventType() string { return p.Kind }

// VerifySignature checks the Stripe-Signature scheme against the raw body.
// The timestamp inside the header is part of the signed payload, so a
// tampered body or a shifted timestamp both fail the comparison.
func (a *Stripe) VerifySignature(header http.Header, body []byte, secret string) error {
	sig := header.Get(stripeSignatureHeader)
	if sig == "" {
		return fmt.Errorf("%w: missing %s header", ErrBadSignature, stripeSignatureHeader)
	}

	timestamp, v1s, err := parseStripeSignature(sig)
	if err != nil {
		return err
	}

	signedAt := time.Unix(timestamp, 0)
	if a.now().Sub(signedAt) > stripeTimestampTolerance {
		return fmt.Errorf("%w: signature timestamp outside tolerance", ErrBadSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	// During secret rotation the header carries one v1 per active secret;
	// any one matching authenticates the delivery.
	for _, v1 := range v1s {
		if hmac.Equal([]byte(expected), []byte(v1)) {
			return nil
		}
	}
	return ErrBadSignature
}

// parseStripeSignature pulls the t and all v1 elements out of the header
// value.
func parseStripeSignature(sig string) (int64, []string, error) {
	var tsRaw string
	var v1s []string
	for _, part := range strings.Split(sig, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			tsRaw = value
		case "v1":
			v1s = append(v1s, value)
		}
	}
	if tsRaw == "" || len(v1s) == 0 {
		return 0, nil, fmt.Errorf("%w: incomplete signature header", ErrBadSignature)
	}

	timestamp, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: bad signature timestamp", ErrBadSignature)
	}
	return timestamp, v1s, nil
}

// ParseBody parses a Stripe event body.
func (a *Stripe) ParseBody(body []byte) (Payload, error) {
	var p stripePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Kind == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}
	return &p, nil
}

// FilterEvent accepts only completed checkout sessions.
func (a *Stripe) FilterEvent(p Payload) error {
	if p.EventType() != stripeCheckoutCompleted {
		return fmt.Errorf("%w: %s", ErrUnsupportedEvent, p.EventType())
	}
	return nil
}

// AttributionID tries the session metadata first, then the client reference
// id that checkout links can carry.
func (a *Stripe) AttributionID(p Payload) (string, bool) {
	sp, ok := p.(*stripePayload)
	if !ok {
		return "", false
	}

	if id, found := firstAttributionKey(sp.Data.Object.Metadata); found {
		return id, true
	}
	if ref := sp.Data.Object.ClientReferenceID; ref != "" {
		return ref, true
	}
	return "", false
}

// Lead extracts the customer and the paid amount; the checkout session id is
// the provider-native dedup key.
func (a *Stripe) Lead(p Payload) domain.Lead {
	sp, ok := p.(*stripePayload)
	if !ok {
		return domain.Lead{}
	}

	return domain.Lead{
		ExternalID: sp.Data.Object.ID,
		Email:      sp.Data.Object.CustomerDetails.Email,
		Name:       sp.Data.Object.CustomerDetails.Name,
		Amount:     sp.Data.Object.AmountTotal,
		Currency:   sp.Data.Object.Currency,
		EventName:  sp.Kind,
	}
}

package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/leadlink/conversions/internal/domain"
)

const (
	typeformName            = "typeform"
	typeformSignatureHeader = "Typeform-Signature"
	typeformSignaturePrefix = "sha256="
	typeformFormResponse    = "form_response"
)

// Typeform handles form submission webhooks. The signature header carries
// "sha256=" followed by a base64 HMAC-SHA256 of the raw body.
type Typeform struct{}

// NewTypeform creates the Typeform adapter.
func NewTypeform() *Typeform {
	return &Typeform{}
}

// Name returns the provider key.
func (a *Typeform) Name() string { return typeformName }

type typeformPayload struct {
	EventID      string `json:"event_id"`
	EventKind    string `json:"event_type"`
	FormResponse struct {
		Token      string            `json:"token"`
		Hidden     map[string]string `json:"hidden"`
		Definition struct {
			Title string `json:"title"`
		} `json:"definition"`
		Answers []struct {
			Type  string `json:"type"`
			Email string `json:"email,omitempty"`
			Text  string `json:"text,omitempty"`
			Field struct {
				Ref string `json:"ref"`
			} `json:"field"`
		} `json:"answers"`
	} `json:"form_response"`
}

func (p *typeformPayload) EventType() string { return p.EventKind }

// VerifySignature checks the Typeform-Signature header against the raw body.
func (a *Typeform) VerifySignature(header http.Header, body []byte, secret string) error {
	sig := header.Get(typeformSignatureHeader)
	if sig == "" {
		return fmt.Errorf("%w: missing %s header", ErrBadSignature, typeformSignatureHeader)
	}
	if !strings.HasPrefix(sig, typeformSignaturePrefix) {
		return fmt.Errorf("%w: unexpected signature format", ErrBadSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := typeformSignaturePrefix + base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}

// ParseBody parses a Typeform webhook body.
func (a *Typeform) ParseBody(body []byte) (Payload, error) {
	var p typeformPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.EventKind == "" {
		return nil, fmt.Errorf("%w: missing event_type", ErrMalformedPayload)
	}
	return &p, nil
}

// FilterEvent accepts only completed form responses.
func (a *Typeform) FilterEvent(p Payload) error {
	if p.EventType() != typeformFormResponse {
		return fmt.Errorf("%w: %s", ErrUnsupportedEvent, p.EventType())
	}
	return nil
}

// AttributionID reads the form's hidden fields, trying each candidate key in
// order. Hidden fields are the only channel Typeform offers for carrying a
// value through from the landing page.
func (a *Typeform) AttributionID(p Payload) (string, bool) {
	tp, ok := p.(*typeformPayload)
	if !ok {
		return "", false
	}
	return firstAttributionKey(tp.FormResponse.Hidden)
}

// Lead extracts the respondent's email and name from the answers; the
// response token is the provider-native dedup key.
func (a *Typeform) Lead(p Payload) domain.Lead {
	tp, ok := p.(*typeformPayload)
	if !ok {
		return domain.Lead{}
	}

	lead := domain.Lead{
		ExternalID: tp.FormResponse.Token,
		EventName:  tp.EventKind,
	}
	for _, ans := range tp.FormResponse.Answers {
		switch {
		case ans.Type == "email" && lead.Email == "":
			lead.Email = ans.Email
		case ans.Type == "text" && ans.Field.Ref == "name" && lead.Name == "":
			lead.Name = ans.Text
		}
	}
	return lead
}

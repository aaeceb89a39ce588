package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stripeBody = `{
	"id": "evt_1",
	"type": "checkout.session.completed",
	"data": {
		"object": {
			"id": "cs_test_123",
			"client_reference_id": "clk_ref",
			"amount_total": 4900,
			"currency": "usd",
			"metadata": {"click_id": "clk_meta"},
			"customer_details": {"email": "alan@example.com", "name": "Alan Turing"}
		}
	}
}`

func stripeSign(body, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func stripeAt(now time.Time) *Stripe {
	a := NewStripe()
	a.now = func() time.Time { return now }
	return a
}

func TestStripeVerifySignature(t *testing.T) {
	now := time.Now()
	a := stripeAt(now)
	header := http.Header{}
	header.Set("Stripe-Signature", stripeSign(stripeBody, "whsec_test", now))

	require.NoError(t, a.VerifySignature(header, []byte(stripeBody), "whsec_test"))
}

func TestStripeVerifySignatureStaleTimestamp(t *testing.T) {
	now := time.Now()
	a := stripeAt(now)
	header := http.Header{}
	header.Set("Stripe-Signature", stripeSign(stripeBody, "whsec_test", now.Add(-10*time.Minute)))

	err := a.VerifySignature(header, []byte(stripeBody), "whsec_test")
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestStripeVerifySignatureTamperedBody(t *testing.T) {
	now := time.Now()
	a := stripeAt(now)
	header := http.Header{}
	header.Set("Stripe-Signature", stripeSign(stripeBody, "whsec_test", now))

	err := a.VerifySignature(header, []byte(stripeBody+" "), "whsec_test")
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestStripeVerifySignatureMultipleV1(t *testing.T) {
	now := time.Now()
	a := stripeAt(now)
	ts := now.Unix()

	sign := func(secret string) string {
		mac := hmac.New(sha256.New, []byte(secret))
		fmt.Fprintf(mac, "%d.%s", ts, stripeBody)
		return hex.EncodeToString(mac.Sum(nil))
	}

	// A rotating secret produces one v1 per active secret; the valid one
	// may appear in any position.
	header := http.Header{}
	header.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%s,v1=%s", ts, sign("whsec_old"), sign("whsec_test")))
	require.NoError(t, a.VerifySignature(header, []byte(stripeBody), "whsec_test"))

	header.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%s,v1=%s", ts, sign("whsec_old"), sign("whsec_older")))
	err := a.VerifySignature(header, []byte(stripeBody), "whsec_test")
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestStripeVerifySignatureIncompleteHeader(t *testing.T) {
	a := NewStripe()
	header := http.Header{}
	header.Set("Stripe-Signature", "t=12345")

	err := a.VerifySignature(header, []byte(stripeBody), "whsec_test")
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestStripeParseAndExtract(t *testing.T) {
	a := NewStripe()

	p, err := a.ParseBody([]byte(stripeBody))
	require.NoError(t, err)
	require.NoError(t, a.FilterEvent(p))

	id, ok := a.AttributionID(p)
	require.True(t, ok)
	assert.Equal(t, "clk_meta", id)

	lead := a.Lead(p)
	assert.Equal(t, "cs_test_123", lead.ExternalID)
	assert.Equal(t, "alan@example.com", lead.Email)
	assert.Equal(t, int64(4900), lead.Amount)
	assert.Equal(t, "usd", lead.Currency)
}

func TestStripeAttributionFallsBackToClientReference(t *testing.T) {
	a := NewStripe()
	body := `{
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_1", "client_reference_id": "clk_ref"}}
	}`

	p, err := a.ParseBody([]byte(body))
	require.NoError(t, err)

	id, ok := a.AttributionID(p)
	require.True(t, ok)
	assert.Equal(t, "clk_ref", id)
}

func TestStripeFilterRejectsOtherEvents(t *testing.T) {
	a := NewStripe()
	p, err := a.ParseBody([]byte(`{"type": "invoice.paid"}`))
	require.NoError(t, err)

	err = a.FilterEvent(p)
	require.ErrorIs(t, err, ErrUnsupportedEvent)
}

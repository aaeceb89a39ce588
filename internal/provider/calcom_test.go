package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const calcomBody = `{
	"triggerEvent": "BOOKING_CREATED",
	"payload": {
		"uid": "bk_abc123",
		"title": "Intro call",
		"attendees": [{"email": "ada@example.com", "name": "Ada Lovelace"}],
		"responses": {"click_id": {"value": "clk_from_response"}},
		"metadata": {"attribution_id": "clk_from_meta"}
	}
}`

func calcomSign(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCalcomVerifySignature(t *testing.T) {
	a := NewCalcom()
	header := http.Header{}
	header.Set("X-Cal-Signature-256", calcomSign(calcomBody, "secret"))

	require.NoError(t, a.VerifySignature(header, []byte(calcomBody), "secret"))
}

func TestCalcomVerifySignatureTamperedBody(t *testing.T) {
	a := NewCalcom()
	header := http.Header{}
	header.Set("X-Cal-Signature-256", calcomSign(calcomBody, "secret"))

	tampered := calcomBody + " "
	err := a.VerifySignature(header, []byte(tampered), "secret")
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestCalcomVerifySignatureMissingHeader(t *testing.T) {
	a := NewCalcom()
	err := a.VerifySignature(http.Header{}, []byte(calcomBody), "secret")
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestCalcomParseAndExtract(t *testing.T) {
	a := NewCalcom()

	p, err := a.ParseBody([]byte(calcomBody))
	require.NoError(t, err)
	require.NoError(t, a.FilterEvent(p))

	id, ok := a.AttributionID(p)
	require.True(t, ok)
	assert.Equal(t, "clk_from_meta", id)

	lead := a.Lead(p)
	assert.Equal(t, "ada@example.com", lead.Email)
	assert.Equal(t, "Ada Lovelace", lead.Name)
	assert.Equal(t, "bk_abc123", lead.ExternalID)
	assert.Equal(t, "bk_abc123", lead.BookingRef)
}

func TestCalcomAttributionFromResponses(t *testing.T) {
	a := NewCalcom()
	body := `{
		"triggerEvent": "BOOKING_CREATED",
		"payload": {
			"uid": "bk_1",
			"responses": {"click_id": {"value": "clk_resp"}}
		}
	}`

	p, err := a.ParseBody([]byte(body))
	require.NoError(t, err)

	id, ok := a.AttributionID(p)
	require.True(t, ok)
	assert.Equal(t, "clk_resp", id)
}

func TestCalcomFilterRejectsReschedule(t *testing.T) {
	a := NewCalcom()
	p, err := a.ParseBody([]byte(`{"triggerEvent": "BOOKING_RESCHEDULED", "payload": {"uid": "bk_2"}}`))
	require.NoError(t, err)

	err = a.FilterEvent(p)
	require.ErrorIs(t, err, ErrUnsupportedEvent)
}

func TestCalcomParseMalformed(t *testing.T) {
	a := NewCalcom()

	_, err := a.ParseBody([]byte("{not json"))
	require.ErrorIs(t, err, ErrMalformedPayload)

	_, err = a.ParseBody([]byte(`{"payload": {}}`))
	require.ErrorIs(t, err, ErrMalformedPayload)
}

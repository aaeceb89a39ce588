// Package provider contains the webhook adapters for the third-party
// conversion tools a destination site may run. Each adapter knows how to
// authenticate, parse, and filter one provider's payloads and how to pull an
// attribution identifier and normalized lead fields out of them.
package provider

import (
	"errors"
	"net/http"

	"github.com/leadlink/conversions/internal/domain"
)

// Sentinel errors for the ingestion pipeline. Handlers map these onto HTTP
// status codes; everything else is an internal failure.
var (
	// ErrBadSignature means the webhook signature is missing or invalid.
	ErrBadSignature = errors.New("invalid webhook signature")
	// ErrMalformedPayload means the body could not be parsed.
	ErrMalformedPayload = errors.New("malformed webhook payload")
	// ErrUnsupportedEvent means the event type is recognized but not one
	// this service converts on. It is acknowledged, not retried.
	ErrUnsupportedEvent = errors.New("unsupported event type")
	// ErrUnknownProvider means no adapter is registered for the key.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Payload is an adapter-specific parsed webhook body. Adapters only accept
// payloads they produced themselves.
type Payload interface {
	// EventType returns the provider-native event type string.
	EventType() string
}

// Adapter is the contract every provider integration satisfies. All methods
// must be total over malformed input: failures surface as typed errors.
type Adapter interface {
	// Name returns the provider key used in webhook URLs and cache keys.
	Name() string

	// VerifySignature authenticates the request against the raw, unparsed
	// body. Re-serialized payloads must never be used here: re-encoding can
	// change the signed bytes.
	VerifySignature(header http.Header, body []byte, secret string) error

	// ParseBody parses the raw body into the adapter's payload type.
	ParseBody(body []byte) (Payload, error)

	// FilterEvent returns ErrUnsupportedEvent for event types that should
	// be acknowledged and dropped.
	FilterEvent(p Payload) error

	// AttributionID extracts the attribution identifier, trying an ordered
	// list of candidate locations. ok is false when none carries a value.
	AttributionID(p Payload) (id string, ok bool)

	// Lead extracts the normalized lead fields.
	Lead(p Payload) domain.Lead
}

// attributionKeys are the candidate field names an attribution identifier may
// travel under, in lookup order. Providers rarely let the destination site
// control the exact key, so several spellings are accepted.
var attributionKeys = []string{"attribution_id", "click_id", "ll_click_id", "ref_id"}

// firstAttributionKey returns the first non-empty candidate value from m.
func firstAttributionKey(m map[string]string) (string, bool) {
	for _, key := range attributionKeys {
		if v := m[key]; v != "" {
			return v, true
		}
	}
	return "", false
}

// Registry holds the registered adapters, preserving registration order.
// The visitor-side reconciliation probes pending lists in this order.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its name. Re-registering a name replaces
// the adapter without changing its position.
func (r *Registry) Register(a Adapter) {
	if _, exists := r.adapters[a.Name()]; !exists {
		r.order = append(r.order, a.Name())
	}
	r.adapters[a.Name()] = a
}

// Get returns the adapter for the given provider key.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return a, nil
}

// Names returns the registered provider keys in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// DefaultRegistry returns a registry with all built-in adapters.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewCalcom())
	r.Register(NewTypeform())
	r.Register(NewStripe())
	return r
}

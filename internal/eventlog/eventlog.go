// Package eventlog records operator-visible webhook outcomes: conversions
// that expired unmatched, rejected signatures, malformed payloads, and
// failed lead creations. Writes are buffered and batched into PostgreSQL;
// recording never blocks ingestion.
package eventlog

import (
	"sync"
	"time"
)

// Kind classifies an event log record.
type Kind string

const (
	// KindUnmatchedExpired is a conversion whose reconciliation window
	// elapsed with no visitor-side match.
	KindUnmatchedExpired Kind = "unmatched_expired"
	// KindAuthFailed is a webhook rejected for a bad signature or a forged
	// workspace identifier.
	KindAuthFailed Kind = "auth_failed"
	// KindMalformed is a webhook body that could not be parsed.
	KindMalformed Kind = "malformed"
	// KindLeadCreateFailed is an attributed conversion the lead service
	// rejected; the attempt is not retried.
	KindLeadCreateFailed Kind = "lead_create_failed"
)

// Record is one operator-visible webhook event.
type Record struct {
	WorkspaceID string
	Provider    string
	Kind        Kind
	Reason      string
	Payload     string
	CreatedAt   time.Time
}

// Recorder accepts event log records. Implementations must not block.
type Recorder interface {
	Record(rec Record)
}

// NopRecorder drops all records. Used when the event log database is not
// configured; the structured log line remains the only trace.
type NopRecorder struct{}

// NewNopRecorder creates a recorder that drops everything.
func NewNopRecorder() *NopRecorder {
	return &NopRecorder{}
}

// Record does nothing.
func (r *NopRecorder) Record(_ Record) {}

// Buffer is a channel-based record buffer for non-blocking ingestion.
type Buffer struct {
	records chan Record
	closed  chan struct{}
	once    sync.Once
}

// NewBuffer creates a buffer with a buffered channel of the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		records: make(chan Record, capacity),
		closed:  make(chan struct{}),
	}
}

// Send performs a non-blocking send of a record into the buffer.
// It returns false if the buffer channel is full.
func (b *Buffer) Send(rec Record) bool {
	select {
	case b.records <- rec:
		return true
	default:
		return false
	}
}

// Len returns the number of records currently in the buffer channel.
func (b *Buffer) Len() int {
	return len(b.records)
}

// Close signals the buffer to stop accepting records.
// It is safe to call multiple times.
func (b *Buffer) Close() {
	b.once.Do(func() {
		close(b.closed)
	})
}

// Package scheduler provides delayed job delivery for the expiry sweeper.
// Jobs are delivered at-least-once as HTTP callbacks; once scheduled they
// cannot be cancelled, so handlers must be idempotent.
package scheduler

import (
	"context"
	"time"
)

// Scheduler schedules a body to be POSTed back to the sweep endpoint after
// the given delay.
type Scheduler interface {
	Schedule(ctx context.Context, body []byte, delay time.Duration) error
}

// Package store provides the attribution cache: short-lived reconciliation
// state shared by concurrent webhook deliveries and visitor redirects. All
// cross-request coordination happens here; correctness depends only on the
// atomicity of TakePending, TakeWaiting, and RemovePending.
package store

import (
	"context"
	"time"
)

// Key layout. Keys are partitioned by workspace so unrelated workspaces
// never contend.
const (
	pendingKeyPrefix = "pending-webhooks"
	waitingKeyPrefix = "waiting-conversion"
	clickKeyPrefix   = "last-click"

	keySeparator = ":"
)

// AttributionStore is the injected cache capability the reconciliation
// engine depends on. Any backing store whose take and remove operations are
// linearizable across concurrent callers satisfies the contract.
type AttributionStore interface {
	// PushPending appends a serialized pending webhook to the workspace and
	// provider's list and refreshes the list TTL.
	PushPending(ctx context.Context, workspaceID, provider, entry string, ttl time.Duration) error

	// TakePending atomically pops one entry from the list. ok is false when
	// the list is empty or expired.
	TakePending(ctx context.Context, workspaceID, provider string) (entry string, ok bool, err error)

	// RemovePending atomically removes the first list element equal to
	// entry. Returns the number removed (0 or 1); the first remover wins.
	RemovePending(ctx context.Context, workspaceID, provider, entry string) (int64, error)

	// PutWaiting stores the workspace's waiting conversion marker with a
	// TTL, overwriting any unconsumed prior marker.
	PutWaiting(ctx context.Context, workspaceID, entry string, ttl time.Duration) error

	// TakeWaiting atomically gets and deletes the workspace's waiting
	// marker. ok is false when none is active.
	TakeWaiting(ctx context.Context, workspaceID string) (entry string, ok bool, err error)

	// LastClick returns the cached most-recent click pointer for the
	// visitor, written by the click recorder at click time.
	LastClick(ctx context.Context, workspaceID, visitorID string) (entry string, ok bool, err error)

	// SaveLastClick stores the visitor's most-recent click pointer.
	SaveLastClick(ctx context.Context, workspaceID, visitorID, entry string, ttl time.Duration) error

	// Ping verifies connectivity for health checks.
	Ping(ctx context.Context) error
}

func pendingKey(workspaceID, provider string) string {
	return pendingKeyPrefix + keySeparator + workspaceID + keySeparator + provider
}

func waitingKey(workspaceID string) string {
	return waitingKeyPrefix + keySeparator + workspaceID
}

func clickKey(workspaceID, visitorID string) string {
	return clickKeyPrefix + keySeparator + workspaceID + keySeparator + visitorID
}

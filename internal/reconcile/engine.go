// Package reconcile matches conversion webhooks to visitor clicks when the
// two signals arrive through independent, unordered channels. All races are
// decided by the attribution store's atomic take and remove operations:
// whichever side arrives second wins the removal and completes the match, so
// no event pair is ever processed twice.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/leadlink/conversions/internal/clicks"
	"github.com/leadlink/conversions/internal/domain"
	"github.com/leadlink/conversions/internal/eventlog"
	"github.com/leadlink/conversions/internal/leads"
	"github.com/leadlink/conversions/internal/logger"
	"github.com/leadlink/conversions/internal/scheduler"
	"github.com/leadlink/conversions/internal/store"
	"github.com/leadlink/conversions/internal/telemetry"
)

// ErrWorkspaceMismatch means the claimed workspace does not own the link the
// attribution identifier resolved to. The claim comes from the request's own
// addressing and is attacker-controlled, so this is an authentication
// failure, not a data error.
var ErrWorkspaceMismatch = errors.New("resolved click does not belong to claimed workspace")

// Match-side labels for telemetry.
const (
	sideWebhook = "webhook"
	sideVisit   = "visit"
	sideDirect  = "direct"
)

// SweepRequest is the expiry sweeper job body. Entry holds the exact
// serialized pending webhook so removal is an exact-match no-op after a
// successful reconciliation.
type SweepRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Provider    string `json:"provider"`
	Entry       string `json:"entry"`
	Reason      string `json:"reason"`
}

// Config holds the engine's injected dependencies.
type Config struct {
	Store     store.AttributionStore
	Clicks    clicks.Resolver
	Leads     leads.Creator
	Scheduler scheduler.Scheduler
	Events    eventlog.Recorder
	Metrics   *telemetry.Metrics
	Logger    logger.Logger
	// Window is the reconciliation window shared by the pending sweep
	// delay and the waiting marker TTL.
	Window time.Duration
	// Providers lists the registered provider keys in the order the
	// visitor side probes their pending lists.
	Providers []string
}

// Engine is the reconciliation state machine. It holds no mutable state of
// its own; all coordination lives in the attribution store.
type Engine struct {
	store     store.AttributionStore
	clicks    clicks.Resolver
	leads     leads.Creator
	scheduler scheduler.Scheduler
	events    eventlog.Recorder
	metrics   *telemetry.Metrics
	log       logger.Logger
	window    time.Duration
	providers []string
}

// New creates a reconciliation engine.
func New(cfg Config) *Engine {
	return &Engine{
		store:     cfg.Store,
		clicks:    cfg.Clicks,
		leads:     cfg.Leads,
		scheduler: cfg.Scheduler,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		window:    cfg.Window,
		providers: cfg.Providers,
	}
}

// DirectMatch attributes a webhook that carried its own attribution
// identifier. The resolved click's workspace must match the claimed one;
// anything else is treated as a forged claim.
func (e *Engine) DirectMatch(ctx context.Context, claimedWorkspaceID, clickID, providerName string, lead domain.Lead) error {
	click, err := e.clicks.ResolveClick(ctx, clickID)
	if err != nil {
		return fmt.Errorf("resolve click: %w", err)
	}

	if click.WorkspaceID != claimedWorkspaceID {
		e.events.Record(eventlog.Record{
			WorkspaceID: claimedWorkspaceID,
			Provider:    providerName,
			Kind:        eventlog.KindAuthFailed,
			Reason:      "claimed workspace does not own resolved click",
		})
		return ErrWorkspaceMismatch
	}

	e.createLead(ctx, click.ID, click.LinkID, claimedWorkspaceID, providerName, lead)
	e.metrics.Matched.WithLabelValues(sideDirect).Inc()
	return nil
}

// AttributeWebhook handles a conversion webhook that arrived without an
// attribution identifier. A waiting visitor marker completes the match;
// otherwise the webhook is cached and a sweep is scheduled for the end of
// the reconciliation window.
func (e *Engine) AttributeWebhook(ctx context.Context, workspaceID, providerName string, lead domain.Lead, reason string) (domain.Outcome, error) {
	entry, found, err := e.store.TakeWaiting(ctx, workspaceID)
	if err != nil {
		return "", fmt.Errorf("take waiting marker: %w", err)
	}

	if found {
		marker, decodeErr := domain.DecodeWaitingMarker(entry)
		if decodeErr == nil {
			e.createLead(ctx, marker.ClickID, marker.LinkID, workspaceID, providerName, lead)
			e.metrics.Matched.WithLabelValues(sideWebhook).Inc()
			e.metrics.ReconcileDelay.Observe(time.Since(marker.CreatedAt).Seconds())
			return domain.OutcomeMatched, nil
		}
		// A corrupt marker is unusable; fall through and cache the webhook.
		e.log.Error("Discarding undecodable waiting marker",
			logger.Error(decodeErr),
			logger.String("workspace_id", workspaceID),
		)
	}

	return e.storePending(ctx, workspaceID, providerName, lead, reason)
}

// storePending caches the webhook and schedules its expiry sweep.
func (e *Engine) storePending(ctx context.Context, workspaceID, providerName string, lead domain.Lead, reason string) (domain.Outcome, error) {
	pending := domain.NewPendingWebhook(workspaceID, providerName, lead, reason)
	entry, err := pending.Encode()
	if err != nil {
		return "", err
	}

	if err := e.store.PushPending(ctx, workspaceID, providerName, entry, e.window); err != nil {
		return "", fmt.Errorf("push pending webhook: %w", err)
	}

	job, err := json.Marshal(SweepRequest{
		WorkspaceID: workspaceID,
		Provider:    providerName,
		Entry:       entry,
		Reason:      reason,
	})
	if err != nil {
		return "", fmt.Errorf("marshal sweep job: %w", err)
	}
	if err := e.scheduler.Schedule(ctx, job, e.window); err != nil {
		// The pending list's cache TTL bounds the entry's lifetime even
		// without a sweep; losing the sweep only loses the operator record.
		e.log.Error("Failed to schedule expiry sweep",
			logger.Error(err),
			logger.String("workspace_id", workspaceID),
			logger.String("provider", providerName),
		)
	}

	e.metrics.PendingStored.Inc()
	return domain.OutcomeStoredPending, nil
}

// AttributeVisit handles the visitor-side thank-you signal. It runs after
// the redirect decision; the visitor is never waiting on it.
func (e *Engine) AttributeVisit(ctx context.Context, workspaceID, visitorID string) (domain.Outcome, error) {
	entry, found, err := e.store.LastClick(ctx, workspaceID, visitorID)
	if err != nil {
		return "", fmt.Errorf("get last click: %w", err)
	}
	if !found {
		return domain.OutcomeNoRecentClick, nil
	}

	var click domain.ClickRecord
	if err := json.Unmarshal([]byte(entry), &click); err != nil {
		return "", fmt.Errorf("decode last click: %w", err)
	}

	// The thank-you signal carries no provider, so probe each registered
	// provider's pending list in order; the atomic pop decides any race.
	for _, providerName := range e.providers {
		pendingEntry, ok, takeErr := e.store.TakePending(ctx, workspaceID, providerName)
		if takeErr != nil {
			return "", fmt.Errorf("take pending webhook: %w", takeErr)
		}
		if !ok {
			continue
		}

		pending, decodeErr := domain.DecodePendingWebhook(pendingEntry)
		if decodeErr != nil {
			e.log.Error("Discarding undecodable pending webhook",
				logger.Error(decodeErr),
				logger.String("workspace_id", workspaceID),
				logger.String("provider", providerName),
			)
			continue
		}

		e.createLead(ctx, click.ID, click.LinkID, workspaceID, providerName, pending.Lead)
		e.metrics.Matched.WithLabelValues(sideVisit).Inc()
		e.metrics.ReconcileDelay.Observe(time.Since(pending.CreatedAt).Seconds())
		return domain.OutcomeMatched, nil
	}

	marker := domain.WaitingConversionMarker{
		WorkspaceID: workspaceID,
		ClickID:     click.ID,
		LinkID:      click.LinkID,
		VisitorID:   visitorID,
		CreatedAt:   time.Now().UTC(),
	}
	markerEntry, err := marker.Encode()
	if err != nil {
		return "", err
	}

	// Last write wins: a visitor clicking twice inside the window keeps
	// only the newest marker.
	if err := e.store.PutWaiting(ctx, workspaceID, markerEntry, e.window); err != nil {
		return "", fmt.Errorf("put waiting marker: %w", err)
	}

	e.metrics.WaitingStored.Inc()
	return domain.OutcomeStoredWaiting, nil
}

// Sweep finalizes a pending webhook whose reconciliation window elapsed.
// Removal deciding the race makes the sweep idempotent: redelivered jobs and
// already-consumed entries both observe zero removals and do nothing.
func (e *Engine) Sweep(ctx context.Context, req SweepRequest) (int64, error) {
	removed, err := e.store.RemovePending(ctx, req.WorkspaceID, req.Provider, req.Entry)
	if err != nil {
		return 0, fmt.Errorf("remove pending webhook: %w", err)
	}
	if removed == 0 {
		return 0, nil
	}

	reason := req.Reason
	if reason == "" {
		reason = "reconciliation window elapsed with no visitor match"
	}
	e.events.Record(eventlog.Record{
		WorkspaceID: req.WorkspaceID,
		Provider:    req.Provider,
		Kind:        eventlog.KindUnmatchedExpired,
		Reason:      reason,
		Payload:     req.Entry,
	})
	e.metrics.UnmatchedExpired.Inc()

	e.log.Warn("Conversion expired unmatched",
		logger.String("workspace_id", req.WorkspaceID),
		logger.String("provider", req.Provider),
	)
	return removed, nil
}

// createLead hands the attributed conversion to the lead service. One
// attempt only: the third-party webhook response must not depend on this
// call, and the collaborator deduplicates retries delivered by the third
// party itself.
func (e *Engine) createLead(ctx context.Context, clickID, linkID, workspaceID, providerName string, lead domain.Lead) {
	req := leads.CreateRequest{
		ClickID:     clickID,
		LinkID:      linkID,
		WorkspaceID: workspaceID,
		Provider:    providerName,
		Lead:        lead,
	}

	if err := e.leads.Create(ctx, req); err != nil {
		e.metrics.LeadCreateFailures.Inc()
		e.events.Record(eventlog.Record{
			WorkspaceID: workspaceID,
			Provider:    providerName,
			Kind:        eventlog.KindLeadCreateFailed,
			Reason:      err.Error(),
		})
		e.log.Error("Lead creation failed",
			logger.Error(err),
			logger.String("workspace_id", workspaceID),
			logger.String("provider", providerName),
			logger.String("click_id", clickID),
		)
		return
	}

	e.log.Info("Conversion attributed",
		logger.String("workspace_id", workspaceID),
		logger.String("provider", providerName),
		logger.String("click_id", clickID),
	)
}

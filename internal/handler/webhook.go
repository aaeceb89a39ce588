// Package handler contains the gin handlers for the public webhook ingest,
// the visitor thank-you redirect, and the internal expiry sweep callback.
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadlink/conversions/internal/clicks"
	"github.com/leadlink/conversions/internal/eventlog"
	"github.com/leadlink/conversions/internal/logger"
	"github.com/leadlink/conversions/internal/provider"
	"github.com/leadlink/conversions/internal/reconcile"
	"github.com/leadlink/conversions/internal/telemetry"
)

// maxWebhookBody caps the accepted webhook body size.
const maxWebhookBody = 1 << 20

// Outcome labels for the webhooks_received counter.
const (
	outcomeMatched       = "matched"
	outcomeStoredPending = "stored_pending"
	outcomeIgnored       = "ignored"
	outcomeAuthFailed    = "auth_failed"
	outcomeMalformed     = "malformed"
	outcomeError         = "error"
)

// WebhookHandler ingests third-party conversion webhooks.
type WebhookHandler struct {
	registry *provider.Registry
	engine   *reconcile.Engine
	secrets  map[string]string
	events   eventlog.Recorder
	metrics  *telemetry.Metrics
	logger   logger.Logger
}

// NewWebhookHandler creates a WebhookHandler with the given dependencies.
func NewWebhookHandler(
	registry *provider.Registry,
	engine *reconcile.Engine,
	secrets map[string]string,
	events eventlog.Recorder,
	metrics *telemetry.Metrics,
	log logger.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		registry: registry,
		engine:   engine,
		secrets:  secrets,
		events:   events,
		metrics:  metrics,
		logger:   log,
	}
}

// HandleWebhook authenticates, parses, and reconciles one webhook delivery.
// Providers retry non-2xx responses, so only signature failures and
// malformed bodies are rejected; unsupported events are acknowledged and
// dropped.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	providerName := c.Param("provider")
	workspaceID := c.Query("workspace_id")

	adapter, err := h.registry.Get(providerName)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}
	if workspaceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing workspace_id"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.metrics.WebhooksReceived.WithLabelValues(providerName, outcomeError).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if err := adapter.VerifySignature(c.Request.Header, body, h.secret(providerName, workspaceID)); err != nil {
		h.events.Record(eventlog.Record{
			WorkspaceID: workspaceID,
			Provider:    providerName,
			Kind:        eventlog.KindAuthFailed,
			Reason:      err.Error(),
		})
		h.metrics.WebhooksReceived.WithLabelValues(providerName, outcomeAuthFailed).Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	payload, err := adapter.ParseBody(body)
	if err != nil {
		h.events.Record(eventlog.Record{
			WorkspaceID: workspaceID,
			Provider:    providerName,
			Kind:        eventlog.KindMalformed,
			Reason:      err.Error(),
		})
		h.metrics.WebhooksReceived.WithLabelValues(providerName, outcomeMalformed).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	if err := adapter.FilterEvent(payload); err != nil {
		h.metrics.WebhooksReceived.WithLabelValues(providerName, outcomeIgnored).Inc()
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "event": payload.EventType()})
		return
	}

	lead := adapter.Lead(payload)
	ctx := c.Request.Context()

	if clickID, ok := adapter.AttributionID(payload); ok {
		err := h.engine.DirectMatch(ctx, workspaceID, clickID, providerName, lead)
		switch {
		case err == nil:
			h.metrics.WebhooksReceived.WithLabelValues(providerName, outcomeMatched).Inc()
			c.JSON(http.StatusOK, gin.H{"status": "matched"})
			return
		case errors.Is(err, reconcile.ErrWorkspaceMismatch):
			// The forged-workspace detail stays in the event log; the caller
			// gets a generic acknowledgement so the third party does not
			// retry a delivery retries cannot fix.
			h.metrics.WebhooksReceived.WithLabelValues(providerName, outcomeAuthFailed).Inc()
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		case errors.Is(err, clicks.ErrNotFound):
			// A stale or mistyped identifier degrades to the no-attribution
			// path rather than rejecting the conversion outright.
			h.logger.Warn("Attribution id did not resolve, falling back to cache",
				logger.String("provider", providerName),
				logger.String("workspace_id", workspaceID),
			)
		default:
			h.metrics.WebhooksReceived.WithLabelValues(providerName, outcomeError).Inc()
			h.logger.Error("Direct match failed", logger.Error(err),
				logger.String("provider", providerName),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "attribution failed"})
			return
		}
	}

	outcome, err := h.engine.AttributeWebhook(ctx, workspaceID, providerName, lead, reasonFor(payload))
	if err != nil {
		h.metrics.WebhooksReceived.WithLabelValues(providerName, outcomeError).Inc()
		h.logger.Error("Webhook reconciliation failed", logger.Error(err),
			logger.String("provider", providerName),
			logger.String("workspace_id", workspaceID),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "attribution failed"})
		return
	}

	h.metrics.WebhooksReceived.WithLabelValues(providerName, string(outcome)).Inc()
	c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
}

// secret picks the provider's shared webhook secret, falling back to the
// workspace identifier for providers that cannot carry one.
func (h *WebhookHandler) secret(providerName, workspaceID string) string {
	if s := h.secrets[providerName]; s != "" {
		return s
	}
	return workspaceID
}

func reasonFor(p provider.Payload) string {
	return "no attribution id in " + p.EventType() + " payload"
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/leadlink/conversions/internal/clicks"
	"github.com/leadlink/conversions/internal/logger"
	"github.com/leadlink/conversions/internal/reconcile"
)

// reconcileTimeout bounds the detached visitor-side reconciliation. The
// request context cannot be used: it is canceled when the redirect response
// is written.
const reconcileTimeout = 15 * time.Second

// TrackHandler serves the thank-you redirect. The redirect is the product
// surface and must complete no matter what the attribution machinery does.
type TrackHandler struct {
	resolver      clicks.Resolver
	engine        *reconcile.Engine
	visitorCookie string
	fallbackURL   string
	logger        logger.Logger
}

// NewTrackHandler creates a TrackHandler with the given dependencies.
func NewTrackHandler(
	resolver clicks.Resolver,
	engine *reconcile.Engine,
	visitorCookie, fallbackURL string,
	log logger.Logger,
) *TrackHandler {
	return &TrackHandler{
		resolver:      resolver,
		engine:        engine,
		visitorCookie: visitorCookie,
		fallbackURL:   fallbackURL,
		logger:        log,
	}
}

// HandleTrack resolves the link, issues the redirect, and kicks off
// reconciliation in the background.
func (h *TrackHandler) HandleTrack(c *gin.Context) {
	linkID := c.Query("link_id")
	if linkID == "" {
		c.Redirect(http.StatusFound, h.fallbackURL)
		return
	}

	link, err := h.resolver.ResolveLink(c.Request.Context(), linkID)
	if err != nil {
		h.logger.Warn("Link resolution failed, using fallback destination",
			logger.Error(err),
			logger.String("link_id", linkID),
		)
		c.Redirect(http.StatusFound, h.fallbackURL)
		return
	}

	c.Redirect(http.StatusFound, link.DestinationURL)

	visitorID, err := c.Cookie(h.visitorCookie)
	if err != nil || visitorID == "" {
		// No visitor identity, nothing to reconcile against.
		return
	}

	workspaceID := link.WorkspaceID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()

		outcome, err := h.engine.AttributeVisit(ctx, workspaceID, visitorID)
		if err != nil {
			h.logger.Error("Visit reconciliation failed", logger.Error(err),
				logger.String("workspace_id", workspaceID),
			)
			return
		}
		h.logger.Debug("Visit reconciled",
			logger.String("workspace_id", workspaceID),
			logger.String("outcome", string(outcome)),
		)
	}()
}

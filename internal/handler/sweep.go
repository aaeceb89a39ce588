package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"

	"github.com/leadlink/conversions/internal/logger"
	"github.com/leadlink/conversions/internal/reconcile"
	"github.com/leadlink/conversions/internal/scheduler"
)

// signatureHeader carries the queue's callback token.
const signatureHeader = "Upstash-Signature"

// SweepHandler receives delayed expiry jobs from the scheduler queue.
type SweepHandler struct {
	verifier *scheduler.Verifier
	engine   *reconcile.Engine
	logger   logger.Logger
}

// NewSweepHandler creates a SweepHandler with the given dependencies.
func NewSweepHandler(verifier *scheduler.Verifier, engine *reconcile.Engine, log logger.Logger) *SweepHandler {
	return &SweepHandler{
		verifier: verifier,
		engine:   engine,
		logger:   log,
	}
}

// HandleSweep verifies and executes one expiry sweep job. Processing
// failures still return 200 so the queue does not redeliver a job whose
// entry the store has already bounded with a TTL.
func (h *SweepHandler) HandleSweep(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if err := h.verifier.Verify(c.GetHeader(signatureHeader), body); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid callback signature"})
		return
	}

	var req reconcile.SweepRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed sweep job"})
		return
	}

	removed, err := h.engine.Sweep(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("Sweep failed", logger.Error(err),
			logger.String("workspace_id", req.WorkspaceID),
			logger.String("provider", req.Provider),
		)
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

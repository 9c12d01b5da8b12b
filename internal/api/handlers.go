// Package api exposes the REST and live-stream endpoints for call
// processing.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/callsight/callsight/internal/events"
	"github.com/callsight/callsight/internal/job"
	"github.com/callsight/callsight/internal/logger"
)

// Handlers holds the dependencies the endpoints need.
type Handlers struct {
	store *job.Store
	bus   *events.Bus
	log   logger.Logger
}

// NewHandlers wires the endpoint dependencies.
func NewHandlers(store *job.Store, bus *events.Bus, log logger.Logger) *Handlers {
	return &Handlers{store: store, bus: bus, log: log}
}

type startCallRequest struct {
	CallID      string `json:"callId" binding:"required"`
	WorkspaceID string `json:"workspaceId"`
}

// StartCall creates (or returns) the call's processing job and announces
// the call on the bus.
func (h *Handlers) StartCall(c *gin.Context) {
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "callId is required"})
		return
	}

	j, err := h.store.Create(req.CallID)
	if err != nil {
		h.log.Error("job creation failed",
			logger.String("call_id", req.CallID),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create job"})
		return
	}

	h.bus.Publish(events.New(events.CallStarted, req.CallID, events.CallStartedPayload{
		WorkspaceID: req.WorkspaceID,
	}))
	c.JSON(http.StatusCreated, j)
}

type transcriptRequest struct {
	Text       string  `json:"text" binding:"required"`
	IsFinal    bool    `json:"isFinal"`
	Speaker    string  `json:"speaker"`
	Confidence float64 `json:"confidence"`
}

// IngestTranscript accepts one transcript segment and hands it to the
// pipeline via the bus. Accepted means queued, not processed.
func (h *Handlers) IngestTranscript(c *gin.Context) {
	callID := c.Param("call_id")

	var req transcriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	h.bus.Publish(events.New(events.TranscriptReceived, callID, events.TranscriptPayload{
		Text:       req.Text,
		IsFinal:    req.IsFinal,
		Speaker:    req.Speaker,
		Confidence: req.Confidence,
	}))
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

type endCallRequest struct {
	DurationMs int64 `json:"durationMs"`
}

// EndCall announces the end of a call. The pipeline closes the live
// session and runs the summary stage in response.
func (h *Handlers) EndCall(c *gin.Context) {
	callID := c.Param("call_id")

	// The body is optional; an absent duration stays zero.
	var req endCallRequest
	_ = c.ShouldBindJSON(&req)

	h.bus.Publish(events.New(events.CallEnded, callID, events.CallEndedPayload{
		DurationMs: req.DurationMs,
	}))
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// GetJob returns the job snapshot by job ID.
func (h *Handlers) GetJob(c *gin.Context) {
	j, err := h.store.Get(c.Param("job_id"))
	if err != nil {
		h.renderJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

// GetJobByCall returns the most recent job snapshot for a call.
func (h *Handlers) GetJobByCall(c *gin.Context) {
	j, err := h.store.GetByCall(c.Param("call_id"))
	if err != nil {
		h.renderJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (h *Handlers) renderJobError(c *gin.Context, err error) {
	if errors.Is(err, job.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "job lookup failed"})
}

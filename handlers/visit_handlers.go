package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"visitorintel/api/logger"
	"visitorintel/api/models"
	"visitorintel/api/store"
	"visitorintel/api/tracking"
)

// VisitHandlers serve the endpoints the tracking script posts to.
type VisitHandlers struct {
	Tracker *tracking.Service
}

func NewVisitHandlers(tracker *tracking.Service) *VisitHandlers {
	return &VisitHandlers{Tracker: tracker}
}

type visitResponse struct {
	Status string `json:"status"`
	models.VisitOutcome
}

func (h *VisitHandlers) LogVisit(c *gin.Context) {
	var req models.VisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	out, err := h.Tracker.LogVisit(ctx, req, c.ClientIP())
	if err != nil {
		logger.Errorf("Error logging visit to %s: %v", req.Page, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log visit"})
		return
	}

	c.JSON(http.StatusOK, visitResponse{Status: "success", VisitOutcome: out})
}

func (h *VisitHandlers) LogEvent(c *gin.Context) {
	var req models.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	event, err := h.Tracker.LogEvent(ctx, req, c.ClientIP())
	if err != nil {
		logger.Errorf("Error logging %s event: %v", req.EventType, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "event_id": event.ID})
}

func (h *VisitHandlers) LogExit(c *gin.Context) {
	var req models.ExitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Tracker.LogExit(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, tracking.ErrInvalidTimestamp):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid exit_timestamp", "details": err.Error()})
		return
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "No open visit for this session and page"})
		return
	default:
		logger.Errorf("Error logging exit for session %s: %v", req.SessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log exit"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"visit_id":     res.VisitID,
		"exit_time":    res.ExitTime,
		"time_on_page": res.TimeOnPage,
	})
}

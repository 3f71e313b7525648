package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"visitorintel/api/logger"
	"visitorintel/api/models"
)

const dashboardLimit = 100

type DashboardStore interface {
	ListVisits(ctx context.Context, limit int) ([]models.VisitLog, error)
	ListEvents(ctx context.Context, limit int) ([]models.EventLog, error)
	ListDerived(ctx context.Context, limit int) ([]models.DerivedLog, error)
}

// DashboardHandlers expose the latest raw rows, newest first.
type DashboardHandlers struct {
	Store DashboardStore
}

func NewDashboardHandlers(s DashboardStore) *DashboardHandlers {
	return &DashboardHandlers{Store: s}
}

func listRows[T any](c *gin.Context, what string, list func(context.Context, int) ([]T, error)) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	rows, err := list(ctx, dashboardLimit)
	if err != nil {
		logger.Errorf("Error listing %s: %v", what, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve " + what})
		return
	}
	if rows == nil {
		rows = []T{}
	}
	c.JSON(http.StatusOK, rows)
}

func (h *DashboardHandlers) Visits(c *gin.Context) {
	listRows(c, "visits", h.Store.ListVisits)
}

func (h *DashboardHandlers) Events(c *gin.Context) {
	listRows(c, "events", h.Store.ListEvents)
}

func (h *DashboardHandlers) Derived(c *gin.Context) {
	listRows(c, "derived records", h.Store.ListDerived)
}

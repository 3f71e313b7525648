// api/handlers/stats_handlers.go
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"visitorintel/api/intel"
	"visitorintel/api/logger"
	"visitorintel/api/models"
	"visitorintel/api/store"
	"visitorintel/api/utils"
)

type StatsStore interface {
	GetVisitCountsOverTime(ctx context.Context, interval string, start, end time.Time, trafficType string) ([]store.CountByTime, error)
	GetUniqueVisitorsOverTime(ctx context.Context, interval string, start, end time.Time) ([]store.CountByTime, error)
	GetTopPages(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPageResult, error)
	GetBounceRate(ctx context.Context, start, end time.Time) (store.BounceRate, error)
}

// StatsHandlers answer aggregate queries from the ClickHouse warehouse. Store
// is nil when ClickHouse is not configured.
type StatsHandlers struct {
	Store StatsStore
	now   func() time.Time
}

func NewStatsHandlers(s StatsStore) *StatsHandlers {
	return &StatsHandlers{Store: s, now: time.Now}
}

// parseTimeRange reads start and end (RFC3339), defaulting to the last 7 days.
func (h *StatsHandlers) parseTimeRange(c *gin.Context) (time.Time, time.Time, error) {
	end := h.now().UTC()
	if raw := c.Query("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'end' timestamp format, use RFC3339 (e.g., 2006-01-02T15:04:05Z)")
		}
		end = t
	}

	start := end.Add(-7 * 24 * time.Hour)
	if raw := c.Query("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'start' timestamp format, use RFC3339 (e.g., 2006-01-02T15:04:05Z)")
		}
		start = t
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("'start' must not be after 'end'")
	}
	return start, end, nil
}

// prepare runs the checks shared by every stats endpoint.
func (h *StatsHandlers) prepare(c *gin.Context) (time.Time, time.Time, bool) {
	if h.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Analytics warehouse is not configured"})
		return time.Time{}, time.Time{}, false
	}
	start, end, err := h.parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func validTrafficType(t string) bool {
	switch t {
	case "", intel.TrafficDirect, intel.TrafficPaid, intel.TrafficReferral:
		return true
	default:
		return false
	}
}

func requireInterval(c *gin.Context) (string, bool) {
	interval := c.Query("interval")
	if interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return "", false
	}
	if !utils.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid interval %q: use Minute, Hour, Day, Week, Month, Quarter or Year", interval)})
		return "", false
	}
	return interval, true
}

func (h *StatsHandlers) GetVisitCountsOverTime(c *gin.Context) {
	start, end, ok := h.prepare(c)
	if !ok {
		return
	}
	interval, ok := requireInterval(c)
	if !ok {
		return
	}
	trafficType := c.Query("trafficType")
	if !validTrafficType(trafficType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trafficType must be one of Direct, Paid, Referral"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Store.GetVisitCountsOverTime(ctx, interval, start, end, trafficType)
	if err != nil {
		logger.Errorf("Error getting visit counts over time: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve visit statistics"})
		return
	}
	if results == nil {
		results = []store.CountByTime{}
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetUniqueVisitorsOverTime(c *gin.Context) {
	start, end, ok := h.prepare(c)
	if !ok {
		return
	}
	interval, ok := requireInterval(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Store.GetUniqueVisitorsOverTime(ctx, interval, start, end)
	if err != nil {
		logger.Errorf("Error getting unique visitors over time: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve unique visitor statistics"})
		return
	}
	if results == nil {
		results = []store.CountByTime{}
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetTopPages(c *gin.Context) {
	start, end, ok := h.prepare(c)
	if !ok {
		return
	}

	var limit uint64 = 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Store.GetTopPages(ctx, start, end, limit)
	if err != nil {
		logger.Errorf("Error getting top pages: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top pages"})
		return
	}
	if results == nil {
		results = []models.TopPageResult{}
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetBounceRate(c *gin.Context) {
	start, end, ok := h.prepare(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	rate, err := h.Store.GetBounceRate(ctx, start, end)
	if err != nil {
		logger.Errorf("Error getting bounce rate: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve bounce rate"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"startDate": start.Format(time.RFC3339),
		"endDate":   end.Format(time.RFC3339),
		"sessions":  rate.Sessions,
		"bounced":   rate.Bounced,
		"rate":      rate.Rate,
	})
}

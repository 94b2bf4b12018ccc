package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nff/ingestion/internal/domain"
	"github.com/nff/ingestion/internal/etl"
	"github.com/nff/ingestion/internal/repository"
)

// IndicatorHandler handles indicator metadata and time-series endpoints.
type IndicatorHandler struct {
	indicators *repository.IndicatorRepository
	svc        *etl.Service
}

// NewIndicatorHandler creates a new indicator handler.
// Parameters:
//   - indicators: indicator metadata repository.
//   - svc: pipeline service, used for time-series reads.
// Returns:
//   - *IndicatorHandler: initialized handler.
func NewIndicatorHandler(indicators *repository.IndicatorRepository, svc *etl.Service) *IndicatorHandler {
	return &IndicatorHandler{
		indicators: indicators,
		svc:        svc,
	}
}

// ListIndicators handles GET /api/v1/indicators.
// Optional query parameters: category, importance_min.
func (h *IndicatorHandler) ListIndicators(c *gin.Context) {
	ctx := c.Request.Context()

	category := c.Query("category")
	importanceMin := 0
	if raw := c.Query("importance_min"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "importance_min must be an integer",
			})
			return
		}
		importanceMin = v
	}

	var (
		indicators []domain.Indicator
		err        error
	)
	if category != "" {
		indicators, err = h.indicators.ListByCategory(ctx, category, importanceMin)
	} else {
		indicators, err = h.indicators.ListActive(ctx)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list indicators: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"indicators": indicators,
		"total":      len(indicators),
	})
}

// GetIndicator handles GET /api/v1/indicators/:id.
func (h *IndicatorHandler) GetIndicator(c *gin.Context) {
	id, ok := parseIndicatorID(c)
	if !ok {
		return
	}

	ind, err := h.indicators.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Indicator not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get indicator: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, ind)
}

// GetIndicatorData handles GET /api/v1/indicators/:id/timeseries.
// Optional query parameters: start_date, end_date (ISO-8601 dates), limit.
func (h *IndicatorHandler) GetIndicatorData(c *gin.Context) {
	id, ok := parseIndicatorID(c)
	if !ok {
		return
	}

	start, okStart := parseDateQuery(c, "start_date")
	if !okStart {
		return
	}
	end, okEnd := parseDateQuery(c, "end_date")
	if !okEnd {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = v
	}

	points, err := h.svc.GetIndicatorTimeSeries(c.Request.Context(), id, start, end, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load time series: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"indicator_id": id,
		"points":       points,
		"total":        len(points),
	})
}

// GetStatusSummary handles GET /api/v1/indicators/status.
func (h *IndicatorHandler) GetStatusSummary(c *gin.Context) {
	counts, err := h.indicators.CountByStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to count statuses: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"statuses": counts})
}

// ClearBlocked handles POST /api/v1/indicators/:id/clear-blocked.
// Moves a BLOCKED indicator back to UNKNOWN so it becomes eligible for
// automatic fetch again.
func (h *IndicatorHandler) ClearBlocked(c *gin.Context) {
	id, ok := parseIndicatorID(c)
	if !ok {
		return
	}

	if err := h.indicators.ClearBlocked(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to clear blocked status: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"indicator_id": id,
		"status":       "UNKNOWN",
	})
}

func parseIndicatorID(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid indicator id"})
		return 0, false
	}
	return uint(v), true
}

func parseDateQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": name + " must be an ISO-8601 date (YYYY-MM-DD)",
		})
		return nil, false
	}
	return &t, true
}

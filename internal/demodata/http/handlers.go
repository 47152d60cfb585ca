package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nocturne-health/demo-backend/internal/demodata/domain"
	"github.com/nocturne-health/demo-backend/internal/demodata/service"
)

// Handler exposes the demo data operations over HTTP
type Handler struct {
	svc *service.DemoDataService
}

// NewHandler creates a new Handler
func NewHandler(svc *service.DemoDataService) *Handler {
	return &Handler{svc: svc}
}

// Backfill generates and persists the configured history of demo data
func (h *Handler) Backfill(c *gin.Context) {
	res, err := h.svc.Backfill(c.Request.Context())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidConfig) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, domain.ErrBackfillInFlight) {
			c.JSON(http.StatusConflict, gin.H{"error": "backfill already in progress"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to backfill demo data"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"backfill": res})
}

// Tick advances the live simulation one step and returns the new reading
func (h *Handler) Tick(c *gin.Context) {
	entry, err := h.svc.Tick(c.Request.Context(), time.Now())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidConfig) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to tick simulation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// Status returns the latest reading plus insulin and carbs on board
func (h *Handler) Status(c *gin.Context) {
	status, err := h.svc.Status(c.Request.Context(), time.Now())
	if err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no demo data generated yet"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": status})
}

// ListEntries returns stored readings for the requested window
func (h *Handler) ListEntries(c *gin.Context) {
	from, to, ok := timeRange(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "288"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	entries, err := h.svc.Entries(c.Request.Context(), from, to, limit)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTimeRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time range"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list entries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// ListTreatments returns stored treatments for the requested window
func (h *Handler) ListTreatments(c *gin.Context) {
	from, to, ok := timeRange(c)
	if !ok {
		return
	}

	treatments, err := h.svc.Treatments(c.Request.Context(), from, to, c.Query("type"))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTimeRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time range"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list treatments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"treatments": treatments})
}

// PurgeDemoData bulk-deletes generated data, leaving user-entered data alone
func (h *Handler) PurgeDemoData(c *gin.Context) {
	res, err := h.svc.Purge(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to purge demo data"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"purged": res})
}

// timeRange parses the hours window query parameter into [from, to].
func timeRange(c *gin.Context) (time.Time, time.Time, bool) {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if err != nil || hours <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hours"})
		return time.Time{}, time.Time{}, false
	}

	to := time.Now()
	return to.Add(-time.Duration(hours) * time.Hour), to, true
}

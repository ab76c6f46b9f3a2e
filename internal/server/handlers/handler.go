package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockwatch/internal/domain/models"
	"github.com/mamadbah2/stockwatch/internal/service/alerts"
	"github.com/mamadbah2/stockwatch/internal/service/monitor"
	"github.com/mamadbah2/stockwatch/internal/service/render"
	"github.com/mamadbah2/stockwatch/pkg/clients/inventory"
)

// Monitor is the alert workflow surface exposed over HTTP.
type Monitor interface {
	Poll(ctx context.Context) error
	Table() render.TableView
	Queue() alerts.Status
	Acknowledge(ctx context.Context, ids []models.ItemID) (models.Presentation, bool, error)
	Acknowledged() []models.ItemID
}

// AcknowledgeRequest is the body accepted by the acknowledge endpoint. Empty
// ids acknowledge the presentation currently shown.
type AcknowledgeRequest struct {
	IDs []models.ItemID `json:"ids"`
}

// Handler serves the inventory table and the alert modal.
type Handler struct {
	monitor Monitor
	logger  *zap.Logger
}

// NewHandler constructs the HTTP handler adapter.
func NewHandler(monitor Monitor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{monitor: monitor, logger: logger}
}

// Index renders the HTML page.
func (h *Handler) Index(c *gin.Context) {
	view := h.monitor.Table().Filter(c.Query("status")).Search(c.Query("q"))
	status := h.monitor.Queue()

	c.HTML(http.StatusOK, "index", gin.H{
		"View":    view,
		"Alert":   status.Current,
		"Pending": status.Pending,
		"Filter":  c.Query("status"),
		"Query":   c.Query("q"),
	})
}

// AcknowledgeForm handles the modal's form post and redirects back to the page.
func (h *Handler) AcknowledgeForm(c *gin.Context) {
	var ids []models.ItemID
	for _, id := range c.PostFormArray("id") {
		ids = append(ids, models.ItemID(id))
	}

	if _, _, err := h.monitor.Acknowledge(c.Request.Context(), ids); err != nil && !errors.Is(err, alerts.ErrNothingToAcknowledge) {
		h.logger.Error("failed acknowledging alert", zap.Error(err))
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// ListInventory returns the table rows, optionally filtered by status label
// and by free text over name, id and status.
func (h *Handler) ListInventory(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Table().Filter(c.Query("status")).Search(c.Query("q")))
}

// GetItem returns one row of the current table.
func (h *Handler) GetItem(c *gin.Context) {
	row, err := h.monitor.Table().Row(models.ItemID(c.Param("id")))
	if errors.Is(err, render.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, row)
}

// Refresh triggers a poll outside the schedule.
func (h *Handler) Refresh(c *gin.Context) {
	err := h.monitor.Poll(c.Request.Context())
	if errors.Is(err, monitor.ErrPollInFlight) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		var fetchErr *inventory.FetchError
		kind := "unknown"
		if errors.As(err, &fetchErr) {
			kind = string(fetchErr.Kind)
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "inventory fetch failed", "kind": kind})
		return
	}
	c.JSON(http.StatusOK, h.monitor.Table())
}

// CurrentAlert returns the active presentation, or 204 when nothing is shown.
func (h *Handler) CurrentAlert(c *gin.Context) {
	status := h.monitor.Queue()
	if status.Current == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, status.Current)
}

// Acknowledge records ids as viewed and returns the presentation now on
// screen, which stays the same one when only part of it was acknowledged.
func (h *Handler) Acknowledge(c *gin.Context) {
	var req AcknowledgeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Warn("invalid acknowledge payload", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	next, ok, err := h.monitor.Acknowledge(c.Request.Context(), req.IDs)
	if errors.Is(err, alerts.ErrNothingToAcknowledge) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("failed acknowledging alert", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to acknowledge"})
		return
	}
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, next)
}

// QueueStatus returns the presenter state and queue depth.
func (h *Handler) QueueStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Queue())
}

// Acknowledgments lists the acknowledged item ids.
func (h *Handler) Acknowledgments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ids": h.monitor.Acknowledged()})
}

package api

import (
	"net/http"

	"chat-gateway/internal/models"
	"chat-gateway/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *Handler) events(c *gin.Context) {
	from, ok := queryTime(c, "from")
	if !ok {
		return
	}
	to, ok := queryTime(c, "to")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}
	events, err := h.Ledger.Events(c.Request.Context(), models.EventFilter{
		Type:   models.EventType(c.Query("type")),
		Source: c.Query("source"),
		From:   from,
		To:     to,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *Handler) snapshots(c *gin.Context) {
	from, ok := queryTime(c, "from")
	if !ok {
		return
	}
	to, ok := queryTime(c, "to")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}
	snaps, err := h.Ledger.Snapshots(c.Request.Context(), models.SnapshotFilter{From: from, To: to, Limit: limit, Offset: offset})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snaps)
}

func (h *Handler) snapshot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid snapshot id")
		return
	}
	snap, err := h.Ledger.Snapshot(c.Request.Context(), id)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) captureSnapshot(c *gin.Context) {
	if h.Snapshots == nil {
		ErrorResponse(c, http.StatusNotFound, "snapshots are disabled")
		return
	}
	var req types.CaptureSnapshotRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			ErrorResponse(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	snap, err := h.Snapshots.CaptureSnapshot(c.Request.Context(), req.Label)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

package api

import (
	"net/http"

	"chat-gateway/internal/middleware"
	"chat-gateway/internal/service"
	"chat-gateway/internal/types"

	"github.com/gin-gonic/gin"
)

func (h *Handler) queue(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	state, err := h.Music.Queue(c.Request.Context(), roomID, middleware.CurrentUser(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) addToQueue(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req types.AddMusicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "sourceType and sourceUrl are required")
		return
	}
	item, err := h.Music.AddToQueue(c.Request.Context(), roomID, middleware.CurrentUser(c), service.QueueInput{
		SourceType: req.SourceType,
		SourceURL:  req.SourceURL,
		Title:      req.Title,
		Artist:     req.Artist,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// setPlaying with a null musicId stops playback.
func (h *Handler) setPlaying(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req types.SetPlayingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	state, err := h.Music.SetPlaying(c.Request.Context(), roomID, middleware.CurrentUser(c), req.MusicID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) removeFromQueue(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	item, err := h.Music.RemoveFromQueue(c.Request.Context(), id, middleware.CurrentUser(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

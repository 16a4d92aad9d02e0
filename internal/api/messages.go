package api

import (
	"net/http"

	"chat-gateway/internal/middleware"
	"chat-gateway/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func (h *Handler) worldMessages(c *gin.Context) {
	limit, before, ok := pageParams(c)
	if !ok {
		return
	}
	msgs, err := h.Messages.WorldMessages(c.Request.Context(), limit, before)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) sendWorldMessage(c *gin.Context) {
	var req types.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := h.Messages.SendWorldMessage(c.Request.Context(), middleware.CurrentUser(c), req.Content, req.Media())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) roomMessages(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, before, ok := pageParams(c)
	if !ok {
		return
	}
	msgs, err := h.Messages.RoomMessages(c.Request.Context(), roomID, middleware.CurrentUser(c), limit, before)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) sendRoomMessage(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req types.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := h.Messages.SendMessage(c.Request.Context(), roomID, middleware.CurrentUser(c), req.Content, req.Media())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) sendDirectMessage(c *gin.Context) {
	var req types.SendDirectMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "toUsername is required")
		return
	}
	msg, err := h.Messages.SendDirectMessage(c.Request.Context(), middleware.CurrentUser(c), req.ToUsername, req.Content, req.Media())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) blurMedia(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	actor := middleware.CurrentUser(c)
	msg, err := h.Messages.BlurMedia(c.Request.Context(), id, actor)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{"message_id": id, "actor": actor.Username}).Info("[MODERATION] media blurred")
	c.JSON(http.StatusOK, msg)
}

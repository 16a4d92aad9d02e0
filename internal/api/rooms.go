package api

import (
	"net/http"

	"chat-gateway/internal/middleware"
	"chat-gateway/internal/models"
	"chat-gateway/internal/types"

	"github.com/gin-gonic/gin"
)

func (h *Handler) directRooms(c *gin.Context) {
	rooms, err := h.Directory.DirectRooms(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *Handler) customRooms(c *gin.Context) {
	rooms, err := h.Directory.CustomRooms(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *Handler) createRoom(c *gin.Context) {
	var req types.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "name and slug are required")
		return
	}
	room, err := h.Rooms.CreateCustomRoom(c.Request.Context(), middleware.CurrentUser(c), req.Name, req.Description, req.Slug)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *Handler) joinRoom(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	room, err := h.Rooms.JoinCustomRoom(c.Request.Context(), roomID, middleware.CurrentUser(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) leaveRoom(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Rooms.LeaveCustomRoom(c.Request.Context(), roomID, middleware.CurrentUser(c)); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) roomSettings(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	room, err := h.Rooms.RoomSettings(c.Request.Context(), roomID, middleware.CurrentUser(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) updateRoomSettings(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var settings models.RoomSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	room, err := h.Rooms.UpdateRoomSettings(c.Request.Context(), roomID, middleware.CurrentUser(c), settings)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) promoteModerator(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req types.ModeratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "username is required")
		return
	}
	u, err := h.Rooms.PromoteModerator(c.Request.Context(), roomID, middleware.CurrentUser(c), req.Username)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.NewUserView(u))
}

func (h *Handler) removeModerator(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	u, err := h.Rooms.RemoveModerator(c.Request.Context(), roomID, middleware.CurrentUser(c), c.Param("username"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.NewUserView(u))
}

func (h *Handler) announcements(c *gin.Context) {
	if h.Announcements == nil {
		ErrorResponse(c, http.StatusNotFound, "announcements are disabled")
		return
	}
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	list, err := h.Announcements.List(c.Request.Context(), roomID, middleware.CurrentUser(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) createAnnouncement(c *gin.Context) {
	if h.Announcements == nil {
		ErrorResponse(c, http.StatusNotFound, "announcements are disabled")
		return
	}
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req types.CreateAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "content is required")
		return
	}
	a, err := h.Announcements.Create(c.Request.Context(), roomID, middleware.CurrentUser(c), req.Content, req.IntervalSeconds)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

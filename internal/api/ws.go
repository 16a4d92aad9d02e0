package api

import (
	"net/http"
	"strconv"
	"strings"

	"chat-gateway/internal/chat"
	"chat-gateway/internal/middleware"
	"chat-gateway/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Callers are identified by header, not cookie, so cross-origin
	// upgrades carry no ambient credentials.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// channelRoom returns the room id behind a push channel name, or 0 for
// the world channel.
func channelRoom(channel string) (int64, bool) {
	if channel == service.WorldChannel {
		return 0, true
	}
	raw, ok := strings.CutPrefix(channel, "room:")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// serveWS subscribes the caller to one channel: "world" or "room:<id>".
func (h *Handler) serveWS(c *gin.Context) {
	if h.Hub == nil {
		ErrorResponse(c, http.StatusServiceUnavailable, "push channel unavailable")
		return
	}
	channel := c.DefaultQuery("channel", service.WorldChannel)
	roomID, ok := channelRoom(channel)
	if !ok {
		ErrorResponse(c, http.StatusBadRequest, "invalid channel")
		return
	}
	user := middleware.CurrentUser(c)
	if roomID != 0 {
		room, err := h.Rooms.GetRoom(c.Request.Context(), roomID)
		if err != nil {
			HandleServiceError(c, err)
			return
		}
		if err := h.Rooms.RequireAccess(c.Request.Context(), room, user.ID); err != nil {
			HandleServiceError(c, err)
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("[WS] upgrade failed")
		return
	}
	logrus.WithFields(logrus.Fields{"channel": channel, "user": user.Username}).Info("[WS] subscribed")
	go chat.NewClient(h.Hub, conn, channel).Serve()
}

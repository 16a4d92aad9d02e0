package api

import (
	"net/http"
	"strconv"
	"time"

	"chat-gateway/internal/chat"
	"chat-gateway/internal/middleware"
	"chat-gateway/internal/service"
	"chat-gateway/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Deps is everything the HTTP surface calls into.
type Deps struct {
	Identity      *service.IdentityService
	Rooms         *service.RoomService
	Messages      *service.MessageService
	Music         *service.MusicService
	Directory     *service.Directory
	Ledger        *service.LedgerService
	Snapshots     *service.SnapshotService
	Announcements *service.AnnouncementService
	Hub           *chat.Hub
	Limiter       *middleware.RateLimiter
	PollInterval  time.Duration
}

type Handler struct {
	Deps
}

func NewRouter(d Deps) *gin.Engine {
	if d.Identity == nil || d.Rooms == nil || d.Messages == nil || d.Music == nil {
		panic("core services cannot be nil for router")
	}
	if d.Directory == nil {
		d.Directory = service.NewDirectory(d.Rooms, d.Messages, d.Music, d.Identity)
	}
	h := &Handler{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/api/poll-interval", h.pollInterval)

	authed := r.Group("/", middleware.Identify(d.Identity))
	authed.GET("/ws", h.serveWS)

	read := authed.Group("/api")
	write := authed.Group("/api")
	if d.Limiter != nil {
		write.Use(middleware.RateLimit(d.Limiter))
	}

	read.GET("/me", h.me)
	read.GET("/world/messages", h.worldMessages)
	write.POST("/world/messages", h.sendWorldMessage)
	write.POST("/direct/messages", h.sendDirectMessage)
	write.POST("/messages/:id/blur", h.blurMedia)

	read.GET("/rooms/direct", h.directRooms)
	read.GET("/rooms/custom", h.customRooms)
	write.POST("/rooms", h.createRoom)
	read.GET("/rooms/:id/messages", h.roomMessages)
	write.POST("/rooms/:id/messages", h.sendRoomMessage)
	read.GET("/rooms/:id/settings", h.roomSettings)
	write.PATCH("/rooms/:id/settings", h.updateRoomSettings)
	write.POST("/rooms/:id/join", h.joinRoom)
	write.POST("/rooms/:id/leave", h.leaveRoom)
	write.POST("/rooms/:id/moderators", h.promoteModerator)
	write.DELETE("/rooms/:id/moderators/:username", h.removeModerator)

	read.GET("/rooms/:id/queue", h.queue)
	write.POST("/rooms/:id/queue", h.addToQueue)
	write.PUT("/rooms/:id/queue/playing", h.setPlaying)
	write.DELETE("/queue/:id", h.removeFromQueue)

	read.GET("/rooms/:id/announcements", h.announcements)
	write.POST("/rooms/:id/announcements", h.createAnnouncement)

	read.GET("/events", h.events)
	read.GET("/snapshots", h.snapshots)
	read.GET("/snapshots/:id", h.snapshot)
	write.POST("/snapshots", h.captureSnapshot)

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("[HTTP] request")
	}
}

func (h *Handler) pollInterval(c *gin.Context) {
	interval := h.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	c.JSON(http.StatusOK, types.PollInterval{IntervalMillis: interval.Milliseconds()})
}

func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, types.NewUserView(middleware.CurrentUser(c)))
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		ErrorResponse(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		ErrorResponse(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

func queryTime(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid "+name+": expected RFC3339")
		return time.Time{}, false
	}
	return t, true
}

// pageParams reads limit and before for message pagination.
func pageParams(c *gin.Context) (int, int64, bool) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return 0, 0, false
	}
	var before int64
	if raw := c.Query("before"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			ErrorResponse(c, http.StatusBadRequest, "invalid before")
			return 0, 0, false
		}
		before = v
	}
	return limit, before, true
}

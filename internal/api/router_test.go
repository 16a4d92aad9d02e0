package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-gateway/internal/chain"
	"chat-gateway/internal/chat"
	"chat-gateway/internal/middleware"
	"chat-gateway/internal/models"
	"chat-gateway/internal/repository/memory"
	"chat-gateway/internal/service"
	"chat-gateway/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = "0x" + strings.Repeat("a", 40)
	bob   = "0x" + strings.Repeat("b", 40)
)

type apiEnv struct {
	router *gin.Engine
	hub    *chat.Hub
}

func newAPIEnv(t *testing.T, limiter *middleware.RateLimiter) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	authority := chain.Static{}
	hub := chat.NewHub("test", 2)
	go hub.Run()
	t.Cleanup(hub.Stop)

	ledger := service.NewLedgerService(store)
	reconciler := service.NewReconciler(store, authority, time.Second, ledger)
	identity := service.NewIdentityService(store, authority, reconciler, time.Second)
	rooms := service.NewRoomService(store, identity, ledger, nil)
	messages := service.NewMessageService(store, rooms, identity, ledger, nil, hub)
	music := service.NewMusicService(store, rooms)

	router := NewRouter(Deps{
		Identity:      identity,
		Rooms:         rooms,
		Messages:      messages,
		Music:         music,
		Ledger:        ledger,
		Snapshots:     service.NewStandardSnapshotService(ledger, hub, rooms, music, messages, identity),
		Announcements: service.NewAnnouncementService(store, rooms, messages),
		Hub:           hub,
		Limiter:       limiter,
		PollInterval:  1500 * time.Millisecond,
	})
	return &apiEnv{router: router, hub: hub}
}

func (e *apiEnv) do(t *testing.T, method, path, address, username string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if address != "" {
		req.Header.Set(middleware.AddressHeader, address)
	}
	if username != "" {
		req.Header.Set(middleware.UsernameHeader, username)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestPollIntervalIsPublic(t *testing.T) {
	e := newAPIEnv(t, nil)
	w := e.do(t, http.MethodGet, "/api/poll-interval", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1500), decode[types.PollInterval](t, w).IntervalMillis)
}

func TestRequestsRequireCaller(t *testing.T) {
	e := newAPIEnv(t, nil)
	w := e.do(t, http.MethodGet, "/api/world/messages", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWorldMessageRoundTrip(t *testing.T) {
	e := newAPIEnv(t, nil)
	w := e.do(t, http.MethodPost, "/api/world/messages", alice, "alice", types.SendMessageRequest{Content: "gm"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, http.MethodGet, "/api/world/messages", bob, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := decode[[]types.EnrichedMessage](t, w)
	require.Len(t, msgs, 1)
	assert.Equal(t, "gm", msgs[0].Content)
	assert.Equal(t, "alice", msgs[0].Sender.Username)
}

func TestEmptyMessageIsBadRequest(t *testing.T) {
	e := newAPIEnv(t, nil)
	w := e.do(t, http.MethodPost, "/api/world/messages", alice, "", types.SendMessageRequest{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func createRoom(t *testing.T, e *apiEnv, address, name, slug string) models.Room {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/rooms", address, "", types.CreateRoomRequest{Name: name, Slug: slug})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Room](t, w)
}

func TestCustomRoomFlow(t *testing.T) {
	e := newAPIEnv(t, nil)
	e.do(t, http.MethodGet, "/api/me", bob, "bob", nil)
	room := createRoom(t, e, alice, "Lounge", "lounge")
	base := fmt.Sprintf("/api/rooms/%d", room.ID)

	w := e.do(t, http.MethodPost, "/api/rooms", bob, "", types.CreateRoomRequest{Name: "Lounge", Slug: "other"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodGet, base+"/messages", bob, "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "non-members cannot read")

	w = e.do(t, http.MethodPost, base+"/join", bob, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodPost, base+"/messages", bob, "", types.SendMessageRequest{Content: "hi"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(t, http.MethodPatch, base+"/settings", bob, "", map[string]any{"rules": "be kind"})
	assert.Equal(t, http.StatusForbidden, w.Code, "only moderators change settings")

	w = e.do(t, http.MethodPost, base+"/moderators", alice, "", types.ModeratorRequest{Username: "bob"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(t, http.MethodPatch, base+"/settings", bob, "", map[string]any{"rules": "be kind"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "be kind", *decode[models.Room](t, w).Rules)

	w = e.do(t, http.MethodDelete, base+"/moderators/alice", bob, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "alice has a placeholder name")

	w = e.do(t, http.MethodGet, "/api/rooms/custom", bob, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	views := decode[[]types.CustomRoomView](t, w)
	require.Len(t, views, 1)
	assert.Len(t, views[0].Members, 2)
	require.NotNil(t, views[0].LastMessage)
	assert.Equal(t, "hi", views[0].LastMessage.Content)
}

func TestRoomNotFound(t *testing.T) {
	e := newAPIEnv(t, nil)
	w := e.do(t, http.MethodGet, "/api/rooms/999/messages", alice, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodGet, "/api/rooms/abc/messages", alice, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDirectMessageByUsername(t *testing.T) {
	e := newAPIEnv(t, nil)
	e.do(t, http.MethodGet, "/api/me", bob, "bob", nil)

	w := e.do(t, http.MethodPost, "/api/direct/messages", alice, "", types.SendDirectMessageRequest{ToUsername: "BOB", Content: "psst"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, http.MethodGet, "/api/rooms/direct", bob, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	views := decode[[]types.DirectRoomView](t, w)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].LastMessage)
	assert.Equal(t, "psst", views[0].LastMessage.Content)

	w = e.do(t, http.MethodPost, "/api/direct/messages", alice, "", types.SendDirectMessageRequest{ToUsername: "nobody", Content: "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueueEndpoints(t *testing.T) {
	e := newAPIEnv(t, nil)
	room := createRoom(t, e, alice, "Radio", "radio")
	base := fmt.Sprintf("/api/rooms/%d/queue", room.ID)

	w := e.do(t, http.MethodPost, base, alice, "", types.AddMusicRequest{SourceType: "vinyl", SourceURL: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, base, alice, "", types.AddMusicRequest{SourceType: "youtube", SourceURL: "https://youtu.be/x"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	item := decode[models.MusicQueueItem](t, w)

	w = e.do(t, http.MethodPut, base+"/playing", alice, "", types.SetPlayingRequest{MusicID: &item.ID})
	require.Equal(t, http.StatusOK, w.Code)
	state := decode[types.QueueState](t, w)
	require.NotNil(t, state.NowPlaying)
	assert.Equal(t, item.ID, state.NowPlaying.ID)

	w = e.do(t, http.MethodPut, base+"/playing", alice, "", types.SetPlayingRequest{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[types.QueueState](t, w).NowPlaying)

	w = e.do(t, http.MethodPost, base, bob, "", types.AddMusicRequest{SourceType: "youtube", SourceURL: "y"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodDelete, fmt.Sprintf("/api/queue/%d", item.ID), alice, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBlurEndpoint(t *testing.T) {
	e := newAPIEnv(t, nil)
	room := createRoom(t, e, alice, "Gallery", "gallery")
	w := e.do(t, http.MethodPost, fmt.Sprintf("/api/rooms/%d/messages", room.ID), alice, "", types.SendMessageRequest{
		MediaInput: types.MediaInput{MediaURL: "https://img/1.png", MediaType: "image"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	msg := decode[types.EnrichedMessage](t, w)

	w = e.do(t, http.MethodPost, fmt.Sprintf("/api/messages/%d/blur", msg.ID), alice, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[types.EnrichedMessage](t, w).IsBlurred)
}

func TestSnapshotsAndEvents(t *testing.T) {
	e := newAPIEnv(t, nil)
	createRoom(t, e, alice, "Hall", "hall")

	w := e.do(t, http.MethodPost, "/api/snapshots", alice, "", types.CaptureSnapshotRequest{})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	snap := decode[models.SystemSnapshot](t, w)

	w = e.do(t, http.MethodGet, "/api/snapshots/"+snap.ID.String(), alice, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/api/snapshots/not-a-uuid", alice, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/events?source=snapshot_service", alice, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := decode[[]models.SystemEvent](t, w)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].RelatedSnapshotID)
	assert.Equal(t, snap.ID, *events[0].RelatedSnapshotID)

	w = e.do(t, http.MethodGet, "/api/events?type=room", alice, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[[]models.SystemEvent](t, w))

	w = e.do(t, http.MethodGet, "/api/events?from=yesterday", alice, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnnouncementEndpoints(t *testing.T) {
	e := newAPIEnv(t, nil)
	room := createRoom(t, e, alice, "News", "news")
	base := fmt.Sprintf("/api/rooms/%d/announcements", room.ID)

	w := e.do(t, http.MethodPost, base, alice, "", types.CreateAnnouncementRequest{Content: "welcome"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	a := decode[models.Announcement](t, w)
	assert.Equal(t, service.DefaultAnnouncementInterval, a.IntervalSeconds)

	w = e.do(t, http.MethodGet, base, alice, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Announcement](t, w), 1)
}

func TestMutationsAreRateLimited(t *testing.T) {
	e := newAPIEnv(t, middleware.NewRateLimiter(0.001, 1))

	w := e.do(t, http.MethodPost, "/api/world/messages", alice, "", types.SendMessageRequest{Content: "one"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = e.do(t, http.MethodPost, "/api/world/messages", alice, "", types.SendMessageRequest{Content: "two"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = e.do(t, http.MethodGet, "/api/world/messages", alice, "", nil)
	assert.Equal(t, http.StatusOK, w.Code, "reads are not limited")
}

func TestWebsocketChannelChecks(t *testing.T) {
	e := newAPIEnv(t, nil)
	room := createRoom(t, e, alice, "Secret", "secret")

	w := e.do(t, http.MethodGet, "/ws?channel=bogus", alice, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, fmt.Sprintf("/ws?channel=room:%d", room.ID), bob, "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestChannelRoom(t *testing.T) {
	id, ok := channelRoom("world")
	assert.True(t, ok)
	assert.Zero(t, id)

	id, ok = channelRoom("room:42")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"room:", "room:-1", "room:x", "lobby"} {
		_, ok := channelRoom(bad)
		assert.False(t, ok, bad)
	}
}

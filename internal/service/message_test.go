package service

import (
	"context"
	"testing"
	"time"

	"chat-gateway/internal/models"
	"chat-gateway/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	e := newTestEnv(t)
	u := e.user(t, addr('a'), "alice")

	_, err := e.messages.SendWorldMessage(context.Background(), u, " \n\t ", models.Media{})
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.True(t, IsKind(err, KindValidation))

	m, err := e.messages.SendWorldMessage(context.Background(), u, "", models.Media{MediaURL: "https://img/x.png", MediaType: "image"})
	require.NoError(t, err)
	require.NotNil(t, m.MediaURL)
	assert.Equal(t, "https://img/x.png", *m.MediaURL)
}

func TestWorldMessagePublishesOnRoomAndWorldChannels(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	u := e.user(t, addr('a'), "alice")

	m, err := e.messages.SendWorldMessage(ctx, u, "hello", models.Media{})
	require.NoError(t, err)

	assert.Equal(t, []string{RoomChannel(m.RoomID), WorldChannel}, e.publisher.channels())
	got := e.publisher.got[0].payload.(*types.EnrichedMessage)
	assert.Equal(t, "alice", got.Sender.Username)
	assert.Equal(t, types.TypeMessage, e.publisher.got[0].kind)
}

func TestRoomMessagePublishesOnRoomChannelOnly(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	u := e.user(t, addr('a'), "alice")
	room := e.customRoom(t, u, "Builders", "builders")

	_, err := e.messages.SendMessage(ctx, room.ID, u, "hi", models.Media{})
	require.NoError(t, err)
	assert.Equal(t, []string{RoomChannel(room.ID)}, e.publisher.channels())
}

func TestSendTouchesRoomActivity(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	u := e.user(t, addr('a'), "alice")

	e.store.Now = func() time.Time { return time.Now().Add(-time.Hour) }
	room := e.customRoom(t, u, "Builders", "builders")
	e.store.Now = time.Now

	_, err := e.messages.SendMessage(ctx, room.ID, u, "hi", models.Media{})
	require.NoError(t, err)

	after, err := e.rooms.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, after.LastActivityAt.After(room.LastActivityAt))
}

func TestRoomMessagesRequireMembership(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.user(t, addr('a'), "alice")
	b := e.user(t, addr('b'), "bob")
	room := e.customRoom(t, a, "Builders", "builders")

	_, err := e.messages.SendMessage(ctx, room.ID, b, "let me in", models.Media{})
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = e.messages.RoomMessages(ctx, room.ID, b, 10, 0)
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = e.messages.RoomMessages(ctx, 9999, a, 10, 0)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestPagination(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	u := e.user(t, addr('a'), "alice")

	var ids []int64
	for _, c := range []string{"m1", "m2", "m3", "m4", "m5"} {
		m, err := e.messages.SendWorldMessage(ctx, u, c, models.Media{})
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	page, err := e.messages.WorldMessages(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m4", page[0].Content)
	assert.Equal(t, "m5", page[1].Content)

	page, err = e.messages.WorldMessages(ctx, 2, page[0].ID)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m2", page[0].Content)
	assert.Equal(t, "m3", page[1].Content)

	page, err = e.messages.WorldMessages(ctx, 10, ids[0])
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestBlurMedia(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.user(t, addr('a'), "alice")
	b := e.user(t, addr('b'), "bob")

	plain, err := e.messages.SendWorldMessage(ctx, a, "text only", models.Media{})
	require.NoError(t, err)
	_, err = e.messages.BlurMedia(ctx, plain.ID, b)
	assert.ErrorIs(t, err, ErrNoMediaPresent)

	pic, err := e.messages.SendWorldMessage(ctx, a, "look", models.Media{MediaURL: "https://img/1.png", MediaType: "image"})
	require.NoError(t, err)
	assert.False(t, pic.IsBlurred)

	blurred, err := e.messages.BlurMedia(ctx, pic.ID, b)
	require.NoError(t, err)
	assert.True(t, blurred.IsBlurred)

	again, err := e.messages.BlurMedia(ctx, pic.ID, a)
	require.NoError(t, err, "second blur does not error")
	assert.True(t, again.IsBlurred)

	msgs, err := e.messages.WorldMessages(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].IsBlurred)

	_, err = e.messages.BlurMedia(ctx, 424242, a)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	var updates int
	for _, p := range e.publisher.got {
		if p.kind == types.TypeMessageUpdate {
			updates++
		}
	}
	assert.Equal(t, 2, updates, "one blur republished on room and world channels")
	assert.Contains(t, e.trigger.seen(), "media_blurred")
}

func TestSendDirectMessage(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.user(t, addr('a'), "alice")
	e.authority.set(addr('c'), "carol")

	m, err := e.messages.SendDirectMessage(ctx, a, "carol", "hey", models.Media{})
	require.NoError(t, err)

	carol, err := e.identity.LookupByUsername(ctx, "carol")
	require.NoError(t, err)
	msgs, err := e.messages.RoomMessages(ctx, m.RoomID, carol, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hey", msgs[0].Content)

	views, err := e.directory.DirectRooms(ctx, carol)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Len(t, views[0].Members, 2)
	require.NotNil(t, views[0].LastMessage)
	assert.Equal(t, "hey", views[0].LastMessage.Content)

	_, err = e.messages.SendDirectMessage(ctx, a, "ghost", "boo", models.Media{})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCustomRoomView(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.user(t, addr('a'), "alice")
	b := e.user(t, addr('b'), "bob")
	room := e.customRoom(t, a, "Builders", "builders")
	_, err := e.rooms.JoinCustomRoom(ctx, room.ID, b)
	require.NoError(t, err)
	_, err = e.messages.SendMessage(ctx, room.ID, b, "sup", models.Media{})
	require.NoError(t, err)
	_, err = e.music.AddToQueue(ctx, room.ID, a, QueueInput{SourceType: "youtube", SourceURL: "https://yt/1"})
	require.NoError(t, err)

	views, err := e.directory.CustomRooms(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	v := views[0]
	assert.Equal(t, "Builders", v.Name)
	require.NotNil(t, v.Creator)
	assert.Equal(t, "alice", v.Creator.Username)
	assert.Len(t, v.Members, 2)
	require.Len(t, v.Moderators, 1)
	assert.Equal(t, "alice", v.Moderators[0].Username)
	require.Len(t, v.ActiveUsers, 1)
	assert.Equal(t, "bob", v.ActiveUsers[0].Username)
	require.NotNil(t, v.LastMessage)
	assert.Equal(t, "sup", v.LastMessage.Content)
	assert.Len(t, v.MusicQueue, 1)
}

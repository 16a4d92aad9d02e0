package service

import (
	"context"
	"math/rand"
	"testing"

	"chat-gateway/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func playingCount(t *testing.T, e *testEnv, roomID int64) int {
	t.Helper()
	items, err := e.store.ListQueue(context.Background(), roomID)
	require.NoError(t, err)
	n := 0
	for _, it := range items {
		if it.IsPlaying {
			n++
		}
	}
	return n
}

func TestQueuePlayThenStop(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	u := e.user(t, addr('a'), "alice")
	room := e.customRoom(t, u, "Builders", "builders")

	x, err := e.music.AddToQueue(ctx, room.ID, u, QueueInput{SourceType: "spotify", SourceURL: "https://sp/x"})
	require.NoError(t, err)
	y, err := e.music.AddToQueue(ctx, room.ID, u, QueueInput{SourceType: "SoundCloud", SourceURL: "https://sc/y"})
	require.NoError(t, err)
	assert.Equal(t, 1, x.Position)
	assert.Equal(t, 2, y.Position)
	assert.Equal(t, models.SourceSoundCloud, y.SourceType)

	st, err := e.music.SetPlaying(ctx, room.ID, u, &y.ID)
	require.NoError(t, err)
	require.NotNil(t, st.NowPlaying)
	assert.Equal(t, y.ID, st.NowPlaying.ID)

	st, err = e.music.SetPlaying(ctx, room.ID, u, nil)
	require.NoError(t, err)
	assert.Nil(t, st.NowPlaying)
	assert.Zero(t, playingCount(t, e, room.ID))
}

func TestQueueRejectsUnknownSourceType(t *testing.T) {
	e := newTestEnv(t)
	u := e.user(t, addr('a'), "alice")
	room := e.customRoom(t, u, "Builders", "builders")

	_, err := e.music.AddToQueue(context.Background(), room.ID, u, QueueInput{SourceType: "vinyl", SourceURL: "x"})
	assert.ErrorIs(t, err, ErrInvalidSourceType)
	_, err = e.music.AddToQueue(context.Background(), room.ID, u, QueueInput{SourceType: "nft", SourceURL: " "})
	assert.ErrorIs(t, err, ErrInvalidSourceURL)
}

func TestQueuePositionsLeaveGaps(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	u := e.user(t, addr('a'), "alice")
	world, err := e.rooms.WorldRoom(ctx)
	require.NoError(t, err)

	var items []*models.MusicQueueItem
	for i := 0; i < 3; i++ {
		it, err := e.music.AddToQueue(ctx, world.ID, u, QueueInput{SourceType: "youtube", SourceURL: "https://yt"})
		require.NoError(t, err)
		items = append(items, it)
	}
	_, err = e.music.RemoveFromQueue(ctx, items[1].ID, u)
	require.NoError(t, err)

	next, err := e.music.AddToQueue(ctx, world.ID, u, QueueInput{SourceType: "youtube", SourceURL: "https://yt"})
	require.NoError(t, err)
	assert.Equal(t, 4, next.Position)

	st, err := e.music.Queue(ctx, world.ID, u)
	require.NoError(t, err)
	var positions []int
	for _, it := range st.Items {
		positions = append(positions, it.Position)
	}
	assert.Equal(t, []int{1, 3, 4}, positions)

	_, err = e.music.RemoveFromQueue(ctx, items[1].ID, u)
	assert.ErrorIs(t, err, ErrQueueItemNotFound)
}

func TestQueueAuthorization(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.user(t, addr('a'), "alice")
	b := e.user(t, addr('b'), "bob")
	room := e.customRoom(t, a, "Builders", "builders")
	_, err := e.rooms.JoinCustomRoom(ctx, room.ID, b)
	require.NoError(t, err)

	_, err = e.music.AddToQueue(ctx, room.ID, b, QueueInput{SourceType: "youtube", SourceURL: "u"})
	assert.ErrorIs(t, err, ErrNotModerator)

	it, err := e.music.AddToQueue(ctx, room.ID, a, QueueInput{SourceType: "youtube", SourceURL: "u"})
	require.NoError(t, err)
	_, err = e.music.SetPlaying(ctx, room.ID, b, &it.ID)
	assert.ErrorIs(t, err, ErrNotModerator)
	_, err = e.music.RemoveFromQueue(ctx, it.ID, b)
	assert.ErrorIs(t, err, ErrNotModerator)

	// Anyone may drive the world room's queue.
	world, err := e.rooms.WorldRoom(ctx)
	require.NoError(t, err)
	w, err := e.music.AddToQueue(ctx, world.ID, b, QueueInput{SourceType: "nft", SourceURL: "nft://1"})
	require.NoError(t, err)
	_, err = e.music.SetPlaying(ctx, world.ID, b, &w.ID)
	require.NoError(t, err)
}

func TestSetPlayingForeignItemKeepsState(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.user(t, addr('a'), "alice")
	r1 := e.customRoom(t, a, "One", "one")
	r2 := e.customRoom(t, a, "Two", "two")

	mine, err := e.music.AddToQueue(ctx, r1.ID, a, QueueInput{SourceType: "youtube", SourceURL: "u"})
	require.NoError(t, err)
	theirs, err := e.music.AddToQueue(ctx, r2.ID, a, QueueInput{SourceType: "youtube", SourceURL: "u"})
	require.NoError(t, err)
	_, err = e.music.SetPlaying(ctx, r1.ID, a, &mine.ID)
	require.NoError(t, err)

	_, err = e.music.SetPlaying(ctx, r1.ID, a, &theirs.ID)
	assert.ErrorIs(t, err, ErrQueueItemNotFound)
	assert.Equal(t, 1, playingCount(t, e, r1.ID))
}

func TestAtMostOnePlayingAfterAnySequence(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	u := e.user(t, addr('a'), "alice")
	world, err := e.rooms.WorldRoom(ctx)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	var ids []int64
	for i := 0; i < 200; i++ {
		if len(ids) == 0 || rng.Intn(3) == 0 {
			it, err := e.music.AddToQueue(ctx, world.ID, u, QueueInput{SourceType: "spotify", SourceURL: "s"})
			require.NoError(t, err)
			ids = append(ids, it.ID)
		} else if rng.Intn(5) == 0 {
			_, err := e.music.SetPlaying(ctx, world.ID, u, nil)
			require.NoError(t, err)
		} else {
			id := ids[rng.Intn(len(ids))]
			_, err := e.music.SetPlaying(ctx, world.ID, u, &id)
			require.NoError(t, err)
		}
		require.LessOrEqual(t, playingCount(t, e, world.ID), 1)
	}
}

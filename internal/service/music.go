package service

import (
	"context"
	"strings"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repository"
	"chat-gateway/internal/types"

	"github.com/sirupsen/logrus"
)

// MusicService coordinates each room's playback queue and its single
// now-playing pointer.
type MusicService struct {
	queue repository.MusicRepository
	rooms *RoomService
}

func NewMusicService(queue repository.MusicRepository, rooms *RoomService) *MusicService {
	if queue == nil {
		panic("MusicRepository cannot be nil for MusicService")
	}
	return &MusicService{queue: queue, rooms: rooms}
}

// authorize: the world room's queue is open to everyone, custom rooms need
// a moderator, direct rooms need a participant.
func (s *MusicService) authorize(ctx context.Context, room *models.Room, actor *models.User) error {
	switch room.Kind {
	case models.RoomWorld:
		return nil
	case models.RoomCustom:
		return s.rooms.requireModerator(ctx, room.ID, actor.ID)
	default:
		return s.rooms.RequireAccess(ctx, room, actor.ID)
	}
}

type QueueInput struct {
	SourceType string
	SourceURL  string
	Title      *string
	Artist     *string
}

func (s *MusicService) AddToQueue(ctx context.Context, roomID int64, actor *models.User, in QueueInput) (*models.MusicQueueItem, error) {
	st, ok := models.ParseSourceType(in.SourceType)
	if !ok {
		return nil, ErrInvalidSourceType
	}
	url := strings.TrimSpace(in.SourceURL)
	if url == "" {
		return nil, ErrInvalidSourceURL
	}
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, room, actor); err != nil {
		return nil, err
	}

	item := &models.MusicQueueItem{
		RoomID:     roomID,
		SourceType: st,
		SourceURL:  url,
		Title:      optionalPtr(in.Title),
		Artist:     optionalPtr(in.Artist),
	}
	if err := s.queue.AddToQueue(ctx, item); err != nil {
		return nil, notFoundOr(ErrRoomNotFound, "add to queue", err)
	}
	logrus.WithFields(logrus.Fields{"component": "music", "room_id": roomID, "position": item.Position}).Info("Track queued")
	return item, nil
}

func optionalPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return optional(*s)
}

// SetPlaying clears every playing flag in the room and then marks itemID,
// if given.
func (s *MusicService) SetPlaying(ctx context.Context, roomID int64, actor *models.User, itemID *int64) (*types.QueueState, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, room, actor); err != nil {
		return nil, err
	}
	if err := s.queue.SetPlaying(ctx, roomID, itemID); err != nil {
		return nil, notFoundOr(ErrQueueItemNotFound, "set playing", err)
	}
	return s.state(ctx, roomID)
}

// RemoveFromQueue leaves gaps; positions are never renumbered.
func (s *MusicService) RemoveFromQueue(ctx context.Context, itemID int64, actor *models.User) (*models.MusicQueueItem, error) {
	item, err := s.queue.GetQueueItem(ctx, itemID)
	if err != nil {
		return nil, notFoundOr(ErrQueueItemNotFound, "get queue item", err)
	}
	room, err := s.rooms.GetRoom(ctx, item.RoomID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, room, actor); err != nil {
		return nil, err
	}
	if err := s.queue.RemoveFromQueue(ctx, itemID); err != nil {
		return nil, notFoundOr(ErrQueueItemNotFound, "remove from queue", err)
	}
	return item, nil
}

func (s *MusicService) Queue(ctx context.Context, roomID int64, reader *models.User) (*types.QueueState, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.rooms.RequireAccess(ctx, room, reader.ID); err != nil {
		return nil, err
	}
	return s.state(ctx, roomID)
}

func (s *MusicService) state(ctx context.Context, roomID int64) (*types.QueueState, error) {
	items, err := s.queue.ListQueue(ctx, roomID)
	if err != nil {
		return nil, storageError("list queue", err)
	}
	if items == nil {
		items = []*models.MusicQueueItem{}
	}
	st := &types.QueueState{RoomID: roomID, Items: items}
	for _, it := range items {
		if it.IsPlaying {
			st.NowPlaying = it
			break
		}
	}
	return st, nil
}

func (s *MusicService) NowPlaying(ctx context.Context) ([]*models.MusicQueueItem, error) {
	items, err := s.queue.ListPlaying(ctx)
	if err != nil {
		return nil, storageError("list playing", err)
	}
	return items, nil
}

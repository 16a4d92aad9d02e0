package service

import (
	"context"
	"strings"
	"time"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repository"

	"github.com/sirupsen/logrus"
)

const DefaultAnnouncementInterval = 3600

// AnnouncementService manages recurring system messages in rooms.
type AnnouncementService struct {
	repo     repository.AnnouncementRepository
	rooms    *RoomService
	messages *MessageService
	now      func() time.Time
}

func NewAnnouncementService(repo repository.AnnouncementRepository, rooms *RoomService, messages *MessageService) *AnnouncementService {
	if repo == nil {
		panic("AnnouncementRepository cannot be nil for AnnouncementService")
	}
	return &AnnouncementService{repo: repo, rooms: rooms, messages: messages, now: time.Now}
}

// Create is moderator-only; the world room takes no announcements.
func (s *AnnouncementService) Create(ctx context.Context, roomID int64, actor *models.User, content string, intervalSeconds int) (*models.Announcement, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if intervalSeconds == 0 {
		intervalSeconds = DefaultAnnouncementInterval
	}
	if intervalSeconds < 0 {
		return nil, ErrInvalidInterval
	}
	if _, err := s.rooms.moderatedRoom(ctx, roomID, actor); err != nil {
		return nil, err
	}

	a := &models.Announcement{RoomID: roomID, Content: content, IntervalSeconds: intervalSeconds}
	if err := s.repo.CreateAnnouncement(ctx, a); err != nil {
		return nil, notFoundOr(ErrRoomNotFound, "create announcement", err)
	}
	return a, nil
}

func (s *AnnouncementService) List(ctx context.Context, roomID int64, reader *models.User) ([]*models.Announcement, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.rooms.RequireAccess(ctx, room, reader.ID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListAnnouncements(ctx, roomID)
	if err != nil {
		return nil, storageError("list announcements", err)
	}
	return list, nil
}

// PostDue posts every due announcement and reports how many went out.
func (s *AnnouncementService) PostDue(ctx context.Context) (int, error) {
	active, err := s.repo.ListActiveAnnouncements(ctx)
	if err != nil {
		return 0, storageError("list active announcements", err)
	}
	now := s.now().UTC()
	posted := 0
	for _, a := range active {
		if !a.Due(now) {
			continue
		}
		logCtx := logrus.WithFields(logrus.Fields{"component": "announcer", "room_id": a.RoomID, "announcement_id": a.ID})
		if _, err := s.messages.PostSystemMessage(ctx, a.RoomID, a.Content); err != nil {
			logCtx.WithError(err).Warn("Failed to post announcement")
			continue
		}
		if err := s.repo.MarkAnnouncementSent(ctx, a.ID, now); err != nil {
			logCtx.WithError(err).Error("Failed to mark announcement sent")
			continue
		}
		posted++
	}
	return posted, nil
}

package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repository"

	"github.com/sirupsen/logrus"
)

const (
	maxRoomNameLength = 64
	minFontSize       = 8
	maxFontSize       = 48
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// RoomService owns rooms and membership.
type RoomService struct {
	rooms    repository.RoomRepository
	identity *IdentityService
	ledger   *LedgerService
	trigger  SnapshotTrigger
	now      func() time.Time
}

func NewRoomService(rooms repository.RoomRepository, identity *IdentityService, ledger *LedgerService, trigger SnapshotTrigger) *RoomService {
	if rooms == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	return &RoomService{
		rooms:    rooms,
		identity: identity,
		ledger:   ledger,
		trigger:  trigger,
		now:      time.Now,
	}
}

// WorldRoom returns the single world room, creating it on first use.
func (s *RoomService) WorldRoom(ctx context.Context) (*models.Room, error) {
	room, err := s.rooms.GetOrCreateRoom(ctx, models.RoomWorld, models.WorldSlug)
	if errors.Is(err, repository.ErrDuplicate) {
		room, err = s.rooms.GetRoomBySlug(ctx, models.WorldSlug)
	}
	if err != nil {
		return nil, storageError("get world room", err)
	}
	return room, nil
}

// DirectRoom returns the room shared by a and b. Both orderings resolve to
// the same room and both users are members.
func (s *RoomService) DirectRoom(ctx context.Context, a, b *models.User) (*models.Room, error) {
	slug := models.DirectSlug(a.Address, b.Address)
	room, err := s.rooms.GetOrCreateRoom(ctx, models.RoomDirect, slug)
	if err != nil {
		return nil, storageError("get direct room", err)
	}
	for _, u := range []*models.User{a, b} {
		if _, err := s.rooms.AddMember(ctx, room.ID, u.ID, false); err != nil {
			return nil, storageError("add direct member", err)
		}
	}
	return room, nil
}

func (s *RoomService) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	room, err := s.rooms.GetRoomByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(ErrRoomNotFound, "get room", err)
	}
	return room, nil
}

// CreateCustomRoom inserts the room with creator as member and moderator.
func (s *RoomService) CreateCustomRoom(ctx context.Context, creator *models.User, name string, description *string, slug string) (*models.Room, error) {
	name = strings.TrimSpace(name)
	slug = strings.TrimSpace(slug)
	if name == "" || utf8.RuneCountInString(name) > maxRoomNameLength {
		return nil, ErrInvalidName
	}
	if !slugPattern.MatchString(slug) || slug == models.WorldSlug {
		return nil, ErrInvalidSlug
	}
	logCtx := logrus.WithFields(logrus.Fields{"component": "rooms", "slug": slug, "user_id": creator.ID})

	if _, err := s.rooms.GetRoomBySlug(ctx, slug); err == nil {
		return nil, ErrSlugTaken
	}
	if _, err := s.rooms.GetRoomByName(ctx, name); err == nil {
		return nil, ErrNameTaken
	}

	var desc *string
	if d := trimmed(description); d != "" {
		desc = &d
	}
	room := &models.Room{
		Kind:        models.RoomCustom,
		Slug:        &slug,
		Name:        &name,
		Description: desc,
		CreatorID:   &creator.ID,
	}
	if err := s.rooms.CreateCustomRoom(ctx, room); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			if _, gerr := s.rooms.GetRoomBySlug(ctx, slug); gerr == nil {
				return nil, ErrSlugTaken
			}
			return nil, ErrNameTaken
		}
		logCtx.WithError(err).Error("Failed to create custom room")
		return nil, storageError("create room", err)
	}

	logCtx.WithField("room_id", room.ID).Info("Custom room created")
	s.ledger.note(ctx, EventInput{
		Type:        models.EventRoom,
		Source:      "rooms",
		Title:       "Room created",
		Description: name,
		Metadata:    map[string]any{"roomId": room.ID, "slug": slug, "creator": creator.Address},
	})
	trigger(ctx, s.trigger, "room_created")
	return room, nil
}

func (s *RoomService) customRoom(ctx context.Context, roomID int64) (*models.Room, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Kind != models.RoomCustom {
		return nil, ErrNotACustomRoom
	}
	return room, nil
}

// JoinCustomRoom is a no-op for an existing member.
func (s *RoomService) JoinCustomRoom(ctx context.Context, roomID int64, user *models.User) (*models.Room, error) {
	room, err := s.customRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	added, err := s.rooms.AddMember(ctx, roomID, user.ID, false)
	if err != nil {
		return nil, notFoundOr(ErrRoomNotFound, "join room", err)
	}
	if added {
		s.ledger.note(ctx, EventInput{
			Type:     models.EventRoom,
			Source:   "rooms",
			Title:    "Member joined",
			Metadata: map[string]any{"roomId": roomID, "address": user.Address},
		})
	}
	return room, nil
}

// LeaveCustomRoom drops the membership row and with it moderator status.
func (s *RoomService) LeaveCustomRoom(ctx context.Context, roomID int64, user *models.User) error {
	if _, err := s.customRoom(ctx, roomID); err != nil {
		return err
	}
	if err := s.rooms.RemoveMember(ctx, roomID, user.ID); err != nil {
		return storageError("leave room", err)
	}
	s.ledger.note(ctx, EventInput{
		Type:     models.EventRoom,
		Source:   "rooms",
		Title:    "Member left",
		Metadata: map[string]any{"roomId": roomID, "address": user.Address},
	})
	return nil
}

func (s *RoomService) membership(ctx context.Context, roomID, userID int64) (*models.Membership, error) {
	m, err := s.rooms.GetMembership(ctx, roomID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("get membership", err)
	}
	return m, nil
}

// CanAccess dispatches on room kind: world membership is implicit, every
// other kind needs a membership row.
func (s *RoomService) CanAccess(ctx context.Context, room *models.Room, userID int64) (bool, error) {
	if room.Kind.ImplicitMembership() {
		return true, nil
	}
	m, err := s.membership(ctx, room.ID, userID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

func (s *RoomService) RequireAccess(ctx context.Context, room *models.Room, userID int64) error {
	ok, err := s.CanAccess(ctx, room, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}

func (s *RoomService) IsModerator(ctx context.Context, roomID, userID int64) (bool, error) {
	m, err := s.membership(ctx, roomID, userID)
	if err != nil {
		return false, err
	}
	return m != nil && m.IsModerator, nil
}

func (s *RoomService) requireModerator(ctx context.Context, roomID, userID int64) error {
	ok, err := s.IsModerator(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotModerator
	}
	return nil
}

// moderatedRoom loads a room that moderation operations may target.
func (s *RoomService) moderatedRoom(ctx context.Context, roomID int64, actor *models.User) (*models.Room, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	switch room.Kind {
	case models.RoomWorld:
		return nil, ErrWorldRoomImmutable
	case models.RoomDirect:
		return nil, ErrNotACustomRoom
	}
	if err := s.requireModerator(ctx, roomID, actor.ID); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *RoomService) PromoteModerator(ctx context.Context, roomID int64, actor *models.User, username string) (*models.User, error) {
	if _, err := s.moderatedRoom(ctx, roomID, actor); err != nil {
		return nil, err
	}
	target, err := s.identity.LookupByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := s.rooms.SetModerator(ctx, roomID, target.ID, true); err != nil {
		return nil, notFoundOr(ErrRoomNotFound, "promote moderator", err)
	}
	s.moderationEvent(ctx, "Moderator promoted", roomID, actor, target)
	return target, nil
}

func (s *RoomService) RemoveModerator(ctx context.Context, roomID int64, actor *models.User, username string) (*models.User, error) {
	room, err := s.moderatedRoom(ctx, roomID, actor)
	if err != nil {
		return nil, err
	}
	target, err := s.identity.LookupByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if room.IsCreator(target.ID) {
		return nil, ErrCreatorModerator
	}
	m, err := s.membership(ctx, roomID, target.ID)
	if err != nil {
		return nil, err
	}
	if m == nil || !m.IsModerator {
		return target, nil
	}
	if err := s.rooms.SetModerator(ctx, roomID, target.ID, false); err != nil {
		return nil, notFoundOr(ErrRoomNotFound, "remove moderator", err)
	}
	s.moderationEvent(ctx, "Moderator removed", roomID, actor, target)
	return target, nil
}

func (s *RoomService) moderationEvent(ctx context.Context, title string, roomID int64, actor, target *models.User) {
	logrus.WithFields(logrus.Fields{
		"component": "rooms",
		"room_id":   roomID,
		"actor":     actor.Address,
		"target":    target.Address,
	}).Info(title)
	s.ledger.note(ctx, EventInput{
		Type:        models.EventModeration,
		Source:      "rooms",
		Title:       title,
		Description: target.Username,
		Metadata:    map[string]any{"roomId": roomID, "actor": actor.Address, "target": target.Address},
	})
	trigger(ctx, s.trigger, "moderation")
}

func validateSettings(settings *models.RoomSettings) error {
	if settings.Empty() {
		return ErrInvalidSettings
	}
	if settings.Name != nil {
		n := strings.TrimSpace(*settings.Name)
		if n == "" || utf8.RuneCountInString(n) > maxRoomNameLength {
			return ErrInvalidName
		}
		settings.Name = &n
	}
	if settings.FontFamily != nil && strings.TrimSpace(*settings.FontFamily) == "" {
		return ErrInvalidSettings
	}
	if settings.FontSize != nil && (*settings.FontSize < minFontSize || *settings.FontSize > maxFontSize) {
		return ErrInvalidSettings
	}
	return nil
}

// UpdateRoomSettings is moderator-only. The world room is always rejected,
// whoever the caller is.
func (s *RoomService) UpdateRoomSettings(ctx context.Context, roomID int64, actor *models.User, settings models.RoomSettings) (*models.Room, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Kind == models.RoomWorld {
		return nil, ErrWorldRoomImmutable
	}
	if err := s.requireModerator(ctx, roomID, actor.ID); err != nil {
		return nil, err
	}
	if err := validateSettings(&settings); err != nil {
		return nil, err
	}

	updated, err := s.rooms.UpdateRoomSettings(ctx, roomID, settings)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return nil, ErrNameTaken
	case err != nil:
		return nil, notFoundOr(ErrRoomNotFound, "update settings", err)
	}
	s.ledger.note(ctx, EventInput{
		Type:     models.EventModeration,
		Source:   "rooms",
		Title:    "Room settings updated",
		Metadata: map[string]any{"roomId": roomID, "actor": actor.Address},
	})
	return updated, nil
}

// RoomSettings returns the room for readers allowed to see it.
func (s *RoomService) RoomSettings(ctx context.Context, roomID int64, reader *models.User) (*models.Room, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.RequireAccess(ctx, room, reader.ID); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *RoomService) CustomRooms(ctx context.Context) ([]*models.Room, error) {
	rooms, err := s.rooms.ListRoomsByKind(ctx, models.RoomCustom)
	if err != nil {
		return nil, storageError("list custom rooms", err)
	}
	return rooms, nil
}

func (s *RoomService) DirectRoomsFor(ctx context.Context, userID int64) ([]*models.Room, error) {
	rooms, err := s.rooms.ListRoomsForUser(ctx, userID, models.RoomDirect)
	if err != nil {
		return nil, storageError("list direct rooms", err)
	}
	return rooms, nil
}

func (s *RoomService) Members(ctx context.Context, roomID int64) ([]models.Membership, error) {
	ms, err := s.rooms.ListMemberships(ctx, roomID)
	if err != nil {
		return nil, storageError("list members", err)
	}
	return ms, nil
}

func (s *RoomService) CountByKind(ctx context.Context) (map[models.RoomKind]int, error) {
	out := make(map[models.RoomKind]int, 3)
	for _, k := range []models.RoomKind{models.RoomWorld, models.RoomDirect, models.RoomCustom} {
		rooms, err := s.rooms.ListRoomsByKind(ctx, k)
		if err != nil {
			return nil, storageError("count rooms", err)
		}
		out[k] = len(rooms)
	}
	return out, nil
}

// SweepIdleRooms deletes custom rooms idle for longer than ttl or left with
// no members. Candidates are read once and each deletion re-checks, so a
// room that became active mid-sweep survives.
func (s *RoomService) SweepIdleRooms(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-ttl)
	ids, err := s.rooms.ListIdleCustomRooms(ctx, cutoff)
	if err != nil {
		return 0, storageError("list idle rooms", err)
	}

	deleted := 0
	for _, id := range ids {
		ok, err := s.rooms.DeleteIdleCustomRoom(ctx, id, cutoff)
		if err != nil {
			logrus.WithField("room_id", id).WithError(err).Error("Failed to delete idle room")
			continue
		}
		if !ok {
			continue
		}
		deleted++
		s.ledger.note(ctx, EventInput{
			Type:     models.EventRoom,
			Source:   "room_sweeper",
			Title:    "Idle room deleted",
			Metadata: map[string]any{"roomId": id, "cutoff": cutoff},
		})
	}
	if deleted > 0 {
		logrus.WithFields(logrus.Fields{"component": "rooms", "deleted": deleted, "candidates": len(ids)}).Info("Idle room sweep finished")
		trigger(ctx, s.trigger, "rooms_swept")
	}
	return deleted, nil
}

package service

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repository"
	"chat-gateway/internal/types"

	"github.com/sirupsen/logrus"
)

const (
	WorldChannel = "world"

	DefaultPageSize   = 50
	MaxPageSize       = 200
	maxContentLength  = 4000
	activeUsersWindow = 5 * time.Minute
)

func RoomChannel(roomID int64) string {
	return "room:" + strconv.FormatInt(roomID, 10)
}

// Publisher fans a payload out to a channel. Publish must not block.
type Publisher interface {
	Publish(channel string, kind types.MessageType, payload any)
}

type MessageService struct {
	messages  repository.MessageRepo
	rooms     *RoomService
	identity  *IdentityService
	ledger    *LedgerService
	trigger   SnapshotTrigger
	publisher Publisher
	now       func() time.Time
}

func NewMessageService(messages repository.MessageRepo, rooms *RoomService, identity *IdentityService, ledger *LedgerService, trigger SnapshotTrigger, publisher Publisher) *MessageService {
	if messages == nil {
		panic("MessageRepo cannot be nil for MessageService")
	}
	return &MessageService{
		messages:  messages,
		rooms:     rooms,
		identity:  identity,
		ledger:    ledger,
		trigger:   trigger,
		publisher: publisher,
		now:       time.Now,
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func validateContent(content string, media models.Media) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" && !media.Attached() {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return "", ErrContentTooLong
	}
	return content, nil
}

// SendMessage writes a message into roomID as sender and pushes it to
// subscribers.
func (s *MessageService) SendMessage(ctx context.Context, roomID int64, sender *models.User, content string, media models.Media) (*types.EnrichedMessage, error) {
	content, err := validateContent(content, media)
	if err != nil {
		return nil, err
	}
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.rooms.RequireAccess(ctx, room, sender.ID); err != nil {
		return nil, err
	}
	return s.save(ctx, room, sender, content, media)
}

func (s *MessageService) save(ctx context.Context, room *models.Room, sender *models.User, content string, media models.Media) (*types.EnrichedMessage, error) {
	m := &models.Message{
		RoomID:    room.ID,
		SenderID:  sender.ID,
		Content:   content,
		NFTRef:    optional(media.NFTRef),
		MediaURL:  optional(media.MediaURL),
		MediaType: optional(media.MediaType),
	}
	if err := s.messages.Save(ctx, m); err != nil {
		logrus.WithFields(logrus.Fields{"room_id": room.ID, "user_id": sender.ID}).WithError(err).Error("Failed to save message")
		return nil, notFoundOr(ErrRoomNotFound, "save message", err)
	}

	// The write path uses the cached identity; reconciliation waits for
	// the read path.
	e := enriched(m, sender)
	s.publish(room, types.TypeMessage, e)
	return e, nil
}

func (s *MessageService) SendWorldMessage(ctx context.Context, sender *models.User, content string, media models.Media) (*types.EnrichedMessage, error) {
	content, err := validateContent(content, media)
	if err != nil {
		return nil, err
	}
	world, err := s.rooms.WorldRoom(ctx)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, world, sender, content, media)
}

// SendDirectMessage resolves the recipient by username, consulting the
// identity authority for names not yet seen locally.
func (s *MessageService) SendDirectMessage(ctx context.Context, sender *models.User, toUsername, content string, media models.Media) (*types.EnrichedMessage, error) {
	content, err := validateContent(content, media)
	if err != nil {
		return nil, err
	}
	recipient, err := s.identity.LookupByUsername(ctx, toUsername)
	if err != nil {
		return nil, err
	}
	room, err := s.rooms.DirectRoom(ctx, sender, recipient)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, room, sender, content, media)
}

// PostSystemMessage writes content as the system actor without an access
// check.
func (s *MessageService) PostSystemMessage(ctx context.Context, roomID int64, content string) (*types.EnrichedMessage, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	actor, err := s.identity.SystemActor(ctx)
	if err != nil {
		return nil, err
	}
	content, err = validateContent(content, models.Media{})
	if err != nil {
		return nil, err
	}
	return s.save(ctx, room, actor, content, models.Media{})
}

func (s *MessageService) publish(room *models.Room, kind types.MessageType, m *types.EnrichedMessage) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(RoomChannel(room.ID), kind, m)
	if room.Kind == models.RoomWorld {
		s.publisher.Publish(WorldChannel, kind, m)
	}
}

// Enrich joins the sender's current identity onto m. This is the one place
// reconciliation fires. sender may be nil; it is loaded when absent.
func (s *MessageService) Enrich(ctx context.Context, m *models.Message, sender *models.User) *types.EnrichedMessage {
	if sender == nil || sender.ID != m.SenderID {
		u, err := s.identity.GetUser(ctx, m.SenderID)
		if err != nil {
			logrus.WithField("user_id", m.SenderID).WithError(err).Warn("Message sender missing during enrichment")
			u = &models.User{ID: m.SenderID}
		}
		sender = u
	}
	sender = s.identity.Reconcile(ctx, sender)
	return enriched(m, sender)
}

func enriched(m *models.Message, sender *models.User) *types.EnrichedMessage {
	return &types.EnrichedMessage{
		ID:      m.ID,
		RoomID:  m.RoomID,
		Content: m.Content,
		Sender: types.Sender{
			ID:            sender.ID,
			Address:       sender.Address,
			Username:      sender.Username,
			DisplayName:   sender.DisplayName,
			IsSystemActor: sender.IsSystemActor,
		},
		NFTID:     m.NFTRef,
		MediaURL:  m.MediaURL,
		MediaType: m.MediaType,
		IsBlurred: m.IsBlurred,
		CreatedAt: m.CreatedAt,
	}
}

func (s *MessageService) enrichAll(ctx context.Context, ms []*models.Message) []*types.EnrichedMessage {
	senders := make(map[int64]*models.User)
	out := make([]*types.EnrichedMessage, 0, len(ms))
	for _, m := range ms {
		e := s.Enrich(ctx, m, senders[m.SenderID])
		if _, ok := senders[m.SenderID]; !ok {
			senders[m.SenderID] = &models.User{
				ID:            e.Sender.ID,
				Address:       e.Sender.Address,
				Username:      e.Sender.Username,
				DisplayName:   e.Sender.DisplayName,
				IsSystemActor: e.Sender.IsSystemActor,
			}
		}
		out = append(out, e)
	}
	return out
}

// BlurMedia marks a message's media blurred for every viewer. Any caller
// may blur any message with media; blurring twice succeeds.
func (s *MessageService) BlurMedia(ctx context.Context, messageID int64, actor *models.User) (*types.EnrichedMessage, error) {
	m, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, notFoundOr(ErrMessageNotFound, "get message", err)
	}
	if !m.HasMedia() {
		return nil, ErrNoMediaPresent
	}
	if m.IsBlurred {
		return s.Enrich(ctx, m, nil), nil
	}

	m, err = s.messages.Blur(ctx, messageID)
	if err != nil {
		return nil, notFoundOr(ErrMessageNotFound, "blur message", err)
	}
	logrus.WithFields(logrus.Fields{"component": "messages", "message_id": messageID, "actor": actor.Address}).Info("Media blurred")
	s.ledger.note(ctx, EventInput{
		Type:     models.EventModeration,
		Source:   "messages",
		Title:    "Media blurred",
		Metadata: map[string]any{"messageId": messageID, "roomId": m.RoomID, "actor": actor.Address},
	})
	trigger(ctx, s.trigger, "media_blurred")

	e := s.Enrich(ctx, m, nil)
	if room, err := s.rooms.GetRoom(ctx, m.RoomID); err == nil {
		s.publish(room, types.TypeMessageUpdate, e)
	}
	return e, nil
}

func clampPage(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// RoomMessages returns up to limit messages older than beforeID (0 for the
// newest), oldest first.
func (s *MessageService) RoomMessages(ctx context.Context, roomID int64, reader *models.User, limit int, beforeID int64) ([]*types.EnrichedMessage, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.rooms.RequireAccess(ctx, room, reader.ID); err != nil {
		return nil, err
	}
	return s.page(ctx, room.ID, limit, beforeID)
}

func (s *MessageService) WorldMessages(ctx context.Context, limit int, beforeID int64) ([]*types.EnrichedMessage, error) {
	world, err := s.rooms.WorldRoom(ctx)
	if err != nil {
		return nil, err
	}
	return s.page(ctx, world.ID, limit, beforeID)
}

func (s *MessageService) page(ctx context.Context, roomID int64, limit int, beforeID int64) ([]*types.EnrichedMessage, error) {
	ms, err := s.messages.Fetch(ctx, roomID, clampPage(limit), beforeID)
	if err != nil {
		return nil, storageError("fetch messages", err)
	}
	for i, j := 0, len(ms)-1; i < j; i, j = i+1, j-1 {
		ms[i], ms[j] = ms[j], ms[i]
	}
	return s.enrichAll(ctx, ms), nil
}

// LastMessage returns nil when the room has no messages.
func (s *MessageService) LastMessage(ctx context.Context, roomID int64) (*types.EnrichedMessage, error) {
	m, err := s.messages.Last(ctx, roomID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, storageError("last message", err)
	}
	return s.Enrich(ctx, m, nil), nil
}

// ActiveUsers lists users who sent into roomID within the last five
// minutes, most recent first.
func (s *MessageService) ActiveUsers(ctx context.Context, roomID int64) ([]*models.User, error) {
	ids, err := s.messages.ActiveSenders(ctx, roomID, s.now().UTC().Add(-activeUsersWindow))
	if err != nil {
		return nil, storageError("active senders", err)
	}
	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.identity.GetUser(ctx, id)
		if err != nil {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *MessageService) CountMessages(ctx context.Context) (int64, error) {
	n, err := s.messages.CountMessages(ctx)
	if err != nil {
		return 0, storageError("count messages", err)
	}
	return n, nil
}

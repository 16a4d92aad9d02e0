package memory

import (
	"context"
	"sort"
	"time"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repository"
)

func copyMessage(m *models.Message) *models.Message {
	cp := *m
	return &cp
}

// newestFirst orders messages the way the messages index does.
func newestFirst(ms []*models.Message) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].ID > ms[j].ID
		}
		return ms[i].CreatedAt.After(ms[j].CreatedAt)
	})
}

func (s *Store) Save(_ context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[message.RoomID]
	if !ok {
		return repository.ErrNotFound
	}
	if _, ok := s.users[message.SenderID]; !ok {
		return repository.ErrNotFound
	}
	message.ID = s.id()
	message.CreatedAt = s.now()
	s.messages[message.ID] = copyMessage(message)
	room.LastActivityAt = message.CreatedAt
	return nil
}

func (s *Store) Get(_ context.Context, id int64) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyMessage(m), nil
}

func (s *Store) roomMessages(roomID int64) []*models.Message {
	var out []*models.Message
	for _, m := range s.messages {
		if m.RoomID == roomID {
			out = append(out, copyMessage(m))
		}
	}
	newestFirst(out)
	return out
}

func (s *Store) Fetch(_ context.Context, roomID int64, limit int, beforeID int64) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Message, 0, limit)
	for _, m := range s.roomMessages(roomID) {
		if len(out) == limit {
			break
		}
		if beforeID != 0 && m.ID >= beforeID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) Last(_ context.Context, roomID int64) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ms := s.roomMessages(roomID)
	if len(ms) == 0 {
		return nil, repository.ErrNotFound
	}
	return ms[0], nil
}

func (s *Store) Blur(_ context.Context, id int64) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m.IsBlurred = true
	return copyMessage(m), nil
}

func (s *Store) ActiveSenders(_ context.Context, roomID int64, since time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]bool)
	var ids []int64
	for _, m := range s.roomMessages(roomID) {
		if !m.CreatedAt.After(since) || seen[m.SenderID] {
			continue
		}
		seen[m.SenderID] = true
		ids = append(ids, m.SenderID)
	}
	return ids, nil
}

func (s *Store) CountMessages(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.messages)), nil
}

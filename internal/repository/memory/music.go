package memory

import (
	"context"
	"sort"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repository"
)

func copyItem(q *models.MusicQueueItem) *models.MusicQueueItem {
	cp := *q
	return &cp
}

func (s *Store) AddToQueue(_ context.Context, item *models.MusicQueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[item.RoomID]; !ok {
		return repository.ErrNotFound
	}
	maxPos := 0
	for _, q := range s.queue {
		if q.RoomID == item.RoomID && q.Position > maxPos {
			maxPos = q.Position
		}
	}
	item.ID = s.id()
	item.Position = maxPos + 1
	item.IsPlaying = false
	item.CreatedAt = s.now()
	s.queue[item.ID] = copyItem(item)
	return nil
}

func (s *Store) GetQueueItem(_ context.Context, id int64) (*models.MusicQueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.queue[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyItem(q), nil
}

func (s *Store) ListQueue(_ context.Context, roomID int64) ([]*models.MusicQueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.MusicQueueItem
	for _, q := range s.queue {
		if q.RoomID == roomID {
			out = append(out, copyItem(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *Store) ListPlaying(_ context.Context) ([]*models.MusicQueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.MusicQueueItem
	for _, q := range s.queue {
		if q.IsPlaying {
			out = append(out, copyItem(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out, nil
}

func (s *Store) SetPlaying(_ context.Context, roomID int64, itemID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if itemID != nil {
		target, ok := s.queue[*itemID]
		if !ok || target.RoomID != roomID {
			return repository.ErrNotFound
		}
	}
	for _, q := range s.queue {
		if q.RoomID == roomID {
			q.IsPlaying = itemID != nil && q.ID == *itemID
		}
	}
	return nil
}

func (s *Store) RemoveFromQueue(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queue[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.queue, id)
	return nil
}

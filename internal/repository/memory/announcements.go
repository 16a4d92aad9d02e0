package memory

import (
	"context"
	"sort"
	"time"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repository"
)

func (s *Store) CreateAnnouncement(_ context.Context, a *models.Announcement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[a.RoomID]; !ok {
		return repository.ErrNotFound
	}
	a.ID = s.id()
	a.IsActive = true
	a.LastSentAt = nil
	a.CreatedAt = s.now()
	cp := *a
	s.notices[a.ID] = &cp
	return nil
}

func (s *Store) activeNotices(match func(*models.Announcement) bool) []*models.Announcement {
	var out []*models.Announcement
	for _, a := range s.notices {
		if a.IsActive && match(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

func (s *Store) ListAnnouncements(_ context.Context, roomID int64) ([]*models.Announcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.activeNotices(func(a *models.Announcement) bool { return a.RoomID == roomID })
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) ListActiveAnnouncements(_ context.Context) ([]*models.Announcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.activeNotices(func(*models.Announcement) bool { return true })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MarkAnnouncementSent(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.notices[id]
	if !ok {
		return repository.ErrNotFound
	}
	sent := at
	a.LastSentAt = &sent
	return nil
}

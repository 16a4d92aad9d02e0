package memory

import (
	"context"
	"time"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repository"

	"github.com/google/uuid"
)

func inWindow(ts, from, to time.Time) bool {
	if !from.IsZero() && ts.Before(from) {
		return false
	}
	if !to.IsZero() && ts.After(to) {
		return false
	}
	return true
}

// page slices n newest-first rows; the slices are kept oldest first so the
// walk goes backwards.
func page(n, limit, offset int) (start, end int) {
	if offset >= n {
		return 0, 0
	}
	end = n - offset
	start = 0
	if limit > 0 && end-limit > 0 {
		start = end - limit
	}
	return start, end
}

func (s *Store) AppendEvent(_ context.Context, event *models.SystemEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

func (s *Store) ListEvents(_ context.Context, f models.EventFilter) ([]*models.SystemEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.SystemEvent
	for _, e := range s.events {
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.Source != "" && e.Source != f.Source {
			continue
		}
		if !inWindow(e.Timestamp, f.From, f.To) {
			continue
		}
		matched = append(matched, e)
	}
	start, end := page(len(matched), f.Limit, f.Offset)
	out := make([]*models.SystemEvent, 0, end-start)
	for i := end - 1; i >= start; i-- {
		cp := *matched[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) AppendSnapshot(_ context.Context, snapshot *models.SystemSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}
	if _, ok := s.snapshotIdx[snapshot.ID]; ok {
		return repository.ErrDuplicate
	}
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = s.now()
	}
	cp := *snapshot
	s.snapshots = append(s.snapshots, &cp)
	s.snapshotIdx[cp.ID] = &cp
	return nil
}

func (s *Store) GetSnapshot(_ context.Context, id uuid.UUID) (*models.SystemSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshotIdx[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *snap
	return &cp, nil
}

func (s *Store) ListSnapshots(_ context.Context, f models.SnapshotFilter) ([]*models.SystemSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.SystemSnapshot
	for _, snap := range s.snapshots {
		if inWindow(snap.Timestamp, f.From, f.To) {
			matched = append(matched, snap)
		}
	}
	start, end := page(len(matched), f.Limit, f.Offset)
	out := make([]*models.SystemSnapshot, 0, end-start)
	for i := end - 1; i >= start; i-- {
		cp := *matched[i]
		out = append(out, &cp)
	}
	return out, nil
}

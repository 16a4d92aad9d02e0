package memory

import (
	"context"
	"sort"
	"time"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repository"
)

func copyRoom(r *models.Room) *models.Room {
	cp := *r
	return &cp
}

func (s *Store) findRoom(match func(*models.Room) bool) (*models.Room, error) {
	for _, r := range s.rooms {
		if match(r) {
			return copyRoom(r), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) GetRoomByID(_ context.Context, id int64) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyRoom(r), nil
}

func (s *Store) GetRoomBySlug(_ context.Context, slug string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findRoom(func(r *models.Room) bool { return r.Slug != nil && *r.Slug == slug })
}

func (s *Store) GetRoomByName(_ context.Context, name string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findRoom(func(r *models.Room) bool { return r.Name != nil && *r.Name == name })
}

func (s *Store) newRoom(kind models.RoomKind) *models.Room {
	now := s.now()
	return &models.Room{
		ID:             s.id(),
		Kind:           kind,
		FontFamily:     models.DefaultFontFamily,
		FontSize:       models.DefaultFontSize,
		LastActivityAt: now,
		CreatedAt:      now,
	}
}

func (s *Store) GetOrCreateRoom(_ context.Context, kind models.RoomKind, slug string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, err := s.findRoom(func(r *models.Room) bool { return r.Slug != nil && *r.Slug == slug }); err == nil {
		return r, nil
	}
	if kind == models.RoomWorld {
		if _, err := s.findRoom(func(r *models.Room) bool { return r.Kind == models.RoomWorld }); err == nil {
			return nil, repository.ErrDuplicate
		}
	}
	r := s.newRoom(kind)
	slugCopy := slug
	r.Slug = &slugCopy
	s.rooms[r.ID] = r
	return copyRoom(r), nil
}

func (s *Store) CreateCustomRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rooms {
		if room.Slug != nil && r.Slug != nil && *r.Slug == *room.Slug {
			return repository.ErrDuplicate
		}
		if room.Name != nil && r.Name != nil && *r.Name == *room.Name {
			return repository.ErrDuplicate
		}
	}
	if room.CreatorID == nil {
		return repository.ErrNotFound
	}
	if _, ok := s.users[*room.CreatorID]; !ok {
		return repository.ErrNotFound
	}

	r := s.newRoom(models.RoomCustom)
	r.Slug, r.Name, r.Description, r.CreatorID = room.Slug, room.Name, room.Description, room.CreatorID
	s.rooms[r.ID] = r
	s.addMember(r.ID, *room.CreatorID, true)
	*room = *copyRoom(r)
	return nil
}

func sortRoomsNewest(rooms []*models.Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID > rooms[j].ID
		}
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
}

func (s *Store) ListRoomsByKind(_ context.Context, kind models.RoomKind) ([]*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Room
	for _, r := range s.rooms {
		if r.Kind == kind {
			out = append(out, copyRoom(r))
		}
	}
	sortRoomsNewest(out)
	return out, nil
}

func (s *Store) ListRoomsForUser(_ context.Context, userID int64, kind models.RoomKind) ([]*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Room
	for _, r := range s.rooms {
		if r.Kind != kind {
			continue
		}
		if _, ok := s.members[memberKey{r.ID, userID}]; ok {
			out = append(out, copyRoom(r))
		}
	}
	sortRoomsNewest(out)
	return out, nil
}

func (s *Store) UpdateRoomSettings(_ context.Context, id int64, settings models.RoomSettings) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if settings.Name != nil {
		for _, other := range s.rooms {
			if other.ID != id && other.Name != nil && *other.Name == *settings.Name {
				return nil, repository.ErrDuplicate
			}
		}
		name := *settings.Name
		r.Name = &name
	}
	if settings.Description != nil {
		d := *settings.Description
		r.Description = &d
	}
	if settings.FontFamily != nil {
		r.FontFamily = *settings.FontFamily
	}
	if settings.FontSize != nil {
		r.FontSize = *settings.FontSize
	}
	if settings.Rules != nil {
		rules := *settings.Rules
		r.Rules = &rules
	}
	return copyRoom(r), nil
}

func (s *Store) addMember(roomID, userID int64, moderator bool) bool {
	key := memberKey{roomID, userID}
	if _, ok := s.members[key]; ok {
		return false
	}
	s.seq++
	s.members[key] = &memberRow{
		Membership: models.Membership{RoomID: roomID, UserID: userID, IsModerator: moderator},
		joined:     s.seq,
	}
	return true
}

func (s *Store) AddMember(_ context.Context, roomID, userID int64, moderator bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return false, repository.ErrNotFound
	}
	if _, ok := s.users[userID]; !ok {
		return false, repository.ErrNotFound
	}
	return s.addMember(roomID, userID, moderator), nil
}

func (s *Store) RemoveMember(_ context.Context, roomID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, memberKey{roomID, userID})
	return nil
}

func (s *Store) GetMembership(_ context.Context, roomID, userID int64) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberKey{roomID, userID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := m.Membership
	return &cp, nil
}

func (s *Store) ListMemberships(_ context.Context, roomID int64) ([]models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []*memberRow
	for k, m := range s.members {
		if k.roomID == roomID {
			rows = append(rows, m)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].joined < rows[j].joined })
	out := make([]models.Membership, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.Membership)
	}
	return out, nil
}

func (s *Store) SetModerator(_ context.Context, roomID, userID int64, moderator bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := s.users[userID]; !ok {
		return repository.ErrNotFound
	}
	if m, ok := s.members[memberKey{roomID, userID}]; ok {
		m.IsModerator = moderator
		return nil
	}
	s.addMember(roomID, userID, moderator)
	return nil
}

func (s *Store) idle(r *models.Room, cutoff time.Time) bool {
	if r.Kind != models.RoomCustom {
		return false
	}
	if r.LastActivityAt.Before(cutoff) {
		return true
	}
	for k := range s.members {
		if k.roomID == r.ID {
			return false
		}
	}
	return true
}

func (s *Store) ListIdleCustomRooms(_ context.Context, cutoff time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for _, r := range s.rooms {
		if s.idle(r, cutoff) {
			ids = append(ids, r.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) DeleteIdleCustomRoom(_ context.Context, id int64, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok || !s.idle(r, cutoff) {
		return false, nil
	}
	delete(s.rooms, id)
	for k := range s.members {
		if k.roomID == id {
			delete(s.members, k)
		}
	}
	for mid, m := range s.messages {
		if m.RoomID == id {
			delete(s.messages, mid)
		}
	}
	for qid, q := range s.queue {
		if q.RoomID == id {
			delete(s.queue, qid)
		}
	}
	for nid, n := range s.notices {
		if n.RoomID == id {
			delete(s.notices, nid)
		}
	}
	return true, nil
}

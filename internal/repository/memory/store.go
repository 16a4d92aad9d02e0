// Package memory is an in-process implementation of every repository
// interface. It backs tests and single-node development runs without
// Postgres, and enforces the same uniqueness rules as the schema.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repository"

	"github.com/google/uuid"
)

type memberKey struct {
	roomID int64
	userID int64
}

type memberRow struct {
	models.Membership
	joined int64
}

type Store struct {
	// Now stamps created_at and last-activity values. Tests replace it to
	// move time.
	Now func() time.Time

	mu     sync.RWMutex
	nextID int64
	seq    int64

	users       map[int64]*models.User
	byAddress   map[string]int64
	byUsername  map[string]int64
	rooms       map[int64]*models.Room
	members     map[memberKey]*memberRow
	messages    map[int64]*models.Message
	queue       map[int64]*models.MusicQueueItem
	notices     map[int64]*models.Announcement
	events      []*models.SystemEvent
	snapshots   []*models.SystemSnapshot
	snapshotIdx map[uuid.UUID]*models.SystemSnapshot
}

var (
	_ repository.UserRepository         = (*Store)(nil)
	_ repository.RoomRepository         = (*Store)(nil)
	_ repository.MessageRepo            = (*Store)(nil)
	_ repository.MusicRepository        = (*Store)(nil)
	_ repository.LedgerRepository       = (*Store)(nil)
	_ repository.AnnouncementRepository = (*Store)(nil)
)

func New() *Store {
	return &Store{
		Now:         time.Now,
		users:       make(map[int64]*models.User),
		byAddress:   make(map[string]int64),
		byUsername:  make(map[string]int64),
		rooms:       make(map[int64]*models.Room),
		members:     make(map[memberKey]*memberRow),
		messages:    make(map[int64]*models.Message),
		queue:       make(map[int64]*models.MusicQueueItem),
		notices:     make(map[int64]*models.Announcement),
		snapshotIdx: make(map[uuid.UUID]*models.SystemSnapshot),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) now() time.Time {
	return s.Now().UTC()
}

func usernameKey(u string) string {
	return strings.ToLower(u)
}

// ---- users ----

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byAddress[u.Address]; ok {
		return repository.ErrDuplicate
	}
	if _, ok := s.byUsername[usernameKey(u.Username)]; ok {
		return repository.ErrDuplicate
	}
	u.ID = s.id()
	u.CreatedAt = s.now()
	cp := *u
	s.users[u.ID] = &cp
	s.byAddress[u.Address] = u.ID
	s.byUsername[usernameKey(u.Username)] = u.ID
	return nil
}

func (s *Store) userCopy(id int64, ok bool) (*models.User, error) {
	if !ok {
		return nil, repository.ErrNotFound
	}
	u, found := s.users[id]
	if !found {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByAddress(_ context.Context, address string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byAddress[address]
	return s.userCopy(id, ok)
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[usernameKey(username)]
	return s.userCopy(id, ok)
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userCopy(id, true)
}

func (s *Store) rename(id int64, username string) error {
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if holder, taken := s.byUsername[usernameKey(username)]; taken && holder != id {
		return repository.ErrDuplicate
	}
	delete(s.byUsername, usernameKey(u.Username))
	u.Username = username
	s.byUsername[usernameKey(username)] = id
	return nil
}

func (s *Store) UpdateUsername(_ context.Context, id int64, username string, displayName *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rename(id, username); err != nil {
		return err
	}
	if displayName != nil {
		s.users[id].DisplayName = *displayName
	}
	return nil
}

func (s *Store) ApplyUsernameChanges(_ context.Context, changes []repository.UsernameChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A failed step undoes the earlier ones so no partial rename survives.
	original := make(map[int64]string, len(changes))
	for _, c := range changes {
		if u, ok := s.users[c.UserID]; ok {
			if _, seen := original[c.UserID]; !seen {
				original[c.UserID] = u.Username
			}
		}
	}
	for i, c := range changes {
		if err := s.rename(c.UserID, c.Username); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = s.rename(changes[j].UserID, original[changes[j].UserID])
			}
			return err
		}
	}
	return nil
}

func (s *Store) CountUsers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

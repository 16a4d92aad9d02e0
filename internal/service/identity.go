package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"chat-gateway/internal/chain"
	"chat-gateway/internal/models"
	"chat-gateway/internal/repository"

	"github.com/sirupsen/logrus"
)

// IdentityService owns users. Other components read identities only
// through it.
type IdentityService struct {
	users      repository.UserRepository
	authority  chain.Authority
	timeout    time.Duration
	reconciler *Reconciler
}

func NewIdentityService(users repository.UserRepository, authority chain.Authority, reconciler *Reconciler, timeout time.Duration) *IdentityService {
	if users == nil {
		panic("UserRepository cannot be nil for IdentityService")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &IdentityService{
		users:      users,
		authority:  authority,
		timeout:    timeout,
		reconciler: reconciler,
	}
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// GetOrCreateUser returns the user for address, creating it on first
// contact. A username hint is applied only when no other address holds it;
// otherwise the stored username wins without error.
func (s *IdentityService) GetOrCreateUser(ctx context.Context, address string, usernameHint, displayNameHint *string) (*models.User, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrInvalidAddress
	}
	logCtx := logrus.WithFields(logrus.Fields{"component": "identity", "address": address})

	u, err := s.users.GetUserByAddress(ctx, address)
	switch {
	case err == nil:
		return s.applyHints(ctx, u, usernameHint, displayNameHint)
	case !errors.Is(err, repository.ErrNotFound):
		logCtx.WithError(err).Error("Failed to load user")
		return nil, storageError("get user", err)
	}

	display := trimmed(displayNameHint)
	for _, candidate := range usernameCandidates(address, trimmed(usernameHint)) {
		nu := &models.User{Address: address, Username: candidate, DisplayName: display}
		err := s.users.CreateUser(ctx, nu)
		if err == nil {
			logCtx.WithField("username", candidate).Info("Created user on first contact")
			return nu, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			logCtx.WithError(err).Error("Failed to create user")
			return nil, storageError("create user", err)
		}
		// Either another request created this address first or the
		// candidate name is taken.
		if existing, gerr := s.users.GetUserByAddress(ctx, address); gerr == nil {
			return existing, nil
		}
	}
	return nil, storageError("create user", repository.ErrDuplicate)
}

func usernameCandidates(address, hint string) []string {
	out := make([]string, 0, 3)
	seen := map[string]bool{}
	for _, c := range []string{hint, models.PlaceholderUsername(address), address} {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func (s *IdentityService) applyHints(ctx context.Context, u *models.User, usernameHint, displayNameHint *string) (*models.User, error) {
	name := u.Username
	if hint := trimmed(usernameHint); hint != "" && hint != u.Username {
		holder, err := s.users.GetUserByUsername(ctx, hint)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			name = hint
		case err != nil:
			return nil, storageError("get user", err)
		case holder.ID == u.ID:
			// Same user, different case.
			name = hint
		}
	}
	var display *string
	if d := trimmed(displayNameHint); d != "" && d != u.DisplayName {
		display = &d
	}
	if name == u.Username && display == nil {
		return u, nil
	}

	err := s.users.UpdateUsername(ctx, u.ID, name, display)
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost a race for the name; uniqueness wins over the hint.
		return u, nil
	}
	if err != nil {
		return nil, storageError("update username", err)
	}
	updated := *u
	updated.Username = name
	if display != nil {
		updated.DisplayName = *display
	}
	return &updated, nil
}

// ResolveCurrentUser identifies the caller at the boundary and reconciles
// an address-shaped username on the way in.
func (s *IdentityService) ResolveCurrentUser(ctx context.Context, address string, usernameHint *string) (*models.User, error) {
	u, err := s.GetOrCreateUser(ctx, address, usernameHint, nil)
	if err != nil {
		return nil, err
	}
	return s.Reconcile(ctx, u), nil
}

func (s *IdentityService) Reconcile(ctx context.Context, u *models.User) *models.User {
	return s.reconciler.Reconcile(ctx, u)
}

func (s *IdentityService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(ErrUserNotFound, "get user", err)
	}
	return u, nil
}

// LookupByUsername matches case-insensitively. A name unknown locally is
// resolved through the authority and the user created lazily.
func (s *IdentityService) LookupByUsername(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUserNotFound
	}
	u, err := s.users.GetUserByUsername(ctx, username)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, storageError("get user", err)
	}
	if s.authority == nil {
		return nil, wrap(ErrUserNotFound, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	address, aerr := s.authority.ResolveAddress(callCtx, username)
	cancel()
	if aerr != nil {
		logrus.WithField("username", username).WithError(aerr).Warn("Identity authority address lookup failed")
		return nil, wrap(ErrUserNotFound, err)
	}
	if address == "" {
		return nil, wrap(ErrUserNotFound, err)
	}
	return s.GetOrCreateUser(ctx, address, &username, nil)
}

// SystemActor returns the user that posts announcements.
func (s *IdentityService) SystemActor(ctx context.Context) (*models.User, error) {
	u, err := s.users.GetUserByAddress(ctx, models.SystemAddress)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, storageError("get system actor", err)
	}
	u = &models.User{
		Address:       models.SystemAddress,
		Username:      models.SystemAddress,
		DisplayName:   "System",
		IsSystemActor: true,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if existing, gerr := s.users.GetUserByAddress(ctx, models.SystemAddress); gerr == nil {
			return existing, nil
		}
		return nil, storageError("create system actor", err)
	}
	return u, nil
}

func (s *IdentityService) CountUsers(ctx context.Context) (int64, error) {
	n, err := s.users.CountUsers(ctx)
	if err != nil {
		return 0, storageError("count users", err)
	}
	return n, nil
}

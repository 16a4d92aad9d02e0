package service

import (
	"context"
	"testing"

	"chat-gateway/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateUserIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	first, err := e.identity.GetOrCreateUser(ctx, addr('a'), nil, nil)
	require.NoError(t, err)
	second, err := e.identity.GetOrCreateUser(ctx, addr('a'), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Username, second.Username)
	assert.Equal(t, models.PlaceholderUsername(addr('a')), first.Username)
}

func TestGetOrCreateUserRequiresAddress(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.identity.GetOrCreateUser(context.Background(), "  ", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.True(t, IsKind(err, KindValidation))
}

func TestUsernameHintAppliedWhenFree(t *testing.T) {
	e := newTestEnv(t)
	u := e.user(t, addr('a'), "")

	updated := e.user(t, addr('a'), "alice")
	assert.Equal(t, u.ID, updated.ID)
	assert.Equal(t, "alice", updated.Username)
}

func TestUsernameHintTakenKeepsExistingName(t *testing.T) {
	e := newTestEnv(t)
	e.user(t, addr('a'), "alice")
	bob := e.user(t, addr('b'), "bob")

	again := e.user(t, addr('b'), "alice")
	assert.Equal(t, bob.ID, again.ID)
	assert.Equal(t, "bob", again.Username)
}

func TestNewUserWithTakenHintFallsBackToPlaceholder(t *testing.T) {
	e := newTestEnv(t)
	e.user(t, addr('a'), "alice")

	u := e.user(t, addr('b'), "alice")
	assert.Equal(t, models.PlaceholderUsername(addr('b')), u.Username)
}

func TestLookupByUsernameIsCaseInsensitive(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, addr('a'), "Alice")

	got, err := e.identity.LookupByUsername(context.Background(), "aLiCe")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
}

func TestLookupByUsernameAsksAuthority(t *testing.T) {
	e := newTestEnv(t)
	e.authority.set(addr('c'), "carol")

	got, err := e.identity.LookupByUsername(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, addr('c'), got.Address)
	assert.Equal(t, "carol", got.Username)

	_, err = e.identity.LookupByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLookupByUsernameAuthorityDown(t *testing.T) {
	e := newTestEnv(t)
	e.authority.fail(errUnreachable)

	_, err := e.identity.LookupByUsername(context.Background(), "carol")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSystemActorIsStable(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	a, err := e.identity.SystemActor(ctx)
	require.NoError(t, err)
	b, err := e.identity.SystemActor(ctx)
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.True(t, a.IsSystemActor)
	assert.False(t, NeedsReconciliation(a))
}

func TestResolveCurrentUserReconciles(t *testing.T) {
	e := newTestEnv(t)
	e.authority.set(addr('a'), "alice")

	u, err := e.identity.ResolveCurrentUser(context.Background(), addr('a'), nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
}

package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repository/memory"
	"chat-gateway/internal/types"

	"github.com/stretchr/testify/require"
)

type fakeAuthority struct {
	mu    sync.Mutex
	names map[string]string
	err   error
	calls atomic.Int64
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{names: map[string]string{}}
}

func (a *fakeAuthority) set(address, username string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.names[address] = username
}

func (a *fakeAuthority) fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

func (a *fakeAuthority) ResolveUsername(_ context.Context, address string) (string, error) {
	a.calls.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	return a.names[address], nil
}

func (a *fakeAuthority) ResolveAddress(_ context.Context, username string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	for addr, name := range a.names {
		if strings.EqualFold(name, username) {
			return addr, nil
		}
	}
	return "", nil
}

type published struct {
	channel string
	kind    types.MessageType
	payload any
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []published
}

func (p *recordingPublisher) Publish(channel string, kind types.MessageType, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, published{channel, kind, payload})
}

func (p *recordingPublisher) channels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.got))
	for _, g := range p.got {
		out = append(out, g.channel)
	}
	return out
}

type recordingTrigger struct {
	mu     sync.Mutex
	labels []string
}

func (t *recordingTrigger) TriggerSnapshot(_ context.Context, label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.labels = append(t.labels, label)
}

func (t *recordingTrigger) seen() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.labels...)
}

type testEnv struct {
	store         *memory.Store
	authority     *fakeAuthority
	publisher     *recordingPublisher
	trigger       *recordingTrigger
	ledger        *LedgerService
	identity      *IdentityService
	rooms         *RoomService
	messages      *MessageService
	music         *MusicService
	directory     *Directory
	announcements *AnnouncementService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		store:     memory.New(),
		authority: newFakeAuthority(),
		publisher: &recordingPublisher{},
		trigger:   &recordingTrigger{},
	}
	e.ledger = NewLedgerService(e.store)
	reconciler := NewReconciler(e.store, e.authority, time.Second, e.ledger)
	e.identity = NewIdentityService(e.store, e.authority, reconciler, time.Second)
	e.rooms = NewRoomService(e.store, e.identity, e.ledger, e.trigger)
	e.messages = NewMessageService(e.store, e.rooms, e.identity, e.ledger, e.trigger, e.publisher)
	e.music = NewMusicService(e.store, e.rooms)
	e.directory = NewDirectory(e.rooms, e.messages, e.music, e.identity)
	e.announcements = NewAnnouncementService(e.store, e.rooms, e.messages)
	return e
}

func addr(b byte) string {
	return "0x" + strings.Repeat(string(b), 40)
}

func (e *testEnv) user(t *testing.T, address, username string) *models.User {
	t.Helper()
	var hint *string
	if username != "" {
		hint = &username
	}
	u, err := e.identity.GetOrCreateUser(context.Background(), address, hint, nil)
	require.NoError(t, err)
	return u
}

func (e *testEnv) customRoom(t *testing.T, creator *models.User, name, slug string) *models.Room {
	t.Helper()
	r, err := e.rooms.CreateCustomRoom(context.Background(), creator, name, nil, slug)
	require.NoError(t, err)
	return r
}

var errUnreachable = errors.New("dial tcp: connection refused")

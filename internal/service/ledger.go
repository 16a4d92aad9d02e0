package service

import (
	"context"
	"time"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultLedgerLimit = 50
	maxLedgerLimit     = 500
)

// LedgerService owns the append-only event and snapshot trail.
type LedgerService struct {
	repo repository.LedgerRepository
	now  func() time.Time
}

func NewLedgerService(repo repository.LedgerRepository) *LedgerService {
	if repo == nil {
		panic("LedgerRepository cannot be nil for LedgerService")
	}
	return &LedgerService{repo: repo, now: time.Now}
}

type EventInput struct {
	Type              models.EventType
	Source            string
	Title             string
	Description       string
	Metadata          map[string]any
	RelatedSnapshotID *uuid.UUID
}

// RecordEvent appends one event. Content is never rejected; the only failure
// is storage.
func (s *LedgerService) RecordEvent(ctx context.Context, in EventInput) (*models.SystemEvent, error) {
	e := &models.SystemEvent{
		ID:                uuid.New(),
		Type:              in.Type,
		Source:            in.Source,
		Title:             in.Title,
		Description:       in.Description,
		Metadata:          in.Metadata,
		RelatedSnapshotID: in.RelatedSnapshotID,
		Timestamp:         s.now().UTC(),
	}
	if e.Type == "" {
		e.Type = models.EventSystem
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	if err := s.repo.AppendEvent(ctx, e); err != nil {
		logrus.WithFields(logrus.Fields{"type": e.Type, "source": e.Source}).WithError(err).Error("Failed to record system event")
		return nil, storageError("record event", err)
	}
	return e, nil
}

// note records an event for another component's audit trail. Failures are
// logged by RecordEvent and never reach the caller's operation.
func (s *LedgerService) note(ctx context.Context, in EventInput) {
	if s == nil {
		return
	}
	_, _ = s.RecordEvent(ctx, in)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLedgerLimit
	}
	if limit > maxLedgerLimit {
		return maxLedgerLimit
	}
	return limit
}

func (s *LedgerService) Events(ctx context.Context, f models.EventFilter) ([]*models.SystemEvent, error) {
	f.Limit = clampLimit(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	events, err := s.repo.ListEvents(ctx, f)
	if err != nil {
		return nil, storageError("list events", err)
	}
	return events, nil
}

func (s *LedgerService) Snapshots(ctx context.Context, f models.SnapshotFilter) ([]*models.SystemSnapshot, error) {
	f.Limit = clampLimit(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	snaps, err := s.repo.ListSnapshots(ctx, f)
	if err != nil {
		return nil, storageError("list snapshots", err)
	}
	return snaps, nil
}

func (s *LedgerService) Snapshot(ctx context.Context, id uuid.UUID) (*models.SystemSnapshot, error) {
	snap, err := s.repo.GetSnapshot(ctx, id)
	if err != nil {
		return nil, notFoundOr(ErrSnapshotNotFound, "get snapshot", err)
	}
	return snap, nil
}

func (s *LedgerService) appendSnapshot(ctx context.Context, snap *models.SystemSnapshot) error {
	if err := s.repo.AppendSnapshot(ctx, snap); err != nil {
		return storageError("append snapshot", err)
	}
	return nil
}

// SnapshotTrigger requests a named snapshot out of band. Implementations
// must not block the caller.
type SnapshotTrigger interface {
	TriggerSnapshot(ctx context.Context, label string)
}

func trigger(ctx context.Context, t SnapshotTrigger, label string) {
	if t != nil {
		t.TriggerSnapshot(ctx, label)
	}
}

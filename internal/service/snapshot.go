package service

import (
	"context"
	"fmt"
	"time"

	"chat-gateway/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	PartFabric  = "fabric"
	PartRooms   = "rooms"
	PartQueue   = "queue"
	PartDerived = "derived"

	sourceTimeout = 5 * time.Second
)

// Source produces one part of a snapshot.
type Source func(ctx context.Context) (any, error)

// PartResult is a captured value with its completeness flag.
type PartResult struct {
	Value any
	OK    bool
	Err   error
}

// FabricReporter describes the live push fabric, usually the hub.
type FabricReporter interface {
	Stats() any
}

type SnapshotService struct {
	ledger  *LedgerService
	sources map[string]Source
	now     func() time.Time
}

func NewSnapshotService(ledger *LedgerService, sources map[string]Source) *SnapshotService {
	return &SnapshotService{ledger: ledger, sources: sources, now: time.Now}
}

// NewStandardSnapshotService wires the four parts to the owning services.
func NewStandardSnapshotService(ledger *LedgerService, fabric FabricReporter, rooms *RoomService, music *MusicService, messages *MessageService, identity *IdentityService) *SnapshotService {
	return NewSnapshotService(ledger, map[string]Source{
		PartFabric: func(context.Context) (any, error) {
			if fabric == nil {
				return nil, fmt.Errorf("no fabric reporter")
			}
			return fabric.Stats(), nil
		},
		PartRooms: func(ctx context.Context) (any, error) {
			return roomsState(ctx, rooms)
		},
		PartQueue: func(ctx context.Context) (any, error) {
			return music.NowPlaying(ctx)
		},
		PartDerived: func(ctx context.Context) (any, error) {
			return derivedState(ctx, rooms, messages, identity)
		},
	})
}

type roomState struct {
	ID             int64           `json:"id"`
	Kind           models.RoomKind `json:"kind"`
	Slug           string          `json:"slug,omitempty"`
	Name           string          `json:"name,omitempty"`
	Members        int             `json:"members"`
	Moderators     int             `json:"moderators"`
	LastActivityAt time.Time       `json:"lastActivityAt"`
}

func roomsState(ctx context.Context, rooms *RoomService) ([]roomState, error) {
	custom, err := rooms.CustomRooms(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]roomState, 0, len(custom))
	for _, r := range custom {
		ms, err := rooms.Members(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		st := roomState{
			ID:             r.ID,
			Kind:           r.Kind,
			Slug:           deref(r.Slug),
			Name:           deref(r.Name),
			Members:        len(ms),
			LastActivityAt: r.LastActivityAt,
		}
		for _, m := range ms {
			if m.IsModerator {
				st.Moderators++
			}
		}
		out = append(out, st)
	}
	return out, nil
}

func derivedState(ctx context.Context, rooms *RoomService, messages *MessageService, identity *IdentityService) (map[string]any, error) {
	counts, err := rooms.CountByKind(ctx)
	if err != nil {
		return nil, err
	}
	users, err := identity.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := messages.CountMessages(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"users":       users,
		"messages":    msgs,
		"worldRooms":  counts[models.RoomWorld],
		"directRooms": counts[models.RoomDirect],
		"customRooms": counts[models.RoomCustom],
	}, nil
}

func (s *SnapshotService) collect(ctx context.Context, name string) (res PartResult) {
	src, ok := s.sources[name]
	if !ok {
		return PartResult{Err: fmt.Errorf("no source for %s", name)}
	}
	defer func() {
		if r := recover(); r != nil {
			res = PartResult{Err: fmt.Errorf("source %s panicked: %v", name, r)}
		}
	}()
	cctx, cancel := context.WithTimeout(ctx, sourceTimeout)
	defer cancel()
	v, err := src(cctx)
	if err != nil {
		return PartResult{Err: err}
	}
	return PartResult{Value: v, OK: true}
}

// CaptureSnapshot gathers every part independently. A failing part is
// logged and recorded as incomplete; only failing to store the snapshot
// itself is an error.
func (s *SnapshotService) CaptureSnapshot(ctx context.Context, label *string) (*models.SystemSnapshot, error) {
	started := s.now()
	logCtx := logrus.WithField("component", "snapshots")

	parts := make(map[string]PartResult, 4)
	completeness := make(map[string]bool, 4)
	failures := make(map[string]string)
	for _, name := range []string{PartFabric, PartRooms, PartQueue, PartDerived} {
		r := s.collect(ctx, name)
		parts[name] = r
		completeness[name] = r.OK
		if r.Err != nil {
			failures[name] = r.Err.Error()
			logCtx.WithField("part", name).WithError(r.Err).Warn("Snapshot part unavailable")
		}
	}

	meta := map[string]any{
		"dataCompleteness": completeness,
		"durationMs":       s.now().Sub(started).Milliseconds(),
	}
	if len(failures) > 0 {
		meta["errors"] = failures
	}
	snap := &models.SystemSnapshot{
		ID:           uuid.New(),
		Label:        label,
		FabricState:  parts[PartFabric].Value,
		RoomsState:   parts[PartRooms].Value,
		QueueState:   parts[PartQueue].Value,
		DerivedState: parts[PartDerived].Value,
		Metadata:     meta,
		Timestamp:    s.now().UTC(),
	}
	if err := s.ledger.appendSnapshot(ctx, snap); err != nil {
		logCtx.WithError(err).Error("Failed to store snapshot")
		return nil, err
	}

	title := "Snapshot captured"
	if label != nil && *label != "" {
		title = "Snapshot captured: " + *label
	}
	id := snap.ID
	s.ledger.note(ctx, EventInput{
		Type:              models.EventSystem,
		Source:            "snapshot_service",
		Title:             title,
		Metadata:          map[string]any{"dataCompleteness": completeness},
		RelatedSnapshotID: &id,
	})
	logCtx.WithFields(logrus.Fields{"snapshot_id": snap.ID, "complete": len(failures) == 0}).Info("Snapshot captured")
	return snap, nil
}

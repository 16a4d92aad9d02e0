package models

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSystem     EventType = "system"
	EventRoom       EventType = "room"
	EventModeration EventType = "moderation"
	EventRitual     EventType = "ritual"
	EventIdentity   EventType = "identity"
)

type SystemEvent struct {
	ID                uuid.UUID      `json:"id"`
	Type              EventType      `json:"type"`
	Source            string         `json:"source"`
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	RelatedSnapshotID *uuid.UUID     `json:"relatedSnapshotId,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
}

type SystemSnapshot struct {
	ID           uuid.UUID      `json:"id"`
	Label        *string        `json:"label,omitempty"`
	FabricState  any            `json:"fabricState"`
	RoomsState   any            `json:"roomsState"`
	QueueState   any            `json:"queueState"`
	DerivedState any            `json:"derivedState"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// EventFilter narrows a ledger read. Zero values mean "no constraint".
type EventFilter struct {
	Type   EventType
	Source string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

type SnapshotFilter struct {
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

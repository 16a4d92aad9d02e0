package models

import (
	"sort"
	"time"
)

type RoomKind string

const (
	RoomWorld  RoomKind = "world"
	RoomDirect RoomKind = "direct"
	RoomCustom RoomKind = "custom"
)

const (
	WorldSlug         = "world"
	DefaultFontFamily = "system-ui"
	DefaultFontSize   = 14
)

func (k RoomKind) Valid() bool {
	switch k {
	case RoomWorld, RoomDirect, RoomCustom:
		return true
	}
	return false
}

// ImplicitMembership is true for rooms every known user belongs to without
// a membership row.
func (k RoomKind) ImplicitMembership() bool {
	return k == RoomWorld
}

type Room struct {
	ID             int64     `json:"id"`
	Kind           RoomKind  `json:"kind"`
	Slug           *string   `json:"slug,omitempty"`
	Name           *string   `json:"name,omitempty"`
	Description    *string   `json:"description,omitempty"`
	CreatorID      *int64    `json:"creatorId,omitempty"`
	FontFamily     string    `json:"fontFamily"`
	FontSize       int       `json:"fontSize"`
	Rules          *string   `json:"rules,omitempty"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (r *Room) IsCreator(userID int64) bool {
	return r.CreatorID != nil && *r.CreatorID == userID
}

type Membership struct {
	RoomID      int64 `json:"roomId"`
	UserID      int64 `json:"userId"`
	IsModerator bool  `json:"isModerator"`
}

// RoomSettings is a partial update; nil fields are left unchanged.
type RoomSettings struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	FontFamily  *string `json:"fontFamily,omitempty"`
	FontSize    *int    `json:"fontSize,omitempty"`
	Rules       *string `json:"rules,omitempty"`
}

func (s RoomSettings) Empty() bool {
	return s.Name == nil && s.Description == nil && s.FontFamily == nil && s.FontSize == nil && s.Rules == nil
}

// DirectSlug is the canonical slug of the direct room between two
// addresses. The pair is sorted so both orderings map to the same room.
func DirectSlug(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return "dm:" + pair[0] + ":" + pair[1]
}

// Announcement is a recurring system message posted into a room.
type Announcement struct {
	ID              int64      `json:"id"`
	RoomID          int64      `json:"roomId"`
	Content         string     `json:"content"`
	IntervalSeconds int        `json:"intervalSeconds"`
	LastSentAt      *time.Time `json:"lastSentAt,omitempty"`
	IsActive        bool       `json:"isActive"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Due reports whether the announcement should be posted at now.
func (a *Announcement) Due(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	if a.LastSentAt == nil {
		return true
	}
	return !now.Before(a.LastSentAt.Add(time.Duration(a.IntervalSeconds) * time.Second))
}

package service

import (
	"context"

	"chat-gateway/internal/models"
	"chat-gateway/internal/types"
)

// Directory assembles room listings from the owning services.
type Directory struct {
	rooms    *RoomService
	messages *MessageService
	music    *MusicService
	identity *IdentityService
}

func NewDirectory(rooms *RoomService, messages *MessageService, music *MusicService, identity *IdentityService) *Directory {
	return &Directory{rooms: rooms, messages: messages, music: music, identity: identity}
}

func (d *Directory) members(ctx context.Context, roomID int64) ([]types.MemberView, []types.UserView, error) {
	ms, err := d.rooms.Members(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	members := make([]types.MemberView, 0, len(ms))
	mods := make([]types.UserView, 0)
	for _, m := range ms {
		u, err := d.identity.GetUser(ctx, m.UserID)
		if err != nil {
			continue
		}
		v := types.NewUserView(u)
		members = append(members, types.MemberView{UserView: v, IsModerator: m.IsModerator})
		if m.IsModerator {
			mods = append(mods, v)
		}
	}
	return members, mods, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// DirectRooms lists the viewer's direct conversations.
func (d *Directory) DirectRooms(ctx context.Context, viewer *models.User) ([]types.DirectRoomView, error) {
	rooms, err := d.rooms.DirectRoomsFor(ctx, viewer.ID)
	if err != nil {
		return nil, err
	}
	out := make([]types.DirectRoomView, 0, len(rooms))
	for _, r := range rooms {
		members, _, err := d.members(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		last, err := d.messages.LastMessage(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, types.DirectRoomView{
			ID:          r.ID,
			Slug:        deref(r.Slug),
			Members:     members,
			LastMessage: last,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out, nil
}

// CustomRooms lists every custom room with its people, last message and
// queue.
func (d *Directory) CustomRooms(ctx context.Context) ([]types.CustomRoomView, error) {
	rooms, err := d.rooms.CustomRooms(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.CustomRoomView, 0, len(rooms))
	for _, r := range rooms {
		v, err := d.customRoom(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (d *Directory) customRoom(ctx context.Context, r *models.Room) (types.CustomRoomView, error) {
	v := types.CustomRoomView{
		ID:             r.ID,
		Slug:           deref(r.Slug),
		Name:           deref(r.Name),
		Description:    r.Description,
		FontFamily:     r.FontFamily,
		FontSize:       r.FontSize,
		Rules:          r.Rules,
		LastActivityAt: r.LastActivityAt,
		CreatedAt:      r.CreatedAt,
	}
	if r.CreatorID != nil {
		if u, err := d.identity.GetUser(ctx, *r.CreatorID); err == nil {
			cv := types.NewUserView(u)
			v.Creator = &cv
		}
	}

	var err error
	if v.Members, v.Moderators, err = d.members(ctx, r.ID); err != nil {
		return v, err
	}
	active, err := d.messages.ActiveUsers(ctx, r.ID)
	if err != nil {
		return v, err
	}
	v.ActiveUsers = make([]types.UserView, 0, len(active))
	for _, u := range active {
		v.ActiveUsers = append(v.ActiveUsers, types.NewUserView(u))
	}
	if v.LastMessage, err = d.messages.LastMessage(ctx, r.ID); err != nil {
		return v, err
	}
	q, err := d.music.state(ctx, r.ID)
	if err != nil {
		return v, err
	}
	v.MusicQueue = q.Items
	return v, nil
}

package types

import (
	"time"

	"chat-gateway/internal/models"
)

type MediaInput struct {
	NFTID     string `json:"nftId"`
	MediaURL  string `json:"mediaUrl"`
	MediaType string `json:"mediaType"`
}

func (m MediaInput) Media() models.Media {
	return models.Media{NFTRef: m.NFTID, MediaURL: m.MediaURL, MediaType: m.MediaType}
}

type SendMessageRequest struct {
	Content string `json:"content"`
	MediaInput
}

type SendDirectMessageRequest struct {
	ToUsername string `json:"toUsername" binding:"required"`
	Content    string `json:"content"`
	MediaInput
}

type CreateRoomRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
	Slug        string  `json:"slug" binding:"required"`
}

type ModeratorRequest struct {
	Username string `json:"username" binding:"required"`
}

type AddMusicRequest struct {
	SourceType string  `json:"sourceType" binding:"required"`
	SourceURL  string  `json:"sourceUrl" binding:"required"`
	Title      *string `json:"title"`
	Artist     *string `json:"artist"`
}

type SetPlayingRequest struct {
	MusicID *int64 `json:"musicId"`
}

type CreateAnnouncementRequest struct {
	Content         string `json:"content" binding:"required"`
	IntervalSeconds int    `json:"intervalSeconds"`
}

type CaptureSnapshotRequest struct {
	Label *string `json:"label"`
}

type UserView struct {
	ID            int64  `json:"id"`
	Address       string `json:"address"`
	Username      string `json:"username"`
	DisplayName   string `json:"displayName,omitempty"`
	IsSystemActor bool   `json:"isSystemActor"`
}

func NewUserView(u *models.User) UserView {
	return UserView{
		ID:            u.ID,
		Address:       u.Address,
		Username:      u.Username,
		DisplayName:   u.DisplayName,
		IsSystemActor: u.IsSystemActor,
	}
}

type MemberView struct {
	UserView
	IsModerator bool `json:"isModerator"`
}

type DirectRoomView struct {
	ID          int64            `json:"id"`
	Slug        string           `json:"slug"`
	Members     []MemberView     `json:"members"`
	LastMessage *EnrichedMessage `json:"lastMessage,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

type CustomRoomView struct {
	ID             int64                    `json:"id"`
	Slug           string                   `json:"slug"`
	Name           string                   `json:"name"`
	Description    *string                  `json:"description,omitempty"`
	Creator        *UserView                `json:"creator,omitempty"`
	Members        []MemberView             `json:"members"`
	Moderators     []UserView               `json:"moderators"`
	ActiveUsers    []UserView               `json:"activeUsers"`
	LastMessage    *EnrichedMessage         `json:"lastMessage,omitempty"`
	MusicQueue     []*models.MusicQueueItem `json:"musicQueue"`
	FontFamily     string                   `json:"fontFamily"`
	FontSize       int                      `json:"fontSize"`
	Rules          *string                  `json:"rules,omitempty"`
	LastActivityAt time.Time                `json:"lastActivityAt"`
	CreatedAt      time.Time                `json:"createdAt"`
}

type QueueState struct {
	RoomID     int64                    `json:"roomId"`
	Items      []*models.MusicQueueItem `json:"items"`
	NowPlaying *models.MusicQueueItem   `json:"nowPlaying,omitempty"`
}

type PollInterval struct {
	IntervalMillis int64 `json:"intervalMs"`
}

package models

import (
	"strings"
	"time"
)

type Message struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"roomId"`
	SenderID  int64     `json:"senderId"`
	Content   string    `json:"content"`
	NFTRef    *string   `json:"nftId,omitempty"`
	MediaURL  *string   `json:"mediaUrl,omitempty"`
	MediaType *string   `json:"mediaType,omitempty"`
	IsBlurred bool      `json:"isBlurred"`
	CreatedAt time.Time `json:"createdAt"`
}

func (m *Message) HasMedia() bool {
	return m.MediaURL != nil && strings.TrimSpace(*m.MediaURL) != ""
}

type Media struct {
	NFTRef    string `json:"nftId,omitempty"`
	MediaURL  string `json:"mediaUrl,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

func (m Media) Attached() bool {
	return strings.TrimSpace(m.MediaURL) != "" || strings.TrimSpace(m.NFTRef) != ""
}

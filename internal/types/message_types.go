package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	TypeMessage       MessageType = "message"
	TypeMessageUpdate MessageType = "message_update"
	TypeSystem        MessageType = "system"
)

// Envelope is what the hub moves between subscribers and across server
// instances. Payload is the already-encoded enriched message.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	Channel   string          `json:"channel"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`

	SenderServerID string `json:"sender_server_id"`
	FromRedis      bool   `json:"-"`
}

type Sender struct {
	ID            int64  `json:"id"`
	Address       string `json:"address"`
	Username      string `json:"username"`
	DisplayName   string `json:"displayName,omitempty"`
	IsSystemActor bool   `json:"isSystemActor"`
}

// EnrichedMessage is the delivery shape of a message: the stored row joined
// with its sender's current identity.
type EnrichedMessage struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"roomId"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	NFTID     *string   `json:"nftId,omitempty"`
	MediaURL  *string   `json:"mediaUrl,omitempty"`
	MediaType *string   `json:"mediaType,omitempty"`
	IsBlurred bool      `json:"isBlurred"`
	CreatedAt time.Time `json:"createdAt"`
}

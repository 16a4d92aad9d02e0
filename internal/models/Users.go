package models

import (
	"strings"
	"time"
)

// PlaceholderLength is how many leading address characters a placeholder
// username keeps.
const PlaceholderLength = 16

// SystemAddress identifies the actor that posts room announcements.
const SystemAddress = "system"

type User struct {
	ID            int64     `json:"id"`
	Address       string    `json:"address"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"displayName,omitempty"`
	IsSystemActor bool      `json:"isSystemActor"`
	CreatedAt     time.Time `json:"createdAt"`
}

// PlaceholderUsername is the username given to an address before the
// identity authority has supplied a real one.
func PlaceholderUsername(address string) string {
	if len(address) <= PlaceholderLength {
		return address
	}
	return address[:PlaceholderLength]
}

// AddressShaped reports whether username still looks like it was derived
// from address rather than chosen by its owner.
func AddressShaped(username, address string) bool {
	if username == "" {
		return false
	}
	if len(username) >= PlaceholderLength && isHex(strings.TrimPrefix(username, "0x")) {
		return true
	}
	return strings.HasPrefix(address, username)
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

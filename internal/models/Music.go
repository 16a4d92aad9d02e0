package models

import (
	"strings"
	"time"
)

type SourceType string

const (
	SourceSpotify    SourceType = "spotify"
	SourceSoundCloud SourceType = "soundcloud"
	SourceYouTube    SourceType = "youtube"
	SourceNFT        SourceType = "nft"
)

var SourceTypes = []SourceType{SourceSpotify, SourceSoundCloud, SourceYouTube, SourceNFT}

// ParseSourceType normalises s and reports whether it names a known source.
func ParseSourceType(s string) (SourceType, bool) {
	st := SourceType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range SourceTypes {
		if st == known {
			return st, true
		}
	}
	return "", false
}

type MusicQueueItem struct {
	ID         int64      `json:"id"`
	RoomID     int64      `json:"roomId"`
	SourceType SourceType `json:"sourceType"`
	SourceURL  string     `json:"sourceUrl"`
	Title      *string    `json:"title,omitempty"`
	Artist     *string    `json:"artist,omitempty"`
	Position   int        `json:"position"`
	IsPlaying  bool       `json:"isPlaying"`
	CreatedAt  time.Time  `json:"createdAt"`
}

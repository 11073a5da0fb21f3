package models

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

type PlayState string

const (
	StatePlaying PlayState = "playing"
	StatePaused  PlayState = "paused"
	StateStopped PlayState = "stopped"
)

// Track identifies a song by its tags rather than any player-internal id,
// since queue ids are not stable across player restarts.
type Track struct {
	Artist        string        `json:"artist"`
	Title         string        `json:"title"`
	Album         string        `json:"album,omitempty"`
	AlbumArtist   string        `json:"album_artist,omitempty"`
	MusicBrainzID string        `json:"mbid,omitempty"`
	Duration      time.Duration `json:"duration,omitempty"` // zero when the player doesn't report one
}

// Same reports whether two tracks share the (artist, title, album) identity
// tuple used for scrobbling purposes.
func (t Track) Same(other Track) bool {
	return t.Artist == other.Artist && t.Title == other.Title && t.Album == other.Album
}

// Key returns a compact stable identifier for logs and deduplication.
func (t Track) Key() string {
	hashString := fmt.Sprintf("%s-%s-%s", t.Artist, t.Title, t.Album)
	return fmt.Sprintf("track:%d", xxhash.Sum64String(hashString))
}

func (t Track) String() string {
	return fmt.Sprintf("%s - %s", t.Artist, t.Title)
}

// ScrobbleCandidate is a finished (or eligible) play of a track. Immutable
// once emitted by the tracker.
type ScrobbleCandidate struct {
	Track     Track         `json:"track"`
	StartedAt time.Time     `json:"started_at"`
	Listened  time.Duration `json:"listened"`
}

// Credential is an authenticated Last.fm session. Session keys have an
// infinite lifetime unless revoked by the user.
type Credential struct {
	SessionKey string    `json:"session_key"`
	Username   string    `json:"username,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

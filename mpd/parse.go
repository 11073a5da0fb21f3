package mpd

import (
	"strconv"
	"time"

	gompd "github.com/fhs/gompd/v2/mpd"

	"github.com/emm218/scritches/models"
)

func playState(state string) models.PlayState {
	switch state {
	case "play":
		return models.StatePlaying
	case "pause":
		return models.StatePaused
	default:
		return models.StateStopped
	}
}

// parseSeconds reads MPD's fractional-second fields ("elapsed", "duration").
// Anything unparseable reads as zero, which downstream treats as unknown.
func parseSeconds(value string) time.Duration {
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// trackFromSong builds a track from currentsong tags plus the status, which
// carries a more precise duration on modern servers. Untagged files fall
// back to the file path as a title; a song with neither is reported as no
// track at all.
func trackFromSong(song, status gompd.Attrs) *models.Track {
	title := song["Title"]
	if title == "" {
		title = song["file"]
	}
	if title == "" {
		return nil
	}

	track := &models.Track{
		Artist:        song["Artist"],
		Title:         title,
		Album:         song["Album"],
		AlbumArtist:   song["AlbumArtist"],
		MusicBrainzID: song["MUSICBRAINZ_TRACKID"],
	}
	if track.Artist == "" {
		track.Artist = track.AlbumArtist
	}

	if d := parseSeconds(status["duration"]); d > 0 {
		track.Duration = d
	} else if d := parseSeconds(song["duration"]); d > 0 {
		track.Duration = d
	} else if d := parseSeconds(song["Time"]); d > 0 {
		track.Duration = d
	}
	return track
}

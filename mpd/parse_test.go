package mpd

import (
	"testing"
	"time"

	gompd "github.com/fhs/gompd/v2/mpd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emm218/scritches/models"
)

func TestPlayState(t *testing.T) {
	assert.Equal(t, models.StatePlaying, playState("play"))
	assert.Equal(t, models.StatePaused, playState("pause"))
	assert.Equal(t, models.StateStopped, playState("stop"))
	assert.Equal(t, models.StateStopped, playState(""))
	assert.Equal(t, models.StateStopped, playState("garbage"))
}

func TestParseSeconds(t *testing.T) {
	assert.Equal(t, 90*time.Second, parseSeconds("90"))
	assert.Equal(t, 90*time.Second+500*time.Millisecond, parseSeconds("90.500"))
	assert.Equal(t, time.Duration(0), parseSeconds(""))
	assert.Equal(t, time.Duration(0), parseSeconds("not a number"))
	assert.Equal(t, time.Duration(0), parseSeconds("-1"))
}

func TestTrackFromSong(t *testing.T) {
	song := gompd.Attrs{
		"file":                "music/album/01 a title.flac",
		"Title":               "a title",
		"Artist":              "an artist",
		"Album":               "an album",
		"AlbumArtist":         "the album artist",
		"MUSICBRAINZ_TRACKID": "b97670b0-5a85-4a3b-bd09-e2b1e0a54bb9",
		"Time":                "200",
		"duration":            "200.381",
	}
	status := gompd.Attrs{
		"state":    "play",
		"elapsed":  "42.123",
		"duration": "200.381",
	}

	track := trackFromSong(song, status)
	require.NotNil(t, track)
	assert.Equal(t, "an artist", track.Artist)
	assert.Equal(t, "a title", track.Title)
	assert.Equal(t, "an album", track.Album)
	assert.Equal(t, "the album artist", track.AlbumArtist)
	assert.Equal(t, "b97670b0-5a85-4a3b-bd09-e2b1e0a54bb9", track.MusicBrainzID)
	assert.Equal(t, 200*time.Second+381*time.Millisecond, track.Duration)
}

func TestTrackFromSong_UntaggedFile(t *testing.T) {
	song := gompd.Attrs{
		"file": "incoming/rip.wav",
		"Time": "185",
	}

	track := trackFromSong(song, gompd.Attrs{"state": "play"})
	require.NotNil(t, track)
	assert.Equal(t, "incoming/rip.wav", track.Title)
	assert.Empty(t, track.Artist)
	assert.Equal(t, 185*time.Second, track.Duration)
}

func TestTrackFromSong_ArtistFallsBackToAlbumArtist(t *testing.T) {
	song := gompd.Attrs{
		"file":        "music/x.flac",
		"Title":       "a title",
		"AlbumArtist": "the album artist",
	}

	track := trackFromSong(song, gompd.Attrs{})
	require.NotNil(t, track)
	assert.Equal(t, "the album artist", track.Artist)
}

func TestTrackFromSong_NoSong(t *testing.T) {
	assert.Nil(t, trackFromSong(gompd.Attrs{}, gompd.Attrs{"state": "stop"}))
}

func TestTrackFromSong_StreamWithoutDuration(t *testing.T) {
	song := gompd.Attrs{
		"file":  "https://radio.example/stream",
		"Title": "live show",
	}

	track := trackFromSong(song, gompd.Attrs{"state": "play", "elapsed": "3000"})
	require.NotNil(t, track)
	assert.Equal(t, time.Duration(0), track.Duration)
}

package lastfm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emm218/scritches/models"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient("key", "secret", slog.Default())
	client.apiURL = server.URL
	return client
}

func testTrack() models.Track {
	return models.Track{
		Artist:   "an artist",
		Title:    "a title",
		Album:    "an album",
		Duration: 200 * time.Second,
	}
}

func TestAPIError_Classification(t *testing.T) {
	tests := []struct {
		code      int
		retryable bool
		auth      bool
	}{
		{4, false, true},   // authentication failed
		{6, false, false},  // invalid parameters
		{8, true, false},   // operation failed
		{9, false, true},   // invalid session key
		{11, true, false},  // service offline
		{13, false, false}, // invalid signature
		{14, false, true},  // unauthorized token
		{15, false, true},  // token expired
		{16, true, false},  // temporarily unavailable
		{29, true, false},  // rate limit exceeded
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("code %d", tt.code), func(t *testing.T) {
			err := &APIError{Code: tt.code}
			assert.Equal(t, tt.retryable, err.Retryable())
			assert.Equal(t, tt.auth, err.AuthError())
		})
	}
}

func TestIsRetryable(t *testing.T) {
	// Transport-level failures are always worth retrying.
	assert.True(t, IsRetryable(errors.New("connection refused")))

	// Wrapped API errors classify by code.
	wrapped := fmt.Errorf("submitting: %w", &APIError{Code: 16})
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(&APIError{Code: 6}))

	assert.False(t, IsRetryable(ErrUnauthenticated))
	assert.False(t, IsAuthError(errors.New("connection refused")))
	assert.True(t, IsAuthError(fmt.Errorf("submitting: %w", &APIError{Code: 9})))
}

func TestSign(t *testing.T) {
	client := NewClient("key", "secret", slog.Default())

	params := map[string]string{
		"method":  "track.scrobble",
		"track":   "a title",
		"artist":  "an artist",
		"api_key": "key",
	}

	sig := client.sign(params)
	assert.Len(t, sig, 32)
	assert.Equal(t, sig, client.sign(params))

	// The format parameter is excluded from the signature base.
	params["format"] = "json"
	assert.Equal(t, sig, client.sign(params))

	params["sk"] = "session"
	assert.NotEqual(t, sig, client.sign(params))
}

func TestClient_Scrobble(t *testing.T) {
	var form map[string]string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		fmt.Fprint(w, `{"scrobbles":{"@attr":{"accepted":1,"ignored":0}}}`)
	})

	started := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	candidate := models.ScrobbleCandidate{Track: testTrack(), StartedAt: started, Listened: 120 * time.Second}

	err := client.Scrobble(context.Background(), "session", candidate)
	require.NoError(t, err)

	assert.Equal(t, "track.scrobble", form["method"])
	assert.Equal(t, "a title", form["track"])
	assert.Equal(t, "an artist", form["artist"])
	assert.Equal(t, "an album", form["album"])
	assert.Equal(t, "200", form["duration"])
	assert.Equal(t, fmt.Sprintf("%d", started.Unix()), form["timestamp"])
	assert.Equal(t, "session", form["sk"])
	assert.Equal(t, "key", form["api_key"])
	assert.Equal(t, "json", form["format"])
	assert.Len(t, form["api_sig"], 32)
}

func TestClient_Love(t *testing.T) {
	var methods []string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		methods = append(methods, r.PostForm.Get("method"))
		fmt.Fprint(w, `{}`)
	})

	require.NoError(t, client.Love(context.Background(), "session", testTrack(), true))
	require.NoError(t, client.Love(context.Background(), "session", testTrack(), false))
	assert.Equal(t, []string{"track.love", "track.unlove"}, methods)
}

func TestClient_APIErrorInBody(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":9,"message":"Invalid session key - Please re-authenticate"}`)
	})

	err := client.UpdateNowPlaying(context.Background(), "stale", testTrack())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 9, apiErr.Code)
	assert.True(t, IsAuthError(err))
	assert.False(t, IsRetryable(err))
}

func TestClient_RateLimited(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := client.UpdateNowPlaying(context.Background(), "session", testTrack())
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsAuthError(err))
}

func TestClient_ServerError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := client.UpdateNowPlaying(context.Background(), "session", testTrack())
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestClient_GetSession(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "auth.getSession", r.PostForm.Get("method"))
		assert.Equal(t, "tok", r.PostForm.Get("token"))
		fmt.Fprint(w, `{"session":{"name":"somebody","key":"sk-123","subscriber":0}}`)
	})

	cred, err := client.GetSession(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "sk-123", cred.SessionKey)
	assert.Equal(t, "somebody", cred.Username)
	assert.False(t, cred.CreatedAt.IsZero())
}

func TestClient_AuthorizeURL(t *testing.T) {
	client := NewClient("key", "secret", slog.Default())
	assert.Equal(t,
		"https://www.last.fm/api/auth/?api_key=key&token=tok",
		client.AuthorizeURL("tok"))
}

package lastfm

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/emm218/scritches/models"
)

const DefaultAPIURL = "https://ws.audioscrobbler.com/2.0/"

// ErrUnauthenticated means no session key is available. The caller should
// start the authorization flow rather than retry.
var ErrUnauthenticated = errors.New("lastfm: no session key")

// APIError is an application-level error returned in the response body.
// Codes are defined by the Last.fm API documentation.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lastfm error %d: %s", e.Code, e.Message)
}

// Retryable reports whether the request may succeed later without changes:
// 8 (operation failed), 11 (service offline), 16 (temporarily unavailable)
// and 29 (rate limit exceeded).
func (e *APIError) Retryable() bool {
	switch e.Code {
	case 8, 11, 16, 29:
		return true
	}
	return false
}

// AuthError reports whether the session key or token is no longer usable:
// 4 (authentication failed), 9 (invalid session key), 14 (unauthorized
// token) and 15 (token expired).
func (e *APIError) AuthError() bool {
	switch e.Code {
	case 4, 9, 14, 15:
		return true
	}
	return false
}

// IsRetryable classifies an error from a client call. Transport failures are
// always worth retrying; API errors only for the transient codes.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	if errors.Is(err, ErrUnauthenticated) {
		return false
	}
	return true
}

func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.AuthError()
	}
	return false
}

// Client talks to the Last.fm web service. All mutating methods use the
// signed POST form described in the API docs.
type Client struct {
	apiKey    string
	apiSecret string
	apiURL    string
	client    *http.Client
	logger    *slog.Logger
}

func NewClient(apiKey, apiSecret string, logger *slog.Logger) *Client {
	return &Client{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		apiURL:    DefaultAPIURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
	}
}

// UpdateNowPlaying tells Last.fm what is playing right now. Harmless to
// repeat and safe to drop.
func (c *Client) UpdateNowPlaying(ctx context.Context, sessionKey string, track models.Track) error {
	params := map[string]string{
		"method": "track.updateNowPlaying",
		"sk":     sessionKey,
	}
	trackParams(params, track)
	return c.call(ctx, params, nil)
}

// Scrobble submits one finished play.
func (c *Client) Scrobble(ctx context.Context, sessionKey string, candidate models.ScrobbleCandidate) error {
	params := map[string]string{
		"method":    "track.scrobble",
		"sk":        sessionKey,
		"timestamp": fmt.Sprintf("%d", candidate.StartedAt.Unix()),
	}
	trackParams(params, candidate.Track)
	return c.call(ctx, params, nil)
}

// Love marks the track loved, or un-loves it when loved is false.
func (c *Client) Love(ctx context.Context, sessionKey string, track models.Track, loved bool) error {
	method := "track.love"
	if !loved {
		method = "track.unlove"
	}
	params := map[string]string{
		"method": method,
		"sk":     sessionKey,
		"track":  track.Title,
		"artist": track.Artist,
	}
	return c.call(ctx, params, nil)
}

func trackParams(params map[string]string, track models.Track) {
	params["track"] = track.Title
	params["artist"] = track.Artist
	if track.Album != "" {
		params["album"] = track.Album
	}
	if track.AlbumArtist != "" {
		params["albumArtist"] = track.AlbumArtist
	}
	if track.MusicBrainzID != "" {
		params["mbid"] = track.MusicBrainzID
	}
	if track.Duration > 0 {
		params["duration"] = fmt.Sprintf("%d", int(track.Duration.Seconds()))
	}
}

// GetToken fetches an unauthorized request token, the first step of the
// desktop authorization flow.
func (c *Client) GetToken(ctx context.Context) (string, error) {
	var result struct {
		Token string `json:"token"`
	}
	err := c.call(ctx, map[string]string{"method": "auth.getToken"}, &result)
	if err != nil {
		return "", err
	}
	return result.Token, nil
}

// AuthorizeURL is where the user must approve the token in a browser.
func (c *Client) AuthorizeURL(token string) string {
	return fmt.Sprintf("https://www.last.fm/api/auth/?api_key=%s&token=%s",
		url.QueryEscape(c.apiKey), url.QueryEscape(token))
}

// GetSession exchanges an approved token for a session key. Until the user
// has approved the token this fails with code 14.
func (c *Client) GetSession(ctx context.Context, token string) (models.Credential, error) {
	var result struct {
		Session struct {
			Name string `json:"name"`
			Key  string `json:"key"`
		} `json:"session"`
	}
	err := c.call(ctx, map[string]string{
		"method": "auth.getSession",
		"token":  token,
	}, &result)
	if err != nil {
		return models.Credential{}, err
	}
	return models.Credential{
		SessionKey: result.Session.Key,
		Username:   result.Session.Name,
		CreatedAt:  time.Now(),
	}, nil
}

// Authenticate runs the whole desktop flow: fetch a token, hand the approval
// URL to prompt, then poll for the session until the user approves or the
// context is cancelled.
func (c *Client) Authenticate(ctx context.Context, prompt func(authorizeURL string)) (models.Credential, error) {
	token, err := c.GetToken(ctx)
	if err != nil {
		return models.Credential{}, fmt.Errorf("failed to fetch request token: %w", err)
	}

	prompt(c.AuthorizeURL(token))

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return models.Credential{}, ctx.Err()
		case <-ticker.C:
		}

		cred, err := c.GetSession(ctx, token)
		if err != nil {
			var apiErr *APIError
			// 14: the user hasn't approved the token yet. Keep waiting.
			if errors.As(err, &apiErr) && apiErr.Code == 14 {
				continue
			}
			return models.Credential{}, err
		}

		c.logger.Info("Authenticated with Last.fm", slog.String("username", cred.Username))
		return cred, nil
	}
}

func (c *Client) call(ctx context.Context, params map[string]string, out any) error {
	params["api_key"] = c.apiKey
	params["api_sig"] = c.sign(params)
	params["format"] = "json"

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &APIError{Code: 29, Message: "rate limit exceeded"}
	}
	if resp.StatusCode >= 500 {
		return &APIError{Code: 16, Message: resp.Status}
	}

	var envelope struct {
		Error   int    `json:"error"`
		Message string `json:"message"`
	}
	body := json.NewDecoder(resp.Body)
	raw := json.RawMessage{}
	if err := body.Decode(&raw); err != nil {
		return fmt.Errorf("failed to decode lastfm response: %w", err)
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != 0 {
		return &APIError{Code: envelope.Error, Message: envelope.Message}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("lastfm error: %s", resp.Status)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode lastfm response: %w", err)
		}
	}
	return nil
}

// sign computes the api_sig parameter: md5 of the sorted key/value pairs
// followed by the shared secret. The format parameter is excluded.
func (c *Client) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "format" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sig strings.Builder
	for _, k := range keys {
		sig.WriteString(k)
		sig.WriteString(params[k])
	}
	sig.WriteString(c.apiSecret)

	hash := md5.Sum([]byte(sig.String()))
	return hex.EncodeToString(hash[:])
}

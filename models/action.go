package models

import "time"

type ActionKind string

const (
	ActionNowPlaying ActionKind = "now_playing"
	ActionScrobble   ActionKind = "scrobble"
	ActionLove       ActionKind = "love"
	ActionUnlove     ActionKind = "unlove"
)

// QueuedAction is one pending outbound request to the scrobbling service.
// Seq is assigned by the queue store and orders submission; it is never
// reused, even across restarts.
type QueuedAction struct {
	Seq        int64         `json:"-"`
	Kind       ActionKind    `json:"kind"`
	Track      Track         `json:"track"`
	StartedAt  time.Time     `json:"started_at,omitempty"`
	Listened   time.Duration `json:"listened,omitempty"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

func NowPlayingAction(t Track, now time.Time) QueuedAction {
	return QueuedAction{Kind: ActionNowPlaying, Track: t, EnqueuedAt: now}
}

func ScrobbleAction(c ScrobbleCandidate, now time.Time) QueuedAction {
	return QueuedAction{
		Kind:       ActionScrobble,
		Track:      c.Track,
		StartedAt:  c.StartedAt,
		Listened:   c.Listened,
		EnqueuedAt: now,
	}
}

func LoveAction(t Track, loved bool, now time.Time) QueuedAction {
	kind := ActionLove
	if !loved {
		kind = ActionUnlove
	}
	return QueuedAction{Kind: kind, Track: t, EnqueuedAt: now}
}

// Candidate reconstructs the scrobble candidate carried by a scrobble action.
func (a QueuedAction) Candidate() ScrobbleCandidate {
	return ScrobbleCandidate{Track: a.Track, StartedAt: a.StartedAt, Listened: a.Listened}
}

package tracker

import (
	"context"
	"log/slog"
	"time"

	"github.com/emm218/scritches/models"
)

const (
	// CommandLove and CommandUnlove are the literal command payloads
	// recognised from the player's client-to-client channel. Anything else
	// is ignored.
	CommandLove   = "love"
	CommandUnlove = "unlove"
)

// Policy holds the scrobble eligibility knobs. The defaults follow the usual
// audioscrobbler conventions but every value is tunable.
type Policy struct {
	// MinTrackLength is the shortest track that can ever be scrobbled.
	MinTrackLength time.Duration
	// AbsoluteThreshold caps how much listening a long track requires.
	// It is also the whole threshold when the track duration is unknown.
	AbsoluteThreshold time.Duration
	// RewindTolerance is how far the elapsed position may move backwards
	// before we read it as the track being restarted rather than jitter.
	RewindTolerance time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MinTrackLength:    30 * time.Second,
		AbsoluteThreshold: 240 * time.Second,
		RewindTolerance:   5 * time.Second,
	}
}

// Eligible reports whether a play with the given accumulated listened time
// qualifies for a scrobble.
func (p Policy) Eligible(duration, listened time.Duration) bool {
	if duration == 0 {
		return listened >= p.AbsoluteThreshold
	}
	if duration < p.MinTrackLength {
		return false
	}
	threshold := duration / 2
	if threshold > p.AbsoluteThreshold {
		threshold = p.AbsoluteThreshold
	}
	return listened >= threshold
}

// Enqueuer is the slice of the action queue the tracker needs.
type Enqueuer interface {
	Enqueue(action models.QueuedAction) (int64, error)
}

type session struct {
	track       models.Track
	startedAt   time.Time
	lastElapsed time.Duration
	lastSeen    time.Time
	listened    time.Duration
	announced   bool
	scrobbled   bool
}

// Tracker consumes player snapshots and command messages and turns them into
// queued actions. It owns the single playback session; all its methods must
// be called from one goroutine (Run does exactly that).
//
// Snapshots arrive on player events (play, pause, seek, track change, stop),
// not on a periodic tick, so listened time is accounted at those boundaries:
// every snapshot settles the stretch since the previous one.
type Tracker struct {
	queue  Enqueuer
	policy Policy
	logger *slog.Logger
	now    func() time.Time

	prev Snapshot
	sess *session
}

func New(queue Enqueuer, policy Policy, logger *slog.Logger) *Tracker {
	return &Tracker{
		queue:  queue,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// Run consumes snapshots and commands until the context is cancelled. An
// in-progress session is simply discarded on shutdown; a play that never
// reached eligibility is acceptably lost.
func (t *Tracker) Run(ctx context.Context, snapshots <-chan Snapshot, commands <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			t.Observe(snap)
		case cmd, ok := <-commands:
			if !ok {
				return nil
			}
			t.Command(cmd)
		}
	}
}

// Observe feeds one status snapshot through the state machine.
func (t *Tracker) Observe(snap Snapshot) {
	now := t.now()

	switch Classify(t.prev, snap, t.policy.RewindTolerance) {
	case TransitionStop:
		t.closeSession(now)
	case TransitionTrackChange, TransitionRestart:
		t.closeSession(now)
		t.start(snap, now)
	case TransitionContinue:
		if t.sess == nil {
			// Resynchronise after a missed track change.
			t.start(snap, now)
			break
		}
		t.credit(now, snap.Elapsed-t.sess.lastElapsed, true)
		t.sess.lastElapsed = snap.Elapsed
		t.sess.lastSeen = now
		t.announce(snap.State)
		t.maybeScrobble()
	}

	t.prev = snap
}

// Command handles a user-sent command message targeting the current track.
func (t *Tracker) Command(cmd string) {
	var loved bool
	switch cmd {
	case CommandLove:
		loved = true
	case CommandUnlove:
		loved = false
	default:
		t.logger.Debug("Ignoring unrecognised command", slog.String("command", cmd))
		return
	}

	if t.sess == nil {
		t.logger.Warn("Nothing is playing, dropping command", slog.String("command", cmd))
		return
	}

	t.enqueue(models.LoveAction(t.sess.track, loved, t.now()))
}

func (t *Tracker) start(snap Snapshot, now time.Time) {
	t.sess = &session{
		track:       *snap.Track,
		startedAt:   now,
		lastElapsed: snap.Elapsed,
		lastSeen:    now,
	}
	t.announce(snap.State)
}

// announce emits the session's single now-playing update, held back until the
// track is actually audible rather than sitting paused in the player.
func (t *Tracker) announce(state models.PlayState) {
	if t.sess == nil || t.sess.announced || state != models.StatePlaying {
		return
	}
	t.sess.announced = true
	t.enqueue(models.NowPlayingAction(t.sess.track, t.now()))
}

// credit settles the stretch between the previous snapshot and now. Time
// accrues only while the previous snapshot showed the track playing:
// wall-clock since then, capped at the observed position delta when the new
// snapshot is for the same track (forward seeks must not over-credit) or at
// the track's remaining length on a stop or change boundary (missed events
// must not either).
func (t *Tracker) credit(now time.Time, posDelta time.Duration, samePos bool) {
	if t.prev.State != models.StatePlaying {
		return
	}
	delta := now.Sub(t.sess.lastSeen)
	if samePos {
		if posDelta < delta {
			delta = posDelta
		}
	} else if d := t.sess.track.Duration; d > 0 {
		if remaining := d - t.sess.lastElapsed; remaining < delta {
			delta = remaining
		}
	}
	if delta > 0 {
		t.sess.listened += delta
	}
}

// maybeScrobble emits the session's scrobble once it becomes eligible. At
// most one scrobble is ever emitted per session.
func (t *Tracker) maybeScrobble() {
	if t.sess == nil || t.sess.scrobbled {
		return
	}
	if !t.policy.Eligible(t.sess.track.Duration, t.sess.listened) {
		return
	}
	t.sess.scrobbled = true
	candidate := models.ScrobbleCandidate{
		Track:     t.sess.track,
		StartedAt: t.sess.startedAt,
		Listened:  t.sess.listened,
	}
	t.enqueue(models.ScrobbleAction(candidate, t.now()))
}

// closeSession credits the final playing stretch up to this boundary event,
// emits the scrobble if the session earned one, and drops the session.
func (t *Tracker) closeSession(now time.Time) {
	if t.sess == nil {
		return
	}
	t.credit(now, 0, false)
	t.maybeScrobble()
	t.sess = nil
}

func (t *Tracker) enqueue(action models.QueuedAction) {
	if _, err := t.queue.Enqueue(action); err != nil {
		// Local storage trouble must not stop playback tracking.
		t.logger.Error("Failed to enqueue action",
			slog.String("kind", string(action.Kind)),
			slog.String("track", action.Track.String()),
			slog.String("stack", err.Error()),
		)
	}
}

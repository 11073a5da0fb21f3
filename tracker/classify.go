package tracker

import (
	"time"

	"github.com/emm218/scritches/models"
)

// Snapshot is one observation of the player's state, delivered whenever the
// player reports a change.
type Snapshot struct {
	Track   *models.Track
	Elapsed time.Duration
	State   models.PlayState
}

type Transition int

const (
	TransitionContinue Transition = iota
	TransitionTrackChange
	TransitionRestart
	TransitionStop
)

func (t Transition) String() string {
	switch t {
	case TransitionContinue:
		return "continue"
	case TransitionTrackChange:
		return "track_change"
	case TransitionRestart:
		return "restart"
	case TransitionStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Classify decides what a new snapshot means relative to the previous one.
// The player protocol does not distinguish "same track replayed from the
// start" from "seek backward", so a position drop larger than tolerance while
// playing is read as a restart. That heuristic lives here and nowhere else.
func Classify(prev, cur Snapshot, tolerance time.Duration) Transition {
	if cur.Track == nil || cur.State == models.StateStopped {
		return TransitionStop
	}
	if prev.Track == nil || !prev.Track.Same(*cur.Track) {
		return TransitionTrackChange
	}
	if cur.State == models.StatePlaying && prev.Elapsed-cur.Elapsed > tolerance {
		return TransitionRestart
	}
	return TransitionContinue
}

package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/emm218/scritches/lastfm"
	"github.com/emm218/scritches/models"
)

// batchSize matches the Last.fm batch scrobble limit.
const batchSize = 50

var errUnknownKind = errors.New("unknown action kind")

// Queue is the slice of the action store the worker consumes.
type Queue interface {
	PeekBatch(n int) ([]models.QueuedAction, error)
	Commit(seqs ...int64) error
	Wake() <-chan struct{}
}

// Service is the remote scrobbling service.
type Service interface {
	UpdateNowPlaying(ctx context.Context, sessionKey string, track models.Track) error
	Scrobble(ctx context.Context, sessionKey string, candidate models.ScrobbleCandidate) error
	Love(ctx context.Context, sessionKey string, track models.Track, loved bool) error
	Authenticate(ctx context.Context, prompt func(authorizeURL string)) (models.Credential, error)
}

// CredentialStore holds the session credential between runs.
type CredentialStore interface {
	Get() (*models.Credential, error)
	Set(cred models.Credential) error
	Clear() error
}

// Notifier tells the user when a new authorization is needed.
type Notifier interface {
	AuthorizationNeeded(authorizeURL string)
}

// Worker drains the durable queue into the remote service, strictly in
// sequence order. Actions are committed one at a time after each successful
// submission, so a crash can only ever cause a resubmission, never a loss.
type Worker struct {
	queue    Queue
	service  Service
	creds    CredentialStore
	notifier Notifier
	logger   *slog.Logger
	backoff  *backoff.ExponentialBackOff
}

func New(queue Queue, service Service, creds CredentialStore, notifier Notifier, maxInterval time.Duration, logger *slog.Logger) *Worker {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = maxInterval
	// Never give up; the queue is durable and the service will come back.
	b.MaxElapsedTime = 0

	return &Worker{
		queue:    queue,
		service:  service,
		creds:    creds,
		notifier: notifier,
		logger:   logger,
		backoff:  b,
	}
}

// Run loops until the context is cancelled: drain the queue, then sleep on
// either the wake signal or the retry timer.
func (w *Worker) Run(ctx context.Context) error {
	for {
		retry := w.drain(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}

		if retry {
			wait := w.backoff.NextBackOff()
			w.logger.Debug("Submission blocked, backing off", slog.Duration("wait", wait))
			if err := w.waitRetry(ctx, wait); err != nil {
				return err
			}
			continue
		}

		w.backoff.Reset()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.queue.Wake():
		}
	}
}

// waitRetry sleeps out a backoff interval. New work arriving in the meantime
// doesn't make the service any healthier, so wake signals are swallowed and
// only the timer (or cancellation) ends the wait.
func (w *Worker) waitRetry(ctx context.Context, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.queue.Wake():
		case <-timer.C:
			return nil
		}
	}
}

// drain submits pending actions in order until the queue is empty or
// progress is blocked. It returns true when the caller should back off and
// retry rather than wait for new work.
func (w *Worker) drain(ctx context.Context) bool {
	for {
		batch, err := w.queue.PeekBatch(batchSize)
		if err != nil {
			w.logger.Error("Failed to read pending actions", slog.String("stack", err.Error()))
			return true
		}
		if len(batch) == 0 {
			return false
		}

		cred, err := w.creds.Get()
		if err != nil {
			w.logger.Error("Failed to load credential", slog.String("stack", err.Error()))
			return true
		}
		if cred == nil {
			fresh, err := w.service.Authenticate(ctx, w.notifier.AuthorizationNeeded)
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				w.logger.Error("Authentication failed", slog.String("stack", err.Error()))
				return true
			}
			if err := w.creds.Set(fresh); err != nil {
				w.logger.Error("Failed to persist credential", slog.String("stack", err.Error()))
				return true
			}
			cred = &fresh
		}

		for _, action := range batch {
			if ctx.Err() != nil {
				return false
			}

			err := w.submit(ctx, cred.SessionKey, action)
			switch {
			case err == nil:
				if err := w.queue.Commit(action.Seq); err != nil {
					w.logger.Error("Failed to commit action", slog.String("stack", err.Error()))
					return true
				}
				w.backoff.Reset()
				w.logger.Debug("Submitted action",
					slog.String("kind", string(action.Kind)),
					slog.String("track", action.Track.String()),
				)

			case lastfm.IsAuthError(err):
				// The session was revoked. Drop the credential and
				// leave the action queued; the next pass reauthorizes.
				w.logger.Warn("Session is no longer valid, reauthorization needed",
					slog.String("stack", err.Error()))
				if err := w.creds.Clear(); err != nil {
					w.logger.Error("Failed to clear credential", slog.String("stack", err.Error()))
				}
				return true

			case errors.Is(err, errUnknownKind):
				// A record from a future (or corrupt) version. Keeping it
				// would wedge the queue head forever.
				w.logger.Error("Dropping unsubmittable action",
					slog.Int64("seq", action.Seq),
					slog.String("stack", err.Error()),
				)
				if err := w.queue.Commit(action.Seq); err != nil {
					w.logger.Error("Failed to drop action", slog.String("stack", err.Error()))
					return true
				}

			case lastfm.IsRetryable(err):
				w.logger.Warn("Submission failed, will retry",
					slog.String("kind", string(action.Kind)),
					slog.String("track", action.Track.String()),
					slog.String("stack", err.Error()),
				)
				return true

			default:
				// Permanently rejected (bad parameters and the like).
				// Drop just this action so the rest can proceed.
				w.logger.Error("Service rejected action, dropping it",
					slog.String("kind", string(action.Kind)),
					slog.String("track", action.Track.String()),
					slog.String("stack", err.Error()),
				)
				if err := w.queue.Commit(action.Seq); err != nil {
					w.logger.Error("Failed to drop action", slog.String("stack", err.Error()))
					return true
				}
			}
		}
	}
}

func (w *Worker) submit(ctx context.Context, sessionKey string, action models.QueuedAction) error {
	switch action.Kind {
	case models.ActionNowPlaying:
		return w.service.UpdateNowPlaying(ctx, sessionKey, action.Track)
	case models.ActionScrobble:
		return w.service.Scrobble(ctx, sessionKey, action.Candidate())
	case models.ActionLove:
		return w.service.Love(ctx, sessionKey, action.Track, true)
	case models.ActionUnlove:
		return w.service.Love(ctx, sessionKey, action.Track, false)
	default:
		return fmt.Errorf("%w: %q", errUnknownKind, action.Kind)
	}
}

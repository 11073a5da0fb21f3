package mpd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gompd "github.com/fhs/gompd/v2/mpd"

	"github.com/emm218/scritches/models"
	"github.com/emm218/scritches/tracker"
)

const reconnectDelay = 2 * time.Second

type Config struct {
	Network  string // "tcp" or "unix"
	Address  string
	Password string
	// Channel is the client-to-client channel watched for love/unlove
	// commands (sendmessage from any other client).
	Channel string
}

// Source maintains a connection to the music player daemon, translating its
// idle notifications into snapshots and channel messages into commands. The
// connection is supervised: any failure tears it down and a fresh one is
// dialed after a short delay, forever.
type Source struct {
	cfg    Config
	logger *slog.Logger

	snapshots chan tracker.Snapshot
	commands  chan string
}

func New(cfg Config, logger *slog.Logger) *Source {
	return &Source{
		cfg:       cfg,
		logger:    logger,
		snapshots: make(chan tracker.Snapshot, 8),
		commands:  make(chan string, 8),
	}
}

func (s *Source) Snapshots() <-chan tracker.Snapshot { return s.snapshots }

func (s *Source) Commands() <-chan string { return s.commands }

// Run supervises the connection until the context is cancelled.
func (s *Source) Run(ctx context.Context) error {
	for {
		if err := s.watch(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("Lost connection to MPD, reconnecting",
				slog.String("address", s.cfg.Address),
				slog.String("stack", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Source) dial() (*gompd.Client, error) {
	if s.cfg.Password != "" {
		return gompd.DialAuthenticated(s.cfg.Network, s.cfg.Address, s.cfg.Password)
	}
	return gompd.Dial(s.cfg.Network, s.cfg.Address)
}

// watch runs one connection's lifetime: subscribe, report the current state,
// then block on idle for player and message events until something breaks.
func (s *Source) watch(ctx context.Context) error {
	c, err := s.dial()
	if err != nil {
		return err
	}
	defer c.Close()

	// Closing the connection from the side is the only way to interrupt a
	// blocking idle when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	if err := c.Command("subscribe %s", s.cfg.Channel).OK(); err != nil {
		return fmt.Errorf("failed to subscribe to channel %q: %w", s.cfg.Channel, err)
	}

	s.logger.Info("Connected to MPD",
		slog.String("address", s.cfg.Address),
		slog.String("version", c.Version()),
	)

	// Catch up before waiting: playback may have changed while we were
	// disconnected.
	if err := s.emitSnapshot(ctx, c); err != nil {
		return err
	}

	for {
		changed, err := c.Command("idle player message").AttrsList("changed")
		if err != nil {
			return err
		}

		for _, event := range changed {
			switch event["changed"] {
			case "player":
				if err := s.emitSnapshot(ctx, c); err != nil {
					return err
				}
			case "message":
				if err := s.readMessages(ctx, c); err != nil {
					return err
				}
			}
		}
	}
}

func (s *Source) emitSnapshot(ctx context.Context, c *gompd.Client) error {
	status, err := c.Status()
	if err != nil {
		return err
	}

	snap := tracker.Snapshot{State: playState(status["state"])}
	if snap.State != models.StateStopped {
		song, err := c.CurrentSong()
		if err != nil {
			return err
		}
		snap.Track = trackFromSong(song, status)
		snap.Elapsed = parseSeconds(status["elapsed"])
	}

	select {
	case s.snapshots <- snap:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Source) readMessages(ctx context.Context, c *gompd.Client) error {
	messages, err := c.Command("readmessages").AttrsList("channel")
	if err != nil {
		return err
	}

	for _, message := range messages {
		if message["channel"] != s.cfg.Channel {
			continue
		}
		select {
		case s.commands <- message["message"]:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

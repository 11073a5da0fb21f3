package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"

	"github.com/emm218/scritches/tracker"
)

type Config struct {
	MPD       MPDConfig
	Lastfm    LastfmConfig
	Scritches ScritchesConfig
	Pushover  PushoverConfig
}

type MPDConfig struct {
	Network  string `env:"MPD_NETWORK"`
	Address  string `env:"MPD_ADDRESS"`
	Password string `env:"MPD_PASSWORD"`
	Channel  string `env:"MPD_CHANNEL"`
}

type LastfmConfig struct {
	APIKey      string `env:"LASTFM_API_KEY"`
	APISecret   string `env:"LASTFM_API_SECRET"`
	SessionPath string `env:"LASTFM_SESSION_PATH"`
}

type ScritchesConfig struct {
	DbPath   string `env:"DB_PATH"`
	LogLevel string `env:"LOG_LEVEL"`

	// All in whole seconds so they read naturally in an env file.
	MaxRetryIntervalSecs  int `env:"MAX_RETRY_INTERVAL"`
	MinTrackLengthSecs    int `env:"MIN_TRACK_LENGTH"`
	AbsoluteThresholdSecs int `env:"SCROBBLE_THRESHOLD"`
	RewindToleranceSecs   int `env:"REWIND_TOLERANCE"`
}

type PushoverConfig struct {
	Recipient string `env:"PUSHOVER_RECIPIENT"`
	Token     string `env:"PUSHOVER_TOKEN"`
}

// Load reads configuration from the environment on top of the defaults.
func Load() (Config, error) {
	cfg := defaults()

	c := config.New()
	c.AddFeeder(feeder.Env{})
	c.AddStruct(&cfg)
	if err := c.Feed(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	policy := tracker.DefaultPolicy()

	cfg := Config{
		MPD: MPDConfig{
			Network: "tcp",
			Address: "localhost:6600",
			Channel: "scritches",
		},
		Scritches: ScritchesConfig{
			MaxRetryIntervalSecs:  960,
			MinTrackLengthSecs:    int(policy.MinTrackLength.Seconds()),
			AbsoluteThresholdSecs: int(policy.AbsoluteThreshold.Seconds()),
			RewindToleranceSecs:   int(policy.RewindTolerance.Seconds()),
		},
	}

	if dir, err := os.UserConfigDir(); err == nil {
		cfg.Scritches.DbPath = filepath.Join(dir, "scritches", "queue.db")
		cfg.Lastfm.SessionPath = filepath.Join(dir, "scritches", "session.json")
	} else {
		cfg.Scritches.DbPath = "queue.db"
		cfg.Lastfm.SessionPath = "session.json"
	}

	return cfg
}

// Policy builds the tracker policy from the configured thresholds.
func (c *Config) Policy() tracker.Policy {
	return tracker.Policy{
		MinTrackLength:    time.Duration(c.Scritches.MinTrackLengthSecs) * time.Second,
		AbsoluteThreshold: time.Duration(c.Scritches.AbsoluteThresholdSecs) * time.Second,
		RewindTolerance:   time.Duration(c.Scritches.RewindToleranceSecs) * time.Second,
	}
}

func (c *Config) MaxRetryInterval() time.Duration {
	return time.Duration(c.Scritches.MaxRetryIntervalSecs) * time.Second
}

func (c *Config) GetLogLevel() slog.Leveler {
	logLevel := strings.ToLower(c.Scritches.LogLevel)
	if logLevel == "error" {
		return slog.LevelError
	}
	if logLevel == "warning" {
		return slog.LevelWarn
	}
	if logLevel == "info" {
		return slog.LevelInfo
	}
	if logLevel == "debug" {
		return slog.LevelDebug
	}
	if logLevel != "" {
		slog.With(slog.String("log_level", logLevel)).Info("Received invalid log level. Defaulting to INFO.")
	}
	return slog.LevelInfo
}

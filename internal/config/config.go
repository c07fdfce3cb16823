// Package config provides the configuration structure for the syllabs service.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Inventory sources.
const (
	SourceObjectStore = "object_store"
	SourceManifest    = "manifest"
)

const (
	defaultDebounceMillis     = 150
	defaultSessionIdleSeconds = 600
	defaultExtension          = ".wav"
)

var (
	// ErrNATSURLEmpty indicates that the NATS URL is empty.
	ErrNATSURLEmpty = errors.New("nats url cannot be empty")
	// ErrKeystrokeSubjectEmpty indicates that the keystroke subject is empty.
	ErrKeystrokeSubjectEmpty = errors.New("keystroke subject cannot be empty")
	// ErrPlaybackSubjectEmpty indicates that the playback subject is empty.
	ErrPlaybackSubjectEmpty = errors.New("playback subject cannot be empty")
	// ErrBucketEmpty indicates that the audio bucket name is empty.
	ErrBucketEmpty = errors.New("audio object store bucket cannot be empty")
	// ErrUnknownInventorySource indicates an inventory source other than object_store or manifest.
	ErrUnknownInventorySource = errors.New("unknown inventory source")
	// ErrManifestPathEmpty indicates a manifest source without a manifest path.
	ErrManifestPathEmpty = errors.New("manifest path cannot be empty for the manifest source")
	// ErrInvalidDebounce indicates a negative debounce interval.
	ErrInvalidDebounce = errors.New("debounce_ms must be non-negative")
	// ErrInvalidSessionIdle indicates a negative session idle timeout.
	ErrInvalidSessionIdle = errors.New("session_idle_seconds must be non-negative")
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	KeystrokeSubject       string `toml:"keystroke_subject"`
	PlaybackSubject        string `toml:"playback_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// InventoryConfig selects where the syllable inventory comes from.
type InventoryConfig struct {
	Source       string `toml:"source"`
	ManifestPath string `toml:"manifest_path"`
	Extension    string `toml:"extension"`
}

// InputConfig holds keystroke handling settings.
type InputConfig struct {
	DebounceMillis     int `toml:"debounce_ms"`
	SessionIdleSeconds int `toml:"session_idle_seconds"`
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS      NATSConfig      `toml:"nats"`
	Inventory InventoryConfig `toml:"inventory"`
	Input     InputConfig     `toml:"input"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Paths     PathsConfig     `toml:"paths"`
}

// Load loads the configuration for the syllabs service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFile reads the configuration from an explicit TOML file instead of the configurator
// search.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	var cfg Config

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate reports every problem found in the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.NATS.URL == "" {
		errs = append(errs, ErrNATSURLEmpty)
	}

	if c.NATS.KeystrokeSubject == "" {
		errs = append(errs, ErrKeystrokeSubjectEmpty)
	}

	if c.NATS.PlaybackSubject == "" {
		errs = append(errs, ErrPlaybackSubjectEmpty)
	}

	switch c.InventorySource() {
	case SourceObjectStore:
		if c.NATS.AudioObjectStoreBucket == "" {
			errs = append(errs, ErrBucketEmpty)
		}
	case SourceManifest:
		if c.Inventory.ManifestPath == "" {
			errs = append(errs, ErrManifestPathEmpty)
		}
	default:
		errs = append(errs, fmt.Errorf("%w: '%s'", ErrUnknownInventorySource, c.Inventory.Source))
	}

	if c.Input.DebounceMillis < 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidDebounce, c.Input.DebounceMillis))
	}

	if c.Input.SessionIdleSeconds < 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidSessionIdle, c.Input.SessionIdleSeconds))
	}

	return errors.Join(errs...)
}

// InventorySource returns the configured source, object_store when unset.
func (c *Config) InventorySource() string {
	if c.Inventory.Source == "" {
		return SourceObjectStore
	}

	return c.Inventory.Source
}

// AssetExtension returns the audio asset extension, ".wav" when unset.
func (c *Config) AssetExtension() string {
	if c.Inventory.Extension == "" {
		return defaultExtension
	}

	return c.Inventory.Extension
}

// DebounceThreshold returns the minimum interval between accepted key presses.
func (c *Config) DebounceThreshold() time.Duration {
	if c.Input.DebounceMillis == 0 {
		return defaultDebounceMillis * time.Millisecond
	}

	return time.Duration(c.Input.DebounceMillis) * time.Millisecond
}

// SessionIdleTimeout returns how long a session may stay silent before it is evicted.
func (c *Config) SessionIdleTimeout() time.Duration {
	if c.Input.SessionIdleSeconds == 0 {
		return defaultSessionIdleSeconds * time.Second
	}

	return time.Duration(c.Input.SessionIdleSeconds) * time.Second
}

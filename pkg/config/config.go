// Package config loads peerlink settings from a YAML file, the environment
// and an optional .env file.
//
// Environment variables override file values; unset fields take their
// env-default.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/backkem/peerlink/pkg/discovery"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/pion/logging"
)

// Errors.
var (
	// ErrInvalidConfig is returned when validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrInvalidLogLevel is returned for an unknown log level name.
	ErrInvalidLogLevel = errors.New("config: invalid log level")
)

// Config holds all peerlink settings.
type Config struct {
	// Name is the display name advertised to peers. Empty uses the host name.
	Name string `yaml:"name" env:"PEERLINK_NAME"`

	// PeerID is the local identifier. Empty generates one per process.
	PeerID string `yaml:"peer_id" env:"PEERLINK_PEER_ID"`

	// ServiceID selects the DNS-SD service _<ServiceID>._tcp.
	ServiceID string `yaml:"service_id" env:"PEERLINK_SERVICE_ID" env-default:"peerlink"`

	// ListenAddr is the signaling listen address when hosting.
	ListenAddr string `yaml:"listen_addr" env:"PEERLINK_LISTEN_ADDR" env-default:":0"`

	// Interfaces restricts mDNS to the named interfaces.
	Interfaces []string `yaml:"interfaces" env:"PEERLINK_INTERFACES" env-separator:","`

	Discovery DiscoveryConfig `yaml:"discovery"`
	WebRTC    WebRTCConfig    `yaml:"webrtc"`
	Media     MediaConfig     `yaml:"media"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
}

// DiscoveryConfig tunes mDNS browsing.
type DiscoveryConfig struct {
	BrowseInterval time.Duration `yaml:"browse_interval" env:"PEERLINK_BROWSE_INTERVAL" env-default:"5s"`
	PeerTTL        time.Duration `yaml:"peer_ttl" env:"PEERLINK_PEER_TTL" env-default:"15s"`
}

// WebRTCConfig configures the media connection.
type WebRTCConfig struct {
	STUNServers     []string      `yaml:"stun_servers" env:"PEERLINK_STUN_SERVERS" env-separator:","`
	IncludeLoopback bool          `yaml:"include_loopback" env:"PEERLINK_INCLUDE_LOOPBACK"`
	MediaTimeout    time.Duration `yaml:"media_timeout" env:"PEERLINK_MEDIA_TIMEOUT" env-default:"10s"`
}

// MediaConfig configures the synthetic sample pipeline.
type MediaConfig struct {
	FrameRate int `yaml:"frame_rate" env:"PEERLINK_FRAME_RATE" env-default:"30"`
	FrameSize int `yaml:"frame_size" env:"PEERLINK_FRAME_SIZE" env-default:"1200"`
}

// HTTPConfig configures the status API.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled" env:"PEERLINK_HTTP_ENABLED"`
	Address string `yaml:"address" env:"PEERLINK_HTTP_ADDRESS" env-default:"127.0.0.1:8780"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of disabled, error, warn, info, debug, trace.
	Level string `yaml:"level" env:"PEERLINK_LOG_LEVEL" env-default:"info"`
}

// Load reads path (if non-empty) and the environment, then applies
// defaults and validates.
func Load(path string) (*Config, error) {
	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads variables from an .env file into the environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Usage returns a description of the supported environment variables.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		if host, err := os.Hostname(); err == nil {
			c.Name = host
		}
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := discovery.ValidateServiceID(c.ServiceID); err != nil {
		return fmt.Errorf("%w: service_id %q: %w", ErrInvalidConfig, c.ServiceID, err)
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("%w: listen_addr %q: %v", ErrInvalidConfig, c.ListenAddr, err)
	}
	if c.Discovery.BrowseInterval <= 0 || c.Discovery.PeerTTL <= 0 {
		return fmt.Errorf("%w: discovery intervals must be positive", ErrInvalidConfig)
	}
	if c.Discovery.PeerTTL < c.Discovery.BrowseInterval {
		return fmt.Errorf("%w: peer_ttl %s shorter than browse_interval %s",
			ErrInvalidConfig, c.Discovery.PeerTTL, c.Discovery.BrowseInterval)
	}
	if c.WebRTC.MediaTimeout < 0 {
		return fmt.Errorf("%w: negative media_timeout", ErrInvalidConfig)
	}
	if c.Media.FrameRate <= 0 || c.Media.FrameRate > 120 {
		return fmt.Errorf("%w: frame_rate %d out of range 1-120", ErrInvalidConfig, c.Media.FrameRate)
	}
	if c.Media.FrameSize <= 0 {
		return fmt.Errorf("%w: frame_size must be positive", ErrInvalidConfig)
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ParseLogLevel converts a level name to a pion log level.
func ParseLogLevel(name string) (logging.LogLevel, error) {
	switch strings.ToLower(name) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info", "":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, name)
	}
}

// LoggerFactory returns a pion logger factory at the configured level.
func (c *Config) LoggerFactory() *logging.DefaultLoggerFactory {
	f := logging.NewDefaultLoggerFactory()
	if level, err := ParseLogLevel(c.Log.Level); err == nil {
		f.DefaultLogLevel = level
	}
	return f
}

// ResolveInterfaces looks up the configured interfaces by name.
func (c *Config) ResolveInterfaces() ([]net.Interface, error) {
	if len(c.Interfaces) == 0 {
		return nil, nil
	}
	ifaces := make([]net.Interface, 0, len(c.Interfaces))
	for _, name := range c.Interfaces {
		iface, err := net.InterfaceByName(strings.TrimSpace(name))
		if err != nil {
			return nil, fmt.Errorf("config: interface %q: %w", name, err)
		}
		ifaces = append(ifaces, *iface)
	}
	return ifaces, nil
}

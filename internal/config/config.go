// Package config manages gobcp daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete gobcp daemon configuration.
type Config struct {
	Status  StatusConfig  `koanf:"status"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Node    NodeConfig    `koanf:"node"`
}

// StatusConfig holds the plain HTTP status/control endpoint configuration.
type StatusConfig struct {
	// Addr is the HTTP listen address (e.g., ":8080").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// NodeConfig holds the BCP protocol engine parameters for this node.
type NodeConfig struct {
	// Addr is this node's own address, formatted "hi.lo" (e.g., "1.0").
	Addr string `koanf:"addr"`

	// Sink marks this node as the collection sink.
	Sink bool `koanf:"sink"`

	// Estimator selects the next-hop weighing function: "default" or
	// "link_aware".
	Estimator string `koanf:"weight_estimator"`

	// Channel selects the UDP radio transport's multicast group
	// (239.1.2.<channel>) when Multicast is unset; the unicast socket is
	// configured by UnicastAddr alone.
	Channel uint16 `koanf:"channel"`

	// Interface is the network interface the UDP radio transport binds
	// its sockets to (SO_BINDTODEVICE), optional.
	Interface string `koanf:"interface"`

	// BeaconInterval overrides the idle beaconing period.
	BeaconInterval time.Duration `koanf:"beacon_interval"`

	// SendTimeDelay overrides the send-queue drain cadence.
	SendTimeDelay time.Duration `koanf:"send_time_delay"`

	// RetransmissionInterval overrides the retransmission backoff unit.
	RetransmissionInterval time.Duration `koanf:"retransmission_interval"`

	// Peers lists the known neighbors' UDP endpoints for the real radio
	// transport's unicast (ack) channel. Unused by internal/radio.SimMedium.
	Peers []PeerConfig `koanf:"peers"`

	// Interface, Multicast, and UnicastAddr configure internal/radio.UDPRadio:
	// Multicast is the broadcast medium's multicast group ("239.1.2.3:5683"),
	// UnicastAddr is this node's own ack-channel bind address.
	Multicast   string `koanf:"multicast"`
	UnicastAddr string `koanf:"unicast_addr"`
}

// PeerConfig maps one neighbor's BCP address to its UDP endpoint.
type PeerConfig struct {
	// Addr is the neighbor's BCP address, "hi.lo" form.
	Addr string `koanf:"addr"`
	// Endpoint is "host:port" the neighbor's unicast socket listens on.
	Endpoint string `koanf:"endpoint"`
}

// ValidEstimators lists the recognized weight-estimator name strings.
var ValidEstimators = map[string]bool{
	"default":    true,
	"link_aware": true,
}

// ParseAddr parses a "hi.lo" node address string, e.g. "1.0" -> {1, 0}.
func ParseAddr(s string) (hi, lo byte, err error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("node address %q: %w", s, ErrInvalidNodeAddr)
	}

	hiVal, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("node address %q: %w", s, ErrInvalidNodeAddr)
	}
	loVal, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("node address %q: %w", s, ErrInvalidNodeAddr)
	}

	return byte(hiVal), byte(loVal), nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults. The
// timing defaults match the original backpressure collection protocol's
// bcp-config.h constants.
func DefaultConfig() *Config {
	return &Config{
		Status: StatusConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Node: NodeConfig{
			Estimator:              "default",
			Channel:                146,
			BeaconInterval:         5 * time.Second,
			SendTimeDelay:          50 * time.Millisecond,
			RetransmissionInterval: 2 * time.Second,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for gobcp configuration.
// Variables are named GOBCP_<section>_<key>, e.g., GOBCP_NODE_ADDR.
const envPrefix = "GOBCP_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GOBCP_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GOBCP_STATUS_ADDR   -> status.addr
//	GOBCP_METRICS_ADDR  -> metrics.addr
//	GOBCP_LOG_LEVEL     -> log.level
//	GOBCP_NODE_ADDR     -> node.addr
//	GOBCP_NODE_SINK     -> node.sink
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GOBCP_NODE_ADDR -> node.addr.
// Strips the GOBCP_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"status.addr":                  defaults.Status.Addr,
		"metrics.addr":                 defaults.Metrics.Addr,
		"metrics.path":                 defaults.Metrics.Path,
		"log.level":                    defaults.Log.Level,
		"log.format":                   defaults.Log.Format,
		"node.weight_estimator":        defaults.Node.Estimator,
		"node.channel":                 defaults.Node.Channel,
		"node.beacon_interval":         defaults.Node.BeaconInterval.String(),
		"node.send_time_delay":         defaults.Node.SendTimeDelay.String(),
		"node.retransmission_interval": defaults.Node.RetransmissionInterval.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyNodeAddr indicates the node address is empty.
	ErrEmptyNodeAddr = errors.New("node.addr must not be empty")

	// ErrInvalidNodeAddr indicates the node address is not "hi.lo" form.
	ErrInvalidNodeAddr = errors.New("node.addr must be of the form \"hi.lo\"")

	// ErrInvalidEstimator indicates an unrecognized weight estimator name.
	ErrInvalidEstimator = errors.New("node.weight_estimator must be \"default\" or \"link_aware\"")

	// ErrInvalidChannel indicates a zero channel number.
	ErrInvalidChannel = errors.New("node.channel must be > 0")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Node.Addr == "" {
		return ErrEmptyNodeAddr
	}

	if _, _, err := ParseAddr(cfg.Node.Addr); err != nil {
		return err
	}

	if cfg.Node.Estimator != "" && !ValidEstimators[cfg.Node.Estimator] {
		return ErrInvalidEstimator
	}

	if cfg.Node.Channel == 0 {
		return ErrInvalidChannel
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

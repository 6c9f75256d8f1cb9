// Package config manages meshnode daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/brightswarm/meshcore/internal/mesh"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete meshnode configuration.
type Config struct {
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Engine  EngineConfig  `koanf:"engine"`
	Nodes   []NodeConfig  `koanf:"nodes"`
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

// CandidacyCyclesConfig mirrors mesh.CandidacyCycles with koanf tags.
type CandidacyCyclesConfig struct {
	Initial uint32 `koanf:"initial"`
	Relaxed uint32 `koanf:"relaxed"`
	Final   uint32 `koanf:"final"`
}

// EngineConfig holds the mesh engine parameters shared by every
// simulated node; NodeConfig entries carry no engine overrides.
type EngineConfig struct {
	// SlotDurationMs is the wall-clock duration of one broadcast slot.
	SlotDurationMs uint32 `koanf:"slot_duration_ms"`

	// InitialTTL is the hop budget stamped on locally originated packets.
	InitialTTL uint8 `koanf:"initial_ttl"`

	// ProximityThresholdM is the Euclidean distance, in meters, at or
	// below which a forwarded packet is suppressed (the sender is "close
	// enough" that retransmission adds no coverage).
	ProximityThresholdM float64 `koanf:"proximity_threshold_m"`

	// ClusterCapacity bounds the predicted-devices-so-far (PDSF) count before
	// a clusterhead-bound packet is refused forwarding.
	ClusterCapacity uint32 `koanf:"cluster_capacity"`

	// NoisyWindowDurationMs is the duration of the direct-discovery
	// phase before a node evaluates its first role decision.
	NoisyWindowDurationMs uint32 `koanf:"noisy_window_duration_ms"`

	// DynamicCandidacyCycles configures the relaxation cadence a node
	// waits at each candidacy threshold stage.
	DynamicCandidacyCycles CandidacyCyclesConfig `koanf:"dynamic_candidacy_cycles"`
}

// NodeConfig describes one simulated node from the configuration file.
// Each entry drives one mesh.Engine inside the in-process simulation
// harness (internal/sim).
type NodeConfig struct {
	// ID is the node's 32-bit identifier. Must be nonzero and unique
	// within the Nodes slice.
	ID uint32 `koanf:"id"`

	// X, Y, Z are the node's position: its place in the simulated
	// medium and the GPS location given to its engine.
	X float64 `koanf:"x"`
	Y float64 `koanf:"y"`
	Z float64 `koanf:"z"`

	// Seed seeds the node's deterministic RNG pair. Zero means "derive
	// from ID" (see NodeConfig.EffectiveSeed).
	Seed uint32 `koanf:"seed"`
}

// EffectiveSeed returns nc.Seed, or a seed derived from nc.ID when Seed
// is zero, so that a configuration omitting per-node seeds still yields
// distinct, reproducible RNG sequences across nodes.
func (nc NodeConfig) EffectiveSeed() uint32 {
	if nc.Seed != 0 {
		return nc.Seed
	}
	return nc.ID*2654435761 + 1
}

// EngineConfig converts the on-disk engine settings plus a single node's
// ID into the mesh.Config consumed by mesh.Engine.Init.
func (c *Config) EngineConfig(node NodeConfig) mesh.Config {
	cfg := mesh.DefaultConfig(node.ID)
	cfg.SlotDurationMs = c.Engine.SlotDurationMs
	cfg.InitialTTL = c.Engine.InitialTTL
	cfg.ProximityThresholdM = c.Engine.ProximityThresholdM
	cfg.ClusterCapacity = c.Engine.ClusterCapacity
	cfg.NoisyWindowDurationMs = c.Engine.NoisyWindowDurationMs
	cfg.DynamicCandidacyCycles = mesh.CandidacyCycles{
		Initial: c.Engine.DynamicCandidacyCycles.Initial,
		Relaxed: c.Engine.DynamicCandidacyCycles.Relaxed,
		Final:   c.Engine.DynamicCandidacyCycles.Final,
	}
	return cfg
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with the protocol's documented
// defaults: a 100ms slot duration, TTL budget of 10, a 10m proximity
// suppression radius, a cluster capacity of 150 (mesh.MaxNeighbors), and
// the {6,3,1}-cycle dynamic candidacy relaxation cadence.
func DefaultConfig() *Config {
	return &Config{
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			SlotDurationMs:        mesh.DefaultSlotMs,
			InitialTTL:            10,
			ProximityThresholdM:   10.0,
			ClusterCapacity:       mesh.MaxNeighbors,
			NoisyWindowDurationMs: uint32(mesh.DefaultNoisySlots) * mesh.DefaultSlotMs,
			DynamicCandidacyCycles: CandidacyCyclesConfig{
				Initial: 6,
				Relaxed: 3,
				Final:   1,
			},
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for meshnode configuration.
// Variables are named MESH_<section>_<key>, e.g., MESH_METRICS_ADDR.
const envPrefix = "MESH_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (MESH_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	MESH_METRICS_ADDR             -> metrics.addr
//	MESH_METRICS_PATH             -> metrics.path
//	MESH_LOG_LEVEL                -> log.level
//	MESH_LOG_FORMAT               -> log.format
//	MESH_ENGINE_SLOT_DURATION_MS  -> engine.slot_duration_ms
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	// MESH_ENGINE_SLOT_DURATION_MS -> engine.slot_duration_ms.
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

// envKeyMapper transforms MESH_ENGINE_SLOT_DURATION_MS -> engine.slot_duration_ms.
// Strips the MESH_ prefix, lowercases, and replaces the first _ with the
// section/key separator.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return s
	}
	return parts[0] + "." + parts[1]
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"metrics.addr":                             defaults.Metrics.Addr,
		"metrics.path":                             defaults.Metrics.Path,
		"log.level":                                defaults.Log.Level,
		"log.format":                               defaults.Log.Format,
		"engine.slot_duration_ms":                  defaults.Engine.SlotDurationMs,
		"engine.initial_ttl":                       defaults.Engine.InitialTTL,
		"engine.proximity_threshold_m":              defaults.Engine.ProximityThresholdM,
		"engine.cluster_capacity":                  defaults.Engine.ClusterCapacity,
		"engine.noisy_window_duration_ms":          defaults.Engine.NoisyWindowDurationMs,
		"engine.dynamic_candidacy_cycles.initial":  defaults.Engine.DynamicCandidacyCycles.Initial,
		"engine.dynamic_candidacy_cycles.relaxed":  defaults.Engine.DynamicCandidacyCycles.Relaxed,
		"engine.dynamic_candidacy_cycles.final":    defaults.Engine.DynamicCandidacyCycles.Final,
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
	// ErrEmptyMetricsAddr indicates the metrics listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")

	// ErrInvalidSlotDuration indicates the slot duration is zero.
	ErrInvalidSlotDuration = errors.New("engine.slot_duration_ms must be > 0")

	// ErrInvalidProximityThreshold indicates a negative proximity radius.
	ErrInvalidProximityThreshold = errors.New("engine.proximity_threshold_m must be >= 0")

	// ErrInvalidClusterCapacity indicates a zero cluster capacity.
	ErrInvalidClusterCapacity = errors.New("engine.cluster_capacity must be > 0")

	// ErrInvalidNodeID indicates a node entry has a zero ID.
	ErrInvalidNodeID = errors.New("node id must be nonzero")

	// ErrDuplicateNodeID indicates two node entries share the same ID.
	ErrDuplicateNodeID = errors.New("duplicate node id")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}

	if cfg.Engine.SlotDurationMs == 0 {
		return ErrInvalidSlotDuration
	}

	if cfg.Engine.ProximityThresholdM < 0 {
		return ErrInvalidProximityThreshold
	}

	if cfg.Engine.ClusterCapacity == 0 {
		return ErrInvalidClusterCapacity
	}

	if err := validateNodes(cfg.Nodes); err != nil {
		return err
	}

	return nil
}

// validateNodes checks each simulated-node entry for correctness.
func validateNodes(nodes []NodeConfig) error {
	seen := make(map[uint32]struct{}, len(nodes))

	for i, nc := range nodes {
		if nc.ID == 0 {
			return fmt.Errorf("nodes[%d]: %w", i, ErrInvalidNodeID)
		}

		if _, dup := seen[nc.ID]; dup {
			return fmt.Errorf("nodes[%d] id %d: %w", i, nc.ID, ErrDuplicateNodeID)
		}
		seen[nc.ID] = struct{}{}
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

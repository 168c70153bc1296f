package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logger    LoggerConfig    `yaml:"logger"`
	Retention RetentionConfig `yaml:"retention"`
	Board     BoardConfig     `yaml:"board"`
	Mirror    MirrorConfig    `yaml:"mirror"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // API key for the query API (optional, if empty, auth is disabled)
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// RetentionConfig bounds per-host snapshot history
type RetentionConfig struct {
	WindowDays       int `yaml:"window_days"`       // sliding window anchored on each host's newest snapshot
	CapacityLimit    int `yaml:"capacity_limit"`    // count at which decimation becomes eligible
	DecimationFactor int `yaml:"decimation_factor"` // keep every N-th entry when decimation fires
}

// BoardConfig tunes the aggregate views
type BoardConfig struct {
	LivenessThresholdSeconds int      `yaml:"liveness_threshold_seconds"` // hosts silent longer than this show as disconnected
	IdleUtilizationPercent   int      `yaml:"idle_utilization_percent"`
	IdleMemoryRatio          float64  `yaml:"idle_memory_ratio"`
	IgnoredOccupants         []string `yaml:"ignored_occupants"` // system accounts excluded from occupancy views
}

// MirrorConfig optional Redis mirror of latest snapshots
type MirrorConfig struct {
	Enabled              bool   `yaml:"enabled"`
	Addr                 string `yaml:"addr"`
	Password             string `yaml:"password"`
	DB                   int    `yaml:"db"`
	FlushIntervalSeconds int    `yaml:"flush_interval_seconds"`
}

// Default tuning values. Retention constants match the original watcher
// deployment and are load-bearing for history shape, see pkg/retention.
const (
	DefaultRetentionWindowDays       = 7
	DefaultCapacityLimit             = 512
	DefaultDecimationFactor          = 5
	DefaultLivenessThresholdSeconds  = 60
	DefaultIdleUtilizationPercent    = 2
	DefaultIdleMemoryRatio           = 0.02
	DefaultMirrorFlushIntervalSecond = 30
)

// DefaultIgnoredOccupants are display-manager service accounts that hold a
// few MB of VRAM on desktop hosts without doing real work.
var DefaultIgnoredOccupants = []string{"gdm", "gdm3", "lightdm", "sddm"}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}

	validateAndApplyDefaults(&cfg)

	GlobalConfig = &cfg
	return nil
}

// Default returns a configuration populated entirely from defaults.
// Used by tests and by callers wiring the stores directly.
func Default() *Config {
	cfg := &Config{}
	validateAndApplyDefaults(cfg)
	return cfg
}

// validateAndApplyDefaults replaces missing or invalid tuning values with
// defaults. Board and retention tuning never prevents startup; a broken
// value falls back and the caller keeps running.
func validateAndApplyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = 4222
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Output == "" {
		cfg.Logger.Output = "console"
	}

	if cfg.Retention.WindowDays <= 0 {
		cfg.Retention.WindowDays = DefaultRetentionWindowDays
	}
	if cfg.Retention.CapacityLimit <= 0 {
		cfg.Retention.CapacityLimit = DefaultCapacityLimit
	}
	if cfg.Retention.DecimationFactor <= 1 {
		cfg.Retention.DecimationFactor = DefaultDecimationFactor
	}
	// A capacity below the factor would decimate histories that are still
	// tiny; treat the pair as invalid and reset both.
	if cfg.Retention.CapacityLimit < cfg.Retention.DecimationFactor {
		cfg.Retention.CapacityLimit = DefaultCapacityLimit
		cfg.Retention.DecimationFactor = DefaultDecimationFactor
	}

	if cfg.Board.LivenessThresholdSeconds <= 0 {
		cfg.Board.LivenessThresholdSeconds = DefaultLivenessThresholdSeconds
	}
	if cfg.Board.IdleUtilizationPercent < 0 || cfg.Board.IdleUtilizationPercent > 100 {
		cfg.Board.IdleUtilizationPercent = DefaultIdleUtilizationPercent
	}
	if cfg.Board.IdleMemoryRatio <= 0 || cfg.Board.IdleMemoryRatio > 1 {
		cfg.Board.IdleMemoryRatio = DefaultIdleMemoryRatio
	}
	if cfg.Board.IgnoredOccupants == nil {
		cfg.Board.IgnoredOccupants = append([]string(nil), DefaultIgnoredOccupants...)
	}

	if cfg.Mirror.FlushIntervalSeconds <= 0 {
		cfg.Mirror.FlushIntervalSeconds = DefaultMirrorFlushIntervalSecond
	}
}

// RetentionWindow returns the retention window as a duration.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.Retention.WindowDays) * 24 * time.Hour
}

// LivenessThreshold returns the disconnect threshold as a duration.
func (c *Config) LivenessThreshold() time.Duration {
	return time.Duration(c.Board.LivenessThresholdSeconds) * time.Second
}

// Package config loads the JSON configuration shared by the server, the
// capture node and the tools.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

// DefaultConfigPath is the checked-in defaults file.
const DefaultConfigPath = "config/dpd.defaults.json"

// Environment variables that override secrets in the file.
const (
	EnvMQTTPassword = "DPD_MQTT_PASSWORD"
	EnvHashSalt     = "DPD_HASH_SALT"
)

const maxFileSize = 1 << 20

// Config is the root configuration document. The aggregation settings are
// pointers so a missing key can be told apart from a zero value.
type Config struct {
	Suspicion        *SuspicionConfig `json:"suspicion_options"`
	Strength         *StrengthConfig  `json:"strength_options"`
	EstimationFactor *float64         `json:"estimation_factor"`
	Timezone         string           `json:"timezone,omitempty"`

	Database   DatabaseConfig   `json:"database"`
	Holding    HoldingConfig    `json:"holding"`
	Compaction CompactionConfig `json:"compaction"`
	MQTT       MQTTConfig       `json:"mqtt"`
	Capture    CaptureConfig    `json:"capture"`
	Logging    LoggingConfig    `json:"logging"`
	Server     ServerConfig     `json:"server"`
}

type HourBoundsConfig struct {
	Earliest *int `json:"earliest"`
	Latest   *int `json:"latest"`
}

type SuspicionConfig struct {
	Time                *HourBoundsConfig `json:"time"`
	MinPackets          *int              `json:"min_packets"`
	TimestampOccurances *int              `json:"timestamp_occurances"`
}

type BoundsConfig struct {
	Lowest  *int `json:"lowest"`
	Highest *int `json:"highest"`
}

type StrengthConfig struct {
	WiFi        *BoundsConfig `json:"wifi"`
	Bluetooth   *BoundsConfig `json:"bluetooth"`
	IncludeNull *bool         `json:"include_null"`
}

type DatabaseConfig struct {
	Path string `json:"path,omitempty"`
}

// Holding backends.
const (
	HoldingSQLite = "sqlite"
	HoldingRedis  = "redis"
)

type HoldingConfig struct {
	Backend   string `json:"backend,omitempty"`
	RedisAddr string `json:"redis_addr,omitempty"`
	RedisDB   int    `json:"redis_db,omitempty"`
	RedisKey  string `json:"redis_key,omitempty"`
}

type CompactionConfig struct {
	Interval   *string `json:"interval,omitempty"`
	ClearAfter *bool   `json:"clear_after,omitempty"`
	Persist    *bool   `json:"persist,omitempty"`
}

type MQTTConfig struct {
	Broker      string `json:"broker,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	TopicPrefix string `json:"topic_prefix,omitempty"`
	QoS         byte   `json:"qos,omitempty"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool { return m.Broker != "" }

// Capture sources.
const (
	SourceBLESerial = "ble-serial"
	SourcePCAP      = "pcap"
)

type CaptureConfig struct {
	NodeID        string   `json:"node_id,omitempty"`
	HashSalt      string   `json:"hash_salt,omitempty"`
	RSSIThreshold *int     `json:"rssi_threshold,omitempty"`
	RollingWindow *string  `json:"rolling_window,omitempty"`
	ScanInterval  *string  `json:"scan_interval,omitempty"`
	Source        string   `json:"source,omitempty"`
	SerialPort    string   `json:"serial_port,omitempty"`
	BaudRate      int      `json:"baud_rate,omitempty"`
	ScannerInit   []string `json:"scanner_init,omitempty"`
	Interface     string   `json:"interface,omitempty"`
	PCAPFile      string   `json:"pcap_file,omitempty"`
	BPFFilter     string   `json:"bpf_filter,omitempty"`

	// MaxLoops bounds the number of scan cycles; -1 runs until stopped.
	MaxLoops     *int `json:"max_loops,omitempty"`
	// InsertIntoDB writes batches straight to the database instead of MQTT.
	InsertIntoDB bool `json:"insert_into_db,omitempty"`
}

type LoggingConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"`
}

type ServerConfig struct {
	Listen      string `json:"listen,omitempty"`
	AdminListen string `json:"admin_listen,omitempty"`
	GRPCListen  string `json:"grpc_listen,omitempty"`
}

// ValidationError names the offending key with its full dotted path.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func missing(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

// Load reads, parses and validates the JSON file at path, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working directory
// or one of its parents. It panics on failure and is meant for tests and
// tools run from inside the repository.
func MustLoadDefaultConfig() *Config {
	prefix := ""
	for i := 0; i < 5; i++ {
		if cfg, err := Load(prefix + DefaultConfigPath); err == nil {
			return cfg
		}
		prefix += "../"
	}
	panic("cannot find " + DefaultConfigPath + ": run from inside the repository")
}

// ApplyEnv overrides secrets from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvMQTTPassword); ok {
		c.MQTT.Password = v
	}
	if v, ok := lookup(EnvHashSalt); ok {
		c.Capture.HashSalt = v
	}
}

// Validate checks that every aggregation key is present and every
// duration parses.
func (c *Config) Validate() error {
	var errs []error

	if s := c.Suspicion; s == nil {
		errs = append(errs, missing("suspicion_options"))
	} else {
		if s.Time == nil {
			errs = append(errs, missing("suspicion_options.time"))
		} else {
			errs = append(errs, checkHour("suspicion_options.time.earliest", s.Time.Earliest))
			errs = append(errs, checkHour("suspicion_options.time.latest", s.Time.Latest))
		}
		errs = append(errs, checkCount("suspicion_options.min_packets", s.MinPackets))
		errs = append(errs, checkCount("suspicion_options.timestamp_occurances", s.TimestampOccurances))
	}

	if s := c.Strength; s == nil {
		errs = append(errs, missing("strength_options"))
	} else {
		errs = append(errs, checkBounds("strength_options.wifi", s.WiFi))
		errs = append(errs, checkBounds("strength_options.bluetooth", s.Bluetooth))
		if s.IncludeNull == nil {
			errs = append(errs, missing("strength_options.include_null"))
		}
	}

	switch {
	case c.EstimationFactor == nil:
		errs = append(errs, missing("estimation_factor"))
	case !(*c.EstimationFactor > 0):
		errs = append(errs, &ValidationError{Field: "estimation_factor", Reason: fmt.Sprintf("must be positive, got %v", *c.EstimationFactor)})
	}

	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			errs = append(errs, &ValidationError{Field: "timezone", Reason: err.Error()})
		}
	}

	for field, d := range map[string]*string{
		"compaction.interval":    c.Compaction.Interval,
		"capture.rolling_window": c.Capture.RollingWindow,
		"capture.scan_interval":  c.Capture.ScanInterval,
	} {
		if d == nil || *d == "" {
			continue
		}
		if v, err := time.ParseDuration(*d); err != nil {
			errs = append(errs, &ValidationError{Field: field, Reason: err.Error()})
		} else if v <= 0 {
			errs = append(errs, &ValidationError{Field: field, Reason: "must be positive"})
		}
	}

	switch strings.ToLower(c.Holding.Backend) {
	case "", HoldingSQLite:
	case HoldingRedis:
		if c.Holding.RedisAddr == "" {
			errs = append(errs, missing("holding.redis_addr"))
		}
	default:
		errs = append(errs, &ValidationError{Field: "holding.backend", Reason: fmt.Sprintf("unknown backend %q", c.Holding.Backend)})
	}

	switch c.Capture.Source {
	case "", SourceBLESerial, SourcePCAP:
	default:
		errs = append(errs, &ValidationError{Field: "capture.source", Reason: fmt.Sprintf("unknown source %q", c.Capture.Source)})
	}

	return errors.Join(errs...)
}

func checkHour(field string, v *int) error {
	if v == nil {
		return missing(field)
	}
	if *v < 0 || *v > 23 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be an hour 0..23, got %d", *v)}
	}
	return nil
}

func checkCount(field string, v *int) error {
	if v == nil {
		return missing(field)
	}
	if *v < 0 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must not be negative, got %d", *v)}
	}
	return nil
}

func checkBounds(field string, b *BoundsConfig) error {
	if b == nil {
		return missing(field)
	}
	if b.Lowest == nil {
		return missing(field + ".lowest")
	}
	if b.Highest == nil {
		return missing(field + ".highest")
	}
	return nil
}

// Options converts the validated aggregation settings.
func (c *Config) Options() density.Options {
	s, st := c.Suspicion, c.Strength
	return density.Options{
		Suspicion: density.SuspicionOptions{
			Time:                 density.HourBounds{Earliest: *s.Time.Earliest, Latest: *s.Time.Latest},
			MinPackets:           *s.MinPackets,
			MaxBucketOccurrences: *s.TimestampOccurances,
		},
		Strength: density.StrengthOptions{
			WiFi:        density.Bounds{Lowest: *st.WiFi.Lowest, Highest: *st.WiFi.Highest},
			Bluetooth:   density.Bounds{Lowest: *st.Bluetooth.Lowest, Highest: *st.Bluetooth.Highest},
			IncludeNull: *st.IncludeNull,
		},
		EstimationFactor: *c.EstimationFactor,
	}
}

package config

import (
	"strings"
	"time"
)

const (
	DefaultDatabasePath  = "dpd.db"
	DefaultRedisKey      = "dpd:attendance"
	DefaultRSSIThreshold = -70
	DefaultRollingWindow = 5 * time.Minute
	DefaultScanInterval  = 15 * time.Second
	DefaultCompaction    = 30 * time.Minute
	DefaultListen        = ":8080"
	DefaultAdminListen   = "127.0.0.1:8081"
	DefaultGRPCListen    = ":9090"
	DefaultSerialPort    = "/dev/ttyACM0"
)

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func stringOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) GetDatabasePath() string { return stringOr(c.Database.Path, DefaultDatabasePath) }

func (c *Config) GetHoldingBackend() string {
	return strings.ToLower(stringOr(c.Holding.Backend, HoldingSQLite))
}

func (c *Config) GetRedisKey() string { return stringOr(c.Holding.RedisKey, DefaultRedisKey) }

func (c *Config) GetCompactionInterval() time.Duration {
	return durationOr(c.Compaction.Interval, DefaultCompaction)
}

func (c *Config) GetClearAfter() bool { return boolOr(c.Compaction.ClearAfter, true) }

func (c *Config) GetPersist() bool { return boolOr(c.Compaction.Persist, true) }

func (c *Config) GetRollingWindow() time.Duration {
	return durationOr(c.Capture.RollingWindow, DefaultRollingWindow)
}

func (c *Config) GetScanInterval() time.Duration {
	return durationOr(c.Capture.ScanInterval, DefaultScanInterval)
}

// GetRSSIThreshold returns the minimum accepted strength.
func (c *Config) GetRSSIThreshold() int {
	if c.Capture.RSSIThreshold == nil {
		return DefaultRSSIThreshold
	}
	return *c.Capture.RSSIThreshold
}

func (c *Config) GetCaptureSource() string { return stringOr(c.Capture.Source, SourceBLESerial) }

func (c *Config) GetSerialPort() string { return stringOr(c.Capture.SerialPort, DefaultSerialPort) }

// GetMaxLoops returns the scan cycle limit, -1 meaning unbounded.
func (c *Config) GetMaxLoops() int {
	if c.Capture.MaxLoops == nil {
		return -1
	}
	return *c.Capture.MaxLoops
}

func (c *Config) GetListen() string { return stringOr(c.Server.Listen, DefaultListen) }

func (c *Config) GetAdminListen() string { return stringOr(c.Server.AdminListen, DefaultAdminListen) }

func (c *Config) GetGRPCListen() string { return stringOr(c.Server.GRPCListen, DefaultGRPCListen) }

func (c *Config) GetLogLevel() string { return stringOr(c.Logging.Level, "info") }

func (c *Config) GetLogFormat() string { return stringOr(c.Logging.Format, "json") }

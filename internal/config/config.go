package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Interval bounds, matching the poll-timeout range of the event loop.
const (
	MinInterval = 100 * time.Millisecond
	MaxInterval = 255 * time.Second
)

// Config carries runtime options for cfstop. The filesystem roots exist
// so tests and machines with non-standard mounts can redirect every
// kernel input.
type Config struct {
	Interval time.Duration
	LogPath  string

	CPUAcctRoot string
	CPURoot     string
	SchedDebug  string
}

func Default() Config {
	return Config{
		Interval:    2 * time.Second,
		CPUAcctRoot: "/sys/fs/cgroup/cpuacct",
		CPURoot:     "/sys/fs/cgroup/cpu",
		SchedDebug:  "/proc/sched_debug",
	}
}

// fileConfig is the YAML shape; the interval is a duration string such
// as "500ms" or "2s", with a unitless string read as seconds.
type fileConfig struct {
	Interval    string `yaml:"interval"`
	Log         string `yaml:"log"`
	CPUAcctRoot string `yaml:"cpuacct_root"`
	CPURoot     string `yaml:"cpu_root"`
	SchedDebug  string `yaml:"sched_debug"`
}

// LoadFile overlays a YAML file onto c. Absent keys keep their values.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if fc.Interval != "" {
		d, err := parseInterval(fc.Interval)
		if err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
		c.Interval = d
	}
	if fc.Log != "" {
		c.LogPath = fc.Log
	}
	if fc.CPUAcctRoot != "" {
		c.CPUAcctRoot = fc.CPUAcctRoot
	}
	if fc.CPURoot != "" {
		c.CPURoot = fc.CPURoot
	}
	if fc.SchedDebug != "" {
		c.SchedDebug = fc.SchedDebug
	}
	return nil
}

func parseInterval(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	return time.ParseDuration(s + "s")
}

// FromEnv applies CFSTOP_* environment overrides.
func (c *Config) FromEnv() {
	if v := os.Getenv("CFSTOP_INTERVAL"); v != "" {
		if parsed, err := parseInterval(v); err == nil {
			c.Interval = parsed
		}
	}
	if v := os.Getenv("CFSTOP_LOG"); v != "" {
		c.LogPath = v
	}
	if v := os.Getenv("CFSTOP_SCHED_DEBUG"); v != "" {
		c.SchedDebug = v
	}
}

func (c *Config) Validate() error {
	if c.Interval < MinInterval || c.Interval > MaxInterval {
		return fmt.Errorf("interval %s out of range [%s, %s]", c.Interval, MinInterval, MaxInterval)
	}
	if c.CPUAcctRoot == "" || c.CPURoot == "" || c.SchedDebug == "" {
		return fmt.Errorf("cgroup and sched_debug paths must not be empty")
	}
	return nil
}

// PollTimeout is the bounded wait of the event loop, in tenths of a
// second clamped to [1, 255], expressed as a duration.
func (c *Config) PollTimeout() time.Duration {
	tenths := int(c.Interval / MinInterval)
	if tenths < 1 {
		tenths = 1
	}
	if tenths > 255 {
		tenths = 255
	}
	return time.Duration(tenths) * MinInterval
}

// File: internal/config/config.go
// Author: momentics <momentics@gmail.com>

// Package config provides configuration types and defaults for procrun.
package config

import "time"

// Config holds every procrun setting.
type Config struct {
	// PollTimeoutMs is the reactor wait; negative waits forever.
	PollTimeoutMs int `toml:"poll_timeout_ms" mapstructure:"poll_timeout_ms"`
	// IdleLimit aborts a run after this many consecutive empty waits (0 = never).
	IdleLimit           int           `toml:"idle_limit" mapstructure:"idle_limit"`
	ReapTimeout         time.Duration `toml:"reap_timeout" mapstructure:"reap_timeout"`
	StdinWriteTimeoutMs int           `toml:"stdin_write_timeout_ms" mapstructure:"stdin_write_timeout_ms"`

	Capture string `toml:"capture" mapstructure:"capture"` // stdio, memory, file or null
	OutFile string `toml:"out_file" mapstructure:"out_file"`
	Dir     string `toml:"dir" mapstructure:"dir"`
	// CPU pins the supervisor and child to one CPU; negative disables.
	CPU int `toml:"cpu" mapstructure:"cpu"`

	ReportPath  string `toml:"report_path" mapstructure:"report_path"`
	MetricsFile string `toml:"metrics_file" mapstructure:"metrics_file"`

	Log LogConfig `toml:"log" mapstructure:"log"`
}

// LogConfig selects level and destination of the procrun log.
type LogConfig struct {
	Level    string            `toml:"level" mapstructure:"level"`
	File     string            `toml:"file" mapstructure:"file"` // empty logs to stderr
	Rotation LogRotationConfig `toml:"rotation" mapstructure:"rotation"`
}

// LogRotationConfig holds lumberjack rotation settings for Log.File.
type LogRotationConfig struct {
	MaxSizeMB  int  `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int  `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool `toml:"compress" mapstructure:"compress"`
}

// Capture modes.
const (
	CaptureStdio  = "stdio"
	CaptureMemory = "memory"
	CaptureFile   = "file"
	CaptureNull   = "null"
)

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		PollTimeoutMs:       -1,
		ReapTimeout:         10 * time.Second,
		StdinWriteTimeoutMs: 10_000,
		Capture:             CaptureStdio,
		CPU:                 -1,
		Log: LogConfig{
			Level: "info",
			Rotation: LogRotationConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 7,
			},
		},
	}
}

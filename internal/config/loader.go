// File: internal/config/loader.go
// Author: momentics <momentics@gmail.com>

package config

import (
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PROCRUN_REAP_TIMEOUT.
const EnvPrefix = "PROCRUN"

// LoadConfig loads configuration. Precedence (later overrides earlier):
//  1. Default() values
//  2. the TOML file named by the "config" key (--config or PROCRUN_CONFIG)
//  3. environment variables (PROCRUN_*)
//  4. CLI flags already bound to v
func LoadConfig(v *viper.Viper) (*Config, error) {
	cfg := Default()

	defaultMap, err := structToMap(cfg)
	if err != nil {
		return nil, err
	}
	if err := v.MergeConfigMap(defaultMap); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		if err := loadConfigFile(v, path); err != nil {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg, viperDecodeHook()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no run could honor.
func (c *Config) Validate() error {
	if !slices.Contains([]string{CaptureStdio, CaptureMemory, CaptureFile, CaptureNull}, c.Capture) {
		return fmt.Errorf("config: unknown capture mode %q", c.Capture)
	}
	if c.Capture == CaptureFile && c.OutFile == "" {
		return fmt.Errorf("config: capture mode %q needs out_file", c.Capture)
	}
	if c.ReapTimeout < 0 {
		return fmt.Errorf("config: negative reap_timeout %v", c.ReapTimeout)
	}
	if c.IdleLimit > 0 && c.PollTimeoutMs < 0 {
		return fmt.Errorf("config: idle_limit needs a poll_timeout_ms")
	}
	return nil
}

// loadConfigFile merges a TOML file into v. An explicitly named file must exist.
func loadConfigFile(v *viper.Viper, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = file.Close() }()

	fileViper := viper.New()
	fileViper.SetConfigType("toml")
	if err := fileViper.ReadConfig(file); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return v.MergeConfigMap(fileViper.AllSettings())
}

// viperDecodeHook returns the decoder option with duration parsing.
func viperDecodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
}

// structToMap converts cfg to a nested map for viper.MergeConfigMap.
func structToMap(cfg *Config) (map[string]interface{}, error) {
	result := make(map[string]interface{})

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "mapstructure",
		Result:     &result,
		DecodeHook: durationToStringHook(),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(cfg); err != nil {
		return nil, err
	}
	return result, nil
}

func durationToStringHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if from != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return data.(time.Duration).String(), nil
	}
}

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/ini.v1"
)

// LoadFromINI loads configuration from an ini file. Missing keys keep
// their defaults; an empty path returns the defaults.
func LoadFromINI(path string) (*Config, error) {
	config := NewDefaultConfig()
	if path == "" {
		return config, nil
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Locate
	section := cfg.Section("Locate")
	config.Locate.Confidence = section.Key("confidence").MustFloat64(config.Locate.Confidence)
	config.Locate.Stride = section.Key("stride").MustInt(config.Locate.Stride)
	config.Locate.Workers = section.Key("workers").MustInt(config.Locate.Workers)
	config.Locate.DebugDir = section.Key("debugDir").MustString(config.Locate.DebugDir)

	// Motion
	section = cfg.Section("Motion")
	config.Motion.Duration = millis(section.Key("durationMs").MustInt64(config.Motion.Duration.Milliseconds()))
	config.Motion.SpinThreshold = time.Duration(section.Key("spinThresholdUs").
		MustInt64(config.Motion.SpinThreshold.Microseconds())) * time.Microsecond

	// Capture
	section = cfg.Section("Capture")
	config.Capture.Backend = section.Key("backend").In(config.Capture.Backend, []string{BackendDesktop, BackendADB})
	config.Capture.UseCache = section.Key("useCache").MustBool(config.Capture.UseCache)
	config.Capture.CacheDuration = millis(section.Key("cacheMs").MustInt64(config.Capture.CacheDuration.Milliseconds()))
	config.Capture.PollInterval = millis(section.Key("pollIntervalMs").MustInt64(config.Capture.PollInterval.Milliseconds()))
	config.Capture.SkipUnchanged = section.Key("skipUnchanged").MustBool(config.Capture.SkipUnchanged)
	config.Capture.SaveDir = section.Key("saveDir").MustString(config.Capture.SaveDir)

	// ADB
	section = cfg.Section("ADB")
	config.ADB.Path = section.Key("path").MustString(config.ADB.Path)
	config.ADB.Device = section.Key("device").MustString(config.ADB.Device)
	config.ADB.Timeout = millis(section.Key("timeoutMs").MustInt64(config.ADB.Timeout.Milliseconds()))

	// Logging
	section = cfg.Section("Logging")
	config.Logging.Level = section.Key("level").MustString(config.Logging.Level)
	config.Logging.File = section.Key("file").MustString(config.Logging.File)
	config.Logging.NoColor = section.Key("noColor").MustBool(config.Logging.NoColor)

	// Database
	section = cfg.Section("Database")
	config.Database.Enabled = section.Key("enabled").MustBool(config.Database.Enabled)
	config.Database.Path = section.Key("path").MustString(config.Database.Path)

	// Templates
	section = cfg.Section("Templates")
	config.Templates.Dir = section.Key("dir").MustString(config.Templates.Dir)
	config.Templates.Preload = section.Key("preload").MustBool(config.Templates.Preload)
	config.Templates.Cache = section.Key("cache").MustBool(config.Templates.Cache)

	return config, nil
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func toINI(config *Config) *ini.File {
	cfg := ini.Empty()

	section := cfg.Section("Locate")
	section.Key("confidence").SetValue(strconv.FormatFloat(config.Locate.Confidence, 'g', -1, 64))
	section.Key("stride").SetValue(strconv.Itoa(config.Locate.Stride))
	section.Key("workers").SetValue(strconv.Itoa(config.Locate.Workers))
	section.Key("debugDir").SetValue(config.Locate.DebugDir)

	section = cfg.Section("Motion")
	section.Key("durationMs").SetValue(fmt.Sprintf("%d", config.Motion.Duration.Milliseconds()))
	section.Key("spinThresholdUs").SetValue(fmt.Sprintf("%d", config.Motion.SpinThreshold.Microseconds()))

	section = cfg.Section("Capture")
	section.Key("backend").SetValue(config.Capture.Backend)
	section.Key("useCache").SetValue(fmt.Sprintf("%t", config.Capture.UseCache))
	section.Key("cacheMs").SetValue(fmt.Sprintf("%d", config.Capture.CacheDuration.Milliseconds()))
	section.Key("pollIntervalMs").SetValue(fmt.Sprintf("%d", config.Capture.PollInterval.Milliseconds()))
	section.Key("skipUnchanged").SetValue(fmt.Sprintf("%t", config.Capture.SkipUnchanged))
	section.Key("saveDir").SetValue(config.Capture.SaveDir)

	section = cfg.Section("ADB")
	section.Key("path").SetValue(config.ADB.Path)
	section.Key("device").SetValue(config.ADB.Device)
	section.Key("timeoutMs").SetValue(fmt.Sprintf("%d", config.ADB.Timeout.Milliseconds()))

	section = cfg.Section("Logging")
	section.Key("level").SetValue(config.Logging.Level)
	section.Key("file").SetValue(config.Logging.File)
	section.Key("noColor").SetValue(fmt.Sprintf("%t", config.Logging.NoColor))

	section = cfg.Section("Database")
	section.Key("enabled").SetValue(fmt.Sprintf("%t", config.Database.Enabled))
	section.Key("path").SetValue(config.Database.Path)

	section = cfg.Section("Templates")
	section.Key("dir").SetValue(config.Templates.Dir)
	section.Key("preload").SetValue(fmt.Sprintf("%t", config.Templates.Preload))
	section.Key("cache").SetValue(fmt.Sprintf("%t", config.Templates.Cache))

	return cfg
}

// WriteINI writes configuration in ini form to w
func WriteINI(config *Config, w io.Writer) error {
	_, err := toINI(config).WriteTo(w)
	return err
}

// SaveToINI saves configuration to an ini file
func SaveToINI(config *Config, path string) error {
	cfg := toINI(config)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := cfg.SaveTo(path); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

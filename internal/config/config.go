// Package config loads and validates echotrim settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SchedulerConfig paces the background compression loop.
type SchedulerConfig struct {
	StartupDelaySeconds int `json:"startup_delay_seconds"` // grace delay after daemon launch
	IdlePollSeconds     int `json:"idle_poll_seconds"`     // scan interval with no work
	InterJobSeconds     int `json:"inter_job_seconds"`     // pause between recordings
}

// Config holds all echotrim configuration.
type Config struct {
	FFmpegPath         string          `json:"ffmpeg_path"`
	RecordingsRoot     string          `json:"recordings_root"`
	CompressionFormat  string          `json:"compression_format"` // "flac" or "opus"
	DeleteOriginals    bool            `json:"delete_originals,omitempty"`
	TimeoutSeconds     int             `json:"transcode_timeout_seconds"`
	MinPlayableSeconds float64         `json:"min_playable_seconds"`
	SilenceThreshold   float64         `json:"silence_threshold"`
	MinSilenceSeconds  float64         `json:"min_silence_seconds"`
	WaveformBuckets    int             `json:"waveform_buckets"`
	Mixdown            string          `json:"mixdown"` // "peak" or "rms"
	ListenAddr         string          `json:"listen_addr,omitempty"`
	Scheduler          SchedulerConfig `json:"scheduler"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		FFmpegPath:         "ffmpeg",
		RecordingsRoot:     filepath.Join(os.Getenv("HOME"), "Recordings"),
		CompressionFormat:  "flac",
		TimeoutSeconds:     300,
		MinPlayableSeconds: 1.0,
		SilenceThreshold:   0.01,
		MinSilenceSeconds:  2.0,
		WaveformBuckets:    800,
		Mixdown:            "peak",
		ListenAddr:         "127.0.0.1:8390",
		Scheduler: SchedulerConfig{
			StartupDelaySeconds: 30,
			IdlePollSeconds:     60,
			InterJobSeconds:     5,
		},
	}
}

// DefaultPath returns ~/.config/echotrim/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "echotrim", "config.json")
}

// Load reads configuration from path ("" means DefaultPath). A missing file
// yields the defaults rather than an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Start from defaults so absent fields keep their built-in values.
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to path ("" means DefaultPath), creating the
// config directory if needed.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks Config for validity.
func (c *Config) Validate() error {
	if c.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path must not be empty")
	}
	if c.CompressionFormat != "flac" && c.CompressionFormat != "opus" {
		return fmt.Errorf("compression_format must be flac or opus, got %q", c.CompressionFormat)
	}
	if c.TimeoutSeconds < 1 {
		return fmt.Errorf("transcode_timeout_seconds must be at least 1, got %d", c.TimeoutSeconds)
	}
	if c.MinPlayableSeconds <= 0 {
		return fmt.Errorf("min_playable_seconds must be positive, got %g", c.MinPlayableSeconds)
	}
	if c.SilenceThreshold <= 0 || c.SilenceThreshold >= 1 {
		return fmt.Errorf("silence_threshold must be in (0, 1), got %g", c.SilenceThreshold)
	}
	if c.MinSilenceSeconds <= 0 {
		return fmt.Errorf("min_silence_seconds must be positive, got %g", c.MinSilenceSeconds)
	}
	if c.WaveformBuckets < 1 {
		return fmt.Errorf("waveform_buckets must be at least 1, got %d", c.WaveformBuckets)
	}
	if c.Mixdown != "peak" && c.Mixdown != "rms" {
		return fmt.Errorf("mixdown must be peak or rms, got %q", c.Mixdown)
	}
	if c.Scheduler.StartupDelaySeconds < 0 {
		return fmt.Errorf("startup_delay_seconds must not be negative, got %d", c.Scheduler.StartupDelaySeconds)
	}
	if c.Scheduler.IdlePollSeconds < 1 {
		return fmt.Errorf("idle_poll_seconds must be at least 1, got %d", c.Scheduler.IdlePollSeconds)
	}
	if c.Scheduler.InterJobSeconds < 0 {
		return fmt.Errorf("inter_job_seconds must not be negative, got %d", c.Scheduler.InterJobSeconds)
	}
	return nil
}

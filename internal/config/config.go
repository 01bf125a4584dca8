package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"` // bearer key guarding admin routes
	// BaseURL is used to build the public fetch URL for finalized audio.
	BaseURL string `yaml:"base_url"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"` // empty disables the upload rate limiter
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RateLimitConfig struct {
	UploadsPerWindow int           `yaml:"uploads_per_window"`
	Window           time.Duration `yaml:"window"`
}

type StorageConfig struct {
	UploadDir    string `yaml:"upload_dir"`    // raw sources and chunk sets, per-id
	WavDir       string `yaml:"wav_dir"`       // intermediate canonical WAVs
	ProcessedDir string `yaml:"processed_dir"` // durable denoised output
}

type TranscodeConfig struct {
	FFmpegBin  string        `yaml:"ffmpeg_bin"` // defaults to "ffmpeg" on PATH
	SampleRate int           `yaml:"sample_rate"`
	Bitrate    string        `yaml:"bitrate"` // fallback concat re-encode bitrate
	Timeout    time.Duration `yaml:"timeout"`
}

type DenoiseConfig struct {
	URL       string        `yaml:"url"`
	Intensity float64       `yaml:"intensity"`
	Timeout   time.Duration `yaml:"timeout"`
	// RetryInterval drives the background re-dispatch worker; zero disables it.
	RetryInterval time.Duration `yaml:"retry_interval"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Storage   StorageConfig   `yaml:"storage"`
	Transcode TranscodeConfig `yaml:"transcode"`
	Denoise   DenoiseConfig   `yaml:"denoise"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "data/uploads"
	}
	if cfg.Storage.WavDir == "" {
		cfg.Storage.WavDir = "data/temp_wavs"
	}
	if cfg.Storage.ProcessedDir == "" {
		cfg.Storage.ProcessedDir = "data/processed"
	}
	if cfg.Transcode.FFmpegBin == "" {
		cfg.Transcode.FFmpegBin = "ffmpeg"
	}
	if cfg.Transcode.SampleRate == 0 {
		cfg.Transcode.SampleRate = 44100
	}
	if cfg.Transcode.Bitrate == "" {
		cfg.Transcode.Bitrate = "192k"
	}
	if cfg.Transcode.Timeout <= 0 {
		cfg.Transcode.Timeout = 2 * time.Minute
	}
	if cfg.Denoise.Intensity == 0 {
		cfg.Denoise.Intensity = 1.0
	}
	if cfg.Denoise.Timeout <= 0 {
		cfg.Denoise.Timeout = 5 * time.Minute
	}
	if cfg.RateLimit.UploadsPerWindow <= 0 {
		cfg.RateLimit.UploadsPerWindow = 30
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = time.Minute
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Denoise.URL == "" {
		return nil, errors.New("denoise.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all settings for the voice client.
type Config struct {
	// Backend API
	APIBaseURL string `envconfig:"API_BASE_URL" default:"http://localhost:8000/api"`
	AuthToken  string `envconfig:"AUTH_TOKEN"`

	// Voice pipeline
	SampleRate        int           `envconfig:"SAMPLE_RATE" default:"16000"`
	SilenceThreshold  float64       `envconfig:"SILENCE_THRESHOLD" default:"30"`    // 0-255 energy scale
	SilenceDuration   time.Duration `envconfig:"SILENCE_DURATION" default:"1200ms"` // 1.2s-2.0s
	MaxRecordDuration time.Duration `envconfig:"MAX_RECORD_DURATION" default:"30s"` // hard safety stop
	FrameInterval     time.Duration `envconfig:"FRAME_INTERVAL" default:"16ms"`     // energy sampling cadence

	// Playback / synthesis
	UseRemoteTTS       bool `envconfig:"USE_REMOTE_TTS" default:"true"`
	PlaybackSampleRate int  `envconfig:"PLAYBACK_SAMPLE_RATE" default:"48000"`

	// Diagnostics
	DiagAddress string `envconfig:"DIAG_ADDRESS" default:":8090"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty   bool   `envconfig:"LOG_PRETTY" default:"false"`

	// Local cache
	CachePath    string `envconfig:"CACHE_PATH" default:"nonotalk-cache.sqlite"`
	CacheEntries int    `envconfig:"CACHE_ENTRIES" default:"10"` // recent messages kept per conversation
}

// Load reads .env (best effort) then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.SilenceDuration < 200*time.Millisecond {
		return nil, fmt.Errorf("SILENCE_DURATION too short: %s", cfg.SilenceDuration)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("SAMPLE_RATE must be positive")
	}
	return &cfg, nil
}

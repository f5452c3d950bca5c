package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the desktop app.
type Config struct {
	Deepgram DeepgramConfig
	Audio    AudioConfig
	Storage  StorageConfig
	Rules    RulesConfig
	Session  SessionConfig
	LogMode  string
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

type AudioConfig struct {
	FFmpegCommand  string
	FFprobeCommand string
	InputFormat    string
	InputDevice    string
	SampleRate     int
	Channels       int
}

type StorageConfig struct {
	DatabasePath  string
	RecordingsDir string
}

type RulesConfig struct {
	Path string
}

type SessionConfig struct {
	ChunkSize      int
	StreamingGrace time.Duration
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	dataDir := envOrDefault("NOTEDECK_DATA_DIR", filepath.Join(home, ".local", "share", "notedeck"))
	rulesPath := strings.TrimSpace(os.Getenv("NOTEDECK_RULES_FILE"))
	if rulesPath == "" {
		rulesPath = filepath.Join(home, ".config", "notedeck", "noise.rules")
	}

	cfg := Config{
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:    strings.TrimSpace(os.Getenv("DEEPGRAM_LANGUAGE")),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
		},
		Audio: AudioConfig{
			FFmpegCommand:  envOrDefault("NOTEDECK_FFMPEG_COMMAND", "ffmpeg"),
			FFprobeCommand: envOrDefault("NOTEDECK_FFPROBE_COMMAND", "ffprobe"),
			InputFormat:    envOrDefault("NOTEDECK_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:    envOrDefault("NOTEDECK_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:     envOrDefaultInt("NOTEDECK_SAMPLE_RATE", 16000),
			Channels:       envOrDefaultInt("NOTEDECK_CHANNELS", 1),
		},
		Storage: StorageConfig{
			DatabasePath:  envOrDefault("NOTEDECK_DB_PATH", filepath.Join(dataDir, "note67.db")),
			RecordingsDir: envOrDefault("NOTEDECK_RECORDINGS_DIR", filepath.Join(dataDir, "recordings")),
		},
		Rules: RulesConfig{
			Path: rulesPath,
		},
		Session: SessionConfig{
			ChunkSize:      envOrDefaultInt("NOTEDECK_AUDIO_CHUNK_SIZE", 4096),
			StreamingGrace: time.Duration(envOrDefaultInt("NOTEDECK_STREAMING_GRACE_MS", 1000)) * time.Millisecond,
		},
		LogMode: envOrDefault("NOTEDECK_LOG_MODE", "production"),
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Session.StreamingGrace < 0 {
		cfg.Session.StreamingGrace = time.Second
	}

	return cfg, nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

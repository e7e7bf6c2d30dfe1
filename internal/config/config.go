// Package config handles recorder configuration.
// Values come from built-in defaults, then an optional YAML file, then the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
)

// DefaultFile is read when no --config path is given and it exists.
const DefaultFile = "meetscribe.yaml"

// Analyzer names, in display order.
var DefaultAnalyzers = []string{"summary", "themes", "insights", "questions", "action_items"}

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Audio    AudioConfig    `yaml:"audio"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Backend  BackendConfig  `yaml:"backend"`
	Speaker  SpeakerConfig  `yaml:"speaker"`
	Store    StoreConfig    `yaml:"store"`
	Journal  JournalConfig  `yaml:"journal"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type AudioConfig struct {
	Device         string  `yaml:"device"`
	SampleRate     int     `yaml:"sample_rate"`
	Channels       int     `yaml:"channels"`
	FramesPerRead  int     `yaml:"frames_per_read"`
	SegmentSeconds float64 `yaml:"segment_seconds"`
	OverlapSeconds float64 `yaml:"overlap_seconds"`
	QueueSize      int     `yaml:"queue_size"`
	TempDir        string  `yaml:"temp_dir"`
}

type PipelineConfig struct {
	Workers          int           `yaml:"workers"`
	FlushInterval    time.Duration `yaml:"flush_interval"`
	TextQueueSize    int           `yaml:"text_queue_size"`
	SettleDelay      time.Duration `yaml:"settle_delay"`
	FinalPolish      bool          `yaml:"final_polish"`
	RateLimitRetries int           `yaml:"rate_limit_retries"`
	RateLimitBackoff time.Duration `yaml:"rate_limit_backoff"`
	Analyzers        []string      `yaml:"analyzers"`
}

type BackendConfig struct {
	// Provider is "openai", "sidecar" or "offline".
	Provider        string        `yaml:"provider"`
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"-"`
	ChatModel       string        `yaml:"chat_model"`
	TranscribeModel string        `yaml:"transcribe_model"`
	Temperature     float64       `yaml:"temperature"`
	Timeout         time.Duration `yaml:"timeout"`
	SidecarAddr     string        `yaml:"sidecar_addr"`
}

type SpeakerConfig struct {
	// Mode is "local", "sidecar" or "off".
	Mode         string  `yaml:"mode"`
	ProfilesPath string  `yaml:"profiles_path"`
	Tolerance    float64 `yaml:"tolerance"`
}

type StoreConfig struct {
	// Driver is "mongo", "postgres", "redis", "file" or "none".
	Driver      string `yaml:"driver"`
	MongoURI    string `yaml:"mongo_uri"`
	MongoDB     string `yaml:"mongo_db"`
	PostgresURL string `yaml:"postgres_url"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
	FilePath    string `yaml:"file_path"`
}

type JournalConfig struct {
	Path string `yaml:"path"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{Addr: ":8000"},
		Log:  LogConfig{Level: "info"},
		Audio: AudioConfig{
			SampleRate:     16000,
			Channels:       1,
			FramesPerRead:  1024,
			SegmentSeconds: 5,
			OverlapSeconds: 0.5,
			QueueSize:      32,
			TempDir:        filepath.Join(os.TempDir(), "meetscribe"),
		},
		Pipeline: PipelineConfig{
			Workers:          15,
			FlushInterval:    5 * time.Second,
			TextQueueSize:    256,
			SettleDelay:      2 * time.Second,
			FinalPolish:      true,
			RateLimitRetries: 10,
			RateLimitBackoff: 6 * time.Second,
			Analyzers:        append([]string(nil), DefaultAnalyzers...),
		},
		Backend: BackendConfig{
			Provider:        "openai",
			BaseURL:         "https://api.openai.com/v1",
			ChatModel:       "gpt-4o-2024-08-06",
			TranscribeModel: "whisper-1",
			Temperature:     0.1,
			Timeout:         60 * time.Second,
			SidecarAddr:     "localhost:50051",
		},
		Speaker: SpeakerConfig{
			Mode:         "local",
			ProfilesPath: filepath.Join("voice_profiles", "voice_profiles.json"),
			Tolerance:    0.6,
		},
		Store: StoreConfig{
			Driver:   "file",
			MongoDB:  "meetscribe",
			FilePath: filepath.Join("storage", "meetings.json"),
		},
		Journal: JournalConfig{Path: filepath.Join("storage", "BackendLog.json")},
	}
}

// Load builds the configuration. An empty path falls back to DefaultFile when present.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Wrapf(err, apperrors.CodeConfig, "parse %s", path)
		}
	case explicit || !os.IsNotExist(err):
		return nil, apperrors.Wrapf(err, apperrors.CodeConfig, "read %s", path)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	c.Audio.Device = getEnv("AUDIO_DEVICE", c.Audio.Device)
	c.Audio.SampleRate = getEnvInt("SAMPLE_RATE", c.Audio.SampleRate)
	c.Audio.SegmentSeconds = getEnvFloat("SEGMENT_SECONDS", c.Audio.SegmentSeconds)
	c.Audio.OverlapSeconds = getEnvFloat("OVERLAP_SECONDS", c.Audio.OverlapSeconds)
	c.Audio.TempDir = getEnv("AUDIO_TEMP_DIR", c.Audio.TempDir)

	c.Pipeline.Workers = getEnvInt("MAX_WORKERS", c.Pipeline.Workers)
	c.Pipeline.FlushInterval = getEnvDuration("FLUSH_INTERVAL", c.Pipeline.FlushInterval)
	c.Pipeline.SettleDelay = getEnvDuration("SETTLE_DELAY", c.Pipeline.SettleDelay)
	c.Pipeline.FinalPolish = getEnvBool("FINAL_POLISH", c.Pipeline.FinalPolish)
	c.Pipeline.Analyzers = getEnvList("ANALYZERS", c.Pipeline.Analyzers)

	c.Backend.Provider = getEnv("BACKEND_PROVIDER", c.Backend.Provider)
	c.Backend.BaseURL = getEnv("OPENAI_BASE_URL", c.Backend.BaseURL)
	c.Backend.APIKey = getEnv("OPENAI_API_KEY", c.Backend.APIKey)
	c.Backend.ChatModel = getEnv("OPENAI_CHAT_MODEL", c.Backend.ChatModel)
	c.Backend.SidecarAddr = getEnv("INFERENCE_ADDR", c.Backend.SidecarAddr)

	c.Speaker.Mode = getEnv("SPEAKER_MODE", c.Speaker.Mode)
	c.Speaker.ProfilesPath = getEnv("VOICE_PROFILES", c.Speaker.ProfilesPath)

	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.MongoURI = getEnv("MONGO_URI", c.Store.MongoURI)
	c.Store.MongoDB = getEnv("MONGO_DB_NAME", c.Store.MongoDB)
	c.Store.PostgresURL = getEnv("DATABASE_URL", c.Store.PostgresURL)
	c.Store.RedisAddr = getEnv("REDIS_ADDR", c.Store.RedisAddr)
	c.Store.FilePath = getEnv("MEETINGS_FILE", c.Store.FilePath)

	c.Journal.Path = getEnv("LOG_FILE", c.Journal.Path)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Audio.SampleRate <= 0:
		return apperrors.New(apperrors.CodeConfig, "audio.sample_rate must be positive")
	case c.Audio.FramesPerRead <= 0:
		return apperrors.New(apperrors.CodeConfig, "audio.frames_per_read must be positive")
	case c.Audio.SegmentSeconds <= 0:
		return apperrors.New(apperrors.CodeConfig, "audio.segment_seconds must be positive")
	case c.Audio.OverlapSeconds < 0 || c.Audio.OverlapSeconds >= c.Audio.SegmentSeconds:
		return apperrors.New(apperrors.CodeConfig, "audio.overlap_seconds must be in [0, segment_seconds)")
	case c.Pipeline.Workers <= 0:
		return apperrors.New(apperrors.CodeConfig, "pipeline.workers must be positive")
	case c.Pipeline.FlushInterval <= 0:
		return apperrors.New(apperrors.CodeConfig, "pipeline.flush_interval must be positive")
	}

	switch c.Backend.Provider {
	case "openai", "sidecar", "offline":
	default:
		return apperrors.Newf(apperrors.CodeConfig, "unknown backend provider %q", c.Backend.Provider)
	}
	switch c.Speaker.Mode {
	case "local", "sidecar", "off":
	default:
		return apperrors.Newf(apperrors.CodeConfig, "unknown speaker mode %q", c.Speaker.Mode)
	}
	switch c.Store.Driver {
	case "mongo", "postgres", "redis", "file", "none":
	default:
		return apperrors.Newf(apperrors.CodeConfig, "unknown store driver %q", c.Store.Driver)
	}

	known := make(map[string]bool, len(DefaultAnalyzers))
	for _, name := range DefaultAnalyzers {
		known[name] = true
	}
	for _, name := range c.Pipeline.Analyzers {
		if !known[name] {
			return apperrors.Newf(apperrors.CodeConfig, "unknown analyzer %q", name)
		}
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}

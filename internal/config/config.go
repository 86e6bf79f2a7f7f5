package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the companion chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL string

	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIMaxTokens   int
	OpenAITemperature float64
	GenerationTimeout time.Duration

	ElevenLabsAPIKey  string
	ElevenLabsBaseURL string
	ElevenLabsVoiceID string
	SynthesisTimeout  time.Duration

	AudioDir        string
	AudioPublicPath string

	ContextWindow int

	PacingPerChar time.Duration
	PacingMin     time.Duration
	PacingMax     time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":5000"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "amora"),
		AllowAnyOrigin:   false,
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		OpenAIAPIKey:     stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIModel:      envOrDefault("OPENAI_MODEL", "gpt-3.5-turbo"),
		// Replies are short on purpose; long monologues read as robotic
		// and blow past the pacing ceiling anyway.
		OpenAIMaxTokens:   150,
		OpenAITemperature: 0.7,
		GenerationTimeout: 20 * time.Second,
		ElevenLabsAPIKey:  stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL: envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		// Default to a warm premade voice for the companion prototype.
		ElevenLabsVoiceID: envOrDefault("ELEVENLABS_TTS_VOICE_ID", "PjkBJlyjC1SUbaEXg0K7"),
		SynthesisTimeout:  10 * time.Second,
		AudioDir:          envOrDefault("APP_AUDIO_DIR", "public"),
		AudioPublicPath:   "/audio",
		ContextWindow:     10,
		// Roughly 30 characters of "typing" per second, clamped to 1-5s.
		PacingPerChar:   33 * time.Millisecond,
		PacingMin:       time.Second,
		PacingMax:       5 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.GenerationTimeout, err = durationFromEnv("APP_GENERATION_TIMEOUT", cfg.GenerationTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthesisTimeout, err = durationFromEnv("APP_SYNTHESIS_TIMEOUT", cfg.SynthesisTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.PacingPerChar, err = durationFromEnv("APP_PACING_PER_CHAR", cfg.PacingPerChar)
	if err != nil {
		return Config{}, err
	}
	cfg.PacingMin, err = durationFromEnv("APP_PACING_MIN", cfg.PacingMin)
	if err != nil {
		return Config{}, err
	}
	cfg.PacingMax, err = durationFromEnv("APP_PACING_MAX", cfg.PacingMax)
	if err != nil {
		return Config{}, err
	}
	cfg.OpenAIMaxTokens, err = intFromEnv("OPENAI_MAX_TOKENS", cfg.OpenAIMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.OpenAITemperature, err = floatFromEnv("OPENAI_TEMPERATURE", cfg.OpenAITemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextWindow, err = intFromEnv("APP_CONTEXT_WINDOW", cfg.ContextWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.OpenAIMaxTokens <= 0 {
		return Config{}, fmt.Errorf("OPENAI_MAX_TOKENS must be positive")
	}
	if cfg.OpenAITemperature < 0 || cfg.OpenAITemperature > 2 {
		return Config{}, fmt.Errorf("OPENAI_TEMPERATURE must be in [0, 2]")
	}
	if cfg.ContextWindow <= 0 {
		return Config{}, fmt.Errorf("APP_CONTEXT_WINDOW must be positive")
	}
	if cfg.GenerationTimeout < time.Second {
		return Config{}, fmt.Errorf("APP_GENERATION_TIMEOUT must be at least 1s")
	}
	if cfg.SynthesisTimeout < time.Second {
		return Config{}, fmt.Errorf("APP_SYNTHESIS_TIMEOUT must be at least 1s")
	}
	if cfg.PacingPerChar <= 0 {
		return Config{}, fmt.Errorf("APP_PACING_PER_CHAR must be positive")
	}
	if cfg.PacingMin <= 0 || cfg.PacingMax < cfg.PacingMin {
		return Config{}, fmt.Errorf("pacing bounds invalid: min=%v max=%v", cfg.PacingMin, cfg.PacingMax)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

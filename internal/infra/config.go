package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
//
// Music provider credentials (DEFAPI_API_KEY, KIE_API_KEY, SUNOORG_API_KEY,
// MUSIC_PROVIDER) are intentionally absent: the music dispatcher re-reads them
// from the environment on every call so rotated keys take effect without a
// restart.
type Config struct {
	AppEnv            string
	Port              string
	AllowedOrigins    []string
	DatabaseURL       string
	StorageBaseURL    string
	StorageDir        string
	GeoIPDBPath       string
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string
	SFXProvider       string
	StableAudioAPIKey string
	StableAudioURL    string
	ElevenLabsAPIKey  string
	ElevenLabsURL     string
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	RateLimitPerMin   int
	WorkerPollBase    time.Duration
	WorkerPollMax     time.Duration
	WorkerPollCeiling time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              port,
		AllowedOrigins:    splitCSV(getEnv("ALLOWED_ORIGINS", "*")),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		StorageDir:        getEnv("STORAGE_DIR", "./data/audio"),
		GeoIPDBPath:       os.Getenv("GEOIP_DB_PATH"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		SFXProvider:       getEnv("SFX_PROVIDER", "stableaudio"),
		StableAudioAPIKey: os.Getenv("STABLE_AUDIO_API_KEY"),
		StableAudioURL:    os.Getenv("STABLE_AUDIO_BASE_URL"),
		ElevenLabsAPIKey:  os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsURL:     os.Getenv("ELEVENLABS_BASE_URL"),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		WorkerPollBase:    time.Millisecond * time.Duration(getEnvInt("WORKER_POLL_BASE_MS", 1500)),
		WorkerPollMax:     time.Millisecond * time.Duration(getEnvInt("WORKER_POLL_MAX_MS", 6000)),
		WorkerPollCeiling: time.Second * time.Duration(getEnvInt("WORKER_POLL_CEILING_SECONDS", 120)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if _, err := url.Parse(cfg.StorageBaseURL); err != nil {
		return nil, fmt.Errorf("STORAGE_BASE_URL is invalid: %w", err)
	}

	return cfg, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

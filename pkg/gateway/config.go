package gateway

import (
	"os"
	"strconv"
	"time"
)

// Config holds gatewayd's runtime configuration, loaded from the
// environment (§6). Every field has a workable default so gatewayd can
// start with nothing set beyond AI_BACKEND_URL.
type Config struct {
	BindAddr string

	AIBackendURL   string
	AIBackendToken string
	AICallTimeout  time.Duration

	DefaultTTSProvider string
	TTSDisabled        bool

	AuroraAPIKey  string
	AuroraBaseURL string
	CascadeAPIKey string
	CascadeBaseURL string

	LogLevel string

	IdleTimeout  time.Duration
	ReapInterval time.Duration

	CacheDir            string
	CacheFlushInterval time.Duration
}

// LoadConfig reads Config from the process environment, following the
// env-var names and defaults recorded in §6.
func LoadConfig() Config {
	return Config{
		BindAddr: getenv("GATEWAY_BIND_ADDR", ":8080"),

		AIBackendURL:   os.Getenv("AI_BACKEND_URL"),
		AIBackendToken: os.Getenv("AI_BACKEND_TOKEN"),
		AICallTimeout:  getenvDuration("AI_CALL_TIMEOUT", 30*time.Second),

		DefaultTTSProvider: getenv("DEFAULT_TTS_PROVIDER", "cascade"),
		TTSDisabled:        getenvBool("TTS_DISABLED", false),

		AuroraAPIKey:   os.Getenv("AURORA_API_KEY"),
		AuroraBaseURL:  getenv("AURORA_BASE_URL", "https://api.aurora-voice.example/v1"),
		CascadeAPIKey:  os.Getenv("CASCADE_API_KEY"),
		CascadeBaseURL: getenv("CASCADE_BASE_URL", "https://api.cascade-voice.example/v1"),

		LogLevel: getenv("LOG_LEVEL", "info"),

		IdleTimeout:  getenvDuration("SESSION_IDLE_TIMEOUT", 5*time.Minute),
		ReapInterval: getenvDuration("SESSION_REAP_INTERVAL", 60*time.Second),

		CacheDir:           getenv("CACHE_DIR", "./data/cache"),
		CacheFlushInterval: getenvDuration("CACHE_FLUSH_INTERVAL", 30*time.Second),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

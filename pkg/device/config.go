package device

import (
	"os"
	"strconv"
	"time"
)

// LoadConfig reads Config from the process environment, following the
// device-side env-var names and defaults recorded in §6. It lives directly
// in this package rather than a separate config package, mirroring how
// gateway.LoadConfig populates gateway.Config.
func LoadConfig() Config {
	return Config{
		GatewayURL:           os.Getenv("GATEWAY_URL"),
		DeviceID:             os.Getenv("DEVICE_ID"),
		ToyID:                os.Getenv("TOY_ID"),
		AuthToken:            os.Getenv("AUTH_TOKEN"),
		ReconnectMaxAttempts: getenvInt("RECONNECT_MAX_ATTEMPTS", 0), // 0 = unlimited
		ReconnectBaseDelay:   getenvDuration("RECONNECT_BASE_DELAY", 1*time.Second),

		CaptureFormat:     getenv("AUDIO_CAPTURE_FORMAT", "pcm16"),
		CaptureSampleRate: getenvInt("AUDIO_CAPTURE_SAMPLE_RATE", 16000),
		SinkSampleRate:    getenvInt("AUDIO_SINK_SAMPLE_RATE", 48000),

		FeatureWakeWord:    getenvBool("FEATURE_WAKE_WORD", false),
		FeatureOfflineMode: getenvBool("FEATURE_OFFLINE_MODE", false),

		AudioInputDevice:  os.Getenv("AUDIO_INPUT_DEVICE"),
		AudioOutputDevice: os.Getenv("AUDIO_OUTPUT_DEVICE"),

		PlaybackSampleRateOverride: getenvInt("PLAYBACK_SAMPLE_RATE_OVERRIDE", 0),

		OTABucket:      os.Getenv("OTA_BUCKET"),
		OTAManifestKey: os.Getenv("OTA_MANIFEST_KEY"),
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

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
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

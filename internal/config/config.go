// Package config reads the assistant configuration from the environment.
// Every component receives its knobs through this struct instead of
// touching os.Getenv itself, so packages stay testable in isolation.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingAPIKey is returned by Load when GEMINI_API_KEY is not set.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY not set")

type Config struct {
	APIKey string

	// Per-model request budgets.
	ProRPM   int
	ProRPD   int
	FlashRPM int
	FlashRPD int

	Language           string
	AudioTimeout       time.Duration
	PhraseTimeout      time.Duration
	MinSilenceDuration time.Duration
	SilenceThreshold   float64

	ScreenshotDir    string
	ScreenshotFormat string
	MaxScreenshots   int

	CacheEnabled bool
	CacheTimeout time.Duration
	MaxCacheItems int

	MaxRequestsPerMinute int
	MaxOutputTokens      int
	MaxRetries           int

	HistoryDB      string
	HistoryContext int
}

// Load builds a Config from the environment. Defaults match the original
// deployment; only the API key is mandatory.
func Load() (Config, error) {
	cfg := Config{
		APIKey:               os.Getenv("GEMINI_API_KEY"),
		ProRPM:               envInt("GEMINI_PRO_RPM", 3),
		ProRPD:               envInt("GEMINI_PRO_RPD", 30),
		FlashRPM:             envInt("GEMINI_FLASH_RPM", 5),
		FlashRPD:             envInt("GEMINI_FLASH_RPD", 50),
		Language:             envStr("LANGUAGE", "pt-BR"),
		AudioTimeout:         envSeconds("AUDIO_TIMEOUT", 10*time.Second),
		PhraseTimeout:        envSeconds("PHRASE_TIMEOUT", 30*time.Second),
		MinSilenceDuration:   envDuration("MIN_SILENCE_DURATION", 1500*time.Millisecond),
		SilenceThreshold:     envFloat("SILENCE_THRESHOLD", 0.015),
		ScreenshotDir:        envStr("SCREENSHOT_DIR", "screenshots"),
		ScreenshotFormat:     strings.ToLower(envStr("SCREENSHOT_FORMAT", "png")),
		MaxScreenshots:       envInt("MAX_SCREENSHOTS", 5),
		CacheEnabled:         envBool("CACHE_ENABLED", true),
		CacheTimeout:         envSeconds("CACHE_TIMEOUT", time.Hour),
		MaxCacheItems:        envInt("MAX_CACHE_ITEMS", 100),
		MaxRequestsPerMinute: envInt("MAX_REQUESTS_PER_MINUTE", 5),
		MaxOutputTokens:      envInt("MAX_OUTPUT_TOKENS", 2048),
		MaxRetries:           envInt("MAX_RETRIES", 3),
		HistoryDB:            envStr("HISTORY_DB", "conversation_history.db"),
		HistoryContext:       envInt("HISTORY_CONTEXT", 5),
	}

	if cfg.APIKey == "" {
		return Config{}, ErrMissingAPIKey
	}

	return cfg, nil
}

func envStr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// envInt tolerates trailing "# comment" garbage, which the original env
// files carried around.
func envInt(key string, def int) int {
	v := strings.TrimSpace(strings.SplitN(os.Getenv(key), "#", 2)[0])
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes"
}

// envSeconds reads a bare number of seconds, the unit the original env
// files used for timeouts.
func envSeconds(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(strings.SplitN(os.Getenv(key), "#", 2)[0])
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return time.Duration(f * float64(time.Second))
}

// envDuration accepts either Go duration syntax ("1.5s") or bare seconds.
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return def
}

package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
)

const (
	AlphaVantageKeyName = "ALPHAVANTAGE_API_KEY"
	AddrKeyName         = "RC_ADDR"
	ProviderKeyName     = "RC_PROVIDER"
	LogLevelKeyName     = "RC_LOG_LEVEL"
	FetchTimeoutKeyName = "RC_FETCH_TIMEOUT"
)

const (
	DefaultAddr         = ":8080"
	DefaultProvider     = ProviderAlphaVantage
	DefaultLogLevel     = "info"
	DefaultFetchTimeout = 30 * time.Second
)

var (
	ErrMissingApiKey  = errors.New("alpha vantage api key is not set")
	ErrInvalidSetting = errors.New("invalid setting")
)

type Config struct {
	AlphaVantageApiKey string
	Addr               string
	DefaultProvider    string
	LogLevel           string
	FetchTimeout       time.Duration
}

// LoadConfig loads the given env files (.env when none are given) into the process environment, then reads the settings.
// A missing file is fine, values already in the environment win over the file.
func LoadConfig(filenames ...string) (Config, error) {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("error loading environment: %w", err)
	}
	return ParseConfig(os.Getenv)
}

// ParseConfig builds a Config from a lookup, unset keys take their defaults
func ParseConfig(getenv func(string) string) (Config, error) {
	cfg := Config{
		AlphaVantageApiKey: getenv(AlphaVantageKeyName),
		Addr:               valueOr(getenv(AddrKeyName), DefaultAddr),
		DefaultProvider:    valueOr(getenv(ProviderKeyName), DefaultProvider),
		LogLevel:           valueOr(getenv(LogLevelKeyName), DefaultLogLevel),
		FetchTimeout:       DefaultFetchTimeout,
	}

	if raw := getenv(FetchTimeoutKeyName); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("%w: %s=%q", ErrInvalidSetting, FetchTimeoutKeyName, raw)
		}
		cfg.FetchTimeout = d
	}

	if !slices.Contains([]string{ProviderAlphaVantage, ProviderYahoo}, cfg.DefaultProvider) {
		return Config{}, fmt.Errorf("%w: %s=%q", ErrInvalidSetting, ProviderKeyName, cfg.DefaultProvider)
	}
	if cfg.DefaultProvider == ProviderAlphaVantage && cfg.AlphaVantageApiKey == "" {
		return Config{}, fmt.Errorf("%w, required by provider %s", ErrMissingApiKey, ProviderAlphaVantage)
	}

	return cfg, nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

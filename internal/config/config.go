package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv        = "PROSPECTOR_CONFIG"
	databaseURLEnv       = "DATABASE_URL"
	registryUserAgentEnv = "EDGAR_USER_AGENT"
	extractionKeyEnv     = "EXTRACTION_API_KEY"
	listenAddrEnv        = "LISTEN_ADDR"
)

// Config holds high-level settings required across the application.
type Config struct {
	ListenAddr  string           `yaml:"listenAddr"`
	DatabaseURL string           `yaml:"databaseUrl"`
	Logging     LoggingConfig    `yaml:"logging"`
	Registry    RegistryConfig   `yaml:"registry"`
	Classifier  ClassifierConfig `yaml:"classifier"`
	Extraction  ExtractionConfig `yaml:"extraction"`
	Scrape      ScrapeConfig     `yaml:"scrape"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// RegistryConfig describes how to contact the external filing registry.
// The registry rejects requests without a descriptive identification header
// and enforces a strict per-second rate, so both are mandatory knobs.
type RegistryConfig struct {
	UserAgent          string `yaml:"userAgent"`
	MinIntervalMillis  int    `yaml:"minIntervalMillis"`
	MaxRetries         int    `yaml:"maxRetries"`
	BackoffBaseMillis  int    `yaml:"backoffBaseMillis"`
	RequestTimeoutSecs int    `yaml:"requestTimeoutSeconds"`
	SubmissionsBaseURL string `yaml:"submissionsBaseUrl"`
	ArchiveBaseURL     string `yaml:"archiveBaseUrl"`
	TickerIndexURL     string `yaml:"tickerIndexUrl"`
}

// MinInterval resolves the configured floor between outbound requests.
func (r RegistryConfig) MinInterval() time.Duration {
	return time.Duration(r.MinIntervalMillis) * time.Millisecond
}

// BackoffBase resolves the initial retry backoff.
func (r RegistryConfig) BackoffBase() time.Duration {
	return time.Duration(r.BackoffBaseMillis) * time.Millisecond
}

// RequestTimeout resolves the per-request timeout.
func (r RegistryConfig) RequestTimeout() time.Duration {
	return time.Duration(r.RequestTimeoutSecs) * time.Second
}

// ClassifierConfig carries the sweep thresholds. Separate "precise" and
// "broad" deployments tune these rather than fork the classifier.
type ClassifierConfig struct {
	MinDocumentBytes int64    `yaml:"minDocumentBytes"`
	KeywordMinBytes  int64    `yaml:"keywordMinBytes"`
	SizeOnlyMinBytes int64    `yaml:"sizeOnlyMinBytes"`
	Keywords         []string `yaml:"keywords"`
}

// ExtractionConfig wires the structured-extraction service. An empty endpoint
// disables extraction; documents are then persisted with classification
// metadata only.
type ExtractionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"apiKey"`
	Model         string `yaml:"model"`
	TimeoutSecs   int    `yaml:"timeoutSeconds"`
	MaxInputBytes int    `yaml:"maxInputBytes"`
	MaxRetries    int    `yaml:"maxRetries"`
}

// Timeout resolves the extraction call deadline.
func (e ExtractionConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSecs) * time.Second
}

// ScrapeConfig controls orchestration concurrency and progress fan-out.
type ScrapeConfig struct {
	Workers         int      `yaml:"workers"`
	HeartbeatSecs   int      `yaml:"heartbeatSeconds"`
	HistorySize     int      `yaml:"historySize"`
	GlobalWatchlist []string `yaml:"globalWatchlist"`
	FormTypes       []string `yaml:"formTypes"` // empty admits every form
}

// Heartbeat resolves the progress keep-alive period.
func (s ScrapeConfig) Heartbeat() time.Duration {
	return time.Duration(s.HeartbeatSecs) * time.Second
}

// Load reads YAML configuration (if present) and applies environment
// overrides. A missing database URL is surfaced as an error value so the
// caller decides whether it is fatal.
func Load() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("%s not set", databaseURLEnv)
	}
	if cfg.Registry.UserAgent == "" {
		return cfg, fmt.Errorf("registry user agent not set (config or %s)", registryUserAgentEnv)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseURLEnv); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv(registryUserAgentEnv); v != "" {
		c.Registry.UserAgent = v
	}
	if v := os.Getenv(extractionKeyEnv); v != "" {
		c.Extraction.APIKey = v
	}
	if v := os.Getenv(listenAddrEnv); v != "" {
		c.ListenAddr = v
	}
}

func defaultConfig() Config {
	return Config{
		ListenAddr: ":8080",
		Logging:    LoggingConfig{Level: "info"},
		Registry: RegistryConfig{
			MinIntervalMillis:  110,
			MaxRetries:         3,
			BackoffBaseMillis:  500,
			RequestTimeoutSecs: 30,
			SubmissionsBaseURL: "https://data.sec.gov",
			ArchiveBaseURL:     "https://www.sec.gov/Archives",
			TickerIndexURL:     "https://www.sec.gov/files/company_tickers.json",
		},
		Classifier: ClassifierConfig{
			MinDocumentBytes: 10 * 1024,
			KeywordMinBytes:  200 * 1024,
			SizeOnlyMinBytes: 5 * 1024 * 1024,
		},
		Extraction: ExtractionConfig{
			Model:         "gpt-4o-mini",
			TimeoutSecs:   45,
			MaxInputBytes: 120 * 1024,
			MaxRetries:    2,
		},
		Scrape: ScrapeConfig{
			Workers:       4,
			HeartbeatSecs: 15,
			HistorySize:   50,
		},
	}
}

// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Gallery  GalleryConfig  `mapstructure:"gallery"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Filter   FilterConfig   `mapstructure:"filter"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Scratch  ScratchConfig  `mapstructure:"scratch"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior. TLS is enabled when both paths
// are set.
type ServerConfig struct {
	Port    int    `mapstructure:"port"`
	TLSCert string `mapstructure:"tls_cert"`
	TLSKey  string `mapstructure:"tls_key"`
}

// StoreConfig controls access to the document store.
type StoreConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// GalleryConfig locates the upstream gallery API.
type GalleryConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	ClientID      string `mapstructure:"client_id"`
	UserAgent     string `mapstructure:"user_agent"`
}

// PipelineConfig governs per-post processing.
type PipelineConfig struct {
	MaxConcurrent   int     `mapstructure:"max_concurrent"`
	UnsafeThreshold float64 `mapstructure:"unsafe_threshold"`
}

// FetchConfig configures image fetch retry behavior.
type FetchConfig struct {
	MaxAttempts    int `mapstructure:"max_attempts"`
	DelayMs        int `mapstructure:"delay_ms"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// FilterConfig locates the forbidden-term list.
type FilterConfig struct {
	WordlistPath string `mapstructure:"wordlist_path"`
}

// OCRConfig locates the trained OCR model data.
type OCRConfig struct {
	TessdataPath string `mapstructure:"tessdata_path"`
	Language     string `mapstructure:"language"`
}

// ScratchConfig sets the temporary download area.
type ScratchConfig struct {
	Root string `mapstructure:"root"`
}

// CrawlConfig governs the continuous polling loop.
type CrawlConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
	LowWater        int `mapstructure:"low_water"`
	PageResetHours  int `mapstructure:"page_reset_hours"`
	MaxConcurrent   int `mapstructure:"max_concurrent"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GALLERYGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3030)
	v.SetDefault("store.uri", "mongodb://localhost:27017")
	v.SetDefault("store.database", "galleryguard")
	v.SetDefault("gallery.base_url", "https://api.imgur.com/3")
	v.SetDefault("gallery.public_base_url", "https://imgur.com")
	v.SetDefault("gallery.user_agent", "PostmanRuntime/7.26.8")
	v.SetDefault("pipeline.max_concurrent", 10)
	v.SetDefault("pipeline.unsafe_threshold", 0.2)
	v.SetDefault("fetch.max_attempts", 5)
	v.SetDefault("fetch.delay_ms", 1000)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("filter.wordlist_path", "filter_word_list.txt")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("scratch.root", "scratch")
	v.SetDefault("crawl.interval_seconds", 60)
	v.SetDefault("crawl.low_water", 50)
	v.SetDefault("crawl.page_reset_hours", 12)
	v.SetDefault("crawl.max_concurrent", 15)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Store.URI == "" {
		return fmt.Errorf("store.uri is required")
	}
	if c.Filter.WordlistPath == "" {
		return fmt.Errorf("filter.wordlist_path is required")
	}
	if c.Pipeline.MaxConcurrent <= 0 {
		return fmt.Errorf("pipeline.max_concurrent must be > 0")
	}
	if c.Pipeline.UnsafeThreshold <= 0 || c.Pipeline.UnsafeThreshold > 1 {
		return fmt.Errorf("pipeline.unsafe_threshold must be in (0, 1]")
	}
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.max_attempts must be > 0")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("server.tls_cert and server.tls_key must be set together")
	}
	return nil
}

// FetchDelay converts the configured retry delay into a duration.
func (c Config) FetchDelay() time.Duration {
	return time.Duration(c.Fetch.DelayMs) * time.Millisecond
}

// FetchTimeout converts the configured HTTP timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// CrawlInterval converts the loop pacing interval into a duration.
func (c Config) CrawlInterval() time.Duration {
	return time.Duration(c.Crawl.IntervalSeconds) * time.Second
}

// PageResetWindow converts the page-counter reset window into a duration.
func (c Config) PageResetWindow() time.Duration {
	return time.Duration(c.Crawl.PageResetHours) * time.Hour
}

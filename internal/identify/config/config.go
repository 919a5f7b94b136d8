// Package config holds the identification & valuation agent's tunables
// (§6), loaded from YAML with environment-variable overrides, grounded on
// the teacher's internal/config loader.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every recognized key from spec.md §6 plus the domain-stack
// additions from SPEC_FULL.md.
type Config struct {
	Validator  ValidatorConfig  `yaml:"validator"`
	Vision     VisionConfig     `yaml:"vision"`
	Lookup     LookupConfig     `yaml:"lookup"`
	WebSearch  WebSearchConfig  `yaml:"web_search"`
	Confidence ConfidenceConfig `yaml:"confidence"`
	Models     ModelsConfig     `yaml:"models"`
	Run        RunConfig        `yaml:"run"`
	Breaker    BreakerConfig    `yaml:"circuit_breaker"`
}

// ValidatorConfig backs §4.2.
type ValidatorConfig struct {
	MaxImages      int   `yaml:"max_images"`
	MaxImageBytes  int64 `yaml:"max_image_bytes"`
	MaxTotalBytes  int64 `yaml:"max_total_bytes"`
}

// VisionConfig backs §4.3/§5.
type VisionConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Retries     int           `yaml:"retries"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	RateLimitRPS float64      `yaml:"rate_limit_rps"`
}

// LookupConfig backs §4.5.
type LookupConfig struct {
	TimeoutSeconds          int     `yaml:"timeout_seconds"`
	CombinedTimeoutSeconds  int     `yaml:"combined_timeout_seconds"`
	DiscogsRateLimitRPM     float64 `yaml:"discogs_rate_limit_rpm"`
	MusicBrainzRateLimitRPS float64 `yaml:"musicbrainz_rate_limit_rps"`
	RateLimitQueueWait      time.Duration `yaml:"rate_limit_queue_wait"`
}

// WebSearchConfig backs §4.6.
type WebSearchConfig struct {
	ScrapingTimeout  time.Duration `yaml:"scraping_timeout"`
	ScrapingMaxURLs  int           `yaml:"scraping_max_urls"`
	PreferredDomains []string      `yaml:"preferred_domains"`
}

// ConfidenceConfig backs §3/§4.6/§4.8.
type ConfidenceConfig struct {
	FallbackTrigger float64 `yaml:"fallback_trigger"`
	MaxGenres       int     `yaml:"max_genres"`
}

// ModelsConfig names the pluggable LLM identifiers (§6, §9: "LLM calls are
// ports, not details").
type ModelsConfig struct {
	Vision      string `yaml:"vision_model"`
	Aggregation string `yaml:"aggregation_model"`
	Valuation   string `yaml:"valuation_model"`
	Enhancement string `yaml:"enhancement_model"`
}

// RunConfig backs §5's deadlines.
type RunConfig struct {
	IdentifyDeadline  time.Duration `yaml:"identify_deadline"`
	ReanalyzeDeadline time.Duration `yaml:"reanalyze_deadline"`
}

// BreakerConfig tunes the per-provider circuit breakers (SPEC_FULL domain
// stack addition; not in spec.md §6's table).
type BreakerConfig struct {
	MaxConsecutiveFailures uint32        `yaml:"max_consecutive_failures"`
	OpenTimeout            time.Duration `yaml:"open_timeout"`
}

// Default returns the documented defaults from spec.md §4/§6.
func Default() *Config {
	return &Config{
		Validator: ValidatorConfig{
			MaxImages:     10,
			MaxImageBytes: 10 * 1024 * 1024,
			MaxTotalBytes: 100 * 1024 * 1024,
		},
		Vision: VisionConfig{
			Concurrency:  3,
			Retries:      3,
			BackoffBase:  time.Second,
			RateLimitRPS: 5,
		},
		Lookup: LookupConfig{
			TimeoutSeconds:          5,
			CombinedTimeoutSeconds:  8,
			DiscogsRateLimitRPM:     60,
			MusicBrainzRateLimitRPS: 1,
			RateLimitQueueWait:      2 * time.Second,
		},
		WebSearch: WebSearchConfig{
			ScrapingTimeout:  7 * time.Second,
			ScrapingMaxURLs:  3,
			PreferredDomains: []string{"discogs.com", "musicbrainz.org", "allmusic.com"},
		},
		Confidence: ConfidenceConfig{
			FallbackTrigger: 0.75,
			MaxGenres:       8,
		},
		Models: ModelsConfig{
			Vision:      "gemini-2.5-flash",
			Aggregation: "gemini-2.5-flash",
			Valuation:   "gpt-4o-mini",
			Enhancement: "gemini-2.5-flash",
		},
		Run: RunConfig{
			IdentifyDeadline:  60 * time.Second,
			ReanalyzeDeadline: 90 * time.Second,
		},
		Breaker: BreakerConfig{
			MaxConsecutiveFailures: 5,
			OpenTimeout:            30 * time.Second,
		},
	}
}

// Load reads a YAML file at path, falling back to Default() when path is
// empty or the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets deployment env vars win over the YAML file,
// mirroring the teacher's config.applyEnvOverrides precedence style.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MAX_IMAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Validator.MaxImages = n
		}
	}
	if v := os.Getenv("MAX_IMAGE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Validator.MaxImageBytes = n
		}
	}
	if v := os.Getenv("MAX_TOTAL_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Validator.MaxTotalBytes = n
		}
	}
	if v := os.Getenv("VISION_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Vision.Concurrency = n
		}
	}
	if v := os.Getenv("VISION_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Vision.Retries = n
		}
	}
	if v := os.Getenv("VISION_BACKOFF_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Vision.BackoffBase = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("METADATA_TIMEOUT_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Lookup.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("CONFIDENCE_FALLBACK_TRIGGER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Confidence.FallbackTrigger = f
		}
	}
	if v := os.Getenv("WEB_SCRAPING_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WebSearch.ScrapingTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("WEB_SCRAPING_MAX_URLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WebSearch.ScrapingMaxURLs = n
		}
	}
	if v := os.Getenv("VISION_MODEL"); v != "" {
		c.Models.Vision = v
	}
	if v := os.Getenv("AGGREGATION_MODEL"); v != "" {
		c.Models.Aggregation = v
	}
	if v := os.Getenv("VALUATION_MODEL"); v != "" {
		c.Models.Valuation = v
	}
	if v := os.Getenv("ENHANCEMENT_MODEL"); v != "" {
		c.Models.Enhancement = v
	}
	if v := os.Getenv("RUN_DEADLINE_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Run.IdentifyDeadline = time.Duration(n) * time.Second
		}
	}
}

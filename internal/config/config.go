package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// FetcherConfig controls the two-stage content acquisition cascade.
type FetcherConfig struct {
	// Managed scraper service (stage 1).
	ScraperBaseURL   string `yaml:"scraperBaseURL"`
	ScraperAPIKey    string `yaml:"scraperAPIKey"`
	ScraperTimeoutMs int    `yaml:"scraperTimeoutMs"`
	Country          string `yaml:"country"`

	// Headless browser fallback (stage 2).
	BrowserURL       string `yaml:"browserURL"`
	BrowserTimeoutMs int    `yaml:"browserTimeoutMs"`
	BrowserEnabled   bool   `yaml:"browserEnabled"`

	UserAgent     string `yaml:"userAgent"`
	MaxConcurrent int    `yaml:"maxConcurrent"`
}

// DiscoveryConfig bounds link discovery and page selection.
type DiscoveryConfig struct {
	MaxPages            int     `yaml:"maxPages"`
	SeedHighSignalPages int     `yaml:"seedHighSignalPages"`
	NoveltyThreshold    float64 `yaml:"noveltyThreshold"`
	MaxSitemapURLs      int     `yaml:"maxSitemapURLs"`
	RespectRobots       bool    `yaml:"respectRobots"`
}

type CorpusConfig struct {
	MaxChars       int `yaml:"maxChars"`
	SocialMaxChars int `yaml:"socialMaxChars"`
}

// LLMConfig holds the model cascade and scheduling limits.
type LLMConfig struct {
	BaseURL              string `yaml:"baseURL"`
	APIKey               string `yaml:"apiKey"`
	PrimaryModel         string `yaml:"primaryModel"`
	FallbackModel        string `yaml:"fallbackModel"`
	FastModel            string `yaml:"fastModel"`
	ForceChatCompletions bool   `yaml:"forceChatCompletions"`
	Concurrency          int    `yaml:"concurrency"`
	TPMLimit             int    `yaml:"tpmLimit"`
	PromptVersion        string `yaml:"promptVersion"`
}

type BreakerConfig struct {
	Threshold       int `yaml:"threshold"`
	CooldownSeconds int `yaml:"cooldownSeconds"`
}

type CacheConfig struct {
	Dir        string `yaml:"dir"`
	TTLSeconds int    `yaml:"ttlSeconds"`
	RedisURL   string `yaml:"redisURL"`
}

type DataConfig struct {
	Dir string `yaml:"dir"`
}

// StreamConfig bounds the per-scan event channel and scan retention.
type StreamConfig struct {
	ChannelSize          int `yaml:"channelSize"`
	ScanTTLMinutes       int `yaml:"scanTTLMinutes"`
	ScreenshotTTLMinutes int `yaml:"screenshotTTLMinutes"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	LLM       LLMConfig       `yaml:"llm"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Cache     CacheConfig     `yaml:"cache"`
	Data      DataConfig      `yaml:"data"`
	Stream    StreamConfig    `yaml:"stream"`
}

// Load reads the yaml config at path, applies environment overrides for
// credentials, and fills defaults for anything unset.
func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	return &cfg
}

// applyEnv lets credentials and a few operational flags come from the
// environment so secrets can stay out of the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("SCRAPER_API_KEY"); v != "" {
		c.Fetcher.ScraperAPIKey = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Cache.RedisURL = v
	}
	if v := os.Getenv("PROMPT_VERSION"); v != "" {
		c.LLM.PromptVersion = v
	}
	if os.Getenv("FORCE_CHAT_COMPLETIONS") == "true" {
		c.LLM.ForceChatCompletions = true
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Fetcher.ScraperTimeoutMs <= 0 {
		c.Fetcher.ScraperTimeoutMs = 120_000
	}
	if c.Fetcher.BrowserTimeoutMs <= 0 {
		c.Fetcher.BrowserTimeoutMs = 75_000
	}
	if c.Fetcher.MaxConcurrent <= 0 {
		c.Fetcher.MaxConcurrent = 4
	}
	if c.Fetcher.UserAgent == "" {
		c.Fetcher.UserAgent = "brandlens/1.0"
	}
	if c.Discovery.MaxPages <= 0 {
		c.Discovery.MaxPages = 18
	}
	if c.Discovery.SeedHighSignalPages <= 0 {
		c.Discovery.SeedHighSignalPages = 12
	}
	if c.Discovery.NoveltyThreshold <= 0 {
		c.Discovery.NoveltyThreshold = 0.12
	}
	if c.Discovery.MaxSitemapURLs <= 0 {
		c.Discovery.MaxSitemapURLs = 3000
	}
	if c.Corpus.MaxChars <= 0 {
		c.Corpus.MaxChars = 40_000
	}
	if c.Corpus.SocialMaxChars <= 0 {
		c.Corpus.SocialMaxChars = 2048
	}
	if c.LLM.Concurrency <= 0 {
		c.LLM.Concurrency = 2
	}
	if c.LLM.TPMLimit <= 0 {
		c.LLM.TPMLimit = 80_000
	}
	if c.LLM.PromptVersion == "" {
		c.LLM.PromptVersion = "v1"
	}
	if c.Breaker.Threshold <= 0 {
		c.Breaker.Threshold = 3
	}
	if c.Breaker.CooldownSeconds <= 0 {
		c.Breaker.CooldownSeconds = 600
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 86_400
	}
	if c.Data.Dir == "" {
		c.Data.Dir = "data"
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = c.Data.Dir + "/cache"
	}
	if c.Stream.ChannelSize <= 0 {
		c.Stream.ChannelSize = 256
	}
	if c.Stream.ScanTTLMinutes <= 0 {
		c.Stream.ScanTTLMinutes = 60
	}
	if c.Stream.ScreenshotTTLMinutes <= 0 {
		c.Stream.ScreenshotTTLMinutes = 60
	}
}

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort      string
	DatabaseURL     string
	AdminToken      string
	OpenAIAPIKey    string
	CacheTTLMinutes string
	LogLevel        string
	StaleOfferHours string
}

// FetcherConfig holds configuration for the two-strategy page fetcher
type FetcherConfig struct {
	RequestTimeout  time.Duration // Maximum time to wait for an HTTP response
	BrowserTimeout  time.Duration // Maximum time for a headless browser session
	RetryDelay      time.Duration // Fixed delay before the single HTTP retry
	MinContentBytes int           // Responses below this size are treated as blocked
	UserAgent       string
}

// DefaultFetcherConfig returns production-ready fetcher defaults
func DefaultFetcherConfig() *FetcherConfig {
	return &FetcherConfig{
		RequestTimeout:  30 * time.Second,
		BrowserTimeout:  60 * time.Second,
		RetryDelay:      2 * time.Second,
		MinContentBytes: 1000,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	}
}

// ScrapeConfig holds orchestrator-level settings for an ingestion run
type ScrapeConfig struct {
	DelayBetweenDealers time.Duration // Sequential politeness delay between dealers
	DealerTimeout       time.Duration // Per-dealer budget covering fetch, extract, reconcile
}

// DefaultScrapeConfig returns the default ingestion run configuration
func DefaultScrapeConfig() *ScrapeConfig {
	return &ScrapeConfig{
		DelayBetweenDealers: 2 * time.Second,
		DealerTimeout:       3 * time.Minute,
	}
}

// CacheConfig holds search cache configuration
type CacheConfig struct {
	DefaultTTL time.Duration `json:"default_ttl"`
	MaxSize    int           `json:"max_size"`
}

// DefaultCacheConfig returns default cache configuration
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		DefaultTTL: 1 * time.Hour, // Entries live until TTL or the next scrape invalidates them
		MaxSize:    500,
	}
}

// ExtractorConfig holds settings for the model-assisted extractor
type ExtractorConfig struct {
	Model            string
	MaxInputChars    int
	MaxTokens        int
	RequestTimeout   time.Duration
	ConfidenceFloor  float64
	MinOfferKeywords int
}

// DefaultExtractorConfig returns defaults for the model-assisted extractor
func DefaultExtractorConfig() *ExtractorConfig {
	return &ExtractorConfig{
		Model:            "gpt-4-turbo-preview",
		MaxInputChars:    15000,
		MaxTokens:        4000,
		RequestTimeout:   60 * time.Second,
		ConfidenceFloor:  0.5,
		MinOfferKeywords: 3,
	}
}

// GetCacheTTL returns the cache TTL from environment or default
func (c *Config) GetCacheTTL() time.Duration {
	if c.CacheTTLMinutes == "" {
		return DefaultCacheConfig().DefaultTTL
	}

	minutes, err := strconv.Atoi(c.CacheTTLMinutes)
	if err != nil {
		logrus.Warnf("Invalid CACHE_TTL_MINUTES value: %s, using default", c.CacheTTLMinutes)
		return DefaultCacheConfig().DefaultTTL
	}

	return time.Duration(minutes) * time.Minute
}

// GetStaleOfferAge returns the age after which active offers are swept
// independent of a dealer's own ingestion cycle.
func (c *Config) GetStaleOfferAge() time.Duration {
	if c.StaleOfferHours == "" {
		return 48 * time.Hour
	}

	hours, err := strconv.Atoi(c.StaleOfferHours)
	if err != nil {
		logrus.Warnf("Invalid STALE_OFFER_HOURS value: %s, using default 48 hours", c.StaleOfferHours)
		return 48 * time.Hour
	}

	return time.Duration(hours) * time.Hour
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		AdminToken:      getEnv("ADMIN_TOKEN", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		CacheTTLMinutes: getEnv("CACHE_TTL_MINUTES", "60"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		StaleOfferHours: getEnv("STALE_OFFER_HOURS", "48"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Memeflow MemeflowConfig `yaml:"memeflow"`
	Server   ServerConfig   `yaml:"server"`
	Feeds    FeedsConfig    `yaml:"feeds"`
	Enrich   EnrichConfig   `yaml:"enrich"`
	Filter   FilterConfig   `yaml:"filter"`
	Cache    CacheConfig    `yaml:"cache"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Publish  PublishConfig  `yaml:"publish"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type MemeflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ServerConfig struct {
	Address      string `yaml:"address"`
	MaxLimit     int    `yaml:"max_limit"`
	DefaultLimit int    `yaml:"default_limit"`
	CacheControl string `yaml:"cache_control"`
}

type FeedsConfig struct {
	Profiles     FeedConfig         `yaml:"profiles"`
	Ads          FeedConfig         `yaml:"ads"`
	BoostsLatest FeedConfig         `yaml:"boosts_latest"`
	BoostsTop    FeedConfig         `yaml:"boosts_top"`
	Trending     TrendingFeedConfig `yaml:"trending"`
	Timeout      time.Duration      `yaml:"timeout"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
}

type FeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
}

type TrendingFeedConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Name         string `yaml:"name"`
	URL          string `yaml:"url"`
	APIKeyHeader string `yaml:"api_key_header"`
	APIKey       string `yaml:"api_key"`
	PageSize     int    `yaml:"page_size"`
	MaxPages     int    `yaml:"max_pages"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type EnrichConfig struct {
	Workers  int           `yaml:"workers"`
	Deadline time.Duration `yaml:"deadline"`
	Factor   int           `yaml:"factor"`
	PairURL  string        `yaml:"pair_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

type FilterConfig struct {
	TrendingSource   string   `yaml:"trending_source"`
	Chains           []string `yaml:"chains"`
	MarketCapCeiling float64  `yaml:"market_cap_ceiling"`
}

type CacheConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type ArchiveConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	Compression     string `yaml:"compression"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type PublishConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

const defaultConfigPath = "config/config.yml"

var envConfigPaths = map[string]string{
	environmentProduction: "config/config.production.yml",
	environmentStaging:    "config/config.staging.yml",
}

// LoadConfig reads the yaml configuration at path, applies environment
// overrides and validates the result. When APP_ENV selects an
// environment with its own config file, that file is used instead of
// the default path.
func LoadConfig(path string) (*Config, error) {
	if envPath := resolveEnvSpecificPath(path, defaultConfigPath, envConfigPaths); envPath != path {
		if _, err := os.Stat(envPath); err == nil {
			path = envPath
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      "0.0.0.0:8080",
			MaxLimit:     100,
			DefaultLimit: 10,
			CacheControl: "s-maxage=60, stale-while-revalidate=300",
		},
		Feeds: FeedsConfig{
			Timeout: 5 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 10,
				BurstSize:         20,
			},
		},
		Enrich: EnrichConfig{
			Workers:  8,
			Deadline: 7 * time.Second,
			Factor:   2,
			Timeout:  3 * time.Second,
		},
		Filter: FilterConfig{
			MarketCapCeiling: 60_000_000,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRENDING_API_KEY"); v != "" {
		cfg.Feeds.Trending.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = strings.TrimSpace(v)
	}
	if cfg.Archive.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Archive.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Archive.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Archive.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			cfg.Archive.S3.Bucket = strings.TrimSpace(v)
		}
	}
	cfg.Archive.S3.Bucket = strings.TrimSpace(cfg.Archive.S3.Bucket)
}

// EnabledFeeds returns the plain list feeds that are switched on, in
// declaration order. The trending feed is handled separately because of
// its auth and pagination requirements.
func (f *FeedsConfig) EnabledFeeds() []FeedConfig {
	all := []FeedConfig{f.Profiles, f.Ads, f.BoostsLatest, f.BoostsTop}
	enabled := make([]FeedConfig, 0, len(all))
	for _, fc := range all {
		if fc.Enabled {
			enabled = append(enabled, fc)
		}
	}
	return enabled
}

func validateConfig(cfg *Config) error {
	if cfg.Memeflow.Name == "" {
		return fmt.Errorf("memeflow.name is required")
	}
	if cfg.Memeflow.Version == "" {
		return fmt.Errorf("memeflow.version is required")
	}

	if cfg.Server.MaxLimit <= 0 {
		return fmt.Errorf("server.max_limit must be greater than 0")
	}
	if cfg.Server.DefaultLimit <= 0 || cfg.Server.DefaultLimit > cfg.Server.MaxLimit {
		return fmt.Errorf("server.default_limit must be in [1, max_limit]")
	}

	if cfg.Enrich.Workers <= 0 {
		return fmt.Errorf("enrich.workers must be greater than 0")
	}
	if cfg.Enrich.Deadline <= 0 {
		return fmt.Errorf("enrich.deadline must be greater than 0")
	}
	if cfg.Enrich.Factor <= 0 {
		return fmt.Errorf("enrich.factor must be greater than 0")
	}
	if cfg.Enrich.PairURL == "" {
		return fmt.Errorf("enrich.pair_url is required")
	}

	for _, fc := range cfg.Feeds.EnabledFeeds() {
		if fc.Name == "" || fc.URL == "" {
			return fmt.Errorf("every enabled feed needs a name and a url")
		}
	}
	if cfg.Feeds.Trending.Enabled {
		if cfg.Feeds.Trending.Name == "" || cfg.Feeds.Trending.URL == "" {
			return fmt.Errorf("feeds.trending.name and feeds.trending.url are required when trending is enabled")
		}
		if cfg.Feeds.Trending.PageSize <= 0 {
			return fmt.Errorf("feeds.trending.page_size must be greater than 0")
		}
		if cfg.Feeds.Trending.MaxPages <= 0 {
			return fmt.Errorf("feeds.trending.max_pages must be greater than 0")
		}
		if cfg.Feeds.Trending.APIKey == "" && IsProductionLike(AppEnvironment()) {
			return fmt.Errorf("feeds.trending.api_key is required in %s", AppEnvironment())
		}
	}

	if cfg.Cache.Redis.Enabled && cfg.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required when the redis cache is enabled")
	}

	if cfg.Archive.S3.Enabled {
		if cfg.Archive.S3.Bucket == "" {
			return fmt.Errorf("archive.s3.bucket is required when S3 is enabled")
		}
		if cfg.Archive.S3.Region == "" {
			return fmt.Errorf("archive.s3.region is required when S3 is enabled")
		}
		if cfg.Archive.S3.AccessKeyID == "" || cfg.Archive.S3.SecretAccessKey == "" {
			return fmt.Errorf("archive.s3.access_key_id and archive.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Archive.S3.Bucket) {
			return fmt.Errorf("archive.s3.bucket '%s' is invalid", cfg.Archive.S3.Bucket)
		}
	}

	if cfg.Publish.Kafka.Enabled {
		if len(cfg.Publish.Kafka.Brokers) == 0 {
			return fmt.Errorf("publish.kafka.brokers is required when kafka is enabled")
		}
		if cfg.Publish.Kafka.Topic == "" {
			return fmt.Errorf("publish.kafka.topic is required when kafka is enabled")
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}

package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for
// LoadConfig and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

const minimalConfig = `memeflow:
  name: "TestApp"
  version: "1.0"
feeds:
  profiles:
    enabled: true
    name: "profiles"
    url: "https://api.dexscreener.com/token-profiles/latest/v1"
enrich:
  pair_url: "https://api.dexscreener.com/token-pairs/v1"
archive:
  s3:
    enabled: false
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Memeflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Memeflow.Name)
	}
	if cfg.Enrich.Workers != 8 {
		t.Errorf("unexpected default workers: %d", cfg.Enrich.Workers)
	}
	if cfg.Enrich.Deadline != 7*time.Second {
		t.Errorf("unexpected default deadline: %s", cfg.Enrich.Deadline)
	}
	if cfg.Server.DefaultLimit != 10 || cfg.Server.MaxLimit != 100 {
		t.Errorf("unexpected limit defaults: %d/%d", cfg.Server.DefaultLimit, cfg.Server.MaxLimit)
	}
	if got := len(cfg.Feeds.EnabledFeeds()); got != 1 {
		t.Errorf("expected 1 enabled feed, got %d", got)
	}
}

func TestLoadConfigMissingName(t *testing.T) {
	path := writeTempConfig(t, `memeflow:
  version: "1.0"
enrich:
  pair_url: "https://api.dexscreener.com/token-pairs/v1"
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for missing name")
	}
}

func TestLoadConfigTrendingValidation(t *testing.T) {
	path := writeTempConfig(t, `memeflow:
  name: "TestApp"
  version: "1.0"
feeds:
  trending:
    enabled: true
    name: "trending"
    url: "https://trending.example/api"
enrich:
  pair_url: "https://api.dexscreener.com/token-pairs/v1"
`)

	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "page_size") {
		t.Fatalf("expected trending page_size validation error, got %v", err)
	}
}

func TestTrendingAPIKeyFromEnv(t *testing.T) {
	t.Setenv("TRENDING_API_KEY", "sekret")

	path := writeTempConfig(t, `memeflow:
  name: "TestApp"
  version: "1.0"
feeds:
  trending:
    enabled: true
    name: "trending"
    url: "https://trending.example/api"
    page_size: 50
    max_pages: 2
enrich:
  pair_url: "https://api.dexscreener.com/token-pairs/v1"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Feeds.Trending.APIKey != "sekret" {
		t.Errorf("api key not taken from environment: %q", cfg.Feeds.Trending.APIKey)
	}
}

func TestS3BucketValidation(t *testing.T) {
	path := writeTempConfig(t, `memeflow:
  name: "TestApp"
  version: "1.0"
enrich:
  pair_url: "https://api.dexscreener.com/token-pairs/v1"
archive:
  s3:
    enabled: true
    bucket: "Invalid..Bucket"
    region: "us-east-1"
    access_key_id: "k"
    secret_access_key: "s"
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected invalid bucket error")
	}
}

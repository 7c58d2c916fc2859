// Package config loads the updater's configuration from YAML, following
// the teacher's LoadXConfig/Validate convention, with code defaults as a
// fallback so the updater runs unconfigured out of the box.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Region describes one storefront/price-history region pairing.
type Region struct {
	SteamCC      string `yaml:"steam_cc"`
	ITADCountry  string `yaml:"itad_country"`
	Currency     string `yaml:"currency"`
}

// RateControllerConfig mirrors ratelimit.Config for YAML loading.
type RateControllerConfig struct {
	TargetRPS          float64 `yaml:"target_rps"`
	WindowSeconds       int     `yaml:"window_seconds"`
	WindowLimit         int     `yaml:"window_limit"`
	InitialConcurrency  int     `yaml:"initial_concurrency"`
	WarmupRequests      int     `yaml:"warmup_requests"`
}

// CircuitConfig mirrors circuitbreak.Config for YAML loading.
type CircuitConfig struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	TimeoutSeconds      int           `yaml:"timeout_seconds"`
	IntervalSeconds     int           `yaml:"interval_seconds"`
}

func (c CircuitConfig) Timeout() time.Duration  { return time.Duration(c.TimeoutSeconds) * time.Second }
func (c CircuitConfig) Interval() time.Duration { return time.Duration(c.IntervalSeconds) * time.Second }

// BudgetConfig is a soft daily request cap; Limit == 0 disables tracking.
type BudgetConfig struct {
	Limit         int64   `yaml:"limit"`
	ResetHourUTC  int     `yaml:"reset_hour_utc"`
	WarnThreshold float64 `yaml:"warn_threshold"`
}

// PersistenceConfig selects and configures the storage backend.
type PersistenceConfig struct {
	Mode          string `yaml:"mode"` // "local" or "remote"
	LocalDir      string `yaml:"local_dir"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	Namespace     string `yaml:"namespace"`
}

// ResolverConfig holds title-matching thresholds and keyword lists.
type ResolverConfig struct {
	ExcludeKeywords       []string `yaml:"exclude_keywords"`
	KeepEditions          []string `yaml:"keep_editions"`
	ScoreExactMatch       int      `yaml:"score_exact_match"`
	ScorePartialMatchBase int      `yaml:"score_partial_match_base"`
	ScoreSimilarityMult   int      `yaml:"score_similarity_multiplier"`
	AutoAcceptThreshold   int      `yaml:"auto_accept_threshold"`
	CandidateThreshold    int      `yaml:"candidate_threshold"`
}

// Config is the full, validated updater configuration.
type Config struct {
	Regions          map[string]Region   `yaml:"regions"`
	DefaultRegions   []string            `yaml:"default_regions"`
	StoreRateLimit   RateControllerConfig `yaml:"store_rate_limit"`
	ITADRateLimit    RateControllerConfig `yaml:"itad_rate_limit"`
	StoreCircuit     CircuitConfig        `yaml:"store_circuit"`
	ITADCircuit      CircuitConfig        `yaml:"itad_circuit"`
	StoreBudget      BudgetConfig         `yaml:"store_budget"`
	ITADBudget       BudgetConfig         `yaml:"itad_budget"`
	Persistence      PersistenceConfig    `yaml:"persistence"`
	Resolver         ResolverConfig       `yaml:"resolver"`
	CheckpointEvery  int                  `yaml:"checkpoint_every"`
	BatchThreshold   int                  `yaml:"batch_threshold"`
}

// Default returns the built-in configuration, matching the original
// Store/ITAD rate-controller parameters exactly: 0.67 rps / 300s / 200req
// for the storefront, 1.0 rps / 60s / 100req for price-history.
func Default() *Config {
	return &Config{
		Regions: map[string]Region{
			"JP": {SteamCC: "jp", ITADCountry: "JP", Currency: "JPY"},
			"US": {SteamCC: "us", ITADCountry: "US", Currency: "USD"},
			"UK": {SteamCC: "uk", ITADCountry: "GB", Currency: "GBP"},
			"EU": {SteamCC: "de", ITADCountry: "DE", Currency: "EUR"},
		},
		DefaultRegions: []string{"JP", "US"},
		StoreRateLimit: RateControllerConfig{
			TargetRPS: 0.67, WindowSeconds: 300, WindowLimit: 200,
			InitialConcurrency: 5, WarmupRequests: 20,
		},
		ITADRateLimit: RateControllerConfig{
			TargetRPS: 1.0, WindowSeconds: 60, WindowLimit: 100,
			InitialConcurrency: 5, WarmupRequests: 20,
		},
		StoreCircuit: CircuitConfig{ConsecutiveFailures: 5, TimeoutSeconds: 30, IntervalSeconds: 60},
		ITADCircuit:  CircuitConfig{ConsecutiveFailures: 5, TimeoutSeconds: 30, IntervalSeconds: 60},
		Persistence: PersistenceConfig{
			Mode:      "local",
			LocalDir:  "data/current",
			Namespace: "gamevault",
		},
		Resolver: ResolverConfig{
			ExcludeKeywords: []string{
				"Soundtrack", "OST", "Original Soundtrack", "Music",
				"Demo", "Playtest", "Beta", "Test",
				"DLC", "Expansion", "Season Pass", "Content Pack",
				"Artbook", "Digital Art", "Art Book",
				"Soundtrack Edition", "Deluxe Edition", "Ultimate Edition",
				"Prologue", "Epilogue", "Prequel",
			},
			KeepEditions: []string{
				"Complete Edition", "Definitive Edition", "GOTY",
				"Game of the Year", "Remastered", "Enhanced Edition",
				"Director's Cut", "Special Edition",
			},
			ScoreExactMatch:       100,
			ScorePartialMatchBase: 90,
			ScoreSimilarityMult:   80,
			AutoAcceptThreshold:   80,
			CandidateThreshold:    60,
		},
		CheckpointEvery: 1000,
		BatchThreshold:  1000,
	}
}

// Load reads YAML from path, overlaying it onto Default(), then Validates
// the result. A missing file is not an error: Default() is returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural invariants the rest of the updater relies on.
func (c *Config) Validate() error {
	if len(c.Regions) == 0 {
		return fmt.Errorf("config: no regions defined")
	}
	for _, r := range c.DefaultRegions {
		if _, ok := c.Regions[r]; !ok {
			return fmt.Errorf("config: default region %q not in regions map", r)
		}
	}
	if c.Resolver.AutoAcceptThreshold < c.Resolver.CandidateThreshold {
		return fmt.Errorf("config: auto_accept_threshold must be >= candidate_threshold")
	}
	if c.Persistence.Mode != "local" && c.Persistence.Mode != "remote" {
		return fmt.Errorf("config: persistence mode must be local or remote, got %q", c.Persistence.Mode)
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = 1000
	}
	if c.BatchThreshold <= 0 {
		c.BatchThreshold = 1000
	}
	return nil
}

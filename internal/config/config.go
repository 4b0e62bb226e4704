package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/tokenguard/internal/domain/money"
	"github.com/kailas-cloud/tokenguard/internal/domain/pricing"
	"github.com/kailas-cloud/tokenguard/internal/domain/tier"
)

const defaultSoftProbability = 0.30

// Config holds the tokenguard configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Auth      AuthConfig      `yaml:"auth"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Budget    BudgetConfig    `yaml:"budget"`
	Quota     QuotaConfig     `yaml:"quota"`
	Anonymous AnonymousConfig `yaml:"anonymous"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Audit     AuditConfig     `yaml:"audit"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds admin API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool `yaml:"trust_proxy"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds key-value store connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis, valkey (default: memory)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// UpstreamConfig holds the chat completion provider settings.
type UpstreamConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

// PricingConfig holds the standard rate table (USD per million tokens) and
// the discount window ("HH:MM", UTC).
type PricingConfig struct {
	CacheHitInput  float64 `yaml:"cache_hit_input"`
	CacheMissInput float64 `yaml:"cache_miss_input"`
	Output         float64 `yaml:"output"`
	DiscountStart  string  `yaml:"discount_start"`
	DiscountEnd    string  `yaml:"discount_end"`
}

// BudgetConfig holds the global spend ceiling settings in USD.
type BudgetConfig struct {
	Default          float64   `yaml:"default"`
	Min              float64   `yaml:"min"`
	Max              float64   `yaml:"max"`
	AlertThresholds  []float64 `yaml:"alert_thresholds"`
	ProjectionWindow int       `yaml:"projection_window"`
}

// QuotaConfig holds per-tier token allowances and the upgrade advisory policy.
type QuotaConfig struct {
	Tiers    map[string]TierConfig `yaml:"tiers"`
	Advisory AdvisoryConfig        `yaml:"advisory"`
}

// TierConfig is one tier's allowance. Zero means not enforced.
type TierConfig struct {
	DailyLimit   int64 `yaml:"daily_limit"`
	MonthlyLimit int64 `yaml:"monthly_limit"`
}

// AdvisoryConfig holds the low-allowance advisory watermarks.
type AdvisoryConfig struct {
	HardWatermark int64 `yaml:"hard_watermark"`
	SoftWatermark int64 `yaml:"soft_watermark"`
	// SoftProbability is a pointer so an explicit 0 disables the soft advisory.
	SoftProbability *float64 `yaml:"soft_probability"`
}

// Probability returns the soft advisory probability.
func (a AdvisoryConfig) Probability() float64 {
	if a.SoftProbability == nil {
		return defaultSoftProbability
	}
	return *a.SoftProbability
}

// AnonymousConfig holds unauthenticated access settings.
type AnonymousConfig struct {
	Quota        int64 `yaml:"quota"`
	TTLHours     int   `yaml:"ttl_hours"`
	IPDailyLimit int64 `yaml:"ip_daily_limit"`
}

// RateLimitConfig holds the per-principal chat rate limit.
type RateLimitConfig struct {
	PerMinute int64 `yaml:"per_minute"`
}

// AuditConfig holds the SQLite usage audit log settings. An empty path disables it.
type AuditConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// SchedulerConfig holds cron specs for background jobs. An empty spec disables a job.
type SchedulerConfig struct {
	BudgetSnapshot string `yaml:"budget_snapshot"`
	AuditPrune     string `yaml:"audit_prune"`
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://api.deepseek.com"
	}
	if c.Upstream.Model == "" {
		c.Upstream.Model = "deepseek-chat"
	}
	if c.Upstream.MaxTokens <= 0 {
		c.Upstream.MaxTokens = 2000
	}
	if c.Upstream.TimeoutSec <= 0 {
		c.Upstream.TimeoutSec = 30
	}
	if c.Pricing.CacheHitInput == 0 && c.Pricing.CacheMissInput == 0 && c.Pricing.Output == 0 {
		c.Pricing.CacheHitInput = pricing.DefaultCacheHitInputPerM
		c.Pricing.CacheMissInput = pricing.DefaultCacheMissInputPerM
		c.Pricing.Output = pricing.DefaultOutputPerM
	}
	if c.Pricing.DiscountStart == "" {
		c.Pricing.DiscountStart = "16:30"
	}
	if c.Pricing.DiscountEnd == "" {
		c.Pricing.DiscountEnd = "00:30"
	}
	if c.Budget.Default <= 0 {
		c.Budget.Default = 2.00
	}
	if c.Budget.Min <= 0 {
		c.Budget.Min = 0.10
	}
	if c.Budget.Max <= 0 {
		c.Budget.Max = 100.00
	}
	if len(c.Budget.AlertThresholds) == 0 {
		c.Budget.AlertThresholds = []float64{0.80, 0.90, 0.95}
	}
	if c.Budget.ProjectionWindow <= 0 {
		c.Budget.ProjectionWindow = 100
	}
	if c.Quota.Tiers == nil {
		c.Quota.Tiers = make(map[string]TierConfig)
	}
	for t, p := range tier.DefaultTable() {
		if _, ok := c.Quota.Tiers[string(t)]; !ok {
			c.Quota.Tiers[string(t)] = TierConfig{DailyLimit: p.DailyLimit, MonthlyLimit: p.MonthlyLimit}
		}
	}
	if c.Quota.Advisory.HardWatermark <= 0 {
		c.Quota.Advisory.HardWatermark = 1000
	}
	if c.Quota.Advisory.SoftWatermark <= 0 {
		c.Quota.Advisory.SoftWatermark = 2000
	}
	if c.Anonymous.Quota <= 0 {
		c.Anonymous.Quota = 1000
	}
	if c.Anonymous.TTLHours <= 0 {
		c.Anonymous.TTLHours = 24
	}
	if c.Anonymous.IPDailyLimit <= 0 {
		c.Anonymous.IPDailyLimit = 1000
	}
	if c.RateLimit.PerMinute <= 0 {
		c.RateLimit.PerMinute = 10
	}
	if c.Audit.RetentionDays <= 0 {
		c.Audit.RetentionDays = 90
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "memory":
	case "redis", "valkey":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver must be memory, redis or valkey, got %q", c.Database.Driver)
	}
	if _, err := c.Pricing.Schedule(); err != nil {
		return err
	}
	if c.Budget.Min > c.Budget.Max {
		return fmt.Errorf("budget.min %.2f exceeds budget.max %.2f", c.Budget.Min, c.Budget.Max)
	}
	if c.Budget.Default < c.Budget.Min || c.Budget.Default > c.Budget.Max {
		return fmt.Errorf("budget.default %.2f is outside [%.2f, %.2f]", c.Budget.Default, c.Budget.Min, c.Budget.Max)
	}
	if err := validateThresholds(c.Budget.AlertThresholds); err != nil {
		return err
	}
	if _, err := c.Quota.Table(); err != nil {
		return err
	}
	if p := c.Quota.Advisory.Probability(); p < 0 || p > 1 {
		return fmt.Errorf("quota.advisory.soft_probability must be in [0, 1], got %v", p)
	}
	if c.Quota.Advisory.HardWatermark > c.Quota.Advisory.SoftWatermark {
		return fmt.Errorf("quota.advisory.hard_watermark must not exceed soft_watermark")
	}
	return nil
}

func validateThresholds(ts []float64) error {
	for i, t := range ts {
		if t <= 0 || t > 1 {
			return fmt.Errorf("budget.alert_thresholds[%d] must be in (0, 1], got %v", i, t)
		}
		if i > 0 && t <= ts[i-1] {
			return errors.New("budget.alert_thresholds must be strictly ascending")
		}
	}
	return nil
}

// Schedule converts the pricing section into a rate schedule.
func (p PricingConfig) Schedule() (pricing.Schedule, error) {
	if p.CacheHitInput < 0 || p.CacheMissInput < 0 || p.Output < 0 {
		return pricing.Schedule{}, errors.New("pricing rates must not be negative")
	}
	w, err := pricing.ParseWindow(p.DiscountStart, p.DiscountEnd)
	if err != nil {
		return pricing.Schedule{}, fmt.Errorf("pricing: %w", err)
	}
	return pricing.Schedule{
		Standard: pricing.Rates{
			CacheHitInput:  money.PerMillionTokens(p.CacheHitInput),
			CacheMissInput: money.PerMillionTokens(p.CacheMissInput),
			Output:         money.PerMillionTokens(p.Output),
		},
		Discount: w,
	}, nil
}

// Table converts the tiers section into a policy table.
func (q QuotaConfig) Table() (tier.Table, error) {
	tb := make(tier.Table, len(q.Tiers))
	for name, tc := range q.Tiers {
		t, err := tier.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("quota.tiers: %w", err)
		}
		if tc.DailyLimit < 0 || tc.MonthlyLimit < 0 {
			return nil, fmt.Errorf("quota.tiers.%s: limits must not be negative", name)
		}
		tb[t] = tier.Policy{DailyLimit: tc.DailyLimit, MonthlyLimit: tc.MonthlyLimit}
	}
	return tb, nil
}

// Ceiling returns the default, min and max budget as amounts.
func (b BudgetConfig) Ceiling() (def, lo, hi money.Amount) {
	return money.FromDollars(b.Default), money.FromDollars(b.Min), money.FromDollars(b.Max)
}

// Thresholds returns a copy of the alert thresholds.
func (b BudgetConfig) Thresholds() []float64 {
	return slices.Clone(b.AlertThresholds)
}

// TTL returns the anonymous token lifetime.
func (a AnonymousConfig) TTL() time.Duration {
	return time.Duration(a.TTLHours) * time.Hour
}

// Path locates the config file for env.
func Path(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LoadDotEnv loads the first .env found. Existing variables win.
func LoadDotEnv() {
	for _, p := range []string{".env", filepath.Join("config", ".env")} {
		if fileExists(p) {
			_ = godotenv.Load(p)
			return
		}
	}
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(strings.TrimSpace(varName))
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Bootstrap is the root configuration of the ReelGuard service.
type Bootstrap struct {
	Server      *Server
	Data        *Data
	Reliability *Reliability
	Log         *Log
}

// Server holds transport server configuration.
type Server struct {
	Http *ServerHTTP
}

// ServerHTTP holds HTTP server configuration.
type ServerHTTP struct {
	Network string
	Addr    string
	Timeout time.Duration
}

// Data holds data layer configuration.
type Data struct {
	Database *Database
	Redis    *Redis
	Provider *Provider
}

// Database holds MySQL connection configuration.
type Database struct {
	Driver string
	Source string
}

// Redis holds Redis connection configuration.
type Redis struct {
	Network      string
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Provider holds the upstream generative recommendation provider configuration.
type Provider struct {
	BaseURL  string
	APIKey   string
	ProxyURL string
	Timeout  time.Duration
}

// Reliability holds all thresholds and timeouts of the reliability core.
type Reliability struct {
	Breaker      *Breaker
	Health       *Health
	Orchestrator *Orchestrator
	Fallback     *Fallback
	Alerting     *Alerting
}

// Breaker holds circuit breaker thresholds.
type Breaker struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long an open circuit waits before admitting a probe.
	RecoveryTimeout time.Duration
	// SuccessThreshold is the number of consecutive half-open successes that close the circuit.
	SuccessThreshold int
	// OperationTimeout bounds every protected call.
	OperationTimeout time.Duration
}

// Health holds health aggregation configuration.
type Health struct {
	// FallbackThreshold is the error rate percentage above which the system is degraded.
	FallbackThreshold float64
	// DegradedModeThreshold is the error rate percentage above which the system is critical.
	DegradedModeThreshold float64
	// CheckInterval is the period of the background health snapshot tick.
	CheckInterval time.Duration
	// OrchestrationWindow is the trailing window used for mode selection.
	OrchestrationWindow time.Duration
	// AlertingWindow is the trailing window used for the alerting snapshot.
	AlertingWindow time.Duration
	// MetricsResetInterval is the period of the soft counter reset.
	MetricsResetInterval time.Duration
}

// Orchestrator holds retry and degraded-mode configuration.
type Orchestrator struct {
	MaxRetries int
	RetryDelay time.Duration
	// DegradedConfidenceFactor scales fallback confidence in degraded mode.
	DegradedConfidenceFactor float64
	// DegradedSizeFactor scales the requested result size in degraded mode.
	DegradedSizeFactor float64
	// CacheTTL is how long reliable results are cached for the cache_first path.
	CacheTTL time.Duration
}

// Fallback holds the ordered strategy table of the cascade.
type Fallback struct {
	Strategies []*Strategy
}

// Strategy describes one fallback strategy. The cascade tries strategies
// in descending Weight order.
type Strategy struct {
	Method          string
	Weight          float64
	MinConfidence   float64
	RequiresContext bool
	MaxResponseTime time.Duration
}

// Alerting holds alert manager configuration.
type Alerting struct {
	// DefaultCooldown is applied to rules that do not declare their own cooldown.
	DefaultCooldown time.Duration
}

// Log holds logging configuration.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with REELGUARD_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Required environment variables:
//   - MYSQL_DSN or REELGUARD_DATA_DATABASE_SOURCE: MySQL connection string
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with REELGUARD_ prefix
	v.SetEnvPrefix("REELGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without REELGUARD_ prefix) for compatibility
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "REELGUARD_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "REELGUARD_DATA_REDIS_ADDR")
	_ = v.BindEnv("data.provider.api_key", "PROVIDER_API_KEY", "REELGUARD_DATA_PROVIDER_API_KEY")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// If config file is specified but not found, return error
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			Http: &ServerHTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: v.GetDuration("server.http.timeout"),
			},
		},
		Data: &Data{
			Database: &Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  v.GetDuration("data.redis.read_timeout"),
				WriteTimeout: v.GetDuration("data.redis.write_timeout"),
			},
			Provider: &Provider{
				BaseURL:  v.GetString("data.provider.base_url"),
				APIKey:   v.GetString("data.provider.api_key"),
				ProxyURL: v.GetString("data.provider.proxy_url"),
				Timeout:  v.GetDuration("data.provider.timeout"),
			},
		},
		Reliability: &Reliability{
			Breaker: &Breaker{
				FailureThreshold: v.GetInt("reliability.breaker.failure_threshold"),
				RecoveryTimeout:  v.GetDuration("reliability.breaker.recovery_timeout"),
				SuccessThreshold: v.GetInt("reliability.breaker.success_threshold"),
				OperationTimeout: v.GetDuration("reliability.breaker.operation_timeout"),
			},
			Health: &Health{
				FallbackThreshold:     v.GetFloat64("reliability.health.fallback_threshold"),
				DegradedModeThreshold: v.GetFloat64("reliability.health.degraded_mode_threshold"),
				CheckInterval:         v.GetDuration("reliability.health.check_interval"),
				OrchestrationWindow:   v.GetDuration("reliability.health.orchestration_window"),
				AlertingWindow:        v.GetDuration("reliability.health.alerting_window"),
				MetricsResetInterval:  v.GetDuration("reliability.health.metrics_reset_interval"),
			},
			Orchestrator: &Orchestrator{
				MaxRetries:               v.GetInt("reliability.orchestrator.max_retries"),
				RetryDelay:               v.GetDuration("reliability.orchestrator.retry_delay"),
				DegradedConfidenceFactor: v.GetFloat64("reliability.orchestrator.degraded_confidence_factor"),
				DegradedSizeFactor:       v.GetFloat64("reliability.orchestrator.degraded_size_factor"),
				CacheTTL:                 v.GetDuration("reliability.orchestrator.cache_ttl"),
			},
			Fallback: &Fallback{
				Strategies: loadStrategies(v),
			},
			Alerting: &Alerting{
				DefaultCooldown: v.GetDuration("reliability.alerting.default_cooldown"),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// Validate required fields
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// defaultStrategies is the built-in cascade ordering, highest confidence first.
// Operators may replace it wholesale via reliability.fallback.strategies.
var defaultStrategies = []*Strategy{
	{Method: "user_history", Weight: 1.0, MinConfidence: 0.8, RequiresContext: true, MaxResponseTime: 2 * time.Second},
	{Method: "collaborative", Weight: 0.9, MinConfidence: 0.7, RequiresContext: true, MaxResponseTime: 3 * time.Second},
	{Method: "content_based", Weight: 0.8, MinConfidence: 0.6, RequiresContext: true, MaxResponseTime: 3 * time.Second},
	{Method: "genre_popularity", Weight: 0.6, MinConfidence: 0.5, RequiresContext: false, MaxResponseTime: 2 * time.Second},
	{Method: "trending", Weight: 0.4, MinConfidence: 0.4, RequiresContext: false, MaxResponseTime: 2 * time.Second},
	{Method: "random_popular", Weight: 0.2, MinConfidence: 0.2, RequiresContext: false, MaxResponseTime: 1 * time.Second},
	{Method: "emergency_static", Weight: 0.1, MinConfidence: 0.0, RequiresContext: false, MaxResponseTime: 500 * time.Millisecond},
}

// loadStrategies reads the strategy table from config, falling back to the
// built-in ordering. The returned slice is sorted by descending weight.
func loadStrategies(v *viper.Viper) []*Strategy {
	var raw []struct {
		Method          string        `mapstructure:"method"`
		Weight          float64       `mapstructure:"weight"`
		MinConfidence   float64       `mapstructure:"min_confidence"`
		RequiresContext bool          `mapstructure:"requires_context"`
		MaxResponseTime time.Duration `mapstructure:"max_response_time"`
	}

	strategies := defaultStrategies
	if err := v.UnmarshalKey("reliability.fallback.strategies", &raw); err == nil && len(raw) > 0 {
		strategies = make([]*Strategy, 0, len(raw))
		for _, s := range raw {
			strategies = append(strategies, &Strategy{
				Method:          s.Method,
				Weight:          s.Weight,
				MinConfidence:   s.MinConfidence,
				RequiresContext: s.RequiresContext,
				MaxResponseTime: s.MaxResponseTime,
			})
		}
	}

	// The cascade relies on descending weight order; enforce it once here
	// so runtime code never has to sort.
	sorted := make([]*Strategy, len(strategies))
	copy(sorted, strategies)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Weight > sorted[j].Weight
	})
	return sorted
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 30*time.Second)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is required from environment

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	v.SetDefault("data.provider.base_url", "http://localhost:8090")
	v.SetDefault("data.provider.timeout", 10*time.Second)

	// Reliability defaults
	v.SetDefault("reliability.breaker.failure_threshold", 5)
	v.SetDefault("reliability.breaker.recovery_timeout", 30*time.Second)
	v.SetDefault("reliability.breaker.success_threshold", 3)
	v.SetDefault("reliability.breaker.operation_timeout", 10*time.Second)

	v.SetDefault("reliability.health.fallback_threshold", 10.0)
	v.SetDefault("reliability.health.degraded_mode_threshold", 25.0)
	v.SetDefault("reliability.health.check_interval", 30*time.Second)
	v.SetDefault("reliability.health.orchestration_window", 1*time.Minute)
	v.SetDefault("reliability.health.alerting_window", 5*time.Minute)
	v.SetDefault("reliability.health.metrics_reset_interval", 1*time.Hour)

	v.SetDefault("reliability.orchestrator.max_retries", 3)
	v.SetDefault("reliability.orchestrator.retry_delay", 1*time.Second)
	v.SetDefault("reliability.orchestrator.degraded_confidence_factor", 0.8)
	v.SetDefault("reliability.orchestrator.degraded_size_factor", 0.5)
	v.SetDefault("reliability.orchestrator.cache_ttl", 5*time.Minute)

	v.SetDefault("reliability.alerting.default_cooldown", 5*time.Minute)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing required fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	// Check required database configuration
	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		missingFields = append(missingFields, "data.database.source (MYSQL_DSN)")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	if r := bc.Reliability; r != nil {
		if r.Breaker != nil && r.Breaker.FailureThreshold <= 0 {
			return fmt.Errorf("reliability.breaker.failure_threshold must be positive, got %d", r.Breaker.FailureThreshold)
		}
		if r.Health != nil && r.Health.FallbackThreshold > r.Health.DegradedModeThreshold {
			return fmt.Errorf("reliability.health.fallback_threshold (%.1f) must not exceed degraded_mode_threshold (%.1f)",
				r.Health.FallbackThreshold, r.Health.DegradedModeThreshold)
		}
	}

	return nil
}

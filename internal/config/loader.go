package config

import (
	"context"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/okian/refmatch/internal/domain/eligibility"
)

// Environment variables controlling the loader.
const (
	EnvPrefix     = "REFMATCH_"
	EnvConfigFile = "REFMATCH_CONFIG"
)

const weightTolerance = 1e-6

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if REFMATCH_CONFIG is set
//  3. env (prefix REFMATCH_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// REFMATCH_MAX_DISTANCE_KM -> max_distance_km
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		if s == strings.ToLower(EnvConfigFile) {
			return ""
		}
		return strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var metricName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate reports the first inconsistency found, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Addr) == "" {
		return invalid("addr must not be empty")
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return invalid("postgres_dsn is required for store_backend=postgres")
		}
	default:
		return invalid("unknown store_backend %q", c.StoreBackend)
	}

	for key, backend := range map[string]string{"lock_backend": c.LockBackend, "dedupe_backend": c.DedupeBackend} {
		switch backend {
		case BackendMemory:
		case BackendRedis:
			if c.RedisURL == "" {
				return invalid("redis_url is required for %s=redis", key)
			}
		default:
			return invalid("unknown %s %q", key, backend)
		}
	}

	switch c.NotifyBackend {
	case BackendLog:
	case BackendRedis:
		if c.RedisURL == "" {
			return invalid("redis_url is required for notify_backend=redis")
		}
	case BackendAMQP:
		if c.AMQPURL == "" {
			return invalid("amqp_url is required for notify_backend=amqp")
		}
	default:
		return invalid("unknown notify_backend %q", c.NotifyBackend)
	}

	for key, name := range map[string]string{"metrics_namespace": c.MetricsNamespace, "metrics_subsystem": c.MetricsSubsystem} {
		if name != "" && !metricName.MatchString(name) {
			return invalid("%s %q is not a valid metric name", key, name)
		}
	}
	for label := range c.MetricsLabels {
		if !metricName.MatchString(label) || strings.HasPrefix(label, "__") {
			return invalid("metrics_labels key %q is not a valid label name", label)
		}
	}
	for i := 1; i < len(c.MetricsBucketsMS); i++ {
		if c.MetricsBucketsMS[i] <= c.MetricsBucketsMS[i-1] {
			return invalid("metrics_buckets_ms must be strictly increasing")
		}
	}

	switch c.EmergencyFallback {
	case FallbackWiden, FallbackOptedInOnly:
	default:
		return invalid("unknown emergency_fallback %q", c.EmergencyFallback)
	}

	if c.MaxDistanceKm <= 0 || c.MaxDistanceKm > eligibility.DistanceLimitKm {
		return invalid("max_distance_km must be in (0,%g]", eligibility.DistanceLimitKm)
	}
	if len(c.LevelOrder) == 0 {
		return invalid("level_order must not be empty")
	}
	if c.EmergencyWindowHours <= 0 || c.ConfirmationWindowHours <= 0 || c.EmergencyConfirmationWindowMinutes <= 0 {
		return invalid("emergency and confirmation windows must be positive")
	}

	normal := c.WeightReliability + c.WeightDistance + c.WeightExperience
	if math.Abs(normal-1) > weightTolerance {
		return invalid("normal weights must sum to 1, got %.4f", normal)
	}
	emergency := c.EmergencyWeightAvailability + c.EmergencyWeightReliability +
		c.EmergencyWeightDistance + c.EmergencyWeightExperience
	if math.Abs(emergency-1) > weightTolerance {
		return invalid("emergency weights must sum to 1, got %.4f", emergency)
	}

	if c.SurgeCap < 1 {
		return invalid("surge_cap must be at least 1")
	}
	if c.PlatformFeePercentage < 0 || c.PlatformFeePercentage >= 1 {
		return invalid("platform_fee_percentage must be in [0,1)")
	}
	if c.InitialReliability < 0 || c.InitialReliability > 1 {
		return invalid("initial_reliability must be in [0,1]")
	}
	if c.LoadAtCapFactor <= 0 || c.LoadAtCapFactor > 1 || c.LoadNearCapPenalty < 0 || c.LoadNearCapPenalty >= 1 {
		return invalid("load factors must keep every multiplier in (0,1]")
	}
	return nil
}

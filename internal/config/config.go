// Package config defines service configuration and its defaults.
//
// Conventions:
//   - Keys are flat snake_case so every field can be overridden with a
//     REFMATCH_<KEY> environment variable.
//   - New(ctx) returns defaults; Load(ctx) layers file and env on top.
package config

import (
	"context"
	"runtime"
)

// Backend names accepted by the *_backend keys.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendLog      = "log"
	BackendAMQP     = "amqp"
)

// Emergency fallback policies.
const (
	FallbackWiden       = "widen"
	FallbackOptedInOnly = "opted_in_only"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Metrics naming. Labels are attached to every series, e.g.
	// {region: eu-west, instance: a}.
	MetricsNamespace string            `koanf:"metrics_namespace"`
	MetricsSubsystem string            `koanf:"metrics_subsystem"`
	MetricsBucketsMS []float64         `koanf:"metrics_buckets_ms"`
	MetricsLabels    map[string]string `koanf:"metrics_labels"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`
	// CORSOrigins lists origins allowed to call the API from a browser.
	CORSOrigins []string `koanf:"cors_origins"`

	// Backends.
	StoreBackend   string `koanf:"store_backend"`
	PostgresDSN    string `koanf:"postgres_dsn"`
	LockBackend    string `koanf:"lock_backend"`
	LockTTLMS      int    `koanf:"lock_ttl_ms"`
	RedisURL       string `koanf:"redis_url"`
	DedupeBackend  string `koanf:"dedupe_backend"`
	DedupeSize     int    `koanf:"dedupe_size"`
	DedupeTTLHours int    `koanf:"dedupe_ttl_hours"`
	NotifyBackend  string `koanf:"notify_backend"`
	NotifyStream   string `koanf:"notify_stream"`
	AMQPURL        string `koanf:"amqp_url"`
	AMQPExchange   string `koanf:"amqp_exchange"`

	// Outbox and dispatch.
	OutboxSize          int `koanf:"outbox_size"`
	DispatcherWorkers   int `koanf:"dispatcher_workers"`
	DispatchMaxAttempts int `koanf:"dispatch_max_attempts"`
	DispatchBackoffMS   int `koanf:"dispatch_backoff_ms"`

	// Pass cadence owned by cmd/refmatch.
	MatchIntervalSec  int `koanf:"match_interval_sec"`
	PassConcurrency   int `koanf:"pass_concurrency"`
	StaleWriteRetries int `koanf:"stale_write_retries"`

	// Eligibility.
	MaxDistanceKm         float64  `koanf:"max_distance_km"`
	ConflictBufferMinutes int      `koanf:"conflict_buffer_minutes"`
	LevelOrder            []string `koanf:"level_order"`
	EmergencyFallback     string   `koanf:"emergency_fallback"`

	// Timing.
	EmergencyWindowHours               int `koanf:"emergency_window_hours"`
	ConfirmationWindowHours            int `koanf:"confirmation_window_hours"`
	EmergencyConfirmationWindowMinutes int `koanf:"emergency_confirmation_window_minutes"`
	ReminderLeadHours                  int `koanf:"reminder_lead_hours"`
	EscalateAfterAttempts              int `koanf:"escalate_after_attempts"`

	// Normal-mode weights.
	WeightReliability float64 `koanf:"weight_reliability"`
	WeightDistance    float64 `koanf:"weight_distance"`
	WeightExperience  float64 `koanf:"weight_experience"`

	// Emergency-mode weights.
	EmergencyWeightAvailability float64 `koanf:"emergency_weight_availability"`
	EmergencyWeightReliability  float64 `koanf:"emergency_weight_reliability"`
	EmergencyWeightDistance     float64 `koanf:"emergency_weight_distance"`
	EmergencyWeightExperience   float64 `koanf:"emergency_weight_experience"`

	// Load balancing.
	WeeklyAssignmentCap int     `koanf:"weekly_assignment_cap"`
	LoadPeriodDays      int     `koanf:"load_period_days"`
	LoadNearCapPenalty  float64 `koanf:"load_near_cap_penalty"`
	LoadAtCapFactor     float64 `koanf:"load_at_cap_factor"`

	// Fees.
	SurgeCap              float64                       `koanf:"surge_cap"`
	SurgeEscalationStep   float64                       `koanf:"surge_escalation_step"`
	PlatformFeePercentage float64                       `koanf:"platform_fee_percentage"`
	BaseRates             map[string]map[string]float64 `koanf:"base_rates"`

	// Reliability.
	InitialReliability      float64 `koanf:"initial_reliability"`
	StreakBonusStep         float64 `koanf:"streak_bonus_step"`
	StreakBonusCap          float64 `koanf:"streak_bonus_cap"`
	NoShowPenalty           float64 `koanf:"no_show_penalty"`
	NoShowPenaltyWindowDays int     `koanf:"no_show_penalty_window_days"`
}

// New creates a Config holding the defaults. Context is accepted first to
// satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:    "info",
		LogFormat:   "text",
		MetricsNamespace: "refmatch",
		MetricsSubsystem: "engine",

		Addr:        ":9080",
		CORSOrigins: []string{"*"},

		StoreBackend:   BackendMemory,
		LockBackend:    BackendMemory,
		LockTTLMS:      10_000,
		DedupeBackend:  BackendMemory,
		DedupeSize:     500_000,
		DedupeTTLHours: 24 * 90,
		NotifyBackend:  BackendLog,
		NotifyStream:   "refmatch.notifications",
		AMQPExchange:   "refmatch.notifications",

		OutboxSize:          10_000,
		DispatcherWorkers:   runtime.NumCPU(),
		DispatchMaxAttempts: 5,
		DispatchBackoffMS:   200,

		MatchIntervalSec:  60,
		PassConcurrency:   4,
		StaleWriteRetries: 3,

		MaxDistanceKm:         50,
		ConflictBufferMinutes: 0,
		LevelOrder:            []string{"entry", "intermediate", "advanced"},
		EmergencyFallback:     FallbackWiden,

		EmergencyWindowHours:               24,
		ConfirmationWindowHours:            24,
		EmergencyConfirmationWindowMinutes: 120,
		ReminderLeadHours:                  12,
		EscalateAfterAttempts:              3,

		WeightReliability: 0.50,
		WeightDistance:    0.30,
		WeightExperience:  0.20,

		EmergencyWeightAvailability: 0.40,
		EmergencyWeightReliability:  0.25,
		EmergencyWeightDistance:     0.20,
		EmergencyWeightExperience:   0.15,

		WeeklyAssignmentCap: 5,
		LoadPeriodDays:      7,
		LoadNearCapPenalty:  0.30,
		LoadAtCapFactor:     0.05,

		SurgeCap:              1.5,
		SurgeEscalationStep:   0.10,
		PlatformFeePercentage: 0.15,
		BaseRates: map[string]map[string]float64{
			"basketball": {"entry": 50, "intermediate": 75, "advanced": 100},
			"football":   {"entry": 60, "intermediate": 85, "advanced": 120},
			"soccer":     {"entry": 45, "intermediate": 70, "advanced": 95},
			"baseball":   {"entry": 45, "intermediate": 70, "advanced": 95},
			"softball":   {"entry": 40, "intermediate": 65, "advanced": 85},
			"volleyball": {"entry": 40, "intermediate": 60, "advanced": 80},
		},

		InitialReliability:      0.85,
		StreakBonusStep:         0.01,
		StreakBonusCap:          0.05,
		NoShowPenalty:           0.10,
		NoShowPenaltyWindowDays: 30,
	}
}

package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/refmatch/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.StoreBackend, convey.ShouldEqual, config.BackendMemory)
				convey.So(cfg.NotifyBackend, convey.ShouldEqual, config.BackendLog)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("REFMATCH_ADDR", ":8080")
			_ = os.Setenv("REFMATCH_MAX_DISTANCE_KM", "35.5")
			_ = os.Setenv("REFMATCH_WEEKLY_ASSIGNMENT_CAP", "3")
			_ = os.Setenv("REFMATCH_EMERGENCY_FALLBACK", "opted_in_only")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.MaxDistanceKm, convey.ShouldEqual, 35.5)
				convey.So(cfg.WeeklyAssignmentCap, convey.ShouldEqual, 3)
				convey.So(cfg.EmergencyFallback, convey.ShouldEqual, config.FallbackOptedInOnly)
			})
		})

		convey.Convey("When loading config with a YAML file and env overrides", func() {
			yamlContent := `
addr: ":9090"
pass_concurrency: 8
weight_reliability: 0.6
weight_distance: 0.2
weight_experience: 0.2
base_rates:
  hockey:
    junior: 55
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("REFMATCH_CONFIG", tmpFile)
			_ = os.Setenv("REFMATCH_PASS_CONCURRENCY", "2")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values apply and env wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.PassConcurrency, convey.ShouldEqual, 2)
				convey.So(cfg.WeightReliability, convey.ShouldEqual, 0.6)
				convey.So(cfg.BaseRates["hockey"]["junior"], convey.ShouldEqual, 55)
				convey.So(cfg.BaseRates["soccer"]["entry"], convey.ShouldEqual, 45)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("REFMATCH_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("REFMATCH_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("REFMATCH_OUTBOX_SIZE", "lots")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestConfigValidation(t *testing.T) {
	convey.Convey("Given default configuration", t, func() {
		ctx := context.Background()

		cases := []struct {
			name   string
			mutate func(*config.Config)
			msg    string
		}{
			{"empty addr", func(c *config.Config) { c.Addr = "" }, "addr must not be empty"},
			{"postgres without dsn", func(c *config.Config) { c.StoreBackend = config.BackendPostgres }, "postgres_dsn"},
			{"redis lock without url", func(c *config.Config) { c.LockBackend = config.BackendRedis }, "redis_url"},
			{"amqp without url", func(c *config.Config) { c.NotifyBackend = config.BackendAMQP }, "amqp_url"},
			{"unknown fallback", func(c *config.Config) { c.EmergencyFallback = "panic" }, "emergency_fallback"},
			{"normal weights", func(c *config.Config) { c.WeightReliability = 0.9 }, "normal weights"},
			{"emergency weights", func(c *config.Config) { c.EmergencyWeightAvailability = 0 }, "emergency weights"},
			{"surge cap", func(c *config.Config) { c.SurgeCap = 0.9 }, "surge_cap"},
			{"platform fee", func(c *config.Config) { c.PlatformFeePercentage = 1 }, "platform_fee_percentage"},
			{"distance", func(c *config.Config) { c.MaxDistanceKm = 0 }, "max_distance_km"},
			{"distance beyond 50 km", func(c *config.Config) { c.MaxDistanceKm = 80 }, "max_distance_km"},
			{"metrics namespace", func(c *config.Config) { c.MetricsNamespace = "ref-match" }, "metrics_namespace"},
			{"metrics label", func(c *config.Config) { c.MetricsLabels = map[string]string{"__region": "eu"} }, "metrics_labels"},
			{"metrics buckets", func(c *config.Config) { c.MetricsBucketsMS = []float64{10, 5} }, "metrics_buckets_ms"},
		}

		for _, tc := range cases {
			tc := tc
			convey.Convey("When "+tc.name+" is misconfigured", func() {
				cfg := config.New(ctx)
				tc.mutate(cfg)
				err := cfg.Validate()

				convey.Convey("Then validation fails with ErrInvalidConfig", func() {
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
					convey.So(err.Error(), convey.ShouldContainSubstring, tc.msg)
				})
			})
		}
	})
}

func clearConfigEnvVars() {
	for _, k := range []string{
		"REFMATCH_CONFIG",
		"REFMATCH_ADDR",
		"REFMATCH_MAX_DISTANCE_KM",
		"REFMATCH_WEEKLY_ASSIGNMENT_CAP",
		"REFMATCH_EMERGENCY_FALLBACK",
		"REFMATCH_PASS_CONCURRENCY",
		"REFMATCH_OUTBOX_SIZE",
	} {
		_ = os.Unsetenv(k)
	}
}

func createTempConfigFile(content string) string {
	f, err := os.CreateTemp("", "refmatch-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := f.WriteString(content); err != nil {
		panic(err)
	}
	_ = f.Close()
	return f.Name()
}

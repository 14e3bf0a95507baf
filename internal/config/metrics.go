package config

import "github.com/okian/refmatch/pkg/metrics"

// MetricsOptions maps the metrics keys onto collector options.
func (c *Config) MetricsOptions() []metrics.Option {
	return []metrics.Option{
		metrics.WithNamespace(c.MetricsNamespace),
		metrics.WithSubsystem(c.MetricsSubsystem),
		metrics.WithHistogramBuckets(c.MetricsBucketsMS),
		metrics.WithConstLabels(c.MetricsLabels),
	}
}

// Package metrics provides Prometheus metrics for the refmatch assignment engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Matching
	matchingPasses        prometheus.Counter
	matchingPassDuration  prometheus.Histogram
	offers                *prometheus.CounterVec
	escalations           *prometheus.CounterVec
	matchFailures         prometheus.Counter
	eligibleCandidates    prometheus.Histogram
	pendingGames          prometheus.Gauge
	activeAssignments     prometheus.Gauge
	reliabilityUpdates    prometheus.Counter
	duplicateOutcomes     prometheus.Counter
	transitions           *prometheus.CounterVec
	rejectedTransitions   *prometheus.CounterVec
	staleWriteRetries     prometheus.Counter
	lockWait              prometheus.Histogram
	lockFailures          prometheus.Counter
	remindersSent         prometheus.Counter
	expiredOffers         prometheus.Counter

	// Outbox and dispatch
	outboxCapacity   prometheus.Gauge
	outboxSize       prometheus.Gauge
	outboxEnqueued   prometheus.Counter
	outboxDropped    *prometheus.CounterVec
	dispatched       *prometheus.CounterVec
	dispatchRetries  *prometheus.CounterVec
	dispatchLatency  prometheus.Histogram
	dispatchWorkers  prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure rebuilds the global collectors on a fresh registry and returns
// it. It must run before anything records or serves the registry; earlier
// samples are dropped.
func Configure(opts ...Option) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	all := append(append([]Option(nil), opts...), WithPrometheusRegistry(registry))
	globalManager = NewManager(all...)
	customRegistry = registry
	return registry
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "refmatch",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.matchingPasses = m.counter("matching_passes_total", "Total number of matching passes run")
	m.matchingPassDuration = m.histogram("matching_pass_duration_milliseconds", "Duration of a full matching pass in milliseconds", m.histogramBuckets)
	m.offers = m.counterVec("offers_total", "Offers sent to referees by scoring mode", "mode")
	m.escalations = m.counterVec("escalations_total", "Games escalated to an administrator by reason", "reason")
	m.matchFailures = m.counter("match_failures_total", "Per-game matching attempts that failed with an unexpected error")
	m.eligibleCandidates = m.histogram("eligible_candidates", "Number of eligible referees per matched game", []float64{0, 1, 2, 5, 10, 20, 50, 100})
	m.pendingGames = m.gauge("pending_games", "Games awaiting a referee at the last pass")
	m.activeAssignments = m.gauge("active_assignments", "Assignments in offered or confirmed state")
	m.reliabilityUpdates = m.counter("reliability_updates_total", "Reliability recomputations applied")
	m.duplicateOutcomes = m.counter("duplicate_outcomes_total", "Outcome events ignored as replays")
	m.transitions = m.counterVec("transitions_total", "Assignment state transitions", "from", "to")
	m.rejectedTransitions = m.counterVec("rejected_transitions_total", "Illegal transitions refused by the state machine", "operation")
	m.staleWriteRetries = m.counter("stale_write_retries_total", "Optimistic concurrency conflicts retried from fresh state")
	m.lockWait = m.histogram("lock_wait_milliseconds", "Time spent waiting for a per-game lock", m.histogramBuckets)
	m.lockFailures = m.counter("lock_failures_total", "Per-game lock acquisitions that failed")
	m.remindersSent = m.counter("reminders_total", "Confirmation reminders emitted")
	m.expiredOffers = m.counter("expired_offers_total", "Offers expired without a response")

	m.outboxCapacity = m.gauge("outbox_capacity", "Maximum outbox capacity")
	m.outboxSize = m.gauge("outbox_size", "Intents waiting for dispatch")
	m.outboxEnqueued = m.counter("outbox_enqueued_total", "Intents accepted by the outbox")
	m.outboxDropped = m.counterVec("outbox_dropped_total", "Intents the outbox refused", "reason")
	m.dispatched = m.counterVec("dispatched_total", "Intent deliveries by kind and result", "kind", "result")
	m.dispatchRetries = m.counterVec("dispatch_retries_total", "Intent delivery retries by kind", "kind")
	m.dispatchLatency = m.histogram("dispatch_latency_milliseconds", "Latency of a single intent delivery attempt", m.histogramBuckets)
	m.dispatchWorkers = m.gauge("dispatch_workers", "Running dispatcher workers")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of operations that resulted in errors", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Matching metrics.

// RecordMatchingPass counts a pass and observes its duration.
func RecordMatchingPass(durationMs float64) {
	globalManager.matchingPasses.Inc()
	globalManager.matchingPassDuration.Observe(durationMs)
}

// RecordOffer counts an offer made in the given scoring mode.
func RecordOffer(mode string) {
	globalManager.offers.WithLabelValues(mode).Inc()
}

// RecordEscalation counts an administrator escalation.
func RecordEscalation(reason string) {
	globalManager.escalations.WithLabelValues(reason).Inc()
}

// RecordMatchFailure counts a per-game failure isolated by the pass.
func RecordMatchFailure() {
	globalManager.matchFailures.Inc()
}

// RecordEligibleCandidates observes the size of an eligible set.
func RecordEligibleCandidates(n int) {
	globalManager.eligibleCandidates.Observe(float64(n))
}

// UpdatePendingGames sets the number of games still waiting for a referee.
func UpdatePendingGames(n int) {
	globalManager.pendingGames.Set(float64(n))
}

// UpdateActiveAssignments sets the number of offered or confirmed assignments.
func UpdateActiveAssignments(n int) {
	globalManager.activeAssignments.Set(float64(n))
}

// RecordReliabilityUpdate counts an applied outcome.
func RecordReliabilityUpdate() {
	globalManager.reliabilityUpdates.Inc()
}

// RecordDuplicateOutcome counts a replayed outcome that was ignored.
func RecordDuplicateOutcome() {
	globalManager.duplicateOutcomes.Inc()
}

// RecordTransition counts an assignment transition.
func RecordTransition(from, to string) {
	globalManager.transitions.WithLabelValues(from, to).Inc()
}

// RecordRejectedTransition counts an illegal transition attempt.
func RecordRejectedTransition(operation string) {
	globalManager.rejectedTransitions.WithLabelValues(operation).Inc()
}

// RecordStaleWriteRetry counts a compare-and-swap conflict that was retried.
func RecordStaleWriteRetry() {
	globalManager.staleWriteRetries.Inc()
}

// RecordLockWait observes how long a per-game lock took to acquire.
func RecordLockWait(waitMs float64) {
	globalManager.lockWait.Observe(waitMs)
}

// RecordLockFailure counts a lock that could not be acquired.
func RecordLockFailure() {
	globalManager.lockFailures.Inc()
}

// RecordReminder counts a confirmation reminder.
func RecordReminder() {
	globalManager.remindersSent.Inc()
}

// RecordExpiredOffer counts an offer that timed out.
func RecordExpiredOffer() {
	globalManager.expiredOffers.Inc()
}

// Outbox metrics.

// UpdateOutboxCapacity sets the outbox capacity.
func UpdateOutboxCapacity(capacity int) {
	globalManager.outboxCapacity.Set(float64(capacity))
}

// UpdateOutboxSize sets the current outbox backlog.
func UpdateOutboxSize(size int) {
	globalManager.outboxSize.Set(float64(size))
}

// RecordOutboxEnqueue counts an accepted intent.
func RecordOutboxEnqueue() {
	globalManager.outboxEnqueued.Inc()
}

// RecordOutboxDrop counts an intent the outbox could not accept.
func RecordOutboxDrop(reason string) {
	globalManager.outboxDropped.WithLabelValues(reason).Inc()
}

// RecordDispatch counts a delivery outcome ("ok", "failed", "dead").
func RecordDispatch(kind, result string) {
	globalManager.dispatched.WithLabelValues(kind, result).Inc()
}

// RecordDispatchRetry counts a delivery retry.
func RecordDispatchRetry(kind string) {
	globalManager.dispatchRetries.WithLabelValues(kind).Inc()
}

// RecordDispatchLatency observes a single delivery attempt.
func RecordDispatchLatency(latencyMs float64) {
	globalManager.dispatchLatency.Observe(latencyMs)
}

// UpdateDispatchWorkers sets the number of running dispatcher workers.
func UpdateDispatchWorkers(n int) {
	globalManager.dispatchWorkers.Set(float64(n))
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error metrics.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System metrics.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

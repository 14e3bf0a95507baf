package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("matching"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors are registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.offers.WithLabelValues("normal").Inc()

				families, err := registry.Gather()
				So(err, ShouldBeNil)

				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_matching_offers_total"], ShouldBeTrue)
			})
		})

		Convey("When registering twice on the same registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the duplicate registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording matching activity", func() {
			before := testutil.ToFloat64(globalManager.offers.WithLabelValues("emergency"))
			RecordOffer("emergency")
			RecordOffer("emergency")

			Convey("Then the labelled counter moves", func() {
				So(testutil.ToFloat64(globalManager.offers.WithLabelValues("emergency")), ShouldEqual, before+2)
			})
		})

		Convey("When recording transitions", func() {
			before := testutil.ToFloat64(globalManager.transitions.WithLabelValues("offered", "confirmed"))
			RecordTransition("offered", "confirmed")

			Convey("Then the from/to pair is counted", func() {
				So(testutil.ToFloat64(globalManager.transitions.WithLabelValues("offered", "confirmed")), ShouldEqual, before+1)
			})
		})

		Convey("When updating gauges", func() {
			UpdatePendingGames(7)
			UpdateOutboxSize(3)

			Convey("Then gauges hold the last value", func() {
				So(testutil.ToFloat64(globalManager.pendingGames), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.outboxSize), ShouldEqual, 3)
			})
		})

		Convey("When recording the remaining helpers", func() {
			So(func() {
				RecordMatchingPass(12)
				RecordEscalation("no_eligible_referees")
				RecordMatchFailure()
				RecordEligibleCandidates(4)
				UpdateActiveAssignments(2)
				RecordReliabilityUpdate()
				RecordDuplicateOutcome()
				RecordRejectedTransition("confirm")
				RecordStaleWriteRetry()
				RecordLockWait(1)
				RecordLockFailure()
				RecordReminder()
				RecordExpiredOffer()
				UpdateOutboxCapacity(10)
				RecordOutboxEnqueue()
				RecordOutboxDrop("full")
				RecordDispatch("notify", "ok")
				RecordDispatchRetry("notify")
				RecordDispatchLatency(3)
				UpdateDispatchWorkers(2)
				RecordHTTPRequest("games", "POST", "201")
				RecordHTTPRequestDuration("games", "POST", "201", 5)
				RecordErrorByComponent("app", "stale_write")
				RecordErrorByType("server_error", "high")
				RecordErrorByEndpoint("games", "POST", "client_error")
				RecordErrorLatency("http", "client_error", 2)
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(8)
				RecordSystemGCPauseTime(0.5)
			}, ShouldNotPanic)
		})

		Convey("Then the custom registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given collectors reconfigured for a deployment", t, func() {
		registry := Configure(WithNamespace("league"), WithConstLabels(map[string]string{"instance": "a"}))
		Reset(func() { Configure() })

		Convey("When the helpers record", func() {
			RecordMatchingPass(12)

			Convey("Then the served registry holds the labelled series", func() {
				So(GetRegistry(), ShouldEqual, registry)
				So(testutil.ToFloat64(globalManager.matchingPasses), ShouldEqual, 1)

				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var found bool
				for _, f := range families {
					if f.GetName() == "league_engine_matching_passes_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "a")
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

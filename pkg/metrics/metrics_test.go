package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

// counterValue sums every sample of the named counter family in reg.
func counterValue(reg *prometheus.Registry, name string) float64 {
	families, err := reg.Gather()
	if err != nil {
		return -1
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then its collectors should live under the custom names", func() {
				So(m, ShouldNotBeNil)
				m.eventsRecorded.WithLabelValues("assist").Add(2)
				So(counterValue(registry, "test_unit_events_recorded_total"), ShouldEqual, 2)
			})
		})

		Convey("When two managers share one registry", func() {
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration should panic", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})

		Convey("When empty options are given", func() {
			m := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then the defaults should hold", func() {
				So(m.namespace, ShouldEqual, "hoops")
				So(m.subsystem, ShouldEqual, "scorebook")
				So(m.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestGlobalRecording(t *testing.T) {
	Convey("Given the global registry", t, func() {
		reg := GetRegistry()

		Convey("When recording events", func() {
			before := counterValue(reg, "hoops_scorebook_events_recorded_total")
			RecordEventRecorded("point_2P", 3)
			RecordEventRecorded("foul", 1)

			Convey("Then the counter should grow by the batch sizes", func() {
				So(counterValue(reg, "hoops_scorebook_events_recorded_total")-before, ShouldEqual, 4)
			})
		})

		Convey("When recording opener signals", func() {
			before := counterValue(reg, "hoops_scorebook_opener_signals_total")
			RecordOpenerSignal(true)
			RecordOpenerSignal(false)
			So(counterValue(reg, "hoops_scorebook_opener_signals_total")-before, ShouldEqual, 2)
		})

		Convey("When every recorder is exercised", func() {
			So(func() {
				RecordEventRejected("validation")
				RecordEventDuplicate()
				RecordStoreWriteError()
				RecordStoreLatency("append", 1.5)
				RecordAggregationLatency(0.2)
				UpdateActiveControllers(2)
				UpdateFeedQueueSize(10)
				UpdateFeedQueueCapacity(100)
				UpdateFeedQueueUtilization(0.1)
				RecordFeedEnqueue()
				RecordFeedDequeue()
				RecordFeedDropped("full")
				UpdateWorkerActiveCount(4)
				UpdateWorkerMessagesPerSecond(12.5)
				RecordWorkerProcessingLatency(3)
				RecordWorkerError()
				RecordNotificationPublished("feed")
				RecordNotificationDropped("hub", "slow_subscriber")
				IncActiveDisplays()
				DecActiveDisplays()
				UpdateSubscriberCount(3)
				RecordDisplayRefresh("notification")
				RecordHTTPRequest("/healthz", "GET", "200")
				RecordHTTPRequestDuration("/healthz", "GET", "200", 5.0)
				RecordErrorByComponent("recorder", "store_write")
				RecordErrorByType("validation", "warning")
				RecordErrorByEndpoint("/games/{id}/events", "POST", "bad_request")
				RecordErrorLatency("store", "timeout", 100.0)
				SampleRuntime()
			}, ShouldNotPanic)
		})
	})
}

func TestInit(t *testing.T) {
	Convey("Given a manager rebuilt with configured names", t, func() {
		Init(WithNamespace("court"), WithSubsystem("unit"), WithHistogramBuckets([]float64{1, 10}))
		defer Init()
		reg := GetRegistry()

		Convey("When an event is recorded", func() {
			RecordEventRecorded("assist", 1)

			Convey("Then the configured names are exposed on the new registry", func() {
				So(counterValue(reg, "court_unit_events_recorded_total"), ShouldEqual, 1)
				So(counterValue(reg, "hoops_scorebook_events_recorded_total"), ShouldEqual, 0)
				So(globalManager.histogramBuckets, ShouldResemble, []float64{1, 10})
			})
		})
	})
}

package metrics

import (
	"sync"
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
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the metrics are registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.cyclesTotal.WithLabelValues("ok").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_poll_cycles_total")
			})
		})

		Convey("When options receive empty values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "bikewatch")
				So(manager.subsystem, ShouldEqual, "sync")
				So(manager.histogramBuckets, ShouldNotBeEmpty)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording cycle outcomes", func() {
			before := testutil.ToFloat64(globalManager.cyclesTotal.WithLabelValues("ok"))
			RecordCycle("ok", 12)
			RecordCycle("ok", 30)

			Convey("Then the counter advances", func() {
				So(testutil.ToFloat64(globalManager.cyclesTotal.WithLabelValues("ok")), ShouldEqual, before+2)
			})
		})

		Convey("When toggling the gate gauge", func() {
			UpdateGateLive(true)
			So(testutil.ToFloat64(globalManager.gateLive), ShouldEqual, 1.0)
			UpdateGateLive(false)
			So(testutil.ToFloat64(globalManager.gateLive), ShouldEqual, 0.0)
		})

		Convey("When updating history gauges", func() {
			UpdateHistory(20, 14)
			So(testutil.ToFloat64(globalManager.historyPoints), ShouldEqual, 20.0)
			So(testutil.ToFloat64(globalManager.trimmedPoints), ShouldEqual, 14.0)
		})

		Convey("When recording the remaining helpers", func() {
			So(func() {
				RecordCycleSkipped()
				RecordStaleCycle()
				RecordFetchLatency("sample", 3)
				RecordFetchError("sample", "network")
				RecordWeatherAbsent()
				UpdateGeneration(4)
				UpdateLastSample(1_700_000_000)
				RecordDiscardedResult()
				RecordInitialization("ok")
				RecordPushedSample("accepted")
				UpdateQueueSize(3)
				RecordHTTPRequest("snapshot", "GET", "200")
				RecordHTTPRequestDuration("snapshot", "GET", "200", 1.5)
				UpdateWebsocketClients(2)
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		before := testutil.ToFloat64(globalManager.cyclesSkipped)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordCycleSkipped()
				}
			}()
		}
		wg.Wait()

		So(testutil.ToFloat64(globalManager.cyclesSkipped), ShouldEqual, before+1000)
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		So(GetRegistry(), ShouldNotBeNil)
		_, err := GetRegistry().Gather()
		So(err, ShouldBeNil)
	})
}

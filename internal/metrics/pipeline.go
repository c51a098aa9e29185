// Package metrics provides Prometheus metrics for the scan pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scanstreamer"

var (
	ticksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "ticks_total",
		Help:      "Pipeline ticks by state",
	}, []string{"state"})

	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "tick_duration_seconds",
		Help:      "Time spent in one capturing tick",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	symbolsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "decode",
		Name:      "symbols_total",
		Help:      "Symbols decoded per frame, by format",
	}, []string{"format"})

	historySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "decode",
		Name:      "history_size",
		Help:      "Distinct symbols in the current session history",
	})

	readbackFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "readback_failures_total",
		Help:      "Failed render surface readbacks",
	})

	deviceOpenFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "device_open_failures_total",
		Help:      "Failed attempts to open the external capture device",
	})

	textureErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "texture_errors_total",
		Help:      "Texture conversions that were skipped, by texture",
	}, []string{"texture"})

	capturing = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "capturing",
		Help:      "1 while the pipeline is capturing, 0 while idle",
	})
)

// ObserveTick records one tick. Idle ticks carry no duration.
func ObserveTick(active bool, d time.Duration) {
	if !active {
		ticksTotal.WithLabelValues("idle").Inc()
		return
	}
	ticksTotal.WithLabelValues("capturing").Inc()
	tickDuration.Observe(d.Seconds())
}

// AddSymbol counts one decoded symbol of the given format.
func AddSymbol(format string) {
	symbolsTotal.WithLabelValues(format).Inc()
}

// SetHistorySize publishes the current history length.
func SetHistorySize(n int) {
	historySize.Set(float64(n))
}

// IncReadbackFailures counts a failed readback.
func IncReadbackFailures() {
	readbackFailures.Inc()
}

// IncDeviceOpenFailures counts a failed device open.
func IncDeviceOpenFailures() {
	deviceOpenFailures.Inc()
}

// IncTextureErrors counts a skipped texture conversion.
func IncTextureErrors(texture string) {
	textureErrors.WithLabelValues(texture).Inc()
}

// SetCapturing publishes the pipeline state.
func SetCapturing(on bool) {
	if on {
		capturing.Set(1)
		return
	}
	capturing.Set(0)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

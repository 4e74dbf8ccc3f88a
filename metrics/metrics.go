package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "weighcapture"

var (
	SamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Total number of sampling ticks by capture method and result",
		},
		[]string{"method", "result"},
	)

	SampleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sample_duration_seconds",
			Help:      "Time taken to fetch a sample from the backend",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method"},
	)

	CalibrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calibrations_total",
			Help:      "Total number of calibrations by capture method and result",
		},
		[]string{"method", "result"},
	)

	RegisteredProviders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_providers",
			Help:      "Number of providers in the capture service registry",
		},
	)

	CalibrationUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calibration_uploads_total",
			Help:      "Total number of calibration log upload attempts by result",
		},
		[]string{"result"},
	)
)

// SampleSucceeded records a sample that produced a new reading
func SampleSucceeded(method string, duration time.Duration) {
	SamplesTotal.WithLabelValues(method, "success").Inc()
	SampleDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// SampleFailed records a sample that could not be taken
func SampleFailed(method string) {
	SamplesTotal.WithLabelValues(method, "error").Inc()
}

func CalibrationCompleted(method string, success bool) {
	CalibrationsTotal.WithLabelValues(method, result(success)).Inc()
}

func CalibrationUpload(success bool) {
	CalibrationUploadsTotal.WithLabelValues(result(success)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

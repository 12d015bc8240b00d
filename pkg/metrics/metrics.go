package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
	initialized  bool

	// Frame pipeline metrics
	FramesProcessed  *prometheus.CounterVec
	FacesProcessed   *prometheus.CounterVec
	EmptyFrames      *prometheus.CounterVec
	FrameProcessTime *prometheus.HistogramVec

	// Scoring metrics
	ShockScore       *prometheus.GaugeVec
	ScareEvents      *prometheus.CounterVec
	AudienceSize     *prometheus.GaugeVec
	BaselineState    *prometheus.GaugeVec

	// Session metrics
	SessionsActive prometheus.Gauge

	// Privacy metrics
	PrivacyViolations *prometheus.CounterVec

	// Messaging metrics
	MetricsPublished *prometheus.CounterVec
	PublishErrors    *prometheus.CounterVec
)

// Init initializes all metrics and registers them with Prometheus.
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		FramesProcessed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shockscore_frames_processed_total",
				Help: "Total number of frames processed through the scoring pipeline",
			},
			[]string{"session_id"},
		)

		FacesProcessed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shockscore_faces_processed_total",
				Help: "Total number of face observations aggregated (audit only)",
			},
			[]string{"session_id"},
		)

		EmptyFrames = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shockscore_empty_frames_total",
				Help: "Total number of frames with no valid face observations",
			},
			[]string{"session_id"},
		)

		FrameProcessTime = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shockscore_frame_processing_seconds",
				Help:    "Time taken to run the per-frame scoring pipeline",
				Buckets: prometheus.ExponentialBuckets(0.00001, 2, 12),
			},
			[]string{"session_id"},
		)

		ShockScore = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shockscore_current_score",
				Help: "Most recent shock score per session",
			},
			[]string{"session_id"},
		)

		ScareEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shockscore_scare_events_total",
				Help: "Total number of detected scare events",
			},
			[]string{"session_id"},
		)

		AudienceSize = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shockscore_audience_size",
				Help: "Most recent anonymized audience size per session",
			},
			[]string{"session_id"},
		)

		BaselineState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shockscore_baseline_state",
				Help: "Baseline calibration state (0=uncalibrated, 1=calibrating, 2=calibrated)",
			},
			[]string{"session_id"},
		)

		SessionsActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shockscore_sessions_active",
				Help: "Number of active analysis sessions",
			},
		)

		PrivacyViolations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shockscore_privacy_violations_total",
				Help: "Total number of failed privacy compliance validations",
			},
			[]string{"session_id"},
		)

		MetricsPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shockscore_metrics_published_total",
				Help: "Total number of anonymized payloads published to the broker",
			},
			[]string{"session_id"},
		)

		PublishErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shockscore_publish_errors_total",
				Help: "Total number of failed broker publishes",
			},
			[]string{"session_id"},
		)

		registry.MustRegister(
			FramesProcessed,
			FacesProcessed,
			EmptyFrames,
			FrameProcessTime,
			ShockScore,
			ScareEvents,
			AudienceSize,
			BaselineState,
			SessionsActive,
			PrivacyViolations,
			MetricsPublished,
			PublishErrors,
		)

		initialized = true
		logger.Info("Prometheus metrics initialized")
	})
}

// Enabled reports whether Init has run. Sessions skip metric updates
// when the registry was never set up (library embedding, tests).
func Enabled() bool {
	return initialized
}

// Handler returns the HTTP handler exposing the metrics registry.
func Handler() http.Handler {
	if registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesGrabbed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceattend",
		Name:      "frames_grabbed_total",
		Help:      "Total number of camera frames grabbed",
	}, []string{"pipeline"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceattend",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected",
	}, []string{"pipeline"})

	SamplesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceattend",
		Name:      "samples_captured_total",
		Help:      "Total number of enrollment samples persisted",
	})

	RecognitionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceattend",
		Name:      "recognition_runs_total",
		Help:      "Total number of recognition runs by outcome",
	}, []string{"outcome"})

	SessionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceattend",
		Name:      "session_decisions_total",
		Help:      "Total number of attendance session decisions by outcome",
	}, []string{"outcome"})

	TrainingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "faceattend",
		Name:      "training_duration_seconds",
		Help:      "Duration of recognizer training runs",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	ModelSamples = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceattend",
		Name:      "model_samples",
		Help:      "Number of samples the current recognizer model was trained on",
	})

	ActiveCaptures = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceattend",
		Name:      "active_captures",
		Help:      "Number of pipelines currently holding the camera (0 or 1)",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceattend",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceattend",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)

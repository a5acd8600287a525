package engine

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"inferd/pkg/types"
)

var (
	inferencesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "engine",
			Name:      "inferences_total",
			Help:      "Terminal inference results by status",
		},
		[]string{"status"},
	)

	inferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inferd",
			Subsystem: "engine",
			Name:      "inference_duration_seconds",
			Help:      "End-to-end request duration by terminal status",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inferd",
			Subsystem: "engine",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage pipeline duration for successful requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "engine",
			Name:      "queue_depth",
			Help:      "Requests accepted and waiting for a concurrency slot",
		},
	)

	runningRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "engine",
			Name:      "running_requests",
			Help:      "Requests currently executing",
		},
	)

	modelsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "engine",
			Name:      "models_loaded",
			Help:      "Registered models with weights attached",
		},
	)
)

func init() {
	prometheus.MustRegister(
		inferencesTotal, inferenceDuration, stageDuration,
		queueDepth, runningRequests, modelsLoaded,
	)
}

func observeResult(res types.InferenceResult) {
	s := string(res.Status)
	inferencesTotal.WithLabelValues(s).Inc()
	inferenceDuration.WithLabelValues(s).Observe(res.Metrics.TotalTime.Seconds())
	if res.Status != types.StatusSuccess {
		return
	}
	stageDuration.WithLabelValues("preprocess").Observe(res.Metrics.PreprocessTime.Seconds())
	stageDuration.WithLabelValues("inference").Observe(res.Metrics.InferenceTime.Seconds())
	stageDuration.WithLabelValues("postprocess").Observe(res.Metrics.PostprocessTime.Seconds())
	if res.Metrics.ExplainTime > 0 {
		stageDuration.WithLabelValues("explain").Observe(res.Metrics.ExplainTime.Seconds())
	}
}

// stats holds the process-lifetime counters behind Metrics(). Counters are
// updated exactly once per terminal result and are monotonic until an
// explicit reset on disposal.
type stats struct {
	mu       sync.Mutex
	total    uint64
	success  uint64
	failed   uint64
	avgMS    float64
	memBytes int64
}

func (s *stats) record(res types.InferenceResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if res.Status == types.StatusSuccess {
		s.success++
		// Incremental mean over successful requests only.
		ms := float64(res.Metrics.TotalTime) / float64(time.Millisecond)
		s.avgMS += (ms - s.avgMS) / float64(s.success)
	} else {
		s.failed++
	}
	s.memBytes += res.Metrics.MemoryBytes
}

func (s *stats) snapshot() types.EngineMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.EngineMetrics{
		TotalInferences:      s.total,
		SuccessfulInferences: s.success,
		FailedInferences:     s.failed,
		AvgInferenceMS:       s.avgMS,
		MemoryUsageBytes:     s.memBytes,
	}
}

func (s *stats) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total, s.success, s.failed = 0, 0, 0
	s.avgMS = 0
	s.memBytes = 0
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels acquisitions that produced at least one table.
	OutcomeSuccess = "success"
	// OutcomeEmpty labels acquisitions that produced nothing.
	OutcomeEmpty = "empty"
	// OutcomeError labels acquisitions whose metadata could not be read.
	OutcomeError = "error"
)

const namespace = "mirador_pdm"

var (
	acquisitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisitions_processed_total",
			Help:      "Acquisition folders processed, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	sensorFilesSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_files_skipped_total",
			Help:      "Sensor stream files skipped because they were unreadable or malformed.",
		},
	)

	corpusBuildSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "corpus_build_seconds",
			Help:      "Corpus build latency in seconds.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Feature importance analyses, partitioned by algorithm and status.",
		},
		[]string{"algorithm", "status"},
	)

	analysisSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_seconds",
			Help:      "Feature importance analysis latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"algorithm"},
	)
)

// Register attaches mirador-pdm collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		acquisitionsTotal,
		sensorFilesSkippedTotal,
		corpusBuildSeconds,
		analysesTotal,
		analysisSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAcquisition counts one processed acquisition folder.
func ObserveAcquisition(outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeEmpty, OutcomeError:
	default:
		outcome = OutcomeError
	}
	acquisitionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSkippedFile counts one skipped sensor file.
func ObserveSkippedFile() {
	sensorFilesSkippedTotal.Inc()
}

// ObserveCorpusBuild records the duration of one corpus build.
func ObserveCorpusBuild(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	corpusBuildSeconds.Observe(duration.Seconds())
}

// ObserveAnalysis records an analysis duration with its algorithm and status labels.
func ObserveAnalysis(duration time.Duration, algorithm, status string) {
	analysesTotal.WithLabelValues(algorithm, status).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisSeconds.WithLabelValues(algorithm).Observe(duration.Seconds())
}

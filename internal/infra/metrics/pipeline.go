package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(pipelineStageTotal, conversionSeconds, dispatchSeconds, chunkAppends, callbacksTotal)
}

var (
	pipelineStageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audio_pipeline_stage_total",
			Help: "Pipeline stage completions by stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)

	conversionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audio_conversion_seconds",
			Help:    "Wall-clock duration of ffmpeg conversions.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	dispatchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audio_dispatch_seconds",
			Help:    "Wall-clock duration of denoise dispatch round-trips.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	chunkAppends = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audio_chunk_appends_total",
			Help: "Raw audio fragments accepted.",
		},
	)

	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audio_callbacks_total",
			Help: "Denoise callbacks by outcome (saved/unknown_id/save_failed).",
		},
		[]string{"outcome"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncStage(stage, outcome string) {
	pipelineStageTotal.WithLabelValues(norm(stage), norm(outcome)).Inc()
}

func ObserveConversion(seconds float64) { conversionSeconds.Observe(seconds) }

func ObserveDispatch(seconds float64) { dispatchSeconds.Observe(seconds) }

func IncChunkAppend() { chunkAppends.Inc() }

func IncCallback(outcome string) { callbacksTotal.WithLabelValues(norm(outcome)).Inc() }

package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(jobsProcessedTotal, jobsRunning, jobsQueued, generationLatencySeconds)
}

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_jobs_processed_total",
			Help: "Total number of generation jobs that reached a terminal status.",
		},
		[]string{"status"}, // 'success', 'error'
	)

	jobsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "generation_jobs_running",
		Help: "Number of generation jobs currently running.",
	})

	jobsQueued = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "generation_jobs_queued",
		Help: "Number of generation jobs waiting for a free slot.",
	})

	generationLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_call_latency_seconds",
			Help:    "Latency distribution of calls to the generation backend.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "success"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncJobProcessed(status string) {
	jobsProcessedTotal.WithLabelValues(norm(status)).Inc()
}

// SetJobGauges mirrors the store's derived statistics; wire it to the store's
// stats-updated event.
func SetJobGauges(running, queued int) {
	jobsRunning.Set(float64(running))
	jobsQueued.Set(float64(queued))
}

func ObserveGeneration(provider string, d time.Duration, success bool) {
	generationLatencySeconds.
		WithLabelValues(norm(provider), strconv.FormatBool(success)).
		Observe(d.Seconds())
}

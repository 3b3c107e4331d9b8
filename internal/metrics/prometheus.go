package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	GenerationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmprep_generation_total",
			Help: "Total answer generation runs by terminal status",
		},
		[]string{"status"},
	)

	GenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pmprep_generation_duration_seconds",
			Help:    "Answer generation duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	TokensStreamed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pmprep_tokens_streamed_total",
			Help: "Total tokens relayed to clients",
		},
	)

	AnswerCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pmprep_answer_cache_hits_total",
			Help: "Generation requests served from the answer cache",
		},
	)

	AnswerCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pmprep_answer_cache_misses_total",
			Help: "Generation requests that required a model call",
		},
	)

	InFlightJoins = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pmprep_inflight_joins_total",
			Help: "Generation requests that joined an in-flight run",
		},
	)

	CorpusSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pmprep_corpus_entries",
			Help:    "Grounding corpus entries per generation",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	ResponseCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmprep_response_cache_hits_total",
			Help: "Read-side response cache hits",
		},
		[]string{"endpoint"},
	)

	ResponseCacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmprep_response_cache_misses_total",
			Help: "Read-side response cache misses",
		},
		[]string{"endpoint"},
	)
)

func Init() {
	prometheus.MustRegister(GenerationTotal)
	prometheus.MustRegister(GenerationDuration)
	prometheus.MustRegister(TokensStreamed)
	prometheus.MustRegister(AnswerCacheHits)
	prometheus.MustRegister(AnswerCacheMisses)
	prometheus.MustRegister(InFlightJoins)
	prometheus.MustRegister(CorpusSize)
	prometheus.MustRegister(ResponseCacheHits)
	prometheus.MustRegister(ResponseCacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

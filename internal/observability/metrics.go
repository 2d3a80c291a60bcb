// Package observability holds the Prometheus metrics for the resilience core.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Global collector instance for singleton pattern
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	registry *prometheus.Registry

	// Sentiment client metrics
	SentimentCalls    *prometheus.CounterVec // outcome: success|retryable|fatal|skipped
	SentimentAttempts prometheus.Counter

	// Circuit breaker metrics
	CircuitOpened   prometheus.Counter
	CircuitRejected prometheus.Counter

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Job metrics
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
}

// NewCollector creates the metrics collector with the given namespace.
// Repeated calls return the same instance to avoid duplicate registration in
// tests.
func NewCollector(namespace string) *Collector {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	if globalCollector != nil {
		return globalCollector
	}

	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		SentimentCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sentiment_calls_total",
				Help:      "Sentiment service calls by final outcome",
			},
			[]string{"outcome"},
		),
		SentimentAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentiment_attempts_total",
			Help:      "Individual sentiment request attempts, including retries",
		}),
		CircuitOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_opened_total",
			Help:      "Times the sentiment circuit breaker opened",
		}),
		CircuitRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_rejected_total",
			Help:      "Calls skipped because the circuit was open",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache entries found before analysis",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache entries missing before analysis",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Batch analysis jobs reaching COMPLETED",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Batch analysis jobs reaching FAILED",
		}),
	}

	registry.MustRegister(
		c.SentimentCalls,
		c.SentimentAttempts,
		c.CircuitOpened,
		c.CircuitRejected,
		c.CacheHits,
		c.CacheMisses,
		c.JobsCompleted,
		c.JobsFailed,
	)

	globalCollector = c
	return c
}

// Registry exposes the collector's registry for the metrics endpoint.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

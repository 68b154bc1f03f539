package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates the bridge's Prometheus metrics. A nil *Collector is
// valid and records nothing, so components can run without metrics wired.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	callsActive    prometheus.Gauge
	callsTotal     *prometheus.CounterVec
	callDuration   prometheus.Histogram
	mediaFrames    *prometheus.CounterVec
	transcriptTurn *prometheus.CounterVec

	injectionsTotal *prometheus.CounterVec
	functionCalls   *prometheus.CounterVec
	sentimentRuns   *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers the bridge metrics under the given namespace on
// the default Prometheus registerer.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith registers the bridge metrics on an explicit registerer.
// Tests use this with a fresh registry to avoid duplicate registration.
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}
	factory := promauto.With(reg)

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.callsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Number of currently active call sessions",
		},
	)

	c.callsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of calls by final outcome",
		},
		[]string{"outcome"},
	)

	c.callDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Call duration in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
	)

	c.mediaFrames = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_frames_total",
			Help:      "Total media frames relayed by direction",
		},
		[]string{"direction"},
	)

	c.transcriptTurn = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_turns_total",
			Help:      "Total transcript turns by speaker",
		},
		[]string{"speaker"},
	)

	c.injectionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "injections_total",
			Help:      "Total context injections by delivery outcome",
		},
		[]string{"outcome"},
	)

	c.functionCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "function_calls_total",
			Help:      "Total agent function calls by name and status",
		},
		[]string{"function", "status"},
	)

	c.sentimentRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentiment_analyses_total",
			Help:      "Total sentiment analyses by result",
		},
		[]string{"result"},
	)

	return c
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// CallStarted bumps the active call gauge.
func (c *Collector) CallStarted() {
	if c == nil {
		return
	}
	c.callsActive.Inc()
}

// CallEnded records a finished call with its outcome label.
func (c *Collector) CallEnded(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.callsActive.Dec()
	c.callsTotal.WithLabelValues(outcome).Inc()
	c.callDuration.Observe(duration.Seconds())
}

// RecordMediaFrame counts one relayed media frame ("inbound" or "outbound").
func (c *Collector) RecordMediaFrame(direction string) {
	if c == nil {
		return
	}
	c.mediaFrames.WithLabelValues(direction).Inc()
}

// RecordTranscriptTurn counts one transcript entry by speaker.
func (c *Collector) RecordTranscriptTurn(speaker string) {
	if c == nil {
		return
	}
	c.transcriptTurn.WithLabelValues(speaker).Inc()
}

// RecordInjection counts one injection by outcome
// ("sent", "queued", "refused").
func (c *Collector) RecordInjection(outcome string) {
	if c == nil {
		return
	}
	c.injectionsTotal.WithLabelValues(outcome).Inc()
}

// RecordFunctionCall counts one dispatched function call.
func (c *Collector) RecordFunctionCall(function, status string) {
	if c == nil {
		return
	}
	c.functionCalls.WithLabelValues(function, status).Inc()
}

// RecordSentiment counts one completed sentiment analysis by result label.
func (c *Collector) RecordSentiment(result string) {
	if c == nil {
		return
	}
	c.sentimentRuns.WithLabelValues(result).Inc()
}

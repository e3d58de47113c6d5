package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultEndpoint = "/metrics"
	namespace       = "peerctl"
)

// Cache lookup results
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Metrics holds the client counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	retries      prometheus.Counter
	cacheLookups *prometheus.CounterVec
	events       *prometheus.CounterVec
}

// New creates the counters and registers them on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP request attempts sent to the management service by method and status code",
		}, []string{"method", "code"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_retries_total",
			Help:      "HTTP request attempts that were retried after a transient failure",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Peer collection cache lookups by result",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Emitted domain events by kind",
		}, []string{"kind"}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.requests, m.retries, m.cacheLookups, m.events} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// CountRequest records one request attempt. code 0 means no answer was received.
func (m *Metrics) CountRequest(method string, code int) {
	if m == nil {
		return
	}
	label := "none"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.requests.WithLabelValues(method, label).Inc()
}

// CountRetry records one retried attempt
func (m *Metrics) CountRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// CountCacheLookup records a cache hit or miss
func (m *Metrics) CountCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// CountEvent records an emitted event
func (m *Metrics) CountEvent(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

// Server exposes a gatherer over HTTP
type Server struct {
	Endpoint string

	*http.Server
}

// NewServer initializes a metrics HTTP server listening on port
func NewServer(port int, endpoint string, gatherer prometheus.Gatherer) *Server {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := http.NewServeMux()
	router.Handle(endpoint, promhttp.HandlerFor(
		gatherer,
		promhttp.HandlerOpts{EnableOpenMetrics: true}))

	return &Server{
		Endpoint: endpoint,
		Server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		},
	}
}

// Shutdown stops the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

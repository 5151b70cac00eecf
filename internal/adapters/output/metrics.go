package output

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/internal/ports"
)

// GatewayView is the read side of the engine the gauges sample.
type GatewayView interface {
	Stats() domain.GatewayStats
	Profiles() []domain.ClientProfile
}

type PrometheusMetrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	blocks         *prometheus.CounterVec
	bans           prometheus.Counter
	latency        prometheus.Histogram
	queueSize      prometheus.Gauge
	evaluated      prometheus.CounterFunc
	globalBans     prometheus.GaugeFunc
	flaggedClients prometheus.GaugeFunc
	activeWorkers  prometheus.GaugeFunc
	memoryUsage    prometheus.GaugeFunc

	server *http.Server
	mu     sync.Mutex
}

type MetricsConfig struct {
	Port string
	Path string
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Port: ":9090",
		Path: "/metrics",
	}
}

// NewPrometheusMetrics registers the collectors on a private registry so
// several instances (tests, embedded engines) never collide.
func NewPrometheusMetrics(namespace string, view GatewayView, runtimeMetrics *domain.RuntimeMetrics) *PrometheusMetrics {
	if namespace == "" {
		namespace = "sentinel"
	}

	m := &PrometheusMetrics{registry: prometheus.NewRegistry()}
	factory := promauto.With(m.registry)

	m.requests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Evaluated requests by action taken",
	}, []string{"action"})

	m.blocks = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_total",
		Help:      "Blocked requests by reason",
	}, []string{"reason"})

	m.bans = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bans_total",
		Help:      "Sources added to the ban set",
	})

	m.latency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "evaluation_duration_milliseconds",
		Help:      "Time spent in the evaluation pipeline",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	m.queueSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_size",
		Help:      "Current size of the replay queue",
	})

	m.evaluated = factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_evaluations_total",
		Help:      "Requests evaluated by the worker pool",
	}, func() float64 {
		if runtimeMetrics != nil {
			return float64(runtimeMetrics.Evaluated())
		}
		return 0
	})

	m.globalBans = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "global_bans",
		Help:      "Size of the ban set",
	}, func() float64 {
		if view != nil {
			return float64(view.Stats().GlobalBans)
		}
		return 0
	})

	m.flaggedClients = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "flagged_clients",
		Help:      "Client profiles currently flagged or banned",
	}, func() float64 {
		if view == nil {
			return 0
		}
		n := 0
		for _, p := range view.Profiles() {
			if p.Status != domain.StatusActive {
				n++
			}
		}
		return float64(n)
	})

	m.activeWorkers = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_workers",
		Help:      "Number of active worker goroutines",
	}, func() float64 {
		if runtimeMetrics != nil {
			return float64(runtimeMetrics.Snapshot(time.Now()).ActiveWorkers)
		}
		return 0
	})

	m.memoryUsage = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "memory_bytes",
		Help:      "Current memory usage in bytes",
	}, func() float64 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return float64(ms.Alloc)
	})

	return m
}

func (m *PrometheusMetrics) ObserveEvaluation(outcome domain.Outcome, latencyMs int64) {
	m.requests.WithLabelValues(string(outcome.Action())).Inc()
	if outcome.Blocked() {
		m.blocks.WithLabelValues(string(outcome.Reason())).Inc()
	}
	m.latency.Observe(float64(latencyMs))
}

func (m *PrometheusMetrics) ObserveBan(source string) {
	m.bans.Inc()
}

func (m *PrometheusMetrics) SetQueueSize(size int) {
	m.queueSize.Set(float64(size))
}

func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves the metrics endpoint and, when health is non-nil,
// the health check on /healthz.
func (m *PrometheusMetrics) StartServer(config MetricsConfig, health http.Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mux := http.NewServeMux()
	mux.Handle(config.Path, m.Handler())
	if health != nil {
		mux.Handle("/healthz", health)
	}

	m.server = &http.Server{
		Addr:              config.Port,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", config.Port).Str("path", config.Path).Msg("Starting Prometheus metrics server")
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

func (m *PrometheusMetrics) StopServer() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return m.server.Close()
	}
	return nil
}

var _ ports.EvaluationObserver = (*PrometheusMetrics)(nil)

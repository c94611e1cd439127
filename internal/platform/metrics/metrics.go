// Package metrics exposes Prometheus collectors for the authorization
// pipeline, the document-integrity pipeline, and the HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	AuthzDecisions  *prometheus.CounterVec
	DocumentsSigned *prometheus.CounterVec
	CryptoFailures  *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.AuthzDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clinika_authz_decisions_total",
		Help: "Authorization pipeline check outcomes.",
	}, []string{"check", "outcome"})

	m.DocumentsSigned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clinika_documents_signed_total",
		Help: "Documents signed, by document type.",
	}, []string{"type"})

	m.CryptoFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clinika_crypto_failures_total",
		Help: "Cryptographic operation failures.",
	}, []string{"op"})

	m.HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clinika_http_requests_total",
		Help: "HTTP requests by method and status.",
	}, []string{"method", "status"})

	m.HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clinika_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	m.registry.MustRegister(
		m.AuthzDecisions, m.DocumentsSigned, m.CryptoFailures,
		m.HTTPRequests, m.HTTPDuration,
	)
	return m
}

// Handler serves the Prometheus exposition endpoint.
func (m *Metrics) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return echo.WrapHandler(h)
}

// Middleware records request counts and latency.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			m.HTTPDuration.WithLabelValues(c.Request().Method).Observe(time.Since(start).Seconds())
			m.HTTPRequests.WithLabelValues(c.Request().Method, strconv.Itoa(c.Response().Status)).Inc()
			return err
		}
	}
}

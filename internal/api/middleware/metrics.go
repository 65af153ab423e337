// metrics.go — Prometheus HTTP метрики для Access Module.
// Регистрирует метрики: acm_http_requests_total, acm_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acm_http_requests_total",
			Help: "Общее количество HTTP-запросов к Access Module",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acm_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Access Module в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем идентификаторы на плейсхолдеры для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет динамические сегменты пути (content-адреса,
// UUID запросов) на плейсхолдеры для предотвращения взрывного роста
// кардинальности метрик.
// /api/v1/files/QmXoypiz.../grants → /api/v1/files/{contentAddress}/grants
// /api/v1/requests/a1b2c3d4-.../accept → /api/v1/requests/{id}/accept
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/files",
		"/api/v1/grants",
		"/api/v1/grants/revoke",
		"/api/v1/grants/my",
		"/api/v1/requests",
		"/api/v1/requests/incoming",
		"/api/v1/requests/outgoing",
		"/api/v1/notifications/feed",
		"/api/v1/notifications/stream",
		"/api/v1/notifications/unread-count":
		return path
	}

	// Динамические пути: первый сегмент после префикса — идентификатор,
	// хвост (grants, visibility, content, accept, ...) сохраняется.
	prefixes := []struct {
		prefix string
		result string
	}{
		{"/api/v1/files/", "/api/v1/files/{contentAddress}"},
		{"/api/v1/requests/", "/api/v1/requests/{id}"},
	}

	for _, p := range prefixes {
		rest, ok := strings.CutPrefix(path, p.prefix)
		if !ok || rest == "" {
			continue
		}
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			return p.result + rest[idx:]
		}
		return p.result
	}

	return path
}

// Package metrics provides Prometheus metrics for the VFS gateway.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vfsgate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vfsgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// File transfer metrics
	bytesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vfsgate_file_bytes_read_total",
			Help: "Total bytes sent from files",
		},
	)

	bytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vfsgate_file_bytes_written_total",
			Help: "Total bytes written to files",
		},
	)

	// Zip metrics
	zipEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vfsgate_zip_entries_total",
			Help: "Zip entries processed, by outcome",
		},
		[]string{"outcome"},
	)
)

// Zip entry outcomes.
const (
	ZipWritten   = "written"
	ZipSkipped   = "skipped"
	ZipExtracted = "extracted"
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRead records bytes sent from a file.
func RecordRead(n int64) {
	bytesRead.Add(float64(n))
}

// RecordWrite records bytes written to a file.
func RecordWrite(n int64) {
	bytesWritten.Add(float64(n))
}

// RecordZipEntries records n zip entries with the given outcome.
func RecordZipEntries(outcome string, n int) {
	if n > 0 {
		zipEntriesTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// Route maps a request path to a bounded route label.
func Route(p string) string {
	switch {
	case strings.HasPrefix(p, "/admin/vfs"):
		return "vfs"
	case strings.HasPrefix(p, "/admin/zip"):
		return "zip"
	case strings.HasPrefix(p, "/admin/dav"):
		return "dav"
	case p == "/healthz":
		return "healthz"
	default:
		return "other"
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, Route(r.URL.Path), rw.statusCode, time.Since(start))
	})
}

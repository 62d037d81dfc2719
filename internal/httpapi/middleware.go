package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blobgate/blobgate/internal/metrics"
)

// requestTimeout bounds how long any single request may run before the
// server aborts it with 503.
const requestTimeout = 60 * time.Second

// generateRequestID generates a 16-character lowercase hexadecimal request
// ID using crypto/rand for randomness.
func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// commonHeaders is HTTP middleware that injects a request id and standard
// response headers on every response.
func commonHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-request-id", generateRequestID())
		w.Header().Set("Date", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("Server", "blobgate")
		next.ServeHTTP(w, r)
	})
}

// responseRecorder wraps http.ResponseWriter to capture the status code and
// bytes written, for the metrics middleware.
type responseRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
	wroteHeader  bool
}

func (rr *responseRecorder) WriteHeader(code int) {
	if !rr.wroteHeader {
		rr.statusCode = code
		rr.wroteHeader = true
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if !rr.wroteHeader {
		rr.statusCode = http.StatusOK
		rr.wroteHeader = true
	}
	n, err := rr.ResponseWriter.Write(b)
	rr.bytesWritten += n
	return n, err
}

func (rr *responseRecorder) Flush() {
	if f, ok := rr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// metricsMiddleware records Prometheus metrics for each request: count,
// duration, request size, response size. /metrics itself is excluded to
// avoid self-instrumentation recursion.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()
		normalizedPath := metrics.NormalizePath(r.URL.Path)
		method := r.Method
		status := strconv.Itoa(rec.statusCode)

		metrics.HTTPRequestsTotal.WithLabelValues(method, normalizedPath, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, normalizedPath).Observe(duration)

		if r.ContentLength > 0 {
			metrics.HTTPRequestSize.WithLabelValues(method, normalizedPath).Observe(float64(r.ContentLength))
			metrics.BytesReceivedTotal.Add(float64(r.ContentLength))
		}
		if rec.bytesWritten > 0 {
			metrics.HTTPResponseSize.WithLabelValues(method, normalizedPath).Observe(float64(rec.bytesWritten))
			metrics.BytesSentTotal.Add(float64(rec.bytesWritten))
		}
	})
}

// metaHeaderPrefix is the canonical form of "x-object-meta-" as produced by
// Go's textproto.CanonicalMIMEHeaderKey.
const metaHeaderPrefix = "X-Object-Meta-"

// metadataHeaderWriter rewrites X-Object-Meta-* response header keys to
// fully lowercase before they reach the wire, since Go's http.Header.Set
// title-cases keys and spec.md requires lowercase x-object-meta-<k> headers.
type metadataHeaderWriter struct {
	http.ResponseWriter
	rewritten bool
}

func (mw *metadataHeaderWriter) rewriteMetaHeaders() {
	if mw.rewritten {
		return
	}
	mw.rewritten = true

	h := mw.ResponseWriter.Header()
	for key, values := range h {
		if strings.HasPrefix(key, metaHeaderPrefix) {
			lowerKey := strings.ToLower(key)
			if lowerKey != key {
				delete(h, key)
				h[lowerKey] = values
			}
		}
	}
}

func (mw *metadataHeaderWriter) WriteHeader(code int) {
	mw.rewriteMetaHeaders()
	mw.ResponseWriter.WriteHeader(code)
}

func (mw *metadataHeaderWriter) Write(b []byte) (int, error) {
	mw.rewriteMetaHeaders()
	return mw.ResponseWriter.Write(b)
}

func (mw *metadataHeaderWriter) Flush() {
	if f, ok := mw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func metadataHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mw := &metadataHeaderWriter{ResponseWriter: w}
		next.ServeHTTP(mw, r)
	})
}

// extractCustomMetadata scans request headers for x-object-meta-* prefixed
// headers and returns them as a map with the prefix stripped and the key
// lowercased.
func extractCustomMetadata(r *http.Request) map[string]string {
	meta := make(map[string]string)
	for key, values := range r.Header {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "x-object-meta-") {
			metaKey := lower[len("x-object-meta-"):]
			if len(values) > 0 && metaKey != "" {
				meta[metaKey] = values[0]
			}
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

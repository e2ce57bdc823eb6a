package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/synheart/synheart-runtime/internal/version"
)

// Prometheus HTTP metrics, registered alongside the domain collectors in
// internal/metrics but kept local to this package since they describe the
// debug server's own traffic, not the runtime's data pipeline.
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synheart_http_requests_total",
			Help: "Total number of HTTP requests to the debug/ops server.",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synheart_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
}

// Middleware is a function that wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain composes mw around handler so mw[0] sees the request first and
// mw[len(mw)-1] sits closest to handler.
func Chain(handler http.Handler, mw ...Middleware) http.Handler {
	wrapped := handler
	for i := len(mw) - 1; i >= 0; i-- {
		wrapped = mw[i](wrapped)
	}
	return wrapped
}

// requestIDKey is a context key for the request ID.
type requestIDKey struct{}

// RequestID returns the request ID from the context.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// RequestIDMiddleware generates or propagates X-Request-ID headers.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = generateID()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// pathSet is a small membership test over a fixed list of paths, shared by
// the middlewares that exempt operational endpoints (health checks,
// metrics scrapes) from logging or rate limiting.
type pathSet map[string]struct{}

func newPathSet(paths []string) pathSet {
	set := make(pathSet, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

func (s pathSet) has(path string) bool {
	_, ok := s[path]
	return ok
}

// LoggingMiddleware logs each HTTP request with duration, status, and
// response size, and records Prometheus metrics (request count and
// duration histogram). Paths in skipPaths are excluded from logging but
// still recorded in metrics.
func LoggingMiddleware(logger *zap.Logger, skipPaths []string) Middleware {
	skip := newPathSet(skipPaths)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			duration := time.Since(start)

			if !skip.has(r.URL.Path) {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", sw.status),
					zap.Int("bytes", sw.bytesWritten),
					zap.Duration("duration", duration),
					zap.String("remote", r.RemoteAddr),
					zap.String("request_id", RequestID(r.Context())),
				)
			}

			httpRequestsTotal.WithLabelValues(
				r.Method, r.URL.Path, strconv.Itoa(sw.status),
			).Inc()
			httpRequestDuration.WithLabelValues(
				r.Method, r.URL.Path,
			).Observe(duration.Seconds())
		})
	}
}

// SecurityHeadersMiddleware adds standard security headers to all responses.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'self'")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// VersionHeaderMiddleware adds X-Synheart-Version to all responses.
func VersionHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Synheart-Version", version.Short())
		next.ServeHTTP(w, r)
	})
}

// RecoveryMiddleware catches panics in the handler chain and returns a 500
// problem response instead of letting net/http close the connection.
func RecoveryMiddleware(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer recoverAndReport(logger, w, r)
			next.ServeHTTP(w, r)
		})
	}
}

// recoverAndReport is split out of RecoveryMiddleware's defer so the
// recover() call sits directly in the deferred frame that needs it.
func recoverAndReport(logger *zap.Logger, w http.ResponseWriter, r *http.Request) {
	rec := recover()
	if rec == nil {
		return
	}
	logger.Error("panic recovered",
		zap.Any("panic", rec),
		zap.String("path", r.URL.Path),
		zap.String("request_id", RequestID(r.Context())),
	)
	InternalError(w, "an unexpected error occurred", r.URL.Path)
}

// RateLimitMiddleware enforces per-IP rate limiting with a token bucket
// per client. Requests to paths in skipPaths are not rate limited.
func RateLimitMiddleware(rps float64, burst int, skipPaths []string) Middleware {
	rl := newIPRateLimiter(rate.Limit(rps), burst)
	skip := newPathSet(skipPaths)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip.has(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if !rl.allow(clientIP(r)) {
				RateLimited(w, "rate limit exceeded", r.URL.Path)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitShards bounds lock contention on the bucket map: each IP hashes
// to one of these shards rather than every request competing for a single
// mutex the way a flat map would.
const rateLimitShards = 16

// staleAfter is how long a bucket can sit idle before the janitor reclaims it.
const staleAfter = 10 * time.Minute

// ipRateLimiter tracks per-IP token-bucket limiters across a fixed number
// of sharded maps. A background janitor evicts stale buckets on a timer,
// rather than inline whenever a shard happens to be large at insert time.
type ipRateLimiter struct {
	shards    [rateLimitShards]*limiterShard
	rateVal   rate.Limit
	burst     int
	startOnce sync.Once
}

type limiterShard struct {
	mu       sync.Mutex
	limiters map[string]*rateLimitEntry
}

type rateLimitEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(r rate.Limit, burst int) *ipRateLimiter {
	rl := &ipRateLimiter{rateVal: r, burst: burst}
	for i := range rl.shards {
		rl.shards[i] = &limiterShard{limiters: make(map[string]*rateLimitEntry)}
	}
	return rl
}

// shardFor picks a shard deterministically from the IP string so repeated
// calls for the same client always land on the same bucket.
func (rl *ipRateLimiter) shardFor(ip string) *limiterShard {
	var h uint32
	for i := 0; i < len(ip); i++ {
		h = h*31 + uint32(ip[i])
	}
	return rl.shards[h%rateLimitShards]
}

func (rl *ipRateLimiter) allow(ip string) bool {
	rl.startOnce.Do(func() { go rl.janitor() })

	shard := rl.shardFor(ip)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	e, ok := shard.limiters[ip]
	if !ok {
		e = &rateLimitEntry{limiter: rate.NewLimiter(rl.rateVal, rl.burst)}
		shard.limiters[ip] = e
	}
	e.lastSeen = time.Now()

	return e.limiter.Allow()
}

// janitor sweeps every shard for buckets idle longer than staleAfter. It
// runs for the process lifetime since the debug server's rate limiter
// never tears down independently of the process.
func (rl *ipRateLimiter) janitor() {
	ticker := time.NewTicker(staleAfter)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-staleAfter)
		for _, shard := range rl.shards {
			shard.mu.Lock()
			for ip, e := range shard.limiters {
				if e.lastSeen.Before(cutoff) {
					delete(shard.limiters, ip)
				}
			}
			shard.mu.Unlock()
		}
	}
}

// clientIP extracts the client IP from the request, preferring the first
// hop recorded in X-Forwarded-For over the direct TCP peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if trimmed := strings.TrimSpace(first); trimmed != "" {
			return trimmed
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// statusWriter wraps ResponseWriter to capture the status code and the
// number of bytes written, for access logging.
type statusWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int
	wroteHeader  bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

// generateID returns a 32-character hex-encoded random request ID.
func generateID() string {
	var buf [16]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

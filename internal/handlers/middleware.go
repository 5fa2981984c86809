package handlers

import (
	"crypto/subtle"
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RequestMetrics counts requests and failures across all endpoints
type RequestMetrics struct {
	total  atomic.Int64
	failed atomic.Int64
}

// Record tallies one finished request
func (m *RequestMetrics) Record(status int) {
	m.total.Add(1)
	if status >= http.StatusBadRequest {
		m.failed.Add(1)
	}
}

// Snapshot returns the counters and the success rate as a percentage
func (m *RequestMetrics) Snapshot() (total, failed int64, successRate float64) {
	total = m.total.Load()
	failed = m.failed.Load()
	if total == 0 {
		return 0, 0, 100.0
	}
	successRate = float64(total-failed) / float64(total) * 100.0
	return total, failed, successRate
}

// Middleware counts every request that passes through it
func (m *RequestMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.Record(rec.status)
	})
}

// statusRecorder captures the response status. It passes Flush through so
// the SSE endpoint still sees a Flusher behind the middleware chain.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// IPRateLimiter hands out one token bucket per remote address. Buckets
// refill at perMinute tokens per minute and idle entries are pruned lazily.
type IPRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	perMinute int
	lastPrune time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const visitorIdleTTL = 10 * time.Minute

// NewIPRateLimiter creates a limiter allowing perMinute requests per
// remote address with a full bucket of the same size.
func NewIPRateLimiter(perMinute int) *IPRateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &IPRateLimiter{
		visitors:  make(map[string]*visitor),
		limit:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:     perMinute,
		perMinute: perMinute,
		lastPrune: time.Now(),
	}
}

// Limit returns the configured requests-per-minute ceiling
func (rl *IPRateLimiter) Limit() int {
	return rl.perMinute
}

func (rl *IPRateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastPrune) > visitorIdleTTL {
		cutoff := time.Now().Add(-visitorIdleTTL)
		for addr, v := range rl.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(rl.visitors, addr)
			}
		}
		rl.lastPrune = time.Now()
	}

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *IPRateLimiter) retryAfterSeconds() int {
	secs := int(math.Ceil((time.Minute / time.Duration(rl.perMinute)).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// RateLimitMiddleware rejects requests over the per-address budget with 429
// and annotates every response with the X-RateLimit headers.
func RateLimitMiddleware(rl *IPRateLimiter, logger *log.Logger) func(http.Handler) http.Handler {
	rp := responder{logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := rl.limiterFor(clientIP(r))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perMinute))

			if !limiter.Allow() {
				retryAfter := rl.retryAfterSeconds()
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(retryAfter)*time.Second).Unix(), 10))
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				rp.sendErrorMessage(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded, retry later")
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
			next.ServeHTTP(w, r)
		})
	}
}

// APIKeyMiddleware enforces the optional API key. With an empty key it is a
// no-op. Health probes, the service root and the Swagger UI stay open so
// monitoring and documentation keep working without credentials. The key is
// read from X-API-Key or an Authorization bearer token.
func APIKeyMiddleware(apiKey string, logger *log.Logger) func(http.Handler) http.Handler {
	rp := responder{logger: logger}
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if openPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if !keyMatches(r, apiKey) {
				rp.sendErrorMessage(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func openPath(path string) bool {
	return path == "/" || path == "/health" ||
		strings.HasPrefix(path, "/health/") ||
		strings.HasPrefix(path, "/swagger/")
}

func keyMatches(r *http.Request, apiKey string) bool {
	presented := r.Header.Get("X-API-Key")
	if presented == "" {
		presented = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) == 1
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// CORSMiddleware allows browser clients from the configured origins
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if allowAll {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else if _, ok := allowed[origin]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Requested-With")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

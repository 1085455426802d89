package httpapi

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"
)

// kioskHeader lets a kiosk identify itself for rate limiting without the
// middleware having to read the request body.
const kioskHeader = "X-Kiosk-ID"

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"from", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
				"dur", time.Since(start),
			)
		})
	}
}

const (
	// maxLimiterKeys bounds how many buckets one server tracks.
	maxLimiterKeys = 1024
	// limiterIdleTTL is how long an unused bucket survives a sweep.
	limiterIdleTTL = 10 * time.Minute
)

var headerValidate = validator.New()

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// kioskLimiter hands out one token bucket per kiosk. Buckets idle for longer
// than limiterIdleTTL are swept once the table is full; if nothing is idle
// the least recently used bucket goes.
type kioskLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	now      func() time.Time
	limiters map[string]*limiterEntry
}

func newKioskLimiter(perSecond float64, burst int) *kioskLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &kioskLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
		limiters: make(map[string]*limiterEntry),
	}
}

func (l *kioskLimiter) allow(key string) bool {
	l.mu.Lock()
	now := l.now()
	e, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxLimiterKeys {
			l.evictLocked(now)
		}
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()
	return e.lim.AllowN(now, 1)
}

func (l *kioskLimiter) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, e := range l.limiters {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(l.limiters, k)
			continue
		}
		if oldestKey == "" || e.lastSeen.Before(oldest) {
			oldestKey, oldest = k, e.lastSeen
		}
	}
	if len(l.limiters) >= maxLimiterKeys {
		delete(l.limiters, oldestKey)
	}
}

func (l *kioskLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func kioskRateLimit(l *kioskLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(limiterKey(r)) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests from this kiosk")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limiterKey prefers the kiosk header and falls back to the peer address when
// the header is missing or malformed.
func limiterKey(r *http.Request) string {
	if id := r.Header.Get(kioskHeader); id != "" && headerValidate.Var(id, "max=64,printascii") == nil {
		return "kiosk:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "addr:" + r.RemoteAddr
	}
	return "addr:" + host
}

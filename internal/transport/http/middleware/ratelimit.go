package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"hrbpms/internal/transport/http/api"
)

type RateLimitKeyFunc func(r *http.Request) string

type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key. Idle buckets are swept lazily.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*keyLimiter
	rate      rate.Limit
	burst     int
	keyFn     RateLimitKeyFunc
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows perMinute requests per key per minute, all of which
// may arrive as a burst.
func NewRateLimiter(perMinute int, keyFn RateLimitKeyFunc) *RateLimiter {
	if keyFn == nil {
		keyFn = clientIPKey
	}
	burst := max(perMinute, 1)
	return &RateLimiter{
		limiters: make(map[string]*keyLimiter),
		rate:     rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		keyFn:    keyFn,
		idleTTL:  5 * time.Minute,
		now:      time.Now,
	}
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > rl.idleTTL {
		for k, l := range rl.limiters {
			if now.Sub(l.lastSeen) > rl.idleTTL {
				delete(rl.limiters, k)
			}
		}
		rl.lastSweep = now
	}

	if l, ok := rl.limiters[key]; ok {
		l.lastSeen = now
		return l.limiter
	}
	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[key] = &keyLimiter{limiter: limiter, lastSeen: now}
	return limiter
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.keyFn(r)
		if key == "" {
			key = clientIPKey(r)
		}
		if !rl.get(key).Allow() {
			retryAfter := 60
			if rl.rate > 0 {
				retryAfter = max(int(math.Ceil(1/float64(rl.rate))), 1)
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			slog.Warn("rate limit exceeded", "key", key, "path", r.URL.Path, "method", r.Method)
			api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AuthEmailOrIPKey keys credential requests by the email in their JSON body,
// falling back to the client address.
func AuthEmailOrIPKey(field string) RateLimitKeyFunc {
	normalizedField := strings.TrimSpace(field)
	if normalizedField == "" {
		normalizedField = "email"
	}
	return func(r *http.Request) string {
		email := extractJSONField(r, normalizedField)
		if email == "" {
			return clientIPKey(r)
		}
		return "email:" + strings.ToLower(email)
	}
}

func clientIPKey(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if value := strings.TrimSpace(first); value != "" {
			return value
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// extractJSONField reads one string field and restores the body for the
// next handler.
func extractJSONField(r *http.Request, field string) string {
	if r == nil || r.Body == nil {
		return ""
	}
	contentType := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type")))
	if !strings.Contains(contentType, "application/json") {
		return ""
	}
	original := r.Body
	raw, err := io.ReadAll(io.LimitReader(original, maxKeyBodyBytes))
	r.Body = replayBody{Reader: io.MultiReader(bytes.NewReader(raw), original), Closer: original}
	if err != nil || len(raw) == 0 || len(raw) == maxKeyBodyBytes {
		return ""
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	value, _ := payload[field].(string)
	return strings.TrimSpace(value)
}

// maxKeyBodyBytes bounds how much of a body is inspected for the key field.
const maxKeyBodyBytes = 64 * 1024

// replayBody serves the inspected prefix and then the unread rest.
type replayBody struct {
	io.Reader
	io.Closer
}

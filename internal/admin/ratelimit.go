package admin

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	staleLimiterTTL = 10 * time.Minute
	cleanupInterval = time.Minute
)

// Rule limits requests matching Method (empty for any) and a path Prefix.
// The first matching rule wins; each client gets its own bucket per rule.
type Rule struct {
	Method string
	Prefix string
	Every  time.Duration
	Burst  int
}

func (r Rule) matches(method, path string) bool {
	if r.Method != "" && !strings.EqualFold(r.Method, method) {
		return false
	}
	return strings.HasPrefix(path, r.Prefix)
}

func (r Rule) key() string {
	return r.Method + ":" + r.Prefix
}

// DefaultRules throttle the manual triggers harder than reads.
func DefaultRules() []Rule {
	return []Rule{
		{Method: http.MethodPost, Prefix: "/admin/v1/revocations/", Every: time.Minute, Burst: 1},
		{Method: http.MethodPost, Prefix: "/admin/v1/chains/", Every: 10 * time.Second, Burst: 2},
		{Every: time.Second, Burst: 5},
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client, per-rule token bucket in front of the admin API.
type RateLimiter struct {
	rules  []Rule
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	limiters map[string]*limiterEntry

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter starts a background sweep of idle buckets; call Stop to end it.
func NewRateLimiter(logger *slog.Logger, rules ...Rule) *RateLimiter {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	rl := &RateLimiter{
		rules:    rules,
		logger:   logger.With("component", "admin_ratelimit"),
		now:      time.Now,
		limiters: make(map[string]*limiterEntry),
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.evictStale()
		}
	}
}

func (rl *RateLimiter) evictStale() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > staleLimiterTTL {
			delete(rl.limiters, key)
		}
	}
}

// Len returns the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rule, ok := rl.match(r.Method, r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		clientIP := clientIP(r)
		if !rl.limiter(rule, clientIP).Allow() {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(rule.Every)))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			rl.logger.Warn("admin API rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"client_ip", clientIP,
			)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) match(method, path string) (Rule, bool) {
	for _, rule := range rl.rules {
		if rule.matches(method, path) {
			return rule, true
		}
	}
	return Rule{}, false
}

func (rl *RateLimiter) limiter(rule Rule, client string) *rate.Limiter {
	key := rule.key() + "|" + client
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if entry, ok := rl.limiters[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	burst := rule.Burst
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Every(rule.Every), burst)
	rl.limiters[key] = &limiterEntry{limiter: l, lastSeen: now}
	return l
}

func retryAfterSeconds(every time.Duration) int {
	secs := int(every.Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

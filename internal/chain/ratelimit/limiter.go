package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/chain"
	"github.com/DecentralizedGeo/astral-api/internal/circuitbreaker"
	"github.com/DecentralizedGeo/astral-api/internal/metrics"
	"golang.org/x/time/rate"
)

// Limiter paces calls to one chain's attestation source.
type Limiter struct {
	limiter *rate.Limiter
	chain   string
}

// NewLimiter allows rps calls per second with the given burst. A
// non-positive rps leaves the source unpaced.
func NewLimiter(rps float64, burst int, chain string) *Limiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Limiter{
		limiter: rate.NewLimiter(limit, max(burst, 1)),
		chain:   chain,
	}
}

// Wait takes one token, sleeping for it when the bucket is empty. The
// reservation is returned to the bucket if ctx ends first.
func (l *Limiter) Wait(ctx context.Context) error {
	res := l.limiter.Reserve()
	wait := res.Delay()
	if wait == 0 {
		return nil
	}
	metrics.SourceRateLimitWaits.WithLabelValues(l.chain).Inc()

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		res.Cancel()
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RecordCall counts one source call under its status label and observes its latency.
func RecordCall(chainName, method string, started time.Time, err error) {
	metrics.SourceRequestsTotal.WithLabelValues(chainName, method, ClassifyError(err)).Inc()
	metrics.SourceRequestLatency.WithLabelValues(chainName, method).Observe(time.Since(started).Seconds())
}

var networkFragments = []string{
	"connection refused", "connection reset", "network is unreachable",
	"no such host", "broken pipe", "eof",
}

// ClassifyError maps a source error to a metric status label.
func ClassifyError(err error) string {
	if err == nil {
		return "ok"
	}

	var decodeErr *chain.DecodeError
	var statusErr *chain.StatusError
	switch {
	case errors.As(err, &decodeErr):
		return "decode_error"
	case errors.As(err, &statusErr):
		if statusErr.StatusCode == http.StatusTooManyRequests {
			return "rate_limited"
		}
		if statusErr.StatusCode >= http.StatusInternalServerError {
			return "server_error"
		}
		return "client_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return "circuit_open"
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return "timeout"
	}
	if strings.Contains(msg, "circuit breaker") {
		return "circuit_open"
	}
	for _, f := range networkFragments {
		if strings.Contains(msg, f) {
			return "network_error"
		}
	}
	return "client_error"
}

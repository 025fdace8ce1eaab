package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/DecentralizedGeo/astral-api/internal/chain"
	"github.com/DecentralizedGeo/astral-api/internal/circuitbreaker"
)

type Class string

const (
	ClassTerminal  Class = "terminal"
	ClassTransient Class = "transient"
)

// Decision is the outcome of Classify. Reason is a stable snake_case label
// suitable for logs and metric labels.
type Decision struct {
	Class  Class
	Reason string
}

func (d Decision) IsTransient() bool {
	return d.Class == ClassTransient
}

func transient(reason string) Decision { return Decision{Class: ClassTransient, Reason: reason} }
func terminal(reason string) Decision  { return Decision{Class: ClassTerminal, Reason: reason} }

// markedError carries a caller-chosen decision through wrapping.
type markedError struct {
	error
	decision Decision
}

func (e *markedError) Unwrap() error { return e.error }

// Transient forces Classify to retry err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{error: err, decision: transient("explicit_transient")}
}

// Terminal forces Classify to give up on err.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{error: err, decision: terminal("explicit_terminal")}
}

// rule inspects err and reports a decision when it recognizes it.
type rule func(err error) (Decision, bool)

// rules are tried in order; the first match wins.
var rules = []rule{
	func(err error) (Decision, bool) {
		var m *markedError
		if errors.As(err, &m) {
			return m.decision, true
		}
		return Decision{}, false
	},
	func(err error) (Decision, bool) {
		var d *chain.DecodeError
		return terminal("decode_error"), errors.As(err, &d)
	},
	func(err error) (Decision, bool) {
		return terminal("context_canceled"), errors.Is(err, context.Canceled)
	},
	func(err error) (Decision, bool) {
		return transient("context_deadline_exceeded"), errors.Is(err, context.DeadlineExceeded)
	},
	func(err error) (Decision, bool) {
		return transient("circuit_open"), errors.Is(err, circuitbreaker.ErrCircuitOpen)
	},
	func(err error) (Decision, bool) {
		var s *chain.StatusError
		if !errors.As(err, &s) {
			return Decision{}, false
		}
		return httpStatusDecision(s.StatusCode), true
	},
	func(err error) (Decision, bool) {
		var n net.Error
		return transient("net_timeout"), errors.As(err, &n) && n.Timeout()
	},
	func(err error) (Decision, bool) {
		var u *url.Error
		return transient("transport_error"), errors.As(err, &u)
	},
	messageDecision,
}

// Classify decides whether err is worth retrying. Unrecognized errors are
// terminal.
func Classify(err error) Decision {
	if err == nil {
		return terminal("nil_error")
	}
	for _, r := range rules {
		if d, ok := r(err); ok {
			return d
		}
	}
	return terminal("unknown_terminal_default")
}

func httpStatusDecision(code int) Decision {
	switch {
	case code == http.StatusTooManyRequests:
		return transient("http_rate_limited")
	case code == http.StatusRequestTimeout:
		return transient("http_timeout")
	case code >= http.StatusInternalServerError:
		return transient("http_server_error")
	}
	return terminal("http_client_error")
}

// Fragments of driver and transport messages that never arrive as typed
// errors. Terminal fragments are checked first.
var (
	terminalFragments = []string{
		"invalid argument", "parse error", "syntax error",
		"not found", "constraint violation", "permission denied",
	}
	transientFragments = []string{
		"timeout", "timed out", "temporar", "unavailable",
		"connection reset", "connection refused", "broken pipe",
		"econnreset", "econnrefused", "too many requests", "rate limit",
		"unexpected eof", "server closed idle connection", "bad connection",
	}
)

func messageDecision(err error) (Decision, bool) {
	msg := strings.ToLower(err.Error())
	hasAny := func(fragments []string) bool {
		for _, f := range fragments {
			if strings.Contains(msg, f) {
				return true
			}
		}
		return false
	}
	switch {
	case hasAny(terminalFragments):
		return terminal("message_terminal"), true
	case hasAny(transientFragments):
		return transient("message_transient"), true
	}
	return Decision{}, false
}

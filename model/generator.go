package model

import (
	"context"
	"errors"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Generator produces text from ordered role-tagged messages.
type Generator interface {
	Generate(ctx context.Context, msgs []Message) (string, error)
}

// RateLimitError is a provider signal that the request was throttled.
// RetryAfter is zero when the provider gave no usable hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err == nil {
		return "rate limited"
	}
	return "rate limited: " + e.Err.Error()
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

var rateLimitPhrases = []string{"rate limit", "quota", "limit exceeded"}

// ClassifyRateLimit reports whether err is a rate-limit signal and how long to
// wait before retrying. Structured errors win; otherwise the message text is
// searched for known phrases and a delay, with fallback as the default.
func ClassifyRateLimit(err error, fallback time.Duration) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		if rl.RetryAfter > 0 {
			return rl.RetryAfter, true
		}
		return ParseRetryDelay(err.Error(), fallback), true
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(msg, phrase) {
			return ParseRetryDelay(msg, fallback), true
		}
	}
	return 0, false
}

var delayRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(minutes?|mins?|m\b|seconds?|secs?|s\b)`)

// ParseRetryDelay finds "<n> seconds", "<n>s", "<n> minutes" and similar in
// text. Fractions round up to the next whole second.
func ParseRetryDelay(text string, fallback time.Duration) time.Duration {
	m := delayRe.FindStringSubmatch(text)
	if m == nil {
		return fallback
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil || n <= 0 {
		return fallback
	}
	unit := time.Second
	if strings.HasPrefix(strings.ToLower(m[2]), "m") {
		unit = time.Minute
	}
	return time.Duration(math.Ceil(n*float64(unit/time.Second))) * time.Second
}

// retryAfterHeader parses an HTTP Retry-After value given in seconds.
func retryAfterHeader(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}

func splitSystem(msgs []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

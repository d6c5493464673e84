package llm

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// callError carries the HTTP status and provider message of a failed call
// so the retry loop can recognize rate limiting.
type callError struct {
	status     int
	message    string
	retryAfter time.Duration // from a Retry-After header when present
}

func (e *callError) Error() string {
	if e.status != 0 {
		return fmt.Sprintf("model call failed with status %d: %s", e.status, e.message)
	}
	return fmt.Sprintf("model call failed: %s", e.message)
}

// rateLimited reports whether the error looks like provider throttling:
// a 429 status or a "rate limit" mention in the message.
func rateLimited(err error) bool {
	var ce *callError
	if !errors.As(err, &ce) {
		return false
	}
	if ce.status == http.StatusTooManyRequests {
		return true
	}
	return strings.Contains(strings.ToLower(ce.message), "rate limit")
}

// retryAfterMessageRe scrapes a suggested wait out of free-text provider
// errors like "rate limit exceeded, try again in 23.5s" or
// "retry after 60 seconds". This is inherently fragile across provider
// message-format changes; the scheduled backoff is the safety net.
var retryAfterMessageRe = regexp.MustCompile(`(?i)(?:retry[ -]?after|try again in)[:\s]*([0-9]+(?:\.[0-9]+)?)\s*(ms|milliseconds?|s|secs?|seconds?|m|mins?|minutes?)?`)

// parseRetryAfterMessage extracts a server-suggested delay from an error
// message, returning 0 when none is found.
func parseRetryAfterMessage(msg string) time.Duration {
	m := retryAfterMessageRe.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	val, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}

	unit := strings.ToLower(m[2])
	switch {
	case strings.HasPrefix(unit, "ms") || strings.HasPrefix(unit, "milli"):
		return time.Duration(val * float64(time.Millisecond))
	case strings.HasPrefix(unit, "m"):
		return time.Duration(val * float64(time.Minute))
	default:
		return time.Duration(val * float64(time.Second))
	}
}

// parseRetryAfterHeader handles the delay-seconds form of a Retry-After
// header.
func parseRetryAfterHeader(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// retryDelay picks the wait before the next attempt. Rate-limited failures
// honor the server's suggestion when one can be extracted, padded by a
// second and capped at the schedule's maximum; everything else uses the
// scheduled delay unmodified.
func retryDelay(err error, schedule []time.Duration, idx int) time.Duration {
	scheduled := schedule[idx]
	if !rateLimited(err) {
		return scheduled
	}

	maxDelay := schedule[len(schedule)-1]

	var suggested time.Duration
	var ce *callError
	if errors.As(err, &ce) {
		suggested = ce.retryAfter
		if suggested == 0 {
			suggested = parseRetryAfterMessage(ce.message)
		}
	}
	if suggested == 0 {
		return scheduled
	}

	delay := suggested + time.Second
	if delay < scheduled {
		delay = scheduled
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

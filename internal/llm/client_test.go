package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	})

	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return c, &delays
}

func chatBody(content string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"role":"assistant","content":%q}}]}`, content)
}

func TestScore_SuccessFirstAttempt(t *testing.T) {
	c, delays := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, chatBody(`{"score": 78, "reasoning": "solid wind, clean waves", "factors": {"windQuality": 80}}`))
	})

	res, err := c.Score(context.Background(), Messages{System: "sys", User: "usr"})
	require.NoError(t, err)
	assert.Equal(t, 78, res.Score)
	assert.Equal(t, "solid wind, clean waves", res.Reasoning)
	require.NotNil(t, res.Factors)
	require.NotNil(t, res.Factors.WindQuality)
	assert.Equal(t, 80, *res.Factors.WindQuality)
	assert.Equal(t, 1, res.Attempt)
	assert.Empty(t, *delays)
}

func TestScore_MarkdownFencedJSONAccepted(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatBody("```json\n{\"score\": 55, \"reasoning\": \"ok\"}\n```"))
	})

	res, err := c.Score(context.Background(), Messages{})
	require.NoError(t, err)
	assert.Equal(t, 55, res.Score)
}

func TestScore_OutOfRangeScoreRetriedThenFails(t *testing.T) {
	calls := 0
	c, delays := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, chatBody(`{"score": 150, "reasoning": "ok"}`))
	})

	res, err := c.Score(context.Background(), Messages{})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
	assert.Equal(t, 4, calls)
	assert.Equal(t, DefaultBackoff, *delays)
}

func TestScore_EmptyReasoningRetried(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			fmt.Fprint(w, chatBody(`{"score": 60, "reasoning": "  "}`))
			return
		}
		fmt.Fprint(w, chatBody(`{"score": 60, "reasoning": "late but valid"}`))
	})

	res, err := c.Score(context.Background(), Messages{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempt)
}

func TestScore_TransportErrorRetried(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, chatBody(`{"score": 42, "reasoning": "recovered"}`))
	})

	res, err := c.Score(context.Background(), Messages{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempt)
}

func TestScore_ContextCancellationStopsRetries(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := c.Score(ctx, Messages{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseRetryAfterMessage(t *testing.T) {
	cases := []struct {
		msg  string
		want time.Duration
	}{
		{"rate limit exceeded, try again in 23.5s", 23500 * time.Millisecond},
		{"Rate limit reached. Retry after 60 seconds", 60 * time.Second},
		{"retry-after: 2 minutes", 2 * time.Minute},
		{"try again in 500ms", 500 * time.Millisecond},
		{"rate limit exceeded", 0},
		{"some other error", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseRetryAfterMessage(tc.msg), tc.msg)
	}
}

func TestRetryDelay_RateLimitAware(t *testing.T) {
	schedule := []time.Duration{30 * time.Second, 60 * time.Second, 300 * time.Second}

	// Non-rate-limit errors use the schedule as-is
	plain := fmt.Errorf("boom")
	assert.Equal(t, 30*time.Second, retryDelay(plain, schedule, 0))

	// Parsed suggestion below the scheduled delay: schedule wins
	rl := &callError{status: 429, message: "rate limit, try again in 5s"}
	assert.Equal(t, 30*time.Second, retryDelay(rl, schedule, 0))

	// Parsed suggestion above the scheduled delay: suggestion + 1s wins
	rl2 := &callError{status: 429, message: "rate limit, try again in 90s"}
	assert.Equal(t, 91*time.Second, retryDelay(rl2, schedule, 1))

	// Suggestion is capped at the schedule maximum
	rl3 := &callError{status: 429, message: "rate limit, retry after 20 minutes"}
	assert.Equal(t, 300*time.Second, retryDelay(rl3, schedule, 0))

	// "rate limit" in message without a parsable delay: schedule unmodified
	rl4 := &callError{message: "rate limit exceeded"}
	assert.Equal(t, 60*time.Second, retryDelay(rl4, schedule, 1))

	// Retry-After header takes precedence over message text
	rl5 := &callError{status: 429, message: "slow down", retryAfter: 120 * time.Second}
	assert.Equal(t, 121*time.Second, retryDelay(rl5, schedule, 0))
}

func TestScore_429UsesRateLimitDelay(t *testing.T) {
	calls := 0
	c, delays := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"rate limit exceeded, try again in 45s"}}`)
			return
		}
		fmt.Fprint(w, chatBody(`{"score": 70, "reasoning": "after throttle"}`))
	})

	res, err := c.Score(context.Background(), Messages{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempt)
	require.Len(t, *delays, 1)
	assert.Equal(t, 46*time.Second, (*delays)[0])
}

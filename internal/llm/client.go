package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Config holds LLM endpoint settings. The endpoint is an OpenAI-compatible
// chat-completions API.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	HTTPTimeout time.Duration

	// Backoff is the fixed retry schedule after the initial attempt.
	// Defaults to 30s, 60s, 300s (four attempts total).
	Backoff []time.Duration
}

// Messages is the system/user prompt pair for one call.
type Messages struct {
	System string
	User   string
}

// Factors is the optional per-dimension breakdown in the model's response.
type Factors struct {
	WindQuality       *int `json:"windQuality,omitempty"`
	WaveQuality       *int `json:"waveQuality,omitempty"`
	TideQuality       *int `json:"tideQuality,omitempty"`
	OverallConditions *int `json:"overallConditions,omitempty"`
}

// Result is a validated scoring response plus call provenance.
type Result struct {
	Score     int
	Reasoning string
	Factors   *Factors
	Raw       string
	Model     string
	Attempt   int
	Duration  time.Duration
}

// DefaultBackoff is the fixed retry schedule: three retries after the
// initial attempt.
var DefaultBackoff = []time.Duration{30 * time.Second, 60 * time.Second, 300 * time.Second}

// Client calls the scoring model with bounded retries. A single Client is
// shared across orchestrator runs; its circuit breaker protects the one
// contended external resource.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker

	// sleep is swapped out in tests to avoid real backoff waits
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client with defaults filled in.
func NewClient(cfg Config) *Client {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 800
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = DefaultBackoff
	}

	st := gobreaker.Settings{Name: "llm"}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		breaker: gobreaker.NewCircuitBreaker(st),
		sleep:   sleepCtx,
	}
}

// Temperature reports the effective sampling temperature, for provenance.
func (c *Client) Temperature() float64 { return c.cfg.Temperature }

// MaxTokens reports the effective completion cap, for provenance.
func (c *Client) MaxTokens() int { return c.cfg.MaxTokens }

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Score executes one scoring call with the fixed backoff schedule. Every
// failure mode short of context cancellation is retryable: transport
// errors, rate limits, malformed JSON, out-of-range scores, empty
// reasoning. After the schedule is exhausted the last error is returned and
// the caller records the pair as unscored.
func (c *Client) Score(ctx context.Context, msgs Messages) (*Result, error) {
	maxAttempts := len(c.cfg.Backoff) + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		result, err := c.scoreOnce(ctx, msgs)
		if err == nil {
			result.Attempt = attempt
			result.Duration = time.Since(start)
			result.Model = c.cfg.Model
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.Warn().
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Err(err).
			Msg("scoring call failed")

		if attempt == maxAttempts {
			break
		}

		delay := retryDelay(err, c.cfg.Backoff, attempt-1)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
	}

	return nil, fmt.Errorf("scoring failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) scoreOnce(ctx context.Context, msgs Messages) (*Result, error) {
	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: msgs.System},
			{Role: "user", Content: msgs.User},
		},
		Temperature:    c.cfg.Temperature,
		MaxTokens:      c.cfg.MaxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, payload)
	})
	if err != nil {
		return nil, err
	}
	body := raw.([]byte)

	var apiResp chatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, &callError{message: apiResp.Error.Message}
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in model response")
	}

	content := apiResp.Choices[0].Message.Content
	parsed, err := parseScorePayload(content)
	if err != nil {
		return nil, err
	}
	parsed.Raw = content
	return parsed, nil
}

func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		ce := &callError{
			status:  resp.StatusCode,
			message: string(body),
		}
		if ra := parseRetryAfterHeader(resp.Header.Get("Retry-After")); ra > 0 {
			ce.retryAfter = ra
		}
		return nil, ce
	}

	return body, nil
}

// parseScorePayload validates the model's JSON content. Markdown code
// fences are stripped first since some models wrap JSON despite the
// response_format hint.
func parseScorePayload(content string) (*Result, error) {
	clean := strings.TrimSpace(content)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	var payload struct {
		Score     *float64 `json:"score"`
		Reasoning string   `json:"reasoning"`
		Factors   *Factors `json:"factors"`
	}
	if err := json.Unmarshal([]byte(clean), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse score payload: %w", err)
	}

	if payload.Score == nil {
		return nil, fmt.Errorf("score missing from model response")
	}
	if *payload.Score < 0 || *payload.Score > 100 {
		return nil, fmt.Errorf("score %.1f out of range [0,100]", *payload.Score)
	}
	if strings.TrimSpace(payload.Reasoning) == "" {
		return nil, fmt.Errorf("empty reasoning in model response")
	}

	return &Result{
		Score:     int(*payload.Score),
		Reasoning: payload.Reasoning,
		Factors:   payload.Factors,
	}, nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

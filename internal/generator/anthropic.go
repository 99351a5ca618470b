package generator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/raaihank/civicguard/internal/draft"
	"github.com/raaihank/civicguard/internal/logger"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	anthropicVersion = "2023-06-01"
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-sonnet-4-6"
	maxResponseBytes = 1 << 20
)

// AnthropicConfig configures the Messages API client
type AnthropicConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	MaxTokens       int
	Timeout         time.Duration
	MaxRetries      int
	RetryInterval   time.Duration
	BreakerFailures int
	StressKeywords  []string
}

// AnthropicClient generates drafts through the Anthropic Messages API
type AnthropicClient struct {
	config  AnthropicConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	system  string
	logger  *logger.Logger
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewAnthropicClient creates a client. An empty APIKey is read from
// ANTHROPIC_API_KEY.
func NewAnthropicClient(cfg AnthropicConfig, log *logger.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}

	log = log.WithComponent("anthropic")
	c := &AnthropicClient{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		system: SystemPrompt(cfg.StressKeywords),
		logger: log,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "anthropic",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
		// Only upstream trouble counts against the breaker
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	log.Info("Anthropic generator initialized",
		zap.String("base_url", cfg.BaseURL),
		zap.String("model", cfg.Model),
		zap.Int("max_retries", cfg.MaxRetries),
	)
	return c, nil
}

// Generate asks the model for a draft. Transient failures are retried with
// exponential backoff; an open breaker fails fast.
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (draft.CandidateDraft, error) {
	var content string
	attempt := 0

	operation := func() error {
		attempt++
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.send(ctx, req)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("anthropic circuit open: %w", err))
			}
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			c.logger.Warn("Anthropic call failed, will retry", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		content = result.(string)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.RetryInterval
	policy.MaxElapsedTime = 0
	bo := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.config.MaxRetries)), ctx)

	if err := backoff.Retry(operation, bo); err != nil {
		return draft.CandidateDraft{}, fmt.Errorf("failed to generate draft after %d attempt(s): %w", attempt, err)
	}

	candidate, err := draft.ParseCandidate(content)
	if err != nil {
		return draft.CandidateDraft{}, fmt.Errorf("failed to parse model output: %w", err)
	}
	return candidate, nil
}

// send performs one Messages API call and returns the concatenated text
func (c *AnthropicClient) send(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:     c.config.Model,
		MaxTokens: c.config.MaxTokens,
		System:    c.system,
		Messages:  []message{{Role: "user", Content: UserMessage(req)}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &TransientError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &TransientError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("upstream status %s", resp.Status)}
	}
	if resp.StatusCode != http.StatusOK {
		// The body may echo the request, so only its shape is kept.
		digest := sha256.Sum256(data)
		return "", fmt.Errorf("anthropic returned status %d (error type %s, %d byte body, sha256 %s)",
			resp.StatusCode, upstreamErrorType(data), len(data), hex.EncodeToString(digest[:6]))
	}

	var parsed messagesResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode anthropic response: %w", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", errors.New("anthropic returned no text content")
	}

	c.logger.Debug("Anthropic call completed",
		zap.String("model", parsed.Model),
		zap.String("stop_reason", parsed.StopReason),
		zap.Int("input_tokens", parsed.Usage.InputTokens),
		zap.Int("output_tokens", parsed.Usage.OutputTokens),
	)
	return text.String(), nil
}

var errorTypePattern = regexp.MustCompile(`^[a-z_]{1,40}$`)

// upstreamErrorType returns the API's error.type when it is a plain
// identifier, and "unknown" otherwise
func upstreamErrorType(body []byte) string {
	var env struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || !errorTypePattern.MatchString(env.Error.Type) {
		return "unknown"
	}
	return env.Error.Type
}

// BreakerState reports the circuit breaker state for health output
func (c *AnthropicClient) BreakerState() string {
	return c.breaker.State().String()
}

// Package llm talks to an OpenAI-compatible chat completions backend and
// enforces the JSON-object contract the idea and post stages rely on.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/trendagents/trend-pipeline/internal/apperrors"
	"github.com/trendagents/trend-pipeline/internal/calllog"
	"github.com/trendagents/trend-pipeline/internal/config"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL      = "https://api.openai.com/v1"
	defaultModel        = "gpt-4o"
	defaultMaxAttempts  = 3
	defaultRetryWait    = 1 * time.Second
	defaultRetryMaxWait = 8 * time.Second
	defaultTimeout      = 120 * time.Second
)

// Message is one role-tagged chat message (system, developer or user)
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BackendError is an HTTP failure returned by the generation backend
type BackendError struct {
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("generation backend returned status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the failure is worth retrying.
func (e *BackendError) Transient() bool {
	return transientStatus(e.StatusCode)
}

func transientStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusConflict, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	}
	return false
}

// Options configures a Client
type Options struct {
	APIKey            string
	Model             string
	BaseURL           string
	RequestsPerMinute int
	// MaxAttempts bounds attempts per completion request, first try included.
	MaxAttempts  int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	Timeout      time.Duration
}

// Client issues chat completion requests
type Client struct {
	client  *resty.Client
	apiKey  string
	model   string
	baseURL string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	Temperature    *float64          `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient creates a new generation backend client
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = defaultRetryWait
	}
	if opts.RetryMaxWait <= 0 {
		opts.RetryMaxWait = defaultRetryMaxWait
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(opts.MaxAttempts - 1).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				// rate limits surface as status codes; errors here are
				// connection failures and timeouts
				return true
			}
			return resp != nil && transientStatus(resp.StatusCode())
		}).
		AddRetryHook(func(resp *resty.Response, err error) {
			status := 0
			if resp != nil {
				status = resp.StatusCode()
			}
			logrus.Warnf("Retrying generation request (status=%d, err=%v)", status, err)
		})

	c := &Client{
		client:  client,
		apiKey:  opts.APIKey,
		model:   opts.Model,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}

	if opts.RequestsPerMinute > 0 {
		burst := opts.RequestsPerMinute / 10
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), burst)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GenerationBackend",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// caller errors say nothing about backend health
			var backendErr *BackendError
			if errors.As(err, &backendErr) {
				return !backendErr.Transient()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.Warnf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return c
}

// NewClientFromConfig creates a client from application configuration
func NewClientFromConfig(cfg *config.Config) *Client {
	return NewClient(Options{
		APIKey:            cfg.OpenAIAPIKey,
		Model:             cfg.OpenAIModel,
		BaseURL:           cfg.OpenAIBaseURL,
		RequestsPerMinute: cfg.OpenAIRequestsPerMinute,
	})
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Complete requests a free-form completion and returns the trimmed text.
func (c *Client) Complete(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	content, err := c.createCompletion(ctx, "openai.complete", chatRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func (c *Client) createCompletion(ctx context.Context, callContext string, req chatRequest) (string, error) {
	if c.apiKey == "" {
		return "", &apperrors.ConfigurationError{Setting: "OPENAI_API_KEY"}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("waiting for generation rate limit: %w", err)
		}
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		call := calllog.Start(callContext, map[string]any{"message_count": len(req.Messages)})
		resp, err := c.client.R().
			SetContext(ctx).
			SetAuthToken(c.apiKey).
			SetBody(req).
			Post(c.baseURL + "/chat/completions")
		call.Done()

		if err != nil {
			return nil, fmt.Errorf("generation request failed: %w", err)
		}
		if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
			body := resp.String()
			const max = 2048
			if len(body) > max {
				body = body[:max]
			}
			return nil, &BackendError{StatusCode: resp.StatusCode(), Body: body}
		}

		var decoded chatResponse
		if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
			return nil, fmt.Errorf("failed to decode generation response: %w", err)
		}
		if len(decoded.Choices) == 0 {
			return "", nil
		}
		return decoded.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sortdesk/client/internal/metrics"
	"github.com/sortdesk/client/internal/suggestion"
	"github.com/sortdesk/client/pkg/circuitbreaker"
	"github.com/sortdesk/client/pkg/logger"
	"github.com/sortdesk/client/pkg/retry"
)

const maxErrorBody = 64 * 1024

type Client struct {
	baseURL         *url.URL
	httpClient      *http.Client
	cb              *circuitbreaker.CircuitBreaker
	retryConfig     retry.Config
	suggestionLimit int
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Its Timeout is left as given.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) { c.retryConfig = cfg }
}

func NewClient(baseURL string, timeout time.Duration, suggestionLimit int, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported backend scheme %q", u.Scheme)
	}
	if suggestionLimit <= 0 {
		suggestionLimit = 50
	}

	retryConfig := retry.DefaultConfig()
	retryConfig.Logger = logger.GetLogger()

	c := &Client{
		baseURL:         u,
		httpClient:      &http.Client{Timeout: timeout},
		retryConfig:     retryConfig,
		suggestionLimit: suggestionLimit,
	}
	c.cb = circuitbreaker.NewCircuitBreaker("backend", circuitbreaker.Config{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          15 * time.Second,
		FailureThreshold: 5,
		IsFailure:        isBreakerFailure,
		Logger:           logger.GetLogger(),
	})
	for _, opt := range opts {
		opt(c)
	}

	logger.Info("Backend client initialized",
		zap.String("base_url", u.String()),
		zap.Duration("timeout", timeout),
	)

	return c, nil
}

// BaseURL is the origin the client talks to; the live feed derives its
// endpoint from it.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// FetchSuggestions performs the bulk fetch of pending suggestions, newest first.
func (c *Client) FetchSuggestions(ctx context.Context) ([]suggestion.Suggestion, error) {
	query := url.Values{"limit": {strconv.Itoa(c.suggestionLimit)}}

	raw, err := read[[]json.RawMessage](ctx, c, "fetch_suggestions", "/api/suggestions", query)
	if err != nil {
		return nil, err
	}

	out := make([]suggestion.Suggestion, 0, len(raw))
	for _, item := range raw {
		s, err := suggestion.Decode(item)
		if err != nil {
			logger.Warn("Skipping malformed suggestion in bulk response", zap.Error(err))
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Client) FetchConfig(ctx context.Context) (*RemoteConfig, error) {
	cfg, err := read[RemoteConfig](ctx, c, "fetch_config", "/api/config", nil)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Client) FetchTrainingData(ctx context.Context) ([]Sample, error) {
	return read[[]Sample](ctx, c, "fetch_training_data", "/api/training_data", nil)
}

// Apply sends an accept/reject decision. It is never retried: an accept
// moves a file on the server. Any 2xx is a success; the body is decoded
// best-effort.
func (c *Client) Apply(ctx context.Context, path string, accept bool) (*ApplyResult, error) {
	query := url.Values{
		"path":   {path},
		"accept": {strconv.FormatBool(accept)},
	}

	var result ApplyResult
	err := c.cb.Execute(ctx, func() error {
		return c.do(ctx, "apply", http.MethodPost, "/api/apply", query, nil, &result)
	})
	if errors.Is(err, ErrUnexpectedResponse) {
		logger.Warn("Apply succeeded with an unreadable response body",
			zap.String("path", path),
			zap.Error(err),
		)
		return &ApplyResult{}, nil
	}
	if err != nil {
		return nil, c.wrapBreaker("apply", err)
	}
	return &result, nil
}

func (c *Client) SubmitTraining(ctx context.Context, samples []Sample) (int, error) {
	if samples == nil {
		samples = []Sample{}
	}
	body, err := json.Marshal(samples)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal training batch: %w", err)
	}

	var result TrainResult
	err = c.cb.Execute(ctx, func() error {
		return c.do(ctx, "submit_training", http.MethodPost, "/api/train", nil, body, &result)
	})
	if err != nil {
		return 0, c.wrapBreaker("submit_training", err)
	}
	return result.SamplesTrained, nil
}

// read performs a retried GET. 4xx responses, undecodable bodies and an open
// circuit end the retries at once.
func read[T any](ctx context.Context, c *Client, op, path string, query url.Values) (T, error) {
	out, err := retry.DoWithResult(ctx, c.retryConfig, func() (T, error) {
		var v T
		err := c.cb.Execute(ctx, func() error {
			return c.do(ctx, op, http.MethodGet, path, query, nil, &v)
		})
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			return v, retry.Stop(err)
		}
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, ErrUnexpectedResponse) {
			return v, retry.Stop(err)
		}
		return v, err
	})
	return out, c.wrapBreaker(op, err)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body []byte, out interface{}) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.BackendDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendRequests.WithLabelValues(op, "transport").Inc()
		return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	defer resp.Body.Close()

	metrics.BackendRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Detail:     readDetail(resp),
		}
	}

	if out == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: %w: failed to read body: %w", op, ErrUnexpectedResponse, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: %w: failed to decode response: %w", op, ErrUnexpectedResponse, err)
	}

	logger.Debug("Backend request completed",
		zap.String("operation", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)
	return nil
}

// wrapBreaker reports a breaker rejection as a transport failure: no request
// reached the backend.
func (c *Client) wrapBreaker(op string, err error) error {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		metrics.BackendRequests.WithLabelValues(op, "rejected").Inc()
		return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	return err
}

func isBreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return errors.Is(err, ErrTransport)
}

func readDetail(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if len(body.Detail) > 0 {
			var s string
			if err := json.Unmarshal(body.Detail, &s); err == nil {
				return s
			}
			return string(body.Detail)
		}
		if body.Error != "" {
			return body.Error
		}
	}

	if text := strings.TrimSpace(http.StatusText(resp.StatusCode)); text != "" {
		return text
	}
	return resp.Status
}

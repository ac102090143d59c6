package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/resilience"
	"go.uber.org/zap"
)

const defaultTimeout = 60 * time.Second

type client struct {
	provider   string
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
	logger     *zap.Logger
	observer   Observer
}

func newClient(provider, baseURL string, timeout time.Duration, opts ...Option) *client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &client{
		provider:   provider,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.executor == nil {
		c.executor = resilience.NewExecutor(resilience.DefaultConfig(), resilience.WithLogger(c.logger))
	}
	return c
}

// postJSON sends payload to url and decodes the 2xx body into out, retrying transient failures.
func (c *client) postJSON(ctx context.Context, operation, url string, headers map[string]string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	start := time.Now()
	err = c.executor.Execute(ctx, c.provider+"."+operation, func(ctx context.Context) error {
		return c.doPost(ctx, operation, url, headers, body, out)
	}, func(err error) resilience.ErrorClassification {
		return classifyCallError(ctx, err)
	})
	if c.observer != nil {
		c.observer.ObserveCall(c.provider, operation, time.Since(start), err)
	}
	if err != nil {
		c.logger.Warn("llm call failed",
			zap.String("provider", c.provider),
			zap.String("operation", operation),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
	}
	return err
}

func (c *client) doPost(ctx context.Context, operation, url string, headers map[string]string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s request: %w", c.provider, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Provider:   c.provider,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(msg),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", operation, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w: %w", operation, ErrMalformedResponse, err)
	}
	return nil
}

// classifyCallError stops retrying once the caller's context is done. A per-request
// client timeout leaves ctx alive and is retried like any transient transport error.
func classifyCallError(ctx context.Context, err error) resilience.ErrorClassification {
	if ctx.Err() != nil {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return classifyError(err)
}

func classifyError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, ErrMalformedResponse) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if isRetryableHTTPStatus(statusErr.StatusCode) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

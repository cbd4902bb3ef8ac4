package bridge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Client posts request bodies to a Server.
// Connection errors are retried, but error responses are not, since the command would just fail the same way again.
type Client struct {
	Logger *zap.SugaredLogger
	URL    string

	retryClient              *retryablehttp.Client
	customizeRetryableClient func(*retryablehttp.Client)
}

type ClientOption func(c *Client)

func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.Logger = l.Named("httpexec_client").Sugar()
	}
}

func WithCustomizeRetryableClient(f func(r *retryablehttp.Client)) ClientOption {
	return func(c *Client) {
		c.customizeRetryableClient = f
	}
}

// StatusError is returned by Client.Post for non-200 responses.
type StatusError struct {
	StatusCode int
	RequestID  string
	// Body is the response body, which has the form "<status text>: <message>" for Server responses.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-200 HTTP status code %d: %s", e.StatusCode, e.Body)
}

type logAdapter struct {
	log *zap.SugaredLogger
}

func (a *logAdapter) Error(msg string, keysAndValues ...interface{}) { a.log.Warnw(msg, keysAndValues...) }
func (a *logAdapter) Warn(msg string, keysAndValues ...interface{})  { a.log.Warnw(msg, keysAndValues...) }
func (a *logAdapter) Info(msg string, keysAndValues ...interface{})  { a.log.Debugw(msg, keysAndValues...) }
func (a *logAdapter) Debug(msg string, keysAndValues ...interface{}) { a.log.Debugw(msg, keysAndValues...) }

func NewClient(log *zap.SugaredLogger, url string, opts ...ClientOption) *Client {
	c := &Client{
		Logger: log.Named("httpexec_client"),
		URL:    url,
	}
	for _, opt := range opts {
		opt(c)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		return 10 * time.Millisecond
	}
	retryClient.RetryMax = 10
	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err == nil {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	retryClient.Logger = &logAdapter{log: c.Logger}

	if c.customizeRetryableClient != nil {
		c.customizeRetryableClient(retryClient)
	}
	c.retryClient = retryClient

	return c
}

// Post sends body and returns the response body of a 200 response.
// Any other status is returned as a *StatusError.
func (c *Client) Post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.URL, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.retryClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP error: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			RequestID:  resp.Header.Get("X-Request-Id"),
			Body:       string(b),
		}
	}
	return b, nil
}

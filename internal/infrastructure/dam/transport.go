package dam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
)

const (
	defaultRequestTimeout = 20 * time.Second
	maxResponseSize       = 16 * 1024 * 1024
)

// defaultRetryBackoffs are the delays between attempts of an idempotent read.
var defaultRetryBackoffs = []time.Duration{200 * time.Millisecond, 1 * time.Second}

// Transport performs JSON calls against a DAM.
type Transport interface {
	Get(ctx context.Context, rawURL string, params url.Values) (json.RawMessage, error)
	Put(ctx context.Context, rawURL string, params url.Values, body any) (json.RawMessage, error)
	Delete(ctx context.Context, rawURL string, params url.Values) error
}

// StatusError is a non-2xx response from a DAM.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("DAM %s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("DAM %s %s: %d %s", e.Method, e.URL, e.StatusCode, e.Message)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// HTTPTransport is the net/http Transport.
type HTTPTransport struct {
	client        *http.Client
	retryBackoffs []time.Duration
	logger        *logging.ChanneledLogger
}

// HTTPTransportOption configures an HTTPTransport.
type HTTPTransportOption func(*HTTPTransport)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) HTTPTransportOption {
	return func(t *HTTPTransport) { t.client = client }
}

// WithRequestTimeout sets the per-attempt timeout.
func WithRequestTimeout(d time.Duration) HTTPTransportOption {
	return func(t *HTTPTransport) { t.client.Timeout = d }
}

// WithRetryBackoffs sets the delays between read attempts. No backoffs
// disables retries.
func WithRetryBackoffs(backoffs ...time.Duration) HTTPTransportOption {
	return func(t *HTTPTransport) { t.retryBackoffs = backoffs }
}

// NewHTTPTransport creates a transport.
func NewHTTPTransport(logger *logging.ChanneledLogger, opts ...HTTPTransportOption) *HTTPTransport {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	t := &HTTPTransport{
		client:        &http.Client{Timeout: defaultRequestTimeout},
		retryBackoffs: defaultRetryBackoffs,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Get reads a JSON document, retrying transient failures.
func (t *HTTPTransport) Get(ctx context.Context, rawURL string, params url.Values) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		body, err := t.do(ctx, http.MethodGet, rawURL, params, nil)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if attempt >= len(t.retryBackoffs) || !retryable(err) {
			return nil, lastErr
		}

		t.logger.DAM().Debug("Retrying DAM read", "url", redact(rawURL), "attempt", attempt+1, "error", err)
		select {
		case <-time.After(t.retryBackoffs[attempt]):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Put writes body as JSON and returns the response document.
func (t *HTTPTransport) Put(ctx context.Context, rawURL string, params url.Values, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return t.do(ctx, http.MethodPut, rawURL, params, payload)
}

// Delete removes the addressed resource.
func (t *HTTPTransport) Delete(ctx context.Context, rawURL string, params url.Values) error {
	_, err := t.do(ctx, http.MethodDelete, rawURL, params, nil)
	return err
}

func (t *HTTPTransport) do(ctx context.Context, method, rawURL string, params url.Values, payload []byte) (json.RawMessage, error) {
	start := time.Now()

	target, err := withQuery(rawURL, params)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.DAM().Warn("DAM request failed", "method", method, "url", redact(rawURL), "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("DAM %s %s: %w", method, redact(rawURL), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read DAM response: %w", err)
	}

	t.logger.DAM().Debug("DAM request", "method", method, "url", redact(rawURL), "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method:     method,
			URL:        redact(rawURL),
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("DAM %s %s: response is not JSON", method, redact(rawURL))
	}
	return json.RawMessage(trimmed), nil
}

func withQuery(rawURL string, params url.Values) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid DAM url: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redact drops the query, which carries client credentials.
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}

// errorMessage extracts a human message from a DAM error body, which is
// either {"error": "..."}, {"message": "..."} or {"error": {"message": "..."}}.
func errorMessage(body []byte) string {
	var shaped struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &shaped); err == nil {
		if shaped.Message != "" {
			return shaped.Message
		}
		var s string
		if json.Unmarshal(shaped.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(shaped.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return msg
}

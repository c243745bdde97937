// Package client issues scan requests to a labscan backend and normalizes
// the response into a scan result or a typed failure.
package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/anstrom/labscan/internal/errors"
	"github.com/anstrom/labscan/internal/logging"
	"github.com/anstrom/labscan/internal/scanning"
)

// ScanPath is the backend endpoint that runs a scan.
const ScanPath = "/scan"

const (
	defaultUserAgent = "labscan-client/1.0"
	maxResponseBytes = 10 << 20
)

// FailureKind tells transport problems apart from errors reported by the
// backend itself.
type FailureKind int

const (
	// NetworkError covers unreachable backends and unreadable responses.
	NetworkError FailureKind = iota + 1
	// ApplicationError is a failure the backend reported.
	ApplicationError
)

// String returns the failure kind name.
func (k FailureKind) String() string {
	switch k {
	case NetworkError:
		return "network_error"
	case ApplicationError:
		return "application_error"
	default:
		return "unknown"
	}
}

// User-facing failure text.
const (
	NetworkMessage    = "Unexpected error during scan."
	GenericAppMessage = "Unknown error during scan."
	NetworkHint       = "The scan encountered an unexpected error. Double-check your backend server and network connectivity."
	ApplicationHint   = "The scan failed. Check that nmap is installed on the server and that the target is reachable from this environment."
)

// Failure is the only error type RequestScan returns.
type Failure struct {
	Kind FailureKind
	// Message is the backend's error text for an ApplicationError.
	Message    string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", f.Kind, f.StatusCode, f.DisplayMessage())
	}
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.DisplayMessage(), f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.DisplayMessage())
}

// Unwrap returns the underlying cause.
func (f *Failure) Unwrap() error {
	return f.Cause
}

// DisplayMessage returns the message shown to the user.
func (f *Failure) DisplayMessage() string {
	if f.Kind == ApplicationError {
		if f.Message != "" {
			return f.Message
		}
		return GenericAppMessage
	}
	return NetworkMessage
}

// Hint returns the follow-up advice shown under the message.
func (f *Failure) Hint() string {
	if f.Kind == ApplicationError {
		return ApplicationHint
	}
	return NetworkHint
}

// Code maps the failure onto an error code for logs and metrics.
func (f *Failure) Code() errors.ErrorCode {
	if f.Kind == ApplicationError {
		return errors.CodeScanFailed
	}
	if f.StatusCode != 0 {
		return errors.CodeBadResponse
	}
	return errors.CodeNetworkUnreachable
}

// AsFailure extracts a *Failure from err. Any other error is treated as a
// network failure.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if stderrors.As(err, &f) {
		return f
	}
	return &Failure{Kind: NetworkError, Cause: err}
}

// scanResponse is the union of the success and error payloads.
type scanResponse struct {
	scanning.ScanResult
	Error string `json:"error,omitempty"`
}

// Client talks to one scan backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	headers    http.Header
	validate   *validator.Validate
	logger     *logging.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithHeader adds a header to every scan request.
func WithHeader(name, value string) Option {
	return func(c *Client) {
		c.headers.Set(name, value)
	}
}

// New creates a client for the backend at baseURL. A zero timeout leaves
// requests bounded only by the caller's context.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		userAgent: defaultUserAgent,
		headers:   make(http.Header),
		validate:  validator.New(),
		logger:    logging.Default().WithComponent("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestScan asks the backend for one scan of its lab target. It makes
// exactly one HTTP request and never retries. Any error is a *Failure.
func (c *Client) RequestScan(ctx context.Context) (*scanning.ScanResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ScanPath, http.NoBody)
	if err != nil {
		return nil, &Failure{Kind: NetworkError, Cause: fmt.Errorf("failed to create HTTP request: %w", err)}
	}
	for name, values := range c.headers {
		req.Header[name] = values
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).Warn("Scan request failed")
		return nil, &Failure{Kind: NetworkError, Cause: fmt.Errorf("HTTP request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Failure{Kind: NetworkError, StatusCode: resp.StatusCode,
			Cause: fmt.Errorf("failed to read response body: %w", err)}
	}

	var payload scanResponse
	decodeErr := json.Unmarshal(body, &payload)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// A non-JSON error body still counts as a backend failure.
		c.logger.Warn("Backend rejected scan", "status", resp.StatusCode, "error", payload.Error)
		return nil, &Failure{Kind: ApplicationError, Message: payload.Error, StatusCode: resp.StatusCode}
	}

	if decodeErr != nil {
		return nil, &Failure{Kind: NetworkError, StatusCode: resp.StatusCode,
			Cause: fmt.Errorf("failed to decode scan response: %w", decodeErr)}
	}

	if payload.Error != "" {
		c.logger.Warn("Backend reported scan error", "error", payload.Error)
		return nil, &Failure{Kind: ApplicationError, Message: payload.Error, StatusCode: resp.StatusCode}
	}

	result := payload.ScanResult
	if result.Ports == nil {
		result.Ports = []scanning.PortFinding{}
	}
	if err := c.validate.Struct(&result); err != nil {
		return nil, &Failure{Kind: NetworkError, StatusCode: resp.StatusCode,
			Cause: fmt.Errorf("invalid scan response: %w", err)}
	}

	c.logger.Debug("Scan response received", "target", result.Target, "open_ports", len(result.Ports))
	return &result, nil
}

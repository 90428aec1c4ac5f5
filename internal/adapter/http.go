package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/raid-tracker/internal/config"
	"github.com/raid-tracker/internal/errors"
	"github.com/raid-tracker/internal/logging"
	"github.com/raid-tracker/internal/ratelimit"
	"github.com/raid-tracker/internal/types"
)

const (
	// DefaultTimeout bounds a single upstream call
	DefaultTimeout = 30 * time.Second

	headerRateLimit     = "X-RateLimit-Limit"
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRateReset     = "X-RateLimit-Reset"

	// reset values above this are unix timestamps, below are seconds from now
	epochThreshold = 1_000_000_000

	maxErrorBody = 512
)

// apiClient is the shared HTTP plumbing for all provider clients.
// Every call waits for coordinator admission, then the provider pacer,
// and records consumption before the request leaves.
type apiClient struct {
	provider    types.Provider
	baseURL     string
	httpClient  *http.Client
	coordinator *ratelimit.Coordinator
	pacer       *ratelimit.Pacer
	health      *healthTracker
	logger      *logging.Logger
	now         func() time.Time
}

// apiRequest describes one upstream call
type apiRequest struct {
	method string
	// path is appended to the base URL unless it is absolute
	path  string
	query url.Values
	body  interface{}
}

func newAPIClient(provider types.Provider, cfg *config.ProviderConfig, coordinator *ratelimit.Coordinator, logger *logging.Logger) (*apiClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%s: provider config is required", provider)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s: base URL is required", provider)
	}
	if coordinator == nil {
		return nil, fmt.Errorf("%s: rate limit coordinator is required", provider)
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &apiClient{
		provider:    provider,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  newHTTPClient(cfg, timeout),
		coordinator: coordinator,
		pacer:       ratelimit.NewPacer(cfg.CallDelay),
		health:      newHealthTracker(provider),
		logger:      logger.WithField("provider", string(provider)),
		now:         time.Now,
	}, nil
}

// newHTTPClient returns a client-credentials client when credentials and a
// token URL are configured, otherwise a plain client.
func newHTTPClient(cfg *config.ProviderConfig, timeout time.Duration) *http.Client {
	base := &http.Client{Timeout: timeout}
	if cfg.ClientID == "" || cfg.TokenURL == "" {
		return base
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cc.Client(ctx)
	client.Timeout = timeout
	return client
}

// doJSON performs the request and decodes a 2xx JSON body into out.
// Non-2xx statuses are mapped onto the error taxonomy.
func (c *apiClient) doJSON(ctx context.Context, req *apiRequest, out interface{}) error {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return err
	}

	if err := c.coordinator.WaitForAdmission(ctx, c.provider); err != nil {
		return errors.NewProviderError(c.provider, err)
	}

	release, err := c.pacer.Acquire(ctx)
	if err != nil {
		return errors.NewProviderError(c.provider, err)
	}
	defer release()

	c.coordinator.RecordConsumption(c.provider)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.health.recordFailure(err)
		return c.wrapTransportError(err)
	}
	defer resp.Body.Close()

	c.applyRateLimitHeaders(resp.Header)

	if err := c.checkStatus(resp, req.path); err != nil {
		if !errors.IsNotFound(err) {
			c.health.recordFailure(err)
		}
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.health.recordFailure(err)
			return errors.NewProviderError(c.provider, fmt.Errorf("failed to decode response: %w", err))
		}
	}

	c.health.recordSuccess(time.Since(start))
	return nil
}

func (c *apiClient) buildRequest(ctx context.Context, req *apiRequest) (*http.Request, error) {
	target := req.path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + target
	}
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	method := req.method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return httpReq, nil
}

// wrapTransportError maps a failed round trip. A rejected token exchange is an auth failure.
func (c *apiClient) wrapTransportError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if stderrors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return errors.NewProviderAuthError(c.provider, retrieveErr.Response.StatusCode)
	}
	return errors.NewProviderError(c.provider, err)
}

func (c *apiClient) checkStatus(resp *http.Response, resource string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.NewProviderAuthError(c.provider, resp.StatusCode)
	case http.StatusNotFound, http.StatusBadRequest:
		return errors.NewProviderNotFoundError(c.provider, resource)
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return errors.NewProviderStatusError(c.provider, resp.StatusCode, strings.TrimSpace(string(snippet)))
}

// applyRateLimitHeaders overwrites the coordinator state when the provider reports its quota
func (c *apiClient) applyRateLimitHeaders(h http.Header) {
	remaining, err := strconv.Atoi(h.Get(headerRateRemaining))
	if err != nil {
		return
	}
	limit, err := strconv.Atoi(h.Get(headerRateLimit))
	if err != nil {
		return
	}

	resetAt := c.now().Add(time.Hour)
	if raw := h.Get(headerRateReset); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			if v > epochThreshold {
				resetAt = time.Unix(v, 0)
			} else {
				resetAt = c.now().Add(time.Duration(v) * time.Second)
			}
		}
	}

	c.coordinator.ApplyAuthoritative(c.provider, remaining, limit, resetAt)
}

// Health returns the provider's call health
func (c *apiClient) Health() *ProviderHealth {
	return c.health.snapshot()
}

// notFoundAsEmpty swallows upstream not-found errors: "no data" is not a failure
func notFoundAsEmpty(err error) error {
	if errors.IsNotFound(err) {
		return nil
	}
	return err
}

// Package assets collects images for generated sites: Pexels photos,
// unDraw illustrations, mermaid.ink diagrams and DiceBear logos.
package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/logging"
	"github.com/iamxurulin/xu-AI-Zero/internal/retry"
)

const (
	DefaultPexelsURL  = "https://api.pexels.com/v1"
	DefaultUndrawURL  = "https://undraw.co/_next/data/ojPNcmgPo4fMUGOf89T3Q"
	DefaultMermaidURL = "https://mermaid.ink"
	DefaultLogoURL    = "https://api.dicebear.com/9.x/shapes/svg"

	// resultsPerQuery caps how many assets one search contributes.
	resultsPerQuery = 12

	maxBodySize = 4 << 20
)

// Config configures every provider.
type Config struct {
	PexelsAPIKey      string
	PexelsURL         string
	UndrawURL         string
	MermaidURL        string
	LogoURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
	// MaxAttempts bounds tries per request; 5xx, 408, 429 and network
	// failures are retried with backoff.
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.PexelsURL == "" {
		c.PexelsURL = DefaultPexelsURL
	}
	if c.UndrawURL == "" {
		c.UndrawURL = DefaultUndrawURL
	}
	if c.MermaidURL == "" {
		c.MermaidURL = DefaultMermaidURL
	}
	if c.LogoURL == "" {
		c.LogoURL = DefaultLogoURL
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// client is a rate-limited HTTP client shared by one provider.
type client struct {
	name    string
	http    *http.Client
	limiter *rate.Limiter
	policy  *retry.Policy
	logger  *logging.Logger
}

func newClient(name string, cfg Config, logger *logging.Logger) *client {
	if logger == nil {
		logger = logging.NewNop()
	}
	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &client{
		name:    name,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		policy:  retry.NewPolicy(retry.WithMaxAttempts(cfg.MaxAttempts)),
		logger:  logger,
	}
}

// do waits for the limiter, sends req and fails on non-2xx responses.
func (c *client) do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		e := core.ErrExecution(core.CodeCancelled, c.name+": rate limiter wait aborted").WithCause(err)
		e.Retryable = false
		return nil, e
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, core.ErrExecution("HTTP_REQUEST", c.name+": request failed").WithCause(err)
	}
	c.logger.Debug("assets: request completed",
		"provider", c.name,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		e := core.ErrExecution("HTTP_STATUS", fmt.Sprintf("%s: unexpected status %d", c.name, resp.StatusCode))
		e.Retryable = retryableStatus(resp.StatusCode)
		return nil, e
	}
	return resp, nil
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// withRetry runs fn under the client's retry policy.
func (c *client) withRetry(ctx context.Context, fn retry.Func) error {
	return c.policy.ExecuteWithNotify(ctx, fn, func(attempt int, err error, delay time.Duration) {
		c.logger.Debug("assets: retrying request",
			"provider", c.name,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	})
}

// getJSON issues a GET and decodes the body into v.
func (c *client) getJSON(ctx context.Context, url string, header http.Header, v interface{}) error {
	return c.withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("building %s request: %w", c.name, err)
		}
		for k, vals := range header {
			for _, val := range vals {
				req.Header.Add(k, val)
			}
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(v); err != nil {
			e := core.ErrExecution(core.CodeParseFailed, c.name+": decoding response").WithCause(err)
			e.Retryable = false
			return e
		}
		return nil
	})
}

// probe issues a GET and discards the body.
func (c *client) probe(ctx context.Context, url string) error {
	return c.withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("building %s request: %w", c.name, err)
		}
		resp, err := c.do(req)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	})
}

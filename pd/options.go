package pd

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/metric"
	"github.com/lorepanichi/pdh/pkg/retry"
)

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client) error

// WithBaseURL points the client at a different API root, mainly for tests
// and regional endpoints.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) error {
		if baseURL == "" {
			return errors.WrapConfig(
				fmt.Errorf("empty base URL"), "Client", "WithBaseURL", "validate option")
		}
		c.baseURL = baseURL
		return nil
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) error {
		if httpClient == nil {
			return errors.WrapConfig(
				fmt.Errorf("nil http client"), "Client", "WithHTTPClient", "validate option")
		}
		c.httpClient = httpClient
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		if timeout <= 0 {
			return errors.WrapConfig(
				fmt.Errorf("timeout must be positive, got %v", timeout),
				"Client", "WithTimeout", "validate option")
		}
		c.httpClient.Timeout = timeout
		return nil
	}
}

// WithRateLimit caps outgoing requests per second. PagerDuty throttles
// around 120 requests per minute per key; the default stays under that.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) error {
		if perSecond <= 0 || burst <= 0 {
			return errors.WrapConfig(
				fmt.Errorf("rate limit must be positive, got %v/%d", perSecond, burst),
				"Client", "WithRateLimit", "validate option")
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// WithRetry replaces the retry policy for transient failures.
func WithRetry(cfg retry.Config) ClientOption {
	return func(c *Client) error {
		c.retryCfg = cfg
		return nil
	}
}

// WithLogger sets a custom logger for the client
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMetrics records API request counts into the given pass metrics.
func WithMetrics(pass *metric.PassMetrics) ClientOption {
	return func(c *Client) error {
		c.metrics = pass
		return nil
	}
}

// WithUserAgent overrides the User-Agent header sent on every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) error {
		if ua == "" {
			return errors.WrapConfig(
				fmt.Errorf("empty user agent"), "Client", "WithUserAgent", "validate option")
		}
		c.userAgent = ua
		return nil
	}
}

// WithPageLimit sets the page size used for list endpoints.
func WithPageLimit(limit int) ClientOption {
	return func(c *Client) error {
		if limit <= 0 || limit > 100 {
			return errors.WrapConfig(
				fmt.Errorf("page limit must be in 1..100, got %d", limit),
				"Client", "WithPageLimit", "validate option")
		}
		c.pageLimit = limit
		return nil
	}
}

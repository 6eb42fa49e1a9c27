package pd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/metric"
	"github.com/lorepanichi/pdh/pkg/retry"
	"github.com/lorepanichi/pdh/record"
)

const (
	// DefaultBaseURL is the public REST API root.
	DefaultBaseURL = "https://api.pagerduty.com"

	defaultTimeout   = 30 * time.Second
	defaultPageLimit = 100
	defaultUserAgent = "pdh"

	// maxPages bounds transparent pagination so a huge account cannot
	// turn one listing into an unbounded crawl.
	maxPages = 20
)

// Client talks to the REST API on behalf of one operator.
type Client struct {
	baseURL    string
	apiKey     string
	email      string
	httpClient *http.Client
	limiter    *rate.Limiter
	retryCfg   retry.Config
	logger     *slog.Logger
	metrics    *metric.PassMetrics
	pageLimit  int
	userAgent  string
}

// NewClient builds a client for the given API key. The email identifies the
// acting operator on mutating calls and may be empty for read-only use.
func NewClient(apiKey, email string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, errors.WrapConfig(errors.ErrMissingConfig,
			"Client", "NewClient", "API key required")
	}

	client := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		email:      email,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(1.5), 3),
		retryCfg:   retry.API(),
		logger:     slog.Default().With("component", "pd-client"),
		pageLimit:  defaultPageLimit,
		userAgent:  defaultUserAgent,
	}

	for _, opt := range opts {
		if err := opt(client); err != nil {
			return nil, err
		}
	}

	return client, nil
}

// do performs one API call with rate limiting and retry, decoding the JSON
// response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	attempt := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.NonRetryable(err)
		}
		return c.roundTrip(ctx, method, path, query, body, out)
	}

	if err := retry.Do(ctx, c.retryCfg, attempt); err != nil {
		return errors.Wrap(err, "Client", "do", fmt.Sprintf("%s %s", method, path))
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return retry.NonRetryable(
				errors.WrapData(err, "Client", "roundTrip", "encode request body"))
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return retry.NonRetryable(
			errors.WrapConfig(err, "Client", "roundTrip", "build request"))
	}

	req.Header.Set("Authorization", "Token token="+c.apiKey)
	req.Header.Set("Accept", "application/vnd.pagerduty+json;version=2")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && c.email != "" {
		req.Header.Set("From", c.email)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordAPIRequest(endpointLabel(path), 0)
		return err // network errors stay retryable
	}
	defer func() { _ = resp.Body.Close() }()

	c.metrics.RecordAPIRequest(endpointLabel(path), resp.StatusCode)
	c.logger.Debug("API request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.WrapTransient(err, "Client", "roundTrip", "read response")
		}
		if err := json.Unmarshal(data, out); err != nil {
			return retry.NonRetryable(
				errors.WrapData(err, "Client", "roundTrip", "decode response"))
		}
		return nil
	}

	return c.statusError(resp, method, path)
}

// statusError maps a non-2xx response to a classified error, marking the
// ones a retry cannot fix as non-retryable.
func (c *Client) statusError(resp *http.Response, method, path string) error {
	snippet := bodySnippet(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return retry.NonRetryable(errors.WrapAuth(errors.ErrUnauthorized,
			"Client", "roundTrip", fmt.Sprintf("%s %s", method, path)))

	case resp.StatusCode == http.StatusTooManyRequests:
		wait := retryAfter(resp)
		c.logger.Warn("rate limited by API", "path", path, "wait", wait)
		return retry.RetryAfter(
			fmt.Errorf("%w: %s %s", errors.ErrRateLimited, method, path), wait)

	case resp.StatusCode == http.StatusNotFound:
		return retry.NonRetryable(errors.WrapData(errors.ErrNotFound,
			"Client", "roundTrip", fmt.Sprintf("%s %s", method, path)))

	case resp.StatusCode >= 500:
		return fmt.Errorf("server error %d on %s %s: %s",
			resp.StatusCode, method, path, snippet)

	default:
		return retry.NonRetryable(errors.WrapData(
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet),
			"Client", "roundTrip", fmt.Sprintf("%s %s", method, path)))
	}
}

// listPages fetches every page of a list endpoint and concatenates the
// records found under key.
func (c *Client) listPages(ctx context.Context, path string, query url.Values, key string) (record.Sequence, error) {
	all := record.Sequence{}
	offset := 0

	for page := 0; page < maxPages; page++ {
		pageQuery := url.Values{}
		for k, vs := range query {
			pageQuery[k] = vs
		}
		pageQuery.Set("limit", strconv.Itoa(c.pageLimit))
		pageQuery.Set("offset", strconv.Itoa(offset))

		var envelope map[string]json.RawMessage
		if err := c.do(ctx, http.MethodGet, path, pageQuery, nil, &envelope); err != nil {
			return nil, err
		}

		var items record.Sequence
		if raw, ok := envelope[key]; ok {
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, errors.WrapData(err, "Client", "listPages",
					fmt.Sprintf("decode %q items", key))
			}
		}
		all = append(all, items...)

		more := false
		if raw, ok := envelope["more"]; ok {
			_ = json.Unmarshal(raw, &more)
		}
		if !more {
			return all, nil
		}
		offset += c.pageLimit
	}

	c.logger.Warn("pagination cap reached, result truncated",
		"path", path, "records", len(all))
	return all, nil
}

func bodySnippet(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// endpointLabel reduces a request path to a low-cardinality metrics label:
// the leading resource plus the trailing sub-resource when present.
func endpointLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch len(parts) {
	case 0:
		return "/"
	case 1, 2:
		return "/" + parts[0]
	default:
		return "/" + parts[0] + "/" + parts[len(parts)-1]
	}
}

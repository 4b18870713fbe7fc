// Package shopapi fetches a seller's listings from the marketplace's JSON
// shop endpoints, walking from the current API version to the legacy one.
package shopapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/depop-feed/internal/acquire"
	"github.com/JakeFAU/depop-feed/internal/headless/detector"
	"github.com/JakeFAU/depop-feed/internal/listing"
	"github.com/JakeFAU/depop-feed/internal/progress"
)

// ErrNoEndpoints is returned by New when the endpoint list is empty.
var ErrNoEndpoints = errors.New("no shop endpoints configured")

// Endpoint is one API version to try. Path is a format string taking the
// escaped seller name.
type Endpoint struct {
	Label string
	Path  string
}

// DefaultEndpoints lists the current API first, then the legacy one.
var DefaultEndpoints = []Endpoint{
	{Label: "primary", Path: "/api/v2/shop/%s/products/"},
	{Label: "legacy", Path: "/api/v1/shop/%s/products/"},
}

// DefaultUserAgent mimics desktop Chrome; generic clients get 403s.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config controls the API tier.
type Config struct {
	BaseURL      string
	SiteURL      string
	UserAgent    string
	Limit        int
	Timeout      time.Duration
	DisableProxy bool
	Endpoints    []Endpoint
}

// RetryPolicy decides whether to repeat a request against the same endpoint.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	ShouldRetryStatus(code, attempt int) bool
	Wait(ctx context.Context, attempt int) error
}

// Client implements acquire.APIFetcher.
type Client struct {
	cfg           Config
	policy        RetryPolicy
	baseCollector *colly.Collector
	logger        *zap.Logger
	emitter       progress.Emitter
	challenge     *detector.Heuristic
}

var _ acquire.APIFetcher = (*Client)(nil)

// New builds a Client. A nil emitter discards progress events.
func New(cfg Config, policy RetryPolicy, logger *zap.Logger, emitter progress.Emitter) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if policy == nil {
		return nil, fmt.Errorf("retry policy is required")
	}
	if cfg.Endpoints == nil {
		cfg.Endpoints = DefaultEndpoints
	}
	if len(cfg.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = "https://www.depop.com"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 200
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.Nop{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	return &Client{
		cfg:           cfg,
		policy:        policy,
		baseCollector: newBaseCollector(cfg.UserAgent, cfg.Timeout, newHTTPTransport(cfg.DisableProxy)),
		logger:        logger,
		emitter:       emitter,
		challenge:     detector.NewHeuristic(0),
	}, nil
}

// FetchListings tries each endpoint in order and returns the first non-empty
// prepared batch. Blocked is set if any endpoint rejected the request.
func (c *Client) FetchListings(ctx context.Context, seller, cookieHeader string) acquire.Result {
	headers := c.headers(seller, cookieHeader)
	blocked := false
	var lastErr error
	for i, ep := range c.cfg.Endpoints {
		listings, err := c.fetchEndpoint(ctx, ep, seller, headers)
		if err == nil {
			return acquire.Success(listings, blocked)
		}
		if acquire.IsBlocked(err) {
			blocked = true
		}
		lastErr = err
		c.logger.Warn("Depop endpoint produced no products; trying next option",
			zap.String("tier", string(acquire.TierAPI)),
			zap.String("endpoint", ep.Label),
			zap.String("next", c.nextLabel(i)),
			zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return acquire.Empty(blocked, lastErr)
}

func (c *Client) nextLabel(i int) string {
	if i+1 < len(c.cfg.Endpoints) {
		return c.cfg.Endpoints[i+1].Label
	}
	return "fallback"
}

func (c *Client) headers(seller, cookieHeader string) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Origin", c.cfg.SiteURL)
	h.Set("Referer", fmt.Sprintf("%s/%s/", c.cfg.SiteURL, url.PathEscape(seller)))
	if cookieHeader != "" {
		h.Set("Cookie", cookieHeader)
	}
	return h
}

// EndpointURL renders the full request URL for an endpoint.
func (c *Client) EndpointURL(ep Endpoint, seller string) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.cfg.Limit))
	return c.cfg.BaseURL + fmt.Sprintf(ep.Path, url.PathEscape(seller)) + "?" + q.Encode()
}

// fetchEndpoint runs the retry loop for one endpoint. A nil error always
// comes with a non-empty batch.
func (c *Client) fetchEndpoint(ctx context.Context, ep Endpoint, seller string, headers http.Header) ([]listing.Listing, error) {
	target := c.EndpointURL(ep, seller)
	for attempt := 1; ; attempt++ {
		resp, err := c.get(ctx, target, headers)
		if err != nil {
			if ctx.Err() == nil && c.policy.ShouldRetry(err, attempt) {
				c.logRetry(ep, attempt, 0, err)
				if werr := c.policy.Wait(ctx, attempt); werr == nil {
					continue
				}
			}
			return nil, c.fail(ep, 0, c.classifyTransport(ep, err))
		}

		if c.policy.ShouldRetryStatus(resp.StatusCode, attempt) {
			c.logRetry(ep, attempt, resp.StatusCode, nil)
			if werr := c.policy.Wait(ctx, attempt); werr == nil {
				continue
			}
		}
		listings, ferr := c.interpret(ep, resp)
		if ferr != nil {
			return nil, c.fail(ep, resp.StatusCode, ferr)
		}
		c.emitter.Emit(progress.Event{
			Stage:       progress.StageEndpointDone,
			Tier:        string(acquire.TierAPI),
			Endpoint:    ep.Label,
			Result:      string(acquire.StatusSuccess),
			StatusClass: progress.ClassifyStatus(resp.StatusCode),
			Count:       len(listings),
		})
		return listings, nil
	}
}

func (c *Client) logRetry(ep Endpoint, attempt, status int, err error) {
	fields := []zap.Field{
		zap.String("tier", string(acquire.TierAPI)),
		zap.String("endpoint", ep.Label),
		zap.Int("attempt", attempt),
	}
	if status != 0 {
		fields = append(fields, zap.Int("status", status))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	c.logger.Warn("Retrying Depop endpoint after backoff", fields...)
}

func (c *Client) fail(ep Endpoint, status int, err *acquire.FetchError) error {
	result := string(err.Kind)
	c.emitter.Emit(progress.Event{
		Stage:       progress.StageEndpointDone,
		Tier:        string(acquire.TierAPI),
		Endpoint:    ep.Label,
		Result:      result,
		StatusClass: progress.ClassifyStatus(status),
		Note:        err.Error(),
	})
	return err
}

// classifyTransport maps a failed request. A proxy that refuses the tunnel
// surfaces as a transport error mentioning 403, which is treated as a block.
func (c *Client) classifyTransport(ep Endpoint, err error) *acquire.FetchError {
	fe := &acquire.FetchError{Kind: acquire.KindTransient, Tier: acquire.TierAPI, Endpoint: ep.Label, Err: err}
	if !c.cfg.DisableProxy && strings.Contains(err.Error(), "403") {
		fe.Kind = acquire.KindBlocked
		c.logger.Warn("Proxy may be blocking Depop; set DEPOP_DISABLE_PROXY=1 to ignore system proxy settings",
			zap.String("endpoint", ep.Label))
	}
	return fe
}

// interpret classifies a completed HTTP exchange.
func (c *Client) interpret(ep Endpoint, resp response) ([]listing.Listing, *acquire.FetchError) {
	fail := func(kind acquire.ErrorKind, err error) ([]listing.Listing, *acquire.FetchError) {
		return nil, &acquire.FetchError{
			Kind:       kind,
			Tier:       acquire.TierAPI,
			Endpoint:   ep.Label,
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}

	switch code := resp.StatusCode; {
	case code == http.StatusBadRequest || code == http.StatusForbidden:
		c.logger.Warn("Depop can block CI IPs or require a valid session; "+
			"verify the username or pass a logged-in DEPOP_COOKIE",
			zap.String("endpoint", ep.Label), zap.Int("status", code))
		return fail(acquire.KindBlocked, fmt.Errorf("HTTP %d", code))
	case code == http.StatusTooManyRequests || code >= 500:
		return fail(acquire.KindTransient, fmt.Errorf("HTTP %d after retries", code))
	case code < 200 || code >= 300:
		return fail(acquire.KindMalformed, fmt.Errorf("unexpected HTTP %d", code))
	}

	if c.challenge.IsChallenge(resp.Body) {
		c.logger.Warn("Depop answered with an anti-bot page instead of JSON; a logged-in DEPOP_COOKIE may help",
			zap.String("endpoint", ep.Label))
		return fail(acquire.KindBlocked, errors.New("anti-bot interstitial instead of JSON"))
	}

	raws, err := extractRecords(resp.Body)
	if err != nil {
		return fail(acquire.KindMalformed, err)
	}
	if len(raws) == 0 {
		return fail(acquire.KindEmpty, errors.New("listing array is empty"))
	}

	listings, report := listing.Prepare(raws)
	switch {
	case report.AllSold:
		c.logger.Warn("Depop response flagged everything as sold; keeping unfiltered products",
			zap.String("endpoint", ep.Label), zap.Int("count", report.Received))
	case report.SoldFlag > 0:
		c.logger.Info("Filtered out sold items",
			zap.String("endpoint", ep.Label), zap.Int("sold", report.SoldFlag))
	}
	if report.Incomplete > 0 {
		c.logger.Debug("Dropped listings without url or image",
			zap.String("endpoint", ep.Label), zap.Int("dropped", report.Incomplete))
	}
	if len(listings) == 0 {
		return fail(acquire.KindEmpty, errors.New("no listing had both url and image"))
	}
	return listings, nil
}

// extractRecords decodes the payload and returns the products (or items)
// array. Entries that are not objects are skipped.
func extractRecords(body []byte) ([]listing.Raw, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload is %T, not an object", payload)
	}

	var records []any
	found := false
	for _, key := range []string{"products", "items"} {
		list, ok := obj[key].([]any)
		if !ok {
			continue
		}
		found = true
		if len(list) > 0 {
			records = list
			break
		}
	}
	if !found {
		return nil, errors.New("payload has no products or items array")
	}

	raws := make([]listing.Raw, 0, len(records))
	for _, rec := range records {
		if m, ok := rec.(map[string]any); ok {
			raws = append(raws, listing.Raw(m))
		}
	}
	return raws, nil
}

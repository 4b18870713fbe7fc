package shopapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// response is the subset of an HTTP reply the tier inspects.
type response struct {
	StatusCode int
	Body       []byte
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// newBaseCollector configures a collector for JSON API calls: robots.txt is
// irrelevant, the same URL may be retried, cookies are only what we send,
// and error statuses reach OnResponse so they can be classified.
func newBaseCollector(userAgent string, timeout time.Duration, transport http.RoundTripper) *colly.Collector {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		colly.UserAgent(userAgent),
	)
	c.DisableCookies()
	c.SetRequestTimeout(timeout)
	c.WithTransport(transport)
	return c
}

// get issues one GET through a fresh clone of the base collector.
func (c *Client) get(ctx context.Context, target string, headers http.Header) (response, error) {
	var (
		result   response
		fetchErr error
	)
	collector := c.baseCollector.Clone()
	configureCollectorHooks(collector, headers, &result, &fetchErr)
	if err := runCollector(ctx, collector, target, &fetchErr); err != nil {
		return response{}, err
	}
	return result, nil
}

func configureCollectorHooks(hooks collectorHooks, headers http.Header, result *response, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = response{
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		*fetchErr = err
		if r != nil && r.StatusCode != 0 {
			*result = response{StatusCode: r.StatusCode, Body: append([]byte(nil), r.Body...)}
		}
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func copyHeaders(headers http.Header, r *colly.Request) {
	for key, values := range headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

// newHTTPTransport honours HTTP(S)_PROXY unless disableProxy is set.
func newHTTPTransport(disableProxy bool) *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
	if disableProxy {
		t.Proxy = nil
	}
	return t
}

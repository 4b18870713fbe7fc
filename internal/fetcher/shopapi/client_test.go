package shopapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/depop-feed/internal/acquire"
	"github.com/JakeFAU/depop-feed/internal/policy/retry"
	"github.com/JakeFAU/depop-feed/internal/progress"
)

const twoItems = `{"products":[
 {"title":"Denim Jacket","price":{"amount":40},"slug":"abc","pictures":["http://x/i.jpg"],"category":["Outerwear"]},
 {"title":"Baby Tee","price":{"price_string":"$12.00"},"slug":"def","pictures":[{"large":"http://x/l.jpg"}]}
]}`

type recordingEmitter struct {
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) { r.events = append(r.events, evt) }

func fastPolicy() *retry.ExponentialPolicy {
	return retry.NewExponential(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
}

func newTestClient(t *testing.T, baseURL string, emitter progress.Emitter) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: baseURL, Timeout: 2 * time.Second, DisableProxy: true}, fastPolicy(), zap.NewNop(), emitter)
	require.NoError(t, err)
	return c
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, fastPolicy(), nil, nil)
	require.Error(t, err)
	_, err = New(Config{BaseURL: "https://webapi.depop.com"}, nil, nil, nil)
	require.Error(t, err)
	_, err = New(Config{BaseURL: "https://webapi.depop.com", Endpoints: []Endpoint{}}, fastPolicy(), nil, nil)
	require.ErrorIs(t, err, ErrNoEndpoints)
}

func TestEndpointURL(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "https://webapi.depop.com/", nil)
	assert.Equal(t,
		"https://webapi.depop.com/api/v2/shop/shopy2z/products/?limit=200",
		c.EndpointURL(DefaultEndpoints[0], "shopy2z"))
	assert.Equal(t,
		"https://webapi.depop.com/api/v1/shop/shopy2z/products/?limit=200",
		c.EndpointURL(DefaultEndpoints[1], "shopy2z"))
}

func TestPrimaryBlockedLegacySucceeds(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/shop/shopy2z/products/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/api/v1/shop/shopy2z/products/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, twoItems)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	emitter := &recordingEmitter{}
	res := newTestClient(t, srv.URL, emitter).FetchListings(context.Background(), "shopy2z", "")

	require.Equal(t, acquire.StatusSuccess, res.Status)
	assert.True(t, res.Blocked)
	require.Len(t, res.Listings, 2)
	assert.Equal(t, "Denim Jacket", res.Listings[0].Title)
	assert.Equal(t, "$40", res.Listings[0].Price)
	assert.Equal(t, "http://x/l.jpg", res.Listings[1].Image)

	require.Len(t, emitter.events, 2)
	assert.Equal(t, "primary", emitter.events[0].Endpoint)
	assert.Equal(t, string(acquire.KindBlocked), emitter.events[0].Result)
	assert.Equal(t, progress.Status4xx, emitter.events[0].StatusClass)
	assert.Equal(t, "legacy", emitter.events[1].Endpoint)
	assert.Equal(t, 2, emitter.events[1].Count)
}

func TestRequestHeaders(t *testing.T) {
	t.Parallel()

	var captured atomic.Pointer[http.Request]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Store(r.Clone(context.Background()))
		fmt.Fprint(w, twoItems)
	}))
	defer srv.Close()

	res := newTestClient(t, srv.URL, nil).FetchListings(context.Background(), "shopy2z", "access_token=abc")
	require.Equal(t, acquire.StatusSuccess, res.Status)
	got := captured.Load()
	require.NotNil(t, got)

	assert.Equal(t, "200", got.URL.Query().Get("limit"))
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
	assert.Equal(t, "en-US,en;q=0.9", got.Header.Get("Accept-Language"))
	assert.Equal(t, DefaultUserAgent, got.Header.Get("User-Agent"))
	assert.Equal(t, "https://www.depop.com", got.Header.Get("Origin"))
	assert.Equal(t, "https://www.depop.com/shopy2z/", got.Header.Get("Referer"))
	assert.Equal(t, "access_token=abc", got.Header.Get("Cookie"))
}

func TestNoCookieHeaderWhenAnonymous(t *testing.T) {
	t.Parallel()

	var cookie atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie.Store(r.Header.Get("Cookie"))
		fmt.Fprint(w, twoItems)
	}))
	defer srv.Close()

	newTestClient(t, srv.URL, nil).FetchListings(context.Background(), "shopy2z", "")
	assert.Equal(t, "", cookie.Load())
}

func TestRetriesServerErrorsOnSameEndpoint(t *testing.T) {
	t.Parallel()

	var primary, legacy atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/shop/s/products/", func(w http.ResponseWriter, _ *http.Request) {
		if primary.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, twoItems)
	})
	mux.HandleFunc("/api/v1/shop/s/products/", func(w http.ResponseWriter, _ *http.Request) {
		legacy.Add(1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res := newTestClient(t, srv.URL, nil).FetchListings(context.Background(), "s", "")
	require.Equal(t, acquire.StatusSuccess, res.Status)
	assert.False(t, res.Blocked)
	assert.EqualValues(t, 3, primary.Load())
	assert.Zero(t, legacy.Load())
}

func TestThrottlingExhaustsBudgetThenAdvances(t *testing.T) {
	t.Parallel()

	var primary atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/shop/s/products/", func(w http.ResponseWriter, _ *http.Request) {
		primary.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/api/v1/shop/s/products/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"items":[{"title":"Belt","slug":"b","images":["http://x/b.jpg"]}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res := newTestClient(t, srv.URL, nil).FetchListings(context.Background(), "s", "")
	require.Equal(t, acquire.StatusSuccess, res.Status)
	assert.EqualValues(t, 3, primary.Load())
	require.Len(t, res.Listings, 1)
	assert.Equal(t, "accessories", string(res.Listings[0].Category))
}

func TestMalformedAndEmptyResponsesAdvance(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"non json":      `<html>blocked</html>`,
		"not an object": `[1,2,3]`,
		"no array":      `{"products":"nope"}`,
		"empty array":   `{"products":[],"items":[]}`,
		"no complete":   `{"products":[{"title":"No image","slug":"x"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				fmt.Fprint(w, body)
			}))
			defer srv.Close()

			res := newTestClient(t, srv.URL, nil).FetchListings(context.Background(), "s", "")
			assert.Equal(t, acquire.StatusEmpty, res.Status)
			assert.False(t, res.Blocked)
			assert.Empty(t, res.Listings)
			assert.EqualValues(t, 2, hits.Load(), "each endpoint tried once, never retried in place")

			var fe *acquire.FetchError
			require.True(t, errors.As(res.Err, &fe))
			assert.Equal(t, "legacy", fe.Endpoint)
		})
	}
}

func TestAllBlocked(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	res := newTestClient(t, srv.URL, nil).FetchListings(context.Background(), "s", "")
	assert.Equal(t, acquire.StatusBlocked, res.Status)
	assert.True(t, res.Blocked)
	assert.True(t, acquire.IsBlocked(res.Err))
}

func TestChallengePageCountsAsBlocked(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<!DOCTYPE html><html><head><title>Just a moment...</title></head></html>`)
	}))
	defer srv.Close()

	res := newTestClient(t, srv.URL, nil).FetchListings(context.Background(), "s", "")
	assert.Equal(t, acquire.StatusBlocked, res.Status)
	assert.True(t, res.Blocked)

	var fe *acquire.FetchError
	require.True(t, errors.As(res.Err, &fe))
	assert.Equal(t, acquire.KindBlocked, fe.Kind)
	assert.Equal(t, http.StatusOK, fe.StatusCode)
}

func TestTransportFailureAdvancesWithoutBlock(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	res := newTestClient(t, base, nil).FetchListings(context.Background(), "s", "")
	assert.Equal(t, acquire.StatusEmpty, res.Status)
	assert.False(t, res.Blocked)
	var fe *acquire.FetchError
	require.True(t, errors.As(res.Err, &fe))
	assert.Equal(t, acquire.KindTransient, fe.Kind)
}

func TestAllSoldGuardKeepsBatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"products":[
			{"slug":"a","pictures":["a.jpg"],"status":"sold"},
			{"slug":"b","pictures":["b.jpg"],"sold":true}]}`)
	}))
	defer srv.Close()

	res := newTestClient(t, srv.URL, nil).FetchListings(context.Background(), "s", "")
	require.Equal(t, acquire.StatusSuccess, res.Status)
	assert.Len(t, res.Listings, 2)
}

func TestClassifyTransportProxy403(t *testing.T) {
	t.Parallel()

	proxyErr := errors.New("proxyconnect tcp: 403 Forbidden")

	withProxy, err := New(Config{BaseURL: "https://webapi.depop.com"}, fastPolicy(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, acquire.KindBlocked, withProxy.classifyTransport(DefaultEndpoints[0], proxyErr).Kind)

	direct, err := New(Config{BaseURL: "https://webapi.depop.com", DisableProxy: true}, fastPolicy(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, acquire.KindTransient, direct.classifyTransport(DefaultEndpoints[0], proxyErr).Kind)
	assert.Equal(t, acquire.KindTransient,
		withProxy.classifyTransport(DefaultEndpoints[0], errors.New("connection refused")).Kind)
}

func TestCanceledContextStops(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, twoItems)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newTestClient(t, srv.URL, nil).FetchListings(ctx, "s", "")
	assert.NotEqual(t, acquire.StatusSuccess, res.Status)
}

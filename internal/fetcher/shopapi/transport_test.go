package shopapi

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback)   { s.onRequest = cb }
func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	var (
		result   response
		fetchErr error
	)
	hooks := &stubHooks{}
	configureCollectorHooks(hooks, http.Header{"Cookie": {"a=b"}, "Accept": {"application/json"}}, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	req := &colly.Request{Headers: &http.Header{"Accept": {"*/*"}}}
	hooks.onRequest(req)
	assert.Equal(t, "a=b", req.Headers.Get("Cookie"))
	assert.Equal(t, []string{"application/json"}, req.Headers.Values("Accept"))

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte(`{}`)})
	assert.Equal(t, response{StatusCode: http.StatusOK, Body: []byte(`{}`)}, result)

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("bad gateway"))
	assert.EqualError(t, fetchErr, "bad gateway")
	assert.Equal(t, http.StatusBadGateway, result.StatusCode)
}

func TestNewBaseCollector(t *testing.T) {
	t.Parallel()

	c := newBaseCollector("agent", time.Second, newHTTPTransport(true))
	assert.Equal(t, "agent", c.UserAgent)
	assert.True(t, c.AllowURLRevisit)
	assert.True(t, c.IgnoreRobotsTxt)
	assert.True(t, c.ParseHTTPErrorResponse)

	clone := c.Clone()
	assert.Equal(t, "agent", clone.UserAgent)
	assert.True(t, clone.ParseHTTPErrorResponse)
}

func TestNewHTTPTransportProxy(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, newHTTPTransport(false).Proxy)
	assert.Nil(t, newHTTPTransport(true).Proxy)
}

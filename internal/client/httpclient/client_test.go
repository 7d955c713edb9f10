package httpclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/permitpay/permitpay-go/internal/client/httpclient"
	"github.com/permitpay/permitpay-go/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitLogger("test")
}

func fastRetry(maxRetries int) *httpclient.RetryConfig {
	return &httpclient.RetryConfig{
		MaxRetries:           maxRetries,
		InitialInterval:      time.Millisecond,
		MaxInterval:          5 * time.Millisecond,
		Multiplier:           2.0,
		MaxElapsedTime:       time.Second,
		RetryableStatusCodes: []int{408, 429, 500, 502, 503, 504},
	}
}

func TestRetryOnRetryableStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := httpclient.New(
		httpclient.WithBaseURL(server.URL),
		httpclient.WithRetryConfig(fastRetry(3)),
	)

	resp, err := client.Get(context.Background(), "/thing")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"bad input"}`))
	}))
	defer server.Close()

	client := httpclient.New(
		httpclient.WithBaseURL(server.URL),
		httpclient.WithRetryConfig(fastRetry(3)),
	)

	_, err := client.Get(context.Background(), "/thing")
	require.Error(t, err)

	var httpErr *httpclient.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "bad input")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDefaultAndRequestHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "key-1", r.Header.Get("X-API-Key"))
		assert.Equal(t, "req-1", r.Header.Get("X-Request-Id"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := httpclient.New(
		httpclient.WithBaseURL(server.URL),
		httpclient.WithDefaultHeader("X-API-Key", "key-1"),
	)

	resp, err := client.Get(context.Background(), "/prices",
		httpclient.WithHeader("X-Request-Id", "req-1"),
		httpclient.WithQueryParam("vs_currencies", "usd"),
	)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestProcessJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"name":"permitpay"}`))
	}))
	defer server.Close()

	client := httpclient.New(httpclient.WithBaseURL(server.URL))

	resp, err := client.Get(context.Background(), "/info")
	require.NoError(t, err)

	var body struct {
		Name string `json:"name"`
	}
	require.NoError(t, client.ProcessJSONResponse(resp, &body))
	assert.Equal(t, "permitpay", body.Name)
}

func TestPostMarshalsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := httpclient.New(httpclient.WithBaseURL(server.URL))

	resp, err := client.Post(context.Background(), "/submit", map[string]string{"k": "v"})
	require.NoError(t, err)
	resp.Body.Close()
}

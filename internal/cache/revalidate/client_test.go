package revalidate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/BVSokolov/udemy-prostore/pkg/errors"
	"github.com/BVSokolov/udemy-prostore/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	cfg.Timeout = time.Second
	breakerCfg := httpclient.DefaultCircuitBreakerConfig("storefront-revalidate")
	breakerCfg.MinRequests = 2
	cb := httpclient.NewCircuitBreakerClient(httpclient.New(cfg), breakerCfg, httpclient.NewBreakerMetrics(prometheus.NewRegistry()), testLogger())
	return New(url, "s3cret", cb, testLogger())
}

func TestInvalidate_PostsPath(t *testing.T) {
	var got request
	var secret, contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		secret = r.Header.Get(SecretHeader)
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"revalidated":true}`))
	}))
	defer srv.Close()

	err := testClient(t, srv.URL).Invalidate(context.Background(), "/product/shirt")

	require.NoError(t, err)
	assert.Equal(t, "/product/shirt", got.Path)
	assert.Equal(t, "s3cret", secret)
	assert.Equal(t, "application/json", contentType)
}

func TestInvalidate_ClientErrorIsParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"bad secret"}}`))
	}))
	defer srv.Close()

	err := testClient(t, srv.URL).Invalidate(context.Background(), "/product/shirt")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestInvalidate_ServerErrorsOpenBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL)
	for i := 0; i < 2; i++ {
		require.Error(t, client.Invalidate(context.Background(), "/product/shirt"))
	}

	err := client.Invalidate(context.Background(), "/product/shirt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpclient.ErrCircuitOpen))
	assert.Equal(t, int32(2), calls.Load())
}

func TestNew_DisabledWithoutURL(t *testing.T) {
	client := New("", "", nil, testLogger())

	assert.Nil(t, client)
	assert.NoError(t, client.Invalidate(context.Background(), "/product/shirt"))
}

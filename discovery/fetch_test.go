package discovery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_SetsUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	body, err := NewFetcher(FetcherConfig{}).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, DefaultUserAgent, gotUA)
}

func TestFetcher_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	_, err := NewFetcher(FetcherConfig{}).Fetch(context.Background(), server.URL)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusGone, httpErr.StatusCode)
}

func TestFetcher_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	f := NewFetcher(FetcherConfig{Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := f.Fetch(context.Background(), server.URL)

	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetcher_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer server.Close()

	body, err := NewFetcher(FetcherConfig{MaxBodyBytes: 4}).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(body))
}

func TestFetcher_HostInterval(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := NewFetcher(FetcherConfig{HostInterval: 100 * time.Millisecond})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(ctx, server.URL)
		require.NoError(t, err)
	}

	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
}

func TestFetcher_CancelledWhileWaiting(t *testing.T) {
	f := NewFetcher(FetcherConfig{HostInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	// The first request spends the burst token; the server is never reached
	// because the URL is unroutable, which is fine for this test.
	_, _ = f.Fetch(ctx, "http://127.0.0.1:1/")
	cancel()

	_, err := f.Fetch(ctx, "http://127.0.0.1:1/")
	assert.Error(t, err)
}

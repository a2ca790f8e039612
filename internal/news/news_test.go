package news

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nelsonwm45/senti-mochi-go/internal/config"
)

// TestClientFetch verifies the upstream request shape and the body relay.
func TestClientFetch(t *testing.T) {
	var gotPath, gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.Header.Get("X-Api-Key")
		fmt.Fprint(w, `{"status":"ok","articles":[{"title":"Fed holds rates"}]}`)
	}))
	defer srv.Close()

	client := NewClient(config.NewsConfig{BaseURL: srv.URL, APIKey: "news-secret"})

	body, status, err := client.Fetch(context.Background(), "everything", url.Values{"q": {"AAPL"}})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "/everything", gotPath)
	require.Equal(t, "AAPL", gotQuery)
	require.Equal(t, "news-secret", gotKey)
	require.JSONEq(t, `{"status":"ok","articles":[{"title":"Fed holds rates"}]}`, string(body))
}

// TestClientFetch_RelaysUpstreamStatus verifies error statuses pass through
// with their bodies instead of becoming errors.
func TestClientFetch_RelaysUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"status":"error","code":"rateLimited"}`)
	}))
	defer srv.Close()

	client := NewClient(config.NewsConfig{BaseURL: srv.URL})

	body, status, err := client.Fetch(context.Background(), "top-headlines", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Contains(t, string(body), "rateLimited")
}

// TestClientFetch_RejectsUnknownEndpoint verifies the relay only touches the
// closed endpoint set.
func TestClientFetch_RejectsUnknownEndpoint(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewClient(config.NewsConfig{BaseURL: srv.URL})

	_, _, err := client.Fetch(context.Background(), "sources", nil)
	require.Error(t, err)
	require.False(t, called)
}

// TestClientAllowed verifies the endpoint allowlist.
func TestClientAllowed(t *testing.T) {
	client := NewClient(config.NewsConfig{})
	require.True(t, client.Allowed("top-headlines"))
	require.True(t, client.Allowed("everything"))
	require.False(t, client.Allowed("sources"))
	require.False(t, client.Allowed(""))
}

package newsfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	appErrors "stockpulse-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_ParsesArticles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ACME", r.URL.Query().Get("subject"))
		assert.Equal(t, "2026-08-01", r.URL.Query().Get("start"))
		w.Write([]byte(`[{"title":"earnings beat","body":"details"},{"title":"new ceo"}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	articles, err := client.Fetch(context.Background(), "ACME", "2026-08-01", "2026-08-30")

	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "earnings beat", articles[0].Title)
	assert.Equal(t, "details", articles[0].Body)
	assert.Empty(t, articles[1].Body)
}

func TestFetch_EmptyEndpointReturnsNothing(t *testing.T) {
	client := NewClient("", nil)
	articles, err := client.Fetch(context.Background(), "ACME", "", "")
	require.NoError(t, err)
	assert.Empty(t, articles)
}

func TestFetch_ServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	_, err := client.Fetch(context.Background(), "ACME", "", "")
	assert.True(t, appErrors.IsUnavailable(err))
}

func TestFetch_MalformedBodyIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	_, err := client.Fetch(context.Background(), "ACME", "", "")
	assert.True(t, appErrors.IsUnavailable(err))
}

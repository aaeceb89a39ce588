package clicks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveClick(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/api/v1/clicks/clk_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "clk_1",
			"link_id": "lnk_1",
			"workspace_id": "ws_1",
			"visitor_id": "vis_1"
		}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "key_1"})

	click, err := c.ResolveClick(context.Background(), "clk_1")
	require.NoError(t, err)
	assert.Equal(t, "clk_1", click.ID)
	assert.Equal(t, "lnk_1", click.LinkID)
	assert.Equal(t, "ws_1", click.WorkspaceID)
	assert.Equal(t, "Bearer key_1", gotAuth)
}

func TestResolveClickNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	_, err := c.ResolveClick(context.Background(), "clk_missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/links/lnk_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "lnk_1",
			"workspace_id": "ws_1",
			"destination_url": "https://example.com/booked"
		}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	link, err := c.ResolveLink(context.Background(), "lnk_1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/booked", link.DestinationURL)
	assert.Equal(t, "ws_1", link.WorkspaceID)
}

func TestResolveLinkServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	_, err := c.ResolveLink(context.Background(), "lnk_1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

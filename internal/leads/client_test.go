package leads

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadlink/conversions/internal/domain"
)

func TestCreateLead(t *testing.T) {
	var got CreateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/leads", r.URL.Path)
		assert.Equal(t, "Bearer key_1", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "key_1"})

	err := c.Create(context.Background(), CreateRequest{
		ClickID:     "clk_1",
		LinkID:      "lnk_1",
		WorkspaceID: "ws_1",
		Provider:    "calcom",
		Lead:        domain.Lead{Email: "ada@example.com", ExternalID: "bk_1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "clk_1", got.ClickID)
	assert.Equal(t, "calcom", got.Provider)
	assert.Equal(t, "ada@example.com", got.Lead.Email)
}

func TestCreateLeadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "duplicate pending migration", http.StatusConflict)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	err := c.Create(context.Background(), CreateRequest{WorkspaceID: "ws_1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}

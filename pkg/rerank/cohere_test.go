package rerank_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorebook/lorebook/internal/errs"
	"github.com/lorebook/lorebook/internal/models"
	"github.com/lorebook/lorebook/pkg/rerank"
)

func candidates() []models.RetrievedDocument {
	return []models.RetrievedDocument{
		{ID: "a", Content: "rayleigh scattering"},
		{ID: "b", Content: "ocean reflection"},
		{ID: "c", Content: "sunset colors"},
	}
}

func TestRerank_OrdersByRelevance(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/rerank", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"index":2,"relevance_score":0.98},{"index":0,"relevance_score":0.61}]}`))
	}))
	defer srv.Close()

	client, err := rerank.NewWithConfig(rerank.ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
	}, nil)
	require.NoError(t, err)

	docs, err := client.Rerank(context.Background(), "why is the sky blue", candidates(), 2)
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "c", docs[0].ID)
	assert.Equal(t, "a", docs[1].ID)
	assert.EqualValues(t, 2, gotReq["top_n"])
}

func TestRerank_EmptyCandidates(t *testing.T) {
	client, err := rerank.NewWithConfig(rerank.ClientConfig{APIKey: "test-key"}, nil)
	require.NoError(t, err)

	docs, err := client.Rerank(context.Background(), "query", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRerank_UnauthorizedIsCredentialsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := rerank.NewWithConfig(rerank.ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "bad-key",
	}, nil)
	require.NoError(t, err)

	_, err = client.Rerank(context.Background(), "query", candidates(), 2)
	assert.ErrorIs(t, err, errs.ErrCredentials)
}

func TestRerank_ServerErrorIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := rerank.NewWithConfig(rerank.ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
	}, nil)
	require.NoError(t, err)

	_, err = client.Rerank(context.Background(), "query", candidates(), 2)
	assert.ErrorIs(t, err, errs.ErrProvider)
}

func TestRerank_OutOfRangeIndexRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"index":9,"relevance_score":0.9}]}`))
	}))
	defer srv.Close()

	client, err := rerank.NewWithConfig(rerank.ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
	}, nil)
	require.NoError(t, err)

	_, err = client.Rerank(context.Background(), "query", candidates(), 2)
	assert.Error(t, err)
}

func TestNewWithConfig_MissingKey(t *testing.T) {
	_, err := rerank.NewWithConfig(rerank.ClientConfig{}, nil)
	assert.ErrorIs(t, err, errs.ErrCredentials)
}

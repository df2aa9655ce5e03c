package loader_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorebook/lorebook/internal/models"
	"github.com/lorebook/lorebook/pkg/loader"
)

func TestExtract_Note(t *testing.T) {
	l := loader.NewWithConfig(loader.LoaderConfig{}, nil)

	doc, err := l.Extract(context.Background(), models.KnowledgeItem{
		Type:    models.TypeNote,
		Content: "The sky is blue because of Rayleigh scattering.",
	})

	require.NoError(t, err)
	assert.Equal(t, "The sky is blue because of Rayleigh scattering.", doc.Text)
}

func TestExtract_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Sky Facts</title></head><body>
			<nav>ignore this Privacy Policy</nav>
			<main>Rayleigh   scattering explains the blue sky.</main>
		</body></html>`))
	}))
	defer srv.Close()

	l := loader.NewWithConfig(loader.LoaderConfig{RateLimit: 100}, nil)

	doc, err := l.Extract(context.Background(), models.KnowledgeItem{
		Type:    models.TypeURL,
		Content: srv.URL,
	})

	require.NoError(t, err)
	assert.Equal(t, "Rayleigh scattering explains the blue sky.", doc.Text)
	assert.Equal(t, "Sky Facts", doc.Metadata["pageTitle"])
	assert.Equal(t, srv.URL, doc.Metadata["sourceUrl"])
}

func TestExtract_URLFallsBackToBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>plain body text only</body></html>`))
	}))
	defer srv.Close()

	l := loader.NewWithConfig(loader.LoaderConfig{RateLimit: 100}, nil)

	doc, err := l.Extract(context.Background(), models.KnowledgeItem{
		Type:    models.TypeArticle,
		Content: srv.URL,
	})

	require.NoError(t, err)
	assert.Equal(t, "plain body text only", doc.Text)
}

func TestExtract_URLErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	l := loader.NewWithConfig(loader.LoaderConfig{RateLimit: 100}, nil)

	_, err := l.Extract(context.Background(), models.KnowledgeItem{
		Type:    models.TypeURL,
		Content: srv.URL,
	})

	assert.Error(t, err)
}

func TestExtract_UnsupportedType(t *testing.T) {
	l := loader.NewWithConfig(loader.LoaderConfig{}, nil)

	_, err := l.Extract(context.Background(), models.KnowledgeItem{Type: "spreadsheet"})
	assert.Error(t, err)
}

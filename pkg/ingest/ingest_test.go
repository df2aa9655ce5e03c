package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorebook/lorebook/internal/errs"
	"github.com/lorebook/lorebook/internal/models"
	"github.com/lorebook/lorebook/internal/types"
	"github.com/lorebook/lorebook/pkg/ingest"
	"github.com/lorebook/lorebook/pkg/splitter"
)

type stubLoader struct {
	texts map[string]string // knowledge item ID -> extracted text
	err   error
}

func (l *stubLoader) Extract(ctx context.Context, item models.KnowledgeItem) (models.ExtractedDocument, error) {
	if l.err != nil {
		return models.ExtractedDocument{}, l.err
	}
	if l.texts != nil {
		if text, ok := l.texts[item.ID]; ok {
			return models.ExtractedDocument{Text: text, Metadata: map[string]string{}}, nil
		}
	}
	return models.ExtractedDocument{Text: item.Content, Metadata: map[string]string{}}, nil
}

type stubEmbedder struct {
	calls int
	fail  bool
}

func (e *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.fail {
		return nil, fmt.Errorf("embed: %w", errs.ErrProvider)
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i])), 0.5}
	}
	return vectors, nil
}

func (e *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// memoryIndex keeps upserted entries keyed by id, mimicking the upsert
// semantics the pipeline relies on.
type memoryIndex struct {
	entries map[string]string // id -> text
	upserts int
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{entries: map[string]string{}}
}

func (m *memoryIndex) Upsert(ctx context.Context, ids []string, vectors [][]float32, texts []string, metadatas []map[string]string) error {
	m.upserts++
	for i, id := range ids {
		m.entries[id] = texts[i]
	}
	return nil
}

func (m *memoryIndex) Query(ctx context.Context, vector []float32, k int, filter types.Filter) ([]models.RetrievedDocument, error) {
	return nil, nil
}

func (m *memoryIndex) DeleteByFilter(ctx context.Context, filter types.Filter) error {
	return nil
}

type stubStore struct {
	items    []models.KnowledgeItem
	embedded []string
}

func (s *stubStore) KnowledgeItems(notebookID string) ([]models.KnowledgeItem, error) {
	return s.items, nil
}

func (s *stubStore) MarkEmbedded(notebookID, knowledgeID string) error {
	s.embedded = append(s.embedded, knowledgeID)
	return nil
}

func newEngine(loader *stubLoader, embedder *stubEmbedder, index *memoryIndex, store *stubStore, batchSize int) *ingest.Engine {
	split := splitter.NewWithConfig(splitter.SplitterConfig{ChunkSize: 1000, ChunkOverlap: 200})
	return ingest.New(ingest.EngineConfig{BatchSize: batchSize}, loader, split, embedder, index, store, nil)
}

func TestIngest_SingleShortDocument(t *testing.T) {
	embedder := &stubEmbedder{}
	index := newMemoryIndex()
	store := &stubStore{}
	engine := newEngine(&stubLoader{}, embedder, index, store, 100)

	item := models.KnowledgeItem{
		ID:      "k1",
		Type:    models.TypeNote,
		Title:   "sky",
		Content: "The sky is blue because of Rayleigh scattering.",
	}

	result, err := engine.Ingest(context.Background(), "nb1", "k1", item)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Chunks)
	assert.True(t, result.Embedded)
	assert.Equal(t, 1, embedder.calls)
	assert.Equal(t, 1, index.upserts)
	assert.Contains(t, index.entries, "nb1_k1_0")
	assert.Equal(t, []string{"k1"}, store.embedded)
}

func TestIngest_Idempotent(t *testing.T) {
	embedder := &stubEmbedder{}
	index := newMemoryIndex()
	store := &stubStore{}
	engine := newEngine(&stubLoader{}, embedder, index, store, 100)

	item := models.KnowledgeItem{
		ID:      "k1",
		Type:    models.TypeNote,
		Content: strings.Repeat("All work and no play makes Jack a dull boy. ", 100),
	}

	_, err := engine.Ingest(context.Background(), "nb1", "k1", item)
	require.NoError(t, err)
	firstCount := len(index.entries)

	_, err = engine.Ingest(context.Background(), "nb1", "k1", item)
	require.NoError(t, err)

	// Same deterministic ids, so the second run overwrites, not doubles.
	assert.Equal(t, firstCount, len(index.entries))
}

func TestIngest_BatchesAndGlobalChunkIndex(t *testing.T) {
	embedder := &stubEmbedder{}
	index := newMemoryIndex()
	store := &stubStore{}
	engine := newEngine(&stubLoader{}, embedder, index, store, 2)

	// 5 chunks at size 1000 / overlap 200 needs 3400+ runes.
	item := models.KnowledgeItem{
		ID:      "k1",
		Type:    models.TypeNote,
		Content: strings.Repeat("x", 4000),
	}

	result, err := engine.Ingest(context.Background(), "nb1", "k1", item)
	require.NoError(t, err)

	require.Equal(t, 5, result.Chunks)
	assert.Equal(t, 3, embedder.calls) // ceil(5/2) batches
	for i := 0; i < 5; i++ {
		assert.Contains(t, index.entries, fmt.Sprintf("nb1_k1_%d", i))
	}
}

func TestIngest_BlankDocumentFails(t *testing.T) {
	store := &stubStore{}
	engine := newEngine(&stubLoader{}, &stubEmbedder{}, newMemoryIndex(), store, 100)

	item := models.KnowledgeItem{ID: "k1", Type: models.TypeNote, Content: "   \n "}

	_, err := engine.Ingest(context.Background(), "nb1", "k1", item)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text content")
	assert.Empty(t, store.embedded)
}

func TestIngest_EmbedFailureLeavesItemUnmarked(t *testing.T) {
	store := &stubStore{}
	engine := newEngine(&stubLoader{}, &stubEmbedder{fail: true}, newMemoryIndex(), store, 100)

	item := models.KnowledgeItem{ID: "k1", Type: models.TypeNote, Content: "some text"}

	_, err := engine.Ingest(context.Background(), "nb1", "k1", item)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrProvider)
	assert.Empty(t, store.embedded)
}

func TestIngest_MissingIDs(t *testing.T) {
	engine := newEngine(&stubLoader{}, &stubEmbedder{}, newMemoryIndex(), &stubStore{}, 100)

	_, err := engine.Ingest(context.Background(), "", "k1", models.KnowledgeItem{})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestReingestNotebook_IsolatesFailures(t *testing.T) {
	store := &stubStore{
		items: []models.KnowledgeItem{
			{ID: "good", Type: models.TypeNote, Content: "useful text"},
			{ID: "empty", Type: models.TypeNote, Content: ""},
			{ID: "also-good", Type: models.TypeNote, Content: "more useful text"},
		},
	}
	engine := newEngine(&stubLoader{}, &stubEmbedder{}, newMemoryIndex(), store, 100)

	results, err := engine.ReingestNotebook(context.Background(), "nb1")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.True(t, results[0].Embedded)

	require.Error(t, results[1].Err)
	assert.Equal(t, "empty", results[1].KnowledgeID)

	// The failing sibling did not block the rest.
	assert.NoError(t, results[2].Err)
	assert.True(t, results[2].Embedded)
	assert.ElementsMatch(t, []string{"good", "also-good"}, store.embedded)
}

func TestReingestNotebook_LoaderError(t *testing.T) {
	boom := errors.New("extraction broke")
	store := &stubStore{items: []models.KnowledgeItem{{ID: "k1", Type: models.TypePDF, Content: "/tmp/x.pdf"}}}
	engine := newEngine(&stubLoader{err: boom}, &stubEmbedder{}, newMemoryIndex(), store, 100)

	results, err := engine.ReingestNotebook(context.Background(), "nb1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, boom)
}

package notebook_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorebook/lorebook/internal/errs"
	"github.com/lorebook/lorebook/internal/models"
	"github.com/lorebook/lorebook/internal/types"
	"github.com/lorebook/lorebook/pkg/notebook"
)

// fakeIndex records deletions so the cascade behavior can be asserted.
type fakeIndex struct {
	deleted []types.Filter
}

func (f *fakeIndex) Upsert(ctx context.Context, ids []string, vectors [][]float32, texts []string, metadatas []map[string]string) error {
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, vector []float32, k int, filter types.Filter) ([]models.RetrievedDocument, error) {
	return nil, nil
}

func (f *fakeIndex) DeleteByFilter(ctx context.Context, filter types.Filter) error {
	f.deleted = append(f.deleted, filter)
	return nil
}

func newService(t *testing.T) (*notebook.Service, *fakeIndex) {
	t.Helper()
	index := &fakeIndex{}
	storage := notebook.NewStorage(t.TempDir())
	return notebook.NewService(storage, index, nil), index
}

func TestCreateAndGetNotebook(t *testing.T) {
	svc, _ := newService(t)

	created, err := svc.CreateNotebook("physics", "optics notes")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := svc.GetNotebook(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "physics", got.Name)
	assert.Equal(t, "optics notes", got.Description)
	assert.Empty(t, got.KnowledgeItems)
}

func TestGetNotebook_NotFound(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.GetNotebook("missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUpdateNotebook(t *testing.T) {
	svc, _ := newService(t)
	nb, err := svc.CreateNotebook("physics", "optics notes")
	require.NoError(t, err)

	updated, err := svc.UpdateNotebook(nb.ID, "optics", "lens design")
	require.NoError(t, err)
	assert.Equal(t, "optics", updated.Name)
	assert.Equal(t, "lens design", updated.Description)

	// Empty name keeps the current one.
	updated, err = svc.UpdateNotebook(nb.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, "optics", updated.Name)
	assert.Empty(t, updated.Description)

	_, err = svc.UpdateNotebook("missing", "x", "")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCreateNotebook_RequiresName(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.CreateNotebook("", "")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestAddKnowledgeItem(t *testing.T) {
	svc, _ := newService(t)
	nb, err := svc.CreateNotebook("physics", "")
	require.NoError(t, err)

	item, err := svc.AddKnowledgeItem(nb.ID, notebook.AddKnowledgeInput{
		Type:    models.TypeNote,
		Title:   "sky",
		Content: "The sky is blue because of Rayleigh scattering.",
	})
	require.NoError(t, err)
	assert.False(t, item.Embedded)
	assert.Equal(t, nb.ID, item.NotebookID)

	items, err := svc.KnowledgeItems(nb.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, item.ID, items[0].ID)
}

func TestAddKnowledgeItem_InvalidType(t *testing.T) {
	svc, _ := newService(t)
	nb, err := svc.CreateNotebook("physics", "")
	require.NoError(t, err)

	_, err = svc.AddKnowledgeItem(nb.ID, notebook.AddKnowledgeInput{Type: "spreadsheet"})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestMarkEmbedded(t *testing.T) {
	svc, _ := newService(t)
	nb, err := svc.CreateNotebook("physics", "")
	require.NoError(t, err)

	item, err := svc.AddKnowledgeItem(nb.ID, notebook.AddKnowledgeInput{
		Type:    models.TypeNote,
		Content: "text",
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkEmbedded(nb.ID, item.ID))

	got, err := svc.GetKnowledgeItem(nb.ID, item.ID)
	require.NoError(t, err)
	assert.True(t, got.Embedded)
}

func TestDeleteKnowledgeItem_CascadesToVectorsAndFile(t *testing.T) {
	dir := t.TempDir()
	index := &fakeIndex{}
	svc := notebook.NewService(notebook.NewStorage(dir), index, nil)

	nb, err := svc.CreateNotebook("physics", "")
	require.NoError(t, err)

	pdfPath := filepath.Join(t.TempDir(), "paper.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o644))

	item, err := svc.AddKnowledgeItem(nb.ID, notebook.AddKnowledgeInput{
		Type:     models.TypePDF,
		Title:    "paper",
		FilePath: pdfPath,
	})
	require.NoError(t, err)
	require.FileExists(t, item.Content)

	require.NoError(t, svc.DeleteKnowledgeItem(context.Background(), nb.ID, item.ID))

	// Vectors for exactly this item were deleted.
	require.Len(t, index.deleted, 1)
	assert.Equal(t, types.Filter{NotebookID: nb.ID, KnowledgeID: item.ID}, index.deleted[0])

	// The copied file is gone and the item no longer listed.
	assert.NoFileExists(t, item.Content)
	items, err := svc.KnowledgeItems(nb.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDeleteNotebook_CascadesToVectors(t *testing.T) {
	svc, index := newService(t)
	nb, err := svc.CreateNotebook("physics", "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteNotebook(context.Background(), nb.ID))

	require.Len(t, index.deleted, 1)
	assert.Equal(t, types.Filter{NotebookID: nb.ID}, index.deleted[0])

	_, err = svc.GetNotebook(nb.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestChatTranscript(t *testing.T) {
	svc, _ := newService(t)
	nb, err := svc.CreateNotebook("physics", "")
	require.NoError(t, err)

	_, err = svc.AppendChatMessage(nb.ID, models.RoleUser, "why is the sky blue")
	require.NoError(t, err)
	_, err = svc.AppendChatMessage(nb.ID, models.RoleAssistant, "Rayleigh scattering.")
	require.NoError(t, err)

	history, err := svc.ChatHistory(nb.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, models.RoleAssistant, history[1].Role)

	require.NoError(t, svc.ClearChatHistory(nb.ID))
	history, err = svc.ChatHistory(nb.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAppendChatMessage_RejectsUnknownRole(t *testing.T) {
	svc, _ := newService(t)
	nb, err := svc.CreateNotebook("physics", "")
	require.NoError(t, err)

	_, err = svc.AppendChatMessage(nb.ID, "system", "nope")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestListNotebooks(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.CreateNotebook("a", "")
	require.NoError(t, err)
	_, err = svc.CreateNotebook("b", "")
	require.NoError(t, err)

	notebooks, err := svc.ListNotebooks()
	require.NoError(t, err)
	assert.Len(t, notebooks, 2)
}

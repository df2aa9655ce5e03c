package notebook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lorebook/lorebook/internal/errs"
	"github.com/lorebook/lorebook/internal/models"
	"github.com/lorebook/lorebook/internal/types"
)

// Service manages notebooks and their knowledge items. Mutations write the
// notebook's JSON file; deletions also remove the corresponding vectors so
// the index never references a dead item.
type Service struct {
	storage *Storage
	index   types.VectorIndex
	logger  *slog.Logger
}

func NewService(storage *Storage, index types.VectorIndex, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		storage: storage,
		index:   index,
		logger:  logger,
	}
}

// AddKnowledgeInput describes a knowledge item to create. FilePath is only
// consulted for PDFs and points at the file to copy into the notebook's
// files directory.
type AddKnowledgeInput struct {
	Type     models.KnowledgeItemType
	Title    string
	Content  string
	FilePath string
	Metadata map[string]string
}

func (s *Service) CreateNotebook(name, description string) (*models.Notebook, error) {
	if name == "" {
		return nil, fmt.Errorf("notebook name is required: %w", errs.ErrValidation)
	}
	if err := s.storage.ensureDirectories(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	notebook := &models.Notebook{
		ID:             uuid.NewString(),
		Name:           name,
		Description:    description,
		KnowledgeItems: []models.KnowledgeItem{},
		ChatHistory:    []models.ChatMessage{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.storage.writeJSON(s.storage.notebookPath(notebook.ID), notebook); err != nil {
		return nil, fmt.Errorf("failed to create notebook: %w", err)
	}

	s.logger.Debug("created notebook", "id", notebook.ID, "name", name)
	return notebook, nil
}

func (s *Service) GetNotebook(notebookID string) (*models.Notebook, error) {
	if notebookID == "" {
		return nil, fmt.Errorf("notebook ID is required: %w", errs.ErrValidation)
	}

	var notebook models.Notebook
	if err := s.storage.readJSON(s.storage.notebookPath(notebookID), &notebook); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("notebook %s: %w", notebookID, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read notebook %s: %w", notebookID, err)
	}
	return &notebook, nil
}

// UpdateNotebook renames the notebook or replaces its description. Empty
// name keeps the current one; description is always overwritten.
func (s *Service) UpdateNotebook(notebookID, name, description string) (*models.Notebook, error) {
	notebook, err := s.GetNotebook(notebookID)
	if err != nil {
		return nil, err
	}

	if name != "" {
		notebook.Name = name
	}
	notebook.Description = description
	notebook.UpdatedAt = time.Now().UTC()

	if err := s.storage.writeJSON(s.storage.notebookPath(notebookID), notebook); err != nil {
		return nil, fmt.Errorf("failed to update notebook: %w", err)
	}

	s.logger.Debug("updated notebook", "id", notebookID)
	return notebook, nil
}

func (s *Service) ListNotebooks() ([]models.Notebook, error) {
	ids, err := s.storage.listNotebookIDs()
	if err != nil {
		return nil, err
	}

	notebooks := make([]models.Notebook, 0, len(ids))
	for _, id := range ids {
		notebook, err := s.GetNotebook(id)
		if err != nil {
			s.logger.Warn("skipping unreadable notebook", "id", id, "error", err)
			continue
		}
		notebooks = append(notebooks, *notebook)
	}
	return notebooks, nil
}

// DeleteNotebook removes the notebook's JSON record, its uploaded files,
// and every vector indexed under it.
func (s *Service) DeleteNotebook(ctx context.Context, notebookID string) error {
	if _, err := s.GetNotebook(notebookID); err != nil {
		return err
	}

	if err := s.index.DeleteByFilter(ctx, types.Filter{NotebookID: notebookID}); err != nil {
		return fmt.Errorf("failed to delete notebook vectors: %w", err)
	}

	if err := os.RemoveAll(s.storage.notebookFilesDir(notebookID)); err != nil {
		return fmt.Errorf("failed to delete notebook files: %w", err)
	}

	if err := s.storage.deleteFile(s.storage.notebookPath(notebookID)); err != nil {
		return fmt.Errorf("failed to delete notebook record: %w", err)
	}

	s.logger.Debug("deleted notebook", "id", notebookID)
	return nil
}

func (s *Service) KnowledgeItems(notebookID string) ([]models.KnowledgeItem, error) {
	notebook, err := s.GetNotebook(notebookID)
	if err != nil {
		return nil, err
	}
	return notebook.KnowledgeItems, nil
}

func (s *Service) GetKnowledgeItem(notebookID, knowledgeID string) (*models.KnowledgeItem, error) {
	items, err := s.KnowledgeItems(notebookID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ID == knowledgeID {
			return &items[i], nil
		}
	}
	return nil, fmt.Errorf("knowledge item %s: %w", knowledgeID, errs.ErrNotFound)
}

func (s *Service) AddKnowledgeItem(notebookID string, input AddKnowledgeInput) (*models.KnowledgeItem, error) {
	if !input.Type.Valid() {
		return nil, fmt.Errorf("knowledge item type %q: %w", input.Type, errs.ErrValidation)
	}

	notebook, err := s.GetNotebook(notebookID)
	if err != nil {
		return nil, err
	}

	item := models.KnowledgeItem{
		ID:         uuid.NewString(),
		NotebookID: notebookID,
		Type:       input.Type,
		Title:      input.Title,
		Content:    input.Content,
		Metadata:   input.Metadata,
		Embedded:   false,
		CreatedAt:  time.Now().UTC(),
	}

	if input.Type == models.TypePDF {
		if input.FilePath == "" {
			return nil, fmt.Errorf("PDF items require a file path: %w", errs.ErrValidation)
		}
		destPath, err := s.copyUpload(notebookID, input.FilePath)
		if err != nil {
			return nil, err
		}
		item.Content = destPath
	}

	notebook.KnowledgeItems = append(notebook.KnowledgeItems, item)
	notebook.UpdatedAt = time.Now().UTC()

	if err := s.storage.writeJSON(s.storage.notebookPath(notebookID), notebook); err != nil {
		return nil, fmt.Errorf("failed to add knowledge item: %w", err)
	}

	s.logger.Debug("added knowledge item", "notebook_id", notebookID, "id", item.ID, "type", item.Type)
	return &item, nil
}

// MarkEmbedded flips the item's embedded flag after successful indexing.
func (s *Service) MarkEmbedded(notebookID, knowledgeID string) error {
	notebook, err := s.GetNotebook(notebookID)
	if err != nil {
		return err
	}

	for i := range notebook.KnowledgeItems {
		if notebook.KnowledgeItems[i].ID != knowledgeID {
			continue
		}
		notebook.KnowledgeItems[i].Embedded = true
		notebook.UpdatedAt = time.Now().UTC()
		return s.storage.writeJSON(s.storage.notebookPath(notebookID), notebook)
	}

	return fmt.Errorf("knowledge item %s: %w", knowledgeID, errs.ErrNotFound)
}

// DeleteKnowledgeItem removes the item from the notebook, its vectors from
// the index, and its backing file when the item is a PDF.
func (s *Service) DeleteKnowledgeItem(ctx context.Context, notebookID, knowledgeID string) error {
	notebook, err := s.GetNotebook(notebookID)
	if err != nil {
		return err
	}

	index := -1
	for i := range notebook.KnowledgeItems {
		if notebook.KnowledgeItems[i].ID == knowledgeID {
			index = i
			break
		}
	}
	if index == -1 {
		return fmt.Errorf("knowledge item %s: %w", knowledgeID, errs.ErrNotFound)
	}

	item := notebook.KnowledgeItems[index]

	if err := s.index.DeleteByFilter(ctx, types.Filter{NotebookID: notebookID, KnowledgeID: knowledgeID}); err != nil {
		return fmt.Errorf("failed to delete item vectors: %w", err)
	}

	if item.Type == models.TypePDF && item.Content != "" {
		if err := s.storage.deleteFile(item.Content); err != nil {
			s.logger.Warn("failed to delete backing file", "path", item.Content, "error", err)
		}
	}

	notebook.KnowledgeItems = append(notebook.KnowledgeItems[:index], notebook.KnowledgeItems[index+1:]...)
	notebook.UpdatedAt = time.Now().UTC()

	if err := s.storage.writeJSON(s.storage.notebookPath(notebookID), notebook); err != nil {
		return fmt.Errorf("failed to delete knowledge item: %w", err)
	}

	s.logger.Debug("deleted knowledge item", "notebook_id", notebookID, "id", knowledgeID)
	return nil
}

// AppendChatMessage appends one turn to the notebook's transcript.
func (s *Service) AppendChatMessage(notebookID, role, content string) (*models.ChatMessage, error) {
	if role != models.RoleUser && role != models.RoleAssistant {
		return nil, fmt.Errorf("chat role %q: %w", role, errs.ErrValidation)
	}

	notebook, err := s.GetNotebook(notebookID)
	if err != nil {
		return nil, err
	}

	message := models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}

	notebook.ChatHistory = append(notebook.ChatHistory, message)
	notebook.UpdatedAt = time.Now().UTC()

	if err := s.storage.writeJSON(s.storage.notebookPath(notebookID), notebook); err != nil {
		return nil, fmt.Errorf("failed to append chat message: %w", err)
	}
	return &message, nil
}

func (s *Service) ChatHistory(notebookID string) ([]models.ChatMessage, error) {
	notebook, err := s.GetNotebook(notebookID)
	if err != nil {
		return nil, err
	}
	return notebook.ChatHistory, nil
}

func (s *Service) ClearChatHistory(notebookID string) error {
	notebook, err := s.GetNotebook(notebookID)
	if err != nil {
		return err
	}

	notebook.ChatHistory = []models.ChatMessage{}
	notebook.UpdatedAt = time.Now().UTC()
	return s.storage.writeJSON(s.storage.notebookPath(notebookID), notebook)
}

func (s *Service) copyUpload(notebookID, srcPath string) (string, error) {
	filesDir := s.storage.notebookFilesDir(notebookID)
	if err := os.MkdirAll(filesDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create files directory: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to open file %q: %w", srcPath, err)
	}
	defer src.Close()

	destPath := filepath.Join(filesDir, filepath.Base(srcPath))
	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file %q: %w", destPath, err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		return "", fmt.Errorf("failed to copy file: %w", err)
	}
	return destPath, nil
}

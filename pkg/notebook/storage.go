// Package notebook persists notebooks, their knowledge items, and their
// chat transcripts as JSON files on disk, and keeps the vector index
// consistent with them: deleting an item or a notebook also deletes its
// indexed chunks.
package notebook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage handles the on-disk layout: one JSON file per notebook under
// notebooks/, uploaded files under files/<notebookID>/.
type Storage struct {
	dataDir string
}

func NewStorage(dataDir string) *Storage {
	return &Storage{dataDir: dataDir}
}

func (s *Storage) ensureDirectories() error {
	for _, dir := range []string{s.notebooksDir(), filepath.Join(s.dataDir, "files")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (s *Storage) notebooksDir() string {
	return filepath.Join(s.dataDir, "notebooks")
}

func (s *Storage) notebookPath(notebookID string) string {
	return filepath.Join(s.notebooksDir(), notebookID+".json")
}

func (s *Storage) notebookFilesDir(notebookID string) string {
	return filepath.Join(s.dataDir, "files", notebookID)
}

func (s *Storage) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSON writes via a temp file and rename so a crash mid-write cannot
// truncate a notebook.
func (s *Storage) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %q: %w", path, err)
	}
	return nil
}

func (s *Storage) listNotebookIDs() ([]string, error) {
	entries, err := os.ReadDir(s.notebooksDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list notebooks: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

func (s *Storage) deleteFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

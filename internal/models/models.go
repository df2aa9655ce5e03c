package models

import "time"

// KnowledgeItemType identifies how a knowledge item's content is interpreted.
type KnowledgeItemType string

const (
	TypePDF     KnowledgeItemType = "pdf"
	TypeNote    KnowledgeItemType = "note"
	TypeURL     KnowledgeItemType = "url"
	TypeArticle KnowledgeItemType = "article"
)

// Valid reports whether t is one of the supported item types.
func (t KnowledgeItemType) Valid() bool {
	switch t {
	case TypePDF, TypeNote, TypeURL, TypeArticle:
		return true
	}
	return false
}

// KnowledgeItem is one document inside a notebook. Content holds the raw
// text for notes, the source URL for url/article items, and the path to the
// copied file for PDFs. Embedded flips to true only after every chunk of the
// item has been indexed.
type KnowledgeItem struct {
	ID         string            `json:"id"`
	NotebookID string            `json:"notebookId"`
	Type       KnowledgeItemType `json:"type"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Embedded   bool              `json:"embedded"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Notebook groups knowledge items and their chat transcript.
type Notebook struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	KnowledgeItems []KnowledgeItem `json:"knowledgeItems"`
	ChatHistory    []ChatMessage   `json:"chatHistory"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ChatMessage is one turn of a notebook's transcript. Ordering is insertion
// order; the slice in Notebook is append-only.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chunk is a bounded, overlapping slice of a document's extracted text. It
// is never persisted on its own; only its embedding and text reach the
// vector index.
type Chunk struct {
	Text     string
	Metadata map[string]string
}

// RetrievedDocument is a read-path projection of an indexed chunk plus its
// similarity distance (or rank position after reranking).
type RetrievedDocument struct {
	ID       string
	Content  string
	Metadata map[string]string
	Distance float32
}

// ExtractedDocument is the document loader's output: plain text plus
// whatever metadata the extraction produced (page count, source URL, ...).
type ExtractedDocument struct {
	Text     string
	Metadata map[string]string
}

// DetailLevel selects the verbosity directive injected into the answer
// prompt. It is supplied per chat request and never persisted.
type DetailLevel string

const (
	DetailBrief      DetailLevel = "brief"
	DetailNormal     DetailLevel = "normal"
	DetailDetailed   DetailLevel = "detailed"
	DetailMeticulous DetailLevel = "meticulous"
)

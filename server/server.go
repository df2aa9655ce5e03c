// Package server exposes the notebook pipeline over a WebSocket: chat
// requests, notebook listings, and reingestion with streamed progress.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lorebook/lorebook/internal/models"
	"github.com/lorebook/lorebook/pkg/chat"
	"github.com/lorebook/lorebook/pkg/ingest"
	"github.com/lorebook/lorebook/pkg/notebook"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is the wire envelope in both directions.
type Message struct {
	Type       string      `json:"type"`
	NotebookID string      `json:"notebookId,omitempty"`
	Content    string      `json:"content,omitempty"`
	Detail     string      `json:"detail,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// Options tunes how the server runs chat requests.
type Options struct {
	TopK          int
	UseMultiQuery bool
	UseReranking  bool
}

type Server struct {
	chatEngine   *chat.Engine
	ingestEngine *ingest.Engine
	notebooks    *notebook.Service
	options      Options
	logger       *slog.Logger
}

func New(chatEngine *chat.Engine, ingestEngine *ingest.Engine, notebooks *notebook.Service, options Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		chatEngine:   chatEngine,
		ingestEngine: ingestEngine,
		notebooks:    notebooks,
		options:      options,
		logger:       logger,
	}
}

// Run serves /ws and /health on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting WebSocket server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// wsConn serializes writes; handlers for one connection run concurrently.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(logger *slog.Logger, msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		logger.Error("failed to send message", "type", msg.Type, "error", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	wc := &wsConn{conn: conn}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Error("error reading message", "error", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			wc.send(s.logger, Message{Type: "error", Content: "malformed message"})
			continue
		}

		go s.handleMessage(r.Context(), wc, msg)
	}
}

func (s *Server) handleMessage(ctx context.Context, wc *wsConn, msg Message) {
	switch msg.Type {
	case "chat":
		s.handleChat(ctx, wc, msg)
	case "notebooks":
		s.handleListNotebooks(wc)
	case "knowledge":
		s.handleListKnowledge(wc, msg)
	case "reingest":
		s.handleReingest(ctx, wc, msg)
	default:
		wc.send(s.logger, Message{Type: "error", Content: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

func (s *Server) handleChat(ctx context.Context, wc *wsConn, msg Message) {
	if strings.TrimSpace(msg.NotebookID) == "" {
		wc.send(s.logger, Message{Type: "error", Content: "notebookId is required"})
		return
	}

	history, err := s.notebooks.ChatHistory(msg.NotebookID)
	if err != nil {
		wc.send(s.logger, Message{Type: "error", Content: err.Error()})
		return
	}

	answer, err := s.chatEngine.Chat(ctx, msg.Content, chat.Options{
		NotebookID:    msg.NotebookID,
		TopK:          s.options.TopK,
		UseHyDE:       !s.options.UseMultiQuery,
		SkipReranking: !s.options.UseReranking,
		ChatHistory:   history,
		DetailLevel:   models.DetailLevel(msg.Detail),
	})
	if err != nil {
		wc.send(s.logger, Message{Type: "error", Content: err.Error()})
		return
	}

	if _, err := s.notebooks.AppendChatMessage(msg.NotebookID, models.RoleUser, msg.Content); err != nil {
		s.logger.Warn("failed to record user message", "notebook", msg.NotebookID, "error", err)
	}
	if _, err := s.notebooks.AppendChatMessage(msg.NotebookID, models.RoleAssistant, answer); err != nil {
		s.logger.Warn("failed to record assistant message", "notebook", msg.NotebookID, "error", err)
	}

	wc.send(s.logger, Message{Type: "response", NotebookID: msg.NotebookID, Content: answer})
}

func (s *Server) handleListNotebooks(wc *wsConn) {
	notebooks, err := s.notebooks.ListNotebooks()
	if err != nil {
		wc.send(s.logger, Message{Type: "error", Content: err.Error()})
		return
	}
	wc.send(s.logger, Message{Type: "notebooks", Data: notebooks})
}

func (s *Server) handleListKnowledge(wc *wsConn, msg Message) {
	items, err := s.notebooks.KnowledgeItems(msg.NotebookID)
	if err != nil {
		wc.send(s.logger, Message{Type: "error", Content: err.Error()})
		return
	}
	wc.send(s.logger, Message{Type: "knowledge", NotebookID: msg.NotebookID, Data: items})
}

func (s *Server) handleReingest(ctx context.Context, wc *wsConn, msg Message) {
	if strings.TrimSpace(msg.NotebookID) == "" {
		wc.send(s.logger, Message{Type: "error", Content: "notebookId is required"})
		return
	}

	wc.send(s.logger, Message{Type: "status", Content: fmt.Sprintf("Reingesting notebook %s", msg.NotebookID)})

	results, err := s.ingestEngine.ReingestNotebook(ctx, msg.NotebookID)
	if err != nil {
		wc.send(s.logger, Message{Type: "error", Content: err.Error()})
		return
	}

	embedded := 0
	for _, res := range results {
		if res.Err != nil {
			wc.send(s.logger, Message{Type: "progress", Content: fmt.Sprintf("Failed %s: %v", res.KnowledgeID, res.Err)})
			continue
		}
		embedded++
		wc.send(s.logger, Message{Type: "progress", Content: fmt.Sprintf("Embedded %s (%d chunks)", res.KnowledgeID, res.Chunks)})
	}

	wc.send(s.logger, Message{Type: "status", Content: fmt.Sprintf("Reingested %d of %d items", embedded, len(results))})
}

package handler

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Document is a rendered page and the directory its relative assets resolve against.
type Document struct {
	HTML     string
	AssetDir string
}

// DocumentStore holds the document currently hosted for the page. Jobs render
// one at a time, so hosting a new document releases the previous one.
type DocumentStore struct {
	mu      sync.RWMutex
	current int
	doc     Document
}

// NewDocumentStore creates an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{}
}

// Put replaces the hosted document and returns its id. Ids are never reused,
// so a stale URL cannot resolve to a newer document.
func (s *DocumentStore) Put(doc Document) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current++
	s.doc = doc
	return s.current
}

// Get returns the document with the given id while it is still hosted.
func (s *DocumentStore) Get(id int) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id == 0 || id != s.current {
		return Document{}, false
	}
	return s.doc, true
}

type Handler struct {
	store  *DocumentStore
	logger *zap.Logger
}

func NewHandler(store *DocumentStore, logger *zap.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// HandleDocument serves /documents/{id}/ as the HTML itself and anything
// below it from the document's asset directory.
func (h *Handler) HandleDocument(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "id")
	id, err := strconv.Atoi(rawID)
	if err != nil {
		http.Error(w, "invalid document id", http.StatusBadRequest)
		return
	}
	doc, ok := h.store.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if chi.URLParam(r, "*") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(doc.HTML)); err != nil {
			h.logger.Warn("Failed to write document", zap.Int("id", id), zap.Error(err))
		}
		return
	}

	if doc.AssetDir == "" {
		http.NotFound(w, r)
		return
	}
	prefix := "/documents/" + rawID
	if !strings.HasPrefix(r.URL.Path, prefix+"/") {
		http.NotFound(w, r)
		return
	}
	http.StripPrefix(prefix, http.FileServer(http.Dir(doc.AssetDir))).ServeHTTP(w, r)
}

// Package http exposes the lending engine over REST, plus a Server-Sent
// Events stream of registry changes.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"shelflend/internal/core/domain/models"
	"shelflend/internal/database"
	"shelflend/internal/drm"
	"shelflend/internal/feeds"
	"shelflend/internal/registry"
	"shelflend/internal/usecase/borrow"
	"shelflend/internal/usecase/revoke"
	syncusecase "shelflend/internal/usecase/sync"
)

// Server wires the registry, repository and loader into HTTP handlers. Tasks
// run synchronously inside the request; the request context bounds them.
type Server struct {
	account   *models.Account
	repo      database.BookRepository
	registry  *registry.Registry
	loader    feeds.Loader
	connector drm.Connector

	drmTimeout      time.Duration
	syncConcurrency int
}

func NewServer(
	account *models.Account,
	repo database.BookRepository,
	reg *registry.Registry,
	loader feeds.Loader,
	connector drm.Connector,
	drmTimeout time.Duration,
	syncConcurrency int,
) *Server {
	return &Server{
		account:         account,
		repo:            repo,
		registry:        reg,
		loader:          loader,
		connector:       connector,
		drmTimeout:      drmTimeout,
		syncConcurrency: syncConcurrency,
	}
}

// RegisterRoutes builds the router.
func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/books", s.handleListBooks)
		r.Get("/books/{bookID}", s.handleGetBook)
		r.Post("/books/{bookID}/revoke", s.handleRevoke)
		r.Post("/books/{bookID}/borrow", s.handleBorrow)
		r.Post("/sync", s.handleSync)
		r.Get("/events", s.handleEvents)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	entries := s.registry.Books()
	books := make([]bookDTO, 0, len(entries))
	for _, e := range entries {
		books = append(books, toBookDTO(e))
	}
	writeJSON(w, http.StatusOK, booksResponse{Books: books})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id := models.BookID(chi.URLParam(r, "bookID"))
	entry, err := s.registry.BookOrError(id)
	if err != nil {
		if errors.Is(err, registry.ErrNoSuchBook) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toBookDTO(entry))
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id := models.BookID(chi.URLParam(r, "bookID"))
	task := revoke.NewTask(s.account, id, s.repo, s.registry, s.loader, s.connector, s.drmTimeout)
	result := task.Call(r.Context())

	status := http.StatusOK
	if !result.Succeeded() {
		status = http.StatusConflict
	}
	writeJSON(w, status, toResultDTO(result.Succeeded(), result.LastErrorCode, result.Steps))
}

type borrowRequest struct {
	BorrowHref string `json:"borrow_href"`
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	id := models.BookID(chi.URLParam(r, "bookID"))

	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.BorrowHref == "" {
		writeError(w, http.StatusBadRequest, "borrow_href is required")
		return
	}

	task := borrow.NewTask(s.account, id, req.BorrowHref, s.repo, s.registry, s.loader)
	result := task.Call(r.Context())

	status := http.StatusOK
	if !result.Succeeded() {
		status = http.StatusConflict
	}
	writeJSON(w, status, toResultDTO(result.Succeeded(), result.LastErrorCode, result.Steps))
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	task := syncusecase.NewTask(s.account, s.repo, s.registry, s.loader, s.syncConcurrency)
	result := task.Call(r.Context())

	if !result.Succeeded() {
		writeJSON(w, http.StatusBadGateway, toResultDTO(false, result.LastErrorCode, result.Steps))
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{
		Synced:  result.Value.Synced,
		Skipped: result.Value.Skipped,
		Removed: result.Value.Removed,
		Steps:   toStepDTOs(result.Steps),
	})
}

// handleEvents streams registry events as SSE until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := s.registry.Subscribe()
	defer cancel()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, open := <-events:
			if !open {
				return
			}
			if err := writeSSE(w, event); err != nil {
				log.Printf("[HTTP] dropping SSE client: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event registry.Event) error {
	payload, err := json.Marshal(toEventDTO(event))
	if err != nil {
		return err
	}
	name := "book.changed"
	if event.Type == registry.EventRemoved {
		name = "book.removed"
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

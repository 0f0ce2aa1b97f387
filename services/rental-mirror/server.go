package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Server serves the read-only mirror API.
type Server struct {
	store  *SQLiteStore
	router http.Handler
}

// NewServer constructs the HTTP router over the mirror store.
func NewServer(store *SQLiteStore) *Server {
	s := &Server{store: store}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/items", s.handleListItems)
	r.Get("/items/{id}", s.handleGetItem)
	r.Get("/events", s.handleRecentEvents)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeHTTPError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	switch status {
	case "", "ready", "rented", "returned":
	default:
		writeHTTPError(w, http.StatusBadRequest, "unknown status filter: "+status)
		return
	}
	items, err := s.store.ListItems(r.Context(), status, owner)
	if err != nil {
		writeHTTPError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []MirroredItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeHTTPError(w, http.StatusBadRequest, "invalid item id: "+raw)
		return
	}
	item, err := s.store.GetItem(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			writeHTTPError(w, http.StatusNotFound, err.Error())
			return
		}
		writeHTTPError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type eventView struct {
	Sequence  uint64            `json:"sequence"`
	Type      string            `json:"type"`
	Payload   map[string]string `json:"payload"`
	CreatedAt string            `json:"createdAt"`
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			writeHTTPError(w, http.StatusBadRequest, "invalid limit: "+raw)
			return
		}
		if val > 500 {
			val = 500
		}
		limit = val
	}
	events, err := s.store.RecentEvents(r.Context(), limit)
	if err != nil {
		writeHTTPError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]eventView, 0, len(events))
	for _, evt := range events {
		out = append(out, eventView{
			Sequence:  evt.Sequence,
			Type:      evt.Type,
			Payload:   evt.Payload,
			CreatedAt: evt.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

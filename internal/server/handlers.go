package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/synclist/internal/models"
	"github.com/desertthunder/synclist/internal/shared"
	"github.com/go-chi/chi/v5"
)

// Server wires the [Store] into an HTTP API.
type Server struct {
	store  *Store
	logger *log.Logger
}

// NewServer creates a new Server backed by the given store.
func NewServer(store *Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Server{store: store, logger: shared.WithLogger(logger, "component", "server")}
}

// Router builds the chi router for the sync API. All playlist routes sit
// behind the bearer-identity middleware; role checks happen in the store.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestLogger(s.logger))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.BearerAuth)

		r.Post("/playlists", s.handleCreatePlaylist)
		r.Get("/playlists/{id}", s.handleGetPlaylist)
		r.Patch("/playlists/{id}", s.handleUpdateMetadata)
		r.Delete("/playlists/{id}", s.handleDeletePlaylist)

		r.Post("/playlists/{id}/changes", s.handlePushChanges)
		r.Get("/playlists/{id}/changes", s.handlePullChanges)
		r.Post("/playlists/{id}/subscribe", s.handleSubscribe)

		r.Get("/me/playlists", s.handleListMyPlaylists)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := s.store.CreatePlaylist(r.Context(), ActorID(r.Context()), req)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	diff, err := s.store.GetPlaylist(r.Context(), chi.URLParam(r, "id"), ActorID(r.Context()))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := s.store.UpdateMetadata(r.Context(), chi.URLParam(r, "id"), ActorID(r.Context()), req)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeletePlaylist(r.Context(), chi.URLParam(r, "id"), ActorID(r.Context()))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handlePushChanges(w http.ResponseWriter, r *http.Request) {
	var req models.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	appliedAt, err := s.store.ApplyChanges(r.Context(), chi.URLParam(r, "id"), ActorID(r.Context()), req.Changes)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.PushResponse{AppliedAt: appliedAt})
}

func (s *Server) handlePullChanges(w http.ResponseWriter, r *http.Request) {
	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
		since = parsed
	}

	diff, err := s.store.Changes(r.Context(), chi.URLParam(r, "id"), ActorID(r.Context()), since)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	resp, err := s.store.Subscribe(r.Context(), chi.URLParam(r, "id"), ActorID(r.Context()))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListMyPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := s.store.ListUserPlaylists(r.Context(), ActorID(r.Context()))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
}

// writeStoreError maps the error taxonomy onto status codes.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, shared.ErrNotFound):
		writeError(w, http.StatusNotFound, "playlist not found")
	case errors.Is(err, shared.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		s.logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aionmedia/aion/internal/chat"
	"github.com/aionmedia/aion/internal/memory"
	"github.com/aionmedia/aion/internal/protocol"
)

func (s *Server) handleSaveMemory(w http.ResponseWriter, r *http.Request) {
	var req protocol.SaveMemoryRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if err := s.svc.Facts.Upsert(r.Context(), req.UserID, req.Key, req.Value, req.Context); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.StatusResponse{Success: true, Message: "memory saved"})
}

// handleGetMemory lists every fact of a user, or the single fact named by ?key=.
func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	key := strings.TrimSpace(r.URL.Query().Get("key"))

	var facts []memory.Fact
	if key != "" {
		fact, err := s.svc.Facts.Get(r.Context(), userID, key)
		switch {
		case errors.Is(err, chat.ErrNotFound):
		case err != nil:
			s.respondServiceError(w, r, err)
			return
		default:
			facts = append(facts, fact)
		}
	} else {
		var err error
		facts, err = s.svc.Facts.List(r.Context(), userID)
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}
	}

	views := make([]protocol.MemoryView, 0, len(facts))
	for _, f := range facts {
		views = append(views, protocol.MemoryView{
			Key:       f.Key,
			Value:     f.Value,
			Context:   f.Context,
			CreatedAt: f.CreatedAt,
			UpdatedAt: f.UpdatedAt,
		})
	}
	respondJSON(w, http.StatusOK, protocol.MemoriesResponse{Success: true, Memories: views})
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Facts.Delete(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "key")); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.StatusResponse{Success: true, Message: "memory deleted"})
}

func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var req protocol.SaveConfigRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if err := s.svc.Settings.Save(r.Context(), req.UserID, req.Key, req.Value); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.StatusResponse{Success: true, Message: "configuration saved"})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	key := strings.TrimSpace(r.URL.Query().Get("key"))

	configs := map[string]string{}
	if key != "" {
		setting, err := s.svc.Settings.Get(r.Context(), userID, key)
		switch {
		case errors.Is(err, chat.ErrNotFound):
		case err != nil:
			s.respondServiceError(w, r, err)
			return
		default:
			configs[setting.Key] = setting.Value
		}
	} else {
		settings, err := s.svc.Settings.List(r.Context(), userID)
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}
		for _, st := range settings {
			configs[st.Key] = st.Value
		}
	}
	respondJSON(w, http.StatusOK, protocol.ConfigsResponse{Success: true, Configs: configs})
}

func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Settings.Delete(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "key")); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.StatusResponse{Success: true, Message: "configuration deleted"})
}

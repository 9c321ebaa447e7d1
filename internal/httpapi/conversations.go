package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aionmedia/aion/internal/memory"
	"github.com/aionmedia/aion/internal/protocol"
)

func conversationView(c memory.Conversation) protocol.ConversationView {
	return protocol.ConversationView{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateConversationRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	conv, err := s.svc.Chat.CreateConversation(r.Context(), req.UserID, req.Title)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, protocol.ConversationResponse{Success: true, Conversation: conversationView(conv)})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.svc.Chat.ListConversations(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	views := make([]protocol.ConversationView, 0, len(convs))
	for _, c := range convs {
		views = append(views, conversationView(c))
	}
	respondJSON(w, http.StatusOK, protocol.ConversationsResponse{Success: true, Conversations: views})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Chat.DeleteConversation(r.Context(), chi.URLParam(r, "conversationId")); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.StatusResponse{Success: true, Message: "conversation deleted"})
}

package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/aionmedia/aion/internal/chat"
	"github.com/aionmedia/aion/internal/memory"
	"github.com/aionmedia/aion/internal/protocol"
)

func turnRequestFrom(req protocol.ChatRequest) chat.TurnRequest {
	return chat.TurnRequest{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
		Credential:     req.APIKey,
		ModelName:      req.ModelName,
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req protocol.ChatRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	res, err := s.svc.Chat.HandleTurn(r.Context(), turnRequestFrom(req))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.ChatResponse{
		Success:        true,
		Response:       res.Response,
		ConversationID: res.ConversationID,
		Cached:         res.Cached,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.svc.Chat.History(r.Context(), chi.URLParam(r, "conversationId"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.HistoryResponse{Success: true, Messages: messageViews(msgs)})
}

func messageViews(msgs []memory.Message) []protocol.MessageView {
	out := make([]protocol.MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, protocol.MessageView{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			Metadata:  m.Metadata,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}

// handleChatWS serves chat turns over a websocket. Turns on one connection run in order.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan protocol.ChatTurn, 16)
	outbound := make(chan any, 16)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		defer close(outbound)
		for turn := range inbound {
			outbound <- s.runWSTurn(ctx, turn)
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		failed := false
		for msg := range outbound {
			if failed {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				failed = true
				cancel()
			}
		}
	}()

	conn.SetReadLimit(maxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			}
			select {
			case outbound <- errEvent:
			default:
				// Keep websocket writes single-threaded; drop if the queue is saturated.
			}
			continue
		}

		turn, ok := parsed.(protocol.ChatTurn)
		if !ok {
			continue
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- turn:
		}
	}

	// Pending turns still finish and are flushed before the connection closes.
	close(inbound)
	<-runDone
	<-writerDone
}

func (s *Server) runWSTurn(ctx context.Context, turn protocol.ChatTurn) any {
	if err := s.validate.Struct(turn.ChatRequest); err != nil {
		return protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			RequestID: turn.RequestID,
			Code:      "invalid_request",
			Detail:    describeValidation(err),
		}
	}
	res, err := s.svc.Chat.HandleTurn(ctx, turnRequestFrom(turn.ChatRequest))
	if err != nil {
		m := classifyError(err)
		return protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			RequestID: turn.RequestID,
			Code:      m.code,
			Retryable: m.retryable,
			Detail:    m.message,
		}
	}
	return protocol.ChatReply{
		Type:           protocol.TypeChatReply,
		RequestID:      turn.RequestID,
		Response:       res.Response,
		ConversationID: res.ConversationID,
		Cached:         res.Cached,
	}
}

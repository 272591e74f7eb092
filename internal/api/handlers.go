// ABOUTME: Request handlers for conversations, messages, classification and streams
// ABOUTME: Response bodies are JSON; the stream endpoint emits server-sent events

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/2389/coven-desk/internal/autoreply"
	"github.com/2389/coven-desk/internal/classify"
	"github.com/2389/coven-desk/internal/conversation"
	"github.com/2389/coven-desk/internal/store"
)

// ConversationResponse is the JSON form of a conversation
type ConversationResponse struct {
	ID            string    `json:"id"`
	OriginChannel string    `json:"origin_channel"`
	VisitorID     string    `json:"visitor_id"`
	DepartmentID  string    `json:"department_id,omitempty"`
	Status        string    `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	HasHumanAgent bool      `json:"has_human_agent"`
}

// MessageResponse is a message with its sender role
type MessageResponse struct {
	store.Message
	Role store.SenderRole `json:"role"`
}

// CreateConversationRequest creates (or returns) a conversation.
// ID is optional; widgets that mint ids locally send theirs.
type CreateConversationRequest struct {
	ID            string `json:"id"`
	VisitorID     string `json:"visitor_id"`
	OriginChannel string `json:"origin_channel"`
	DepartmentID  string `json:"department_id"`
}

// PostMessageRequest appends a message to a conversation
type PostMessageRequest struct {
	ID       string `json:"id"`
	SenderID string `json:"sender_id"`
	Body     string `json:"body"`
}

// ClassifyRequest asks for a triage decision
type ClassifyRequest struct {
	Text         string `json:"text"`
	DepartmentID string `json:"department_id"`
}

// ClassifyResponse is the triage decision plus routing and the bot reply
type ClassifyResponse struct {
	classify.Result
	DepartmentID string `json:"department_id"`
	Reply        string `json:"reply"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result := classify.Classify(req.Text)
	department := ""
	if result.RequiresHuman {
		department = s.router.Route(result.Category, req.DepartmentID)
	}

	s.writeJSON(w, http.StatusOK, ClassifyResponse{
		Result:       result,
		DepartmentID: department,
		Reply:        autoreply.CanonicalReply(result.Category, department),
	})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.VisitorID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "visitor_id is required")
		return
	}
	if req.OriginChannel == "" {
		req.OriginChannel = "widget"
	}

	ctx := r.Context()
	if req.ID != "" {
		existing, err := s.store.GetConversation(ctx, req.ID)
		if err == nil {
			if existing.VisitorID != req.VisitorID {
				s.sendJSONError(w, http.StatusConflict, "conversation belongs to another visitor")
				return
			}
			s.writeConversation(w, r, http.StatusOK, existing)
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("failed to look up conversation", "error", err, "conversation_id", req.ID)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	} else {
		req.ID = uuid.NewString()
	}

	now := time.Now()
	conv := &store.Conversation{
		ID:            req.ID,
		OriginChannel: req.OriginChannel,
		VisitorID:     req.VisitorID,
		DepartmentID:  req.DepartmentID,
		Status:        store.StatusActive,
		StartedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		s.logger.Error("failed to create conversation", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Info("conversation created", "conversation_id", conv.ID, "visitor_id", conv.VisitorID)
	s.writeJSON(w, http.StatusCreated, toConversationResponse(conv, false))
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.loadConversation(w, r)
	if !ok {
		return
	}
	s.writeConversation(w, r, http.StatusOK, conv)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.loadConversation(w, r)
	if !ok {
		return
	}

	msgs, err := s.store.ListMessages(r.Context(), conv.ID)
	if err != nil {
		s.logger.Error("failed to list messages", "error", err, "conversation_id", conv.ID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResponse{Message: *m, Role: m.Role(conv.VisitorID)})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.loadConversation(w, r)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SenderID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "sender_id is required")
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		s.sendJSONError(w, http.StatusBadRequest, "body is required")
		return
	}
	if conv.Status == store.StatusClosed {
		s.sendJSONError(w, http.StatusConflict, "conversation is closed")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	msg := &store.Message{
		ID:             req.ID,
		ConversationID: conv.ID,
		SenderID:       req.SenderID,
		Body:           req.Body,
		SentAt:         time.Now(),
	}
	err := s.store.SaveMessage(r.Context(), msg)
	if errors.Is(err, store.ErrDuplicateMessage) {
		s.sendJSONError(w, http.StatusConflict, "message already exists")
		return
	}
	if errors.Is(err, store.ErrConversationClosed) {
		s.sendJSONError(w, http.StatusConflict, "conversation is closed")
		return
	}
	if err != nil {
		s.logger.Error("failed to save message", "error", err, "conversation_id", conv.ID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusCreated, MessageResponse{Message: *msg, Role: msg.Role(conv.VisitorID)})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.store.CloseConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to close conversation", "error", err, "conversation_id", id)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.logger.Info("conversation closed", "conversation_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleStream emits every message published for the conversation as an
// SSE "message" event until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.loadConversation(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	ch, err := s.transport.Subscribe(ctx, conv.ID)
	if err != nil {
		s.logger.Error("failed to subscribe", "error", err, "conversation_id", conv.ID)
		s.sendJSONError(w, http.StatusServiceUnavailable, "stream unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	s.writeSSEEvent(w, "ready", map[string]string{"conversation_id": conv.ID})
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				s.writeSSEEvent(w, "error", map[string]string{"error": "stream interrupted"})
				flusher.Flush()
				return
			}
			s.writeSSEEvent(w, "message", MessageResponse{Message: msg, Role: msg.Role(conv.VisitorID)})
			flusher.Flush()
		}
	}
}

// loadConversation fetches the {id} conversation, writing 404/500 itself.
func (s *Server) loadConversation(w http.ResponseWriter, r *http.Request) (*store.Conversation, bool) {
	id := chi.URLParam(r, "id")
	conv, err := s.store.GetConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("failed to get conversation", "error", err, "conversation_id", id)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return conv, true
}

// writeConversation responds with conv and its derived hand-off flag.
func (s *Server) writeConversation(w http.ResponseWriter, r *http.Request, status int, conv *store.Conversation) {
	msgs, err := s.store.ListMessages(r.Context(), conv.ID)
	if err != nil {
		s.logger.Error("failed to list messages", "error", err, "conversation_id", conv.ID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	history := make([]store.Message, len(msgs))
	for i, m := range msgs {
		history[i] = *m
	}
	s.writeJSON(w, status, toConversationResponse(conv, conversation.HasHumanAgent(conv.VisitorID, history)))
}

func toConversationResponse(conv *store.Conversation, handedOff bool) ConversationResponse {
	return ConversationResponse{
		ID:            conv.ID,
		OriginChannel: conv.OriginChannel,
		VisitorID:     conv.VisitorID,
		DepartmentID:  conv.DepartmentID,
		Status:        string(conv.Status),
		StartedAt:     conv.StartedAt,
		UpdatedAt:     conv.UpdatedAt,
		HasHumanAgent: handedOff,
	}
}

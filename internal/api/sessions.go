package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qiankun25/RuralMuralGenerator/internal/domain"
	"github.com/qiankun25/RuralMuralGenerator/internal/identity"
	"github.com/qiankun25/RuralMuralGenerator/internal/store"
)

type sessionSummary struct {
	ID        string       `json:"id"`
	Stage     domain.Stage `json:"current_stage"`
	Messages  int          `json:"message_count"`
	CreatedAt string       `json:"created_at"`
	UpdatedAt string       `json:"updated_at"`
}

func summarize(s *domain.Session) sessionSummary {
	return sessionSummary{
		ID:        s.ID,
		Stage:     s.Stage,
		Messages:  len(s.Messages),
		CreatedAt: s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: s.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// CreateSession starts a new conversation.
// POST /api/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ownerID := identity.UserIDFromContext(r.Context())
	s := h.sessions.Create(ownerID)

	slog.Info("session created", "session_id", s.ID, "user_id", ownerID)
	JSON(w, http.StatusCreated, map[string]any{
		"id":            s.ID,
		"current_stage": s.Stage,
	})
}

// ListSessions returns the caller's sessions, newest first.
// GET /api/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ownerID := identity.UserIDFromContext(r.Context())

	all := h.sessions.List(ownerID)
	out := make([]sessionSummary, 0, len(all))
	for _, s := range all {
		out = append(out, summarize(s))
	}
	JSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// GetSession returns the full conversation state.
// GET /api/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"id":            s.ID,
		"current_stage": s.Stage,
		"messages":      s.Messages,
		"workflow_data": s.Data,
	})
}

// DeleteSession removes a conversation.
// DELETE /api/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	h.sessions.Delete(s.ID)
	slog.Info("session deleted", "session_id", s.ID)
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type messageRequest struct {
	Message string `json:"message"`
}

// PostMessage processes one user turn through the workflow controller.
// POST /api/sessions/{id}/messages
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	var req messageRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		done     bool
		messages []domain.Message
		stage    domain.Stage
	)
	err := h.sessions.WithSession(s.ID, func(live *domain.Session) error {
		done = h.ctrl.Process(r.Context(), live, req.Message)
		messages = append([]domain.Message(nil), live.Messages...)
		stage = live.Stage
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"messages":      messages,
		"current_stage": stage,
		"is_done":       done,
	})
}

// ownedSession loads the session from the URL and enforces ownership.
func (h *Handler) ownedSession(w http.ResponseWriter, r *http.Request) (*domain.Session, bool) {
	id := chi.URLParam(r, "id")
	s, err := h.sessions.Get(id)
	if err != nil {
		Error(w, http.StatusNotFound, "session not found")
		return nil, false
	}

	ownerID := identity.UserIDFromContext(r.Context())
	if s.OwnerID != "" && s.OwnerID != ownerID {
		Error(w, http.StatusForbidden, "session belongs to another user")
		return nil, false
	}
	return s, true
}

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// TaskStream pushes task progress updates over a WebSocket until the task
// settles or the client goes away.
// GET /ws/tasks/{id}
func (h *Handler) TaskStream(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if _, ok := h.tasks.Get(taskID); !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept WebSocket", "error", err, "task_id", taskID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("failed to close websocket", "error", closeErr, "task_id", taskID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	slog.Info("task stream opened", "task_id", taskID)

	updates := h.tasks.Subscribe(taskID)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := writeJSON(ctx, ws, update); err != nil {
				slog.Debug("task stream write failed", "task_id", taskID, "error", err)
				return
			}
			if update.Status.Terminal() {
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

// checkOrigin validates the Origin header for browser requests. Requests
// without an Origin (curl, native clients) are allowed.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.cfg.IsDevelopment() {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	allowed, err := url.Parse(h.cfg.FrontendURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, allowed.Host)
}

// Package api provides HTTP handlers for the mural generation API.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/qiankun25/RuralMuralGenerator/internal/agents"
	"github.com/qiankun25/RuralMuralGenerator/internal/config"
	"github.com/qiankun25/RuralMuralGenerator/internal/domain"
	"github.com/qiankun25/RuralMuralGenerator/internal/store"
	"github.com/qiankun25/RuralMuralGenerator/internal/tasks"
	"github.com/qiankun25/RuralMuralGenerator/internal/workflow"
)

// Controller processes one conversational turn. Satisfied by
// *workflow.Controller.
type Controller interface {
	Process(ctx context.Context, s *domain.Session, input string) bool
}

// CollectionCounter reports knowledge collection sizes for the health
// endpoint. Satisfied by *knowledge.Store.
type CollectionCounter interface {
	Count(ctx context.Context, collection string) (int, error)
}

// Designer is the direct-endpoint surface of the Creative Designer.
type Designer interface {
	workflow.Designer
	Refine(ctx context.Context, originalDesign, userFeedback string) (string, error)
}

// Handler provides common handler dependencies.
type Handler struct {
	cfg      *config.Config
	sessions *store.SessionStore
	ctrl     Controller
	analyst  workflow.Analyst
	designer Designer
	imager   workflow.ImageAgent
	tasks    *tasks.Manager
	counter  CollectionCounter
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(
	cfg *config.Config,
	sessions *store.SessionStore,
	ctrl Controller,
	analyst workflow.Analyst,
	designer Designer,
	imager workflow.ImageAgent,
	taskMgr *tasks.Manager,
	counter CollectionCounter,
) *Handler {
	return &Handler{
		cfg:      cfg,
		sessions: sessions,
		ctrl:     ctrl,
		analyst:  analyst,
		designer: designer,
		imager:   imager,
		tasks:    taskMgr,
		counter:  counter,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

var _ Designer = (*agents.CreativeDesigner)(nil)

// decodeBody decodes a JSON request body, rejecting empty bodies.
func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

// requestTimeout bounds the synchronous pipeline endpoints. Image work runs
// through the task manager instead.
const requestTimeout = 3 * time.Minute

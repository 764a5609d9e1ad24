package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qiankun25/RuralMuralGenerator/internal/domain"
	"github.com/qiankun25/RuralMuralGenerator/internal/tasks"
)

// Direct pipeline endpoints. These mirror the conversational stages but
// operate statelessly: they never touch sessions and never finish a
// workflow.

type analyzeRequest struct {
	VillageInfo domain.VillageInfo `json:"village_info"`
}

// Analyze runs a one-shot cultural analysis.
// POST /api/analyze
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.VillageInfo.Name == "" || req.VillageInfo.Location == "" {
		Error(w, http.StatusBadRequest, "village name and location are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	analysis, err := h.analyst.Analyze(ctx, &req.VillageInfo)
	if err != nil {
		slog.Error("direct analysis failed", "village", req.VillageInfo.Name, "error", err)
		Error(w, http.StatusBadGateway, "culture analysis failed")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"result": analysis,
	})
}

type designRequest struct {
	CultureAnalysis string `json:"culture_analysis"`
	UserPreference  string `json:"user_preference,omitempty"`
}

// Design runs a one-shot design generation.
// POST /api/design
func (h *Handler) Design(w http.ResponseWriter, r *http.Request) {
	var req designRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CultureAnalysis == "" {
		Error(w, http.StatusBadRequest, "culture_analysis is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	schema, err := h.designer.GenerateDesigns(ctx, req.CultureAnalysis, req.UserPreference)
	if err != nil {
		slog.Error("direct design failed", "error", err)
		Error(w, http.StatusBadGateway, "design generation failed")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"result": schema,
	})
}

type refineRequest struct {
	OriginalDesign string `json:"original_design"`
	UserFeedback   string `json:"user_feedback"`
}

// RefineDesign reworks a design according to feedback.
// POST /api/refine-design
func (h *Handler) RefineDesign(w http.ResponseWriter, r *http.Request) {
	var req refineRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OriginalDesign == "" || req.UserFeedback == "" {
		Error(w, http.StatusBadRequest, "original_design and user_feedback are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	refined, err := h.designer.Refine(ctx, req.OriginalDesign, req.UserFeedback)
	if err != nil {
		slog.Error("design refinement failed", "error", err)
		Error(w, http.StatusBadGateway, "design refinement failed")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"result": refined,
	})
}

type generateImageRequest struct {
	DesignOption    string `json:"design_option"`
	StylePreference string `json:"style_preference,omitempty"`
}

// GenerateImage starts an asynchronous render and returns a task id.
// POST /api/generate-image
func (h *Handler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req generateImageRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DesignOption == "" {
		Error(w, http.StatusBadRequest, "design_option is required")
		return
	}

	taskID := h.tasks.Create()
	go h.runImageTask(taskID, req.DesignOption, req.StylePreference)

	slog.Info("image task started", "task_id", taskID)
	JSON(w, http.StatusAccepted, map[string]any{
		"task_id":  taskID,
		"status":   tasks.StatusPending,
		"progress": 0,
	})
}

// runImageTask walks the fixed progress milestones: 10 when started, 30
// after prompt extraction, 90 after the render, 100 on completion.
func (h *Handler) runImageTask(taskID, designOption, style string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	h.tasks.SetProgress(taskID, 10)

	prompt := h.designer.ExtractImagePrompt(ctx, designOption)
	h.tasks.SetProgress(taskID, 30)

	result, err := h.imager.Generate(ctx, prompt, style)
	if err != nil {
		slog.Error("image task failed", "task_id", taskID, "error", err)
		h.tasks.Fail(taskID, err)
		return
	}
	h.tasks.SetProgress(taskID, 90)

	h.tasks.Complete(taskID, result)
	slog.Info("image task completed", "task_id", taskID, "is_mock", result.IsMock)
}

// GetTask reports the status of a render task.
// GET /api/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, ok := h.tasks.Get(id)
	if !ok {
		Error(w, http.StatusNotFound, "task not found")
		return
	}
	JSON(w, http.StatusOK, task)
}

package api

import (
	"net/http"
	"time"

	"github.com/qiankun25/RuralMuralGenerator/internal/knowledge"
)

// Health reports provider configuration and knowledge base state.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	collections := map[string]any{}
	for _, c := range []string{knowledge.CollectionVillages, knowledge.CollectionDesignCases} {
		if n, err := h.counter.Count(r.Context(), c); err == nil {
			collections[c] = n
		} else {
			collections[c] = "unavailable"
		}
	}

	JSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
		"providers": map[string]bool{
			"dashscope":      h.cfg.HasDashScopeKey(),
			"government_api": h.cfg.GovernmentAPIKey != "",
		},
		"collections": collections,
		"sessions":    h.sessions.Count(),
	})
}

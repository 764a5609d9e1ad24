package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/qiankun25/RuralMuralGenerator/internal/domain"
	"github.com/qiankun25/RuralMuralGenerator/internal/llm"
)

// RouterDecodeError means the classification model returned something that
// is not a valid {action, next_stage} pair.
type RouterDecodeError struct {
	Raw    string
	Reason string
}

func (e *RouterDecodeError) Error() string {
	return fmt.Sprintf("router decode: %s (raw: %q)", e.Reason, e.Raw)
}

// Decision is the router's classification of one user turn.
type Decision struct {
	Action    domain.Action `json:"action"`
	NextStage domain.Stage  `json:"next_stage"`
}

// IntentRouter classifies user intent with a single generation call.
type IntentRouter struct {
	gen     Generator
	prompts llm.Prompts
}

// NewIntentRouter wires the router.
func NewIntentRouter(gen Generator, prompts llm.Prompts) *IntentRouter {
	return &IntentRouter{gen: gen, prompts: prompts}
}

// Route classifies the latest user input against the session snapshot. The
// model output must decode to the closed action and stage enums; anything
// else is a RouterDecodeError.
func (r *IntentRouter) Route(ctx context.Context, snap domain.Snapshot) (Decision, error) {
	pair, err := r.prompts.Get("intent_router")
	if err != nil {
		return Decision{}, err
	}

	userPrompt := llm.Render(pair.User, map[string]string{
		"stage":             string(snap.Stage),
		"last_agent":        string(snap.LastAgent),
		"last_agent_output": snap.LastAgentOutput,
		"user_input":        snap.LastUserInput,
	})

	raw, err := r.gen.Complete(ctx, pair.System, userPrompt, llm.Options{
		Temperature: 0.1,
		MaxTokens:   100,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("intent classification: %w", err)
	}

	decision, err := decodeDecision(raw)
	if err != nil {
		return Decision{}, err
	}

	slog.Info("intent classified",
		"action", decision.Action, "next_stage", decision.NextStage, "stage", snap.Stage)
	return decision, nil
}

// decodeDecision parses the model output, tolerating markdown code fences
// but nothing else.
func decodeDecision(raw string) (Decision, error) {
	payload := strings.TrimSpace(raw)
	payload = strings.TrimPrefix(payload, "```json")
	payload = strings.TrimPrefix(payload, "```")
	payload = strings.TrimSuffix(payload, "```")
	payload = strings.TrimSpace(payload)

	var parsed struct {
		Action    string `json:"action"`
		NextStage string `json:"next_stage"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return Decision{}, &RouterDecodeError{Raw: raw, Reason: "not a JSON object"}
	}

	action := domain.Action(parsed.Action)
	if !action.Valid() {
		return Decision{}, &RouterDecodeError{Raw: raw, Reason: fmt.Sprintf("invalid action %q", parsed.Action)}
	}
	stage := domain.Stage(parsed.NextStage)
	if !stage.Valid() {
		return Decision{}, &RouterDecodeError{Raw: raw, Reason: fmt.Sprintf("invalid next_stage %q", parsed.NextStage)}
	}

	return Decision{Action: action, NextStage: stage}, nil
}

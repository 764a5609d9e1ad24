// Package domain contains core domain types for the mural generation workflow.
package domain

// Stage is one position in the fixed four-step generation pipeline.
type Stage string

const (
	StageInitial Stage = "INITIAL"
	StageCulture Stage = "CULTURE"
	StageDesign  Stage = "DESIGN"
	StageImage   Stage = "IMAGE"
)

// Valid reports whether s is one of the four enumerated stages.
func (s Stage) Valid() bool {
	switch s {
	case StageInitial, StageCulture, StageDesign, StageImage:
		return true
	}
	return false
}

// Action is the router's classification of a user turn.
type Action string

const (
	// ActionNew resets the workflow to INITIAL.
	ActionNew Action = "NEW"
	// ActionConfirm advances the workflow to the router's target stage.
	ActionConfirm Action = "CONFIRM"
	// ActionModify redoes the current stage with the user's feedback folded in.
	ActionModify Action = "MODIFY"
)

// Valid reports whether a is one of the three enumerated actions.
func (a Action) Valid() bool {
	switch a {
	case ActionNew, ActionConfirm, ActionModify:
		return true
	}
	return false
}

// AgentTag identifies which agent produced a message.
type AgentTag string

const (
	AgentManager          AgentTag = "manager"
	AgentCultureAnalyst   AgentTag = "culture_analyst"
	AgentCreativeDesigner AgentTag = "creative_designer"
	AgentImageGenerator   AgentTag = "image_generator"
)

package domain

import (
	"time"
)

// Role distinguishes the two message authors.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Message is one conversation entry. Messages are immutable once appended
// and ordering is significant.
type Message struct {
	Role     string   `json:"role"`
	Content  string   `json:"content"`
	AgentTag AgentTag `json:"agent_tag,omitempty"`
}

// Snapshot is the compact view of a session the intent router classifies
// against.
type Snapshot struct {
	Stage           Stage    `json:"stage"`
	LastAgent       AgentTag `json:"last_agent,omitempty"`
	LastAgentOutput string   `json:"last_agent_output"`
	LastUserInput   string   `json:"last_user_input"`
}

// Session is one conversation instance held in process memory.
type Session struct {
	ID        string       `json:"id"`
	OwnerID   string       `json:"owner_id,omitempty"`
	Stage     Stage        `json:"stage"`
	LastAgent AgentTag     `json:"last_agent,omitempty"`
	Messages  []Message    `json:"messages"`
	Data      WorkflowData `json:"workflow_data"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewSession returns a session positioned at INITIAL with empty slots.
func NewSession(id, ownerID string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		OwnerID:   ownerID,
		Stage:     StageInitial,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddUserMessage appends a user message.
func (s *Session) AddUserMessage(content string) {
	s.Messages = append(s.Messages, Message{Role: RoleUser, Content: content})
	s.UpdatedAt = time.Now()
}

// AddAgentMessage appends an agent message and records the agent as the
// last one to speak.
func (s *Session) AddAgentMessage(tag AgentTag, content string) {
	s.Messages = append(s.Messages, Message{Role: RoleAgent, Content: content, AgentTag: tag})
	s.LastAgent = tag
	s.UpdatedAt = time.Now()
}

// LastUserInput returns the most recent user message content, scanning from
// the tail, or "" when there is none.
func (s *Session) LastUserInput() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// LastAgentOutput returns the most recent agent message content, or "".
func (s *Session) LastAgentOutput() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAgent {
			return s.Messages[i].Content
		}
	}
	return ""
}

// AgentOutput returns the most recent output of a specific agent, or "".
func (s *Session) AgentOutput(tag AgentTag) string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == RoleAgent && m.AgentTag == tag {
			return m.Content
		}
	}
	return ""
}

// Snapshot returns the router's view of the session.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Stage:           s.Stage,
		LastAgent:       s.LastAgent,
		LastAgentOutput: s.LastAgentOutput(),
		LastUserInput:   s.LastUserInput(),
	}
}

// ResetToInitial performs the NEW action: back to INITIAL, all slots
// cleared, message history truncated to at most the most recent entry.
func (s *Session) ResetToInitial() {
	s.Stage = StageInitial
	s.LastAgent = ""
	s.Data.Reset()
	if n := len(s.Messages); n > 1 {
		s.Messages = []Message{s.Messages[n-1]}
	}
	s.UpdatedAt = time.Now()
}

package domain

import (
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// NoResponsesText is the synthesized text of a session with no messages.
const NoResponsesText = "No responses available."

// MessageKind distinguishes a normal reply from a recorded failure.
type MessageKind string

const (
	KindResponse MessageKind = "response"
	KindError    MessageKind = "error"
)

// MessageMetadata carries structured flags about one agent message.
type MessageMetadata struct {
	Success               bool   `json:"success"`
	HasCode               bool   `json:"has_code"`
	SuggestsCollaboration bool   `json:"suggests_collaboration"`
	Error                 string `json:"error,omitempty"`
}

// AgentMessage is one entry in a collaboration log. Messages are never
// edited once appended.
type AgentMessage struct {
	AgentID    string          `json:"agent_id"`
	AgentLabel string          `json:"agent_label"`
	Content    string          `json:"content"`
	Timestamp  time.Time       `json:"timestamp"`
	Kind       MessageKind     `json:"kind"`
	Metadata   MessageMetadata `json:"metadata"`
}

// SessionStatus is the lifecycle state of a CollaborationSession.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

// CollaborationSession records one routing decision's execution. It is
// mutated only by the strategy running it and is read-only once its status
// leaves active.
type CollaborationSession struct {
	mu sync.RWMutex

	ID            string         `json:"id"`
	Query         string         `json:"query"`
	Primary       string         `json:"primary"`
	Supporting    []string       `json:"supporting"`
	Mode          Mode           `json:"mode"`
	Messages      []AgentMessage `json:"messages"`
	Status        SessionStatus  `json:"status"`
	FinalResponse string         `json:"final_response,omitempty"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   time.Time      `json:"completed_at,omitzero"`
}

// NewSession creates an active session from a query and its routing decision.
func NewSession(query string, d RoutingDecision) *CollaborationSession {
	supporting := make([]string, len(d.Supporting))
	copy(supporting, d.Supporting)
	mode := d.Mode
	if mode == "" {
		mode = ModeSingle
	}
	return &CollaborationSession{
		ID:         ulid.Make().String(),
		Query:      query,
		Primary:    d.Primary,
		Supporting: supporting,
		Mode:       mode,
		Status:     StatusActive,
		CreatedAt:  time.Now(),
	}
}

// AddMessage appends msg. It returns ErrSessionClosed once the session has
// reached a terminal state.
func (s *CollaborationSession) AddMessage(msg AgentMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != StatusActive {
		return NewDomainError("CollaborationSession.AddMessage", ErrSessionClosed, s.ID)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.AgentLabel == "" {
		msg.AgentLabel = msg.AgentID
	}
	s.Messages = append(s.Messages, msg)
	return nil
}

// ContextFor returns every prior message not written by agentID, in
// arrival order. The result is never nil.
func (s *CollaborationSession) ContextFor(agentID string) []CollaborationEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CollaborationEntry, 0, len(s.Messages))
	for _, m := range s.Messages {
		if m.AgentID == agentID {
			continue
		}
		out = append(out, CollaborationEntry{Agent: m.AgentLabel, Response: m.Content, Kind: m.Kind})
	}
	return out
}

// Synthesize combines all messages into one text. It has no side effects.
func (s *CollaborationSession) Synthesize() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch len(s.Messages) {
	case 0:
		return NoResponsesText
	case 1:
		return s.Messages[0].Content
	}

	var b strings.Builder
	b.WriteString("**Multi-Agent Collaboration Response**\n\n")
	b.WriteString("Query: " + s.Query + "\n\n")
	b.WriteString("---\n\n")
	for i, m := range s.Messages {
		if i > 0 {
			b.WriteString("---\n\n")
		}
		b.WriteString("### " + m.AgentLabel + "\n\n")
		b.WriteString(m.Content + "\n\n")
	}
	return b.String()
}

// Complete marks the session completed and stores the synthesized text.
func (s *CollaborationSession) Complete() error {
	final := s.Synthesize()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != StatusActive {
		return NewDomainError("CollaborationSession.Complete", ErrSessionClosed, s.ID)
	}
	s.Status = StatusCompleted
	s.FinalResponse = final
	s.CompletedAt = time.Now()
	return nil
}

// Fail marks the session failed with reason.
func (s *CollaborationSession) Fail(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != StatusActive {
		return NewDomainError("CollaborationSession.Fail", ErrSessionClosed, s.ID)
	}
	s.Status = StatusFailed
	s.Error = reason
	s.CompletedAt = time.Now()
	return nil
}

// Snapshot returns the current status and a copy of the messages.
func (s *CollaborationSession) Snapshot() (SessionStatus, []AgentMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]AgentMessage, len(s.Messages))
	copy(msgs, s.Messages)
	return s.Status, msgs
}

// AgentsUsed returns the distinct agent ids that contributed messages, in
// arrival order. A session without messages reports none.
func (s *CollaborationSession) AgentsUsed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool, len(s.Messages))
	out := []string{}
	for _, m := range s.Messages {
		if seen[m.AgentID] {
			continue
		}
		seen[m.AgentID] = true
		out = append(out, m.AgentID)
	}
	return out
}

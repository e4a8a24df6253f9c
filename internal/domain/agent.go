package domain

import "context"

// Output kinds an agent can feed into the result projection.
const (
	OutputSQL  = "sql"
	OutputCode = "code"
)

// AgentDescriptor describes a routable responder. Descriptors are built at
// startup and never mutated afterwards.
type AgentDescriptor struct {
	ID          string   `json:"id"                yaml:"id"`
	Name        string   `json:"name"              yaml:"name"`
	Keywords    []string `json:"keywords"          yaml:"keywords"`
	Description string   `json:"description"       yaml:"description"`
	Output      string   `json:"output,omitempty"  yaml:"output,omitempty"`
}

// CollaborationEntry is a prior agent response shown to a later agent in a
// sequential run.
type CollaborationEntry struct {
	Agent    string      `json:"agent"`
	Response string      `json:"response"`
	Kind     MessageKind `json:"kind"`
}

// ResponderRequest is the input handed to a Responder.
// Collaboration is nil for single and parallel runs and non-nil (possibly
// empty) for sequential runs.
type ResponderRequest struct {
	Query            string
	KnowledgeContext string
	Collaboration    []CollaborationEntry
}

// ResponderResult is what a Responder returns. A result with Success false
// is recorded as an error message whose text is Content.
type ResponderResult struct {
	Content               string
	Success               bool
	HasCode               bool
	SuggestsCollaboration bool
	CodeBlocks            []string
}

// Responder answers a query on behalf of one agent.
type Responder interface {
	Process(ctx context.Context, req ResponderRequest) (*ResponderResult, error)
}

// ResponderFunc adapts a plain function to the Responder interface.
type ResponderFunc func(ctx context.Context, req ResponderRequest) (*ResponderResult, error)

// Process calls f(ctx, req).
func (f ResponderFunc) Process(ctx context.Context, req ResponderRequest) (*ResponderResult, error) {
	return f(ctx, req)
}

// Retriever supplies optional knowledge context for an agent. An empty
// string means nothing relevant was found.
type Retriever interface {
	Retrieve(ctx context.Context, query, agentID string) (string, error)
}

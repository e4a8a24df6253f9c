package domain

// Result is the caller-facing projection of a finished CollaborationSession.
type Result struct {
	SessionID      string     `json:"session_id,omitempty"`
	Success        bool       `json:"success"`
	Mode           Mode       `json:"mode"`
	AgentsUsed     []string   `json:"agents_used"`
	Confidence     Confidence `json:"confidence"`
	Reasoning      string     `json:"reasoning,omitempty"`
	FinalResponse  string     `json:"final_response"`
	SQL            string     `json:"sql,omitempty"`
	CodeExample    string     `json:"code_example,omitempty"`
	ExecutionError string     `json:"execution_error,omitempty"`
}

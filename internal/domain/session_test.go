package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) *CollaborationSession {
	t.Helper()
	return NewSession("how do I join orders", RoutingDecision{
		Primary:    "sql",
		Supporting: []string{"csharp"},
		Mode:       ModeSequential,
	})
}

func TestNewSession(t *testing.T) {
	s := newTestSession(t)
	assert.Len(t, s.ID, 26)
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, ModeSequential, s.Mode)
	assert.Equal(t, []string{"csharp"}, s.Supporting)
	assert.False(t, s.CreatedAt.IsZero())
}

func TestNewSessionDefaultsMode(t *testing.T) {
	s := NewSession("q", RoutingDecision{Primary: "general"})
	if s.Mode != ModeSingle {
		t.Errorf("Mode = %q, want single", s.Mode)
	}
}

func TestSynthesizeEmpty(t *testing.T) {
	s := newTestSession(t)
	if got := s.Synthesize(); got != NoResponsesText {
		t.Errorf("Synthesize() = %q, want %q", got, NoResponsesText)
	}
}

func TestSynthesizeSingleMessageVerbatim(t *testing.T) {
	s := newTestSession(t)
	content := "SELECT *\nFROM orders\n\n  -- trailing"
	require.NoError(t, s.AddMessage(AgentMessage{AgentID: "sql", AgentLabel: "SQL", Content: content, Kind: KindResponse}))
	assert.Equal(t, content, s.Synthesize())
}

func TestSynthesizeMultiple(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.AddMessage(AgentMessage{AgentID: "sql", AgentLabel: "SQL", Content: "a", Kind: KindResponse}))
	require.NoError(t, s.AddMessage(AgentMessage{AgentID: "csharp", AgentLabel: "C#", Content: "Error: boom", Kind: KindError}))

	want := "**Multi-Agent Collaboration Response**\n\n" +
		"Query: how do I join orders\n\n" +
		"---\n\n" +
		"### SQL\n\na\n\n" +
		"---\n\n" +
		"### C#\n\nError: boom\n\n"
	assert.Equal(t, want, s.Synthesize())
}

func TestSynthesizeIdempotent(t *testing.T) {
	s := newTestSession(t)
	for _, id := range []string{"sql", "csharp", "general"} {
		require.NoError(t, s.AddMessage(AgentMessage{AgentID: id, Content: "from " + id}))
	}
	first := s.Synthesize()
	for range 3 {
		if got := s.Synthesize(); got != first {
			t.Fatalf("Synthesize changed between calls")
		}
	}
	_, msgs := s.Snapshot()
	assert.Len(t, msgs, 3)
}

func TestAddMessageDefaults(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.AddMessage(AgentMessage{AgentID: "sql", Content: "x"}))
	_, msgs := s.Snapshot()
	assert.Equal(t, "sql", msgs[0].AgentLabel)
	assert.False(t, msgs[0].Timestamp.IsZero())
}

func TestContextForExcludesSelf(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.AddMessage(AgentMessage{AgentID: "sql", AgentLabel: "SQL", Content: "one", Kind: KindResponse}))
	require.NoError(t, s.AddMessage(AgentMessage{AgentID: "csharp", AgentLabel: "C#", Content: "two", Kind: KindError}))
	require.NoError(t, s.AddMessage(AgentMessage{AgentID: "sql", AgentLabel: "SQL", Content: "three", Kind: KindResponse}))

	ctx := s.ContextFor("sql")
	require.Len(t, ctx, 1)
	assert.Equal(t, CollaborationEntry{Agent: "C#", Response: "two", Kind: KindError}, ctx[0])

	all := s.ContextFor("epicor")
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Response)
	assert.Equal(t, "three", all[2].Response)
}

func TestContextForEmptyIsNonNil(t *testing.T) {
	s := newTestSession(t)
	ctx := s.ContextFor("sql")
	if ctx == nil {
		t.Fatal("ContextFor returned nil")
	}
	if len(ctx) != 0 {
		t.Errorf("len = %d, want 0", len(ctx))
	}
}

func TestCompleteSetsFinalResponse(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.AddMessage(AgentMessage{AgentID: "sql", Content: "answer"}))
	require.NoError(t, s.Complete())

	assert.Equal(t, StatusCompleted, s.Status)
	assert.Equal(t, "answer", s.FinalResponse)
	assert.False(t, s.CompletedAt.IsZero())
}

func TestTerminalStateIsFinal(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Fail("unknown agent: ghost"))

	err := s.Complete()
	if !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Complete after Fail: got %v, want ErrSessionClosed", err)
	}
	err = s.AddMessage(AgentMessage{AgentID: "sql", Content: "late"})
	if !errors.Is(err, ErrSessionClosed) {
		t.Errorf("AddMessage after Fail: got %v, want ErrSessionClosed", err)
	}
	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, "unknown agent: ghost", s.Error)
	assert.Empty(t, s.Messages)
}

func TestAgentsUsed(t *testing.T) {
	s := newTestSession(t)
	assert.Equal(t, []string{}, s.AgentsUsed())

	require.NoError(t, s.AddMessage(AgentMessage{AgentID: "csharp", Content: "a"}))
	require.NoError(t, s.AddMessage(AgentMessage{AgentID: "sql", Content: "b"}))
	require.NoError(t, s.AddMessage(AgentMessage{AgentID: "csharp", Content: "c"}))
	assert.Equal(t, []string{"csharp", "sql"}, s.AgentsUsed())
}

func TestSynthesizeLabelsInArrivalOrder(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.AddMessage(AgentMessage{AgentID: "b", AgentLabel: "B", Content: "second"}))
	require.NoError(t, s.AddMessage(AgentMessage{AgentID: "a", AgentLabel: "A", Content: "first"}))
	out := s.Synthesize()
	if strings.Index(out, "### B") > strings.Index(out, "### A") {
		t.Errorf("labels out of arrival order:\n%s", out)
	}
}

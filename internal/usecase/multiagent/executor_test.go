package multiagent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmux/internal/domain"
)

// recordingResponder captures every request it receives.
type recordingResponder struct {
	mu       sync.Mutex
	id       string
	delay    time.Duration
	err      error
	requests []domain.ResponderRequest
}

func (r *recordingResponder) Process(ctx context.Context, req domain.ResponderRequest) (*domain.ResponderResult, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &domain.ResponderResult{Content: "answer from " + r.id, Success: true}, nil
}

func (r *recordingResponder) lastRequest(t *testing.T) domain.ResponderRequest {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.requests, "responder %s was not called", r.id)
	return r.requests[len(r.requests)-1]
}

type mapLookup map[string]domain.Responder

func (m mapLookup) Responder(id string) (domain.Responder, bool) {
	r, ok := m[id]
	return r, ok
}

func (m mapLookup) Label(id string) string { return "Agent " + id }

type fakeRetriever struct {
	err   error
	calls atomic.Int32
}

func (f *fakeRetriever) Retrieve(_ context.Context, query, agentID string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "kb for " + agentID, nil
}

type panicRetriever struct{}

func (panicRetriever) Retrieve(context.Context, string, string) (string, error) {
	panic("index closed")
}

func newSession(mode domain.Mode, primary string, supporting ...string) *domain.CollaborationSession {
	return domain.NewSession("the query", domain.RoutingDecision{Primary: primary, Supporting: supporting, Mode: mode})
}

func messageAgents(s *domain.CollaborationSession) []string {
	_, msgs := s.Snapshot()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.AgentID
	}
	return out
}

func TestSingleStrategy(t *testing.T) {
	p := &recordingResponder{id: "p"}
	s := &recordingResponder{id: "s"}
	session := newSession(domain.ModeSingle, "p")
	session.Supporting = []string{"s"}

	NewExecutor().Strategy(domain.ModeSingle).Execute(context.Background(), session, mapLookup{"p": p, "s": s}, &fakeRetriever{})

	assert.Equal(t, domain.StatusCompleted, session.Status)
	assert.Equal(t, []string{"p"}, messageAgents(session))
	assert.Empty(t, s.requests)

	req := p.lastRequest(t)
	assert.Nil(t, req.Collaboration)
	assert.Equal(t, "kb for p", req.KnowledgeContext)
	assert.Equal(t, "answer from p", session.FinalResponse)
}

func TestSequentialOrderUnderDelay(t *testing.T) {
	p := &recordingResponder{id: "p", delay: 30 * time.Millisecond}
	s1 := &recordingResponder{id: "s1"}
	s2 := &recordingResponder{id: "s2", delay: 10 * time.Millisecond}
	session := newSession(domain.ModeSequential, "p", "s1", "s2")

	NewExecutor().Run(context.Background(), session, mapLookup{"p": p, "s1": s1, "s2": s2}, nil)

	assert.Equal(t, domain.StatusCompleted, session.Status)
	assert.Equal(t, []string{"p", "s1", "s2"}, messageAgents(session))
}

func TestSequentialContextSeesPriorAgents(t *testing.T) {
	p := &recordingResponder{id: "p"}
	s1 := &recordingResponder{id: "s1"}
	s2 := &recordingResponder{id: "s2"}
	session := newSession(domain.ModeSequential, "p", "s1", "s2")

	NewExecutor().Run(context.Background(), session, mapLookup{"p": p, "s1": s1, "s2": s2}, nil)

	first := p.lastRequest(t).Collaboration
	require.NotNil(t, first, "sequential context must be non-nil")
	assert.Empty(t, first)

	second := s1.lastRequest(t).Collaboration
	require.Len(t, second, 1)
	assert.Equal(t, domain.CollaborationEntry{Agent: "Agent p", Response: "answer from p", Kind: domain.KindResponse}, second[0])

	third := s2.lastRequest(t).Collaboration
	require.Len(t, third, 2)
	assert.Equal(t, "Agent p", third[0].Agent)
	assert.Equal(t, "Agent s1", third[1].Agent)
}

func TestSequentialSkipsMissingSupporting(t *testing.T) {
	p := &recordingResponder{id: "p"}
	s2 := &recordingResponder{id: "s2"}
	session := newSession(domain.ModeSequential, "p", "missing", "s2")

	NewExecutor().Run(context.Background(), session, mapLookup{"p": p, "s2": s2}, nil)

	assert.Equal(t, domain.StatusCompleted, session.Status)
	assert.Equal(t, []string{"p", "s2"}, messageAgents(session))
}

func TestParallelContextIsNil(t *testing.T) {
	p := &recordingResponder{id: "p"}
	s1 := &recordingResponder{id: "s1"}
	s2 := &recordingResponder{id: "s2"}
	session := newSession(domain.ModeParallel, "p", "s1", "s2")

	NewExecutor().Run(context.Background(), session, mapLookup{"p": p, "s1": s1, "s2": s2}, &fakeRetriever{})

	for _, r := range []*recordingResponder{p, s1, s2} {
		req := r.lastRequest(t)
		assert.Nil(t, req.Collaboration, "agent %s got collaboration context", r.id)
		assert.Equal(t, "the query", req.Query)
		assert.Equal(t, "kb for "+r.id, req.KnowledgeContext)
	}
}

func TestParallelAppendsInDeclaredOrder(t *testing.T) {
	p := &recordingResponder{id: "p", delay: 40 * time.Millisecond}
	s1 := &recordingResponder{id: "s1", delay: 20 * time.Millisecond}
	s2 := &recordingResponder{id: "s2"}
	session := newSession(domain.ModeParallel, "p", "s1", "s2")

	NewExecutor(WithParallelLimit(3)).Run(context.Background(), session, mapLookup{"p": p, "s1": s1, "s2": s2}, nil)

	assert.Equal(t, []string{"p", "s1", "s2"}, messageAgents(session))
}

func TestParallelRunsConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := domain.ResponderFunc(func(ctx context.Context, _ domain.ResponderRequest) (*domain.ResponderResult, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		return &domain.ResponderResult{Content: "ok", Success: true}, nil
	})
	session := newSession(domain.ModeParallel, "a", "b", "c")

	NewExecutor(WithParallelLimit(2)).Run(context.Background(), session, mapLookup{"a": slow, "b": slow, "c": slow}, nil)

	assert.Equal(t, int32(2), peak.Load())
	assert.Len(t, session.Messages, 3)
}

func TestFailureIsolation(t *testing.T) {
	for _, mode := range []domain.Mode{domain.ModeSequential, domain.ModeParallel} {
		t.Run(string(mode), func(t *testing.T) {
			p := &recordingResponder{id: "p"}
			s1 := &recordingResponder{id: "s1", err: errors.New("upstream 500")}
			s2 := &recordingResponder{id: "s2"}
			session := newSession(mode, "p", "s1", "s2")

			NewExecutor().Run(context.Background(), session, mapLookup{"p": p, "s1": s1, "s2": s2}, nil)

			assert.Equal(t, domain.StatusCompleted, session.Status)
			_, msgs := session.Snapshot()
			require.Len(t, msgs, 3)
			assert.Equal(t, domain.KindResponse, msgs[0].Kind)
			assert.Equal(t, domain.KindError, msgs[1].Kind)
			assert.Equal(t, "Error: upstream 500", msgs[1].Content)
			assert.False(t, msgs[1].Metadata.Success)
			assert.Equal(t, domain.KindResponse, msgs[2].Kind)
			assert.Contains(t, session.FinalResponse, "### Agent s1\n\nError: upstream 500")
		})
	}
}

func TestSequentialLaterAgentSeesEarlierFailure(t *testing.T) {
	p := &recordingResponder{id: "p", err: errors.New("boom")}
	s1 := &recordingResponder{id: "s1"}
	session := newSession(domain.ModeSequential, "p", "s1")

	NewExecutor().Run(context.Background(), session, mapLookup{"p": p, "s1": s1}, nil)

	ctx := s1.lastRequest(t).Collaboration
	require.Len(t, ctx, 1)
	assert.Equal(t, domain.KindError, ctx[0].Kind)
	assert.Equal(t, "Error: boom", ctx[0].Response)
}

func TestUnknownPrimaryFailsSession(t *testing.T) {
	for _, mode := range []domain.Mode{domain.ModeSingle, domain.ModeSequential, domain.ModeParallel} {
		t.Run(string(mode), func(t *testing.T) {
			s1 := &recordingResponder{id: "s1"}
			session := newSession(mode, "ghost", "s1")

			NewExecutor().Run(context.Background(), session, mapLookup{"s1": s1}, nil)

			assert.Equal(t, domain.StatusFailed, session.Status)
			assert.Empty(t, session.Messages)
			assert.Empty(t, s1.requests)
			assert.Contains(t, session.Error, "unknown agent")
		})
	}
}

func TestEnrichmentFailureSwallowed(t *testing.T) {
	p := &recordingResponder{id: "p"}
	session := newSession(domain.ModeSingle, "p")

	NewExecutor().Run(context.Background(), session, mapLookup{"p": p}, &fakeRetriever{err: errors.New("kb offline")})

	assert.Equal(t, domain.StatusCompleted, session.Status)
	assert.Equal(t, "", p.lastRequest(t).KnowledgeContext)
	assert.Equal(t, domain.KindResponse, session.Messages[0].Kind)
}

func TestEnrichmentPanicSwallowed(t *testing.T) {
	for _, mode := range []domain.Mode{domain.ModeSingle, domain.ModeSequential, domain.ModeParallel} {
		t.Run(string(mode), func(t *testing.T) {
			p := &recordingResponder{id: "p"}
			s := &recordingResponder{id: "s"}
			session := newSession(mode, "p", "s")
			if mode == domain.ModeSingle {
				session = newSession(mode, "p")
			}

			require.NotPanics(t, func() {
				NewExecutor().Run(context.Background(), session, mapLookup{"p": p, "s": s}, panicRetriever{})
			})

			status, msgs := session.Snapshot()
			assert.Equal(t, domain.StatusCompleted, status)
			require.NotEmpty(t, msgs)
			for _, m := range msgs {
				assert.Equal(t, domain.KindResponse, m.Kind, m.AgentID)
			}
			assert.Equal(t, "", p.lastRequest(t).KnowledgeContext)
		})
	}
}

func TestUnsuccessfulResultRecordedAsError(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"with reason", "table orders not found", "Error: responder failed: table orders not found"},
		{"no reason", "  ", "Error: responder failed: responder reported failure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := domain.ResponderFunc(func(context.Context, domain.ResponderRequest) (*domain.ResponderResult, error) {
				return &domain.ResponderResult{Content: tt.content}, nil
			})
			session := newSession(domain.ModeSingle, "p")

			NewExecutor().Run(context.Background(), session, mapLookup{"p": p}, nil)

			assert.Equal(t, domain.StatusCompleted, session.Status)
			require.Len(t, session.Messages, 1)
			assert.Equal(t, domain.KindError, session.Messages[0].Kind)
			assert.Equal(t, tt.want, session.Messages[0].Content)
			assert.False(t, session.Messages[0].Metadata.Success)
		})
	}
}

func TestResponderPanicRecorded(t *testing.T) {
	bad := domain.ResponderFunc(func(context.Context, domain.ResponderRequest) (*domain.ResponderResult, error) {
		panic("nil map")
	})
	session := newSession(domain.ModeSingle, "p")

	NewExecutor().Run(context.Background(), session, mapLookup{"p": bad}, nil)

	assert.Equal(t, domain.StatusCompleted, session.Status)
	require.Len(t, session.Messages, 1)
	assert.Equal(t, domain.KindError, session.Messages[0].Kind)
	assert.Contains(t, session.Messages[0].Content, "panic: nil map")
}

func TestCancelledRunRecordsCancelledAgents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := domain.ResponderFunc(func(context.Context, domain.ResponderRequest) (*domain.ResponderResult, error) {
		cancel()
		return &domain.ResponderResult{Content: "done before cancel", Success: true}, nil
	})
	s1 := &recordingResponder{id: "s1"}
	session := newSession(domain.ModeSequential, "p", "s1")

	NewExecutor().Run(ctx, session, mapLookup{"p": p, "s1": s1}, nil)

	assert.Equal(t, domain.StatusCompleted, session.Status)
	_, msgs := session.Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, "done before cancel", msgs[0].Content)
	assert.Equal(t, "Error: cancelled", msgs[1].Content)
	assert.Empty(t, s1.requests)
}

func TestHasCodeDetected(t *testing.T) {
	coder := domain.ResponderFunc(func(context.Context, domain.ResponderRequest) (*domain.ResponderResult, error) {
		return &domain.ResponderResult{Content: "```sql\nSELECT 1\n```", SuggestsCollaboration: true, Success: true}, nil
	})
	session := newSession(domain.ModeSingle, "p")

	NewExecutor().Run(context.Background(), session, mapLookup{"p": coder}, nil)

	meta := session.Messages[0].Metadata
	assert.True(t, meta.Success)
	assert.True(t, meta.HasCode)
	assert.True(t, meta.SuggestsCollaboration)
}

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}
func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                 { return func() {} }
func (b *recordingBus) Close()                                                  {}

func (b *recordingBus) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

func TestExecutorPublishesAgentEvents(t *testing.T) {
	bus := &recordingBus{}
	session := newSession(domain.ModeSequential, "p", "s1")

	NewExecutor(WithExecutorEventBus(bus)).Run(context.Background(), session,
		mapLookup{"p": &recordingResponder{id: "p"}, "s1": &recordingResponder{id: "s1"}}, nil)

	assert.Equal(t, []domain.EventType{domain.EventAgentResponded, domain.EventAgentResponded}, bus.types())
}

package multiagent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmux/internal/domain"
	"agentmux/internal/infra/metrics"
)

// fakeProvider is a scripted LLMProvider.
type fakeProvider struct {
	mu      sync.Mutex
	reply   string
	err     error
	panicV  any
	delay   time.Duration
	calls   int
	lastReq domain.ChatRequest
}

func (f *fakeProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	f.mu.Unlock()

	if f.panicV != nil {
		panic(f.panicV)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: f.reply}}, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func stockRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry("general", nil)
	descs := []domain.AgentDescriptor{
		{ID: "general", Name: "General Assistant", Keywords: []string{"explain", "what"}},
		{ID: "sql", Name: "SQL Expert", Keywords: []string{"query", "select", "database"}, Output: domain.OutputSQL},
		{ID: "csharp", Name: "C# Expert", Keywords: []string{"c#", "linq"}, Output: domain.OutputCode},
		{ID: "epicor", Name: "Epicor P21 Specialist", Keywords: []string{"epicor", "p21"}},
	}
	for _, d := range descs {
		require.NoError(t, r.Register(d, echoResponder(d.ID)))
	}
	return r
}

func TestClassifierUsesLLMDecision(t *testing.T) {
	p := &fakeProvider{reply: "PRIMARY: epicor\nSUPPORTING: sql, epicor, sql\nMODE: parallel\nCONFIDENCE: high\nREASONING: erp data"}
	c := NewClassifier(stockRegistry(t), WithProvider(p, "test-model"))

	d := c.Route(context.Background(), "export P21 orders")
	assert.Equal(t, "epicor", d.Primary)
	assert.Equal(t, []string{"sql"}, d.Supporting)
	assert.Equal(t, domain.ModeParallel, d.Mode)
	assert.Equal(t, domain.ConfidenceHigh, d.Confidence)
	assert.Equal(t, domain.SourceLLM, d.Source)
	assert.Equal(t, 1, p.calls)

	require.Len(t, p.lastReq.Messages, 2)
	assert.Equal(t, "test-model", p.lastReq.Model)
	assert.Contains(t, p.lastReq.Messages[0].Content, "- sql (SQL Expert)")
	assert.Contains(t, p.lastReq.Messages[0].Content, "PRIMARY:")
	assert.Equal(t, "export P21 orders", p.lastReq.Messages[1].Content)
}

func TestClassifierEmptySupportingForcesSingle(t *testing.T) {
	p := &fakeProvider{reply: "PRIMARY: sql\nSUPPORTING: none\nMODE: sequential\nCONFIDENCE: high"}
	c := NewClassifier(stockRegistry(t), WithProvider(p, ""))

	d := c.Route(context.Background(), "anything")
	assert.Equal(t, domain.ModeSingle, d.Mode)
	assert.Empty(t, d.Supporting)
}

func TestClassifierInconclusiveFallsBackToKeywords(t *testing.T) {
	p := &fakeProvider{reply: "not following the format"}
	c := NewClassifier(stockRegistry(t), WithProvider(p, ""))

	d := c.Route(context.Background(), "select count from the database")
	assert.Equal(t, "sql", d.Primary)
	assert.Empty(t, d.Supporting)
	assert.Equal(t, domain.ModeSingle, d.Mode)
	assert.Equal(t, domain.ConfidenceLow, d.Confidence)
	assert.Equal(t, domain.SourceKeyword, d.Source)
	assert.True(t, strings.HasPrefix(d.Reasoning, "inconclusive classification"))
}

func TestClassifierDefaultWithHighConfidenceIsKept(t *testing.T) {
	p := &fakeProvider{reply: "PRIMARY: general\nMODE: single\nCONFIDENCE: high\nREASONING: small talk"}
	c := NewClassifier(stockRegistry(t), WithProvider(p, ""))

	d := c.Route(context.Background(), "select something from the database")
	assert.Equal(t, "general", d.Primary)
	assert.Equal(t, domain.SourceLLM, d.Source)
}

func TestClassifierProviderErrorFallsBack(t *testing.T) {
	p := &fakeProvider{err: domain.ErrRateLimit}
	c := NewClassifier(stockRegistry(t), WithProvider(p, ""))

	d := c.Route(context.Background(), "write a LINQ query over the database")
	assert.Equal(t, domain.ConfidenceLow, d.Confidence)
	assert.Equal(t, domain.SourceFallback, d.Source)
	assert.Contains(t, d.Reasoning, "classification failed")
	assert.Contains(t, d.Reasoning, "rate limit exceeded")
	// sql: query + database = 2, csharp: linq = 1.
	assert.Equal(t, "sql", d.Primary)
	assert.Equal(t, []string{"csharp"}, d.Supporting)
	assert.Equal(t, domain.ModeSequential, d.Mode)
}

func TestClassifierPanicRecovered(t *testing.T) {
	p := &fakeProvider{panicV: "boom"}
	c := NewClassifier(stockRegistry(t), WithProvider(p, ""))

	d := c.Route(context.Background(), "select")
	assert.Equal(t, "general", d.Primary)
	assert.Equal(t, domain.ModeSingle, d.Mode)
	assert.Equal(t, domain.ConfidenceLow, d.Confidence)
	assert.Equal(t, "classification failed: panic: boom", d.Reasoning)
}

func TestClassifierTimeout(t *testing.T) {
	p := &fakeProvider{delay: time.Second, reply: "PRIMARY: sql\nCONFIDENCE: high"}
	c := NewClassifier(stockRegistry(t), WithProvider(p, ""), WithClassifyTimeout(10*time.Millisecond))

	d := c.Route(context.Background(), "explain p21")
	assert.Equal(t, domain.SourceFallback, d.Source)
	assert.Contains(t, d.Reasoning, context.DeadlineExceeded.Error())
}

func TestClassifierNoProvider(t *testing.T) {
	c := NewClassifier(stockRegistry(t))

	d := c.Route(context.Background(), "select count from the database")
	assert.Equal(t, "sql", d.Primary)
	assert.Equal(t, domain.SourceKeyword, d.Source)
	assert.True(t, strings.HasPrefix(d.Reasoning, domain.ErrNoProvider.Error()))
}

func TestClassifierPrefixOverride(t *testing.T) {
	p := &fakeProvider{reply: "PRIMARY: sql\nCONFIDENCE: high"}
	c := NewClassifier(stockRegistry(t), WithProvider(p, ""))

	d, effective := c.Classify(context.Background(), "@epicor how do exports work")
	assert.Equal(t, "epicor", d.Primary)
	assert.Equal(t, domain.SourcePrefix, d.Source)
	assert.Equal(t, "how do exports work", effective)
	assert.Equal(t, 0, p.calls, "prefix routing must not call the provider")
}

func TestClassifierPrefixOverrideDisabled(t *testing.T) {
	c := NewClassifier(stockRegistry(t), WithPrefixOverride(false))

	d, effective := c.Classify(context.Background(), "@epicor select it")
	assert.Equal(t, "sql", d.Primary)
	assert.Equal(t, "@epicor select it", effective)
}

func TestClassifierRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(reg)
	c := NewClassifier(stockRegistry(t), WithClassifierMetrics(m))

	c.Route(context.Background(), "nothing matches here")

	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() == "agentmux_router_decisions_total" {
			for _, metric := range f.GetMetric() {
				total += metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, total)
}

func TestClassifierFallbackDeterminism(t *testing.T) {
	p := &fakeProvider{err: errors.New("unavailable")}
	c := NewClassifier(stockRegistry(t), WithProvider(p, ""))

	first := c.Route(context.Background(), "linq c# linq")
	for range 10 {
		d := c.Route(context.Background(), "linq c# linq")
		assert.Equal(t, first, d)
	}
	assert.Equal(t, "csharp", first.Primary)
	assert.Equal(t, domain.ConfidenceLow, first.Confidence)
}

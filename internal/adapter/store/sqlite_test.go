package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"agentmux/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteSessionStore {
	t.Helper()
	store, err := NewSQLiteSessionStore(filepath.Join(t.TempDir(), "data", "sessions.db"))
	if err != nil {
		t.Fatalf("NewSQLiteSessionStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func completedSession(t *testing.T, query, primary string, replies ...string) *domain.CollaborationSession {
	t.Helper()
	s := domain.NewSession(query, domain.RoutingDecision{Primary: primary, Mode: domain.ModeSingle})
	for _, r := range replies {
		if err := s.AddMessage(domain.AgentMessage{AgentID: primary, Content: r, Kind: domain.KindResponse,
			Metadata: domain.MessageMetadata{Success: true}}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Complete(); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := domain.NewSession("join orders to customers", domain.RoutingDecision{
		Primary: "sql", Supporting: []string{"csharp"}, Mode: domain.ModeSequential,
	})
	_ = sess.AddMessage(domain.AgentMessage{AgentID: "sql", AgentLabel: "SQL Expert", Content: "SELECT ...", Kind: domain.KindResponse})
	_ = sess.AddMessage(domain.AgentMessage{AgentID: "csharp", Content: "timeout", Kind: domain.KindError,
		Metadata: domain.MessageMetadata{Error: "timeout"}})
	if err := sess.Complete(); err != nil {
		t.Fatal(err)
	}

	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Query != sess.Query || got.Primary != "sql" || got.Mode != domain.ModeSequential {
		t.Errorf("got %+v", got)
	}
	if len(got.Supporting) != 1 || got.Supporting[0] != "csharp" {
		t.Errorf("Supporting = %v", got.Supporting)
	}
	if got.Status != domain.StatusCompleted || got.FinalResponse != sess.FinalResponse {
		t.Errorf("Status = %s, FinalResponse = %q", got.Status, got.FinalResponse)
	}
	if len(got.Messages) != 2 || got.Messages[1].Kind != domain.KindError || got.Messages[1].Metadata.Error != "timeout" {
		t.Errorf("Messages = %+v", got.Messages)
	}
	if !got.CreatedAt.Equal(sess.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, sess.CreatedAt)
	}
}

func TestSaveReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := domain.NewSession("q", domain.RoutingDecision{Primary: "general"})
	if err := store.Save(ctx, sess); err != nil {
		t.Fatal(err)
	}
	_ = sess.Fail("no agent")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusFailed || got.Error != "no agent" {
		t.Errorf("got status %s error %q", got.Status, got.Error)
	}
	list, _ := store.List(ctx, 0)
	if len(list) != 1 {
		t.Errorf("List has %d entries, want 1", len(list))
	}
}

func TestSaveRequiresID(t *testing.T) {
	store := newTestStore(t)
	err := store.Save(context.Background(), &domain.CollaborationSession{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, q := range []string{"first", "second", "third"} {
		s := completedSession(t, q, "general", "ok")
		s.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.Save(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	list, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Query != "third" || list[1].Query != "second" {
		t.Fatalf("List = %+v", list)
	}
	if list[0].Status != domain.StatusCompleted || list[0].Mode != domain.ModeSingle || list[0].Primary != "general" {
		t.Errorf("summary = %+v", list[0])
	}
}

func TestSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, s := range []*domain.CollaborationSession{
		completedSession(t, "optimize this query", "sql", "Add an index on customer_id."),
		completedSession(t, "async in C#", "csharp", "Use Task.WhenAll."),
		completedSession(t, "export orders", "epicor", "Use the Epicor export job."),
	} {
		if err := store.Save(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := store.Search(ctx, "index", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Primary != "sql" {
		t.Errorf("hits = %+v", hits)
	}

	// Unbalanced quote is invalid FTS5 syntax and falls back to LIKE.
	hits, err = store.Search(ctx, `Task.WhenAll"`, 10)
	if err != nil {
		t.Fatalf("Search fallback: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("fallback hits = %+v", hits)
	}
	hits, err = store.Search(ctx, "C#", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Primary != "csharp" {
		t.Errorf("C# hits = %+v", hits)
	}

	all, err := store.Search(ctx, "", 0)
	if err != nil || len(all) != 3 {
		t.Errorf("empty search = %d, %v", len(all), err)
	}
}

func TestPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := completedSession(t, "old", "general", "x")
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	fresh := completedSession(t, "fresh", "general", "y")
	for _, s := range []*domain.CollaborationSession{old, fresh} {
		if err := store.Save(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("Prune = %d, %v", n, err)
	}
	if _, err := store.Get(ctx, old.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("old session still present: %v", err)
	}
	if hits, _ := store.Search(ctx, "old", 10); len(hits) != 0 {
		t.Errorf("pruned session still searchable: %+v", hits)
	}
}

func TestReopenKeepsSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := NewSQLiteSessionStore(path)
	if err != nil {
		t.Fatal(err)
	}
	s := completedSession(t, "persist me", "general", "ok")
	if err := store.Save(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := NewSQLiteSessionStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if _, err := reopened.Get(context.Background(), s.ID); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
}

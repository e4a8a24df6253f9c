// Package mcpserver exposes the orchestrator as Model Context Protocol tools
// over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"agentmux/internal/domain"
)

const instructions = `agentmux routes a question to one or more specialist agents and returns their combined answer.
Use route_query to ask a question. Use classify_query to see which agents would answer without running them.`

// Service is the orchestration surface the tools call.
type Service interface {
	ProcessQuery(ctx context.Context, query string) domain.Result
	Route(ctx context.Context, query string) (domain.RoutingDecision, string)
	Agents() []domain.AgentDescriptor
	Session(ctx context.Context, id string) (*domain.CollaborationSession, error)
	History(ctx context.Context, limit int) ([]domain.SessionSummary, error)
}

// New builds an MCP server with every tool registered.
func New(svc Service, version string, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := server.NewMCPServer(
		"agentmux",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	t := &tools{svc: svc, logger: logger}
	s.AddTool(routeQueryTool(), t.routeQuery)
	s.AddTool(classifyQueryTool(), t.classifyQuery)
	s.AddTool(listAgentsTool(), t.listAgents)
	s.AddTool(getSessionTool(), t.getSession)
	s.AddTool(recentSessionsTool(), t.recentSessions)
	return s
}

// Serve speaks MCP on in and out until ctx is cancelled or in closes.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	if err := server.NewStdioServer(s).Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp serve: %w", err)
	}
	return nil
}

func routeQueryTool() mcp.Tool {
	return mcp.NewTool("route_query",
		mcp.WithDescription("Route a question to the best specialist agents and return their answer. "+
			"Prefix the question with @agent-id to pick the agent yourself."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to answer")),
	)
}

func classifyQueryTool() mcp.Tool {
	return mcp.NewTool("classify_query",
		mcp.WithDescription("Show which agents would answer a question, in which mode, without running them."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to classify")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func listAgentsTool() mcp.Tool {
	return mcp.NewTool("list_agents",
		mcp.WithDescription("List the specialist agents and the keywords that route to them."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func getSessionTool() mcp.Tool {
	return mcp.NewTool("get_session",
		mcp.WithDescription("Fetch a finished collaboration session with every agent message."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Session ID from a route_query result")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func recentSessionsTool() mcp.Tool {
	return mcp.NewTool("recent_sessions",
		mcp.WithDescription("List recent collaboration sessions, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum sessions to return"), mcp.Min(1), mcp.Max(100)),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

type tools struct {
	svc    Service
	logger *slog.Logger
}

func requireQuery(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	q, err := req.RequireString("query")
	if err != nil {
		return "", mcp.NewToolResultError(err.Error())
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return "", mcp.NewToolResultError("query must not be blank")
	}
	return q, nil
}

func (t *tools) routeQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, errRes := requireQuery(req)
	if errRes != nil {
		return errRes, nil
	}
	res := t.svc.ProcessQuery(ctx, q)
	t.logger.Debug("mcp route_query", "session_id", res.SessionID, "success", res.Success)
	if !res.Success {
		msg := res.ExecutionError
		if msg == "" {
			msg = "collaboration failed"
		}
		out := mcp.NewToolResultStructured(res, msg)
		out.IsError = true
		return out, nil
	}
	return mcp.NewToolResultStructured(res, res.FinalResponse), nil
}

// classification is the structured result of classify_query.
type classification struct {
	Query    string                 `json:"query"`
	Decision domain.RoutingDecision `json:"decision"`
}

func (t *tools) classifyQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, errRes := requireQuery(req)
	if errRes != nil {
		return errRes, nil
	}
	decision, effective := t.svc.Route(ctx, q)
	text := fmt.Sprintf("%s (%s, %s confidence)", strings.Join(decision.Agents(), " + "), decision.Mode, decision.Confidence)
	return mcp.NewToolResultStructured(classification{Query: effective, Decision: decision}, text), nil
}

// agentList is the structured result of list_agents.
type agentList struct {
	Agents []domain.AgentDescriptor `json:"agents"`
}

func (t *tools) listAgents(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agents := t.svc.Agents()
	var b strings.Builder
	for _, a := range agents {
		fmt.Fprintf(&b, "- %s", a.ID)
		if a.Name != "" && a.Name != a.ID {
			fmt.Fprintf(&b, " (%s)", a.Name)
		}
		if len(a.Keywords) > 0 {
			fmt.Fprintf(&b, ": %s", strings.Join(a.Keywords, ", "))
		}
		b.WriteByte('\n')
	}
	return mcp.NewToolResultStructured(agentList{Agents: agents}, b.String()), nil
}

func (t *tools) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	session, err := t.svc.Session(ctx, id)
	if err != nil {
		return mcp.NewToolResultErrorf("%s: %v", domain.ErrorCodeOf(err), err), nil
	}
	res, err := mcp.NewToolResultJSON(session)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// sessionList is the structured result of recent_sessions.
type sessionList struct {
	Sessions []domain.SessionSummary `json:"sessions"`
}

func (t *tools) recentSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 10)
	if limit < 1 {
		limit = 10
	}
	sessions, err := t.svc.History(ctx, limit)
	if err != nil {
		return mcp.NewToolResultErrorf("%s: %v", domain.ErrorCodeOf(err), err), nil
	}
	if sessions == nil {
		sessions = []domain.SessionSummary{}
	}
	var b strings.Builder
	for _, s := range sessions {
		fmt.Fprintf(&b, "%s  %s  %-9s  %s\n", s.ID, s.CreatedAt.Format("2006-01-02 15:04"), s.Status, s.Query)
	}
	if b.Len() == 0 {
		b.WriteString("No sessions recorded.")
	}
	return mcp.NewToolResultStructured(sessionList{Sessions: sessions}, b.String()), nil
}

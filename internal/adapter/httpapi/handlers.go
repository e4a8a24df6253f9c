package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"agentmux/internal/domain"
)

const (
	maxQueryLen        = 16 << 10
	defaultHistory     = 20
	maxHistory         = 200
	defaultEventsLimit = 50
	eventStreamBuffer  = 64
	streamKeepalive    = 15 * time.Second
)

// QueryRequest is the body of POST /api/v1/query and /api/v1/route.
type QueryRequest struct {
	Query string `json:"query" binding:"required"`
}

// RouteResponse is the body returned by POST /api/v1/route.
type RouteResponse struct {
	Query    string                 `json:"query"`
	Decision domain.RoutingDecision `json:"decision"`
}

// AgentsResponse is the body returned by GET /api/v1/agents.
type AgentsResponse struct {
	Agents []domain.AgentDescriptor `json:"agents"`
}

// HistoryResponse is the body returned by GET /api/v1/sessions.
type HistoryResponse struct {
	Sessions []domain.SessionSummary `json:"sessions"`
}

// EventsResponse is the body returned by GET /api/v1/events.
type EventsResponse struct {
	Events []domain.Event `json:"events"`
}

// HealthResponse is the body returned by GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Agents        int    `json:"agents"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Agents:        len(s.svc.Agents()),
	})
}

func bindQuery(c *gin.Context) (string, bool) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, domain.CodeInvalidInput, "body must be JSON with a non-empty \"query\"")
		return "", false
	}
	q := strings.TrimSpace(req.Query)
	if q == "" {
		abortError(c, http.StatusBadRequest, domain.CodeInvalidInput, "query must not be blank")
		return "", false
	}
	if len(q) > maxQueryLen {
		abortError(c, http.StatusRequestEntityTooLarge, domain.CodeInvalidInput, "query is too long")
		return "", false
	}
	return q, true
}

// handleQuery runs a query to completion. A failed collaboration is still
// a 200: the outcome is in the result body.
func (s *Server) handleQuery(c *gin.Context) {
	q, ok := bindQuery(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.svc.ProcessQuery(c.Request.Context(), q))
}

func (s *Server) handleRoute(c *gin.Context) {
	q, ok := bindQuery(c)
	if !ok {
		return
	}
	decision, effective := s.svc.Route(c.Request.Context(), q)
	c.JSON(http.StatusOK, RouteResponse{Query: effective, Decision: decision})
}

func (s *Server) handleAgents(c *gin.Context) {
	c.JSON(http.StatusOK, AgentsResponse{Agents: s.svc.Agents()})
}

func (s *Server) handleHistory(c *gin.Context) {
	limit, ok := queryLimit(c, defaultHistory, maxHistory)
	if !ok {
		return
	}
	var (
		sessions []domain.SessionSummary
		err      error
	)
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		sessions, err = s.svc.Search(c.Request.Context(), q, limit)
	} else {
		sessions, err = s.svc.History(c.Request.Context(), limit)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if sessions == nil {
		sessions = []domain.SessionSummary{}
	}
	c.JSON(http.StatusOK, HistoryResponse{Sessions: sessions})
}

func (s *Server) handleSession(c *gin.Context) {
	session, err := s.svc.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) handleEvents(c *gin.Context) {
	limit, ok := queryLimit(c, defaultEventsLimit, 0)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, EventsResponse{Events: s.events.Recent(limit)})
}

// handleEventStream relays live events as server-sent events until the
// client goes away. ?type= restricts the stream to one event type.
func (s *Server) handleEventStream(c *gin.Context) {
	filter := domain.EventType(c.Query("type"))
	ch := make(chan domain.Event, eventStreamBuffer)
	unsub := s.events.SubscribeAll(func(_ context.Context, ev domain.Event) {
		if filter != "" && ev.Type != filter {
			return
		}
		select {
		case ch <- ev:
		default:
			s.logger.Warn("dropped event for slow stream client", "type", ev.Type)
		}
	})
	defer unsub()

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})
	c.Header("Content-Type", "text/event-stream")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			c.SSEvent(string(ev.Type), ev)
			c.Writer.Flush()
		case <-keepalive.C:
			c.SSEvent("ping", time.Now().Unix())
			c.Writer.Flush()
		}
	}
}

// queryLimit parses ?limit=. A zero max means unbounded.
func queryLimit(c *gin.Context, def, maxLimit int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		abortError(c, http.StatusBadRequest, domain.CodeInvalidInput, "limit must be a positive integer")
		return 0, false
	}
	if maxLimit > 0 && n > maxLimit {
		n = maxLimit
	}
	return n, true
}

package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// queryCmd runs the query in the background under a cancellable context.
func queryCmd(ctx context.Context, svc Service, query string, gen uint64) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{result: svc.ProcessQuery(ctx, query), gen: gen}
	}
}

func routeCmd(ctx context.Context, svc Service, query string) tea.Cmd {
	return func() tea.Msg {
		decision, effective := svc.Route(ctx, query)
		return routeMsg{query: query, decision: decision, effective: effective}
	}
}

func historyCmd(ctx context.Context, svc Service, limit int) tea.Cmd {
	return func() tea.Msg {
		sessions, err := svc.History(ctx, limit)
		return historyMsg{sessions: sessions, err: err}
	}
}

func streamTickCmd(gen uint64) tea.Cmd {
	return tea.Tick(tickRate, func(time.Time) tea.Msg {
		return streamTickMsg{gen: gen}
	})
}

package main

import (
	"github.com/spf13/cobra"

	"agentmux/internal/adapter/mcpserver"
)

func newMCPCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the router as MCP tools over stdio",
		Long: `Expose route_query, classify_query, list_agents, get_session and
recent_sessions as Model Context Protocol tools on stdin/stdout, so an MCP
client can delegate questions to the agents.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			// stdout carries the protocol.
			if cfg.Logger.Output == "" || cfg.Logger.Output == "stdout" {
				cfg.Logger.Output = "stderr"
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			a.knowledge.watch(ctx)
			srv := mcpserver.New(a.orch, version, a.logger)
			return mcpserver.Serve(ctx, srv, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

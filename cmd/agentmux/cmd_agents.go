package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"agentmux/internal/domain"
)

func newAgentsCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List the registered agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			agents := a.orch.Agents()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), agents)
			}
			printAgents(cmd.OutOrStdout(), agents, cfg.Router.DefaultAgent)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print agents as JSON")
	return cmd
}

func printAgents(out io.Writer, agents []domain.AgentDescriptor, defaultID string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tOUTPUT\tKEYWORDS")
	for _, a := range agents {
		id := a.ID
		if id == defaultID {
			id += "*"
		}
		output := a.Output
		if output == "" {
			output = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, a.Name, output, keywordPreview(a.Keywords, 6))
	}
	w.Flush()
}

func keywordPreview(kw []string, n int) string {
	if len(kw) <= n {
		return strings.Join(kw, ", ")
	}
	return fmt.Sprintf("%s, +%d more", strings.Join(kw[:n], ", "), len(kw)-n)
}

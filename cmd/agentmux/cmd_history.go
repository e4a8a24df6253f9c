package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"agentmux/internal/adapter/store"
	"agentmux/internal/domain"
	"agentmux/internal/infra/config"
)

var errStoreDisabled = errors.New("session store is disabled (set store.enabled: true)")

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		limit  int
		search string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(root)
			if err != nil {
				return err
			}
			defer st.Close()

			var sessions []domain.SessionSummary
			if search != "" {
				sessions, err = st.Search(cmd.Context(), search, limit)
			} else {
				sessions, err = st.List(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), sessions)
			}
			printSessions(cmd.OutOrStdout(), sessions)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum sessions to list")
	cmd.Flags().StringVarP(&search, "search", "s", "", "full-text search over queries and answers")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print sessions as JSON")

	cmd.AddCommand(newHistoryShowCmd(root), newHistoryPruneCmd(root))
	return cmd
}

func newHistoryShowCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print one stored session with every agent message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(root)
			if err != nil {
				return err
			}
			defer st.Close()

			session, err := st.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), session)
			}
			printSession(cmd.OutOrStdout(), session)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the session as JSON")
	return cmd
}

func newHistoryPruneCmd(root *rootOptions) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete sessions older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			st, err := openStore(root)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d session(s).\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age cutoff")
	return cmd
}

// openStore opens the session database without wiring the full runtime.
func openStore(root *rootOptions) (*store.SQLiteSessionStore, error) {
	cfg, err := root.loadConfig()
	if err != nil {
		return nil, err
	}
	return openStoreFor(cfg)
}

func openStoreFor(cfg *config.Config) (*store.SQLiteSessionStore, error) {
	if !cfg.Store.Enabled {
		return nil, errStoreDisabled
	}
	return store.NewSQLiteSessionStore(cfg.Store.Path)
}

func printSessions(out io.Writer, sessions []domain.SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No stored sessions.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tPRIMARY\tMODE\tSTATUS\tQUERY")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"), s.Primary, s.Mode, s.Status, oneLine(s.Query, 60))
	}
	w.Flush()
}

func printSession(out io.Writer, s *domain.CollaborationSession) {
	fmt.Fprintf(out, "Session   %s\n", s.ID)
	fmt.Fprintf(out, "Query     %s\n", s.Query)
	agents := append([]string{s.Primary}, s.Supporting...)
	fmt.Fprintf(out, "Agents    %s (%s)\n", strings.Join(agents, " + "), s.Mode)
	fmt.Fprintf(out, "Status    %s\n", s.Status)
	fmt.Fprintf(out, "Created   %s\n", s.CreatedAt.Local().Format(time.RFC3339))
	if s.Error != "" {
		fmt.Fprintf(out, "Error     %s\n", s.Error)
	}
	for _, m := range s.Messages {
		fmt.Fprintf(out, "\n--- %s [%s]\n%s\n", m.AgentLabel, m.Kind, strings.TrimSpace(m.Content))
	}
	if s.FinalResponse != "" {
		fmt.Fprintf(out, "\n=== Final response\n%s\n", strings.TrimSpace(s.FinalResponse))
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func oneLine(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}

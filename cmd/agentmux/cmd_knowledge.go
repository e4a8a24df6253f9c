package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"agentmux/internal/adapter/knowledge"
	"agentmux/internal/infra/config"
	"agentmux/internal/infra/logger"
)

func newKnowledgeCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the markdown knowledge base",
		Long: `Add and search the documents agents are given as context.

Documents live under knowledge.dir/<agent>/ or knowledge.dir/shared/.
The vector backend picks up new files on its next sync.`,
	}
	cmd.AddCommand(newKnowledgeAddCmd(root), newKnowledgeSearchCmd(root))
	return cmd
}

func newKnowledgeAddCmd(root *rootOptions) *cobra.Command {
	var (
		agentID string
		title   string
		tags    []string
	)
	cmd := &cobra.Command{
		Use:   "add [file|-]",
		Short: "Add a document for one agent",
		Example: `  agentmux knowledge add --agent sql docs/joins.md
  cat notes.md | agentmux knowledge add --agent shared --title "Naming rules"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if err := checkKnowledgeAgent(cfg, agentID); err != nil {
				return err
			}
			content, err := readDocument(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if title == "" {
				if len(args) == 0 || args[0] == "-" {
					return errors.New("--title is required when reading from stdin")
				}
				title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}

			kb, closeLog, err := openMarkdown(cfg)
			if err != nil {
				return err
			}
			defer closeLog()
			path, err := kb.AddDocument(agentID, title, content, tags)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "agent id, or \"shared\" for every agent")
	cmd.Flags().StringVarP(&title, "title", "t", "", "document title (default: file name)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "comma-separated tags")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func newKnowledgeSearchCmd(root *rootOptions) *cobra.Command {
	var (
		agentID string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Show which documents an agent would be given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if err := checkKnowledgeAgent(cfg, agentID); err != nil {
				return err
			}
			kb, closeLog, err := openMarkdown(cfg)
			if err != nil {
				return err
			}
			defer closeLog()
			docs, err := kb.Search(strings.Join(args, " "), agentID, limit)
			if err != nil {
				return err
			}
			printDocuments(cmd.OutOrStdout(), docs)
			return nil
		},
	}
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "agent id, or \"shared\"")
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "maximum documents to show")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func checkKnowledgeAgent(cfg *config.Config, agentID string) error {
	if agentID == knowledge.SharedDir {
		return nil
	}
	if _, ok := cfg.Agent(agentID); !ok {
		return fmt.Errorf("unknown agent %q (see agentmux agents)", agentID)
	}
	return nil
}

func openMarkdown(cfg *config.Config) (*knowledge.MarkdownStore, func() error, error) {
	l, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	kc := cfg.Knowledge
	return knowledge.NewMarkdownStore(kc.Dir,
		knowledge.WithMaxDocs(kc.MaxDocs),
		knowledge.WithMaxChars(kc.MaxChars),
		knowledge.WithLogger(l),
	), closeLog, nil
}

func readDocument(stdin io.Reader, args []string) (string, error) {
	var data []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(io.LimitReader(stdin, 1<<20))
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", errors.New("document is empty")
	}
	return content, nil
}

func printDocuments(out io.Writer, docs []knowledge.ScoredDocument) {
	if len(docs) == 0 {
		fmt.Fprintln(out, "No matching documents.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tTITLE\tPATH")
	for _, d := range docs {
		fmt.Fprintf(w, "%d\t%s\t%s\n", d.Score, oneLine(d.Title, 50), d.Path)
	}
	w.Flush()
}

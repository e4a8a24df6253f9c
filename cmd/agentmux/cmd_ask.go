package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"agentmux/internal/adapter/tui/theme"
	"agentmux/internal/adapter/tui/uxerror"
	"agentmux/internal/domain"
)

type askOptions struct {
	json bool
	raw  bool
}

func newAskCmd(root *rootOptions) *cobra.Command {
	opts := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Answer one question and exit",
		Long: `Route a single question and print the merged answer.

Pass "-" or no arguments to read the question from stdin. Prefix the
question with @agent to skip classification.`,
		Example: `  agentmux ask "top 10 customers by revenue"
  agentmux ask @csharp "how do I page a LINQ query"
  echo "explain window functions" | agentmux ask --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.orch.ProcessQuery(cmd.Context(), query)
			return printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res, *opts)
		},
	}
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the full result as JSON")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "print the answer without markdown rendering")
	return cmd
}

func readQuery(stdin io.Reader, args []string) (string, error) {
	var query string
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(io.LimitReader(stdin, 64<<10))
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		query = string(data)
	} else {
		query = strings.Join(args, " ")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("no question given")
	}
	return query, nil
}

// errQueryFailed makes the process exit non-zero after the failure has
// already been printed.
var errQueryFailed = errors.New("query failed")

func printResult(out, errOut io.Writer, res domain.Result, opts askOptions) error {
	if opts.json {
		if err := writeJSON(out, res); err != nil {
			return err
		}
		if !res.Success {
			return errQueryFailed
		}
		return nil
	}

	if !res.Success {
		fmt.Fprintln(errOut, theme.TextError.Render(uxerror.FromMessage(res.ExecutionError).Render()))
		return errQueryFailed
	}

	if !opts.raw {
		fmt.Fprintln(out, theme.Dim.Render(fmt.Sprintf("%s %s (%s, %s confidence)",
			theme.SymbolArrowR, strings.Join(res.AgentsUsed, " + "), res.Mode, res.Confidence)))
	}
	body := res.FinalResponse
	if !opts.raw {
		body = renderMarkdown(body)
	}
	fmt.Fprintln(out, strings.TrimRight(body, "\n"))
	return nil
}

func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(theme.MaxContentWidth),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"agentmux/internal/adapter/tui/chat"
)

func newChatCmd(root *rootOptions) *cobra.Command {
	var (
		speed   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive terminal chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, ok := chat.ParseStreamSpeed(speed)
			if !ok {
				return fmt.Errorf("unknown --speed %q (normal, fast, instant)", speed)
			}
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			// The TUI owns the terminal; logs go only to a file.
			var appOpts []appOption
			switch strings.ToLower(cfg.Logger.Output) {
			case "", "stdout", "stderr":
				appOpts = append(appOpts, withLogger(slog.New(slog.DiscardHandler)))
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, appOpts...)
			if err != nil {
				return err
			}
			defer a.Close()
			a.knowledge.watch(ctx)

			model := chat.New(ctx, a.orch,
				chat.WithStreamSpeed(s),
				chat.WithRequestTimeout(timeout),
			)
			p := tea.NewProgram(model,
				tea.WithContext(ctx),
				tea.WithAltScreen(),
				tea.WithMouseCellMotion(),
			)
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&speed, "speed", "normal", "answer reveal speed: normal, fast or instant")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "cancel a question after this long (0 waits for the agents)")
	return cmd
}

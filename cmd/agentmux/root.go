package main

import (
	"os"

	"github.com/spf13/cobra"

	"agentmux/internal/infra/config"
)

const defaultConfigPath = "agentmux.yaml"

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "agentmux",
		Short: "Route questions to specialist agents",
		Long: `agentmux classifies each question, picks one or more specialist agents
(SQL, C#, ERP, general) and runs them alone, in sequence or in parallel
before merging their answers.

Configuration is read from agentmux.yaml (or --config). AGENTMUX_*
environment variables override file values.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultPath := os.Getenv("AGENTMUX_CONFIG")
	if defaultPath == "" {
		defaultPath = defaultConfigPath
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultPath, "config file path")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logger.level (debug, info, warn, error)")

	cmd.AddCommand(
		newAskCmd(opts),
		newAgentsCmd(opts),
		newHistoryCmd(opts),
		newKnowledgeCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
		newChatCmd(opts),
		newDoctorCmd(opts),
		newEncryptCmd(),
	)
	return cmd
}

// loadConfig reads the config file and applies flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logger.Level = o.logLevel
	}
	return cfg, nil
}

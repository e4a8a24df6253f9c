package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"agentmux/internal/infra/config"
)

// CheckStatus is the outcome class of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string
}

type check struct {
	name string
	fn   func(ctx context.Context, cfg *config.Config) CheckResult
}

func newDoctorCmd(root *rootOptions) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the configuration and its dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, cfgErr := root.loadConfig()
			checks := []check{
				{"Config file", checkConfigFile(root.configPath, cfgErr)},
				{"Agents", checkAgents},
				{"Reasoning provider", checkProvider},
				{"Knowledge base", checkKnowledge},
				{"Session store", checkStore},
				{"Server address", checkServerAddr},
			}
			if !offline {
				checks = append(checks, check{"Provider connectivity", checkConnectivity})
			}
			return runDoctor(cmd.Context(), cmd.OutOrStdout(), cfg, checks)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip checks that use the network")
	return cmd
}

func runDoctor(ctx context.Context, out io.Writer, cfg *config.Config, checks []check) error {
	fmt.Fprintln(out, "agentmux doctor")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)

	var pass, warn, fail int
	for _, c := range checks {
		var res CheckResult
		if cfg == nil && c.name != "Config file" {
			res = CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
		} else {
			res = c.fn(ctx, cfg)
		}
		res.Name = c.name

		fmt.Fprintf(out, "  [%s] %s: %s\n", res.Status, res.Name, res.Message)
		if res.Fix != "" {
			fmt.Fprintf(out, "      Fix: %s\n", res.Fix)
		}
		switch res.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		default:
			fail++
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 50))
	fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)
	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func checkConfigFile(path string, cfgErr error) func(context.Context, *config.Config) CheckResult {
	return func(context.Context, *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: cfgErr.Error(),
				Fix:     "Fix the reported fields in " + path,
			}
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("%s not found, using built-in defaults", path),
				Fix:     "Create " + path + " to customise agents and providers",
			}
		}
		return CheckResult{Status: StatusPass, Message: "loaded " + path}
	}
}

func checkAgents(_ context.Context, cfg *config.Config) CheckResult {
	ids := make([]string, len(cfg.Agents))
	for i, a := range cfg.Agents {
		ids[i] = a.ID
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d agents (%s), default %s", len(ids), strings.Join(ids, ", "), cfg.Router.DefaultAgent),
	}
}

func checkProvider(_ context.Context, cfg *config.Config) CheckResult {
	if cfg.LLM.DefaultProvider == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no LLM configured: routing uses keywords and agents answer from the knowledge base only",
			Fix:     "Add llm.providers and llm.default_provider",
		}
	}
	var missing []string
	for _, p := range cfg.LLM.Providers {
		if p.APIKey == "" && p.Type != "ollama" && p.Type != "bedrock" {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "missing api_key for " + strings.Join(missing, ", "),
			Fix:     "Set AGENTMUX_LLM_PROVIDER_<NAME>_API_KEY",
		}
	}
	return CheckResult{Status: StatusPass, Message: "default provider " + cfg.LLM.DefaultProvider}
}

func checkKnowledge(_ context.Context, cfg *config.Config) CheckResult {
	kc := cfg.Knowledge
	if kc.Backend == "none" {
		return CheckResult{Status: StatusPass, Message: "disabled"}
	}
	entries, err := os.ReadDir(kc.Dir)
	if os.IsNotExist(err) {
		return CheckResult{
			Status:  StatusWarn,
			Message: kc.Dir + " does not exist, agents get no knowledge context",
			Fix:     "mkdir -p " + kc.Dir + "/<agent-id> and add .md files",
		}
	}
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s backend, %d folders in %s", kc.Backend, len(dirs), kc.Dir),
	}
}

func checkStore(ctx context.Context, cfg *config.Config) CheckResult {
	if !cfg.Store.Enabled {
		return CheckResult{Status: StatusWarn, Message: "disabled, sessions are not kept", Fix: "Set store.enabled: true"}
	}
	st, err := openStoreFor(cfg)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error(), Fix: "Check that store.path is writable"}
	}
	defer st.Close()
	recent, err := st.List(ctx, 1)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	msg := "no sessions yet"
	if len(recent) > 0 {
		msg = "last session " + recent[0].CreatedAt.Local().Format(time.RFC3339)
	}
	return CheckResult{Status: StatusPass, Message: cfg.Store.Path + ", " + msg}
}

func checkServerAddr(_ context.Context, cfg *config.Config) CheckResult {
	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s is not available: %v", cfg.Server.Addr, err),
			Fix:     "Pick another server.addr or pass --addr to serve",
		}
	}
	ln.Close()
	return CheckResult{Status: StatusPass, Message: cfg.Server.Addr + " is free"}
}

func checkConnectivity(ctx context.Context, cfg *config.Config) CheckResult {
	p, ok := cfg.Provider(cfg.LLM.DefaultProvider)
	if !ok {
		return CheckResult{Status: StatusWarn, Message: "skipped, no default provider"}
	}
	endpoint := providerEndpoint(p)
	if endpoint == "" {
		return CheckResult{Status: StatusWarn, Message: fmt.Sprintf("skipped for provider type %q", p.Type)}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check the network and the provider base_url",
		}
	}
	resp.Body.Close()
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable in %dms", p.Name, time.Since(start).Milliseconds()),
	}
}

func providerEndpoint(p config.ProviderConfig) string {
	base := strings.TrimRight(p.BaseURL, "/")
	switch p.Type {
	case "openai":
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return base + "/models"
	case "ollama":
		if base == "" {
			return "http://localhost:11434/api/tags"
		}
		return strings.TrimSuffix(base, "/v1") + "/api/tags"
	case "anthropic":
		if base == "" {
			base = "https://api.anthropic.com"
		}
		return base
	}
	return ""
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Router.DefaultAgent != "general" {
		t.Errorf("DefaultAgent = %q, want general", cfg.Router.DefaultAgent)
	}
	if !cfg.Router.PrefixOverride {
		t.Error("PrefixOverride should default to true")
	}
	if cfg.Execution.ParallelLimit != 4 {
		t.Errorf("ParallelLimit = %d, want 4", cfg.Execution.ParallelLimit)
	}
	ids := make([]string, len(cfg.Agents))
	for i, a := range cfg.Agents {
		ids[i] = a.ID
	}
	if strings.Join(ids, ",") != "general,sql,csharp,epicor" {
		t.Errorf("stock agents = %v", ids)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Agents) != 4 {
		t.Errorf("expected stock agents, got %d", len(cfg.Agents))
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "agentmux.yaml", `
agents:
  - id: support
    name: Support Desk
    keywords: [ticket, refund]
  - id: billing
    name: Billing
    keywords: [invoice]
    output: sql
router:
  default_agent: support
  timeout: 5s
llm:
  default_provider: claude
  providers:
    - name: claude
      type: anthropic
      api_key: test-key
      model: claude-sonnet-4-20250514
execution:
  parallel_limit: 2
logger:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Agents) != 2 || cfg.Agents[0].ID != "support" {
		t.Fatalf("agents = %+v", cfg.Agents)
	}
	if cfg.Router.Timeout != 5*time.Second {
		t.Errorf("Router.Timeout = %v", cfg.Router.Timeout)
	}
	if !cfg.Router.PrefixOverride {
		t.Error("unset prefix_override should keep the default")
	}
	if cfg.Execution.ParallelLimit != 2 {
		t.Errorf("ParallelLimit = %d", cfg.Execution.ParallelLimit)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q", cfg.Logger.Level)
	}
	p, ok := cfg.Provider("claude")
	if !ok || p.APIKey != "test-key" {
		t.Errorf("provider = %+v, %v", p, ok)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "bad.yaml", "agents: [unclosed\n")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "bad.yaml", "router:\n  default_agent: nobody\n")
	_, err := Load(path)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	if !strings.Contains(ve.Error(), `"nobody" does not match any agent`) {
		t.Errorf("unexpected error: %v", ve)
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "insecure.yaml")
	if err := os.WriteFile(path, []byte("logger:\n  level: info\n"), 0o666); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for insecure permissions")
	}
}

func TestValidatePermissions(t *testing.T) {
	tests := []struct {
		mode    os.FileMode
		wantErr bool
	}{
		{0o600, false},
		{0o644, false},
		{0o666, true},
		{0o677, true},
	}
	for _, tt := range tests {
		path := filepath.Join(t.TempDir(), "c.yaml")
		if err := os.WriteFile(path, nil, tt.mode); err != nil {
			t.Fatal(err)
		}
		if err := os.Chmod(path, tt.mode); err != nil {
			t.Fatal(err)
		}
		err := validatePermissions(path)
		if (err != nil) != tt.wantErr {
			t.Errorf("mode %o: err = %v, wantErr %v", tt.mode, err, tt.wantErr)
		}
	}
}

func TestValidatePermissionsStatError(t *testing.T) {
	if err := validatePermissions("/nonexistent/agentmux.yaml"); err == nil {
		t.Error("expected stat error")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("AGENTMUX_ROUTER_MODEL", "router-model")
	t.Setenv("AGENTMUX_ROUTER_PREFIX_OVERRIDE", "false")
	t.Setenv("AGENTMUX_EXECUTION_PARALLEL_LIMIT", "8")
	t.Setenv("AGENTMUX_EXECUTION_RESPONDER_TIMEOUT", "15s")
	t.Setenv("AGENTMUX_KNOWLEDGE_DIR", "/srv/kb")
	t.Setenv("AGENTMUX_SERVER_ADDR", "0.0.0.0:9000")
	t.Setenv("AGENTMUX_LOG_LEVEL", "warn")
	t.Setenv("AGENTMUX_TRACER_ENABLED", "true")
	t.Setenv("AGENTMUX_TRACER_EXPORTER", "stdout")
	t.Setenv("AGENTMUX_STORE_ENABLED", "0")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Router.Model != "router-model" {
		t.Errorf("Router.Model = %q", cfg.Router.Model)
	}
	if cfg.Router.PrefixOverride {
		t.Error("PrefixOverride should be false")
	}
	if cfg.Execution.ParallelLimit != 8 {
		t.Errorf("ParallelLimit = %d", cfg.Execution.ParallelLimit)
	}
	if cfg.Execution.ResponderTimeout != 15*time.Second {
		t.Errorf("ResponderTimeout = %v", cfg.Execution.ResponderTimeout)
	}
	if cfg.Knowledge.Dir != "/srv/kb" {
		t.Errorf("Knowledge.Dir = %q", cfg.Knowledge.Dir)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Logger.Level != "warn" {
		t.Errorf("Logger.Level = %q", cfg.Logger.Level)
	}
	if !cfg.Tracer.Enabled || cfg.Tracer.Exporter != "stdout" {
		t.Errorf("Tracer = %+v", cfg.Tracer)
	}
	if cfg.Store.Enabled {
		t.Error("Store.Enabled should be false")
	}
}

func TestApplyEnvOverridesIgnoresBadNumbers(t *testing.T) {
	t.Setenv("AGENTMUX_EXECUTION_PARALLEL_LIMIT", "many")
	t.Setenv("AGENTMUX_EXECUTION_RESPONDER_TIMEOUT", "soon")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.Execution.ParallelLimit != 4 {
		t.Errorf("ParallelLimit = %d, want default", cfg.Execution.ParallelLimit)
	}
	if cfg.Execution.ResponderTimeout != 60*time.Second {
		t.Errorf("ResponderTimeout = %v, want default", cfg.Execution.ResponderTimeout)
	}
}

func TestApplyEnvOverridesProviderAPIKey(t *testing.T) {
	t.Setenv("AGENTMUX_LLM_PROVIDER_LOCAL_GPT_API_KEY", "sk-env")

	cfg := Defaults()
	cfg.LLM.Providers = []ProviderConfig{{Name: "local-gpt", Type: "openai", APIKey: "from-file"}}
	ApplyEnvOverrides(cfg)

	if cfg.LLM.Providers[0].APIKey != "sk-env" {
		t.Errorf("APIKey = %q, want sk-env", cfg.LLM.Providers[0].APIKey)
	}
}

func TestLoadWithConfigKey(t *testing.T) {
	const passphrase = "correct horse"
	sealed, err := EncryptValue("sk-live-123", passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}
	path := writeConfig(t, t.TempDir(), "agentmux.yaml", `
llm:
  default_provider: openai
  providers:
    - name: openai
      type: openai
      api_key: "enc:`+sealed+`"
`)
	t.Setenv("AGENTMUX_CONFIG_KEY", passphrase)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.LLM.Providers[0].APIKey; got != "sk-live-123" {
		t.Errorf("APIKey = %q, want decrypted value", got)
	}
}

func TestLoadWrongConfigKey(t *testing.T) {
	sealed, err := EncryptValue("sk-live-123", "right")
	if err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, t.TempDir(), "agentmux.yaml", `
llm:
  default_provider: openai
  providers:
    - name: openai
      type: openai
      api_key: "enc:`+sealed+`"
`)
	t.Setenv("AGENTMUX_CONFIG_KEY", "wrong")

	_, err = Load(path)
	if err == nil || !strings.Contains(err.Error(), "decrypt secrets") {
		t.Fatalf("expected decrypt error, got %v", err)
	}
}

func TestAgentLookup(t *testing.T) {
	cfg := Defaults()
	a, ok := cfg.Agent("sql")
	if !ok || a.Output != "sql" {
		t.Errorf("Agent(sql) = %+v, %v", a, ok)
	}
	if _, ok := cfg.Agent("nope"); ok {
		t.Error("unknown agent should not be found")
	}
}

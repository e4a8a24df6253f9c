package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAgents(cfg, ve)
	validateRouter(cfg, ve)
	validateLLM(cfg, ve)
	validateExecution(cfg, ve)
	validateKnowledge(cfg, ve)
	validateStore(cfg, ve)
	validateServer(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validOutputs = map[string]bool{"": true, "sql": true, "code": true}

func validateAgents(cfg *Config, ve *ValidationError) {
	if len(cfg.Agents) == 0 {
		ve.Add("agents must declare at least one agent")
		return
	}
	seen := make(map[string]bool, len(cfg.Agents))
	for i, a := range cfg.Agents {
		if a.ID == "" {
			ve.Add("agents[%d].id must not be empty", i)
			continue
		}
		// Classifier replies are matched after lowercasing.
		if a.ID != strings.ToLower(a.ID) || strings.ContainsAny(a.ID, " \t@,") {
			ve.Add("agents[%d].id %q must be lowercase without spaces, commas or '@'", i, a.ID)
		}
		if seen[a.ID] {
			ve.Add("agents[%d]: duplicate agent id %q", i, a.ID)
		}
		seen[a.ID] = true

		if !validOutputs[a.Output] {
			ve.Add("agents[%d] (%s): output %q is invalid (want: sql, code or empty)", i, a.ID, a.Output)
		}
		if a.Temperature < 0 || a.Temperature > 2 {
			ve.Add("agents[%d] (%s): temperature must be between 0 and 2", i, a.ID)
		}
		if a.MaxTokens < 0 {
			ve.Add("agents[%d] (%s): max_tokens must be >= 0", i, a.ID)
		}
		if a.Provider != "" {
			if _, ok := cfg.Provider(a.Provider); !ok {
				ve.Add("agents[%d] (%s): provider %q is not configured", i, a.ID, a.Provider)
			}
		}
	}
}

func validateRouter(cfg *Config, ve *ValidationError) {
	if cfg.Router.DefaultAgent == "" {
		ve.Add("router.default_agent must not be empty")
	} else if _, ok := cfg.Agent(cfg.Router.DefaultAgent); !ok {
		ve.Add("router.default_agent %q does not match any agent", cfg.Router.DefaultAgent)
	}
	if cfg.Router.Timeout < 0 {
		ve.Add("router.timeout must be >= 0")
	}
	if cfg.Router.Provider != "" {
		if _, ok := cfg.Provider(cfg.Router.Provider); !ok {
			ve.Add("router.provider %q is not configured", cfg.Router.Provider)
		}
	}
}

var validProviderTypes = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"ollama":    true,
	"bedrock":   true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if len(cfg.LLM.Providers) == 0 {
		if cfg.LLM.DefaultProvider != "" {
			ve.Add("llm.default_provider %q set but no providers are configured", cfg.LLM.DefaultProvider)
		}
		return
	}
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty when providers are configured")
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, anthropic, ollama, bedrock)", i, p.Type)
		}
		switch p.Type {
		case "openai", "anthropic":
			if p.APIKey == "" {
				ve.Add("llm.providers[%d] (%s): api_key is empty (set via AGENTMUX_LLM_PROVIDER_%s_API_KEY)",
					i, p.Name, envName(p.Name))
			}
		case "bedrock":
			if p.Region == "" {
				ve.Add("llm.providers[%d] (%s): region is required for bedrock provider", i, p.Name)
			}
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
	}
	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}

	if cfg.LLM.Failover.Enabled {
		for _, name := range cfg.LLM.Failover.Fallbacks {
			if !seen[name] {
				ve.Add("llm.failover.fallbacks: provider %q is not configured", name)
			}
		}
	}
	if cfg.LLM.CircuitBreaker.Enabled && cfg.LLM.CircuitBreaker.MaxFailures == 0 {
		ve.Add("llm.circuit_breaker.max_failures must be > 0")
	}
}

func validateExecution(cfg *Config, ve *ValidationError) {
	if cfg.Execution.ParallelLimit < 1 {
		ve.Add("execution.parallel_limit must be >= 1")
	}
	if cfg.Execution.ResponderTimeout < 0 {
		ve.Add("execution.responder_timeout must be >= 0")
	}
}

var validKnowledgeBackends = map[string]bool{
	"markdown": true,
	"vector":   true,
	"none":     true,
}

func validateKnowledge(cfg *Config, ve *ValidationError) {
	k := cfg.Knowledge
	if !validKnowledgeBackends[k.Backend] {
		ve.Add("knowledge.backend %q is invalid (want: markdown, vector, none)", k.Backend)
		return
	}
	if k.Backend == "none" {
		return
	}
	if k.Dir == "" {
		ve.Add("knowledge.dir is required when backend is %s", k.Backend)
	}
	if k.MaxDocs < 1 {
		ve.Add("knowledge.max_docs must be >= 1")
	}
	if k.MaxChars < 1 {
		ve.Add("knowledge.max_chars must be >= 1")
	}
	if k.CacheSize < 0 {
		ve.Add("knowledge.cache_size must be >= 0")
	}
	if k.Backend == "vector" {
		switch k.Embedding.Provider {
		case "ollama":
		case "openai":
			if k.Embedding.APIKey == "" {
				ve.Add("knowledge.embedding.api_key is required for openai embeddings (set via AGENTMUX_EMBEDDING_API_KEY)")
			}
		default:
			ve.Add("knowledge.embedding.provider %q is invalid (want: ollama, openai)", k.Embedding.Provider)
		}
		if k.Embedding.Model == "" {
			ve.Add("knowledge.embedding.model is required when backend is vector")
		}
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	if cfg.Store.Enabled && cfg.Store.Path == "" {
		ve.Add("store.path is required when store is enabled")
	}
}

func validateServer(cfg *Config, ve *ValidationError) {
	if _, _, err := net.SplitHostPort(cfg.Server.Addr); err != nil {
		ve.Add("server.addr %q is invalid: %v", cfg.Server.Addr, err)
	}
	rl := cfg.Server.RateLimit
	if rl.Enabled {
		if rl.RequestsPerSecond <= 0 {
			ve.Add("server.rate_limit.requests_per_second must be > 0")
		}
		if rl.Burst < 1 {
			ve.Add("server.rate_limit.burst must be >= 1")
		}
	}
	for i, origin := range cfg.Server.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			ve.Add("server.cors_origins[%d] %q must be \"*\" or start with http:// or https://", i, origin)
		}
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if cfg.Logger.Format != "text" && cfg.Logger.Format != "json" {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
	if cfg.Tracer.Enabled && cfg.Tracer.Exporter != "stdout" && cfg.Tracer.Exporter != "noop" {
		ve.Add("tracer.exporter %q is invalid (want: stdout, noop)", cfg.Tracer.Exporter)
	}
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level agentmux configuration.
type Config struct {
	Includes  []string        `yaml:"includes,omitempty"`
	Agents    []AgentConfig   `yaml:"agents"`
	Router    RouterConfig    `yaml:"router"`
	LLM       LLMConfig       `yaml:"llm"`
	Execution ExecutionConfig `yaml:"execution"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// AgentConfig declares one responder. Declaration order matters: it breaks
// keyword-fallback ties.
type AgentConfig struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Keywords     []string `yaml:"keywords"`
	Output       string   `yaml:"output,omitempty"` // "sql", "code" or empty
	SystemPrompt string   `yaml:"system_prompt"`
	Provider     string   `yaml:"provider,omitempty"` // empty uses llm.default_provider
	Model        string   `yaml:"model,omitempty"`
	MaxTokens    int      `yaml:"max_tokens,omitempty"`
	Temperature  float64  `yaml:"temperature,omitempty"`
}

// RouterConfig configures the classifier.
type RouterConfig struct {
	DefaultAgent   string        `yaml:"default_agent"`
	PrefixOverride bool          `yaml:"prefix_override"`
	Provider       string        `yaml:"provider,omitempty"` // empty uses llm.default_provider
	Model          string        `yaml:"model,omitempty"`
	Timeout        time.Duration `yaml:"timeout"`
}

// LLMConfig holds the reasoning and responder providers.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ProviderConfig configures one LLM endpoint.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // "openai", "anthropic", "ollama", "bedrock"
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
}

// FailoverConfig lists providers tried after the primary fails.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// CircuitBreakerConfig configures the per-provider breaker.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// ExecutionConfig tunes the collaboration strategies.
type ExecutionConfig struct {
	ParallelLimit    int           `yaml:"parallel_limit"`
	ResponderTimeout time.Duration `yaml:"responder_timeout"`
}

// KnowledgeConfig configures retrieval enrichment.
type KnowledgeConfig struct {
	Backend   string          `yaml:"backend"` // "markdown", "vector" or "none"
	Dir       string          `yaml:"dir"`
	MaxDocs   int             `yaml:"max_docs"`
	MaxChars  int             `yaml:"max_chars"`
	CacheSize int             `yaml:"cache_size"` // 0 disables the cache
	CacheTTL  time.Duration   `yaml:"cache_ttl"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// VectorConfig configures the chromem-go index.
type VectorConfig struct {
	Path     string `yaml:"path"` // empty keeps the index in memory
	Compress bool   `yaml:"compress"`
}

// EmbeddingConfig selects the embedding endpoint used by the vector backend.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "openai" or "ollama"
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// StoreConfig configures session persistence.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string          `yaml:"addr"`
	ReadTimeout  time.Duration   `yaml:"read_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
	CORSOrigins  []string        `yaml:"cors_origins"` // empty disables CORS
	Tokens       []string        `yaml:"tokens"`       // bearer tokens; empty disables auth
}

// RateLimitConfig is the per-client token bucket.
type RateLimitConfig struct {
	Enabled           bool     `yaml:"enabled"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
	TrustedProxies    []string `yaml:"trusted_proxies"` // X-Forwarded-For is honoured only from these
}

// LoggerConfig configures structured logging.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "text" or "json"
	Output string `yaml:"output"` // "stdout", "stderr" or a file path
}

// TracerConfig configures OpenTelemetry.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentmux"
	}
	return filepath.Join(home, ".agentmux")
}

// Defaults returns a configuration that runs without any file: the four stock
// agents, keyword-only routing and no providers.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Agents: defaultAgents(),
		Router: RouterConfig{
			DefaultAgent:   "general",
			PrefixOverride: true,
			Timeout:        20 * time.Second,
		},
		LLM: LLMConfig{
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    time.Minute,
			},
		},
		Execution: ExecutionConfig{
			ParallelLimit:    4,
			ResponderTimeout: 60 * time.Second,
		},
		Knowledge: KnowledgeConfig{
			Backend:   "markdown",
			Dir:       filepath.Join(dataDir, "knowledge"),
			MaxDocs:   3,
			MaxChars:  2000,
			CacheSize: 128,
			CacheTTL:  5 * time.Minute,
			Embedding: EmbeddingConfig{
				Provider: "ollama",
				BaseURL:  "http://localhost:11434",
				Model:    "nomic-embed-text",
			},
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    filepath.Join(dataDir, "sessions.db"),
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:8420",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 120 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 2,
				Burst:             5,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
	}
}

// Load reads the YAML file at path on top of Defaults, merges agent fragments
// named by includes, applies AGENTMUX_* overrides, decrypts "enc:" secrets
// and validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	var top fragment
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(top.Includes) > 0 {
		l := &includeLoader{visited: map[string]bool{absPath: true}}
		extra, err := l.collect(top.Includes, filepath.Dir(absPath), 0)
		if err != nil {
			return nil, err
		}
		if len(extra) > 0 {
			// Included agents extend the file's own list, or replace the
			// stock agents when the file declares none.
			if len(top.Agents) == 0 {
				cfg.Agents = nil
			}
			cfg.Agents = append(cfg.Agents, extra...)
		}
		cfg.Includes = nil
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("AGENTMUX_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overlays AGENTMUX_* environment variables onto cfg.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTMUX_ROUTER_DEFAULT_AGENT"); v != "" {
		cfg.Router.DefaultAgent = v
	}
	if v := os.Getenv("AGENTMUX_ROUTER_PROVIDER"); v != "" {
		cfg.Router.Provider = v
	}
	if v := os.Getenv("AGENTMUX_ROUTER_MODEL"); v != "" {
		cfg.Router.Model = v
	}
	if v := os.Getenv("AGENTMUX_ROUTER_PREFIX_OVERRIDE"); v != "" {
		cfg.Router.PrefixOverride = v == "true" || v == "1"
	}
	if v := os.Getenv("AGENTMUX_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	// Per-provider API keys: AGENTMUX_LLM_PROVIDER_<NAME>_API_KEY
	for i := range cfg.LLM.Providers {
		envKey := "AGENTMUX_LLM_PROVIDER_" + envName(cfg.LLM.Providers[i].Name) + "_API_KEY"
		if v := os.Getenv(envKey); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
	}
	if v := os.Getenv("AGENTMUX_EXECUTION_PARALLEL_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Execution.ParallelLimit = n
		}
	}
	if v := os.Getenv("AGENTMUX_EXECUTION_RESPONDER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Execution.ResponderTimeout = d
		}
	}
	if v := os.Getenv("AGENTMUX_KNOWLEDGE_BACKEND"); v != "" {
		cfg.Knowledge.Backend = v
	}
	if v := os.Getenv("AGENTMUX_KNOWLEDGE_DIR"); v != "" {
		cfg.Knowledge.Dir = v
	}
	if v := os.Getenv("AGENTMUX_EMBEDDING_API_KEY"); v != "" {
		cfg.Knowledge.Embedding.APIKey = v
	}
	if v := os.Getenv("AGENTMUX_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("AGENTMUX_STORE_ENABLED"); v != "" {
		cfg.Store.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AGENTMUX_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("AGENTMUX_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("AGENTMUX_LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("AGENTMUX_TRACER_ENABLED"); v != "" {
		cfg.Tracer.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AGENTMUX_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// envName turns a provider name into its environment form: "local-llm" ->
// "LOCAL_LLM".
func envName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name))
}

// Provider returns the provider with the given name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.LLM.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// Agent returns the agent with the given id.
func (c *Config) Agent(id string) (AgentConfig, bool) {
	for _, a := range c.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentConfig{}, false
}

func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// 0600 and 0644 are fine; anything group/world writable is not.
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}

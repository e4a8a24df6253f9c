//go:build !bedrock

package llm

import (
	"fmt"
	"log/slog"

	"agentmux/internal/domain"
	"agentmux/internal/infra/config"
)

// NewBedrockProvider reports that this binary was built without Bedrock
// support. Rebuild with -tags bedrock to enable it.
func NewBedrockProvider(cfg config.ProviderConfig, _ *slog.Logger) (domain.LLMProvider, error) {
	return nil, fmt.Errorf("provider %q: bedrock support not compiled in (build with -tags bedrock)", cfg.Name)
}

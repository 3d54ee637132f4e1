package ai

import (
	"context"
	"fmt"

	"github.com/zhouzirui/voice-pipeline/backend/internal/config"
)

// NewCompleter 按 LLM_PROVIDER 构造云端补全能力，none 时返回 nil。
func NewCompleter(ctx context.Context, cfg *config.Config) (Completer, error) {
	var completer Completer

	switch cfg.LLM.Provider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderBedrock:
		bedrock, err := NewBedrockCompleter(ctx, cfg.LLM)
		if err != nil {
			return nil, err
		}
		completer = bedrock
	case config.ProviderArk:
		ark, err := NewArkCompleter(ctx, cfg.LLM)
		if err != nil {
			return nil, err
		}
		completer = ark
	case config.ProviderOpenAI:
		if !cfg.OpenAI.Enabled() {
			return nil, fmt.Errorf("llm provider openai requires OPENAI_API_KEY")
		}
		completer = NewOpenAICompleter(cfg.OpenAI.NewClient(), cfg.LLM.OpenAIModel, cfg.LLM.MaxTokens, cfg.LLM.Temperature, cfg.LLM.TopP)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}

	if cfg.LLM.Serialize {
		completer = NewSerializedCompleter(completer)
	}
	return completer, nil
}

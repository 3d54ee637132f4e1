package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/voice-pipeline/backend/internal/config"
)

// ArkCompleter 通过 eino 链调用火山方舟大模型。
type ArkCompleter struct {
	chain     compose.Runnable[map[string]any, *schema.Message]
	maxTokens int
}

// NewArkCompleter 使用配置创建方舟模型并编译补全链。
func NewArkCompleter(ctx context.Context, cfg config.LLMConfig) (*ArkCompleter, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return newArkCompleter(ctx, chatModel, cfg.MaxTokens)
}

func newArkCompleter(ctx context.Context, chatModel model.ChatModel, maxTokens int) (*ArkCompleter, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile completion chain: %w", err)
	}
	return &ArkCompleter{chain: runnable, maxTokens: maxTokens}, nil
}

func (c *ArkCompleter) Complete(ctx context.Context, prompt string, opts ...Option) (string, error) {
	o := applyOptions(c.maxTokens, opts)

	msg, err := c.chain.Invoke(ctx, map[string]any{"query": prompt},
		compose.WithChatModelOption(model.WithMaxTokens(o.maxTokens)))
	if err != nil {
		return "", completionErr(KindOther, fmt.Errorf("failed to run completion chain: %w", err))
	}
	if msg == nil {
		return "", completionErr(KindMalformed, fmt.Errorf("completion chain returned no message"))
	}
	return trimReply(msg.Content)
}

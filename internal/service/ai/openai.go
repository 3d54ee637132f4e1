package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAICompleter 通过 Chat Completions 接口补全。
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature *float64
	topP        *float64
}

func NewOpenAICompleter(client *openai.Client, model string, maxTokens int, temperature, topP *float64) *OpenAICompleter {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAICompleter{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, prompt string, opts ...Option) (string, error) {
	o := applyOptions(c.maxTokens, opts)

	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: o.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if c.temperature != nil {
		req.Temperature = float32(*c.temperature)
	}
	if c.topP != nil {
		req.TopP = float32(*c.topP)
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", completionErr(KindMalformed, errors.New("openai response has no choices"))
	}
	return trimReply(resp.Choices[0].Message.Content)
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return completionErr(kindForStatus(apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return completionErr(kindForStatus(reqErr.HTTPStatusCode), err)
	}
	return completionErr(KindTransient, fmt.Errorf("openai request failed: %w", err))
}

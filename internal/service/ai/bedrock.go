package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"github.com/zhouzirui/voice-pipeline/backend/internal/config"
)

const bedrockAnthropicVersion = "bedrock-2023-05-15"

type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockCompleter 通过 AWS Bedrock 调用 Anthropic 消息接口。
// 配置了 bearer token 时直接走 HTTPS，否则使用 SDK 默认凭证链签名。
type BedrockCompleter struct {
	invoker     bedrockInvoker
	http        *http.Client
	endpoint    string
	bearer      string
	modelID     string
	maxTokens   int
	temperature *float64
	topP        *float64
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      *float64         `json:"temperature,omitempty"`
	TopP             *float64         `json:"top_p,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// NewBedrockCompleter 根据配置创建 Bedrock 补全能力。
func NewBedrockCompleter(ctx context.Context, cfg config.LLMConfig) (*BedrockCompleter, error) {
	c := &BedrockCompleter{
		modelID:     cfg.Bedrock.ModelID,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
	}

	if token := strings.TrimSpace(cfg.Bedrock.BearerToken); token != "" {
		c.bearer = token
		c.http = &http.Client{Timeout: 60 * time.Second}
		c.endpoint = fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", cfg.Bedrock.Region)
		return c, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Bedrock.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	c.invoker = bedrockruntime.NewFromConfig(awsCfg)
	return c, nil
}

func (c *BedrockCompleter) Complete(ctx context.Context, prompt string, opts ...Option) (string, error) {
	o := applyOptions(c.maxTokens, opts)

	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        o.maxTokens,
		Messages:         []bedrockMessage{{Role: "user", Content: prompt}},
		Temperature:      c.temperature,
		TopP:             c.topP,
	})
	if err != nil {
		return "", completionErr(KindOther, fmt.Errorf("marshal bedrock request: %w", err))
	}

	var raw []byte
	if c.bearer != "" {
		raw, err = c.invokeBearer(ctx, body)
	} else {
		raw, err = c.invokeSDK(ctx, body)
	}
	if err != nil {
		return "", err
	}
	return parseBedrockResponse(raw)
}

func (c *BedrockCompleter) invokeSDK(ctx context.Context, body []byte) ([]byte, error) {
	out, err := c.invoker.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, classifyBedrockError(err)
	}
	return out.Body, nil
}

func (c *BedrockCompleter) invokeBearer(ctx context.Context, body []byte) ([]byte, error) {
	target := fmt.Sprintf("%s/model/%s/invoke", c.endpoint, url.PathEscape(c.modelID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, completionErr(KindOther, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, completionErr(KindTransient, fmt.Errorf("bedrock request failed: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, completionErr(KindTransient, fmt.Errorf("read bedrock response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, completionErr(kindForStatus(resp.StatusCode), fmt.Errorf("bedrock returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}
	return data, nil
}

func parseBedrockResponse(raw []byte) (string, error) {
	var resp bedrockResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", completionErr(KindMalformed, fmt.Errorf("decode bedrock response: %w", err))
	}
	if len(resp.Content) == 0 {
		return "", completionErr(KindMalformed, errors.New("bedrock response has no content"))
	}
	return trimReply(resp.Content[0].Text)
}

// classifyBedrockError 将 SDK 错误映射为补全错误分类。
func classifyBedrockError(err error) error {
	if strings.Contains(err.Error(), "failed to retrieve credentials") {
		return completionErr(KindNoCredentials, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException":
			return completionErr(KindAccessDenied, err)
		case "UnrecognizedClientException", "ExpiredTokenException", "InvalidSignatureException":
			return completionErr(KindNoCredentials, err)
		case "ThrottlingException", "ServiceUnavailableException", "ModelTimeoutException",
			"ModelNotReadyException", "InternalServerException":
			return completionErr(KindTransient, err)
		}
	}
	return completionErr(KindOther, err)
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindNoCredentials
	case status == http.StatusForbidden:
		return KindAccessDenied
	case status == http.StatusTooManyRequests || status >= 500:
		return KindTransient
	default:
		return KindOther
	}
}

package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"
)

// 可选的能力提供方。
const (
	ProviderNone       = "none"
	ProviderOpenAI     = "openai"
	ProviderGoogle     = "google"
	ProviderVolcengine = "volcengine"
	ProviderBedrock    = "bedrock"
	ProviderArk        = "ark"
	ProviderGTTS       = "gtts"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Audio      AudioConfig      `yaml:"audio"`
	ASR        ASRConfig        `yaml:"asr"`
	LLM        LLMConfig        `yaml:"llm"`
	TTS        TTSConfig        `yaml:"tts"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Volcengine VolcengineConfig `yaml:"volcengine"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AudioConfig 描述音频归一化参数。
type AudioConfig struct {
	TargetSampleRate int `yaml:"target_sample_rate"`
	RawSampleRate    int `yaml:"raw_sample_rate"`
}

// ASRConfig 描述语音识别能力。
type ASRConfig struct {
	Provider              string `yaml:"provider"`
	Language              string `yaml:"language"`
	Serialize             bool   `yaml:"serialize"`
	OpenAIModel           string `yaml:"openai_model"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`
}

// LLMConfig 描述云端补全能力。
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature *float64      `yaml:"temperature"`
	TopP        *float64      `yaml:"top_p"`
	Serialize   bool          `yaml:"serialize"`
	OpenAIModel string        `yaml:"openai_model"`
	Bedrock     BedrockConfig `yaml:"bedrock"`
	Ark         ArkConfig     `yaml:"ark"`
}

// BedrockConfig 描述 AWS Bedrock 访问参数。
type BedrockConfig struct {
	Region      string `yaml:"region"`
	ModelID     string `yaml:"model_id"`
	BearerToken string `yaml:"-"`
}

// ArkConfig 描述火山方舟大模型配置。
type ArkConfig struct {
	APIKey    string `yaml:"-"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	Region    string `yaml:"region"`
}

// TTSConfig 描述语音合成能力。
type TTSConfig struct {
	Provider    string `yaml:"provider"`
	Language    string `yaml:"language"`
	Serialize   bool   `yaml:"serialize"`
	GTTSBaseURL string `yaml:"gtts_base_url"`
	OpenAIModel string `yaml:"openai_model"`
	OpenAIVoice string `yaml:"openai_voice"`
}

// OpenAIConfig 为 OpenAI 系列能力共享的凭证。
type OpenAIConfig struct {
	APIKey  string `yaml:"-"`
	BaseURL string `yaml:"base_url"`
}

// VolcengineConfig 为火山引擎 ASR/TTS 共享的配置。
type VolcengineConfig struct {
	AppID          string  `yaml:"app_id"`
	AccessToken    string  `yaml:"-"`
	ConcurrentMode bool    `yaml:"concurrent_mode"`
	ASRLanguage    string  `yaml:"asr_language"`
	TTSVoice       string  `yaml:"tts_voice"`
	TTSSpeed       float32 `yaml:"tts_speed"`
	TTSVolume      float32 `yaml:"tts_volume"`
	TTSLanguage    string  `yaml:"tts_language"`
}

// MetricsConfig 描述 Prometheus 暴露方式。
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default 返回未经任何覆盖的默认配置。
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":5000"},
		Log:    LogConfig{Level: "info", Format: "json"},
		Audio:  AudioConfig{TargetSampleRate: 16000, RawSampleRate: 16000},
		ASR: ASRConfig{
			Provider:    ProviderOpenAI,
			Language:    "en",
			OpenAIModel: "whisper-1",
		},
		LLM: LLMConfig{
			Provider:    ProviderBedrock,
			MaxTokens:   150,
			OpenAIModel: "gpt-4o-mini",
			Bedrock: BedrockConfig{
				Region:  "us-east-1",
				ModelID: "anthropic.claude-3-haiku-20240307-v1:0",
			},
			Ark: ArkConfig{
				BaseURL: "https://ark.cn-beijing.volces.com/api/v3",
				Region:  "cn-beijing",
			},
		},
		TTS: TTSConfig{
			Provider:    ProviderGTTS,
			Language:    "en",
			GTTSBaseURL: "https://translate.google.com/translate_tts",
			OpenAIModel: "tts-1",
			OpenAIVoice: "alloy",
		},
		Volcengine: VolcengineConfig{
			ASRLanguage: "en-US",
			TTSSpeed:    1.0,
			TTSVolume:   1.0,
			TTSLanguage: "en",
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load 读取默认值、可选的 YAML 文件（CONFIG_FILE），再用环境变量覆盖。
func Load() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		addr, err := normalizeAddr(port)
		if err != nil {
			return err
		}
		c.Server.Addr = addr
	}

	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("LOG_FORMAT", c.Log.Format)

	if err := overrideInt(&c.Audio.TargetSampleRate, "AUDIO_TARGET_SAMPLE_RATE"); err != nil {
		return err
	}
	if err := overrideInt(&c.Audio.RawSampleRate, "AUDIO_RAW_SAMPLE_RATE"); err != nil {
		return err
	}

	c.ASR.Provider = strings.ToLower(getEnvOrDefault("ASR_PROVIDER", c.ASR.Provider))
	c.ASR.Language = getEnvOrDefault("ASR_LANGUAGE", c.ASR.Language)
	c.ASR.OpenAIModel = getEnvOrDefault("ASR_OPENAI_MODEL", c.ASR.OpenAIModel)
	c.ASR.GoogleCredentialsFile = getEnvOrDefault("GOOGLE_APPLICATION_CREDENTIALS", c.ASR.GoogleCredentialsFile)
	serializeASR, err := parseBoolEnv("ASR_SERIALIZE", c.ASR.Serialize)
	if err != nil {
		return err
	}
	c.ASR.Serialize = serializeASR

	if err := c.applyLLMEnv(); err != nil {
		return err
	}

	c.TTS.Provider = strings.ToLower(getEnvOrDefault("TTS_PROVIDER", c.TTS.Provider))
	c.TTS.Language = getEnvOrDefault("TTS_LANGUAGE", c.TTS.Language)
	c.TTS.GTTSBaseURL = getEnvOrDefault("GTTS_BASE_URL", c.TTS.GTTSBaseURL)
	c.TTS.OpenAIModel = getEnvOrDefault("TTS_OPENAI_MODEL", c.TTS.OpenAIModel)
	c.TTS.OpenAIVoice = getEnvOrDefault("TTS_OPENAI_VOICE", c.TTS.OpenAIVoice)
	serializeTTS, err := parseBoolEnv("TTS_SERIALIZE", c.TTS.Serialize)
	if err != nil {
		return err
	}
	c.TTS.Serialize = serializeTTS

	c.OpenAI.APIKey = getEnvOrDefault("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", c.OpenAI.BaseURL)

	if err := c.applyVolcengineEnv(); err != nil {
		return err
	}

	metricsEnabled, err := parseBoolEnv("METRICS_ENABLED", c.Metrics.Enabled)
	if err != nil {
		return err
	}
	c.Metrics.Enabled = metricsEnabled
	c.Metrics.Path = getEnvOrDefault("METRICS_PATH", c.Metrics.Path)

	return nil
}

func (c *Config) applyLLMEnv() error {
	c.LLM.Provider = strings.ToLower(getEnvOrDefault("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.OpenAIModel = getEnvOrDefault("LLM_OPENAI_MODEL", c.LLM.OpenAIModel)

	if err := overrideInt(&c.LLM.MaxTokens, "LLM_MAX_TOKENS"); err != nil {
		return err
	}

	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return err
	}
	if temperature != nil {
		c.LLM.Temperature = temperature
	}

	topP, err := parseOptionalFloatEnv("LLM_TOP_P")
	if err != nil {
		return err
	}
	if topP != nil {
		c.LLM.TopP = topP
	}

	serialize, err := parseBoolEnv("LLM_SERIALIZE", c.LLM.Serialize)
	if err != nil {
		return err
	}
	c.LLM.Serialize = serialize

	c.LLM.Bedrock.Region = getEnvOrDefault("AWS_REGION", c.LLM.Bedrock.Region)
	c.LLM.Bedrock.ModelID = getEnvOrDefault("BEDROCK_MODEL_ID", c.LLM.Bedrock.ModelID)
	c.LLM.Bedrock.BearerToken = getEnvOrDefault("AWS_BEARER_TOKEN_BEDROCK", c.LLM.Bedrock.BearerToken)

	c.LLM.Ark.APIKey = getEnvOrDefault("ARK_API_KEY", c.LLM.Ark.APIKey)
	c.LLM.Ark.AccessKey = getEnvOrDefault("ARK_ACCESS_KEY", c.LLM.Ark.AccessKey)
	c.LLM.Ark.SecretKey = getEnvOrDefault("ARK_SECRET_KEY", c.LLM.Ark.SecretKey)
	c.LLM.Ark.Model = getEnvOrDefault("ARK_MODEL", c.LLM.Ark.Model)
	c.LLM.Ark.BaseURL = getEnvOrDefault("ARK_BASE_URL", c.LLM.Ark.BaseURL)
	c.LLM.Ark.Region = getEnvOrDefault("ARK_REGION", c.LLM.Ark.Region)
	return nil
}

func (c *Config) applyVolcengineEnv() error {
	v := &c.Volcengine
	v.AppID = getEnvOrDefault("SPEECH_APP_ID", v.AppID)
	v.AccessToken = getEnvOrDefault("SPEECH_ACCESS_TOKEN", v.AccessToken)
	if v.AccessToken == "" {
		// 兼容旧变量名
		v.AccessToken = strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	}
	v.ASRLanguage = getEnvOrDefault("SPEECH_ASR_LANGUAGE", v.ASRLanguage)
	v.TTSVoice = getEnvOrDefault("SPEECH_TTS_VOICE", v.TTSVoice)
	v.TTSLanguage = getEnvOrDefault("SPEECH_TTS_LANGUAGE", v.TTSLanguage)

	concurrent, err := parseBoolEnv("SPEECH_CONCURRENT_MODE", v.ConcurrentMode)
	if err != nil {
		return err
	}
	v.ConcurrentMode = concurrent

	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return err
	}
	if speed != nil {
		v.TTSSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return err
	}
	if volume != nil {
		v.TTSVolume = *volume
	}
	return nil
}

// Validate 校验提供方名称与音频参数。
func (c *Config) Validate() error {
	if c.Audio.TargetSampleRate <= 0 {
		return fmt.Errorf("audio target sample rate must be positive, got %d", c.Audio.TargetSampleRate)
	}
	if c.Audio.RawSampleRate <= 0 {
		return fmt.Errorf("audio raw sample rate must be positive, got %d", c.Audio.RawSampleRate)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm max tokens must be positive, got %d", c.LLM.MaxTokens)
	}

	checks := []struct {
		name    string
		value   string
		allowed []string
	}{
		{"ASR_PROVIDER", c.ASR.Provider, []string{ProviderNone, ProviderOpenAI, ProviderGoogle, ProviderVolcengine}},
		{"LLM_PROVIDER", c.LLM.Provider, []string{ProviderNone, ProviderBedrock, ProviderArk, ProviderOpenAI}},
		{"TTS_PROVIDER", c.TTS.Provider, []string{ProviderNone, ProviderGTTS, ProviderOpenAI, ProviderVolcengine}},
	}
	for _, check := range checks {
		if !contains(check.allowed, check.value) {
			return fmt.Errorf("invalid %s value %q (allowed: %s)", check.name, check.value, strings.Join(check.allowed, ", "))
		}
	}
	return nil
}

// Enabled 表示是否提供了方舟所需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个方舟模型实例。
func (c LLMConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Ark.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	maxTokens := c.MaxTokens

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.Ark.BaseURL,
		Region:      c.Ark.Region,
		APIKey:      c.Ark.APIKey,
		AccessKey:   c.Ark.AccessKey,
		SecretKey:   c.Ark.SecretKey,
		Model:       c.Ark.Model,
		MaxTokens:   &maxTokens,
		Temperature: temperature,
		TopP:        topP,
	})
}

// Enabled 表示是否配置了 OpenAI 密钥。
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

// NewClient 创建 OpenAI 客户端，BaseURL 可指向兼容网关。
func (c OpenAIConfig) NewClient() *openai.Client {
	clientCfg := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		clientCfg.BaseURL = c.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

func normalizeAddr(port string) (string, error) {
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	if strings.Contains(port, ":") {
		// 允许直接传入 ":5000" 或 "127.0.0.1:5000"。
		return port, nil
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	return ":" + port, nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func overrideInt(dst *int, key string) error {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return err
	}
	if val != nil {
		*dst = *val
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}

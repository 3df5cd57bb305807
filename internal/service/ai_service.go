package service

import (
	"context"
	"encoding/json"
	"errors"
	"exam_hub_backend/internal/config"
	"exam_hub_backend/internal/util"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ContentGenerator 对外部生成能力的抽象：给一段文字简报，返回结构化内容。
// 模型输出不可控，所有不符合预期的输出一律按 GenerationError 处理，不会 panic。
type ContentGenerator interface {
	GenerateJSON(ctx context.Context, stage, brief string, out interface{}) error
}

type AIService struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewAIService(cfg config.AIConfig) *AIService {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &AIService{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: timeout,
	}
}

const jsonSystemPrompt = "你是一个教育平台的内容生成引擎。" +
	"只输出一个 JSON 对象，不要输出任何解释文字，不要使用 Markdown 代码块包裹。"

// GenerateJSON 调用模型并把返回内容解析进 out。stage 用于错误归因。
func (s *AIService) GenerateJSON(ctx context.Context, stage, brief string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: jsonSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: brief},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return util.NewGenerationError(stage, err)
	}

	if len(resp.Choices) == 0 {
		return util.NewGenerationError(stage, errors.New("model returned no choices"))
	}

	content := ExtractJSONObject(resp.Choices[0].Message.Content)
	if content == "" {
		return util.NewGenerationError(stage, errors.New("model returned no JSON object"))
	}

	if err := json.Unmarshal([]byte(content), out); err != nil {
		return util.NewGenerationError(stage, err)
	}

	return nil
}

// ExtractJSONObject 从模型输出中截取最外层的 JSON 对象。
// 部分模型无视指令附带代码块或前后缀文字，这里做一次宽容截取。
func ExtractJSONObject(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

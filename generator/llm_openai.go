package generator

import (
	"context"
	"errors"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIBackend implements ContentBackend over an OpenAI-compatible chat
// completions endpoint. It is an alternative to the Coze copy bot; image
// generation still goes through Coze.
type OpenAIBackend struct {
	Model string
	Opts  []option.RequestOption
}

// OpenAISettings 提供给备选通道的基础配置。
type OpenAISettings struct {
	Model   string
	APIKey  string
	BaseURL string
}

func NewOpenAIBackend(cfg *OpenAISettings) (*OpenAIBackend, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; provide LLM_API_KEY")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIBackend{Model: cfg.Model, Opts: opts}, nil
}

func (o *OpenAIBackend) Complete(ctx context.Context, instruction string) (string, error) {
	client := openai.NewClient(o.Opts...)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("你是一名小红书笔记创作者。第一行输出笔记标题，之后输出正文，不要额外解释。"),
			openai.UserMessage(instruction),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

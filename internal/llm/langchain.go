package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// LangchainProvider adapts any langchaingo llms.Model (OpenAI, Ollama,
// Google, etc.) to the Provider interface, so it can sit in a Chain as a
// secondary fallback behind Anthropic. internal/app does not construct one.
type LangchainProvider struct {
	model llms.Model
	name  string
}

func NewLangchainProvider(name string, model llms.Model) *LangchainProvider {
	return &LangchainProvider{model: model, name: name}
}

func (p *LangchainProvider) Name() string      { return p.name }
func (p *LangchainProvider) IsAvailable() bool { return p.model != nil }

func (p *LangchainProvider) Complete(ctx context.Context, systemText string, history []Message, userText string, params Params) (*Completion, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemText),
	}
	for _, m := range history {
		role := llms.ChatMessageTypeHuman
		if m.Role == "assistant" {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, m.Content))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, userText))

	opts := []llms.CallOption{
		llms.WithTemperature(params.Temperature),
	}
	if params.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(params.MaxTokens))
	}

	resp, err := p.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return nil, fmt.Errorf("llm: %s call failed: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm: %s returned no choices", p.name)
	}

	tokensUsed := 0
	if v, ok := resp.Choices[0].GenerationInfo["TotalTokens"].(int); ok {
		tokensUsed = v
	}

	return &Completion{
		Text:       resp.Choices[0].Content,
		TokensUsed: tokensUsed,
		Model:      params.Model,
	}, nil
}

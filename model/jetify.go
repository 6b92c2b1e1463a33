package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"
)

// Jetify generates text through a go.jetify.com/ai language model backed by
// the OpenAI or Anthropic SDK.
type Jetify struct {
	provider  string
	model     jetapi.LanguageModel
	maxTokens int
}

// NewOpenAI builds a generator over the OpenAI SDK. SDK retries are off;
// throttling is handled by the caller.
func NewOpenAI(apiKey, modelID, baseURL string) (*Jetify, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is empty")
	}
	if modelID == "" {
		modelID = "gpt-4o-mini"
	}
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
	}
	if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
		opts = append(opts, openaioption.WithBaseURL(base))
	}
	client := openaiclient.NewClient(opts...)
	return &Jetify{
		provider:  "openai",
		model:     jetopenai.NewLanguageModel(modelID, jetopenai.WithClient(client)),
		maxTokens: 1024,
	}, nil
}

func NewAnthropic(apiKey, modelID, baseURL string) (*Jetify, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is empty")
	}
	if modelID == "" {
		modelID = "claude-haiku-4-5-20251001"
	}
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithMaxRetries(0),
	}
	if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
		opts = append(opts, anthropicoption.WithBaseURL(base))
	}
	client := anthropicclient.NewClient(opts...)
	return &Jetify{
		provider:  "anthropic",
		model:     jetanthropic.NewLanguageModel(modelID, jetanthropic.WithClient(client)),
		maxTokens: 1024,
	}, nil
}

func (j *Jetify) Generate(ctx context.Context, msgs []Message) (string, error) {
	system, rest := splitSystem(msgs)

	messages := make([]jetapi.Message, 0, len(rest)+1)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: system})
	}
	messages = append(messages, jetMessages(rest)...)

	resp, err := jetai.GenerateText(ctx, messages,
		jetai.WithModel(j.model),
		jetai.WithMaxOutputTokens(j.maxTokens),
	)
	if err != nil {
		return "", j.classify(err)
	}
	if resp == nil {
		return "", nil
	}

	var full strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.(*jetapi.TextBlock); ok {
			full.WriteString(text.Text)
		}
	}
	return full.String(), nil
}

func (j *Jetify) classify(err error) error {
	var oaErr *openaiclient.Error
	if errors.As(err, &oaErr) && oaErr.StatusCode == http.StatusTooManyRequests {
		var h http.Header
		if oaErr.Response != nil {
			h = oaErr.Response.Header
		}
		return &RateLimitError{RetryAfter: retryAfterHeader(h), Err: err}
	}
	var anErr *anthropicclient.Error
	if errors.As(err, &anErr) && anErr.StatusCode == http.StatusTooManyRequests {
		var h http.Header
		if anErr.Response != nil {
			h = anErr.Response.Header
		}
		return &RateLimitError{RetryAfter: retryAfterHeader(h), Err: err}
	}
	return fmt.Errorf("%s: %w", j.provider, err)
}

func jetMessages(msgs []Message) []jetapi.Message {
	out := make([]jetapi.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleAssistant {
			out = append(out, &jetapi.AssistantMessage{Content: jetapi.ContentFromText(m.Content)})
			continue
		}
		out = append(out, &jetapi.UserMessage{Content: jetapi.ContentFromText(m.Content)})
	}
	return out
}

package providers

import (
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"github.com/webpilot-ai/webpilot/internal/llm"
)

// toMessages converts a generate request into langchaingo message content.
func toMessages(req llm.GenerateRequest) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, 2)
	if req.SystemMessage != "" {
		messages = append(messages, llms.MessageContent{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(req.SystemMessage)},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role:  schema.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(req.Prompt)},
	})
	return messages
}

// callOptions builds langchaingo call options from a generate request.
func callOptions(req llm.GenerateRequest) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	return opts
}

// fromContentResponse normalizes a langchaingo response. Transport does not
// grade its own output, so confidence is 1.0 here; the decision layer takes
// the minimum against the model's self-reported value.
func fromContentResponse(resp *llms.ContentResponse, model string) *llm.GenerateResponse {
	out := &llm.GenerateResponse{
		Confidence: 1.0,
		ModelName:  model,
	}
	if resp == nil || len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.Content = choice.Content
	out.TokensUsed = tokensFromInfo(choice.GenerationInfo)
	return out
}

func tokensFromInfo(info map[string]any) int {
	total := 0
	for _, key := range []string{"CompletionTokens", "PromptTokens", "completion_tokens", "prompt_tokens"} {
		if v, ok := info[key]; ok {
			switch n := v.(type) {
			case int:
				total += n
			case float64:
				total += int(n)
			}
		}
	}
	return total
}

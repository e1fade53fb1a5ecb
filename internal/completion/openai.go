package completion

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatible talks to an OpenAI-compatible local server (e.g. Ollama's
// OpenAI-compat API) via completionEndpoint. It is the default provider.
type OpenAICompatible struct {
	client       *openai.Client
	visionModel  string
	textModel    string
	embeddingDim int
}

// NewOpenAICompatible builds a client pointed at endpoint (an OpenAI-compatible
// base URL). apiKey may be empty for providers that don't require one.
func NewOpenAICompatible(endpoint, apiKey, visionModel, textModel string, embeddingDim int) *OpenAICompatible {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = endpoint
	return &OpenAICompatible{
		client:       openai.NewClientWithConfig(cfg),
		visionModel:  visionModel,
		textModel:    textModel,
		embeddingDim: embeddingDim,
	}
}

func (o *OpenAICompatible) CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, TextTimeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{}
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.textModel,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("text completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("text completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAICompatible) CompleteVision(ctx context.Context, prompt string, imageBase64 string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, VisionTimeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.visionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: "data:image/jpeg;base64," + imageBase64,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("vision completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("vision completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAICompatible) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, EmbeddingTimeout)
	defer cancel()

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(o.textModel),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding: empty response")
	}

	vec := resp.Data[0].Embedding
	if o.embeddingDim > 0 && len(vec) > o.embeddingDim {
		vec = vec[:o.embeddingDim]
	}
	return vec, nil
}

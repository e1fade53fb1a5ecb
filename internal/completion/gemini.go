package completion

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini is the alternate completion.Provider, selectable via a provider
// switch between "openai" and "gemini" — kept so a Gemini deployment can
// serve as the completion service without code changes elsewhere in the
// Extractor or Query Planner.
type Gemini struct {
	client       *genai.Client
	visionModel  string
	textModel    string
	embedModel   string
	embeddingDim int
}

// NewGemini dials a Gemini-compatible endpoint. When endpoint is empty the
// client uses the library's default (Google's own API); local Gemini-compat
// deployments set endpoint via option.WithEndpoint.
func NewGemini(ctx context.Context, apiKey, endpoint, visionModel, textModel string, embeddingDim int) (*Gemini, error) {
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{
		client:       client,
		visionModel:  visionModel,
		textModel:    textModel,
		embedModel:   textModel,
		embeddingDim: embeddingDim,
	}, nil
}

func (g *Gemini) CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, TextTimeout)
	defer cancel()

	model := g.client.GenerativeModel(g.textModel)
	if systemPrompt != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini text completion: %w", err)
	}
	return firstTextPart(resp)
}

func (g *Gemini) CompleteVision(ctx context.Context, prompt string, imageBase64 string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, VisionTimeout)
	defer cancel()

	raw, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	model := g.client.GenerativeModel(g.visionModel)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt), genai.ImageData("jpeg", raw))
	if err != nil {
		return "", fmt.Errorf("gemini vision completion: %w", err)
	}
	return firstTextPart(resp)
}

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, EmbeddingTimeout)
	defer cancel()

	em := g.client.EmbeddingModel(g.embedModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding: %w", err)
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("gemini embedding: empty response")
	}
	vec := res.Embedding.Values
	if g.embeddingDim > 0 && len(vec) > g.embeddingDim {
		vec = vec[:g.embeddingDim]
	}
	return vec, nil
}

func firstTextPart(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini response: no candidates")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			return string(text), nil
		}
	}
	return "", fmt.Errorf("gemini response: no text part")
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

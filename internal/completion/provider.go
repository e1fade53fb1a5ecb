// Package completion is the completion service boundary used by the
// Extractor and the Query Planner: text completion,
// vision completion (image input), and embeddings, against whichever
// provider the configuration names (OpenAI-compatible or Gemini), behind
// one small interface instead of an invoice-specific method per backend.
package completion

import (
	"context"
	"time"
)

// Timeouts for each operation kind.
const (
	VisionTimeout    = 120 * time.Second
	TextTimeout      = 60 * time.Second
	EmbeddingTimeout = 10 * time.Second
)

// Provider is the capability set a completion back-end implements.
type Provider interface {
	// CompleteText sends a single-turn text prompt and returns the raw
	// model response.
	CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// CompleteVision sends a prompt plus a base64-encoded image and
	// returns the raw model response.
	CompleteVision(ctx context.Context, prompt string, imageBase64 string) (string, error)

	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

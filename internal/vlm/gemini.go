package vlm

import (
	"context"
	"fmt"

	"github.com/examsmart/examsmart-backend/internal/config"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const extractPrompt = `You are reading photos of a printed exam paper.
Return ONLY a JSON object with this structure:
{
  "title": string,
  "courseCode": string (like "CS-101", empty if not printed),
  "description": string,
  "instructions": string,
  "duration": integer minutes (0 if not printed),
  "passingScore": integer percent (0 if not printed),
  "questions": [
    {
      "text": string,
      "type": "multiple_choice" | "short_answer" | "essay",
      "points": integer,
      "modelAnswer": string,
      "options": [{"text": string, "isCorrect": boolean}]
    }
  ]
}
Keep questions in the printed order. Use an empty options array for non multiple-choice questions.`

// GeminiExtractor sends every photo to a Gemini model in one request.
type GeminiExtractor struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

func NewGeminiExtractor(ctx context.Context, cfg config.VLMConfig, log zerolog.Logger) (*GeminiExtractor, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini VLM provider")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := cfg.GeminiModel
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiExtractor{
		client: client,
		model:  model,
		log:    log.With().Str("component", "vlm_gemini").Logger(),
	}, nil
}

func (g *GeminiExtractor) Extract(ctx context.Context, images []Image) (*ExamDraft, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no images", ErrUnavailable)
	}

	parts := []*genai.Part{genai.NewPartFromText(extractPrompt)}
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		g.log.Error().Err(err).Msg("Gemini request failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	raw := result.Text()
	if raw == "" {
		return nil, fmt.Errorf("%w: empty model response", ErrUnavailable)
	}
	g.log.Debug().Int("images", len(images)).Int("bytes", len(raw)).Msg("Gemini extraction finished")

	return Normalize([]byte(raw))
}

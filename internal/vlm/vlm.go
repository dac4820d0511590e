// Package vlm turns photos of a printed exam into an exam draft using a
// vision-language model.
package vlm

import (
	"context"
	"errors"
	"fmt"

	"github.com/examsmart/examsmart-backend/internal/config"
	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/rs/zerolog"
)

// ErrUnavailable wraps every failure to reach or understand the model.
var ErrUnavailable = errors.New("vlm service unavailable")

// Image is one uploaded exam photo.
type Image struct {
	Filename string
	MIMEType string
	Data     []byte
}

// ExamDraft is the normalized exam structure extracted from photos.
type ExamDraft struct {
	Title        string
	CourseCode   string
	Description  string
	Instructions string
	Duration     int
	PassingScore int
	Questions    []DraftQuestion
}

// DraftQuestion is one extracted question.
type DraftQuestion struct {
	Text        string
	Type        model.QuestionType
	Points      int
	ModelAnswer string
	Options     []DraftOption
}

// DraftOption is one extracted multiple-choice option.
type DraftOption struct {
	Text      string
	IsCorrect bool
}

// Extractor converts exam photos into a draft.
type Extractor interface {
	Extract(ctx context.Context, images []Image) (*ExamDraft, error)
}

// Pinger is implemented by extractors that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New builds the extractor selected by cfg.Provider.
func New(ctx context.Context, cfg config.VLMConfig, log zerolog.Logger) (Extractor, error) {
	switch cfg.Provider {
	case "", "http":
		return NewHTTPExtractor(cfg, log), nil
	case "gemini":
		return NewGeminiExtractor(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown VLM provider %q", cfg.Provider)
	}
}

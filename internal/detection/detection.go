// Package detection classifies essay answers as human- or machine-written.
//
// Classification is best effort: a Detector never returns an error. When no
// classifier can be reached the answer is treated as human-written, so an
// outage cannot cost a student credit.
package detection

import (
	"context"

	"github.com/examsmart/examsmart-backend/internal/config"
	"github.com/rs/zerolog"
)

// Source names where a Result came from.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
	SourceDefault  Source = "default"
	SourceMock     Source = "mock"
)

// Result is a classification of one text. Confidence and HumanProbability are percentages.
type Result struct {
	IsMachineGenerated bool    `json:"isMachineGenerated"`
	Confidence         float64 `json:"confidence"`
	HumanProbability   float64 `json:"humanProbability"`
	Source             Source  `json:"source"`
}

// DefaultResult is returned when every classifier failed.
func DefaultResult() Result {
	return Result{IsMachineGenerated: false, Confidence: 100, HumanProbability: 100, Source: SourceDefault}
}

// Detector classifies text.
type Detector interface {
	Classify(ctx context.Context, text string) Result
}

// Pinger is implemented by detectors backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New builds the detector selected by cfg.Mode.
func New(cfg config.DetectionConfig, log zerolog.Logger) Detector {
	if cfg.Mode == "mock" {
		log.Warn().Msg("AI detection running in mock mode")
		return NewMock()
	}
	return NewHTTPClient(cfg, log)
}

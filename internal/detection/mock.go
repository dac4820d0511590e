package detection

import (
	"context"
	"hash/fnv"

	"github.com/examsmart/examsmart-backend/internal/metrics"
)

// Mock is a deterministic stand-in for a detection service, scoring text by
// length plus a jitter derived from its hash.
type Mock struct{}

// NewMock creates a Mock detector.
func NewMock() *Mock { return &Mock{} }

// Score returns the mock machine-likelihood score in [0, 100).
func (m *Mock) Score(text string) float64 {
	var score float64
	switch n := len(text); {
	case n > 500:
		score = 30
	case n > 200:
		score = 20
	default:
		score = 10
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	score += float64(h.Sum32() % 30)

	return score
}

// Classify implements Detector.
func (m *Mock) Classify(_ context.Context, text string) Result {
	score := m.Score(text)
	res := Result{
		IsMachineGenerated: score > 50,
		HumanProbability:   100 - score,
		Source:             SourceMock,
	}
	if res.IsMachineGenerated {
		res.Confidence = score
	} else {
		res.Confidence = 100 - score
	}
	metrics.DetectionRequests.WithLabelValues(string(SourceMock), outcome(res)).Inc()
	return res
}

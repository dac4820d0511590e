package detection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errUnknownShape = errors.New("unrecognized detection response")

// shape tags the known response layouts of detection services.
type shape int

const (
	shapeUnknown shape = iota
	// {"classification": "...", "confidence" | "confidence_score", "human_probability", "machine_probability"}
	shapeClassification
	// {"label": "machine" | "human", "score"}
	shapeLabel
	// {"ai_probability" | "machine_probability"}
	shapeProbability
)

// number accepts a JSON number or a numeric string; anything else leaves it unset.
type number struct {
	v  float64
	ok bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			n.v, n.ok = f, true
		}
		return nil
	}
	if err := json.Unmarshal(b, &n.v); err != nil {
		return err
	}
	n.ok = true
	return nil
}

type rawResponse struct {
	Classification     *string `json:"classification"`
	Confidence         number  `json:"confidence"`
	ConfidenceScore    number  `json:"confidence_score"`
	HumanProbability   number  `json:"human_probability"`
	MachineProbability number  `json:"machine_probability"`
	Label              *string `json:"label"`
	Score              number  `json:"score"`
	AIProbability      number  `json:"ai_probability"`
}

func (r *rawResponse) shape() shape {
	switch {
	case r.Classification != nil:
		return shapeClassification
	case r.Label != nil:
		return shapeLabel
	case r.AIProbability.ok || r.MachineProbability.ok:
		return shapeProbability
	default:
		return shapeUnknown
	}
}

// decodeResponse parses a detection response body into a Result.
func decodeResponse(body []byte) (Result, error) {
	var raw rawResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return Result{}, fmt.Errorf("decode detection response: %w", err)
	}

	switch raw.shape() {
	case shapeClassification:
		return fromClassification(&raw), nil
	case shapeLabel:
		return fromLabel(&raw)
	case shapeProbability:
		return fromProbability(&raw), nil
	default:
		return Result{}, errUnknownShape
	}
}

// percent normalizes a probability given either as a fraction or a percentage.
func percent(v float64) float64 {
	if v >= 0 && v <= 1 {
		v *= 100
	}
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// fromClassification handles labels such as "Machine-Generated",
// "Human-Written" and "Uncertain but it is likely to be Machine-Generated".
func fromClassification(r *rawResponse) Result {
	machine := strings.Contains(strings.ToLower(*r.Classification), "machine-generated")

	res := Result{IsMachineGenerated: machine, Confidence: 100, HumanProbability: 100}
	switch {
	case r.HumanProbability.ok:
		res.HumanProbability = percent(r.HumanProbability.v)
	case r.MachineProbability.ok:
		res.HumanProbability = 100 - percent(r.MachineProbability.v)
	case machine:
		res.HumanProbability = 0
	}

	switch {
	case r.ConfidenceScore.ok:
		res.Confidence = percent(r.ConfidenceScore.v)
	case r.Confidence.ok:
		res.Confidence = percent(r.Confidence.v)
	case machine:
		res.Confidence = 100 - res.HumanProbability
	default:
		res.Confidence = res.HumanProbability
	}
	return res
}

func fromLabel(r *rawResponse) (Result, error) {
	var machine bool
	switch strings.ToLower(strings.TrimSpace(*r.Label)) {
	case "machine", "ai", "machine-generated", "fake", "generated":
		machine = true
	case "human", "real", "human-written":
		machine = false
	default:
		return Result{}, fmt.Errorf("%w: label %q", errUnknownShape, *r.Label)
	}

	conf := 100.0
	if r.Score.ok {
		conf = percent(r.Score.v)
	}
	human := conf
	if machine {
		human = 100 - conf
	}
	return Result{IsMachineGenerated: machine, Confidence: conf, HumanProbability: human}, nil
}

func fromProbability(r *rawResponse) Result {
	p := r.MachineProbability
	if r.AIProbability.ok {
		p = r.AIProbability
	}
	machineP := percent(p.v)
	conf := machineP
	if machineP <= 50 {
		conf = 100 - machineP
	}
	return Result{IsMachineGenerated: machineP > 50, Confidence: conf, HumanProbability: 100 - machineP}
}

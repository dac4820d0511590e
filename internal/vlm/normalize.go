package vlm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/examsmart/examsmart-backend/internal/model"
)

// Defaults applied to fields the model did not return.
const (
	DefaultTitle        = "Exam from Photos"
	DefaultDuration     = 60
	DefaultPassingScore = 70
	DefaultInstructions = "Answer all questions."
)

// intValue accepts a JSON number or numeric string.
type intValue struct {
	v  int
	ok bool
}

func (n *intValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			n.v, n.ok = int(f), true
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	n.v, n.ok = int(f), true
	return nil
}

// boolValue accepts a JSON bool, a "true"/"false" string or 0/1.
type boolValue struct {
	v  bool
	ok bool
}

func (b *boolValue) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.ToLower(string(bytes.TrimSpace(data))), `"`)
	switch s {
	case "true", "1", "yes":
		b.v, b.ok = true, true
	case "false", "0", "no":
		b.v, b.ok = false, true
	}
	return nil
}

type rawOption struct {
	Text       string    `json:"text"`
	ChoiceText string    `json:"choice_text"`
	IsCorrect  boolValue `json:"isCorrect"`
	IsCorrect2 boolValue `json:"is_correct"`
	Correct    boolValue `json:"correct"`
}

// UnmarshalJSON accepts either an object or a bare option string.
func (o *rawOption) UnmarshalJSON(b []byte) error {
	if len(bytes.TrimSpace(b)) > 0 && bytes.TrimSpace(b)[0] == '"' {
		return json.Unmarshal(b, &o.Text)
	}
	type plain rawOption
	return json.Unmarshal(b, (*plain)(o))
}

type rawQuestion struct {
	Text          string      `json:"text"`
	QuestionText  string      `json:"question_text"`
	Type          string      `json:"type"`
	QuestionType  string      `json:"question_type"`
	Points        intValue    `json:"points"`
	Marks         intValue    `json:"marks"`
	ModelAnswer   string      `json:"modelAnswer"`
	ModelAnswer2  string      `json:"model_answer"`
	CorrectAnswer string      `json:"correct_answer"`
	Options       []rawOption `json:"options"`
	Choices       []rawOption `json:"choices"`
}

type rawExam struct {
	Title         string        `json:"title"`
	ExamTitle     string        `json:"exam_title"`
	CourseCode    string        `json:"courseCode"`
	CourseCode2   string        `json:"course_code"`
	Description   string        `json:"description"`
	Instructions  string        `json:"instructions"`
	Duration      intValue      `json:"duration"`
	PassingScore  intValue      `json:"passingScore"`
	PassingScore2 intValue      `json:"passing_score"`
	Questions     []rawQuestion `json:"questions"`
	ExamQuestions []rawQuestion `json:"exam_questions"`
}

// envelope matches responses that nest the exam under a key.
type envelope struct {
	Exam   json.RawMessage `json:"exam"`
	Data   json.RawMessage `json:"data"`
	Result json.RawMessage `json:"result"`
}

// Normalize maps any of the known model response layouts onto an ExamDraft.
func Normalize(body []byte) (*ExamDraft, error) {
	body = stripFences(body)

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	for _, inner := range []json.RawMessage{env.Exam, env.Data, env.Result} {
		if len(inner) > 0 && inner[0] == '{' {
			body = inner
			break
		}
	}

	var raw rawExam
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode exam: %v", ErrUnavailable, err)
	}

	draft := &ExamDraft{
		Title:        firstNonEmpty(raw.Title, raw.ExamTitle, DefaultTitle),
		CourseCode:   firstNonEmpty(raw.CourseCode, raw.CourseCode2),
		Description:  raw.Description,
		Instructions: firstNonEmpty(raw.Instructions, DefaultInstructions),
		Duration:     firstPositive(raw.Duration, intValue{v: DefaultDuration, ok: true}),
		PassingScore: firstPositive(raw.PassingScore, raw.PassingScore2, intValue{v: DefaultPassingScore, ok: true}),
	}

	questions := raw.Questions
	if len(questions) == 0 {
		questions = raw.ExamQuestions
	}
	for i, q := range questions {
		draft.Questions = append(draft.Questions, normalizeQuestion(i, q))
	}

	if len(draft.Questions) == 0 {
		draft.Questions = []DraftQuestion{{
			Text:   "Question extracted from image",
			Type:   model.QuestionTypeEssay,
			Points: model.DefaultQuestionPoints,
		}}
	}
	return draft, nil
}

func normalizeQuestion(i int, q rawQuestion) DraftQuestion {
	options := q.Options
	if len(options) == 0 {
		options = q.Choices
	}

	out := DraftQuestion{
		Text:        firstNonEmpty(q.Text, q.QuestionText, fmt.Sprintf("Question %d", i+1)),
		Type:        questionType(firstNonEmpty(q.Type, q.QuestionType), len(options) > 0),
		Points:      firstPositive(q.Points, q.Marks, intValue{v: model.DefaultQuestionPoints, ok: true}),
		ModelAnswer: strings.TrimSpace(firstNonEmpty(q.ModelAnswer, q.ModelAnswer2, q.CorrectAnswer)),
	}

	if out.Type != model.QuestionTypeMultipleChoice {
		return out
	}

	for j, o := range options {
		opt := DraftOption{Text: firstNonEmpty(o.Text, o.ChoiceText, fmt.Sprintf("Option %d", j+1))}
		switch {
		case o.IsCorrect.ok:
			opt.IsCorrect = o.IsCorrect.v
		case o.IsCorrect2.ok:
			opt.IsCorrect = o.IsCorrect2.v
		case o.Correct.ok:
			opt.IsCorrect = o.Correct.v
		}
		if !opt.IsCorrect && out.ModelAnswer != "" && strings.EqualFold(opt.Text, out.ModelAnswer) {
			opt.IsCorrect = true
		}
		out.Options = append(out.Options, opt)
	}
	return out
}

func questionType(raw string, hasOptions bool) model.QuestionType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "multiple_choice", "mcq", "multiple choice", "multiple-choice":
		return model.QuestionTypeMultipleChoice
	case "short_answer", "short answer":
		return model.QuestionTypeShortAnswer
	case "essay":
		return model.QuestionTypeEssay
	}
	if hasOptions {
		return model.QuestionTypeMultipleChoice
	}
	return model.QuestionTypeEssay
}

// stripFences removes a surrounding ```json ... ``` block.
func stripFences(b []byte) []byte {
	s := strings.TrimSpace(string(b))
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return []byte(strings.TrimSpace(s))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstPositive(vals ...intValue) int {
	for _, v := range vals {
		if v.ok && v.v > 0 {
			return v.v
		}
	}
	return 0
}

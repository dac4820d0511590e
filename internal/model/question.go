package model

import "strings"

// QuestionType enumerates the kinds of questions.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
	QuestionTypeEssay          QuestionType = "essay"
)

// IsFreeText reports whether answers are graded by the essay path.
func (t QuestionType) IsFreeText() bool {
	return t == QuestionTypeEssay || t == QuestionTypeShortAnswer
}

// DefaultQuestionPoints applies when a question is created without points.
const DefaultQuestionPoints = 10

// Question represents a single exam question. Options are ordered by Order.
type Question struct {
	ID     int          `json:"id"`
	ExamID int          `json:"examId"`
	Text   string       `json:"text"`
	Type   QuestionType `json:"type"`
	Points int          `json:"points"`
	Order  int          `json:"order"`
	// ModelAnswer holds the correct option letter for multiple choice,
	// or the reference answer for free-text questions.
	ModelAnswer string   `json:"modelAnswer"`
	Options     []Option `json:"options,omitempty"`
}

// Option represents a multiple-choice option.
type Option struct {
	ID         int    `json:"id"`
	QuestionID int    `json:"questionId"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"isCorrect"`
	Order      int    `json:"order"`
}

// OptionLetter maps a 0-based option position to "a", "b", ... "z", "aa", ...
func OptionLetter(i int) string {
	if i < 0 {
		return ""
	}
	var b []byte
	for {
		b = append([]byte{byte('a' + i%26)}, b...)
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	return string(b)
}

// OptionIndex is the inverse of OptionLetter. It returns -1 for anything that is not a letter code.
func OptionIndex(letter string) int {
	letter = strings.ToLower(strings.TrimSpace(letter))
	if letter == "" {
		return -1
	}
	n := 0
	for _, c := range letter {
		if c < 'a' || c > 'z' {
			return -1
		}
		n = n*26 + int(c-'a'+1)
	}
	return n - 1
}

// CorrectLetter returns the letter this question is graded against:
// the stored model answer when it is a letter code, else the first option flagged correct.
func (q *Question) CorrectLetter() string {
	if idx := OptionIndex(q.ModelAnswer); idx >= 0 && idx < len(q.Options) {
		return OptionLetter(idx)
	}
	for i, o := range q.Options {
		if o.IsCorrect {
			return OptionLetter(i)
		}
	}
	return ""
}

package service

import (
	"math"
	"strings"

	"github.com/examsmart/examsmart-backend/internal/model"
)

// resolveChoice normalizes a multiple-choice selection to the option's letter.
// The selection may be an option id, a letter, or the option's text, tried in that order.
func resolveChoice(q *model.Question, answer string, optionID *int) (string, *int, bool) {
	if optionID != nil {
		for i := range q.Options {
			if q.Options[i].ID == *optionID {
				id := q.Options[i].ID
				return model.OptionLetter(i), &id, true
			}
		}
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", nil, false
	}
	if idx := model.OptionIndex(answer); idx >= 0 && idx < len(q.Options) {
		id := q.Options[idx].ID
		return model.OptionLetter(idx), &id, true
	}
	for i := range q.Options {
		if strings.EqualFold(strings.TrimSpace(q.Options[i].Text), answer) {
			id := q.Options[i].ID
			return model.OptionLetter(i), &id, true
		}
	}
	return "", nil, false
}

// scoreChoice compares a normalized letter against the question's correct letter.
// It is the only multiple-choice scoring rule, used at submit time and by the batch.
func scoreChoice(letter string, q *model.Question) (bool, int) {
	correct := q.CorrectLetter()
	if correct == "" {
		return false, 0
	}
	if strings.EqualFold(strings.TrimSpace(letter), correct) {
		return true, q.Points
	}
	return false, 0
}

// percentage returns round(100 * earned / total), or 0 when total is 0.
func percentage(earned, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(earned) / float64(total)))
}

package service

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/examsmart/examsmart-backend/internal/vlm"
	"github.com/rs/zerolog"
)

var examKeyPattern = regexp.MustCompile(`^[0-9A-F]{3}-[0-9A-F]{4}-[0-9A-F]{3}$`)

type stubExtractor struct {
	draft *vlm.ExamDraft
	err   error
}

func (s stubExtractor) Extract(context.Context, []vlm.Image) (*vlm.ExamDraft, error) {
	return s.draft, s.err
}

func newExamService(store *memStore, ex vlm.Extractor) (*ExamService, *memPaperCache) {
	papers := newMemPaperCache()
	return NewExamService(store, store, papers, ex, zerolog.Nop()), papers
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func sampleCreateRequest() *model.CreateExamRequest {
	return &model.CreateExamRequest{
		Title:        " Algorithms ",
		CourseCode:   "cs-201",
		Duration:     45,
		PassingScore: 60,
		Questions: []model.QuestionInput{
			{Text: "Best sort?", Type: model.QuestionTypeMultipleChoice, Points: intPtr(4),
				Options: []model.OptionInput{{Text: "Bubble"}, {Text: "Merge", IsCorrect: true}}},
			{Text: "Explain recursion.", Type: model.QuestionTypeEssay},
		},
	}
}

func TestGenerateExamKeyFormat(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		key, err := GenerateExamKey()
		if err != nil {
			t.Fatalf("GenerateExamKey: %v", err)
		}
		if !examKeyPattern.MatchString(key) {
			t.Fatalf("key %q does not match XXX-XXXX-XXX", key)
		}
		seen[key] = true
	}
	if len(seen) < 45 {
		t.Errorf("only %d distinct keys in 50 draws", len(seen))
	}
}

func TestCreateExam(t *testing.T) {
	store := newMemStore()
	svc, _ := newExamService(store, nil)

	e, err := svc.CreateExam(context.Background(), 1, sampleCreateRequest())
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if e.Title != "Algorithms" || e.CourseCode != "CS-201" || e.IsActive {
		t.Errorf("exam = %+v", e)
	}
	if !examKeyPattern.MatchString(e.ExamKey) {
		t.Errorf("exam key %q", e.ExamKey)
	}

	mcq := e.Questions[0]
	if mcq.ModelAnswer != "b" || !mcq.Options[1].IsCorrect || mcq.Points != 4 {
		t.Errorf("mcq = %+v", mcq)
	}
	if e.Questions[1].Points != model.DefaultQuestionPoints || e.Questions[1].Order != 2 {
		t.Errorf("essay = %+v", e.Questions[1])
	}
}

func TestCreateExamRetriesOnKeyCollision(t *testing.T) {
	store := newMemStore()
	store.duplicateKeyOnce = true
	svc, _ := newExamService(store, nil)

	if _, err := svc.CreateExam(context.Background(), 1, sampleCreateRequest()); err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if store.created != 1 {
		t.Errorf("created = %d, want 1", store.created)
	}
}

func TestCreateExamRejectsSingleOptionChoice(t *testing.T) {
	svc, _ := newExamService(newMemStore(), nil)
	req := sampleCreateRequest()
	req.Questions[0].Options = req.Questions[0].Options[:1]

	if _, err := svc.CreateExam(context.Background(), 1, req); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestCorrectLetter(t *testing.T) {
	opts := []model.OptionInput{{Text: "Red"}, {Text: "Green"}, {Text: "Blue"}}

	tests := []struct {
		name        string
		options     []model.OptionInput
		modelAnswer string
		want        string
	}{
		{"flagged option wins", []model.OptionInput{{Text: "Red"}, {Text: "Green", IsCorrect: true}}, "a", "b"},
		{"letter", opts, "C", "c"},
		{"letter out of range", opts, "e", ""},
		{"text", opts, "green", "b"},
		{"none", opts, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := correctLetter(tt.options, tt.modelAnswer); got != tt.want {
				t.Errorf("correctLetter = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUpdateExam(t *testing.T) {
	store := newMemStore()
	svc, papers := newExamService(store, nil)
	ctx := context.Background()

	e, err := svc.CreateExam(ctx, 1, sampleCreateRequest())
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}

	t.Run("other professor", func(t *testing.T) {
		_, err := svc.UpdateExam(ctx, 2, e.ID, &model.UpdateExamRequest{Title: strPtr("Mine now")})
		if !errors.Is(err, ErrNotExamOwner) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("missing exam", func(t *testing.T) {
		_, err := svc.UpdateExam(ctx, 1, 99999, &model.UpdateExamRequest{})
		if !errors.Is(err, ErrExamNotFound) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("unknown question id", func(t *testing.T) {
		qs := []model.QuestionInput{{ID: intPtr(99999), Text: "?", Type: model.QuestionTypeEssay}}
		_, err := svc.UpdateExam(ctx, 1, e.ID, &model.UpdateExamRequest{Questions: &qs})
		if !errors.Is(err, ErrUnknownQuestionID) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("fields and questions", func(t *testing.T) {
		qs := []model.QuestionInput{{ID: intPtr(e.Questions[1].ID), Text: "Explain iteration.", Type: model.QuestionTypeEssay, Points: intPtr(20)}}
		active := true
		got, err := svc.UpdateExam(ctx, 1, e.ID, &model.UpdateExamRequest{
			Title:     strPtr("Algorithms II"),
			IsActive:  &active,
			Questions: &qs,
		})
		if err != nil {
			t.Fatalf("UpdateExam: %v", err)
		}
		if got.Title != "Algorithms II" || !got.IsActive || got.Duration != 45 {
			t.Errorf("exam = %+v", got)
		}
		if len(got.Questions) != 1 || got.Questions[0].Points != 20 || got.Questions[0].ID != e.Questions[1].ID {
			t.Errorf("questions = %+v", got.Questions)
		}
		if len(papers.invalidated) == 0 || papers.invalidated[len(papers.invalidated)-1] != e.ID {
			t.Error("paper cache not invalidated")
		}
	})
}

func TestDeleteExam(t *testing.T) {
	store := newMemStore()
	svc, _ := newExamService(store, nil)
	ctx := context.Background()
	e, _ := svc.CreateExam(ctx, 1, sampleCreateRequest())

	if err := svc.DeleteExam(ctx, 2, e.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("delete by other professor err = %v", err)
	}
	if err := svc.DeleteExam(ctx, 1, e.ID); err != nil {
		t.Fatalf("DeleteExam: %v", err)
	}
	if _, err := svc.GetExamDetail(ctx, 1, e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("detail after delete err = %v", err)
	}
}

func TestCreateFromPhotos(t *testing.T) {
	images := []vlm.Image{{Filename: "p1.jpg", MIMEType: "image/jpeg", Data: []byte{0xff}}}

	t.Run("extractor down stores nothing", func(t *testing.T) {
		store := newMemStore()
		svc, _ := newExamService(store, stubExtractor{err: vlm.ErrUnavailable})

		_, err := svc.CreateFromPhotos(context.Background(), 1, images)
		if !errors.Is(err, ErrServiceUnavailable) {
			t.Fatalf("err = %v, want service unavailable", err)
		}
		if store.created != 0 {
			t.Errorf("created = %d, want 0", store.created)
		}
	})

	t.Run("no images", func(t *testing.T) {
		svc, _ := newExamService(newMemStore(), stubExtractor{})
		if _, err := svc.CreateFromPhotos(context.Background(), 1, nil); !errors.Is(err, ErrNoFiles) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("draft gets defaults", func(t *testing.T) {
		draft := &vlm.ExamDraft{
			CourseCode: "not a code",
			Questions: []vlm.DraftQuestion{
				{Text: "Pick one", Type: model.QuestionTypeMultipleChoice, Points: 2, ModelAnswer: "Yes",
					Options: []vlm.DraftOption{{Text: "No"}, {Text: "Yes"}}},
				{Text: "Lonely option", Type: model.QuestionTypeMultipleChoice, Points: 3,
					Options: []vlm.DraftOption{{Text: "Only"}}},
			},
		}
		store := newMemStore()
		svc, _ := newExamService(store, stubExtractor{draft: draft})

		e, err := svc.CreateFromPhotos(context.Background(), 9, images)
		if err != nil {
			t.Fatalf("CreateFromPhotos: %v", err)
		}
		if e.Title != vlm.DefaultTitle || e.Duration != vlm.DefaultDuration || e.PassingScore != vlm.DefaultPassingScore {
			t.Errorf("defaults not applied: %+v", e)
		}
		if !e.IsActive || e.CreatorID != 9 {
			t.Errorf("exam = %+v", e)
		}
		if !regexp.MustCompile(`^AUTO-\d{4}$`).MatchString(e.CourseCode) {
			t.Errorf("course code = %q", e.CourseCode)
		}
		if e.Questions[0].ModelAnswer != "b" {
			t.Errorf("model answer = %q, want b", e.Questions[0].ModelAnswer)
		}
		if e.Questions[1].Type != model.QuestionTypeEssay || len(e.Questions[1].Options) != 0 {
			t.Errorf("single-option question = %+v", e.Questions[1])
		}
	})
}

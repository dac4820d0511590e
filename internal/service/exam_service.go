package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/examsmart/examsmart-backend/internal/repository"
	"github.com/examsmart/examsmart-backend/internal/vlm"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const maxExamKeyAttempts = 10

// ExamStore is the exam persistence used by the authoring services.
type ExamStore interface {
	GetByID(ctx context.Context, id int) (*model.Exam, error)
	GetByKey(ctx context.Context, key string) (*model.Exam, error)
	KeyExists(ctx context.Context, key string) (bool, error)
	GetWithQuestions(ctx context.Context, id int) (*model.Exam, error)
	ListByCreator(ctx context.Context, creatorID int) ([]model.ExamSummary, error)
	Create(ctx context.Context, e *model.Exam) error
	Update(ctx context.Context, e *model.Exam, syncQuestions bool) error
	Delete(ctx context.Context, id int) error
}

// ExamService handles exam authoring for professors.
type ExamService struct {
	exams     ExamStore
	results   ResultLister
	papers    PaperCache
	extractor vlm.Extractor
	log       zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	exams ExamStore,
	results ResultLister,
	papers PaperCache,
	extractor vlm.Extractor,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		exams:     exams,
		results:   results,
		papers:    papers,
		extractor: extractor,
		log:       log.With().Str("component", "exam_service").Logger(),
	}
}

// GenerateExamKey returns a random key formatted XXX-XXXX-XXX in uppercase hex.
func GenerateExamKey() (string, error) {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	h := strings.ToUpper(hex.EncodeToString(b))
	return h[:3] + "-" + h[3:7] + "-" + h[7:], nil
}

// CreateExam validates the questions, assigns a unique exam key and stores everything in one transaction.
func (s *ExamService) CreateExam(ctx context.Context, creatorID int, req *model.CreateExamRequest) (*model.Exam, error) {
	questions, err := buildQuestions(req.Questions)
	if err != nil {
		return nil, err
	}

	e := &model.Exam{
		Title:        strings.TrimSpace(req.Title),
		CourseCode:   strings.ToUpper(strings.TrimSpace(req.CourseCode)),
		Description:  req.Description,
		Instructions: req.Instructions,
		Duration:     req.Duration,
		PassingScore: req.PassingScore,
		CreatorID:    creatorID,
		Questions:    questions,
	}
	if req.IsActive != nil {
		e.IsActive = *req.IsActive
	}

	if err := s.create(ctx, e); err != nil {
		return nil, err
	}
	s.log.Info().Int("exam_id", e.ID).Int("creator_id", creatorID).Str("exam_key", e.ExamKey).Msg("Exam created")
	return e, nil
}

// create retries with a fresh key until the insert does not collide.
func (s *ExamService) create(ctx context.Context, e *model.Exam) error {
	for i := 0; i < maxExamKeyAttempts; i++ {
		key, err := GenerateExamKey()
		if err != nil {
			return fmt.Errorf("generate exam key: %w", err)
		}
		exists, err := s.exams.KeyExists(ctx, key)
		if err != nil {
			return fmt.Errorf("check exam key: %w", err)
		}
		if exists {
			continue
		}

		e.ExamKey = key
		err = s.exams.Create(ctx, e)
		if errors.Is(err, repository.ErrDuplicateExamKey) {
			continue
		}
		if err != nil {
			return fmt.Errorf("create exam: %w", err)
		}
		return nil
	}
	return errors.New("could not generate a unique exam key")
}

// ListExams returns the professor's exams, newest first.
func (s *ExamService) ListExams(ctx context.Context, creatorID int) ([]model.ExamSummary, error) {
	return s.exams.ListByCreator(ctx, creatorID)
}

// GetExamDetail returns an owned exam with its questions and every student's attempt.
func (s *ExamService) GetExamDetail(ctx context.Context, creatorID, examID int) (*model.ExamDetail, error) {
	e, err := s.ownedExam(ctx, creatorID, examID)
	if err != nil {
		return nil, err
	}
	results, err := s.results.ListResultsByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return &model.ExamDetail{Exam: *e, StudentResults: results}, nil
}

// UpdateExam applies the non-nil fields of req. A non-nil Questions list is
// synced against the stored questions by id.
func (s *ExamService) UpdateExam(ctx context.Context, creatorID, examID int, req *model.UpdateExamRequest) (*model.Exam, error) {
	e, err := s.ownedExam(ctx, creatorID, examID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		e.Title = strings.TrimSpace(*req.Title)
	}
	if req.CourseCode != nil {
		e.CourseCode = strings.ToUpper(strings.TrimSpace(*req.CourseCode))
	}
	if req.Description != nil {
		e.Description = *req.Description
	}
	if req.Instructions != nil {
		e.Instructions = *req.Instructions
	}
	if req.Duration != nil {
		e.Duration = *req.Duration
	}
	if req.PassingScore != nil {
		e.PassingScore = *req.PassingScore
	}
	if req.IsActive != nil {
		e.IsActive = *req.IsActive
	}

	sync := req.Questions != nil
	if sync {
		if err := checkQuestionIDs(e.Questions, *req.Questions); err != nil {
			return nil, err
		}
		e.Questions, err = buildQuestions(*req.Questions)
		if err != nil {
			return nil, err
		}
	}

	if err := s.exams.Update(ctx, e, sync); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("update exam: %w", err)
	}
	s.invalidatePaper(ctx, examID)

	updated, err := s.exams.GetWithQuestions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("reload exam: %w", err)
	}
	return updated, nil
}

// DeleteExam removes an owned exam with everything attached to it.
func (s *ExamService) DeleteExam(ctx context.Context, creatorID, examID int) error {
	if _, err := s.ownedExam(ctx, creatorID, examID); err != nil {
		return err
	}
	if err := s.exams.Delete(ctx, examID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrExamNotFound
		}
		return fmt.Errorf("delete exam: %w", err)
	}
	s.invalidatePaper(ctx, examID)
	s.log.Info().Int("exam_id", examID).Int("creator_id", creatorID).Msg("Exam deleted")
	return nil
}

// CreateFromPhotos extracts an exam from photos and stores it as active.
// Nothing is stored when extraction fails.
func (s *ExamService) CreateFromPhotos(ctx context.Context, creatorID int, images []vlm.Image) (*model.Exam, error) {
	if len(images) == 0 {
		return nil, ErrNoFiles
	}

	draft, err := s.extractor.Extract(ctx, images)
	if err != nil {
		s.log.Warn().Err(err).Int("creator_id", creatorID).Msg("Exam extraction failed")
		return nil, fmt.Errorf("%w: %v", ErrVLMUnavailable, err)
	}

	e := examFromDraft(draft)
	e.CreatorID = creatorID
	if err := s.create(ctx, e); err != nil {
		return nil, err
	}
	s.log.Info().Int("exam_id", e.ID).Int("questions", len(e.Questions)).Msg("Exam created from photos")
	return e, nil
}

func (s *ExamService) ownedExam(ctx context.Context, creatorID, examID int) (*model.Exam, error) {
	e, err := s.exams.GetWithQuestions(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if e.CreatorID != creatorID {
		return nil, ErrNotExamOwner
	}
	return e, nil
}

func (s *ExamService) invalidatePaper(ctx context.Context, examID int) {
	if err := s.papers.Invalidate(ctx, examID); err != nil {
		s.log.Warn().Err(err).Int("exam_id", examID).Msg("Failed to invalidate exam paper cache")
	}
}

// checkQuestionIDs rejects ids that do not belong to the exam.
func checkQuestionIDs(existing []model.Question, inputs []model.QuestionInput) error {
	known := make(map[int]bool, len(existing))
	for _, q := range existing {
		known[q.ID] = true
	}
	for _, in := range inputs {
		if in.ID != nil && !known[*in.ID] {
			return ErrUnknownQuestionID
		}
	}
	return nil
}

// buildQuestions turns payload questions into ordered model questions. For
// multiple choice the correct option is fixed and its letter stored as the model answer.
func buildQuestions(inputs []model.QuestionInput) ([]model.Question, error) {
	questions := make([]model.Question, 0, len(inputs))
	for i, in := range inputs {
		q := model.Question{
			Text:        strings.TrimSpace(in.Text),
			Type:        in.Type,
			Points:      model.DefaultQuestionPoints,
			Order:       i + 1,
			ModelAnswer: strings.TrimSpace(in.ModelAnswer),
		}
		if in.ID != nil {
			q.ID = *in.ID
		}
		if in.Points != nil {
			q.Points = *in.Points
		}

		if q.Type == model.QuestionTypeMultipleChoice {
			if len(in.Options) < 2 {
				return nil, ErrInvalidQuestion
			}
			for j, o := range in.Options {
				opt := model.Option{Text: strings.TrimSpace(o.Text), Order: j + 1}
				if o.ID != nil {
					opt.ID = *o.ID
				}
				q.Options = append(q.Options, opt)
			}
			q.ModelAnswer = correctLetter(in.Options, q.ModelAnswer)
			if idx := model.OptionIndex(q.ModelAnswer); idx >= 0 {
				q.Options[idx].IsCorrect = true
			}
		}

		questions = append(questions, q)
	}
	return questions, nil
}

// correctLetter picks the first option flagged correct, else the model answer
// when it is a valid letter or matches an option's text. Empty when none applies.
func correctLetter(options []model.OptionInput, modelAnswer string) string {
	for i, o := range options {
		if o.IsCorrect {
			return model.OptionLetter(i)
		}
	}
	if idx := model.OptionIndex(modelAnswer); idx >= 0 && idx < len(options) {
		return model.OptionLetter(idx)
	}
	for i, o := range options {
		if modelAnswer != "" && strings.EqualFold(strings.TrimSpace(o.Text), modelAnswer) {
			return model.OptionLetter(i)
		}
	}
	return ""
}

// examFromDraft fills defaults for anything the extractor left out.
func examFromDraft(d *vlm.ExamDraft) *model.Exam {
	e := &model.Exam{
		Title:        d.Title,
		CourseCode:   strings.ToUpper(d.CourseCode),
		Description:  d.Description,
		Instructions: d.Instructions,
		Duration:     d.Duration,
		PassingScore: d.PassingScore,
		IsActive:     true,
	}
	if e.Title == "" {
		e.Title = vlm.DefaultTitle
	}
	if e.Duration <= 0 {
		e.Duration = vlm.DefaultDuration
	}
	if e.PassingScore <= 0 || e.PassingScore > 100 {
		e.PassingScore = vlm.DefaultPassingScore
	}
	if !model.CourseCodePattern.MatchString(e.CourseCode) {
		e.CourseCode = autoCourseCode()
	}

	inputs := make([]model.QuestionInput, 0, len(d.Questions))
	for _, dq := range d.Questions {
		points := dq.Points
		in := model.QuestionInput{Text: dq.Text, Type: dq.Type, Points: &points, ModelAnswer: dq.ModelAnswer}
		if in.Type == model.QuestionTypeMultipleChoice && len(dq.Options) < 2 {
			in.Type = model.QuestionTypeEssay
		}
		if in.Type == model.QuestionTypeMultipleChoice {
			for _, o := range dq.Options {
				in.Options = append(in.Options, model.OptionInput{Text: o.Text, IsCorrect: o.IsCorrect})
			}
		}
		inputs = append(inputs, in)
	}
	// Drafts never carry fewer than two options on a multiple choice question.
	e.Questions, _ = buildQuestions(inputs)
	return e
}

func autoCourseCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "AUTO-0000"
	}
	return fmt.Sprintf("AUTO-%04d", n.Int64())
}

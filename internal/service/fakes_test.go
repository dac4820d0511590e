package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/examsmart/examsmart-backend/internal/detection"
	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/examsmart/examsmart-backend/internal/repository"
	"github.com/jackc/pgx/v5"
)

// memStore is an in-memory ExamStore, ExamLookup and AttemptStore.
// WithAttemptLock serializes callers per store and rolls back on error.
type memStore struct {
	lock sync.Mutex // the "row lock"
	mu   sync.Mutex // protects the maps

	exams    map[int]*model.Exam
	attempts map[int]*model.StudentExam
	answers  map[int][]model.StudentAnswer

	nextID int

	failGrade           error
	duplicateKeyOnce    bool
	writesAfterComplete int
	created             int
}

func newMemStore() *memStore {
	return &memStore{
		exams:    map[int]*model.Exam{},
		attempts: map[int]*model.StudentExam{},
		answers:  map[int][]model.StudentAnswer{},
		nextID:   100,
	}
}

func (s *memStore) id() int {
	s.nextID++
	return s.nextID
}

func cloneExam(e *model.Exam) *model.Exam {
	c := *e
	c.Questions = make([]model.Question, len(e.Questions))
	for i, q := range e.Questions {
		q.Options = append([]model.Option(nil), q.Options...)
		c.Questions[i] = q
	}
	return &c
}

// addExam stores e, assigning ids to it and its questions and options.
func (s *memStore) addExam(e *model.Exam) *model.Exam {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == 0 {
		e.ID = s.id()
	}
	for i := range e.Questions {
		q := &e.Questions[i]
		if q.ID == 0 {
			q.ID = s.id()
		}
		q.ExamID = e.ID
		for j := range q.Options {
			if q.Options[j].ID == 0 {
				q.Options[j].ID = s.id()
			}
			q.Options[j].QuestionID = q.ID
		}
	}
	s.exams[e.ID] = cloneExam(e)
	return e
}

// ─── ExamStore / ExamLookup ───

func (s *memStore) GetByID(ctx context.Context, id int) (*model.Exam, error) {
	e, err := s.GetWithQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Questions = nil
	return e, nil
}

func (s *memStore) GetByKey(_ context.Context, key string) (*model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.exams {
		if e.ExamKey == strings.ToUpper(key) {
			c := cloneExam(e)
			c.Questions = nil
			return c, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *memStore) KeyExists(ctx context.Context, key string) (bool, error) {
	_, err := s.GetByKey(ctx, key)
	return err == nil, nil
}

func (s *memStore) GetWithQuestions(_ context.Context, id int) (*model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneExam(e), nil
}

func (s *memStore) ListByCreator(_ context.Context, creatorID int) ([]model.ExamSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.ExamSummary{}
	for _, e := range s.exams {
		if e.CreatorID == creatorID {
			out = append(out, model.ExamSummary{Exam: *cloneExam(e), QuestionCount: len(e.Questions)})
		}
	}
	return out, nil
}

func (s *memStore) Create(ctx context.Context, e *model.Exam) error {
	if s.duplicateKeyOnce {
		s.duplicateKeyOnce = false
		return repository.ErrDuplicateExamKey
	}
	s.created++
	e.CreatedAt = time.Now()
	s.addExam(e)
	return nil
}

func (s *memStore) Update(_ context.Context, e *model.Exam, syncQuestions bool) error {
	s.mu.Lock()
	old, ok := s.exams[e.ID]
	s.mu.Unlock()
	if !ok {
		return pgx.ErrNoRows
	}
	if !syncQuestions {
		e.Questions = old.Questions
	}
	s.addExam(e)
	return nil
}

func (s *memStore) Delete(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exams[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(s.exams, id)
	return nil
}

func (s *memStore) ListResultsByExam(_ context.Context, examID int) ([]model.StudentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.StudentResult{}
	for _, a := range s.attempts {
		if a.ExamID == examID {
			out = append(out, model.StudentResult{StudentExam: *a, AnsweredCount: len(s.answers[a.ID])})
		}
	}
	return out, nil
}

// ─── AttemptStore ───

func (s *memStore) attemptByID(id int) (*model.StudentExam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c := *a
	return &c, nil
}

func (s *memStore) FindInProgress(_ context.Context, examID, studentID int) (*model.StudentExam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.ExamID == examID && a.StudentID == studentID && a.Status == model.AttemptStatusInProgress {
			c := *a
			return &c, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *memStore) HasAttempt(_ context.Context, examID, studentID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.ExamID == examID && a.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ListByStudent(_ context.Context, studentID int) ([]model.AttemptSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.AttemptSummary{}
	for _, a := range s.attempts {
		if a.StudentID == studentID {
			out = append(out, model.AttemptSummary{StudentExam: *a})
		}
	}
	return out, nil
}

func (s *memStore) ListAnswers(_ context.Context, attemptID int) ([]model.StudentAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.StudentAnswer{}, s.answers[attemptID]...), nil
}

// attemptStoreCreate mirrors the partial unique index: a second in-progress row loses.
func (s *memStore) createAttempt(a *model.StudentExam) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.attempts {
		if other.ExamID == a.ExamID && other.StudentID == a.StudentID && other.Status == model.AttemptStatusInProgress {
			return pgx.ErrNoRows
		}
	}
	a.ID = s.id()
	a.Status = model.AttemptStatusInProgress
	a.StartedAt = time.Now()
	c := *a
	s.attempts[a.ID] = &c
	return nil
}

func (s *memStore) WithAttemptLock(ctx context.Context, attemptID int, fn func(repository.AttemptTx) error) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	a, err := s.attemptByID(attemptID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	savedAttempt := *s.attempts[attemptID]
	savedAnswers := append([]model.StudentAnswer{}, s.answers[attemptID]...)
	s.mu.Unlock()

	if err := fn(&memTx{s: s, attempt: a}); err != nil {
		s.mu.Lock()
		s.attempts[attemptID] = &savedAttempt
		s.answers[attemptID] = savedAnswers
		s.mu.Unlock()
		return err
	}
	return nil
}

// attemptStore wraps memStore so that Create resolves to the attempt insert.
type attemptStore struct{ *memStore }

func (s attemptStore) GetByID(_ context.Context, id int) (*model.StudentExam, error) {
	return s.attemptByID(id)
}

func (s attemptStore) Create(_ context.Context, a *model.StudentExam) error {
	return s.createAttempt(a)
}

// memTx implements repository.AttemptTx.
type memTx struct {
	s       *memStore
	attempt *model.StudentExam
}

func (t *memTx) Attempt() *model.StudentExam { return t.attempt }

func (t *memTx) Exam(ctx context.Context) (*model.Exam, error) {
	return t.s.GetByID(ctx, t.attempt.ExamID)
}

func (t *memTx) Question(_ context.Context, id int) (*model.Question, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, e := range t.s.exams {
		for _, q := range e.Questions {
			if q.ID == id {
				q.Options = append([]model.Option(nil), q.Options...)
				return &q, nil
			}
		}
	}
	return nil, pgx.ErrNoRows
}

func (t *memTx) QuestionsByIDs(ctx context.Context, ids []int) (map[int]model.Question, error) {
	out := map[int]model.Question{}
	for _, id := range ids {
		if q, err := t.Question(ctx, id); err == nil {
			out[id] = *q
		}
	}
	return out, nil
}

func (t *memTx) ExamTotalPoints(ctx context.Context) (int, error) {
	e, err := t.s.GetWithQuestions(ctx, t.attempt.ExamID)
	if err != nil {
		return 0, err
	}
	return e.TotalPoints(), nil
}

func (t *memTx) UpsertAnswer(_ context.Context, a *model.StudentAnswer) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.attempts[t.attempt.ID].Status != model.AttemptStatusInProgress {
		t.s.writesAfterComplete++
	}
	a.StudentExamID = t.attempt.ID
	a.UpdatedAt = time.Now()
	rows := t.s.answers[t.attempt.ID]
	for i := range rows {
		if rows[i].QuestionID == a.QuestionID {
			a.ID = rows[i].ID
			rows[i] = *a
			return nil
		}
	}
	a.ID = t.s.id()
	t.s.answers[t.attempt.ID] = append(rows, *a)
	return nil
}

func (t *memTx) ListAnswers(ctx context.Context) ([]model.StudentAnswer, error) {
	return t.s.ListAnswers(ctx, t.attempt.ID)
}

func (t *memTx) GradeAnswer(_ context.Context, answerID int, isCorrect bool, points int) error {
	if t.s.failGrade != nil {
		return t.s.failGrade
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	rows := t.s.answers[t.attempt.ID]
	for i := range rows {
		if rows[i].ID == answerID {
			c, p := isCorrect, points
			rows[i].IsCorrect = &c
			rows[i].Points = &p
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (t *memTx) Finalize(_ context.Context, f repository.Finalization) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	score, submitted := f.Score, f.SubmittedAt
	a := t.s.attempts[t.attempt.ID]
	a.Status = f.Status
	a.Score = &score
	a.AIDetected = f.AIDetected
	a.Passed = f.Passed
	a.SubmittedAt = &submitted
	*t.attempt = *a
	return nil
}

// ─── Collaborators ───

// stubDetector returns a fixed verdict and counts calls.
type stubDetector struct {
	mu      sync.Mutex
	machine bool
	calls   int
}

func (d *stubDetector) Classify(context.Context, string) detection.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.machine {
		return detection.Result{IsMachineGenerated: true, Confidence: 90, HumanProbability: 10, Source: detection.SourcePrimary}
	}
	return detection.Result{Confidence: 90, HumanProbability: 90, Source: detection.SourcePrimary}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []MonitorEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev MonitorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type memPaperCache struct {
	mu          sync.Mutex
	papers      map[int]*model.ExamPaper
	hits        int
	invalidated []int
}

func newMemPaperCache() *memPaperCache {
	return &memPaperCache{papers: map[int]*model.ExamPaper{}}
}

func (c *memPaperCache) Get(_ context.Context, examID int) (*model.ExamPaper, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.papers[examID]
	if ok {
		c.hits++
	}
	return p, nil
}

func (c *memPaperCache) Set(_ context.Context, p *model.ExamPaper) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.papers[p.ID] = p
	return nil
}

func (c *memPaperCache) Invalidate(_ context.Context, examID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.papers, examID)
	c.invalidated = append(c.invalidated, examID)
	return nil
}

var errDiskFull = errors.New("disk full")

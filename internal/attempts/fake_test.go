package attempts

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/examprep/backend/internal/exams"
	"github.com/examprep/backend/internal/models"
)

type fakeExams struct {
	exam    *models.Exam
	pool    []models.Question
	allowed map[int64]bool
	poolErr error
}

func (f *fakeExams) GetExam(_ context.Context, id int64) (*models.Exam, error) {
	if f.exam == nil || f.exam.ID != id {
		return nil, exams.ErrNotFound
	}
	c := *f.exam
	return &c, nil
}

func (f *fakeExams) CanAccess(_ context.Context, userID int64, isAdmin bool, _ int64) error {
	if isAdmin || f.allowed[userID] {
		return nil
	}
	return exams.ErrAccessDenied
}

func (f *fakeExams) QuestionPool(_ context.Context, _ int64) ([]models.Question, error) {
	if f.poolErr != nil {
		return nil, f.poolErr
	}
	return f.pool, nil
}

type fakeStore struct {
	mu          sync.Mutex
	records     map[string]*models.AttemptRecord
	completions []Completion
	failWrites  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*models.AttemptRecord{}}
}

func (f *fakeStore) CreateAttempt(_ context.Context, rec *models.AttemptRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.Version = 1
	c := *rec
	f.records[rec.ID] = &c
	return nil
}

func (f *fakeStore) CompleteAttempt(_ context.Context, c Completion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errors.New("connection refused")
	}
	rec, ok := f.records[c.ID]
	if !ok {
		return ErrNotFound
	}
	if rec.Version != c.ExpectedVersion || rec.Completed {
		return ErrStale
	}
	rec.Completed = true
	rec.Version++
	score := c.Result.Score
	rec.Score = &score
	end := c.EndTime
	rec.EndTime = &end
	f.completions = append(f.completions, c)
	return nil
}

func (f *fakeStore) GetAttempt(_ context.Context, id string) (*models.AttemptRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *rec
	return &c, nil
}

func (f *fakeStore) ListAttempts(_ context.Context, userID int64, _, _ int) ([]models.AttemptRecord, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AttemptRecord
	for _, rec := range f.records {
		if rec.UserID == userID {
			out = append(out, *rec)
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) ListExamAttempts(_ context.Context, examID int64, _, _ int) ([]models.AttemptRecord, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AttemptRecord
	for _, rec := range f.records {
		if rec.ExamID == examID {
			out = append(out, *rec)
		}
	}
	return out, len(out), nil
}

// testPool builds n questions: odd IDs are single-answer with option 0
// correct, even IDs are multi-answer with options 0 and 2 correct.
func testPool(n int) []models.Question {
	pool := make([]models.Question, n)
	for i := range pool {
		id := int64(i + 1)
		q := models.Question{
			ID:             id,
			ExamID:         1,
			Text:           fmt.Sprintf("Question %d", id),
			Options:        []string{"a", "b", "c", "d"},
			CorrectAnswers: []int{0},
			Difficulty:     models.DifficultyMedium,
			Explanation:    fmt.Sprintf("Explanation %d", id),
		}
		if id%2 == 0 {
			q.CorrectAnswers = []int{0, 2}
		}
		pool[i] = q
	}
	return pool
}

type harness struct {
	svc      *Service
	exams    *fakeExams
	store    *fakeStore
	sessions *MemorySessionStore
	now      time.Time
}

func newHarness(t *testing.T, poolSize int) *harness {
	t.Helper()
	h := &harness{
		exams: &fakeExams{
			exam: &models.Exam{
				ID:                1,
				Title:             "Cloud Fundamentals",
				TotalQuestions:    5,
				DurationMinutes:   30,
				PassingPercentage: 60,
				IsActive:          true,
			},
			pool:    testPool(poolSize),
			allowed: map[int64]bool{10: true, 11: true},
		},
		store:    newFakeStore(),
		sessions: NewMemorySessionStore(),
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	h.svc = NewService(h.exams, h.store, h.sessions, time.Hour)
	h.svc.now = func() time.Time { return h.now }
	h.svc.newRand = func() *rand.Rand { return rand.New(rand.NewPCG(42, 7)) }
	return h
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *harness) start(t *testing.T, userID int64, req models.StartAttemptRequest) *models.AttemptView {
	t.Helper()
	view, err := h.svc.Start(context.Background(), userID, false, 1, req)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return view
}

func (h *harness) session(t *testing.T, id string) *Session {
	t.Helper()
	sess, err := h.sessions.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("session %s: %v", id, err)
	}
	return sess
}

// racingSessions runs beforeUpdate once, just before the next Update
// reaches the wrapped store, so a second writer can land in between.
type racingSessions struct {
	*MemorySessionStore
	beforeUpdate func()
}

func (r *racingSessions) Update(ctx context.Context, s *Session, expectedVersion int64) error {
	if f := r.beforeUpdate; f != nil {
		r.beforeUpdate = nil
		f()
	}
	return r.MemorySessionStore.Update(ctx, s, expectedVersion)
}

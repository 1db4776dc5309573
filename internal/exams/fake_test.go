package exams

import (
	"context"
	"sort"
	"sync"

	"github.com/examprep/backend/internal/models"
)

type memStore struct {
	mu          sync.Mutex
	exams       map[int64]*models.Exam
	questions   map[int64]*models.Question
	assignments map[int64]map[int64]bool
	nextID      int64
	poolCalls   int
}

func newMemStore() *memStore {
	return &memStore{
		exams:       map[int64]*models.Exam{},
		questions:   map[int64]*models.Question{},
		assignments: map[int64]map[int64]bool{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) CreateExam(_ context.Context, e *models.Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.id()
	c := *e
	m.exams[e.ID] = &c
	return nil
}

func (m *memStore) UpdateExam(_ context.Context, e *models.Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[e.ID]; !ok {
		return ErrNotFound
	}
	c := *e
	m.exams[e.ID] = &c
	return nil
}

func (m *memStore) GetExam(_ context.Context, id int64) (*models.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *e
	return &c, nil
}

func (m *memStore) ListExams(_ context.Context) ([]models.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Exam{}
	for _, e := range m.exams {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListAssignedExams(_ context.Context, userID int64) ([]models.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Exam{}
	for id, users := range m.assignments {
		if users[userID] && m.exams[id] != nil && m.exams[id].IsActive {
			out = append(out, *m.exams[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) DeleteExam(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[id]; !ok {
		return ErrNotFound
	}
	delete(m.exams, id)
	return nil
}

func (m *memStore) CreateQuestion(_ context.Context, q *models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[q.ExamID]; !ok {
		return ErrNotFound
	}
	q.ID = m.id()
	c := q.Clone()
	m.questions[q.ID] = &c
	return nil
}

func (m *memStore) InsertQuestions(ctx context.Context, qs []models.Question) error {
	for i := range qs {
		if err := m.CreateQuestion(ctx, &qs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) UpdateQuestion(_ context.Context, q *models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.questions[q.ID]
	if !ok {
		return ErrQuestionNotFound
	}
	q.ExamID = cur.ExamID
	c := q.Clone()
	m.questions[q.ID] = &c
	return nil
}

func (m *memStore) GetQuestion(_ context.Context, id int64) (*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, ErrQuestionNotFound
	}
	c := q.Clone()
	return &c, nil
}

func (m *memStore) DeleteQuestion(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[id]; !ok {
		return ErrQuestionNotFound
	}
	delete(m.questions, id)
	return nil
}

func (m *memStore) ListQuestions(ctx context.Context, examID int64, limit, offset int) ([]models.Question, int, error) {
	pool, _ := m.pool(examID)
	total := len(pool)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return pool[offset:end], total, nil
}

func (m *memStore) QuestionPool(_ context.Context, examID int64) ([]models.Question, error) {
	m.mu.Lock()
	m.poolCalls++
	m.mu.Unlock()
	return m.pool(examID)
}

func (m *memStore) pool(examID int64) ([]models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Question{}
	for _, q := range m.questions {
		if q.ExamID == examID {
			out = append(out, q.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) Assign(_ context.Context, examID int64, userIDs []int64, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assignments[examID] == nil {
		m.assignments[examID] = map[int64]bool{}
	}
	for _, u := range userIDs {
		m.assignments[examID][u] = true
	}
	return nil
}

func (m *memStore) Unassign(_ context.Context, examID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assignments[examID], userID)
	return nil
}

func (m *memStore) ListAssignments(_ context.Context, examID int64) ([]models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Assignment{}
	for u := range m.assignments[examID] {
		out = append(out, models.Assignment{ExamID: examID, UserID: u})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memStore) IsAssigned(_ context.Context, examID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assignments[examID][userID], nil
}

type memCache struct {
	pools       map[int64][]models.Question
	invalidated []int64
}

func newMemCache() *memCache {
	return &memCache{pools: map[int64][]models.Question{}}
}

func (c *memCache) GetPool(_ context.Context, examID int64) ([]models.Question, bool, error) {
	p, ok := c.pools[examID]
	return p, ok, nil
}

func (c *memCache) SetPool(_ context.Context, examID int64, pool []models.Question) error {
	c.pools[examID] = pool
	return nil
}

func (c *memCache) InvalidatePool(_ context.Context, examID int64) error {
	delete(c.pools, examID)
	c.invalidated = append(c.invalidated, examID)
	return nil
}

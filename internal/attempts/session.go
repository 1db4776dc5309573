package attempts

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/examprep/backend/internal/examstate"
	"github.com/examprep/backend/internal/models"
)

var (
	ErrNotFound         = errors.New("attempt not found")
	ErrStale            = errors.New("attempt was changed by another request")
	ErrForbidden        = errors.New("attempt belongs to another user")
	ErrNoQuestions      = errors.New("no questions available for this exam")
	ErrSelectionLimit   = errors.New("selection limit reached for this question")
	ErrInvalidMode      = errors.New("mode must be 'practice' or 'real'")
	ErrRevealNotAllowed = errors.New("answers can only be revealed in practice mode")
	ErrInvalidCount     = errors.New("question_count must not be negative")
)

// Session is the live, server-side state of one attempt. The question
// list is fixed when the session is created.
type Session struct {
	ID                string               `json:"id"`
	UserID            int64                `json:"user_id"`
	ExamID            int64                `json:"exam_id"`
	ExamTitle         string               `json:"exam_title"`
	Config            models.AttemptConfig `json:"config"`
	Questions         []models.Question    `json:"questions"`
	State             *examstate.State     `json:"state"`
	Deadline          *time.Time           `json:"deadline,omitempty"`
	PassingPercentage float64              `json:"passing_percentage"`
	Persisted         bool                 `json:"persisted"`
	RecordVersion     int64                `json:"record_version"`
	ResultPending     bool                 `json:"result_pending,omitempty"`
	SaveWarning       string               `json:"save_warning,omitempty"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// Clone returns a deep copy. Questions are immutable once loaded and
// are shared.
func (s *Session) Clone() *Session {
	c := *s
	c.State = s.State.Clone()
	if s.Deadline != nil {
		d := *s.Deadline
		c.Deadline = &d
	}
	return &c
}

// Expired reports whether a timed attempt has run past its deadline
// without being finished.
func (s *Session) Expired(now time.Time) bool {
	return s.Deadline != nil && s.State.InProgress() && !now.Before(*s.Deadline)
}

// SessionStore holds live sessions between requests. Update is a
// compare-and-swap on the state version.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, s *Session, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
	// ListExpired returns sessions whose deadline is at or before now.
	ListExpired(ctx context.Context, now time.Time) ([]string, error)
	// Prune drops sessions untouched since before.
	Prune(ctx context.Context, before time.Time) (int, error)
}

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: map[string]*Session{}}
}

func (m *MemorySessionStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemorySessionStore) Update(_ context.Context, s *Session, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.State.Version != expectedVersion {
		return ErrStale
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) ListExpired(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, s := range m.sessions {
		if s.Expired(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemorySessionStore) Prune(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(before) && !s.Expired(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

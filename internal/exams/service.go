package exams

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/examprep/backend/internal/models"
)

// ValidationError is returned for malformed exam or question input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// PoolCache caches question pools per exam.
type PoolCache interface {
	GetPool(ctx context.Context, examID int64) ([]models.Question, bool, error)
	SetPool(ctx context.Context, examID int64, pool []models.Question) error
	InvalidatePool(ctx context.Context, examID int64) error
}

type Service struct {
	store ExamStore
	cache PoolCache
}

// NewService builds the exam service. cache may be nil.
func NewService(store ExamStore, cache PoolCache) *Service {
	return &Service{store: store, cache: cache}
}

// ── Exams ───────────────────────────────────────────────

func (s *Service) GetExam(ctx context.Context, id int64) (*models.Exam, error) {
	return s.store.GetExam(ctx, id)
}

// ListExams returns every exam for admins and the active assigned
// exams for everyone else.
func (s *Service) ListExams(ctx context.Context, userID int64, isAdmin bool) ([]models.Exam, error) {
	if isAdmin {
		return s.store.ListExams(ctx)
	}
	return s.store.ListAssignedExams(ctx, userID)
}

// CanAccess allows admins everywhere and candidates on active exams
// assigned to them.
func (s *Service) CanAccess(ctx context.Context, userID int64, isAdmin bool, examID int64) error {
	if isAdmin {
		return nil
	}
	exam, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return err
	}
	if !exam.IsActive {
		return ErrAccessDenied
	}
	ok, err := s.store.IsAssigned(ctx, examID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}

func validateExam(req models.ExamRequest) error {
	switch {
	case strings.TrimSpace(req.Title) == "":
		return invalid("title is required")
	case req.TotalQuestions < 1:
		return invalid("total_questions must be at least 1")
	case req.DurationMinutes < 1:
		return invalid("duration_minutes must be at least 1")
	case req.PassingPercentage < 0 || req.PassingPercentage > 100:
		return invalid("passing_percentage must be between 0 and 100")
	}
	return nil
}

func (s *Service) CreateExam(ctx context.Context, req models.ExamRequest) (*models.Exam, error) {
	if err := validateExam(req); err != nil {
		return nil, err
	}
	exam := &models.Exam{
		Title:             strings.TrimSpace(req.Title),
		Description:       req.Description,
		TotalQuestions:    req.TotalQuestions,
		DurationMinutes:   req.DurationMinutes,
		PassingPercentage: req.PassingPercentage,
		IsActive:          req.IsActive == nil || *req.IsActive,
	}
	if err := s.store.CreateExam(ctx, exam); err != nil {
		return nil, err
	}
	log.Printf("[exams] created exam %d %q", exam.ID, exam.Title)
	return exam, nil
}

func (s *Service) UpdateExam(ctx context.Context, id int64, req models.ExamRequest) (*models.Exam, error) {
	if err := validateExam(req); err != nil {
		return nil, err
	}
	exam, err := s.store.GetExam(ctx, id)
	if err != nil {
		return nil, err
	}
	exam.Title = strings.TrimSpace(req.Title)
	exam.Description = req.Description
	exam.TotalQuestions = req.TotalQuestions
	exam.DurationMinutes = req.DurationMinutes
	exam.PassingPercentage = req.PassingPercentage
	if req.IsActive != nil {
		exam.IsActive = *req.IsActive
	}
	if err := s.store.UpdateExam(ctx, exam); err != nil {
		return nil, err
	}
	return exam, nil
}

func (s *Service) DeleteExam(ctx context.Context, id int64) error {
	if err := s.store.DeleteExam(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// ── Questions ───────────────────────────────────────────

// ValidateQuestion checks a question's shape: at least two options,
// at least one correct index, every index in range and no duplicates.
func ValidateQuestion(q models.Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return invalid("question text is required")
	}
	if len(q.Options) < 2 {
		return invalid("at least 2 options are required")
	}
	for i, o := range q.Options {
		if strings.TrimSpace(o) == "" {
			return invalid("option %d is empty", i+1)
		}
	}
	if len(q.CorrectAnswers) == 0 {
		return invalid("at least one correct answer is required")
	}
	seen := map[int]bool{}
	for _, c := range q.CorrectAnswers {
		if c < 0 || c >= len(q.Options) {
			return invalid("correct answer %d is out of range", c)
		}
		if seen[c] {
			return invalid("correct answer %d is listed twice", c)
		}
		seen[c] = true
	}
	if !models.ValidDifficulties[q.Difficulty] {
		return invalid("difficulty must be easy, medium or hard")
	}
	return nil
}

func questionFromRequest(req models.QuestionRequest) models.Question {
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = models.DifficultyMedium
	}
	options := make([]string, len(req.Options))
	for i, o := range req.Options {
		options[i] = strings.TrimSpace(o)
	}
	return models.Question{
		Text:           strings.TrimSpace(req.Text),
		Options:        options,
		CorrectAnswers: req.CorrectAnswers,
		Difficulty:     difficulty,
		Explanation:    strings.TrimSpace(req.Explanation),
		ImageURL:       strings.TrimSpace(req.ImageURL),
	}
}

func (s *Service) CreateQuestion(ctx context.Context, examID int64, req models.QuestionRequest) (*models.Question, error) {
	q := questionFromRequest(req)
	q.ExamID = examID
	if err := ValidateQuestion(q); err != nil {
		return nil, err
	}
	if err := s.store.CreateQuestion(ctx, &q); err != nil {
		return nil, err
	}
	s.invalidate(ctx, examID)
	return &q, nil
}

func (s *Service) UpdateQuestion(ctx context.Context, id int64, req models.QuestionRequest) (*models.Question, error) {
	q := questionFromRequest(req)
	q.ID = id
	if err := ValidateQuestion(q); err != nil {
		return nil, err
	}
	if err := s.store.UpdateQuestion(ctx, &q); err != nil {
		return nil, err
	}
	s.invalidate(ctx, q.ExamID)
	return &q, nil
}

func (s *Service) GetQuestion(ctx context.Context, id int64) (*models.Question, error) {
	return s.store.GetQuestion(ctx, id)
}

func (s *Service) DeleteQuestion(ctx context.Context, id int64) error {
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteQuestion(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, q.ExamID)
	return nil
}

func (s *Service) ListQuestions(ctx context.Context, examID int64, limit, offset int) ([]models.Question, int, error) {
	if _, err := s.store.GetExam(ctx, examID); err != nil {
		return nil, 0, err
	}
	return s.store.ListQuestions(ctx, examID, limit, offset)
}

// QuestionPool returns the exam's questions in creation order, served
// from the cache when one is configured. Cache failures fall back to
// the store.
func (s *Service) QuestionPool(ctx context.Context, examID int64) ([]models.Question, error) {
	if s.cache != nil {
		pool, ok, err := s.cache.GetPool(ctx, examID)
		if err != nil {
			log.Printf("WARN: question cache read failed for exam %d: %v", examID, err)
		} else if ok {
			return pool, nil
		}
	}

	pool, err := s.store.QuestionPool(ctx, examID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetPool(ctx, examID, pool); err != nil {
			log.Printf("WARN: question cache write failed for exam %d: %v", examID, err)
		}
	}
	return pool, nil
}

func (s *Service) invalidate(ctx context.Context, examID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePool(ctx, examID); err != nil {
		log.Printf("WARN: question cache invalidation failed for exam %d: %v", examID, err)
	}
}

// ── Assignments ─────────────────────────────────────────

func (s *Service) Assign(ctx context.Context, examID int64, userIDs []int64, assignedBy int64) error {
	if len(userIDs) == 0 {
		return invalid("user_ids is required")
	}
	if _, err := s.store.GetExam(ctx, examID); err != nil {
		return err
	}
	if err := s.store.Assign(ctx, examID, userIDs, assignedBy); err != nil {
		return err
	}
	log.Printf("[exams] exam %d assigned to %d users by %d", examID, len(userIDs), assignedBy)
	return nil
}

func (s *Service) Unassign(ctx context.Context, examID, userID int64) error {
	return s.store.Unassign(ctx, examID, userID)
}

func (s *Service) ListAssignments(ctx context.Context, examID int64) ([]models.Assignment, error) {
	if _, err := s.store.GetExam(ctx, examID); err != nil {
		return nil, err
	}
	return s.store.ListAssignments(ctx, examID)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

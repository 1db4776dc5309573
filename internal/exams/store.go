package exams

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/examprep/backend/internal/models"
)

var (
	ErrNotFound         = errors.New("exam not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrAccessDenied     = errors.New("exam is not assigned to this user")
)

// ExamStore is the persistence the exam service needs.
type ExamStore interface {
	CreateExam(ctx context.Context, e *models.Exam) error
	UpdateExam(ctx context.Context, e *models.Exam) error
	GetExam(ctx context.Context, id int64) (*models.Exam, error)
	ListExams(ctx context.Context) ([]models.Exam, error)
	ListAssignedExams(ctx context.Context, userID int64) ([]models.Exam, error)
	DeleteExam(ctx context.Context, id int64) error

	CreateQuestion(ctx context.Context, q *models.Question) error
	UpdateQuestion(ctx context.Context, q *models.Question) error
	GetQuestion(ctx context.Context, id int64) (*models.Question, error)
	DeleteQuestion(ctx context.Context, id int64) error
	ListQuestions(ctx context.Context, examID int64, limit, offset int) ([]models.Question, int, error)
	QuestionPool(ctx context.Context, examID int64) ([]models.Question, error)
	InsertQuestions(ctx context.Context, qs []models.Question) error

	Assign(ctx context.Context, examID int64, userIDs []int64, assignedBy int64) error
	Unassign(ctx context.Context, examID, userID int64) error
	ListAssignments(ctx context.Context, examID int64) ([]models.Assignment, error)
	IsAssigned(ctx context.Context, examID, userID int64) (bool, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Exams ───────────────────────────────────────────────

const examColumns = `e.id, e.title, e.description, e.total_questions, e.duration_minutes,
	e.passing_percentage, e.is_active,
	(SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id),
	e.created_at, e.updated_at`

func scanExam(row interface{ Scan(...any) error }) (*models.Exam, error) {
	var e models.Exam
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.TotalQuestions, &e.DurationMinutes,
		&e.PassingPercentage, &e.IsActive, &e.QuestionCount, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) CreateExam(ctx context.Context, e *models.Exam) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO exams (title, description, total_questions, duration_minutes, passing_percentage, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.Description, e.TotalQuestions, e.DurationMinutes, e.PassingPercentage, e.IsActive,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	return nil
}

func (s *Store) UpdateExam(ctx context.Context, e *models.Exam) error {
	err := s.db.QueryRowContext(ctx,
		`UPDATE exams
		 SET title = $1, description = $2, total_questions = $3, duration_minutes = $4,
		     passing_percentage = $5, is_active = $6, updated_at = NOW()
		 WHERE id = $7
		 RETURNING updated_at`,
		e.Title, e.Description, e.TotalQuestions, e.DurationMinutes, e.PassingPercentage, e.IsActive, e.ID,
	).Scan(&e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	return nil
}

func (s *Store) GetExam(ctx context.Context, id int64) (*models.Exam, error) {
	e, err := scanExam(s.db.QueryRowContext(ctx,
		`SELECT `+examColumns+` FROM exams e WHERE e.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return e, nil
}

func (s *Store) ListExams(ctx context.Context) ([]models.Exam, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+examColumns+` FROM exams e ORDER BY e.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	return collectExams(rows)
}

func (s *Store) ListAssignedExams(ctx context.Context, userID int64) ([]models.Exam, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+examColumns+`
		 FROM exams e JOIN exam_assignments a ON a.exam_id = e.id
		 WHERE a.user_id = $1 AND e.is_active = TRUE
		 ORDER BY e.title`, userID)
	if err != nil {
		return nil, fmt.Errorf("list assigned exams: %w", err)
	}
	return collectExams(rows)
}

func collectExams(rows *sql.Rows) ([]models.Exam, error) {
	defer rows.Close()
	exams := []models.Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exam: %w", err)
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

func (s *Store) DeleteExam(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ── Questions ───────────────────────────────────────────

const questionColumns = `id, exam_id, text, options, correct_answers, difficulty,
	explanation, image_url, created_at, updated_at`

func scanQuestion(row interface{ Scan(...any) error }) (*models.Question, error) {
	var (
		q       models.Question
		options pq.StringArray
		correct pq.Int64Array
	)
	if err := row.Scan(&q.ID, &q.ExamID, &q.Text, &options, &correct, &q.Difficulty,
		&q.Explanation, &q.ImageURL, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, err
	}
	q.Options = []string(options)
	q.CorrectAnswers = make([]int, len(correct))
	for i, c := range correct {
		q.CorrectAnswers[i] = int(c)
	}
	return &q, nil
}

func correctArray(indices []int) pq.Int64Array {
	out := make(pq.Int64Array, len(indices))
	for i, c := range indices {
		out[i] = int64(c)
	}
	return out
}

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertQuestion(ctx context.Context, db execer, q *models.Question) error {
	err := db.QueryRowContext(ctx,
		`INSERT INTO questions (exam_id, text, options, correct_answers, difficulty, explanation, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		q.ExamID, q.Text, pq.StringArray(q.Options), correctArray(q.CorrectAnswers),
		q.Difficulty, q.Explanation, q.ImageURL,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (s *Store) CreateQuestion(ctx context.Context, q *models.Question) error {
	return insertQuestion(ctx, s.db, q)
}

// InsertQuestions inserts a batch in one transaction.
func (s *Store) InsertQuestions(ctx context.Context, qs []models.Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	for i := range qs {
		if err := insertQuestion(ctx, tx, &qs[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

func (s *Store) UpdateQuestion(ctx context.Context, q *models.Question) error {
	err := s.db.QueryRowContext(ctx,
		`UPDATE questions
		 SET text = $1, options = $2, correct_answers = $3, difficulty = $4,
		     explanation = $5, image_url = $6, updated_at = NOW()
		 WHERE id = $7
		 RETURNING exam_id, created_at, updated_at`,
		q.Text, pq.StringArray(q.Options), correctArray(q.CorrectAnswers), q.Difficulty,
		q.Explanation, q.ImageURL, q.ID,
	).Scan(&q.ExamID, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrQuestionNotFound
	}
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	return nil
}

func (s *Store) GetQuestion(ctx context.Context, id int64) (*models.Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

func (s *Store) DeleteQuestion(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

func (s *Store) ListQuestions(ctx context.Context, examID int64, limit, offset int) ([]models.Question, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM questions WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count questions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE exam_id = $1
		 ORDER BY id LIMIT $2 OFFSET $3`, examID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list questions: %w", err)
	}
	qs, err := collectQuestions(rows)
	if err != nil {
		return nil, 0, err
	}
	return qs, total, nil
}

// QuestionPool returns every question of the exam in creation order.
func (s *Store) QuestionPool(ctx context.Context, examID int64) ([]models.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE exam_id = $1 ORDER BY id`, examID)
	if err != nil {
		return nil, fmt.Errorf("question pool: %w", err)
	}
	return collectQuestions(rows)
}

func collectQuestions(rows *sql.Rows) ([]models.Question, error) {
	defer rows.Close()
	qs := []models.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		qs = append(qs, *q)
	}
	return qs, rows.Err()
}

// ── Assignments ─────────────────────────────────────────

func (s *Store) Assign(ctx context.Context, examID int64, userIDs []int64, assignedBy int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exam_assignments (exam_id, user_id, assigned_by)
		 SELECT $1, u, $3 FROM UNNEST($2::BIGINT[]) AS u
		 ON CONFLICT (exam_id, user_id) DO NOTHING`,
		examID, pq.Int64Array(userIDs), assignedBy,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			if pqErr.Constraint == "exam_assignments_exam_id_fkey" {
				return ErrNotFound
			}
			return ErrUserNotFound
		}
		return fmt.Errorf("assign exam: %w", err)
	}
	return nil
}

func (s *Store) Unassign(ctx context.Context, examID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM exam_assignments WHERE exam_id = $1 AND user_id = $2`, examID, userID)
	if err != nil {
		return fmt.Errorf("unassign exam: %w", err)
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, examID int64) ([]models.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.exam_id, a.user_id, u.name, u.email, COALESCE(a.assigned_by, 0), a.assigned_at
		 FROM exam_assignments a JOIN users u ON u.id = a.user_id
		 WHERE a.exam_id = $1
		 ORDER BY u.name`, examID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	out := []models.Assignment{}
	for rows.Next() {
		var a models.Assignment
		if err := rows.Scan(&a.ExamID, &a.UserID, &a.UserName, &a.UserEmail, &a.AssignedBy, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) IsAssigned(ctx context.Context, examID, userID int64) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM exam_assignments WHERE exam_id = $1 AND user_id = $2)`,
		examID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return ok, nil
}

package attempts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/examprep/backend/internal/examstate"
	"github.com/examprep/backend/internal/models"
)

// AttemptStore persists real-mode attempts. Practice attempts never
// reach it.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, rec *models.AttemptRecord) error
	CompleteAttempt(ctx context.Context, c Completion) error
	GetAttempt(ctx context.Context, id string) (*models.AttemptRecord, error)
	ListAttempts(ctx context.Context, userID int64, limit, offset int) ([]models.AttemptRecord, int, error)
	ListExamAttempts(ctx context.Context, examID int64, limit, offset int) ([]models.AttemptRecord, int, error)
}

// Completion is the final write of a finished real attempt. It only
// applies when the stored row still has ExpectedVersion.
type Completion struct {
	ID              string
	ExpectedVersion int64
	Answers         map[int]string
	Flagged         []int
	Result          examstate.Result
	Passed          bool
	EndTime         time.Time
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const attemptColumns = `a.id, a.user_id, a.exam_id, e.title, a.mode, a.question_ids, a.answers,
	a.flagged, a.score, a.earned_points, a.correct_answers, a.passed, a.completed,
	a.version, a.start_time, a.end_time`

func scanAttempt(row interface{ Scan(...any) error }) (*models.AttemptRecord, error) {
	var (
		rec            models.AttemptRecord
		questionIDs    pq.Int64Array
		flagged        pq.Int64Array
		answers        []byte
		score          sql.NullFloat64
		earnedPoints   sql.NullFloat64
		correctAnswers sql.NullInt64
		passed         sql.NullBool
		endTime        sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.ExamID, &rec.ExamTitle, &rec.Mode,
		&questionIDs, &answers, &flagged, &score, &earnedPoints, &correctAnswers,
		&passed, &rec.Completed, &rec.Version, &rec.StartTime, &endTime); err != nil {
		return nil, err
	}

	rec.QuestionIDs = []int64(questionIDs)
	rec.Flagged = make([]int, len(flagged))
	for i, n := range flagged {
		rec.Flagged[i] = int(n)
	}
	rec.Answers = map[string]string{}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &rec.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	if score.Valid {
		rec.Score = &score.Float64
	}
	if earnedPoints.Valid {
		rec.EarnedPoints = &earnedPoints.Float64
	}
	if correctAnswers.Valid {
		n := int(correctAnswers.Int64)
		rec.CorrectAnswers = &n
	}
	if passed.Valid {
		rec.Passed = &passed.Bool
	}
	if endTime.Valid {
		rec.EndTime = &endTime.Time
	}
	return &rec, nil
}

func (s *Store) CreateAttempt(ctx context.Context, rec *models.AttemptRecord) error {
	rec.Version = 1
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exam_attempts (id, user_id, exam_id, mode, question_ids, start_time, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.UserID, rec.ExamID, rec.Mode, pq.Int64Array(rec.QuestionIDs), rec.StartTime, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

func (s *Store) CompleteAttempt(ctx context.Context, c Completion) error {
	answers := make(map[string]string, len(c.Answers))
	for n, raw := range c.Answers {
		answers[fmt.Sprint(n)] = raw
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	flagged := make(pq.Int64Array, len(c.Flagged))
	for i, n := range c.Flagged {
		flagged[i] = int64(n)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE exam_attempts
		 SET answers = $1, flagged = $2, score = $3, earned_points = $4, correct_answers = $5,
		     passed = $6, completed = TRUE, end_time = $7, version = version + 1
		 WHERE id = $8 AND version = $9 AND completed = FALSE`,
		answersJSON, flagged, c.Result.Score, c.Result.EarnedPoints, c.Result.CorrectAnswers,
		c.Passed, c.EndTime, c.ID, c.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("complete attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete attempt: %w", err)
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, id string) (*models.AttemptRecord, error) {
	rec, err := scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts a JOIN exams e ON e.id = a.exam_id
		 WHERE a.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return rec, nil
}

func (s *Store) ListAttempts(ctx context.Context, userID int64, limit, offset int) ([]models.AttemptRecord, int, error) {
	return s.list(ctx, "a.user_id", userID, limit, offset)
}

func (s *Store) ListExamAttempts(ctx context.Context, examID int64, limit, offset int) ([]models.AttemptRecord, int, error) {
	return s.list(ctx, "a.exam_id", examID, limit, offset)
}

func (s *Store) list(ctx context.Context, column string, id int64, limit, offset int) ([]models.AttemptRecord, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM exam_attempts a WHERE `+column+` = $1`, id,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count attempts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts a JOIN exams e ON e.id = a.exam_id
		 WHERE `+column+` = $1
		 ORDER BY a.start_time DESC LIMIT $2 OFFSET $3`,
		id, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	records := []models.AttemptRecord{}
	for rows.Next() {
		rec, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan attempt: %w", err)
		}
		records = append(records, *rec)
	}
	return records, total, rows.Err()
}

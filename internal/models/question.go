package models

import "time"

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

var ValidDifficulties = map[Difficulty]bool{
	DifficultyEasy:   true,
	DifficultyMedium: true,
	DifficultyHard:   true,
}

// ── Core Structs ───────────────────────────────────────

// Question is one multiple-choice item of an exam's question bank.
// CorrectAnswers holds 0-based indices into Options; more than one
// index makes it a multi-answer question.
type Question struct {
	ID             int64      `json:"id"`
	ExamID         int64      `json:"exam_id"`
	Text           string     `json:"text"`
	Options        []string   `json:"options"`
	CorrectAnswers []int      `json:"correct_answers"`
	Difficulty     Difficulty `json:"difficulty"`
	Explanation    string     `json:"explanation,omitempty"`
	ImageURL       string     `json:"image_url,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsMultiAnswer reports whether the question has more than one correct option.
func (q Question) IsMultiAnswer() bool {
	return len(q.CorrectAnswers) > 1
}

// Clone returns a deep copy so callers can reorder options freely.
func (q Question) Clone() Question {
	c := q
	c.Options = append([]string(nil), q.Options...)
	c.CorrectAnswers = append([]int(nil), q.CorrectAnswers...)
	return c
}

// ── Request Types ────────────────────────────────────────

type QuestionRequest struct {
	Text           string     `json:"text"`
	Options        []string   `json:"options"`
	CorrectAnswers []int      `json:"correct_answers"`
	Difficulty     Difficulty `json:"difficulty"`
	Explanation    string     `json:"explanation"`
	ImageURL       string     `json:"image_url"`
}

// ── Response Types ───────────────────────────────────────

type QuestionListResponse struct {
	Questions []Question `json:"questions"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	PageSize  int        `json:"page_size"`
}

type ImportRowError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

type ImportResult struct {
	Imported int              `json:"imported"`
	Skipped  int              `json:"skipped"`
	Errors   []ImportRowError `json:"errors,omitempty"`
}

type ExplanationDraft struct {
	QuestionID  int64  `json:"question_id"`
	Explanation string `json:"explanation"`
	ModelUsed   string `json:"model_used"`
	Quality     string `json:"quality"`
}

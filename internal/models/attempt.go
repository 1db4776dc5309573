package models

import "time"

type AttemptMode string

const (
	ModePractice AttemptMode = "practice"
	ModeReal     AttemptMode = "real"
)

// AttemptConfig is fixed once the attempt starts.
type AttemptConfig struct {
	Mode               AttemptMode `json:"mode"`
	QuestionCount      int         `json:"question_count,omitempty"`
	RandomizeQuestions bool        `json:"randomize_questions"`
	RandomizeAnswers   bool        `json:"randomize_answers"`
}

func (c AttemptConfig) IsPractice() bool {
	return c.Mode == ModePractice
}

// AttemptRecord is the persisted row of a real-mode attempt.
type AttemptRecord struct {
	ID             string            `json:"id"`
	UserID         int64             `json:"user_id"`
	ExamID         int64             `json:"exam_id"`
	ExamTitle      string            `json:"exam_title,omitempty"`
	Mode           AttemptMode       `json:"mode"`
	QuestionIDs    []int64           `json:"question_ids"`
	Answers        map[string]string `json:"answers"`
	Flagged        []int             `json:"flagged"`
	Score          *float64          `json:"score,omitempty"`
	EarnedPoints   *float64          `json:"earned_points,omitempty"`
	CorrectAnswers *int              `json:"correct_answers,omitempty"`
	Passed         *bool             `json:"passed,omitempty"`
	Completed      bool              `json:"completed"`
	Version        int64             `json:"version"`
	StartTime      time.Time         `json:"start_time"`
	EndTime        *time.Time        `json:"end_time,omitempty"`
}

// ── Request Types ────────────────────────────────────────

type StartAttemptRequest struct {
	Mode               AttemptMode `json:"mode"`
	QuestionCount      int         `json:"question_count"`
	RandomizeQuestions bool        `json:"randomize_questions"`
	RandomizeAnswers   bool        `json:"randomize_answers"`
}

type AnswerRequest struct {
	Option int `json:"option"`
}

type NavigateRequest struct {
	Question int `json:"question"`
}

type FilterRequest struct {
	ShowOnlyFlagged bool `json:"show_only_flagged"`
}

// ── Response Types ───────────────────────────────────────

// QuestionView is one question as presented inside a live attempt.
// CorrectAnswers and Explanation are only filled in review mode or on
// a practice-mode reveal.
type QuestionView struct {
	Number         int        `json:"number"`
	QuestionID     int64      `json:"question_id"`
	Text           string     `json:"text"`
	Options        []string   `json:"options"`
	MultiAnswer    bool       `json:"multi_answer"`
	MaxSelections  int        `json:"max_selections"`
	Difficulty     Difficulty `json:"difficulty"`
	ImageURL       string     `json:"image_url,omitempty"`
	Selected       []int      `json:"selected"`
	Flagged        bool       `json:"flagged"`
	CorrectAnswers []int      `json:"correct_answers,omitempty"`
	Explanation    string     `json:"explanation,omitempty"`
}

type NavigationView struct {
	Questions       []int `json:"questions"`
	Position        int   `json:"position"`
	Previous        *int  `json:"previous,omitempty"`
	Next            *int  `json:"next,omitempty"`
	ShowOnlyFlagged bool  `json:"show_only_flagged"`
}

type AttemptView struct {
	ID               string         `json:"id"`
	ExamID           int64          `json:"exam_id"`
	ExamTitle        string         `json:"exam_title"`
	Config           AttemptConfig  `json:"config"`
	TotalQuestions   int            `json:"total_questions"`
	AnsweredCount    int            `json:"answered_count"`
	Flagged          []int          `json:"flagged"`
	Started          bool           `json:"started"`
	Finished         bool           `json:"finished"`
	ReviewMode       bool           `json:"review_mode"`
	StartTime        *time.Time     `json:"start_time,omitempty"`
	EndTime          *time.Time     `json:"end_time,omitempty"`
	RemainingSeconds *int64         `json:"remaining_seconds,omitempty"`
	Current          QuestionView   `json:"current"`
	Navigation       NavigationView `json:"navigation"`
	Warning          string         `json:"warning,omitempty"`
}

type QuestionOutcome struct {
	Number         int     `json:"number"`
	QuestionID     int64   `json:"question_id"`
	Selected       []int   `json:"selected"`
	CorrectAnswers []int   `json:"correct_answers"`
	Points         float64 `json:"points"`
	FullyCorrect   bool    `json:"fully_correct"`
	Answered       bool    `json:"answered"`
	Flagged        bool    `json:"flagged"`
}

// ResultView keeps the fractional score numerator (EarnedPoints) and the
// fully-correct count (CorrectAnswers) as separate metrics.
type ResultView struct {
	AttemptID         string            `json:"attempt_id"`
	ExamID            int64             `json:"exam_id"`
	Mode              AttemptMode       `json:"mode"`
	Score             float64           `json:"score"`
	EarnedPoints      float64           `json:"earned_points"`
	CorrectAnswers    int               `json:"correct_answers"`
	TotalQuestions    int               `json:"total_questions"`
	TimeSpent         int64             `json:"time_spent_seconds"`
	FlaggedCount      int               `json:"flagged_count"`
	PassingPercentage float64           `json:"passing_percentage"`
	Passed            bool              `json:"passed"`
	Outcomes          []QuestionOutcome `json:"outcomes,omitempty"`
	Warning           string            `json:"warning,omitempty"`
}

type AttemptListResponse struct {
	Attempts []AttemptRecord `json:"attempts"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

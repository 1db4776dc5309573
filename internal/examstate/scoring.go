package examstate

import (
	"time"

	"github.com/examprep/backend/internal/models"
)

// Result is derived from a state and its question set; it is never
// stored on its own. CorrectAnswers counts fully-correct questions and
// EarnedPoints is the fractional numerator behind Score, so the two
// differ whenever multi-answer questions earn partial credit.
type Result struct {
	Score          float64 `json:"score"`
	EarnedPoints   float64 `json:"earned_points"`
	CorrectAnswers int     `json:"correct_answers"`
	TotalQuestions int     `json:"total_questions"`
	TimeSpent      int64   `json:"time_spent_seconds"`
	FlaggedCount   int     `json:"flagged_count"`
}

// Outcome is the per-question scoring breakdown.
type Outcome struct {
	Selected     []int
	Points       float64
	FullyCorrect bool
	Answered     bool
}

// ScoreQuestion applies the per-question rule: single-answer questions
// earn 1 or 0, multi-answer questions earn |selected ∩ correct| / |correct|
// and count as fully correct only when the sets are equal.
func ScoreQuestion(q models.Question, raw string) Outcome {
	selected := ParseSelection(raw)
	out := Outcome{Selected: selected, Answered: len(selected) > 0}
	if !out.Answered || len(q.CorrectAnswers) == 0 {
		return out
	}

	correct := make(map[int]bool, len(q.CorrectAnswers))
	for _, c := range q.CorrectAnswers {
		correct[c] = true
	}

	if !q.IsMultiAnswer() {
		if len(selected) == 1 && correct[selected[0]] {
			out.Points = 1
			out.FullyCorrect = true
		}
		return out
	}

	hits := 0
	for _, s := range selected {
		if correct[s] {
			hits++
		}
	}
	out.Points = float64(hits) / float64(len(correct))
	out.FullyCorrect = hits == len(correct) && len(selected) == len(correct)
	return out
}

// Score computes the attempt result. Answers are keyed by 1-based
// question number matching the order of questions.
func Score(questions []models.Question, answers map[int]string, flagged map[int]bool, start, end *time.Time) Result {
	res := Result{TotalQuestions: len(questions)}

	for i, q := range questions {
		o := ScoreQuestion(q, answers[i+1])
		res.EarnedPoints += o.Points
		if o.FullyCorrect {
			res.CorrectAnswers++
		}
	}

	if len(questions) > 0 {
		res.Score = res.EarnedPoints / float64(len(questions)) * 100
	}

	for _, on := range flagged {
		if on {
			res.FlaggedCount++
		}
	}

	if start != nil && end != nil {
		res.TimeSpent = int64(end.Sub(*start) / time.Second)
	}

	return res
}

// ScoreState is Score over a State's recorded answers.
func ScoreState(questions []models.Question, s *State) Result {
	return Score(questions, s.Answers, s.Flagged, s.StartTime, s.EndTime)
}

// Passed reports whether the result meets the passing percentage.
func Passed(r Result, passingPercentage float64) bool {
	return r.Score >= passingPercentage
}

package attempts

import (
	"github.com/examprep/backend/internal/examstate"
	"github.com/examprep/backend/internal/models"
)

func (s *Service) view(sess *Session) *models.AttemptView {
	st := sess.State
	set := st.NavigationSet()

	nav := models.NavigationView{
		Questions:       set,
		Position:        examstate.Position(set, st.Current),
		ShowOnlyFlagged: st.ShowOnlyFlagged,
	}
	prev, next, hasPrev, hasNext := examstate.Neighbours(set, st.Current)
	if hasPrev {
		nav.Previous = &prev
	}
	if hasNext {
		nav.Next = &next
	}

	v := &models.AttemptView{
		ID:             sess.ID,
		ExamID:         sess.ExamID,
		ExamTitle:      sess.ExamTitle,
		Config:         sess.Config,
		TotalQuestions: st.Total,
		AnsweredCount:  len(st.Answers),
		Flagged:        st.FlaggedList(),
		Started:        st.Started,
		Finished:       st.Finished,
		ReviewMode:     st.ReviewMode,
		StartTime:      st.StartTime,
		EndTime:        st.EndTime,
		Current:        questionView(sess, st.Current, false),
		Navigation:     nav,
		Warning:        sess.SaveWarning,
	}

	if sess.Deadline != nil && st.InProgress() {
		remaining := int64(sess.Deadline.Sub(s.now()).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		v.RemainingSeconds = &remaining
	}
	return v
}

// questionView renders question n. Correct answers and the explanation
// are included in review mode or when reveal is set.
func questionView(sess *Session, n int, reveal bool) models.QuestionView {
	q, err := questionAt(sess, n)
	if err != nil {
		return models.QuestionView{Number: n}
	}

	selected := examstate.ParseSelection(sess.State.Answers[n])
	if selected == nil {
		selected = []int{}
	}
	qv := models.QuestionView{
		Number:        n,
		QuestionID:    q.ID,
		Text:          q.Text,
		Options:       q.Options,
		MultiAnswer:   q.IsMultiAnswer(),
		MaxSelections: len(q.CorrectAnswers),
		Difficulty:    q.Difficulty,
		ImageURL:      q.ImageURL,
		Selected:      selected,
		Flagged:       sess.State.Flagged[n],
	}
	if sess.State.ReviewMode || reveal {
		qv.CorrectAnswers = q.CorrectAnswers
		qv.Explanation = q.Explanation
	}
	return qv
}

// resultView scores the session. The same computation serves the
// results screen and review mode.
func resultView(sess *Session) *models.ResultView {
	st := sess.State
	r := examstate.ScoreState(sess.Questions, st)

	outcomes := make([]models.QuestionOutcome, len(sess.Questions))
	for i, q := range sess.Questions {
		n := i + 1
		o := examstate.ScoreQuestion(q, st.Answers[n])
		selected := o.Selected
		if selected == nil {
			selected = []int{}
		}
		outcomes[i] = models.QuestionOutcome{
			Number:         n,
			QuestionID:     q.ID,
			Selected:       selected,
			CorrectAnswers: q.CorrectAnswers,
			Points:         o.Points,
			FullyCorrect:   o.FullyCorrect,
			Answered:       o.Answered,
			Flagged:        st.Flagged[n],
		}
	}

	return &models.ResultView{
		AttemptID:         sess.ID,
		ExamID:            sess.ExamID,
		Mode:              sess.Config.Mode,
		Score:             r.Score,
		EarnedPoints:      r.EarnedPoints,
		CorrectAnswers:    r.CorrectAnswers,
		TotalQuestions:    r.TotalQuestions,
		TimeSpent:         r.TimeSpent,
		FlaggedCount:      r.FlaggedCount,
		PassingPercentage: sess.PassingPercentage,
		Passed:            examstate.Passed(r, sess.PassingPercentage),
		Outcomes:          outcomes,
		Warning:           sess.SaveWarning,
	}
}

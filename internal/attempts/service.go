package attempts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/examprep/backend/internal/examstate"
	"github.com/examprep/backend/internal/models"
)

const saveFailedWarning = "Your attempt is finished but the result could not be saved. Please contact an administrator."

// ExamProvider supplies exam metadata, access decisions and question
// pools.
type ExamProvider interface {
	GetExam(ctx context.Context, id int64) (*models.Exam, error)
	CanAccess(ctx context.Context, userID int64, isAdmin bool, examID int64) error
	QuestionPool(ctx context.Context, examID int64) ([]models.Question, error)
}

type Service struct {
	exams      ExamProvider
	store      AttemptStore
	sessions   SessionStore
	now        func() time.Time
	newRand    func() *rand.Rand
	sessionTTL time.Duration
}

func NewService(exams ExamProvider, store AttemptStore, sessions SessionStore, sessionTTL time.Duration) *Service {
	return &Service{
		exams:    exams,
		store:    store,
		sessions: sessions,
		now:      time.Now,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
		sessionTTL: sessionTTL,
	}
}

// ── Lifecycle ───────────────────────────────────────────

// Start selects the attempt's questions once and opens a live session.
// Real-mode attempts are also recorded in the store and get a deadline.
func (s *Service) Start(ctx context.Context, userID int64, isAdmin bool, examID int64, req models.StartAttemptRequest) (*models.AttemptView, error) {
	if req.Mode != models.ModePractice && req.Mode != models.ModeReal {
		return nil, ErrInvalidMode
	}
	if req.QuestionCount < 0 {
		return nil, ErrInvalidCount
	}

	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := s.exams.CanAccess(ctx, userID, isAdmin, examID); err != nil {
		return nil, err
	}

	cfg := models.AttemptConfig{
		Mode:               req.Mode,
		RandomizeQuestions: req.RandomizeQuestions,
		RandomizeAnswers:   req.RandomizeAnswers,
	}
	if cfg.IsPractice() {
		cfg.QuestionCount = req.QuestionCount
	}

	sess := &Session{
		ID:                uuid.NewString(),
		UserID:            userID,
		ExamID:            exam.ID,
		ExamTitle:         exam.Title,
		Config:            cfg,
		PassingPercentage: exam.PassingPercentage,
	}
	if err := s.prepare(ctx, sess, exam); err != nil {
		return nil, err
	}

	if !cfg.IsPractice() {
		if err := s.record(ctx, sess); err != nil {
			return nil, err
		}
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	log.Printf("[attempts] started %s attempt %s: user=%d exam=%d questions=%d",
		cfg.Mode, sess.ID, userID, exam.ID, len(sess.Questions))
	return s.view(sess), nil
}

// prepare loads the pool, runs selection and starts a fresh state.
func (s *Service) prepare(ctx context.Context, sess *Session, exam *models.Exam) error {
	pool, err := s.exams.QuestionPool(ctx, exam.ID)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	questions := examstate.Process(pool, examstate.SelectionOptions{
		Practice:           sess.Config.IsPractice(),
		QuestionCount:      sess.Config.QuestionCount,
		RandomizeQuestions: sess.Config.RandomizeQuestions,
		RandomizeAnswers:   sess.Config.RandomizeAnswers,
		ExamTotalQuestions: exam.TotalQuestions,
	}, s.newRand())
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	now := s.now()
	var version int64
	if sess.State != nil {
		version = sess.State.Version
	}
	sess.Questions = questions
	sess.State = examstate.NewState(len(questions))
	sess.State.Version = version
	if err := sess.State.Start(now); err != nil {
		return err
	}
	sess.SaveWarning = ""
	sess.UpdatedAt = now

	sess.Deadline = nil
	if !sess.Config.IsPractice() {
		deadline := now.Add(time.Duration(exam.DurationMinutes) * time.Minute)
		sess.Deadline = &deadline
	}
	return nil
}

func (s *Service) record(ctx context.Context, sess *Session) error {
	ids := make([]int64, len(sess.Questions))
	for i, q := range sess.Questions {
		ids[i] = q.ID
	}
	rec := &models.AttemptRecord{
		ID:          sess.ID,
		UserID:      sess.UserID,
		ExamID:      sess.ExamID,
		Mode:        sess.Config.Mode,
		QuestionIDs: ids,
		StartTime:   *sess.State.StartTime,
	}
	if err := s.store.CreateAttempt(ctx, rec); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	sess.Persisted = true
	sess.RecordVersion = rec.Version
	return nil
}

// load fetches a session for its owner and finishes it first when the
// deadline has passed.
func (s *Service) load(ctx context.Context, userID int64, id string) (*Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrForbidden
	}

	if sess.Expired(s.now()) {
		err := s.finish(ctx, sess, *sess.Deadline, sess.State.Version)
		if errors.Is(err, ErrStale) {
			// Another request or the sweep got there first.
			return s.sessions.Get(ctx, id)
		}
		if err != nil {
			return nil, err
		}
		log.Printf("[attempts] attempt %s reached its deadline, finished", sess.ID)
	} else if sess.State.Finished && sess.ResultPending {
		s.completeRecord(ctx, sess, true)
	}
	return sess, nil
}

func (s *Service) save(ctx context.Context, sess *Session, expected int64) error {
	sess.UpdatedAt = s.now()
	return s.sessions.Update(ctx, sess, expected)
}

// mutate applies fn to the owner's session and saves it against the
// version it was loaded at.
func (s *Service) mutate(ctx context.Context, userID int64, id string, fn func(*Session) error) (*Session, error) {
	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	expected := sess.State.Version
	if err := fn(sess); err != nil {
		return nil, err
	}
	if sess.State.Version == expected {
		return sess, nil
	}
	if err := s.save(ctx, sess, expected); err != nil {
		return nil, err
	}
	return sess, nil
}

// finish applies the Finish transition and saves the session against
// expected. The result row of a recorded attempt is written only after
// that save wins, so a request that loses the race leaves the row as it
// was.
func (s *Service) finish(ctx context.Context, sess *Session, at time.Time, expected int64) error {
	if err := sess.State.Finish(at); err != nil {
		return err
	}
	sess.ResultPending = sess.Persisted
	if err := s.save(ctx, sess, expected); err != nil {
		return err
	}
	s.completeRecord(ctx, sess, false)
	return nil
}

// completeRecord writes a finished session's result to its attempt row.
// A failed write keeps the local finish, leaves a warning and keeps the
// pending mark so a later load tries again. On a retry a stale row means
// an earlier write already landed.
func (s *Service) completeRecord(ctx context.Context, sess *Session, retry bool) {
	if !sess.ResultPending {
		return
	}

	result := examstate.ScoreState(sess.Questions, sess.State)
	err := s.store.CompleteAttempt(ctx, Completion{
		ID:              sess.ID,
		ExpectedVersion: sess.RecordVersion,
		Answers:         sess.State.Answers,
		Flagged:         sess.State.FlaggedList(),
		Result:          result,
		Passed:          examstate.Passed(result, sess.PassingPercentage),
		EndTime:         *sess.State.EndTime,
	})
	switch {
	case err == nil, retry && errors.Is(err, ErrStale):
		sess.RecordVersion++
		sess.ResultPending = false
		sess.SaveWarning = ""
	default:
		log.Printf("WARN: failed to save result of attempt %s: %v", sess.ID, err)
		if sess.SaveWarning == saveFailedWarning {
			return
		}
		sess.SaveWarning = saveFailedWarning
	}

	if err := s.save(ctx, sess, sess.State.Version); err != nil {
		log.Printf("WARN: failed to update session %s after saving its result: %v", sess.ID, err)
	}
}

// ── Operations ──────────────────────────────────────────

func (s *Service) Get(ctx context.Context, userID int64, id string) (*models.AttemptView, error) {
	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// Question returns the current question. reveal shows the correct
// answers and explanation; it is only honoured for practice attempts
// or after the attempt has finished.
func (s *Service) Question(ctx context.Context, userID int64, id string, reveal bool) (*models.QuestionView, error) {
	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if reveal && !sess.Config.IsPractice() && !sess.State.Finished {
		return nil, ErrRevealNotAllowed
	}
	qv := questionView(sess, sess.State.Current, reveal)
	return &qv, nil
}

// Answer selects option for question n. On multi-answer questions the
// option toggles, and a new selection beyond the number of correct
// answers is refused.
func (s *Service) Answer(ctx context.Context, userID int64, id string, n, option int) (*models.AttemptView, error) {
	sess, err := s.mutate(ctx, userID, id, func(sess *Session) error {
		if err := requireInProgress(sess.State); err != nil {
			return err
		}
		q, err := questionAt(sess, n)
		if err != nil {
			return err
		}
		if option < 0 || option >= len(q.Options) {
			return fmt.Errorf("%w: %d", examstate.ErrInvalidOption, option)
		}

		multi := q.IsMultiAnswer()
		if multi {
			selected := examstate.ParseSelection(sess.State.Answers[n])
			if !slices.Contains(selected, option) && len(selected) >= len(q.CorrectAnswers) {
				return ErrSelectionLimit
			}
		}
		return sess.State.SelectAnswer(n, option, multi)
	})
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

func (s *Service) ToggleFlag(ctx context.Context, userID int64, id string, n int) (*models.AttemptView, error) {
	sess, err := s.mutate(ctx, userID, id, func(sess *Session) error {
		return sess.State.ToggleFlag(n)
	})
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

func (s *Service) Navigate(ctx context.Context, userID int64, id string, n int) (*models.AttemptView, error) {
	sess, err := s.mutate(ctx, userID, id, func(sess *Session) error {
		return sess.State.Navigate(n)
	})
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// SetShowOnlyFlagged toggles the navigation filter. Turning it on moves
// the pointer to the first flagged question when the current one is
// not flagged.
func (s *Service) SetShowOnlyFlagged(ctx context.Context, userID int64, id string, on bool) (*models.AttemptView, error) {
	sess, err := s.mutate(ctx, userID, id, func(sess *Session) error {
		if err := sess.State.SetShowOnlyFlagged(on); err != nil {
			return err
		}
		set := sess.State.NavigationSet()
		if on && len(set) > 0 && examstate.Position(set, sess.State.Current) < 0 {
			return sess.State.Navigate(set[0])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

func (s *Service) Submit(ctx context.Context, userID int64, id string) (*models.ResultView, error) {
	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.finish(ctx, sess, s.now(), sess.State.Version); err != nil {
		return nil, err
	}
	log.Printf("[attempts] submitted attempt %s", sess.ID)
	return resultView(sess), nil
}

func (s *Service) StartReview(ctx context.Context, userID int64, id string) (*models.AttemptView, error) {
	sess, err := s.mutate(ctx, userID, id, func(sess *Session) error {
		return sess.State.StartReview()
	})
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

func (s *Service) ExitReview(ctx context.Context, userID int64, id string) (*models.AttemptView, error) {
	sess, err := s.mutate(ctx, userID, id, func(sess *Session) error {
		return sess.State.ExitReview()
	})
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

func (s *Service) Result(ctx context.Context, userID int64, id string) (*models.ResultView, error) {
	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !sess.State.Finished {
		return nil, examstate.ErrNotFinished
	}
	return resultView(sess), nil
}

// Reset starts a retake with the same configuration and a fresh
// question selection. Practice sessions are reset in place. A real
// attempt must be finished first and the retake is a new recorded
// attempt with its own id.
func (s *Service) Reset(ctx context.Context, userID int64, isAdmin bool, id string) (*models.AttemptView, error) {
	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if !sess.Config.IsPractice() {
		if !sess.State.Finished {
			return nil, examstate.ErrNotFinished
		}
		view, err := s.Start(ctx, userID, isAdmin, sess.ExamID, models.StartAttemptRequest{
			Mode:               sess.Config.Mode,
			RandomizeQuestions: sess.Config.RandomizeQuestions,
			RandomizeAnswers:   sess.Config.RandomizeAnswers,
		})
		if err != nil {
			return nil, err
		}
		if err := s.sessions.Delete(ctx, sess.ID); err != nil {
			log.Printf("WARN: failed to drop session %s after retake: %v", sess.ID, err)
		}
		return view, nil
	}

	exam, err := s.exams.GetExam(ctx, sess.ExamID)
	if err != nil {
		return nil, err
	}
	expected := sess.State.Version
	sess.State.Reset()
	if err := s.prepare(ctx, sess, exam); err != nil {
		return nil, err
	}
	if err := s.save(ctx, sess, expected); err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// Discard drops the live session. A recorded attempt row stays as it
// is.
func (s *Service) Discard(ctx context.Context, userID int64, id string) error {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		return ErrForbidden
	}
	return s.sessions.Delete(ctx, id)
}

// ── History ─────────────────────────────────────────────

func (s *Service) ListAttempts(ctx context.Context, userID int64, limit, offset int) ([]models.AttemptRecord, int, error) {
	return s.store.ListAttempts(ctx, userID, limit, offset)
}

func (s *Service) ListExamAttempts(ctx context.Context, examID int64, limit, offset int) ([]models.AttemptRecord, int, error) {
	return s.store.ListExamAttempts(ctx, examID, limit, offset)
}

func (s *Service) GetRecord(ctx context.Context, userID int64, isAdmin bool, id string) (*models.AttemptRecord, error) {
	rec, err := s.store.GetAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID && !isAdmin {
		return nil, ErrForbidden
	}
	return rec, nil
}

// ── Expiry ──────────────────────────────────────────────

// SweepExpired finishes every timed session past its deadline and
// prunes idle ones. It returns the number of attempts finished.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := s.sessions.ListExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}

	finished := 0
	for _, id := range ids {
		sess, err := s.sessions.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			log.Printf("[expiry-worker] load %s: %v", id, err)
			continue
		}
		if !sess.Expired(now) {
			continue
		}
		if err := s.finish(ctx, sess, *sess.Deadline, sess.State.Version); err != nil {
			if !errors.Is(err, ErrStale) {
				log.Printf("[expiry-worker] finish %s: %v", id, err)
			}
			continue
		}
		finished++
	}

	if s.sessionTTL > 0 {
		pruned, err := s.sessions.Prune(ctx, now.Add(-s.sessionTTL))
		if err != nil {
			log.Printf("[expiry-worker] prune: %v", err)
		} else if pruned > 0 {
			log.Printf("[expiry-worker] pruned %d idle sessions", pruned)
		}
	}
	return finished, nil
}

func (s *Service) StartExpiryWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		log.Println("WARN: expiry sweep disabled, deadlines are only enforced on access")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("[expiry-worker] Attempt expiry worker started")

	for {
		select {
		case <-ctx.Done():
			log.Println("[expiry-worker] Shutting down")
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				log.Printf("[expiry-worker] sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("[expiry-worker] finished %d expired attempts", n)
			}
		}
	}
}

// ── Helpers ─────────────────────────────────────────────

func requireInProgress(st *examstate.State) error {
	if !st.Started {
		return examstate.ErrNotStarted
	}
	if st.Finished {
		return examstate.ErrFinished
	}
	return nil
}

func questionAt(sess *Session, n int) (models.Question, error) {
	if n < 1 || n > len(sess.Questions) {
		return models.Question{}, fmt.Errorf("%w: %d not in 1..%d", examstate.ErrOutOfRange, n, len(sess.Questions))
	}
	return sess.Questions[n-1], nil
}

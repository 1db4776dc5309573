package examstate

import (
	"math/rand/v2"
	"sort"

	"github.com/examprep/backend/internal/models"
)

// SelectionOptions drives Process. ExamTotalQuestions is the exam's
// configured size; QuestionCount only applies in practice mode.
type SelectionOptions struct {
	Practice           bool
	QuestionCount      int
	RandomizeQuestions bool
	RandomizeAnswers   bool
	ExamTotalQuestions int
}

// TargetSize returns how many questions an attempt should contain.
// A non-positive result means "use the whole pool".
func (o SelectionOptions) TargetSize() int {
	if o.Practice && o.QuestionCount > 0 {
		return o.QuestionCount
	}
	return o.ExamTotalQuestions
}

// ShuffleQuestions reports whether question order is randomized.
// Real attempts are always shuffled regardless of the flag.
func (o SelectionOptions) ShuffleQuestions() bool {
	return o.RandomizeQuestions || !o.Practice
}

// Process derives the ordered question list used for one attempt.
// The pool is shuffled at most once, before truncation, and answer
// options are permuted per question with the correct indices remapped.
// The input pool is not modified.
func Process(pool []models.Question, opts SelectionOptions, rng *rand.Rand) []models.Question {
	if len(pool) == 0 {
		return []models.Question{}
	}

	selected := make([]models.Question, len(pool))
	for i, q := range pool {
		selected[i] = q.Clone()
	}

	if opts.ShuffleQuestions() {
		rng.Shuffle(len(selected), func(i, j int) {
			selected[i], selected[j] = selected[j], selected[i]
		})
	}

	if target := opts.TargetSize(); target > 0 && target < len(selected) {
		selected = selected[:target]
	}

	if opts.RandomizeAnswers {
		for i := range selected {
			shuffleOptions(&selected[i], rng)
		}
	}

	return selected
}

// shuffleOptions permutes q.Options. perm[newPos] = oldPos, so the
// correct set is remapped through the inverse.
func shuffleOptions(q *models.Question, rng *rand.Rand) {
	perm := rng.Perm(len(q.Options))

	newOptions := make([]string, len(q.Options))
	newPosOf := make([]int, len(q.Options))
	for newPos, oldPos := range perm {
		newOptions[newPos] = q.Options[oldPos]
		newPosOf[oldPos] = newPos
	}

	remapped := make([]int, 0, len(q.CorrectAnswers))
	for _, old := range q.CorrectAnswers {
		if old < 0 || old >= len(newPosOf) {
			continue
		}
		remapped = append(remapped, newPosOf[old])
	}
	sort.Ints(remapped)

	q.Options = newOptions
	q.CorrectAnswers = remapped
}

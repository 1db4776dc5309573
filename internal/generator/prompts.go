package generator

import (
	"fmt"
	"strings"

	"github.com/examprep/backend/internal/models"
)

const (
	minExplanationLen = 40
	maxExplanationLen = 2000
)

func ExplanationSystemPrompt() string {
	return `You write answer explanations for a multiple-choice certification exam question bank.

Given a question, its options and the correct option letters, write one explanation that:
- states which option(s) are correct, by letter
- explains why each correct option is right
- briefly says why the most tempting wrong options are wrong
- is factual, neutral and between 2 and 6 sentences
- does not invent facts beyond what is needed to justify the answer

Respond with JSON only, no prose around it:
{"explanation": "..."}`
}

// optionLetter maps a 0-based index to A, B, C...
func optionLetter(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return fmt.Sprintf("#%d", i+1)
}

func correctLetters(q models.Question) []string {
	out := make([]string, len(q.CorrectAnswers))
	for i, c := range q.CorrectAnswers {
		out[i] = optionLetter(c)
	}
	return out
}

// BuildExplanationPrompt renders the question with lettered options and
// the answer key.
func BuildExplanationPrompt(q models.Question) string {
	var b strings.Builder
	fmt.Fprintf(&b, "QUESTION:\n%s\n\nOPTIONS:\n", q.Text)
	for i, o := range q.Options {
		fmt.Fprintf(&b, "%s. %s\n", optionLetter(i), o)
	}
	fmt.Fprintf(&b, "\nCORRECT: %s\n", strings.Join(correctLetters(q), ", "))
	if q.IsMultiAnswer() {
		b.WriteString("This question has more than one correct option; explain each of them.\n")
	}
	if q.Difficulty != "" {
		fmt.Fprintf(&b, "DIFFICULTY: %s\n", q.Difficulty)
	}
	return b.String()
}

// correctLine extracts the CORRECT: line from a rendered prompt.
func correctLine(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if rest, ok := strings.CutPrefix(line, "CORRECT: "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

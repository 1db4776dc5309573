package generator

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/examprep/backend/internal/models"
)

const (
	QualityPassed  = "passed"
	QualityFlagged = "flagged"
	QualityReject  = "reject"
)

// ExplanationScore holds the individual checks run on a draft.
type ExplanationScore struct {
	LengthOK         bool
	NamesCorrect     bool
	NoPlaceholders   bool
	CoversAllAnswers bool
}

var placeholderPattern = regexp.MustCompile(`(?i)\[(todo|insert|placeholder)|lorem ipsum|as an ai`)

// ScoreExplanation checks a draft against its question.
func ScoreExplanation(q models.Question, text string) ExplanationScore {
	n := utf8.RuneCountInString(text)
	s := ExplanationScore{
		LengthOK:       n >= minExplanationLen && n <= maxExplanationLen,
		NoPlaceholders: !placeholderPattern.MatchString(text),
	}

	mentioned := 0
	for _, c := range q.CorrectAnswers {
		if mentionsOption(text, q, c) {
			mentioned++
		}
	}
	s.NamesCorrect = mentioned > 0
	s.CoversAllAnswers = mentioned == len(q.CorrectAnswers)
	return s
}

// mentionsOption reports whether text refers to option i by letter or
// by its text.
func mentionsOption(text string, q models.Question, i int) bool {
	if i < 0 || i >= len(q.Options) {
		return false
	}
	if letterPattern(optionLetter(i)).MatchString(text) {
		return true
	}
	opt := strings.TrimSpace(q.Options[i])
	return opt != "" && strings.Contains(strings.ToLower(text), strings.ToLower(opt))
}

// letterPattern matches an option letter only where it names an option:
// "option B", "(B)", "B)", "B.", "B and", "is B", "and B are". A bare
// capital does not count, so neither the article "A" opening a sentence
// nor the pronoun "I" names an option.
func letterPattern(letter string) *regexp.Regexp {
	l := regexp.QuoteMeta(letter)
	return regexp.MustCompile(
		`(?i:\b(?:options?|answers?|choices?)\s+)` + l + `\b` +
			`|\(` + l + `\)` +
			`|(?:^|[^\w#])` + l + `(?:[).:,;]|\s+(?:and|or|is|are)\b)` +
			`|\b(?:is|are)\s+` + l + `\b` +
			`|(?:,|\b(?:and|or))\s+` + l + `(?:$|[).:,;]|\s+(?:and|or|is|are)\b)`)
}

// Total weighs the checks into a score between 0 and 1.
func (s ExplanationScore) Total() float64 {
	total := 0.0
	if s.LengthOK {
		total += 0.25
	}
	if s.NamesCorrect {
		total += 0.35
	}
	if s.NoPlaceholders {
		total += 0.25
	}
	if s.CoversAllAnswers {
		total += 0.15
	}
	return total
}

// ClassifyQuality returns "reject", "flagged" or "passed". A draft
// that names no correct option or contains placeholder text is always
// rejected; one that misses some of several correct options is flagged.
func ClassifyQuality(s ExplanationScore) string {
	if !s.NoPlaceholders || !s.NamesCorrect || s.Total() < 0.50 {
		return QualityReject
	}
	if !s.CoversAllAnswers || !s.LengthOK {
		return QualityFlagged
	}
	return QualityPassed
}

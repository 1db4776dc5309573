package exams

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/examprep/backend/internal/models"
)

const (
	colQuestion    = "question"
	colCorrect     = "correct_answers"
	colDifficulty  = "difficulty"
	colExplanation = "explanation"
	colImageURL    = "image_url"
	optionPrefix   = "option_"

	maxImportRows = 2000
)

// csvLayout maps header names to column positions.
type csvLayout struct {
	question    int
	correct     int
	difficulty  int
	explanation int
	imageURL    int
	options     []int
}

func parseHeader(header []string) (*csvLayout, error) {
	l := &csvLayout{question: -1, correct: -1, difficulty: -1, explanation: -1, imageURL: -1}

	type optionCol struct{ n, idx int }
	var opts []optionCol

	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch {
		case name == colQuestion:
			l.question = i
		case name == colCorrect:
			l.correct = i
		case name == colDifficulty:
			l.difficulty = i
		case name == colExplanation:
			l.explanation = i
		case name == colImageURL:
			l.imageURL = i
		case strings.HasPrefix(name, optionPrefix):
			n, err := strconv.Atoi(strings.TrimPrefix(name, optionPrefix))
			if err != nil || n < 1 {
				return nil, invalid("invalid column %q", h)
			}
			opts = append(opts, optionCol{n: n, idx: i})
		}
	}

	if l.question < 0 {
		return nil, invalid("missing %q column", colQuestion)
	}
	if l.correct < 0 {
		return nil, invalid("missing %q column", colCorrect)
	}
	if len(opts) < 2 {
		return nil, invalid("at least two option columns are required")
	}

	sort.Slice(opts, func(i, j int) bool { return opts[i].n < opts[j].n })
	for _, o := range opts {
		l.options = append(l.options, o.idx)
	}
	return l, nil
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// parseCorrect converts "1;3" (1-based) into 0-based indices.
func parseCorrect(raw string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid correct answer %q", part)
		}
		out = append(out, n-1)
	}
	if len(out) == 0 {
		return nil, errors.New("correct_answers is empty")
	}
	return out, nil
}

func (l *csvLayout) parseRow(examID int64, record []string) (models.Question, error) {
	q := models.Question{
		ExamID:      examID,
		Text:        cell(record, l.question),
		Difficulty:  models.Difficulty(strings.ToLower(cell(record, l.difficulty))),
		Explanation: cell(record, l.explanation),
		ImageURL:    cell(record, l.imageURL),
	}
	if q.Difficulty == "" {
		q.Difficulty = models.DifficultyMedium
	}

	// Trailing empty option cells are unused columns.
	options := make([]string, 0, len(l.options))
	for _, idx := range l.options {
		options = append(options, cell(record, idx))
	}
	for len(options) > 0 && options[len(options)-1] == "" {
		options = options[:len(options)-1]
	}
	q.Options = options

	correct, err := parseCorrect(cell(record, l.correct))
	if err != nil {
		return q, err
	}
	q.CorrectAnswers = correct

	if err := ValidateQuestion(q); err != nil {
		return q, err
	}
	return q, nil
}

// ParseQuestionsCSV reads questions for examID. Rows that fail to parse
// or validate are reported by line and left out; a malformed header
// fails the whole file.
func ParseQuestionsCSV(examID int64, r io.Reader) ([]models.Question, []models.ImportRowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, invalid("file is empty")
	}
	if err != nil {
		return nil, nil, invalid("read header: %v", err)
	}
	layout, err := parseHeader(header)
	if err != nil {
		return nil, nil, err
	}

	var (
		questions []models.Question
		rowErrors []models.ImportRowError
		rows      int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				rowErrors = append(rowErrors, models.ImportRowError{Line: perr.Line, Error: perr.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}
		if blank(record) {
			continue
		}
		line, _ := reader.FieldPos(0)
		rows++
		if rows > maxImportRows {
			return nil, nil, invalid("file has more than %d rows", maxImportRows)
		}

		q, err := layout.parseRow(examID, record)
		if err != nil {
			rowErrors = append(rowErrors, models.ImportRowError{Line: line, Error: err.Error()})
			continue
		}
		questions = append(questions, q)
	}
	return questions, rowErrors, nil
}

func blank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ImportCSV parses the file and inserts every valid row in a single
// transaction.
func (s *Service) ImportCSV(ctx context.Context, examID int64, r io.Reader) (*models.ImportResult, error) {
	if _, err := s.store.GetExam(ctx, examID); err != nil {
		return nil, err
	}

	questions, rowErrors, err := ParseQuestionsCSV(examID, r)
	if err != nil {
		return nil, err
	}

	if len(questions) > 0 {
		if err := s.store.InsertQuestions(ctx, questions); err != nil {
			return nil, err
		}
		s.invalidate(ctx, examID)
	}

	log.Printf("[exams] imported %d questions into exam %d (%d rows skipped)",
		len(questions), examID, len(rowErrors))
	return &models.ImportResult{
		Imported: len(questions),
		Skipped:  len(rowErrors),
		Errors:   rowErrors,
	}, nil
}

// TemplateCSV returns a sample import file.
func TemplateCSV() []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.WriteAll([][]string{
		{colQuestion, "option_1", "option_2", "option_3", "option_4", colCorrect, colDifficulty, colExplanation, colImageURL},
		{"Which planet is closest to the sun?", "Venus", "Mercury", "Mars", "Earth", "2", "easy", "Mercury orbits at about 0.39 AU.", ""},
		{"Which of these are prime numbers?", "2", "4", "5", "9", "1;3", "medium", "4 and 9 are squares.", ""},
	})
	return buf.Bytes()
}

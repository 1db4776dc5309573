package examstate

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrAlreadyStarted = errors.New("attempt already started")
	ErrNotStarted     = errors.New("attempt not started")
	ErrFinished       = errors.New("attempt already finished")
	ErrNotFinished    = errors.New("attempt not finished")
	ErrOutOfRange     = errors.New("question number out of range")
	ErrNotNavigable   = errors.New("question not in the active navigation set")
	ErrInvalidOption  = errors.New("invalid option index")
)

// State is the in-memory record of one attempt. It is mutated only
// through the transition methods below; each successful transition
// bumps Version.
type State struct {
	Total           int            `json:"total"`
	Current         int            `json:"current"`
	Answers         map[int]string `json:"answers"`
	Flagged         map[int]bool   `json:"flagged"`
	StartTime       *time.Time     `json:"start_time,omitempty"`
	EndTime         *time.Time     `json:"end_time,omitempty"`
	Started         bool           `json:"started"`
	Finished        bool           `json:"finished"`
	ReviewMode      bool           `json:"review_mode"`
	ShowOnlyFlagged bool           `json:"show_only_flagged"`
	Version         int64          `json:"version"`
}

// NewState returns a not-started state for an attempt of total questions.
func NewState(total int) *State {
	return &State{
		Total:   total,
		Current: 1,
		Answers: map[int]string{},
		Flagged: map[int]bool{},
	}
}

// InProgress reports started and not yet finished.
func (s *State) InProgress() bool {
	return s.Started && !s.Finished
}

func (s *State) Start(now time.Time) error {
	if s.Started {
		return ErrAlreadyStarted
	}
	t := now
	s.StartTime = &t
	s.Started = true
	s.Current = 1
	s.Version++
	return nil
}

// SelectAnswer records option for question n. Single-answer questions
// overwrite; multi-answer questions toggle option in the stored set.
func (s *State) SelectAnswer(n, option int, multi bool) error {
	if err := s.requireInProgress(); err != nil {
		return err
	}
	if err := s.checkRange(n); err != nil {
		return err
	}
	if option < 0 {
		return ErrInvalidOption
	}

	if !multi {
		s.Answers[n] = strconv.Itoa(option)
		s.Version++
		return nil
	}

	selected := ParseSelection(s.Answers[n])
	idx := indexOf(selected, option)
	if idx >= 0 {
		selected = append(selected[:idx], selected[idx+1:]...)
	} else {
		selected = append(selected, option)
	}

	if len(selected) == 0 {
		delete(s.Answers, n)
	} else {
		s.Answers[n] = EncodeSelection(selected)
	}
	s.Version++
	return nil
}

func (s *State) ToggleFlag(n int) error {
	if err := s.requireInProgress(); err != nil {
		return err
	}
	if err := s.checkRange(n); err != nil {
		return err
	}
	if s.Flagged[n] {
		delete(s.Flagged, n)
	} else {
		s.Flagged[n] = true
	}
	s.Version++
	return nil
}

func (s *State) SetShowOnlyFlagged(on bool) error {
	if !s.InProgress() && !s.ReviewMode {
		return ErrNotStarted
	}
	if s.ShowOnlyFlagged == on {
		return nil
	}
	s.ShowOnlyFlagged = on
	s.Version++
	return nil
}

// Navigate moves the pointer. The target must be a member of the
// active navigation set (all questions, or the flagged ones when the
// filter is on).
func (s *State) Navigate(n int) error {
	if !s.InProgress() && !s.ReviewMode {
		if s.Finished {
			return ErrFinished
		}
		return ErrNotStarted
	}
	if err := s.checkRange(n); err != nil {
		return err
	}
	if Position(s.NavigationSet(), n) < 0 {
		return ErrNotNavigable
	}
	s.Current = n
	s.Version++
	return nil
}

func (s *State) Finish(now time.Time) error {
	if err := s.requireInProgress(); err != nil {
		return err
	}
	t := now
	s.EndTime = &t
	s.Finished = true
	s.Version++
	return nil
}

func (s *State) StartReview() error {
	if !s.Finished {
		return ErrNotFinished
	}
	s.ReviewMode = true
	s.Current = 1
	s.ShowOnlyFlagged = false
	s.Version++
	return nil
}

func (s *State) ExitReview() error {
	if !s.Finished {
		return ErrNotFinished
	}
	s.ReviewMode = false
	s.ShowOnlyFlagged = false
	s.Version++
	return nil
}

// Reset returns every field to its initial value. Total is kept and
// Version keeps counting so concurrent writers still see a change.
func (s *State) Reset() {
	version := s.Version + 1
	*s = *NewState(s.Total)
	s.Version = version
}

// FlaggedList returns flagged question numbers in ascending order.
func (s *State) FlaggedList() []int {
	out := make([]int, 0, len(s.Flagged))
	for n, on := range s.Flagged {
		if on {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// NavigationSet is the list the Previous/Next controls step through.
func (s *State) NavigationSet() []int {
	return NavigationSet(s.Total, s.ShowOnlyFlagged, s.FlaggedList())
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := *s
	c.Answers = make(map[int]string, len(s.Answers))
	for k, v := range s.Answers {
		c.Answers[k] = v
	}
	c.Flagged = make(map[int]bool, len(s.Flagged))
	for k, v := range s.Flagged {
		c.Flagged[k] = v
	}
	if s.StartTime != nil {
		t := *s.StartTime
		c.StartTime = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	return &c
}

func (s *State) requireInProgress() error {
	if !s.Started {
		return ErrNotStarted
	}
	if s.Finished {
		return ErrFinished
	}
	return nil
}

func (s *State) checkRange(n int) error {
	if n < 1 || n > s.Total {
		return fmt.Errorf("%w: %d not in 1..%d", ErrOutOfRange, n, s.Total)
	}
	return nil
}

// ParseSelection decodes a raw stored answer ("2" or "0,3") into
// ascending option indices. Malformed parts are skipped.
func ParseSelection(raw string) []int {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	seen := map[int]bool{}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || v < 0 || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// EncodeSelection joins indices in ascending order with commas.
func EncodeSelection(indices []int) string {
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func indexOf(xs []int, v int) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}

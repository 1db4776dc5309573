package examstate

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func startedState(t *testing.T, total int) *State {
	t.Helper()
	s := NewState(total)
	if err := s.Start(t0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func TestStart_OnlyOnce(t *testing.T) {
	s := NewState(5)
	if s.Started || s.InProgress() {
		t.Fatalf("new state should not be started")
	}
	if err := s.Start(t0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Started || s.StartTime == nil || !s.StartTime.Equal(t0) {
		t.Errorf("Start did not record start time: %+v", s)
	}
	if err := s.Start(t0.Add(time.Minute)); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start error = %v, want ErrAlreadyStarted", err)
	}
}

func TestSelectAnswer_Single(t *testing.T) {
	s := startedState(t, 3)
	s.SelectAnswer(1, 2, false)
	s.SelectAnswer(1, 0, false)
	if got := s.Answers[1]; got != "0" {
		t.Errorf("Answers[1] = %q, want %q", got, "0")
	}
}

func TestSelectAnswer_MultiToggles(t *testing.T) {
	s := startedState(t, 3)
	steps := []struct {
		option int
		want   string
	}{
		{2, "2"},
		{0, "0,2"},
		{4, "0,2,4"},
		{2, "0,4"},
		{0, "4"},
		{4, ""},
	}

	for _, st := range steps {
		if err := s.SelectAnswer(2, st.option, true); err != nil {
			t.Fatalf("SelectAnswer(2, %d): %v", st.option, err)
		}
		if got := s.Answers[2]; got != st.want {
			t.Errorf("after toggling %d: Answers[2] = %q, want %q", st.option, got, st.want)
		}
	}
	if _, ok := s.Answers[2]; ok {
		t.Errorf("empty selection should remove the entry")
	}
}

func TestSelectAnswer_Guards(t *testing.T) {
	s := NewState(3)
	if err := s.SelectAnswer(1, 0, false); !errors.Is(err, ErrNotStarted) {
		t.Errorf("before start: err = %v, want ErrNotStarted", err)
	}

	s.Start(t0)
	if err := s.SelectAnswer(4, 0, false); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("question 4 of 3: err = %v, want ErrOutOfRange", err)
	}
	if err := s.SelectAnswer(1, -1, false); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("option -1: err = %v, want ErrInvalidOption", err)
	}

	s.Finish(t0.Add(time.Minute))
	if err := s.SelectAnswer(1, 0, false); !errors.Is(err, ErrFinished) {
		t.Errorf("after finish: err = %v, want ErrFinished", err)
	}
	if err := s.ToggleFlag(1); !errors.Is(err, ErrFinished) {
		t.Errorf("flag after finish: err = %v, want ErrFinished", err)
	}
}

func TestToggleFlag(t *testing.T) {
	s := startedState(t, 5)
	s.ToggleFlag(4)
	s.ToggleFlag(2)
	s.ToggleFlag(5)
	s.ToggleFlag(5)

	if got := s.FlaggedList(); !reflect.DeepEqual(got, []int{2, 4}) {
		t.Errorf("FlaggedList() = %v, want [2 4]", got)
	}
}

func TestNavigate_RespectsActiveSet(t *testing.T) {
	s := startedState(t, 8)
	if err := s.Navigate(7); err != nil {
		t.Fatalf("Navigate(7): %v", err)
	}
	if err := s.Navigate(9); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Navigate(9) err = %v, want ErrOutOfRange", err)
	}

	s.ToggleFlag(4)
	s.ToggleFlag(2)
	s.SetShowOnlyFlagged(true)

	if err := s.Navigate(3); !errors.Is(err, ErrNotNavigable) {
		t.Errorf("Navigate(3) with flagged filter err = %v, want ErrNotNavigable", err)
	}
	if err := s.Navigate(4); err != nil {
		t.Errorf("Navigate(4): %v", err)
	}
	if s.Current != 4 {
		t.Errorf("Current = %d, want 4", s.Current)
	}
}

func TestReviewLifecycle(t *testing.T) {
	s := startedState(t, 4)
	if err := s.StartReview(); !errors.Is(err, ErrNotFinished) {
		t.Errorf("StartReview before finish err = %v, want ErrNotFinished", err)
	}

	s.ToggleFlag(3)
	s.SetShowOnlyFlagged(true)
	s.Navigate(3)

	end := t0.Add(90 * time.Second)
	if err := s.Finish(end); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := s.Finish(end); !errors.Is(err, ErrFinished) {
		t.Errorf("second Finish err = %v, want ErrFinished", err)
	}
	if err := s.Navigate(1); !errors.Is(err, ErrFinished) {
		t.Errorf("Navigate after finish outside review err = %v, want ErrFinished", err)
	}

	if err := s.StartReview(); err != nil {
		t.Fatalf("StartReview: %v", err)
	}
	if !s.ReviewMode || s.Current != 1 || s.ShowOnlyFlagged {
		t.Errorf("review should start at 1 with the filter cleared: %+v", s)
	}
	if err := s.Navigate(4); err != nil {
		t.Errorf("Navigate in review: %v", err)
	}

	s.ExitReview()
	if s.ReviewMode || !s.Finished {
		t.Errorf("ExitReview should return to finished results: %+v", s)
	}
}

func TestReset_MatchesFreshState(t *testing.T) {
	s := startedState(t, 6)
	s.SelectAnswer(1, 3, false)
	s.ToggleFlag(2)
	s.Navigate(5)
	s.Finish(t0.Add(time.Minute))
	s.StartReview()

	s.Reset()
	if err := s.Start(t0); err != nil {
		t.Fatalf("Start after Reset: %v", err)
	}

	fresh := NewState(6)
	fresh.Start(t0)

	if len(s.Answers) != 0 || len(s.Flagged) != 0 || s.Current != 1 {
		t.Errorf("reset state not empty: %+v", s)
	}
	if s.Finished || s.ReviewMode || s.ShowOnlyFlagged || s.EndTime != nil {
		t.Errorf("reset state kept flags: %+v", s)
	}
	s.Version, fresh.Version = 0, 0
	if !reflect.DeepEqual(s, fresh) {
		t.Errorf("Reset+Start = %+v, want %+v", s, fresh)
	}
}

func TestVersionAdvancesOnTransitions(t *testing.T) {
	s := NewState(3)
	v := s.Version
	s.Start(t0)
	s.SelectAnswer(1, 1, false)
	s.ToggleFlag(1)
	if s.Version != v+3 {
		t.Errorf("Version = %d, want %d", s.Version, v+3)
	}

	before := s.Version
	s.SetShowOnlyFlagged(false) // no change
	if s.Version != before {
		t.Errorf("no-op SetShowOnlyFlagged bumped version")
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := startedState(t, 3)
	s.SelectAnswer(1, 1, false)
	c := s.Clone()
	c.Answers[1] = "2"
	c.Flagged[3] = true
	*c.StartTime = t0.Add(time.Hour)

	if s.Answers[1] != "1" || s.Flagged[3] || !s.StartTime.Equal(t0) {
		t.Errorf("Clone shares state with original: %+v", s)
	}
}

func TestParseAndEncodeSelection(t *testing.T) {
	tests := []struct {
		raw  string
		want []int
		enc  string
	}{
		{"", nil, ""},
		{"3", []int{3}, "3"},
		{"2,0", []int{0, 2}, "0,2"},
		{" 4 , 1,1,x,-2", []int{1, 4}, "1,4"},
	}

	for _, tt := range tests {
		got := ParseSelection(tt.raw)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseSelection(%q) = %v, want %v", tt.raw, got, tt.want)
		}
		if enc := EncodeSelection(got); enc != tt.enc {
			t.Errorf("EncodeSelection(%v) = %q, want %q", got, enc, tt.enc)
		}
	}
}

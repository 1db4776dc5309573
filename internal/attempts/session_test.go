package attempts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/examprep/backend/internal/examstate"
	"github.com/examprep/backend/internal/models"
)

func newTestSession(id string) *Session {
	st := examstate.NewState(3)
	st.Start(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return &Session{
		ID:        id,
		UserID:    10,
		ExamID:    1,
		Config:    models.AttemptConfig{Mode: models.ModePractice},
		Questions: testPool(3),
		State:     st,
		UpdatedAt: *st.StartTime,
	}
}

func TestMemorySessionStoreCompareAndSwap(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	sess := newTestSession("a")
	if err := store.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}

	tab1, _ := store.Get(ctx, "a")
	tab2, _ := store.Get(ctx, "a")

	v := tab1.State.Version
	tab1.State.ToggleFlag(1)
	if err := store.Update(ctx, tab1, v); err != nil {
		t.Fatalf("first update: %v", err)
	}

	tab2.State.ToggleFlag(2)
	if err := store.Update(ctx, tab2, v); !errors.Is(err, ErrStale) {
		t.Errorf("second update err = %v, want ErrStale", err)
	}

	got, _ := store.Get(ctx, "a")
	if !got.State.Flagged[1] || got.State.Flagged[2] {
		t.Errorf("flags = %v, want only the first writer's change", got.State.Flagged)
	}

	if err := store.Update(ctx, newTestSession("missing"), 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing err = %v, want ErrNotFound", err)
	}
}

func TestMemorySessionStoreIsolatesCopies(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	sess := newTestSession("a")
	store.Create(ctx, sess)

	sess.State.Answers[1] = "2"
	got, _ := store.Get(ctx, "a")
	if _, ok := got.State.Answers[1]; ok {
		t.Error("store must not alias the caller's state")
	}
}

func TestSessionJSONKeepsState(t *testing.T) {
	sess := newTestSession("a")
	sess.State.SelectAnswer(2, 0, true)
	sess.State.SelectAnswer(2, 2, true)
	sess.State.ToggleFlag(3)
	deadline := sess.State.StartTime.Add(time.Hour)
	sess.Deadline = &deadline

	raw, err := json.Marshal(sess)
	if err != nil {
		t.Fatal(err)
	}
	var got Session
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.State.Answers[2] != "0,2" || !got.State.Flagged[3] || got.State.Version != sess.State.Version {
		t.Errorf("decoded state = %+v", got.State)
	}
	if got.Deadline == nil || !got.Deadline.Equal(deadline) {
		t.Errorf("deadline = %v", got.Deadline)
	}
}

func TestSessionExpired(t *testing.T) {
	sess := newTestSession("a")
	now := *sess.State.StartTime
	if sess.Expired(now.Add(time.Hour)) {
		t.Error("untimed session cannot expire")
	}
	deadline := now.Add(time.Minute)
	sess.Deadline = &deadline
	if sess.Expired(now) {
		t.Error("expired before deadline")
	}
	if !sess.Expired(deadline) {
		t.Error("not expired at deadline")
	}
	sess.State.Finish(deadline)
	if sess.Expired(deadline.Add(time.Hour)) {
		t.Error("finished sessions do not expire")
	}
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/examprep/backend/internal/attempts"
	"github.com/examprep/backend/internal/examstate"
)

type stubGetter struct {
	val string
	err error
}

func (g stubGetter) Get(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult(g.val, g.err)
}

func TestKeys(t *testing.T) {
	if got := poolKey(42); got != "exam:pool:42" {
		t.Errorf("poolKey(42) = %q", got)
	}
	if got := sessionKey("abc"); got != "attempt:session:abc" {
		t.Errorf("sessionKey(abc) = %q", got)
	}
}

func TestSessionGet(t *testing.T) {
	st := examstate.NewState(2)
	st.Start(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	st.ToggleFlag(1)
	raw, err := json.Marshal(&attempts.Session{ID: "s1", UserID: 7, ExamID: 3, State: st})
	if err != nil {
		t.Fatal(err)
	}
	noState, _ := json.Marshal(&attempts.Session{ID: "s2"})

	store := &SessionStore{}
	ctx := context.Background()

	tests := []struct {
		name    string
		getter  stubGetter
		wantErr error
		anyErr  bool
	}{
		{"found", stubGetter{val: string(raw)}, nil, false},
		{"missing key", stubGetter{err: redis.Nil}, attempts.ErrNotFound, true},
		{"redis down", stubGetter{err: errors.New("connection refused")}, nil, true},
		{"corrupt value", stubGetter{val: "{"}, nil, true},
		{"no state", stubGetter{val: string(noState)}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := store.get(ctx, tt.getter, "s1")
			if tt.anyErr {
				if err == nil {
					t.Fatalf("get() error = nil, want error")
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("get() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("get() error = %v", err)
			}
			if sess.UserID != 7 || sess.ExamID != 3 {
				t.Errorf("get() = user %d exam %d, want 7 3", sess.UserID, sess.ExamID)
			}
			if !sess.State.Flagged[1] {
				t.Errorf("flag on question 1 lost in round trip")
			}
		})
	}
}

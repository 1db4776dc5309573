package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/examprep/backend/internal/models"
)

type fakeUsers map[int64]models.User

func (f fakeUsers) GetUser(_ context.Context, id int64) (*models.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &u, nil
}

func okHandler(t *testing.T, wantID int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserID(r.Context())
		if !ok || id != wantID {
			t.Errorf("UserID in context = %d (%v), want %d", id, ok, wantID)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens([]byte("secret"), time.Hour)
	tok, err := tokens.Generate(42, models.RoleAdmin)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	id, role, err := tokens.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id != 42 || role != models.RoleAdmin {
		t.Errorf("Parse = (%d, %q), want (42, admin)", id, role)
	}

	other := NewTokens([]byte("other"), time.Hour)
	if _, _, err := other.Parse(tok); err == nil {
		t.Errorf("Parse with wrong secret succeeded")
	}

	expired := NewTokens([]byte("secret"), -time.Minute)
	old, _ := expired.Generate(1, models.RoleCandidate)
	if _, _, err := tokens.Parse(old); err == nil {
		t.Errorf("Parse of expired token succeeded")
	}
}

func TestAuthMiddleware(t *testing.T) {
	tokens := NewTokens([]byte("secret"), time.Hour)
	m := New(tokens, fakeUsers{})
	tok, _ := tokens.Generate(7, models.RoleCandidate)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"valid", "Bearer " + tok, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			m.AuthMiddleware(okHandler(t, 7)).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireApproved(t *testing.T) {
	users := fakeUsers{
		1: {ID: 1, Role: models.RoleCandidate, Status: models.StatusPending},
		2: {ID: 2, Role: models.RoleCandidate, Status: models.StatusApproved},
		3: {ID: 3, Role: models.RoleAdmin, Status: models.StatusPending},
	}
	m := New(NewTokens([]byte("s"), time.Hour), users)

	tests := []struct {
		id   int64
		want int
	}{
		{1, http.StatusForbidden},
		{2, http.StatusNoContent},
		{3, http.StatusNoContent},
		{9, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithUser(req.Context(), tt.id, models.RoleCandidate))
		rec := httptest.NewRecorder()
		m.RequireApproved(okHandler(t, tt.id)).ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("user %d: status = %d, want %d", tt.id, rec.Code, tt.want)
		}
	}
}

func TestRequireAdmin(t *testing.T) {
	m := New(NewTokens([]byte("s"), time.Hour), fakeUsers{})

	for _, tt := range []struct {
		role models.Role
		want int
	}{
		{models.RoleCandidate, http.StatusForbidden},
		{models.RoleAdmin, http.StatusNoContent},
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithUser(req.Context(), 5, tt.role))
		rec := httptest.NewRecorder()
		m.RequireAdmin(okHandler(t, 5)).ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("role %s: status = %d, want %d", tt.role, rec.Code, tt.want)
		}
	}
}

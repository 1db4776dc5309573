package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/examprep/backend/internal/middleware"
	"github.com/examprep/backend/internal/models"
	"github.com/gorilla/mux"
)

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[int64]*models.User{}}
}

func (m *memUsers) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	c := *u
	m.byID[u.ID] = &c
	return nil
}

func (m *memUsers) GetUser(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memUsers) ListUsers(_ context.Context, status *models.UserStatus, limit, offset int) ([]models.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for id := int64(1); id <= m.nextID; id++ {
		u, ok := m.byID[id]
		if !ok || (status != nil && u.Status != *status) {
			continue
		}
		out = append(out, *u)
	}
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memUsers) UpdateStatus(_ context.Context, id int64, status models.UserStatus) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.Status = status
	c := *u
	return &c, nil
}

func (m *memUsers) UpdateRole(_ context.Context, id int64, role models.Role) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.Role = role
	c := *u
	return &c, nil
}

func (m *memUsers) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return ErrUserNotFound
	}
	delete(m.byID, id)
	return nil
}

type recordingNotifier struct {
	approved []string
	rejected []string
}

func (n *recordingNotifier) SendApprovalEmail(_ context.Context, to, _ string) error {
	n.approved = append(n.approved, to)
	return nil
}

func (n *recordingNotifier) SendRejectionEmail(_ context.Context, to, _ string) error {
	n.rejected = append(n.rejected, to)
	return nil
}

func newTestHandler() (*Handler, *memUsers, *recordingNotifier) {
	users := newMemUsers()
	notifier := &recordingNotifier{}
	h := NewHandler(users, middleware.NewTokens([]byte("test"), time.Hour), notifier)
	return h, users, notifier
}

func doJSON(t *testing.T, handler http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestRegisterCreatesPendingCandidate(t *testing.T) {
	h, users, _ := newTestHandler()

	rec := doJSON(t, h.Register, models.RegisterRequest{Email: " Sam@Example.com ", Name: "Sam Doe", Password: "longenough"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var resp models.AuthResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Token == "" {
		t.Errorf("empty token")
	}
	if resp.User.Email != "sam@example.com" || resp.User.Status != models.StatusPending || resp.User.Role != models.RoleCandidate {
		t.Errorf("user = %+v, want normalized pending candidate", resp.User)
	}

	stored, _ := users.GetUser(context.Background(), resp.User.ID)
	if stored.Password == "longenough" {
		t.Errorf("password stored in plain text")
	}

	rec = doJSON(t, h.Register, models.RegisterRequest{Email: "sam@example.com", Name: "Sam", Password: "longenough"})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", rec.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	h, _, _ := newTestHandler()

	tests := []models.RegisterRequest{
		{Email: "", Name: "A", Password: "longenough"},
		{Email: "a@b.c", Name: " ", Password: "longenough"},
		{Email: "a@b.c", Name: "A", Password: "short"},
	}
	for _, req := range tests {
		if rec := doJSON(t, h.Register, req); rec.Code != http.StatusBadRequest {
			t.Errorf("Register(%+v) status = %d, want 400", req, rec.Code)
		}
	}
}

func TestLogin(t *testing.T) {
	h, users, _ := newTestHandler()
	doJSON(t, h.Register, models.RegisterRequest{Email: "kim@example.com", Name: "Kim", Password: "password1"})

	if rec := doJSON(t, h.Login, models.LoginRequest{Email: "KIM@example.com", Password: "password1"}); rec.Code != http.StatusOK {
		t.Errorf("valid login status = %d, want 200", rec.Code)
	}
	if rec := doJSON(t, h.Login, models.LoginRequest{Email: "kim@example.com", Password: "wrong-pass"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", rec.Code)
	}
	if rec := doJSON(t, h.Login, models.LoginRequest{Email: "nobody@example.com", Password: "password1"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown email status = %d, want 401", rec.Code)
	}

	users.UpdateStatus(context.Background(), 1, models.StatusRejected)
	if rec := doJSON(t, h.Login, models.LoginRequest{Email: "kim@example.com", Password: "password1"}); rec.Code != http.StatusForbidden {
		t.Errorf("rejected login status = %d, want 403", rec.Code)
	}
}

func TestApproveAndRejectNotify(t *testing.T) {
	h, users, notifier := newTestHandler()
	u := models.User{Email: "lee@example.com", Name: "Lee", Status: models.StatusPending, Role: models.RoleCandidate}
	users.CreateUser(context.Background(), &u)

	r := mux.NewRouter()
	h.RegisterAdminRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/users/1/approve", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d, want 200", rec.Code)
	}
	got, _ := users.GetUser(context.Background(), 1)
	if got.Status != models.StatusApproved {
		t.Errorf("status = %s, want approved", got.Status)
	}
	if len(notifier.approved) != 1 || notifier.approved[0] != "lee@example.com" {
		t.Errorf("approval emails = %v", notifier.approved)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users/1/reject", nil))
	if len(notifier.rejected) != 1 {
		t.Errorf("rejection emails = %v", notifier.rejected)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users/99/approve", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("approve unknown status = %d, want 404", rec.Code)
	}
}

func TestAdminCannotDemoteOrDeleteSelf(t *testing.T) {
	h, users, _ := newTestHandler()
	admin := models.User{Email: "root@example.com", Name: "Root", Role: models.RoleAdmin, Status: models.StatusApproved}
	users.CreateUser(context.Background(), &admin)

	r := mux.NewRouter()
	h.RegisterAdminRoutes(r)

	body, _ := json.Marshal(models.RoleRequest{Role: models.RoleCandidate})
	req := httptest.NewRequest(http.MethodPut, "/users/1/role", bytes.NewReader(body))
	req = req.WithContext(middleware.WithUser(req.Context(), 1, models.RoleAdmin))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("self demote status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/users/1", nil)
	req = req.WithContext(middleware.WithUser(req.Context(), 1, models.RoleAdmin))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("self delete status = %d, want 400", rec.Code)
	}
}

func TestBootstrapAdmin(t *testing.T) {
	users := newMemUsers()
	ctx := context.Background()

	if err := BootstrapAdmin(ctx, users, "", ""); err != nil {
		t.Fatalf("BootstrapAdmin with empty config: %v", err)
	}
	if _, total, _ := users.ListUsers(ctx, nil, 10, 0); total != 0 {
		t.Fatalf("empty config created %d users", total)
	}

	existing := models.User{Email: "ops@example.com", Name: "Ops", Role: models.RoleCandidate, Status: models.StatusPending}
	users.CreateUser(ctx, &existing)

	if err := BootstrapAdmin(ctx, users, "ops@example.com", "whatever1"); err != nil {
		t.Fatalf("BootstrapAdmin: %v", err)
	}
	got, _ := users.GetUser(ctx, existing.ID)
	if !got.IsAdmin() || !got.IsApproved() {
		t.Errorf("existing user not promoted: %+v", got)
	}

	if err := BootstrapAdmin(ctx, users, "new@example.com", "whatever1"); err != nil {
		t.Fatalf("BootstrapAdmin new: %v", err)
	}
	created, err := users.GetUserByEmail(ctx, "new@example.com")
	if err != nil || !created.IsAdmin() {
		t.Errorf("bootstrap admin not created: %+v, %v", created, err)
	}
}

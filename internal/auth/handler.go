package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/examprep/backend/internal/middleware"
	"github.com/examprep/backend/internal/models"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

// Notifier sends account e-mails. Failures are logged, never surfaced.
type Notifier interface {
	SendApprovalEmail(ctx context.Context, toEmail, toName string) error
	SendRejectionEmail(ctx context.Context, toEmail, toName string) error
}

type Handler struct {
	users    UserStore
	tokens   *middleware.Tokens
	notifier Notifier
}

func NewHandler(users UserStore, tokens *middleware.Tokens, notifier Notifier) *Handler {
	return &Handler{users: users, tokens: tokens, notifier: notifier}
}

// RegisterAdminRoutes registers user administration on the admin subrouter.
func (h *Handler) RegisterAdminRoutes(admin *mux.Router) {
	admin.HandleFunc("/users", h.ListUsers).Methods("GET")
	admin.HandleFunc("/users/{id}/approve", h.ApproveUser).Methods("POST")
	admin.HandleFunc("/users/{id}/reject", h.RejectUser).Methods("POST")
	admin.HandleFunc("/users/{id}/role", h.SetRole).Methods("PUT")
	admin.HandleFunc("/users/{id}", h.DeleteUser).Methods("DELETE")
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	if req.Email == "" || req.Name == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Email, name, and password are required"})
		return
	}

	if len(req.Password) < 8 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Password must be at least 8 characters"})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
		return
	}

	user := models.User{
		Email:    req.Email,
		Name:     req.Name,
		Password: string(hashedPassword),
		Role:     models.RoleCandidate,
		Status:   models.StatusPending,
	}
	if err := h.users.CreateUser(r.Context(), &user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: "An account with this email already exists"})
			return
		}
		log.Printf("[handler] Register error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to create account"})
		return
	}

	token, err := h.tokens.Generate(user.ID, user.Role)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate token"})
		return
	}

	writeJSON(w, http.StatusCreated, models.AuthResponse{Token: token, User: user})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Email and password are required"})
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, ErrUserNotFound) {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password"})
		return
	}
	if err != nil {
		log.Printf("[handler] Login error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password"})
		return
	}

	if user.Status == models.StatusRejected {
		writeJSON(w, http.StatusForbidden, models.ErrorResponse{Error: "This account has been rejected"})
		return
	}

	token, err := h.tokens.Generate(user.ID, user.Role)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate token"})
		return
	}

	writeJSON(w, http.StatusOK, models.AuthResponse{Token: token, User: *user})
}

func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "User not found"})
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// ── Admin Handlers ──────────────────────────────────────

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var status *models.UserStatus
	if s := query.Get("status"); s != "" {
		us := models.UserStatus(s)
		status = &us
	}

	page := intQueryParam(query, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := intQueryParam(query, "page_size", 20)
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	users, total, err := h.users.ListUsers(r.Context(), status, pageSize, (page-1)*pageSize)
	if err != nil {
		log.Printf("[handler] ListUsers error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to list users"})
		return
	}
	if users == nil {
		users = []models.User{}
	}

	writeJSON(w, http.StatusOK, models.UserListResponse{Users: users, Total: total, Page: page, PageSize: pageSize})
}

func (h *Handler) ApproveUser(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, models.StatusApproved)
}

func (h *Handler) RejectUser(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, models.StatusRejected)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, status models.UserStatus) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	user, err := h.users.UpdateStatus(r.Context(), id, status)
	if errors.Is(err, ErrUserNotFound) {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "User not found"})
		return
	}
	if err != nil {
		log.Printf("[handler] set status %s for user %d: %v", status, id, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to update user"})
		return
	}

	if h.notifier != nil {
		var mailErr error
		if status == models.StatusApproved {
			mailErr = h.notifier.SendApprovalEmail(r.Context(), user.Email, user.Name)
		} else {
			mailErr = h.notifier.SendRejectionEmail(r.Context(), user.Email, user.Name)
		}
		if mailErr != nil {
			log.Printf("WARN: failed to send %s email to user %d: %v", status, id, mailErr)
		}
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) SetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req models.RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.Role != models.RoleAdmin && req.Role != models.RoleCandidate {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "role must be 'admin' or 'candidate'"})
		return
	}

	if self, _ := middleware.UserID(r.Context()); self == id && req.Role != models.RoleAdmin {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "You cannot remove your own admin role"})
		return
	}

	user, err := h.users.UpdateRole(r.Context(), id, req.Role)
	if errors.Is(err, ErrUserNotFound) {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "User not found"})
		return
	}
	if err != nil {
		log.Printf("[handler] SetRole error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to update role"})
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if self, _ := middleware.UserID(r.Context()); self == id {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "You cannot delete your own account"})
		return
	}

	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "User not found"})
			return
		}
		log.Printf("[handler] DeleteUser error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to delete user"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// BootstrapAdmin makes sure the configured admin account exists and is
// an approved admin.
func BootstrapAdmin(ctx context.Context, users UserStore, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	existing, err := users.GetUserByEmail(ctx, email)
	if err == nil {
		if existing.Role != models.RoleAdmin {
			if _, err := users.UpdateRole(ctx, existing.ID, models.RoleAdmin); err != nil {
				return err
			}
		}
		if existing.Status != models.StatusApproved {
			if _, err := users.UpdateStatus(ctx, existing.ID, models.StatusApproved); err != nil {
				return err
			}
		}
		return nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := models.User{
		Email:    email,
		Name:     "Administrator",
		Password: string(hash),
		Role:     models.RoleAdmin,
		Status:   models.StatusApproved,
	}
	if err := users.CreateUser(ctx, &admin); err != nil {
		return err
	}
	log.Printf("[auth] bootstrap admin %s created", email)
	return nil
}

func pathID(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[key], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid ID"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func intQueryParam(query url.Values, key string, defaultVal int) int {
	s := query.Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}

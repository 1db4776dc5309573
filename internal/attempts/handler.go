package attempts

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/examprep/backend/internal/exams"
	"github.com/examprep/backend/internal/examstate"
	"github.com/examprep/backend/internal/middleware"
	"github.com/examprep/backend/internal/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the attempt routes on the approved-user
// subrouter.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/exams/{id:[0-9]+}/attempts", h.StartAttempt).Methods("POST")
	r.HandleFunc("/attempts", h.ListAttempts).Methods("GET")
	r.HandleFunc("/attempts/{id}", h.GetAttempt).Methods("GET")
	r.HandleFunc("/attempts/{id}", h.DiscardAttempt).Methods("DELETE")
	r.HandleFunc("/attempts/{id}/record", h.GetRecord).Methods("GET")
	r.HandleFunc("/attempts/{id}/question", h.GetQuestion).Methods("GET")
	r.HandleFunc("/attempts/{id}/answers/{n:[0-9]+}", h.Answer).Methods("PUT")
	r.HandleFunc("/attempts/{id}/flags/{n:[0-9]+}", h.ToggleFlag).Methods("POST")
	r.HandleFunc("/attempts/{id}/navigate", h.Navigate).Methods("POST")
	r.HandleFunc("/attempts/{id}/filter", h.SetFilter).Methods("PUT")
	r.HandleFunc("/attempts/{id}/submit", h.Submit).Methods("POST")
	r.HandleFunc("/attempts/{id}/review", h.StartReview).Methods("POST")
	r.HandleFunc("/attempts/{id}/review", h.ExitReview).Methods("DELETE")
	r.HandleFunc("/attempts/{id}/reset", h.Reset).Methods("POST")
	r.HandleFunc("/attempts/{id}/result", h.GetResult).Methods("GET")
}

// RegisterAdminRoutes registers attempt reporting on the admin subrouter.
func (h *Handler) RegisterAdminRoutes(admin *mux.Router) {
	admin.HandleFunc("/exams/{id:[0-9]+}/attempts", h.ListExamAttempts).Methods("GET")
}

func (h *Handler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	examID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid exam ID"})
		return
	}
	var req models.StartAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	userID, _ := middleware.UserID(r.Context())
	view, err := h.service.Start(r.Context(), userID, middleware.IsAdmin(r.Context()), examID, req)
	if err != nil {
		writeServiceError(w, err, "start attempt")
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	id, ok := attemptID(w, r)
	if !ok {
		return
	}
	userID, _ := middleware.UserID(r.Context())
	view, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, err, "get attempt")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) DiscardAttempt(w http.ResponseWriter, r *http.Request) {
	id, ok := attemptID(w, r)
	if !ok {
		return
	}
	userID, _ := middleware.UserID(r.Context())
	if err := h.service.Discard(r.Context(), userID, id); err != nil {
		writeServiceError(w, err, "discard attempt")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := attemptID(w, r)
	if !ok {
		return
	}
	reveal, _ := strconv.ParseBool(r.URL.Query().Get("reveal"))
	userID, _ := middleware.UserID(r.Context())
	view, err := h.service.Question(r.Context(), userID, id, reveal)
	if err != nil {
		writeServiceError(w, err, "get question")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	id, ok := attemptID(w, r)
	if !ok {
		return
	}
	n, _ := strconv.Atoi(mux.Vars(r)["n"])
	var req models.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	userID, _ := middleware.UserID(r.Context())
	view, err := h.service.Answer(r.Context(), userID, id, n, req.Option)
	if err != nil {
		writeServiceError(w, err, "answer")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) ToggleFlag(w http.ResponseWriter, r *http.Request) {
	id, ok := attemptID(w, r)
	if !ok {
		return
	}
	n, _ := strconv.Atoi(mux.Vars(r)["n"])
	userID, _ := middleware.UserID(r.Context())
	view, err := h.service.ToggleFlag(r.Context(), userID, id, n)
	if err != nil {
		writeServiceError(w, err, "toggle flag")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	id, ok := attemptID(w, r)
	if !ok {
		return
	}
	var req models.NavigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	userID, _ := middleware.UserID(r.Context())
	view, err := h.service.Navigate(r.Context(), userID, id, req.Question)
	if err != nil {
		writeServiceError(w, err, "navigate")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) SetFilter(w http.ResponseWriter, r *http.Request) {
	id, ok := attemptID(w, r)
	if !ok {
		return
	}
	var req models.FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	userID, _ := middleware.UserID(r.Context())
	view, err := h.service.SetShowOnlyFlagged(r.Context(), userID, id, req.ShowOnlyFlagged)
	if err != nil {
		writeServiceError(w, err, "set filter")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := attemptID(w, r)
	if !ok {
		return
	}
	userID, _ := middleware.UserID(r.Context())
	result, err := h.service.Submit(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, err, "submit")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) StartReview(w http.ResponseWriter, r *http.Request) {
	id, ok := attemptID(w, r)
	if !ok {
		return
	}
	userID, _ := middleware.UserID(r.Context())
	view, err := h.service.StartReview(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, err, "start review")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) ExitReview(w http.ResponseWriter, r *http.Request) {
	id, ok := attemptID(w, r)
	if !ok {
		return
	}
	userID, _ := middleware.UserID(r.Context())
	view, err := h.service.ExitReview(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, err, "exit review")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	id, ok := attemptID(w, r)
	if !ok {
		return
	}
	userID, _ := middleware.UserID(r.Context())
	view, err := h.service.Reset(r.Context(), userID, middleware.IsAdmin(r.Context()), id)
	if err != nil {
		writeServiceError(w, err, "reset")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	id, ok := attemptID(w, r)
	if !ok {
		return
	}
	userID, _ := middleware.UserID(r.Context())
	result, err := h.service.Result(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, err, "get result")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ── History ─────────────────────────────────────────────

func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	page, pageSize := pagination(r.URL.Query())
	records, total, err := h.service.ListAttempts(r.Context(), userID, pageSize, (page-1)*pageSize)
	if err != nil {
		writeServiceError(w, err, "list attempts")
		return
	}
	writeJSON(w, http.StatusOK, models.AttemptListResponse{
		Attempts: records,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := attemptID(w, r)
	if !ok {
		return
	}
	userID, _ := middleware.UserID(r.Context())
	rec, err := h.service.GetRecord(r.Context(), userID, middleware.IsAdmin(r.Context()), id)
	if err != nil {
		writeServiceError(w, err, "get attempt record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ListExamAttempts(w http.ResponseWriter, r *http.Request) {
	examID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid exam ID"})
		return
	}
	page, pageSize := pagination(r.URL.Query())
	records, total, err := h.service.ListExamAttempts(r.Context(), examID, pageSize, (page-1)*pageSize)
	if err != nil {
		writeServiceError(w, err, "list exam attempts")
		return
	}
	writeJSON(w, http.StatusOK, models.AttemptListResponse{
		Attempts: records,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// ── Helpers ─────────────────────────────────────────────

func attemptID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid attempt ID"})
		return "", false
	}
	return id.String(), true
}

func pagination(query url.Values) (page, pageSize int) {
	page = intQueryParam(query, "page", 1)
	pageSize = intQueryParam(query, "page_size", 20)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// statusFor maps service and state errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, exams.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden), errors.Is(err, exams.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNoQuestions):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrStale),
		errors.Is(err, ErrSelectionLimit),
		errors.Is(err, examstate.ErrAlreadyStarted),
		errors.Is(err, examstate.ErrNotStarted),
		errors.Is(err, examstate.ErrFinished),
		errors.Is(err, examstate.ErrNotFinished),
		errors.Is(err, examstate.ErrNotNavigable):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidMode),
		errors.Is(err, ErrRevealNotAllowed),
		errors.Is(err, ErrInvalidCount),
		errors.Is(err, examstate.ErrOutOfRange),
		errors.Is(err, examstate.ErrInvalidOption):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, err error, op string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[handler] %s: %v", op, err)
		writeJSON(w, status, models.ErrorResponse{Error: "Internal server error"})
		return
	}
	writeJSON(w, status, models.ErrorResponse{Error: err.Error()})
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

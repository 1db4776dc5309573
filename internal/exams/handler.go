package exams

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/examprep/backend/internal/middleware"
	"github.com/examprep/backend/internal/models"
)

const maxImportBytes = 5 << 20

// ExplanationDrafter produces a draft explanation for a question.
type ExplanationDrafter interface {
	DraftExplanation(ctx context.Context, q models.Question) (*models.ExplanationDraft, error)
}

type Handler struct {
	service *Service
	drafter ExplanationDrafter
}

// NewHandler builds the exam handler. drafter may be nil, which turns
// explanation drafting off.
func NewHandler(service *Service, drafter ExplanationDrafter) *Handler {
	return &Handler{service: service, drafter: drafter}
}

// RegisterRoutes registers the candidate-facing exam routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/exams", h.ListExams).Methods("GET")
	r.HandleFunc("/exams/{id:[0-9]+}", h.GetExam).Methods("GET")
}

// RegisterAdminRoutes registers exam, question bank and assignment
// administration on the admin subrouter.
func (h *Handler) RegisterAdminRoutes(admin *mux.Router) {
	admin.HandleFunc("/exams", h.ListExams).Methods("GET")
	admin.HandleFunc("/exams", h.CreateExam).Methods("POST")
	admin.HandleFunc("/exams/{id:[0-9]+}", h.UpdateExam).Methods("PUT")
	admin.HandleFunc("/exams/{id:[0-9]+}", h.DeleteExam).Methods("DELETE")

	admin.HandleFunc("/exams/{id:[0-9]+}/questions", h.ListQuestions).Methods("GET")
	admin.HandleFunc("/exams/{id:[0-9]+}/questions", h.CreateQuestion).Methods("POST")
	admin.HandleFunc("/exams/{id:[0-9]+}/questions/import", h.ImportQuestions).Methods("POST")
	admin.HandleFunc("/questions/template", h.DownloadTemplate).Methods("GET")
	admin.HandleFunc("/questions/{id:[0-9]+}", h.GetQuestion).Methods("GET")
	admin.HandleFunc("/questions/{id:[0-9]+}", h.UpdateQuestion).Methods("PUT")
	admin.HandleFunc("/questions/{id:[0-9]+}", h.DeleteQuestion).Methods("DELETE")
	admin.HandleFunc("/questions/{id:[0-9]+}/explanation/draft", h.DraftExplanation).Methods("POST")

	admin.HandleFunc("/exams/{id:[0-9]+}/assignments", h.ListAssignments).Methods("GET")
	admin.HandleFunc("/exams/{id:[0-9]+}/assignments", h.Assign).Methods("POST")
	admin.HandleFunc("/exams/{id:[0-9]+}/assignments/{userID:[0-9]+}", h.Unassign).Methods("DELETE")
}

// ── Exams ───────────────────────────────────────────────

func (h *Handler) ListExams(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	exams, err := h.service.ListExams(r.Context(), userID, middleware.IsAdmin(r.Context()))
	if err != nil {
		writeServiceError(w, err, "list exams")
		return
	}
	writeJSON(w, http.StatusOK, exams)
}

func (h *Handler) GetExam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, _ := middleware.UserID(r.Context())

	exam, err := h.service.GetExam(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "get exam")
		return
	}
	if err := h.service.CanAccess(r.Context(), userID, middleware.IsAdmin(r.Context()), id); err != nil {
		writeServiceError(w, err, "get exam")
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (h *Handler) CreateExam(w http.ResponseWriter, r *http.Request) {
	var req models.ExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	exam, err := h.service.CreateExam(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, "create exam")
		return
	}
	writeJSON(w, http.StatusCreated, exam)
}

func (h *Handler) UpdateExam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.ExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	exam, err := h.service.UpdateExam(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err, "update exam")
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (h *Handler) DeleteExam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteExam(r.Context(), id); err != nil {
		writeServiceError(w, err, "delete exam")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Questions ───────────────────────────────────────────

func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	page := intQueryParam(r.URL.Query(), "page", 1)
	pageSize := intQueryParam(r.URL.Query(), "page_size", 50)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	questions, total, err := h.service.ListQuestions(r.Context(), examID, pageSize, (page-1)*pageSize)
	if err != nil {
		writeServiceError(w, err, "list questions")
		return
	}
	writeJSON(w, http.StatusOK, models.QuestionListResponse{
		Questions: questions,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	})
}

func (h *Handler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	q, err := h.service.CreateQuestion(r.Context(), examID, req)
	if err != nil {
		writeServiceError(w, err, "create question")
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (h *Handler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	q, err := h.service.GetQuestion(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "get question")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	q, err := h.service.UpdateQuestion(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err, "update question")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteQuestion(r.Context(), id); err != nil {
		writeServiceError(w, err, "delete question")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportQuestions accepts a CSV file either as the "file" field of a
// multipart form or as the raw request body.
func (h *Handler) ImportQuestions(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Missing CSV file"})
			return
		}
		defer file.Close()
		body = file
	}

	result, err := h.service.ImportCSV(r.Context(), examID, body)
	if err != nil {
		writeServiceError(w, err, "import questions")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) DownloadTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="questions_template.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(TemplateCSV())
}

func (h *Handler) DraftExplanation(w http.ResponseWriter, r *http.Request) {
	if h.drafter == nil {
		writeJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{Error: "Explanation drafting is not configured"})
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	q, err := h.service.GetQuestion(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "draft explanation")
		return
	}
	draft, err := h.drafter.DraftExplanation(r.Context(), *q)
	if err != nil {
		log.Printf("[handler] draft explanation for question %d: %v", id, err)
		writeJSON(w, http.StatusBadGateway, models.ErrorResponse{Error: "Failed to draft explanation"})
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// ── Assignments ─────────────────────────────────────────

func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	assignments, err := h.service.ListAssignments(r.Context(), examID)
	if err != nil {
		writeServiceError(w, err, "list assignments")
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	adminID, _ := middleware.UserID(r.Context())
	if err := h.service.Assign(r.Context(), examID, req.UserIDs, adminID); err != nil {
		writeServiceError(w, err, "assign exam")
		return
	}
	h.ListAssignments(w, r)
}

func (h *Handler) Unassign(w http.ResponseWriter, r *http.Request) {
	examID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.service.Unassign(r.Context(), examID, userID); err != nil {
		writeServiceError(w, err, "unassign exam")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Helpers ─────────────────────────────────────────────

func writeServiceError(w http.ResponseWriter, err error, op string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: verr.Msg})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Exam not found"})
	case errors.Is(err, ErrQuestionNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Question not found"})
	case errors.Is(err, ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "User not found"})
	case errors.Is(err, ErrAccessDenied):
		writeJSON(w, http.StatusForbidden, models.ErrorResponse{Error: "You do not have access to this exam"})
	default:
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "File too large"})
			return
		}
		log.Printf("[handler] %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
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

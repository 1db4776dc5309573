package models

import "time"

type Exam struct {
	ID                int64     `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	TotalQuestions    int       `json:"total_questions"`
	DurationMinutes   int       `json:"duration_minutes"`
	PassingPercentage float64   `json:"passing_percentage"`
	IsActive          bool      `json:"is_active"`
	QuestionCount     int       `json:"question_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type ExamRequest struct {
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	TotalQuestions    int     `json:"total_questions"`
	DurationMinutes   int     `json:"duration_minutes"`
	PassingPercentage float64 `json:"passing_percentage"`
	IsActive          *bool   `json:"is_active"`
}

type Assignment struct {
	ExamID     int64     `json:"exam_id"`
	UserID     int64     `json:"user_id"`
	UserName   string    `json:"user_name,omitempty"`
	UserEmail  string    `json:"user_email,omitempty"`
	AssignedBy int64     `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
}

type AssignRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

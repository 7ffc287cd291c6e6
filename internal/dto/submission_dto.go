package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/classpilot-io/AI-grading/internal/models"
)

// SubmissionCreateRequest describes the multipart fields sent with an answer file.
type SubmissionCreateRequest struct {
	AssignmentID      string `form:"assignmentId" validate:"required,uuid"`
	StudentIdentifier string `form:"studentIdentifier" validate:"required,min=1,max=255"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID                 uuid.UUID       `json:"id"`
	AssignmentID       uuid.UUID       `json:"assignmentId"`
	StudentID          *uuid.UUID      `json:"studentId"`
	StudentIdentifier  string          `json:"studentIdentifier"`
	SubmissionFilePath string          `json:"submissionFilePath"`
	Status             string          `json:"status"`
	Results            json.RawMessage `json:"results"`
	GradedAt           *time.Time      `json:"gradedAt"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	Subject            string          `json:"subject,omitempty"`
}

// GradingTaskResponse acknowledges a queued grading run.
type GradingTaskResponse struct {
	TaskID     string             `json:"taskId"`
	Submission SubmissionResponse `json:"submission"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:                 model.ID,
		AssignmentID:       model.AssignmentID,
		StudentID:          model.StudentID,
		StudentIdentifier:  model.StudentIdentifier,
		SubmissionFilePath: model.SubmissionFilePath,
		Status:             model.Status,
		GradedAt:           model.GradedAt,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}

	if len(model.Results) > 0 {
		response.Results = json.RawMessage(model.Results)
	} else {
		response.Results = json.RawMessage("null")
	}

	if model.Assignment != nil {
		response.Subject = model.Assignment.Subject
	}

	return response
}

// NewSubmissionResponseSlice converts models into DTOs.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}
	return responses
}

package dto

import (
	"mime/multipart"
	"time"

	"github.com/google/uuid"

	"github.com/classpilot-io/AI-grading/internal/models"
)

// AssignmentCreateRequest describes the multipart payload for creating an assignment.
type AssignmentCreateRequest struct {
	Subject     string `form:"subject" json:"subject" validate:"required"`
	Name        string `form:"name" json:"name" validate:"required,min=1,max=255"`
	ClassName   string `form:"className" json:"className" validate:"omitempty,max=128"`
	Description string `form:"description" json:"description" validate:"omitempty,max=5000"`
}

// AssignmentUpdateRequest describes a partial assignment update. Subject may only
// repeat the stored value.
type AssignmentUpdateRequest struct {
	Subject     *string `form:"subject" json:"subject"`
	Name        *string `form:"name" json:"name" validate:"omitempty,min=1,max=255"`
	ClassName   *string `form:"className" json:"className" validate:"omitempty,max=128"`
	Description *string `form:"description" json:"description" validate:"omitempty,max=5000"`
}

// AssignmentFiles carries the optional uploaded documents.
type AssignmentFiles struct {
	QuestionPaper *multipart.FileHeader
	AnswerKey     *multipart.FileHeader
}

// AssignmentFilter describes query string filters for listing assignments.
type AssignmentFilter struct {
	Subject  string `query:"subject"`
	Search   string `query:"search"`
	Page     int    `query:"page" validate:"omitempty,gte=1"`
	PageSize int    `query:"pageSize" validate:"omitempty,gte=1,lte=100"`
}

// AssignmentResponse is the serialized representation returned to API clients.
type AssignmentResponse struct {
	ID                uuid.UUID `json:"id"`
	TeacherID         uuid.UUID `json:"teacherId"`
	Subject           string    `json:"subject"`
	Name              string    `json:"name"`
	ClassName         string    `json:"className"`
	Description       string    `json:"description"`
	QuestionPaperPath string    `json:"questionPaperPath"`
	AnswerKeyPath     string    `json:"answerKeyPath"`
	SubmissionLink    string    `json:"submissionLink"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// AssignmentListResponse wraps a page of assignments.
type AssignmentListResponse struct {
	Items []AssignmentResponse `json:"items"`
	Total int64                `json:"total"`
}

// NewAssignmentResponse converts a model into a DTO.
func NewAssignmentResponse(model models.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:                model.ID,
		TeacherID:         model.TeacherID,
		Subject:           model.Subject,
		Name:              model.Name,
		ClassName:         model.ClassName,
		Description:       model.Description,
		QuestionPaperPath: model.QuestionPaperPath,
		AnswerKeyPath:     model.AnswerKeyPath,
		SubmissionLink:    model.SubmissionLink,
		CreatedAt:         model.CreatedAt,
		UpdatedAt:         model.UpdatedAt,
	}
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment))
	}

	return responses
}

package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/classpilot-io/AI-grading/internal/models"
)

// ClassSummaryResponse is the stored overview for an assignment.
type ClassSummaryResponse struct {
	ID              uuid.UUID `json:"id"`
	AssignmentID    uuid.UUID `json:"assignmentId"`
	Summary         string    `json:"summary"`
	SubmissionCount int       `json:"submissionCount"`
	GradedCount     int       `json:"gradedCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewClassSummaryResponse converts a model into a DTO.
func NewClassSummaryResponse(model models.ClassSummary) ClassSummaryResponse {
	metrics := model.Metrics.Data()
	return ClassSummaryResponse{
		ID:              model.ID,
		AssignmentID:    model.AssignmentID,
		Summary:         metrics.Summary,
		SubmissionCount: metrics.SubmissionCount,
		GradedCount:     metrics.GradedCount,
		CreatedAt:       model.CreatedAt,
	}
}

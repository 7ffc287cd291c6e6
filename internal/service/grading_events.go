package service

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/classpilot-io/AI-grading/internal/models"
	"github.com/classpilot-io/AI-grading/pkg/grading"
)

// GradingCompletedSubject is the NATS subject carrying finished gradings.
const GradingCompletedSubject = "grading.completed"

// EventPublisher delivers serialized events. *nats.Conn satisfies it.
type EventPublisher interface {
	Publish(subject string, data []byte) error
}

// GradingCompletedEvent announces the terminal state of a grading run.
type GradingCompletedEvent struct {
	SubmissionID      uuid.UUID  `json:"submissionId"`
	AssignmentID      uuid.UUID  `json:"assignmentId"`
	StudentIdentifier string     `json:"studentIdentifier"`
	Subject           string     `json:"subject"`
	Status            string     `json:"status"`
	AwardedMarks      string     `json:"awardedMarks,omitempty"`
	TotalMarks        string     `json:"totalMarks,omitempty"`
	GradedAt          *time.Time `json:"gradedAt,omitempty"`
}

func publishGradingCompleted(publisher EventPublisher, logger zerolog.Logger, submission models.Submission, subject string, result *grading.Result) {
	if publisher == nil {
		return
	}

	event := GradingCompletedEvent{
		SubmissionID:      submission.ID,
		AssignmentID:      submission.AssignmentID,
		StudentIdentifier: submission.StudentIdentifier,
		Subject:           subject,
		Status:            submission.Status,
		GradedAt:          submission.GradedAt,
	}
	if result != nil {
		event.AwardedMarks = string(result.AwardedMarks())
		event.TotalMarks = string(result.TotalMarks())
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to encode grading event")
		return
	}

	if err := publisher.Publish(GradingCompletedSubject, payload); err != nil {
		logger.Warn().Err(err).Str("submission_id", submission.ID.String()).Msg("failed to publish grading event")
	}
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// SubmissionStatusPending indicates the file is stored but not graded yet.
	SubmissionStatusPending = "pending"
	// SubmissionStatusGraded indicates results hold a validated grading result.
	SubmissionStatusGraded = "graded"
	// SubmissionStatusFailed indicates grading ran but produced no usable result.
	SubmissionStatusFailed = "failed"
)

// Submission is a student's answer file for an assignment. There is at most one per
// (assignment, student identifier) pair.
type Submission struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AssignmentID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_submissions_assignment_student" json:"assignment_id"`
	StudentID          *uuid.UUID     `gorm:"type:uuid;index" json:"student_id"`
	StudentIdentifier  string         `gorm:"size:255;not null;uniqueIndex:idx_submissions_assignment_student" json:"student_identifier"`
	SubmissionFilePath string         `gorm:"size:512;not null" json:"submission_file_path"`
	Status             string         `gorm:"size:16;not null" json:"status"`
	Results            datatypes.JSON `json:"results"`
	GradedAt           *time.Time     `json:"graded_at"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	Assignment         *Assignment    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment,omitempty"`
}

// BeforeCreate assigns a random identifier when none was set.
func (s *Submission) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = SubmissionStatusPending
	}
	return nil
}

// IsGraded reports whether the submission carries a validated result.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

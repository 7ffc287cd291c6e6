package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ClassSummaryMetrics is the generated overview stored for an assignment.
type ClassSummaryMetrics struct {
	Summary         string `json:"summary"`
	SubmissionCount int    `json:"submission_count"`
	GradedCount     int    `json:"graded_count"`
}

// ClassSummary is an append-only record of a generated class overview.
type ClassSummary struct {
	ID           uuid.UUID                               `gorm:"type:uuid;primaryKey" json:"id"`
	AssignmentID uuid.UUID                               `gorm:"type:uuid;index;not null" json:"assignment_id"`
	Metrics      datatypes.JSONType[ClassSummaryMetrics] `json:"metrics"`
	CreatedAt    time.Time                               `json:"created_at"`
}

// BeforeCreate assigns a random identifier when none was set.
func (c *ClassSummary) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

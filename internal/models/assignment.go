package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Assignment is a piece of work a teacher sets for a class.
type Assignment struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TeacherID         uuid.UUID `gorm:"type:uuid;index;not null" json:"teacher_id"`
	Subject           string    `gorm:"size:32;not null" json:"subject"`
	Name              string    `gorm:"size:255;not null" json:"name"`
	ClassName         string    `gorm:"size:128" json:"class_name"`
	Description       string    `gorm:"type:text" json:"description"`
	QuestionPaperPath string    `gorm:"size:512" json:"question_paper_path"`
	AnswerKeyPath     string    `gorm:"size:512" json:"answer_key_path"`
	SubmissionLink    string    `gorm:"size:512" json:"submission_link"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BeforeCreate assigns a random identifier when none was set.
func (a *Assignment) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// OwnedBy reports whether the teacher owns the assignment.
func (a Assignment) OwnedBy(teacherID uuid.UUID) bool {
	return teacherID != uuid.Nil && a.TeacherID == teacherID
}

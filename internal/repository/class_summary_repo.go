package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/classpilot-io/AI-grading/internal/models"
)

// ClassSummaryRepository stores generated class overviews.
type ClassSummaryRepository interface {
	Create(ctx context.Context, summary *models.ClassSummary) error
	Latest(ctx context.Context, assignmentID uuid.UUID) (models.ClassSummary, error)
}

type classSummaryRepository struct {
	db *gorm.DB
}

// NewClassSummaryRepository instantiates the repository.
func NewClassSummaryRepository(db *gorm.DB) ClassSummaryRepository {
	return &classSummaryRepository{db: db}
}

func (r *classSummaryRepository) Create(ctx context.Context, summary *models.ClassSummary) error {
	return r.db.WithContext(ctx).Create(summary).Error
}

func (r *classSummaryRepository) Latest(ctx context.Context, assignmentID uuid.UUID) (models.ClassSummary, error) {
	var summary models.ClassSummary
	err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("created_at DESC").
		First(&summary).Error
	if err != nil {
		return models.ClassSummary{}, err
	}
	return summary, nil
}

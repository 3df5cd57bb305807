package repository

import (
	"errors"
	"exam_hub_backend/internal/model"

	"gorm.io/gorm"
)

type AnalysisRepository struct {
	DB *gorm.DB
}

func NewAnalysisRepository(db *gorm.DB) *AnalysisRepository {
	return &AnalysisRepository{DB: db}
}

// Replace 每个 assignment 只保留一份当前分析：删旧插新，一个事务完成
func (r *AnalysisRepository) Replace(analysis *model.ExamAnalysis) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().
			Where("assignment_id = ?", analysis.AssignmentID).
			Delete(&model.ExamAnalysis{}).Error; err != nil {
			return err
		}
		return tx.Create(analysis).Error
	})
}

func (r *AnalysisRepository) FindByAssignment(assignmentID string) (*model.ExamAnalysis, error) {
	var a model.ExamAnalysis
	err := r.DB.Where("assignment_id = ?", assignmentID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &a, err
}

package repository

import (
	"errors"
	"exam_hub_backend/internal/model"

	"gorm.io/gorm"
)

type MaterialRepository struct {
	DB *gorm.DB
}

func NewMaterialRepository(db *gorm.DB) *MaterialRepository {
	return &MaterialRepository{DB: db}
}

func (r *MaterialRepository) Create(m *model.GeneratedMaterial) error {
	return r.DB.Create(m).Error
}

func (r *MaterialRepository) FindByID(id string) (*model.GeneratedMaterial, error) {
	var m model.GeneratedMaterial
	err := r.DB.First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &m, err
}

func (r *MaterialRepository) ListByCreator(creatorID uint, page, limit int) ([]model.GeneratedMaterial, int64, error) {
	query := r.DB.Model(&model.GeneratedMaterial{}).Where("creator_id = ?", creatorID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []model.GeneratedMaterial
	offset := (page - 1) * limit
	err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

// MarkAvailable 终态只写一次：存储指针与 available 状态同一条更新写入，
// 且仅当当前仍是 generating 时生效。
func (r *MaterialRepository) MarkAvailable(id, storageKey string) (bool, error) {
	res := r.DB.Model(&model.GeneratedMaterial{}).
		Where("id = ? AND status = ?", id, model.MaterialGenerating).
		Updates(map[string]interface{}{
			"status":      model.MaterialAvailable,
			"storage_key": storageKey,
		})
	return res.RowsAffected == 1, res.Error
}

// MarkError 与 MarkAvailable 对称的失败终态
func (r *MaterialRepository) MarkError(id, errMsg string) (bool, error) {
	res := r.DB.Model(&model.GeneratedMaterial{}).
		Where("id = ? AND status = ?", id, model.MaterialGenerating).
		Updates(map[string]interface{}{
			"status":    model.MaterialError,
			"error_msg": errMsg,
		})
	return res.RowsAffected == 1, res.Error
}

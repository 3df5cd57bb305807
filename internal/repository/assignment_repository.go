package repository

import (
	"errors"
	"exam_hub_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AssignmentRepository struct {
	DB *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{DB: db}
}

func (r *AssignmentRepository) Create(a *model.ExamAssignment) error {
	return r.DB.Create(a).Error
}

func (r *AssignmentRepository) FindByID(id string) (*model.ExamAssignment, error) {
	var a model.ExamAssignment
	err := r.DB.First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &a, err
}

func (r *AssignmentRepository) FindByExamAndStudent(examID string, studentID uint) (*model.ExamAssignment, error) {
	var a model.ExamAssignment
	err := r.DB.Where("exam_id = ? AND student_id = ?", examID, studentID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &a, err
}

func (r *AssignmentRepository) ListByStudent(studentID uint, page, limit int) ([]model.ExamAssignment, int64, error) {
	query := r.DB.Model(&model.ExamAssignment{}).Where("student_id = ?", studentID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []model.ExamAssignment
	offset := (page - 1) * limit
	err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

// MarkInProgress 以条件更新实现 pending → in_progress 的单步迁移。
// 返回 false 表示当前状态已不是 pending，调用方应视为非法迁移。
func (r *AssignmentRepository) MarkInProgress(id string, startedAt time.Time) (bool, error) {
	res := r.DB.Model(&model.ExamAssignment{}).
		Where("id = ? AND status = ?", id, model.AssignmentPending).
		Updates(map[string]interface{}{
			"status":     model.AssignmentInProgress,
			"started_at": &startedAt,
		})
	return res.RowsAffected == 1, res.Error
}

// MarkGraded 以条件更新实现 in_progress → graded。并发 Finalize 只有一个席位：
// 状态列上的单条原子更新即是比较交换，落选方会看到 0 行受影响。
func (r *AssignmentRepository) MarkGraded(a *model.ExamAssignment) (bool, error) {
	res := r.DB.Model(&model.ExamAssignment{}).
		Where("id = ? AND status = ?", a.ID, model.AssignmentInProgress).
		Updates(map[string]interface{}{
			"status":          model.AssignmentGraded,
			"completed_at":    a.CompletedAt,
			"graded_at":       a.GradedAt,
			"points_obtained": a.PointsObtained,
			"points_possible": a.PointsPossible,
			"grade":           a.Grade,
			"passed":          a.Passed,
			"elapsed_minutes": a.ElapsedMinutes,
			"correct_count":   a.CorrectCount,
		})
	return res.RowsAffected == 1, res.Error
}

// UpsertAnswer (assignment, question) 唯一，重复提交覆盖旧值
func (r *AssignmentRepository) UpsertAnswer(ans *model.AssignmentAnswer) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "assignment_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "is_correct", "awarded_points", "updated_at"}),
	}).Create(ans).Error
}

func (r *AssignmentRepository) ListAnswers(assignmentID string) ([]model.AssignmentAnswer, error) {
	var answers []model.AssignmentAnswer
	err := r.DB.Where("assignment_id = ?", assignmentID).Find(&answers).Error
	return answers, err
}

// SaveGradedAnswers 评分后的批量回写，放在一个事务里
func (r *AssignmentRepository) SaveGradedAnswers(answers []model.AssignmentAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	return r.DB.Transaction(func(tx *gorm.DB) error {
		for i := range answers {
			if err := tx.Model(&model.AssignmentAnswer{}).
				Where("id = ?", answers[i].ID).
				Updates(map[string]interface{}{
					"is_correct":     answers[i].IsCorrect,
					"awarded_points": answers[i].AwardedPoints,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

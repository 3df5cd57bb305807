package repository

import (
	"errors"
	"exam_hub_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

func (r *ExamRepository) CreateExam(exam *model.Exam) error {
	return r.DB.Create(exam).Error
}

func (r *ExamRepository) UpdateExam(exam *model.Exam) error {
	return r.DB.Save(exam).Error
}

func (r *ExamRepository) FindExamByID(id string) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.First(&exam, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &exam, err
}

type ExamListRow struct {
	model.Exam
	AssignmentCount int `json:"assignmentCount"`
}

func (r *ExamRepository) ListExams(page, limit int, onlyPublished bool) ([]ExamListRow, int64, error) {
	query := r.DB.Model(&model.Exam{})
	if onlyPublished {
		query = query.Where("is_published = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []ExamListRow
	dbQuery := r.DB.Table("exams e").
		Select("e.*, " +
			"(SELECT COUNT(*) FROM exam_assignments a WHERE a.exam_id = e.id AND a.deleted_at IS NULL) as assignment_count").
		Where("e.deleted_at IS NULL")
	if onlyPublished {
		dbQuery = dbQuery.Where("e.is_published = ?", true)
	}

	offset := (page - 1) * limit
	err := dbQuery.Order("e.created_at desc").Offset(offset).Limit(limit).Scan(&rows).Error
	return rows, total, err
}

func (r *ExamRepository) PublishExam(id string) error {
	now := time.Now()
	return r.DB.Model(&model.Exam{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_published": true, "published_at": &now}).Error
}

func (r *ExamRepository) CreateQuestion(q *model.ExamQuestion) error {
	return r.DB.Create(q).Error
}

// CreateQuestionBatch 小批量插入并立即提交，限制单个事务的持续时间
func (r *ExamRepository) CreateQuestionBatch(qs []model.ExamQuestion) error {
	if len(qs) == 0 {
		return nil
	}
	return r.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&qs).Error
	})
}

func (r *ExamRepository) ListQuestions(examID string) ([]model.ExamQuestion, error) {
	var qs []model.ExamQuestion
	err := r.DB.Where("exam_id = ?", examID).Order("`order` asc, created_at asc").Find(&qs).Error
	return qs, err
}

// CountQuestions 已持久化的题目数，用于中断后续写时定位断点
func (r *ExamRepository) CountQuestions(examID string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.ExamQuestion{}).Where("exam_id = ?", examID).Count(&count).Error
	return count, err
}

// UpdateExamCounters 题目全部写完后回填题数与总分
func (r *ExamRepository) UpdateExamCounters(examID string, questionCount, totalPoints int) error {
	return r.DB.Model(&model.Exam{}).Where("id = ?", examID).
		Updates(map[string]interface{}{
			"question_count": questionCount,
			"total_points":   totalPoints,
		}).Error
}

// FindRemediationBySource 查找同一来源作答已生成的补救试卷。
// 编排器可能因故障恢复被重复触发，这里是幂等性的硬保障。
func (r *ExamRepository) FindRemediationBySource(assignmentID string) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.Where("source_assignment_id = ?", assignmentID).First(&exam).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &exam, err
}

func (r *ExamRepository) DeleteExam(id string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("exam_id = ?", id).Delete(&model.ExamQuestion{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Exam{}, "id = ?", id).Error
	})
}

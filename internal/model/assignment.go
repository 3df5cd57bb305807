package model

import (
	"time"
)

// AssignmentStatus 作答记录状态。状态只能通过 Next 校验过的迁移前进：
// pending → in_progress → graded，graded 为终态。
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "pending"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentGraded     AssignmentStatus = "graded"
)

// CanTransitionTo 判定单步状态迁移是否合法
func (s AssignmentStatus) CanTransitionTo(next AssignmentStatus) bool {
	switch s {
	case AssignmentPending:
		return next == AssignmentInProgress
	case AssignmentInProgress:
		return next == AssignmentGraded
	default:
		return false
	}
}

// Terminal graded 之后不允许任何迁移
func (s AssignmentStatus) Terminal() bool {
	return s == AssignmentGraded
}

// ExamAssignment 一个学生对一份试卷的一次作答
// swagger:model ExamAssignment
type ExamAssignment struct {
	UUIDBase
	ExamID    string           `gorm:"index;type:varchar(36);not null" json:"examId"`
	StudentID uint             `gorm:"index;type:bigint unsigned;not null" json:"studentId"`
	Status    AssignmentStatus `gorm:"size:20;default:'pending'" json:"status"`

	AssignedAt  time.Time  `json:"assignedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	GradedAt    *time.Time `json:"gradedAt,omitempty"`

	// 评分结果，Finalize 之后不再改写
	PointsObtained int     `gorm:"default:0" json:"pointsObtained"`
	PointsPossible int     `gorm:"default:0" json:"pointsPossible"`
	Grade          float64 `gorm:"default:0" json:"grade"` // 0-10 分制
	Passed         bool    `gorm:"default:false" json:"passed"`
	ElapsedMinutes *int    `json:"elapsedMinutes,omitempty"`
	CorrectCount   int     `gorm:"default:0" json:"correctCount"`
}

func (ExamAssignment) TableName() string {
	return "exam_assignments"
}

// AssignmentAnswer 某次作答中对单个题目的回答，(assignment, question) 唯一
type AssignmentAnswer struct {
	UUIDBase
	AssignmentID  string `gorm:"uniqueIndex:uniq_assignment_question;type:varchar(36);not null" json:"assignmentId"`
	QuestionID    string `gorm:"uniqueIndex:uniq_assignment_question;type:varchar(36);not null" json:"questionId"`
	Value         string `gorm:"type:text" json:"value"`
	IsCorrect     bool   `gorm:"default:false" json:"isCorrect"`
	AwardedPoints int    `gorm:"default:0" json:"awardedPoints"`
}

func (AssignmentAnswer) TableName() string {
	return "assignment_answers"
}

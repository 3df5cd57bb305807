package model

import (
	"encoding/json"
	"time"
)

// Exam 试卷。一旦有学生开始作答即视为不可变，只允许下架。
// swagger:model Exam
type Exam struct {
	UUIDBase
	Title         string     `gorm:"size:255;not null" json:"title"`
	Description   string     `gorm:"type:text" json:"description"`
	Subject       string     `gorm:"size:100" json:"subject"`
	Level         string     `gorm:"size:50" json:"level"`
	QuestionCount int        `gorm:"default:0" json:"questionCount"`
	TimeLimit     int        `gorm:"default:0" json:"timeLimit"` // 分钟
	TotalPoints   int        `gorm:"default:0" json:"totalPoints"`
	PassingScore  float64    `gorm:"default:6" json:"passingScore"` // 0-10 分制
	IsPublished   bool       `gorm:"default:false" json:"isPublished"`
	PublishedAt   *time.Time `json:"publishedAt,omitempty"`
	CreatorID     uint       `gorm:"index;type:bigint unsigned" json:"creatorId"`

	// 补救试卷溯源：由哪次作答和哪份分析生成
	SourceAssignmentID *string `gorm:"index;type:varchar(36)" json:"sourceAssignmentId,omitempty"`
	SourceAnalysisID   *string `gorm:"type:varchar(36)" json:"sourceAnalysisId,omitempty"`
}

func (Exam) TableName() string {
	return "exams"
}

// IsRemediation 是否为补救试卷
func (e *Exam) IsRemediation() bool {
	return e.SourceAssignmentID != nil && *e.SourceAssignmentID != ""
}

type QuestionDifficulty string

const (
	DifficultyEasy   QuestionDifficulty = "easy"
	DifficultyMedium QuestionDifficulty = "medium"
	DifficultyHard   QuestionDifficulty = "hard"
)

// swagger:model ExamQuestion
type ExamQuestion struct {
	UUIDBase
	ExamID     string             `gorm:"index;type:varchar(36)" json:"examId"`
	Content    string             `gorm:"type:text;not null" json:"content"`
	Options    json.RawMessage    `gorm:"type:json" json:"options,omitempty"`
	Answer     string             `gorm:"type:text" json:"answer"`
	Difficulty QuestionDifficulty `gorm:"size:20;default:'medium'" json:"difficulty"`
	Topics     string             `gorm:"size:500" json:"topics"` // 逗号分隔的知识点标签
	Points     int                `gorm:"default:1" json:"points"`
	Order      int                `gorm:"default:0" json:"order"`
}

func (ExamQuestion) TableName() string {
	return "exam_questions"
}

// TopicList 拆分知识点标签
func (q *ExamQuestion) TopicList() []string {
	return SplitTopics(q.Topics)
}

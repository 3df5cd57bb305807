package model

import (
	"encoding/json"
)

type MasteryLevel string

const (
	MasteryWeak       MasteryLevel = "weak"
	MasteryDeveloping MasteryLevel = "developing"
	MasteryProficient MasteryLevel = "proficient"
	MasteryAdvanced   MasteryLevel = "advanced"
)

// TopicBreakdown 单个知识点的得分统计
type TopicBreakdown struct {
	Topic   string `json:"topic"`
	Correct int    `json:"correct"`
	Total   int    `json:"total"`
}

// ExamAnalysis 一次作答的定性分析。每个 assignment 最多保留一份：
// 重新生成时先删旧行再插新行，不累计历史。
// swagger:model ExamAnalysis
type ExamAnalysis struct {
	UUIDBase
	AssignmentID   string          `gorm:"uniqueIndex;type:varchar(36);not null" json:"assignmentId"`
	Strengths      string          `gorm:"type:text" json:"strengths"`
	Weaknesses     string          `gorm:"type:text" json:"weaknesses"`
	Mastery        MasteryLevel    `gorm:"size:20;default:'developing'" json:"mastery"`
	Breakdown      json.RawMessage `gorm:"type:json" json:"breakdown,omitempty"` // []TopicBreakdown
	PriorityTopics string          `gorm:"size:1000" json:"priorityTopics"`      // 按优先级排序，逗号分隔
}

func (ExamAnalysis) TableName() string {
	return "exam_analyses"
}

// PriorityTopicList 按优先级排序的薄弱知识点
func (a *ExamAnalysis) PriorityTopicList() []string {
	return SplitTopics(a.PriorityTopics)
}

// TopicBreakdownList 解析得分统计，解析失败时返回空
func (a *ExamAnalysis) TopicBreakdownList() []TopicBreakdown {
	if len(a.Breakdown) == 0 {
		return nil
	}
	var items []TopicBreakdown
	if err := json.Unmarshal(a.Breakdown, &items); err != nil {
		return nil
	}
	return items
}

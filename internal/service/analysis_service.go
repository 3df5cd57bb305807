package service

import (
	"context"
	"encoding/json"
	"errors"
	"exam_hub_backend/internal/model"
	"exam_hub_backend/internal/repository"
	"exam_hub_backend/internal/util"
	"fmt"
	"sort"
	"strings"
)

// GradedSnapshot 交卷时抓取的完整评分现场。流水线只依赖快照工作，
// 不回读刚提交的评分数据，从根上避免读写可见性竞争。
type GradedSnapshot struct {
	Assignment model.ExamAssignment
	Exam       model.Exam
	Questions  []model.ExamQuestion
	Answers    []model.AssignmentAnswer
}

// AnalysisService 定性分析阶段：把评分快照整理成简报交给内容生成器，
// 成功后以删旧插新的方式保存唯一一份当前分析。
type AnalysisService struct {
	Repo      *repository.AnalysisRepository
	Generator ContentGenerator
}

func NewAnalysisService(repo *repository.AnalysisRepository, generator ContentGenerator) *AnalysisService {
	return &AnalysisService{Repo: repo, Generator: generator}
}

// analysisPayload 模型返回的结构
type analysisPayload struct {
	Strengths      string                 `json:"strengths"`
	Weaknesses     string                 `json:"weaknesses"`
	Mastery        string                 `json:"mastery"`
	Breakdown      []model.TopicBreakdown `json:"breakdown"`
	PriorityTopics []string               `json:"priorityTopics"`
}

// GenerateAndReplace 生成并落库。任何失败都不会留下半份分析：
// 旧分析只在新分析可用时才被替换。
func (s *AnalysisService) GenerateAndReplace(ctx context.Context, snap *GradedSnapshot) (*model.ExamAnalysis, error) {
	brief := BuildAnalysisBrief(snap)

	var payload analysisPayload
	if err := s.Generator.GenerateJSON(ctx, "analysis", brief, &payload); err != nil {
		return nil, err
	}

	analysis, err := s.buildAnalysis(snap, &payload)
	if err != nil {
		return nil, err
	}

	if err := s.Repo.Replace(analysis); err != nil {
		return nil, err
	}
	return analysis, nil
}

func (s *AnalysisService) buildAnalysis(snap *GradedSnapshot, payload *analysisPayload) (*model.ExamAnalysis, error) {
	if strings.TrimSpace(payload.Strengths) == "" && strings.TrimSpace(payload.Weaknesses) == "" {
		return nil, util.NewGenerationError("analysis", errors.New("empty analysis payload"))
	}

	mastery := model.MasteryLevel(payload.Mastery)
	switch mastery {
	case model.MasteryWeak, model.MasteryDeveloping, model.MasteryProficient, model.MasteryAdvanced:
	default:
		mastery = model.MasteryDeveloping
	}

	breakdown := payload.Breakdown
	if len(breakdown) == 0 {
		// 模型没给统计时从快照自算，保证分析结构完整
		breakdown = ComputeTopicBreakdown(snap)
	}
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return nil, util.NewGenerationError("analysis", err)
	}

	return &model.ExamAnalysis{
		AssignmentID:   snap.Assignment.ID,
		Strengths:      strings.TrimSpace(payload.Strengths),
		Weaknesses:     strings.TrimSpace(payload.Weaknesses),
		Mastery:        mastery,
		Breakdown:      breakdownJSON,
		PriorityTopics: model.JoinTopics(payload.PriorityTopics),
	}, nil
}

func (s *AnalysisService) FindByAssignment(assignmentID string) (*model.ExamAnalysis, error) {
	return s.Repo.FindByAssignment(assignmentID)
}

// ComputeTopicBreakdown 按知识点聚合对错统计
func ComputeTopicBreakdown(snap *GradedSnapshot) []model.TopicBreakdown {
	correctByQuestion := make(map[string]bool, len(snap.Answers))
	for _, a := range snap.Answers {
		correctByQuestion[a.QuestionID] = a.IsCorrect
	}

	totals := make(map[string]*model.TopicBreakdown)
	var order []string
	for _, q := range snap.Questions {
		for _, topic := range q.TopicList() {
			entry, ok := totals[topic]
			if !ok {
				entry = &model.TopicBreakdown{Topic: topic}
				totals[topic] = entry
				order = append(order, topic)
			}
			entry.Total++
			if correctByQuestion[q.ID] {
				entry.Correct++
			}
		}
	}

	sort.Strings(order)
	out := make([]model.TopicBreakdown, 0, len(order))
	for _, topic := range order {
		out = append(out, *totals[topic])
	}
	return out
}

// BuildAnalysisBrief 把评分快照整理成给内容生成器的文字简报：
// 按知识点/难度的得分分布，以及答错和答对的题目清单。
func BuildAnalysisBrief(snap *GradedSnapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "请针对一名学生的考试表现生成定性分析。\n")
	fmt.Fprintf(&b, "试卷：%s（科目 %s，级别 %s）\n", snap.Exam.Title, snap.Exam.Subject, snap.Exam.Level)
	fmt.Fprintf(&b, "得分：%d/%d，折合 %.1f 分（10 分制），及格线 %.1f。\n\n",
		snap.Assignment.PointsObtained, snap.Assignment.PointsPossible,
		snap.Assignment.Grade, snap.Exam.PassingScore)

	b.WriteString("各知识点得分：\n")
	for _, t := range ComputeTopicBreakdown(snap) {
		fmt.Fprintf(&b, "- %s：%d/%d\n", t.Topic, t.Correct, t.Total)
	}

	correctByQuestion := make(map[string]bool, len(snap.Answers))
	for _, a := range snap.Answers {
		correctByQuestion[a.QuestionID] = a.IsCorrect
	}

	b.WriteString("\n答错的题目：\n")
	for _, q := range snap.Questions {
		if !correctByQuestion[q.ID] {
			fmt.Fprintf(&b, "- [%s] %s（知识点：%s）\n", q.Difficulty, q.Content, q.Topics)
		}
	}
	b.WriteString("\n答对的题目：\n")
	for _, q := range snap.Questions {
		if correctByQuestion[q.ID] {
			fmt.Fprintf(&b, "- [%s] %s（知识点：%s）\n", q.Difficulty, q.Content, q.Topics)
		}
	}

	b.WriteString(`
返回 JSON 对象，字段如下：
{
  "strengths": "学生的优势（中文自由文本）",
  "weaknesses": "学生的薄弱点（中文自由文本）",
  "mastery": "weak | developing | proficient | advanced 之一",
  "breakdown": [{"topic": "知识点", "correct": 0, "total": 0}],
  "priorityTopics": ["按补习优先级排序的薄弱知识点"]
}
掌握良好（得分 7 分及以上）时 priorityTopics 应为空数组。`)

	return b.String()
}

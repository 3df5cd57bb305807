package service

import (
	"context"
	"encoding/json"
	"errors"
	"exam_hub_backend/internal/model"
	"exam_hub_backend/internal/repository"
	"exam_hub_backend/internal/util"
	"fmt"
	"strings"
	"time"
)

// 补救试卷题目写入的单事务批量上限。后端存储在长事务下容易锁超时，
// 小批量逐批提交把单个事务的持续时间压到最短。
const remediationQuestionBatchSize = 2

// RemediationService 自适应补救阶段：按薄弱知识点生成一份与原卷同形的新试卷，
// 并以 pending 状态指派给同一学生。
type RemediationService struct {
	ExamRepo       *repository.ExamRepository
	AssignmentRepo *repository.AssignmentRepository
	Generator      ContentGenerator
}

func NewRemediationService(
	examRepo *repository.ExamRepository,
	assignmentRepo *repository.AssignmentRepository,
	generator ContentGenerator,
) *RemediationService {
	return &RemediationService{
		ExamRepo:       examRepo,
		AssignmentRepo: assignmentRepo,
		Generator:      generator,
	}
}

type remediationQuestion struct {
	Content    string          `json:"content"`
	Options    json.RawMessage `json:"options"`
	Answer     string          `json:"answer"`
	Difficulty string          `json:"difficulty"`
	Topics     []string        `json:"topics"`
	Points     int             `json:"points"`
}

type remediationPayload struct {
	Questions []remediationQuestion `json:"questions"`
}

// EnsureRemediation 为一次作答生成补救试卷并指派。
// 同一来源已有已发布的补救试卷时直接返回既有试卷（无操作）——编排器在
// 故障恢复场景下可能被重复触发，这个查重是幂等性的硬性要求。
// 发布动作放在所有写入之后，is_published 即完成标记：查重命中一份
// 未发布的试卷说明上一次运行中途失败，从断点续写把它补完。
func (s *RemediationService) EnsureRemediation(ctx context.Context, snap *GradedSnapshot, analysis *model.ExamAnalysis) (*model.Exam, error) {
	exam, err := s.ExamRepo.FindRemediationBySource(snap.Assignment.ID)
	if err != nil {
		return nil, err
	}
	if exam != nil && exam.IsPublished {
		return exam, nil
	}

	topics := analysis.PriorityTopicList()
	if len(topics) == 0 {
		return nil, errors.New("no priority topics to remediate")
	}

	n := snap.Exam.QuestionCount
	if n <= 0 {
		n = len(snap.Questions)
	}

	var written int64
	if exam != nil {
		if written, err = s.ExamRepo.CountQuestions(exam.ID); err != nil {
			return nil, err
		}
	}

	// 题目没写够才需要生成；续写场景从这里补上缺口
	var questions []model.ExamQuestion
	if int(written) < n {
		brief := BuildRemediationBrief(snap, analysis, n)

		var payload remediationPayload
		if err := s.Generator.GenerateJSON(ctx, "remediation", brief, &payload); err != nil {
			return nil, err
		}
		if len(payload.Questions) == 0 {
			return nil, util.NewGenerationError("remediation", errors.New("no questions in payload"))
		}
		if len(payload.Questions) < n {
			return nil, util.NewGenerationError("remediation",
				fmt.Errorf("expected %d questions, got %d", n, len(payload.Questions)))
		}
		questions = s.normalizeQuestions(payload.Questions, topics, n)
	}

	// 两段提交：先单独提交试卷行拿到 id，再小批量逐批提交题目，
	// 避免把生成的整套题塞进一个长事务。
	if exam == nil {
		sourceAssignmentID := snap.Assignment.ID
		sourceAnalysisID := analysis.ID
		exam = &model.Exam{
			Title: fmt.Sprintf("补救练习：%s", snap.Exam.Title),
			Description: fmt.Sprintf("根据作答 %s 的分析自动生成，针对薄弱知识点：%s",
				snap.Assignment.ID, strings.Join(topics, "、")),
			Subject:            snap.Exam.Subject,
			Level:              snap.Exam.Level,
			TimeLimit:          snap.Exam.TimeLimit,
			PassingScore:       snap.Exam.PassingScore,
			CreatorID:          snap.Exam.CreatorID,
			SourceAssignmentID: &sourceAssignmentID,
			SourceAnalysisID:   &sourceAnalysisID,
		}
		if err := s.ExamRepo.CreateExam(exam); err != nil {
			return nil, err
		}
	}

	if len(questions) > 0 {
		if err := s.appendQuestions(exam.ID, questions); err != nil {
			return nil, err
		}
	}

	// 计数从持久化行回算：续写时前面的批次来自上一次生成的题目
	persisted, err := s.ExamRepo.ListQuestions(exam.ID)
	if err != nil {
		return nil, err
	}
	totalPoints := 0
	for _, q := range persisted {
		totalPoints += q.Points
	}
	if err := s.ExamRepo.UpdateExamCounters(exam.ID, len(persisted), totalPoints); err != nil {
		return nil, err
	}
	exam.QuestionCount = len(persisted)
	exam.TotalPoints = totalPoints

	followUp, err := s.AssignmentRepo.FindByExamAndStudent(exam.ID, snap.Assignment.StudentID)
	if err != nil {
		return nil, err
	}
	if followUp == nil {
		assignment := &model.ExamAssignment{
			ExamID:     exam.ID,
			StudentID:  snap.Assignment.StudentID,
			Status:     model.AssignmentPending,
			AssignedAt: time.Now(),
		}
		if err := s.AssignmentRepo.Create(assignment); err != nil {
			return nil, err
		}
	}

	if err := s.ExamRepo.PublishExam(exam.ID); err != nil {
		return nil, err
	}
	exam.IsPublished = true
	now := time.Now()
	exam.PublishedAt = &now

	return exam, nil
}

// appendQuestions 有界批量追加：从已写入的条数续写，重试不会产生重复行
func (s *RemediationService) appendQuestions(examID string, questions []model.ExamQuestion) error {
	written, err := s.ExamRepo.CountQuestions(examID)
	if err != nil {
		return err
	}

	for i := int(written); i < len(questions); i += remediationQuestionBatchSize {
		end := i + remediationQuestionBatchSize
		if end > len(questions) {
			end = len(questions)
		}
		batch := make([]model.ExamQuestion, end-i)
		copy(batch, questions[i:end])
		for j := range batch {
			batch[j].ExamID = examID
			batch[j].Order = i + j + 1
		}
		if err := s.ExamRepo.CreateQuestionBatch(batch); err != nil {
			return err
		}
	}
	return nil
}

// normalizeQuestions 把模型输出修整成恰好 n 道、难度配比 40/40/20 的题目。
// 多给的截断，难度非法的按配比改写，知识点缺失的补上薄弱知识点。
func (s *RemediationService) normalizeQuestions(raw []remediationQuestion, topics []string, n int) []model.ExamQuestion {
	if len(raw) > n {
		raw = raw[:n]
	}

	targets := DifficultyMix(n)
	counts := map[model.QuestionDifficulty]int{}

	out := make([]model.ExamQuestion, 0, len(raw))
	for i, rq := range raw {
		difficulty := model.QuestionDifficulty(rq.Difficulty)
		switch difficulty {
		case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
		default:
			difficulty = ""
		}
		if difficulty == "" || counts[difficulty] >= targets[difficulty] {
			difficulty = nextOpenSlot(targets, counts)
		}
		counts[difficulty]++

		qTopics := rq.Topics
		if len(qTopics) == 0 {
			qTopics = []string{topics[i%len(topics)]}
		}

		points := rq.Points
		if points <= 0 {
			points = 1
		}

		out = append(out, model.ExamQuestion{
			Content:    strings.TrimSpace(rq.Content),
			Options:    rq.Options,
			Answer:     rq.Answer,
			Difficulty: difficulty,
			Topics:     model.JoinTopics(qTopics),
			Points:     points,
		})
	}
	return out
}

// DifficultyMix 40% 简单 / 40% 中等 / 20% 困难的目标配比，余数归到困难档
func DifficultyMix(n int) map[model.QuestionDifficulty]int {
	easy := n * 2 / 5
	medium := n * 2 / 5
	return map[model.QuestionDifficulty]int{
		model.DifficultyEasy:   easy,
		model.DifficultyMedium: medium,
		model.DifficultyHard:   n - easy - medium,
	}
}

func nextOpenSlot(targets, counts map[model.QuestionDifficulty]int) model.QuestionDifficulty {
	for _, d := range []model.QuestionDifficulty{model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard} {
		if counts[d] < targets[d] {
			return d
		}
	}
	return model.DifficultyMedium
}

// BuildRemediationBrief 生成补救试卷的简报：同形试卷 + 薄弱知识点偏置
func BuildRemediationBrief(snap *GradedSnapshot, analysis *model.ExamAnalysis, n int) string {
	var b strings.Builder

	topics := analysis.PriorityTopicList()
	mix := DifficultyMix(n)

	fmt.Fprintf(&b, "请为一名学生生成一份补救练习试卷。\n")
	fmt.Fprintf(&b, "原试卷：%s（科目 %s，级别 %s，共 %d 题，限时 %d 分钟）。\n",
		snap.Exam.Title, snap.Exam.Subject, snap.Exam.Level, n, snap.Exam.TimeLimit)
	fmt.Fprintf(&b, "学生的薄弱知识点（按优先级）：%s。\n", strings.Join(topics, "、"))
	fmt.Fprintf(&b, "薄弱点描述：%s\n\n", analysis.Weaknesses)
	fmt.Fprintf(&b, "要求：恰好 %d 道题；难度配比 %d 道 easy、%d 道 medium、%d 道 hard；",
		n, mix[model.DifficultyEasy], mix[model.DifficultyMedium], mix[model.DifficultyHard])
	b.WriteString("每道题的知识点标签从上述薄弱知识点中选取。\n")

	b.WriteString(`
返回 JSON 对象，字段如下：
{
  "questions": [
    {
      "content": "题干",
      "options": {"A": "...", "B": "...", "C": "...", "D": "..."},
      "answer": "正确答案",
      "difficulty": "easy | medium | hard",
      "topics": ["知识点"],
      "points": 1
    }
  ]
}`)

	return b.String()
}

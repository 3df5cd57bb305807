package service

import (
	"context"
	"fmt"
	"testing"

	"exam_hub_backend/internal/model"
	"exam_hub_backend/internal/repository"
	"exam_hub_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDifficultyMix(t *testing.T) {
	tests := []struct {
		n                  int
		easy, medium, hard int
	}{
		{10, 4, 4, 2},
		{5, 2, 2, 1},
		{4, 1, 1, 2},
		{2, 0, 0, 2},
		{1, 0, 0, 1},
		{0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d", tt.n), func(t *testing.T) {
			mix := DifficultyMix(tt.n)
			assert.Equal(t, tt.easy, mix[model.DifficultyEasy])
			assert.Equal(t, tt.medium, mix[model.DifficultyMedium])
			assert.Equal(t, tt.hard, mix[model.DifficultyHard])
			assert.Equal(t, tt.n, mix[model.DifficultyEasy]+mix[model.DifficultyMedium]+mix[model.DifficultyHard])
		})
	}
}

func TestNormalizeQuestionsEnforcesMix(t *testing.T) {
	svc := &RemediationService{}
	topics := []string{"方程", "不等式"}

	// 模型全给 hard，还多给了两道
	raw := make([]remediationQuestion, 12)
	for i := range raw {
		raw[i] = remediationQuestion{
			Content:    fmt.Sprintf("题 %d", i+1),
			Answer:     "x",
			Difficulty: "hard",
		}
	}

	out := svc.normalizeQuestions(raw, topics, 10)
	require.Len(t, out, 10, "多给的题被截断")

	counts := map[model.QuestionDifficulty]int{}
	for _, q := range out {
		counts[q.Difficulty]++
		assert.NotEmpty(t, q.Topics, "缺失的知识点用薄弱知识点补齐")
		assert.Equal(t, 1, q.Points, "非法分值回落到 1 分")
	}
	assert.Equal(t, 4, counts[model.DifficultyEasy])
	assert.Equal(t, 4, counts[model.DifficultyMedium])
	assert.Equal(t, 2, counts[model.DifficultyHard])
}

func TestNormalizeQuestionsKeepsValidDifficulty(t *testing.T) {
	svc := &RemediationService{}

	raw := []remediationQuestion{
		{Content: "a", Answer: "x", Difficulty: "medium", Topics: []string{"方程"}, Points: 2},
		{Content: "b", Answer: "y", Difficulty: "bogus"},
	}

	out := svc.normalizeQuestions(raw, []string{"方程"}, 5)
	require.Len(t, out, 2)
	// 合法且配额未满的难度保持不变
	assert.Equal(t, model.DifficultyMedium, out[0].Difficulty)
	assert.Equal(t, 2, out[0].Points)
	// 非法难度落入第一个未满的档位
	assert.Equal(t, model.DifficultyEasy, out[1].Difficulty)
}

func TestAppendQuestionsResumesFromPersistedCount(t *testing.T) {
	db := newTestDB(t)
	examRepo := repository.NewExamRepository(db)
	svc := &RemediationService{ExamRepo: examRepo}

	exam := &model.Exam{Title: "断点续写"}
	require.NoError(t, examRepo.CreateExam(exam))

	questions := make([]model.ExamQuestion, 7)
	for i := range questions {
		questions[i] = model.ExamQuestion{
			Content:    fmt.Sprintf("题 %d", i+1),
			Answer:     "x",
			Difficulty: model.DifficultyMedium,
			Points:     1,
		}
	}

	// 模拟一次中断：前 3 道已经写入
	first := make([]model.ExamQuestion, 3)
	copy(first, questions[:3])
	for j := range first {
		first[j].ExamID = exam.ID
		first[j].Order = j + 1
	}
	require.NoError(t, examRepo.CreateQuestionBatch(first))

	// 重跑追加：从断点续写，不产生重复
	require.NoError(t, svc.appendQuestions(exam.ID, questions))

	persisted, err := examRepo.ListQuestions(exam.ID)
	require.NoError(t, err)
	require.Len(t, persisted, 7)
	for i, q := range persisted {
		assert.Equal(t, i+1, q.Order)
		assert.Equal(t, fmt.Sprintf("题 %d", i+1), q.Content)
	}
}

func TestEnsureRemediationUsesSourceShape(t *testing.T) {
	db := newTestDB(t)
	snap := gradeAssignment(t, db, 3)

	analysisRepo := repository.NewAnalysisRepository(db)
	analysis := &model.ExamAnalysis{
		AssignmentID:   snap.Assignment.ID,
		Strengths:      "函数",
		Weaknesses:     "方程与不等式",
		Mastery:        model.MasteryWeak,
		PriorityTopics: "方程,不等式",
	}
	require.NoError(t, analysisRepo.Replace(analysis))

	gen := &fakeGenerator{payloads: map[string]string{"remediation": remediationPayload10}}
	svc := NewRemediationService(repository.NewExamRepository(db), repository.NewAssignmentRepository(db), gen)

	exam, err := svc.EnsureRemediation(context.Background(), &snap, analysis)
	require.NoError(t, err)

	assert.Equal(t, snap.Exam.Subject, exam.Subject)
	assert.Equal(t, snap.Exam.Level, exam.Level)
	assert.Equal(t, snap.Exam.TimeLimit, exam.TimeLimit)
	assert.Equal(t, snap.Exam.PassingScore, exam.PassingScore)
	assert.Equal(t, 10, exam.QuestionCount)
	assert.Equal(t, 10, exam.TotalPoints)
	assert.Contains(t, exam.Description, snap.Assignment.ID, "描述里记录来源作答")
	assert.True(t, exam.IsRemediation())

	// 再次调用是无操作，返回既有试卷
	again, err := svc.EnsureRemediation(context.Background(), &snap, analysis)
	require.NoError(t, err)
	assert.Equal(t, exam.ID, again.ID)
	assert.Equal(t, []string{"remediation"}, gen.calls, "第二次不再调用生成器")
}

func TestEnsureRemediationResumesPartialExam(t *testing.T) {
	db := newTestDB(t)
	snap := gradeAssignment(t, db, 3)

	// 上一次运行在题目批次中途失败留下的半成品：试卷行已建、只写入
	// 2 道题、计数未回填、没有指派、未发布
	examRepo := repository.NewExamRepository(db)
	sourceID := snap.Assignment.ID
	partial := &model.Exam{
		Title:              "补救练习：" + snap.Exam.Title,
		Subject:            snap.Exam.Subject,
		CreatorID:          snap.Exam.CreatorID,
		SourceAssignmentID: &sourceID,
	}
	require.NoError(t, examRepo.CreateExam(partial))
	stub := []model.ExamQuestion{
		{ExamID: partial.ID, Order: 1, Content: "旧题 1", Answer: "x", Difficulty: model.DifficultyEasy, Points: 1},
		{ExamID: partial.ID, Order: 2, Content: "旧题 2", Answer: "y", Difficulty: model.DifficultyEasy, Points: 1},
	}
	require.NoError(t, examRepo.CreateQuestionBatch(stub))

	// 半成品对学生不可见
	assignmentSvc := newAssignmentService(db, nil)
	status, err := assignmentSvc.GetRemediationStatus(1, snap.Assignment.ID)
	require.NoError(t, err)
	assert.False(t, status.Ready, "未发布的半成品不算就绪")

	// 故障恢复重新触发整条流水线
	gen := &fakeGenerator{payloads: map[string]string{
		"analysis":    analysisPayloadWeak,
		"remediation": remediationPayload10,
	}}
	pipeline := newPipeline(db, gen)
	pipeline.Run(context.Background(), &snap)

	var exam model.Exam
	require.NoError(t, db.First(&exam, "source_assignment_id = ?", snap.Assignment.ID).Error)
	assert.Equal(t, partial.ID, exam.ID, "续写既有试卷，不另建新卷")
	assert.True(t, exam.IsPublished)
	assert.Equal(t, 10, exam.QuestionCount)
	assert.Equal(t, 10, exam.TotalPoints)

	persisted, err := examRepo.ListQuestions(exam.ID)
	require.NoError(t, err)
	require.Len(t, persisted, 10)
	assert.Equal(t, "旧题 1", persisted[0].Content, "已写入的前缀保持不动")
	for i, q := range persisted {
		assert.Equal(t, i+1, q.Order)
	}

	var followUp model.ExamAssignment
	require.NoError(t, db.First(&followUp, "exam_id = ?", exam.ID).Error)
	assert.Equal(t, snap.Assignment.StudentID, followUp.StudentID)
	assert.Equal(t, model.AssignmentPending, followUp.Status)

	status, err = assignmentSvc.GetRemediationStatus(1, snap.Assignment.ID)
	require.NoError(t, err)
	assert.True(t, status.Ready)
	require.NotNil(t, status.Assignment)
	assert.Equal(t, followUp.ID, status.Assignment.ID)
}

func TestEnsureRemediationRejectsShortPayload(t *testing.T) {
	db := newTestDB(t)
	snap := gradeAssignment(t, db, 3)

	analysisRepo := repository.NewAnalysisRepository(db)
	analysis := &model.ExamAnalysis{
		AssignmentID:   snap.Assignment.ID,
		Weaknesses:     "方程",
		Mastery:        model.MasteryWeak,
		PriorityTopics: "方程",
	}
	require.NoError(t, analysisRepo.Replace(analysis))

	short := `{"questions": [{"content": "只有一道", "answer": "x", "difficulty": "easy", "points": 1}]}`
	gen := &fakeGenerator{payloads: map[string]string{"remediation": short}}
	svc := NewRemediationService(repository.NewExamRepository(db), repository.NewAssignmentRepository(db), gen)

	_, err := svc.EnsureRemediation(context.Background(), &snap, analysis)
	require.Error(t, err)
	assert.True(t, util.IsGenerationError(err), "数量不足按生成失败处理")

	var examCount int64
	db.Model(&model.Exam{}).Where("source_assignment_id = ?", snap.Assignment.ID).Count(&examCount)
	assert.Equal(t, int64(0), examCount, "生成失败不留下试卷行")
}

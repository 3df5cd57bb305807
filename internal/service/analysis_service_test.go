package service

import (
	"context"
	"testing"

	"exam_hub_backend/internal/model"
	"exam_hub_backend/internal/repository"
	"exam_hub_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTopicBreakdown(t *testing.T) {
	db := newTestDB(t)
	snap := gradeAssignment(t, db, 3) // 前 3 题（都是"方程"）答对

	breakdown := ComputeTopicBreakdown(&snap)

	byTopic := map[string]model.TopicBreakdown{}
	for _, b := range breakdown {
		byTopic[b.Topic] = b
	}

	assert.Equal(t, model.TopicBreakdown{Topic: "方程", Correct: 3, Total: 3}, byTopic["方程"])
	assert.Equal(t, model.TopicBreakdown{Topic: "不等式", Correct: 0, Total: 3}, byTopic["不等式"])
	assert.Equal(t, model.TopicBreakdown{Topic: "函数", Correct: 0, Total: 4}, byTopic["函数"])
}

func TestBuildAnalysisNormalizesPayload(t *testing.T) {
	db := newTestDB(t)
	snap := gradeAssignment(t, db, 3)
	svc := NewAnalysisService(repository.NewAnalysisRepository(db), nil)

	// 非法的掌握等级回落到 developing，缺失的统计自算
	analysis, err := svc.buildAnalysis(&snap, &analysisPayload{
		Strengths:  "方程掌握不错",
		Weaknesses: "其余薄弱",
		Mastery:    "superb",
	})
	require.NoError(t, err)
	assert.Equal(t, model.MasteryDeveloping, analysis.Mastery)
	assert.NotEmpty(t, analysis.TopicBreakdownList())

	// 优先知识点保持顺序
	analysis, err = svc.buildAnalysis(&snap, &analysisPayload{
		Weaknesses:     "全面薄弱",
		Mastery:        "weak",
		PriorityTopics: []string{"函数", "不等式", "方程"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"函数", "不等式", "方程"}, analysis.PriorityTopicList())
}

func TestBuildAnalysisRejectsEmptyPayload(t *testing.T) {
	db := newTestDB(t)
	snap := gradeAssignment(t, db, 3)
	svc := NewAnalysisService(repository.NewAnalysisRepository(db), nil)

	_, err := svc.buildAnalysis(&snap, &analysisPayload{Strengths: "  ", Weaknesses: ""})
	assert.True(t, util.IsGenerationError(err), "空白分析视为生成失败")
}

func TestGenerateAndReplaceKeepsSingleRow(t *testing.T) {
	db := newTestDB(t)
	snap := gradeAssignment(t, db, 3)

	gen := &fakeGenerator{payloads: map[string]string{"analysis": analysisPayloadWeak}}
	svc := NewAnalysisService(repository.NewAnalysisRepository(db), gen)

	first, err := svc.GenerateAndReplace(context.Background(), &snap)
	require.NoError(t, err)

	second, err := svc.GenerateAndReplace(context.Background(), &snap)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "重新生成产生新行")

	var count int64
	db.Model(&model.ExamAnalysis{}).Where("assignment_id = ?", snap.Assignment.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestExtractJSONObject(t *testing.T) {
	const want = `{"a":1}`

	assert.Equal(t, want, ExtractJSONObject(want))
	assert.Equal(t, want, ExtractJSONObject("```json\n{\"a\":1}\n```"))
	assert.Equal(t, want, ExtractJSONObject("前置说明 {\"a\":1} 后置说明"))
	assert.Equal(t, "", ExtractJSONObject("没有任何对象"))
}

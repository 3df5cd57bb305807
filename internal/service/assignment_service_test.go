package service

import (
	"testing"

	"exam_hub_backend/internal/model"
	"exam_hub_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartAssignment(t *testing.T) {
	db := newTestDB(t)
	_, _, assignment := seedExamWithAssignment(t, db)
	svc := newAssignmentService(db, nil)

	started, err := svc.Start(1, assignment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentInProgress, started.Status)
	assert.NotNil(t, started.StartedAt)

	// 重复开始：in_progress 不允许再次迁移到 in_progress
	_, err = svc.Start(1, assignment.ID)
	assert.ErrorIs(t, err, util.ErrInvalidTransition)
}

func TestStartAssignmentOwnership(t *testing.T) {
	db := newTestDB(t)
	_, _, assignment := seedExamWithAssignment(t, db)
	svc := newAssignmentService(db, nil)

	_, err := svc.Start(99, assignment.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = svc.Start(1, "no-such-assignment")
	assert.ErrorIs(t, err, util.ErrAssignmentNotFound)
}

func TestSubmitAnswerNormalization(t *testing.T) {
	db := newTestDB(t)
	_, questions, assignment := seedExamWithAssignment(t, db)
	svc := newAssignmentService(db, nil)

	_, err := svc.Start(1, assignment.ID)
	require.NoError(t, err)

	// 首尾空白和大小写不影响判分
	ans, err := svc.SubmitAnswer(1, assignment.ID, questions[0].ID, "  ANSWER-1 ")
	require.NoError(t, err)
	assert.True(t, ans.IsCorrect)
	assert.Equal(t, 1, ans.AwardedPoints)

	// 重复提交覆盖旧答案
	ans, err = svc.SubmitAnswer(1, assignment.ID, questions[0].ID, "wrong")
	require.NoError(t, err)
	assert.False(t, ans.IsCorrect)

	var count int64
	db.Model(&model.AssignmentAnswer{}).
		Where("assignment_id = ? AND question_id = ?", assignment.ID, questions[0].ID).
		Count(&count)
	assert.Equal(t, int64(1), count, "同一题只保留一行")
}

func TestSubmitAnswerRequiresInProgress(t *testing.T) {
	db := newTestDB(t)
	_, questions, assignment := seedExamWithAssignment(t, db)
	svc := newAssignmentService(db, nil)

	// pending 状态不接受作答
	_, err := svc.SubmitAnswer(1, assignment.ID, questions[0].ID, "x")
	assert.ErrorIs(t, err, util.ErrInvalidTransition)
}

func TestFinalize(t *testing.T) {
	db := newTestDB(t)
	_, questions, assignment := seedExamWithAssignment(t, db)
	svc := newAssignmentService(db, nil)

	_, err := svc.Start(1, assignment.ID)
	require.NoError(t, err)

	// 答对 7 题
	for i := 0; i < 7; i++ {
		_, err := svc.SubmitAnswer(1, assignment.ID, questions[i].ID, questions[i].Answer)
		require.NoError(t, err)
	}

	result, err := svc.Finalize(1, assignment.ID)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, result.Grade, 1e-9)
	assert.True(t, result.Passed)
	assert.Equal(t, 7, result.CorrectCount)
	assert.Equal(t, 10, result.TotalQuestions)

	var persisted model.ExamAssignment
	require.NoError(t, db.First(&persisted, "id = ?", assignment.ID).Error)
	assert.Equal(t, model.AssignmentGraded, persisted.Status)
	assert.Equal(t, 7, persisted.PointsObtained)
	assert.True(t, persisted.Passed)
	assert.NotNil(t, persisted.GradedAt)

	// graded 是终态，重复交卷被拒绝
	_, err = svc.Finalize(1, assignment.ID)
	assert.ErrorIs(t, err, util.ErrInvalidTransition)
}

func TestFinalizeBeforeStart(t *testing.T) {
	db := newTestDB(t)
	_, _, assignment := seedExamWithAssignment(t, db)
	svc := newAssignmentService(db, nil)

	_, err := svc.Finalize(1, assignment.ID)
	assert.ErrorIs(t, err, util.ErrInvalidTransition)
}

func TestGetDetailHidesAnswersUntilGraded(t *testing.T) {
	db := newTestDB(t)
	_, questions, assignment := seedExamWithAssignment(t, db)
	svc := newAssignmentService(db, nil)

	_, err := svc.Start(1, assignment.ID)
	require.NoError(t, err)

	detail, err := svc.GetDetail(1, assignment.ID)
	require.NoError(t, err)
	for _, q := range detail.Questions {
		assert.Nil(t, q.Answer, "交卷前不返回标准答案")
	}

	_, err = svc.SubmitAnswer(1, assignment.ID, questions[0].ID, questions[0].Answer)
	require.NoError(t, err)
	_, err = svc.Finalize(1, assignment.ID)
	require.NoError(t, err)

	detail, err = svc.GetDetail(1, assignment.ID)
	require.NoError(t, err)
	require.NotEmpty(t, detail.Questions)
	assert.NotNil(t, detail.Questions[0].Answer)
	if assert.NotNil(t, detail.Questions[0].IsCorrect) {
		assert.True(t, *detail.Questions[0].IsCorrect)
	}
}

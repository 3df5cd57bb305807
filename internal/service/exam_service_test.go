package service

import (
	"fmt"
	"testing"

	"exam_hub_backend/internal/model"
	"exam_hub_backend/internal/repository"
	"exam_hub_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExamService(t *testing.T) *ExamService {
	t.Helper()
	db := newTestDB(t)
	return NewExamService(
		repository.NewExamRepository(db),
		repository.NewAssignmentRepository(db),
		repository.NewUserRepository(db),
	)
}

func examRequest(n int) CreateExamRequest {
	req := CreateExamRequest{
		Title:        "物理期中",
		Subject:      "物理",
		Level:        "中级",
		TimeLimit:    45,
		PassingScore: 6.0,
	}
	for i := 0; i < n; i++ {
		req.Questions = append(req.Questions, QuestionInput{
			Content: fmt.Sprintf("第 %d 题", i+1),
			Answer:  fmt.Sprintf("a%d", i+1),
			Topics:  []string{"力学"},
			Points:  2,
		})
	}
	return req
}

func TestCreateExamBackfillsCounters(t *testing.T) {
	svc := newExamService(t)

	exam, err := svc.Create(2, examRequest(5))
	require.NoError(t, err)
	assert.Equal(t, 5, exam.QuestionCount)
	assert.Equal(t, 10, exam.TotalPoints)
	assert.False(t, exam.IsPublished)
	assert.False(t, exam.IsRemediation())

	questions, err := svc.Repo.ListQuestions(exam.ID)
	require.NoError(t, err)
	require.Len(t, questions, 5)
	for i, q := range questions {
		assert.Equal(t, i+1, q.Order)
		assert.Equal(t, model.DifficultyMedium, q.Difficulty, "缺省难度为 medium")
	}
}

func TestGetExamHidesAnswersForStudents(t *testing.T) {
	svc := newExamService(t)

	exam, err := svc.Create(2, examRequest(3))
	require.NoError(t, err)

	detail, err := svc.Get(exam.ID, false)
	require.NoError(t, err)
	for _, q := range detail.Questions {
		assert.Empty(t, q.Answer)
	}

	detail, err = svc.Get(exam.ID, true)
	require.NoError(t, err)
	for _, q := range detail.Questions {
		assert.NotEmpty(t, q.Answer)
	}
}

func TestPublishExamPermissions(t *testing.T) {
	svc := newExamService(t)

	exam, err := svc.Create(2, examRequest(3))
	require.NoError(t, err)

	// 别的教师不能发布
	err = svc.Publish(exam.ID, 3, false)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	// 管理员可以
	require.NoError(t, svc.Publish(exam.ID, 99, true))

	got, err := svc.Repo.FindExamByID(exam.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPublished)
	assert.NotNil(t, got.PublishedAt)
}

func TestAssignExam(t *testing.T) {
	svc := newExamService(t)
	db := svc.Repo.DB

	// User 的列类型面向 MySQL，这里手建同名表
	require.NoError(t, db.Exec(`CREATE TABLE users (
		id integer PRIMARY KEY AUTOINCREMENT,
		created_at datetime, updated_at datetime, deleted_at datetime,
		name text, email text, password text, role text,
		language text, avatar text, disabled boolean DEFAULT false, last_login datetime
	)`).Error)
	require.NoError(t, db.Exec(
		"INSERT INTO users (name, email, password, role) VALUES (?, ?, ?, ?)",
		"小明", "student@example.com", "x", "student").Error)
	var student model.User
	require.NoError(t, db.Raw("SELECT id, role FROM users WHERE email = ?", "student@example.com").Scan(&student).Error)

	exam, err := svc.Create(2, examRequest(3))
	require.NoError(t, err)

	// 未发布的试卷不能布置
	_, err = svc.Assign(exam.ID, student.ID)
	assert.ErrorIs(t, err, util.ErrExamNotPublished)

	require.NoError(t, svc.Publish(exam.ID, 2, false))

	first, err := svc.Assign(exam.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentPending, first.Status)

	// 重复布置返回既有记录
	second, err := svc.Assign(exam.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

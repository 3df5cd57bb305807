package service

import (
	"exam_hub_backend/internal/model"
	"strings"
	"time"
)

// GradedAnswer 单题评分结果
type GradedAnswer struct {
	QuestionID    string
	IsCorrect     bool
	AwardedPoints int
}

// GradeResult 一次作答的完整评分
type GradeResult struct {
	PointsObtained int
	PointsPossible int
	Grade          float64 // 0-10 分制
	Passed         bool
	CorrectCount   int
	ElapsedMinutes *int
	Answers        []GradedAnswer
}

// AnswerMatches 判分比对：去首尾空白、忽略大小写，完全一致才得分
func AnswerMatches(submitted, expected string) bool {
	return strings.TrimSpace(strings.ToLower(submitted)) == strings.TrimSpace(strings.ToLower(expected))
}

// GradeSubmission 纯计算的评分引擎：答对得满分值，答错或未答得 0。
// grade = obtained / possible * 10（possible 为 0 时记 0 分），
// passed = grade >= 试卷及格线。
func GradeSubmission(exam *model.Exam, questions []model.ExamQuestion, answers []model.AssignmentAnswer, startedAt *time.Time, gradedAt time.Time) GradeResult {
	answerByQuestion := make(map[string]*model.AssignmentAnswer, len(answers))
	for i := range answers {
		answerByQuestion[answers[i].QuestionID] = &answers[i]
	}

	res := GradeResult{
		PointsPossible: exam.TotalPoints,
		Answers:        make([]GradedAnswer, 0, len(questions)),
	}

	for _, q := range questions {
		graded := GradedAnswer{QuestionID: q.ID}
		if ans, ok := answerByQuestion[q.ID]; ok && AnswerMatches(ans.Value, q.Answer) {
			graded.IsCorrect = true
			graded.AwardedPoints = q.Points
			res.PointsObtained += q.Points
			res.CorrectCount++
		}
		res.Answers = append(res.Answers, graded)
	}

	if res.PointsPossible > 0 {
		res.Grade = float64(res.PointsObtained) / float64(res.PointsPossible) * 10
	}
	res.Passed = res.Grade >= exam.PassingScore

	if startedAt != nil {
		minutes := int(gradedAt.Sub(*startedAt) / time.Minute)
		res.ElapsedMinutes = &minutes
	}

	return res
}

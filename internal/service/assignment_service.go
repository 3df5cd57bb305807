package service

import (
	"encoding/json"
	"exam_hub_backend/internal/model"
	"exam_hub_backend/internal/repository"
	"exam_hub_backend/internal/util"
	"exam_hub_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
)

// AssignmentService 作答生命周期的状态机：pending → in_progress → graded。
// 所有状态写入都走仓储层的条件更新，并发调用只有一方成功。
type AssignmentService struct {
	Repo         *repository.AssignmentRepository
	ExamRepo     *repository.ExamRepository
	Orchestrator *PostAssessmentService
}

func NewAssignmentService(
	repo *repository.AssignmentRepository,
	examRepo *repository.ExamRepository,
	orchestrator *PostAssessmentService,
) *AssignmentService {
	return &AssignmentService{
		Repo:         repo,
		ExamRepo:     examRepo,
		Orchestrator: orchestrator,
	}
}

func (s *AssignmentService) findOwned(studentID uint, assignmentID string) (*model.ExamAssignment, error) {
	assignment, err := s.Repo.FindByID(assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, util.ErrAssignmentNotFound
	}
	if assignment.StudentID != studentID {
		return nil, util.ErrPermissionDenied
	}
	return assignment, nil
}

// Start 开始作答。仅允许 pending → in_progress，其余状态返回非法迁移。
func (s *AssignmentService) Start(studentID uint, assignmentID string) (*model.ExamAssignment, error) {
	assignment, err := s.findOwned(studentID, assignmentID)
	if err != nil {
		return nil, err
	}

	ok, err := s.Repo.MarkInProgress(assignment.ID, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, util.ErrInvalidTransition
	}

	return s.Repo.FindByID(assignment.ID)
}

// SubmitAnswer 记录单题作答，(assignment, question) 唯一，重复提交覆盖。
// 正误与得分在提交时即按标准答案算好。
func (s *AssignmentService) SubmitAnswer(studentID uint, assignmentID, questionID, value string) (*model.AssignmentAnswer, error) {
	assignment, err := s.findOwned(studentID, assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.Status != model.AssignmentInProgress {
		return nil, util.ErrInvalidTransition
	}

	questions, err := s.ExamRepo.ListQuestions(assignment.ExamID)
	if err != nil {
		return nil, err
	}

	var question *model.ExamQuestion
	for i := range questions {
		if questions[i].ID == questionID {
			question = &questions[i]
			break
		}
	}
	if question == nil {
		return nil, util.ErrExamNotFound
	}

	ans := &model.AssignmentAnswer{
		AssignmentID: assignment.ID,
		QuestionID:   questionID,
		Value:        value,
	}
	if AnswerMatches(value, question.Answer) {
		ans.IsCorrect = true
		ans.AwardedPoints = question.Points
	}

	if err := s.Repo.UpsertAnswer(ans); err != nil {
		return nil, err
	}
	return ans, nil
}

// FinalizeResult 交卷的同步返回。分析与补救稍后异步完成，需另行轮询。
type FinalizeResult struct {
	Grade          float64 `json:"grade"`
	Passed         bool    `json:"passed"`
	CorrectCount   int     `json:"correctCount"`
	TotalQuestions int     `json:"totalQuestions"`
}

// Finalize 交卷并评分。仅允许 in_progress → graded；并发交卷由状态列上的
// 比较交换裁决，落选方得到非法迁移错误。评分结果写入后不再改动，
// 评分后的流水线作为后台任务入队，携带这里抓取的完整快照。
func (s *AssignmentService) Finalize(studentID uint, assignmentID string) (*FinalizeResult, error) {
	assignment, err := s.findOwned(studentID, assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.Status != model.AssignmentInProgress {
		return nil, util.ErrInvalidTransition
	}

	exam, err := s.ExamRepo.FindExamByID(assignment.ExamID)
	if err != nil {
		return nil, err
	}
	if exam == nil {
		return nil, util.ErrExamNotFound
	}

	questions, err := s.ExamRepo.ListQuestions(exam.ID)
	if err != nil {
		return nil, err
	}
	answers, err := s.Repo.ListAnswers(assignment.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result := GradeSubmission(exam, questions, answers, assignment.StartedAt, now)

	assignment.Status = model.AssignmentGraded
	assignment.CompletedAt = &now
	assignment.GradedAt = &now
	assignment.PointsObtained = result.PointsObtained
	assignment.PointsPossible = result.PointsPossible
	assignment.Grade = result.Grade
	assignment.Passed = result.Passed
	assignment.ElapsedMinutes = result.ElapsedMinutes
	assignment.CorrectCount = result.CorrectCount

	ok, err := s.Repo.MarkGraded(assignment)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 另一个并发的 Finalize 先写入了 graded
		return nil, util.ErrInvalidTransition
	}

	// 评分数据已落库，流水线入队失败不影响同步返回
	if s.Orchestrator != nil {
		snapshot := GradedSnapshot{
			Assignment: *assignment,
			Exam:       *exam,
			Questions:  questions,
			Answers:    answers,
		}
		if err := s.Orchestrator.Enqueue(snapshot); err != nil {
			logger.Log.Error("failed to enqueue post-assessment pipeline",
				zap.String("assignmentId", assignment.ID),
				zap.Error(err))
		}
	}

	return &FinalizeResult{
		Grade:          result.Grade,
		Passed:         result.Passed,
		CorrectCount:   result.CorrectCount,
		TotalQuestions: len(questions),
	}, nil
}

// StudentAssignmentDetail 学生视角的作答详情
type StudentAssignmentDetail struct {
	Assignment *model.ExamAssignment `json:"assignment"`
	Exam       *model.Exam           `json:"exam"`
	Questions  []StudentQuestionView `json:"questions"`
}

type StudentQuestionView struct {
	ID         string          `json:"id"`
	Content    string          `json:"content"`
	Options    json.RawMessage `json:"options,omitempty"`
	Points     int             `json:"points"`
	Order      int             `json:"order"`
	Topics     string          `json:"topics"`
	Difficulty string          `json:"difficulty"`
	// graded 之后才返回
	Answer    *string `json:"answer,omitempty"`
	Value     *string `json:"value,omitempty"`
	IsCorrect *bool   `json:"isCorrect,omitempty"`
}

// GetDetail 作答详情。标准答案只在 graded 之后返回。
func (s *AssignmentService) GetDetail(studentID uint, assignmentID string) (*StudentAssignmentDetail, error) {
	assignment, err := s.findOwned(studentID, assignmentID)
	if err != nil {
		return nil, err
	}

	exam, err := s.ExamRepo.FindExamByID(assignment.ExamID)
	if err != nil {
		return nil, err
	}

	questions, err := s.ExamRepo.ListQuestions(assignment.ExamID)
	if err != nil {
		return nil, err
	}

	ansMap := make(map[string]model.AssignmentAnswer)
	if assignment.Status == model.AssignmentGraded {
		answers, err := s.Repo.ListAnswers(assignment.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range answers {
			ansMap[a.QuestionID] = a
		}
	}

	views := make([]StudentQuestionView, len(questions))
	for i, q := range questions {
		view := StudentQuestionView{
			ID:         q.ID,
			Content:    q.Content,
			Options:    q.Options,
			Points:     q.Points,
			Order:      q.Order,
			Topics:     q.Topics,
			Difficulty: string(q.Difficulty),
		}
		if assignment.Status == model.AssignmentGraded {
			answer := q.Answer
			view.Answer = &answer
			if a, ok := ansMap[q.ID]; ok {
				value := a.Value
				isCorrect := a.IsCorrect
				view.Value = &value
				view.IsCorrect = &isCorrect
			}
		}
		views[i] = view
	}

	return &StudentAssignmentDetail{
		Assignment: assignment,
		Exam:       exam,
		Questions:  views,
	}, nil
}

func (s *AssignmentService) ListByStudent(studentID uint, page, limit int) ([]model.ExamAssignment, int64, error) {
	return s.Repo.ListByStudent(studentID, page, limit)
}

// RemediationStatus 轮询某次作答是否已生成补救试卷。流水线是异步的，
// ready 为 false 只说明还没生成（或不需要生成），不代表失败。
type RemediationStatus struct {
	Ready      bool                  `json:"ready"`
	Exam       *model.Exam           `json:"exam,omitempty"`
	Assignment *model.ExamAssignment `json:"assignment,omitempty"`
}

func (s *AssignmentService) GetRemediationStatus(studentID uint, assignmentID string) (*RemediationStatus, error) {
	if _, err := s.findOwned(studentID, assignmentID); err != nil {
		return nil, err
	}

	exam, err := s.ExamRepo.FindRemediationBySource(assignmentID)
	if err != nil {
		return nil, err
	}
	// 发布即完成标记：未发布的试卷是中途失败的半成品，等恢复重跑补完
	if exam == nil || !exam.IsPublished {
		return &RemediationStatus{Ready: false}, nil
	}

	followUp, err := s.Repo.FindByExamAndStudent(exam.ID, studentID)
	if err != nil {
		return nil, err
	}
	return &RemediationStatus{Ready: true, Exam: exam, Assignment: followUp}, nil
}

package service

import (
	"encoding/json"
	"exam_hub_backend/internal/model"
	"exam_hub_backend/internal/repository"
	"exam_hub_backend/internal/util"
	"time"
)

// examQuestionBatchSize 教师建卷时题目的分批提交大小，
// 与补救试卷的批量写入保持同一约束：短事务、可断点续写。
const examQuestionBatchSize = 2

type ExamService struct {
	Repo           *repository.ExamRepository
	AssignmentRepo *repository.AssignmentRepository
	UserRepo       *repository.UserRepository
}

func NewExamService(repo *repository.ExamRepository, assignmentRepo *repository.AssignmentRepository, userRepo *repository.UserRepository) *ExamService {
	return &ExamService{Repo: repo, AssignmentRepo: assignmentRepo, UserRepo: userRepo}
}

type QuestionInput struct {
	Content    string          `json:"content" binding:"required"`
	Options    json.RawMessage `json:"options"`
	Answer     string          `json:"answer" binding:"required"`
	Difficulty string          `json:"difficulty"`
	Topics     []string        `json:"topics"`
	Points     int             `json:"points"`
}

type CreateExamRequest struct {
	Title        string          `json:"title" binding:"required"`
	Description  string          `json:"description"`
	Subject      string          `json:"subject" binding:"required"`
	Level        string          `json:"level"`
	TimeLimit    int             `json:"timeLimit"`
	PassingScore float64         `json:"passingScore" binding:"gte=0,lte=10"`
	Questions    []QuestionInput `json:"questions" binding:"required,min=1"`
}

// Create 建卷。试卷行先落库，题目随后分小批写入，最后回填计数。
// 中途失败留下的是题目不全的未发布试卷，重建或删除均可。
func (s *ExamService) Create(creatorID uint, req CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		Title:        req.Title,
		Description:  req.Description,
		Subject:      req.Subject,
		Level:        req.Level,
		TimeLimit:    req.TimeLimit,
		PassingScore: req.PassingScore,
		CreatorID:    creatorID,
	}
	if exam.PassingScore == 0 {
		exam.PassingScore = 6.0
	}
	if err := s.Repo.CreateExam(exam); err != nil {
		return nil, err
	}

	totalPoints := 0
	batch := make([]model.ExamQuestion, 0, examQuestionBatchSize)
	for i, in := range req.Questions {
		points := in.Points
		if points <= 0 {
			points = 1
		}
		difficulty := model.QuestionDifficulty(in.Difficulty)
		switch difficulty {
		case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
		default:
			difficulty = model.DifficultyMedium
		}
		totalPoints += points
		batch = append(batch, model.ExamQuestion{
			ExamID:     exam.ID,
			Content:    in.Content,
			Options:    in.Options,
			Answer:     in.Answer,
			Difficulty: difficulty,
			Topics:     model.JoinTopics(in.Topics),
			Points:     points,
			Order:      i + 1,
		})
		if len(batch) == examQuestionBatchSize {
			if err := s.Repo.CreateQuestionBatch(batch); err != nil {
				return nil, err
			}
			batch = batch[:0]
		}
	}
	if err := s.Repo.CreateQuestionBatch(batch); err != nil {
		return nil, err
	}

	if err := s.Repo.UpdateExamCounters(exam.ID, len(req.Questions), totalPoints); err != nil {
		return nil, err
	}
	exam.QuestionCount = len(req.Questions)
	exam.TotalPoints = totalPoints
	return exam, nil
}

func (s *ExamService) Publish(id string, creatorID uint, isAdmin bool) error {
	exam, err := s.Repo.FindExamByID(id)
	if err != nil {
		return err
	}
	if exam == nil {
		return util.ErrExamNotFound
	}
	if !isAdmin && exam.CreatorID != creatorID {
		return util.ErrPermissionDenied
	}
	return s.Repo.PublishExam(id)
}

// Assign 把已发布的试卷布置给学生，生成 pending 作答记录。
// 同一学生同一试卷的重复布置返回已有记录。
func (s *ExamService) Assign(examID string, studentID uint) (*model.ExamAssignment, error) {
	exam, err := s.Repo.FindExamByID(examID)
	if err != nil {
		return nil, err
	}
	if exam == nil {
		return nil, util.ErrExamNotFound
	}
	if !exam.IsPublished {
		return nil, util.ErrExamNotPublished
	}

	student, err := s.UserRepo.FindByID(studentID)
	if err != nil {
		return nil, err
	}
	if student == nil || student.Role != model.Student {
		return nil, util.ErrUserNotFound
	}

	existing, err := s.AssignmentRepo.FindByExamAndStudent(examID, studentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	a := &model.ExamAssignment{
		ExamID:     examID,
		StudentID:  studentID,
		Status:     model.AssignmentPending,
		AssignedAt: time.Now(),
	}
	if err := s.AssignmentRepo.Create(a); err != nil {
		return nil, err
	}
	return a, nil
}

type ExamDetail struct {
	Exam      *model.Exam          `json:"exam"`
	Questions []model.ExamQuestion `json:"questions"`
}

// Get 查询试卷详情。includeAnswers 为 false 时抹去标准答案，
// 学生作答页用这条路径取题。
func (s *ExamService) Get(id string, includeAnswers bool) (*ExamDetail, error) {
	exam, err := s.Repo.FindExamByID(id)
	if err != nil {
		return nil, err
	}
	if exam == nil {
		return nil, util.ErrExamNotFound
	}
	questions, err := s.Repo.ListQuestions(id)
	if err != nil {
		return nil, err
	}
	if !includeAnswers {
		for i := range questions {
			questions[i].Answer = ""
		}
	}
	return &ExamDetail{Exam: exam, Questions: questions}, nil
}

func (s *ExamService) List(page, limit int, onlyPublished bool) ([]repository.ExamListRow, int64, error) {
	return s.Repo.ListExams(page, limit, onlyPublished)
}

func (s *ExamService) Delete(id string, creatorID uint, isAdmin bool) error {
	exam, err := s.Repo.FindExamByID(id)
	if err != nil {
		return err
	}
	if exam == nil {
		return util.ErrExamNotFound
	}
	if !isAdmin && exam.CreatorID != creatorID {
		return util.ErrPermissionDenied
	}
	return s.Repo.DeleteExam(id)
}

package service

import (
	"context"
	"exam_hub_backend/internal/repository"
	"exam_hub_backend/pkg/jobs"
	"exam_hub_backend/pkg/logger"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// 补救的成绩门槛（10 分制）：达到这个分数就不再生成补救试卷
const remediationGradeThreshold = 7.0

// 同一次作答的流水线在 redis 里的互斥时长
const pipelineLockTTL = 10 * time.Minute

// PostAssessmentService 评分后的编排器：分析阶段 → 补救阶段，
// 作为后台任务在请求路径之外执行。阶段之间故障隔离：
// 分析失败则整条流水线到此为止，补救失败不影响已保存的分析，
// 任何阶段的失败都不会碰评分数据。
type PostAssessmentService struct {
	AssignmentRepo *repository.AssignmentRepository
	Analysis       *AnalysisService
	Remediation    *RemediationService
	Runner         *jobs.Runner
	Redis          *redis.Client
}

func NewPostAssessmentService(
	assignmentRepo *repository.AssignmentRepository,
	analysis *AnalysisService,
	remediation *RemediationService,
	runner *jobs.Runner,
	rdb *redis.Client,
) *PostAssessmentService {
	return &PostAssessmentService{
		AssignmentRepo: assignmentRepo,
		Analysis:       analysis,
		Remediation:    remediation,
		Runner:         runner,
		Redis:          rdb,
	}
}

// Enqueue 把评分快照连同流水线一起入队。快照里已经有流水线需要的全部数据，
// 后台执行时不依赖刚写入的评分行是否可见。
func (s *PostAssessmentService) Enqueue(snapshot GradedSnapshot) error {
	return s.Runner.Submit(jobs.Job{
		Name:       "post_assessment",
		MaxRetries: 0, // 阶段内部自行处理失败，整条流水线不自动重跑
		Run: func(ctx context.Context) error {
			s.Run(ctx, &snapshot)
			return nil
		},
	})
}

// Run 执行流水线。错误全部就地消化：逐阶段记日志、跳过后续阶段，
// 绝不向上抛，也绝不改写评分结果。
func (s *PostAssessmentService) Run(ctx context.Context, snap *GradedSnapshot) {
	assignmentID := snap.Assignment.ID

	if !s.acquireLock(ctx, assignmentID) {
		logger.Log.Info("post-assessment pipeline already running, skipping",
			zap.String("assignmentId", assignmentID))
		return
	}
	defer s.releaseLock(assignmentID)

	// 作答可能在交卷与流水线执行之间被删除；静默终止即可
	current, err := s.AssignmentRepo.FindByID(assignmentID)
	if err != nil {
		logger.Log.Error("post-assessment pipeline aborted",
			zap.String("assignmentId", assignmentID),
			zap.String("stage", "fetch"),
			zap.Error(err))
		return
	}
	if current == nil {
		return
	}

	analysis, err := s.Analysis.GenerateAndReplace(ctx, snap)
	if err != nil {
		// 没有新鲜的分析就不做补救
		logger.Log.Error("post-assessment stage failed",
			zap.String("assignmentId", assignmentID),
			zap.String("stage", "analysis"),
			zap.Error(err))
		return
	}

	if !ShouldRemediate(snap.Assignment.Grade, analysis.PriorityTopicList()) {
		logger.Log.Info("no remediation needed",
			zap.String("assignmentId", assignmentID),
			zap.Float64("grade", snap.Assignment.Grade))
		return
	}

	exam, err := s.Remediation.EnsureRemediation(ctx, snap, analysis)
	if err != nil {
		logger.Log.Error("post-assessment stage failed",
			zap.String("assignmentId", assignmentID),
			zap.String("stage", "remediation"),
			zap.Error(err))
		return
	}

	logger.Log.Info("post-assessment pipeline completed",
		zap.String("assignmentId", assignmentID),
		zap.String("remediationExamId", exam.ID))
}

// ShouldRemediate 补救判定：成绩低于门槛且分析给出了非空的优先知识点
func ShouldRemediate(grade float64, priorityTopics []string) bool {
	return grade < remediationGradeThreshold && len(priorityTopics) > 0
}

func (s *PostAssessmentService) acquireLock(ctx context.Context, assignmentID string) bool {
	if s.Redis == nil {
		return true
	}
	ok, err := s.Redis.SetNX(ctx, "post_assessment:lock:"+assignmentID, 1, pipelineLockTTL).Result()
	if err != nil {
		// redis 不可用时放行，幂等性由数据库侧的查重兜底
		return true
	}
	return ok
}

func (s *PostAssessmentService) releaseLock(assignmentID string) {
	if s.Redis == nil {
		return
	}
	s.Redis.Del(context.Background(), "post_assessment:lock:"+assignmentID)
}

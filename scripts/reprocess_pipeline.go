// 手动重跑评分后流水线脚本
//
// 流水线阶段失败不会阻塞成绩，但会留下没有分析（也就没有补救试卷）的
// 已评分作答。此脚本找出这些作答并重新执行分析与补救，用于 AI 服务
// 长时间故障后的批量恢复。
//
// 用法: go run scripts/reprocess_pipeline.go

package main

import (
	"context"
	"exam_hub_backend/internal/config"
	"exam_hub_backend/internal/model"
	"exam_hub_backend/internal/repository"
	"exam_hub_backend/internal/service"
	"exam_hub_backend/pkg/database"
	"exam_hub_backend/pkg/logger"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

func main() {
	data, err := os.ReadFile("configs/config.yaml")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	logger.InitLogger(&cfg)

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	examRepo := repository.NewExamRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	analysisRepo := repository.NewAnalysisRepository(db)

	aiService := service.NewAIService(cfg.AI)
	analysisService := service.NewAnalysisService(analysisRepo, aiService)
	remediationService := service.NewRemediationService(examRepo, assignmentRepo, aiService)
	pipeline := service.NewPostAssessmentService(assignmentRepo, analysisService, remediationService, nil, nil)

	// 已评分但没有分析的作答
	var assignments []model.ExamAssignment
	err = db.Raw(`SELECT a.* FROM exam_assignments a
		LEFT JOIN exam_analyses n ON n.assignment_id = a.id AND n.deleted_at IS NULL
		WHERE a.status = ? AND a.deleted_at IS NULL AND n.id IS NULL`,
		model.AssignmentGraded).Scan(&assignments).Error
	if err != nil {
		log.Fatalf("查询待处理作答失败: %v", err)
	}

	log.Printf("找到 %d 条待重跑的作答", len(assignments))

	ctx := context.Background()
	for i := range assignments {
		a := assignments[i]

		exam, err := examRepo.FindExamByID(a.ExamID)
		if err != nil || exam == nil {
			log.Printf("跳过 %s: 试卷不可用", a.ID)
			continue
		}
		questions, err := examRepo.ListQuestions(exam.ID)
		if err != nil {
			log.Printf("跳过 %s: %v", a.ID, err)
			continue
		}
		answers, err := assignmentRepo.ListAnswers(a.ID)
		if err != nil {
			log.Printf("跳过 %s: %v", a.ID, err)
			continue
		}

		snap := service.GradedSnapshot{
			Assignment: a,
			Exam:       *exam,
			Questions:  questions,
			Answers:    answers,
		}
		log.Printf("重跑作答 %s (成绩 %.1f)...", a.ID, a.Grade)
		pipeline.Run(ctx, &snap)
	}

	log.Println("完成！")
}

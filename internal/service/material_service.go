package service

import (
	"context"
	"encoding/json"
	"errors"
	"exam_hub_backend/internal/model"
	"exam_hub_backend/internal/util"
	"exam_hub_backend/pkg/jobs"
	"exam_hub_backend/pkg/logger"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// 指针提交阶段的重试参数。生成阶段本身不重试，只重试落库。
const (
	materialCommitRetries = 3
	materialCommitBackoff = time.Second // 实际退避为 backoff * 2^attempt
)

// MaterialStore 资料行的持久化操作。每次调用都是独立的短事务，
// 重试时天然拿到全新事务。
type MaterialStore interface {
	Create(m *model.GeneratedMaterial) error
	FindByID(id string) (*model.GeneratedMaterial, error)
	ListByCreator(creatorID uint, page, limit int) ([]model.GeneratedMaterial, int64, error)
	MarkAvailable(id, storageKey string) (bool, error)
	MarkError(id, errMsg string) (bool, error)
}

// MaterialService 长篇学习资料的后台生成。固定模式：
// 短事务读输入 → 不持有任何数据库连接地调用生成器 → 短事务提交指针。
// 提交失败有界重试，重试耗尽时清掉已上传的内容块，避免孤儿文件。
type MaterialService struct {
	Repo      MaterialStore
	Store     ArtifactStore
	Generator ContentGenerator
	Runner    *jobs.Runner

	commitBackoff time.Duration // 测试时缩短
}

func NewMaterialService(repo MaterialStore, store ArtifactStore, generator ContentGenerator, runner *jobs.Runner) *MaterialService {
	return &MaterialService{
		Repo:          repo,
		Store:         store,
		Generator:     generator,
		Runner:        runner,
		commitBackoff: materialCommitBackoff,
	}
}

type MaterialRequest struct {
	Kind    string   `json:"kind" binding:"required"`
	Subject string   `json:"subject" binding:"required"`
	Level   string   `json:"level"`
	Topics  []string `json:"topics" binding:"required,min=1"`
	Title   string   `json:"title"`
}

// Request 创建 generating 状态的资料行并调度后台生成，立即返回。
// 调用方之后轮询状态。
func (s *MaterialService) Request(creatorID uint, req MaterialRequest) (*model.GeneratedMaterial, error) {
	m := &model.GeneratedMaterial{
		Kind:      req.Kind,
		Subject:   req.Subject,
		Level:     req.Level,
		Topics:    model.JoinTopics(req.Topics),
		Title:     req.Title,
		Status:    model.MaterialGenerating,
		CreatorID: creatorID,
	}
	if m.Title == "" {
		m.Title = fmt.Sprintf("%s 学习资料：%s", req.Subject, strings.Join(req.Topics, "、"))
	}

	if err := s.Repo.Create(m); err != nil {
		return nil, err
	}

	materialID := m.ID
	err := s.Runner.Submit(jobs.Job{
		Name:       "material_generation",
		MaxRetries: 0, // 提交阶段在任务内部自带重试，任务整体不重跑
		Run: func(ctx context.Context) error {
			s.Generate(ctx, materialID)
			return nil
		},
	})
	if err != nil {
		// 队列不可用时直接判死，不留永远 generating 的行
		_, _ = s.Repo.MarkError(materialID, "job queue unavailable: "+err.Error())
		return nil, err
	}

	return m, nil
}

// materialDocument 生成器返回并落到对象存储的内容结构
type materialDocument struct {
	Title    string `json:"title"`
	Sections []struct {
		Heading string `json:"heading"`
		Body    string `json:"body"`
	} `json:"sections"`
}

// Generate 执行一次生成任务。任何路径都终结于恰好一次终态写入。
func (s *MaterialService) Generate(ctx context.Context, materialID string) {
	// 读取阶段：短事务取输入，取完即还连接
	m, err := s.Repo.FindByID(materialID)
	if err != nil {
		logger.Log.Error("material generation read phase failed",
			zap.String("materialId", materialID), zap.Error(err))
		return
	}
	if m == nil || m.Status != model.MaterialGenerating {
		return
	}

	// 生成阶段：可能耗时数秒，期间不持有任何数据库连接
	doc, err := s.generate(ctx, m)
	if err != nil {
		s.commitTerminal(m, "", "generation failed: "+err.Error())
		return
	}

	data, err := json.Marshal(doc)
	if err != nil {
		s.commitTerminal(m, "", "generation produced unencodable content: "+err.Error())
		return
	}

	storageKey, err := s.Store.Put(ctx, m.ID, m.Kind, data, "application/json")
	if err != nil {
		s.commitTerminal(m, "", "artifact upload failed: "+err.Error())
		return
	}

	s.commitTerminal(m, storageKey, "")
}

func (s *MaterialService) generate(ctx context.Context, m *model.GeneratedMaterial) (*materialDocument, error) {
	brief := BuildMaterialBrief(m)

	var doc materialDocument
	if err := s.Generator.GenerateJSON(ctx, "material", brief, &doc); err != nil {
		return nil, err
	}
	if len(doc.Sections) == 0 {
		return nil, util.NewGenerationError("material", errors.New("document has no sections"))
	}
	if doc.Title == "" {
		doc.Title = m.Title
	}
	return &doc, nil
}

// commitTerminal 提交阶段：有界重试 + 指数退避，每次尝试都是全新事务。
// 重试耗尽时删除已上传的内容块并尽力而为地写入失败终态。
func (s *MaterialService) commitTerminal(m *model.GeneratedMaterial, storageKey, errMsg string) {
	commit := func() (bool, error) {
		if errMsg != "" {
			return s.Repo.MarkError(m.ID, errMsg)
		}
		return s.Repo.MarkAvailable(m.ID, storageKey)
	}

	var lastErr error
	for attempt := 0; attempt <= materialCommitRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(s.commitBackoff << (attempt - 1))
		}
		ok, err := commit()
		if err == nil {
			if !ok {
				// 别处已写过终态，本次写入作废
				logger.Log.Warn("material already in terminal status",
					zap.String("materialId", m.ID))
			}
			return
		}
		lastErr = util.NewTransientStorageError("material commit", err)
		logger.Log.Warn("material commit phase failed",
			zap.String("materialId", m.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	// 提交永久失败：回收内容块，别让对象存储里留孤儿
	if storageKey != "" {
		if err := s.Store.Delete(context.Background(), m.ID, m.Kind); err != nil {
			logger.Log.Error("failed to clean up orphaned artifact",
				zap.String("materialId", m.ID), zap.Error(err))
		}
	}

	_, _ = s.Repo.MarkError(m.ID, fmt.Sprintf("commit timed out after %d attempts: %v",
		materialCommitRetries+1, lastErr))
}

func (s *MaterialService) Find(id string) (*model.GeneratedMaterial, error) {
	return s.Repo.FindByID(id)
}

func (s *MaterialService) List(creatorID uint, page, limit int) ([]model.GeneratedMaterial, int64, error) {
	return s.Repo.ListByCreator(creatorID, page, limit)
}

// Content 读取已生成资料的正文
func (s *MaterialService) Content(ctx context.Context, id string) (*model.GeneratedMaterial, []byte, error) {
	m, err := s.Repo.FindByID(id)
	if err != nil {
		return nil, nil, err
	}
	if m == nil {
		return nil, nil, util.ErrMaterialNotFound
	}
	if m.Status != model.MaterialAvailable {
		return m, nil, nil
	}
	data, err := s.Store.Get(ctx, m.ID, m.Kind)
	if err != nil {
		return nil, nil, err
	}
	return m, data, nil
}

// BuildMaterialBrief 学习资料生成简报
func BuildMaterialBrief(m *model.GeneratedMaterial) string {
	var b strings.Builder
	fmt.Fprintf(&b, "请生成一份长篇学习资料。\n")
	fmt.Fprintf(&b, "类型：%s；科目：%s；级别：%s。\n", m.Kind, m.Subject, m.Level)
	fmt.Fprintf(&b, "需要覆盖的知识点：%s。\n", strings.Join(m.TopicList(), "、"))
	b.WriteString(`
返回 JSON 对象，字段如下：
{
  "title": "资料标题",
  "sections": [{"heading": "小节标题", "body": "小节正文（Markdown）"}]
}
每个知识点至少一个小节，正文面向学生，循序渐进。`)
	return b.String()
}

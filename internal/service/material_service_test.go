package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"exam_hub_backend/internal/model"
	"exam_hub_backend/internal/repository"
	"exam_hub_backend/pkg/jobs"
	"exam_hub_backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const materialPayload = `{
	"title": "一元一次方程学习指南",
	"sections": [
		{"heading": "概念", "body": "……"},
		{"heading": "例题", "body": "……"}
	]
}`

// brokenMaterialStore 包装真实仓储，按开关注入提交失败
type brokenMaterialStore struct {
	*repository.MaterialRepository
	failAvailable bool
	failError     bool
	attempts      int
}

func (s *brokenMaterialStore) MarkAvailable(id, storageKey string) (bool, error) {
	s.attempts++
	if s.failAvailable {
		return false, errors.New("deadlock detected")
	}
	return s.MaterialRepository.MarkAvailable(id, storageKey)
}

func (s *brokenMaterialStore) MarkError(id, errMsg string) (bool, error) {
	if s.failError {
		return false, errors.New("connection refused")
	}
	return s.MaterialRepository.MarkError(id, errMsg)
}

func newMaterialService(db *gorm.DB, store ArtifactStore, gen ContentGenerator) (*MaterialService, *jobs.Runner) {
	runner := jobs.NewRunner(1, 16, logger.Log)
	svc := NewMaterialService(repository.NewMaterialRepository(db), store, gen, runner)
	svc.commitBackoff = time.Millisecond
	return svc, runner
}

func TestMaterialHappyPath(t *testing.T) {
	db := newTestDB(t)
	store := newFakeStore()
	gen := &fakeGenerator{payloads: map[string]string{"material": materialPayload}}
	svc, runner := newMaterialService(db, store, gen)

	m, err := svc.Request(2, MaterialRequest{
		Kind:    "study_guide",
		Subject: "数学",
		Level:   "初级",
		Topics:  []string{"方程"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.MaterialGenerating, m.Status)

	runner.Stop() // 排干队列，等后台生成结束

	var persisted model.GeneratedMaterial
	require.NoError(t, db.First(&persisted, "id = ?", m.ID).Error)
	assert.Equal(t, model.MaterialAvailable, persisted.Status)
	assert.NotEmpty(t, persisted.StorageKey)
	assert.Empty(t, persisted.ErrorMsg)

	// 指针确实指向已上传的内容
	data, err := store.Get(context.Background(), persisted.ID, persisted.Kind)
	require.NoError(t, err)
	assert.Contains(t, string(data), "学习指南")
}

func TestMaterialGenerationFailure(t *testing.T) {
	db := newTestDB(t)
	store := newFakeStore()
	gen := &fakeGenerator{
		payloads: map[string]string{},
		errs:     map[string]error{"material": errors.New("model timeout")},
	}
	svc, runner := newMaterialService(db, store, gen)

	m, err := svc.Request(2, MaterialRequest{Kind: "study_guide", Subject: "数学", Topics: []string{"方程"}})
	require.NoError(t, err)

	runner.Stop()

	var persisted model.GeneratedMaterial
	require.NoError(t, db.First(&persisted, "id = ?", m.ID).Error)
	assert.Equal(t, model.MaterialError, persisted.Status)
	assert.Contains(t, persisted.ErrorMsg, "generation failed")
	assert.Empty(t, persisted.StorageKey, "失败时不写存储指针")
	assert.Empty(t, store.blobs, "没有上传任何内容")
}

func TestMaterialUploadFailure(t *testing.T) {
	db := newTestDB(t)
	store := newFakeStore()
	store.putErr = errors.New("bucket unavailable")
	gen := &fakeGenerator{payloads: map[string]string{"material": materialPayload}}
	svc, runner := newMaterialService(db, store, gen)

	m, err := svc.Request(2, MaterialRequest{Kind: "study_guide", Subject: "数学", Topics: []string{"方程"}})
	require.NoError(t, err)

	runner.Stop()

	var persisted model.GeneratedMaterial
	require.NoError(t, db.First(&persisted, "id = ?", m.ID).Error)
	assert.Equal(t, model.MaterialError, persisted.Status)
	assert.Contains(t, persisted.ErrorMsg, "upload failed")
}

func TestMaterialCommitRetriesThenCleansUp(t *testing.T) {
	db := newTestDB(t)
	store := newFakeStore()
	gen := &fakeGenerator{payloads: map[string]string{"material": materialPayload}}

	broken := &brokenMaterialStore{
		MaterialRepository: repository.NewMaterialRepository(db),
		failAvailable:      true,
	}
	runner := jobs.NewRunner(1, 16, logger.Log)
	svc := NewMaterialService(broken, store, gen, runner)
	svc.commitBackoff = time.Millisecond

	m, err := svc.Request(2, MaterialRequest{Kind: "study_guide", Subject: "数学", Topics: []string{"方程"}})
	require.NoError(t, err)

	runner.Stop()

	// 提交重试耗尽：4 次尝试（首次 + 3 次重试）
	assert.Equal(t, 4, broken.attempts)

	// 内容块被回收，没有孤儿
	assert.Empty(t, store.blobs)

	// 行被尽力置为失败终态
	var persisted model.GeneratedMaterial
	require.NoError(t, db.First(&persisted, "id = ?", m.ID).Error)
	assert.Equal(t, model.MaterialError, persisted.Status)
	assert.Contains(t, persisted.ErrorMsg, "commit timed out")
	assert.Empty(t, persisted.StorageKey)
}

func TestMaterialTerminalWriteIsExclusive(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewMaterialRepository(db)

	m := &model.GeneratedMaterial{Kind: "study_guide", Subject: "数学", Status: model.MaterialGenerating, CreatorID: 2}
	require.NoError(t, repo.Create(m))

	ok, err := repo.MarkAvailable(m.ID, "study_guide/"+m.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// 终态只能写一次
	ok, err = repo.MarkError(m.ID, "late failure")
	require.NoError(t, err)
	assert.False(t, ok)

	var persisted model.GeneratedMaterial
	require.NoError(t, db.First(&persisted, "id = ?", m.ID).Error)
	assert.Equal(t, model.MaterialAvailable, persisted.Status)
	assert.Empty(t, persisted.ErrorMsg)
}

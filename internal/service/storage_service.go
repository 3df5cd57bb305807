package service

import (
	"bytes"
	"context"
	"exam_hub_backend/internal/config"
	"io"
	"os"
	"path/filepath"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArtifactStore 生成内容的持久化存储：按 (entityID, kind) 存取不透明内容块。
// 与数据库没有任何事务耦合，数据库里只保存这里返回的 key。
type ArtifactStore interface {
	Put(ctx context.Context, entityID, kind string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, entityID, kind string) ([]byte, error)
	Delete(ctx context.Context, entityID, kind string) error
}

func artifactKey(entityID, kind string) string {
	return kind + "/" + entityID
}

// LocalArtifactStore 本地文件实现
type LocalArtifactStore struct {
	Config *config.StorageConfig
}

func (p *LocalArtifactStore) Put(ctx context.Context, entityID, kind string, data []byte, contentType string) (string, error) {
	key := artifactKey(entityID, kind)
	dst := filepath.Join(p.Config.LocalPath, key)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", err
	}
	return key, nil
}

func (p *LocalArtifactStore) Get(ctx context.Context, entityID, kind string) ([]byte, error) {
	return os.ReadFile(filepath.Join(p.Config.LocalPath, artifactKey(entityID, kind)))
}

func (p *LocalArtifactStore) Delete(ctx context.Context, entityID, kind string) error {
	return os.Remove(filepath.Join(p.Config.LocalPath, artifactKey(entityID, kind)))
}

// MinioArtifactStore MinIO 实现
type MinioArtifactStore struct {
	Config *config.StorageConfig
	Client *minio.Client
}

func NewMinioArtifactStore(cfg *config.StorageConfig) (*MinioArtifactStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}
	return &MinioArtifactStore{Config: cfg, Client: client}, nil
}

func (p *MinioArtifactStore) Put(ctx context.Context, entityID, kind string, data []byte, contentType string) (string, error) {
	key := artifactKey(entityID, kind)
	_, err := p.Client.PutObject(ctx, p.Config.MinioBucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (p *MinioArtifactStore) Get(ctx context.Context, entityID, kind string) ([]byte, error) {
	obj, err := p.Client.GetObject(ctx, p.Config.MinioBucket, artifactKey(entityID, kind), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func (p *MinioArtifactStore) Delete(ctx context.Context, entityID, kind string) error {
	return p.Client.RemoveObject(ctx, p.Config.MinioBucket, artifactKey(entityID, kind), minio.RemoveObjectOptions{})
}

// OSSArtifactStore 阿里云OSS实现
type OSSArtifactStore struct {
	Config *config.StorageConfig
	Client *oss.Client
}

func NewOSSArtifactStore(cfg *config.StorageConfig) (*OSSArtifactStore, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	return &OSSArtifactStore{Config: cfg, Client: client}, nil
}

func (p *OSSArtifactStore) Put(ctx context.Context, entityID, kind string, data []byte, contentType string) (string, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return "", err
	}
	key := artifactKey(entityID, kind)
	if err := bucket.PutObject(key, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return key, nil
}

func (p *OSSArtifactStore) Get(ctx context.Context, entityID, kind string) ([]byte, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return nil, err
	}
	body, err := bucket.GetObject(artifactKey(entityID, kind))
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

func (p *OSSArtifactStore) Delete(ctx context.Context, entityID, kind string) error {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return err
	}
	return bucket.DeleteObject(artifactKey(entityID, kind))
}

// StorageService 按配置选择后端，选择失败时退回本地存储
type StorageService struct {
	Store ArtifactStore
}

func NewStorageService(cfg *config.Config) *StorageService {
	var store ArtifactStore
	switch cfg.Storage.Type {
	case "minio":
		p, err := NewMinioArtifactStore(&cfg.Storage)
		if err == nil {
			store = p
		}
	case "oss":
		p, err := NewOSSArtifactStore(&cfg.Storage)
		if err == nil {
			store = p
		}
	}

	if store == nil {
		store = &LocalArtifactStore{Config: &cfg.Storage}
	}

	return &StorageService{Store: store}
}

func (s *StorageService) Put(ctx context.Context, entityID, kind string, data []byte, contentType string) (string, error) {
	return s.Store.Put(ctx, entityID, kind, data, contentType)
}

func (s *StorageService) Get(ctx context.Context, entityID, kind string) ([]byte, error) {
	return s.Store.Get(ctx, entityID, kind)
}

func (s *StorageService) Delete(ctx context.Context, entityID, kind string) error {
	return s.Store.Delete(ctx, entityID, kind)
}

var _ ArtifactStore = (*StorageService)(nil)

// Package minio 将检查点清单登记到对象存储。模型权重由各模型后端
// 自行落盘,这里只保存指向它们的 YAML 清单,便于按 run 汇总检索。
package minio

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"gopkg.in/yaml.v3"

	"github.com/safealign/safealign/internal/platform/training"
	"github.com/safealign/safealign/pkg/errors"
)

// CheckpointStore 实现 training.CheckpointSink
type CheckpointStore struct {
	client *minio.Client
	bucket string
}

// StoreConfig 定义对象存储配置
type StoreConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
}

// NewCheckpointStore 创建清单存储,桶不存在时自动创建
func NewCheckpointStore(ctx context.Context, cfg StoreConfig) (*CheckpointStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrInfraCheckpoint)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrInfraCheckpoint)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.WrapCode(err, errors.ErrInfraCheckpoint)
		}
	}

	return &CheckpointStore{client: client, bucket: cfg.Bucket}, nil
}

// Record 以 YAML 清单登记一次检查点
func (s *CheckpointStore) Record(ctx context.Context, ckpt *training.Checkpoint) error {
	payload, err := yaml.Marshal(ckpt)
	if err != nil {
		return errors.WrapCode(err, errors.ErrInfraCheckpoint)
	}

	object := fmt.Sprintf("runs/%s/checkpoints/%s.yaml", ckpt.RunID, ckpt.Tag)
	_, err = s.client.PutObject(ctx, s.bucket, object,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/yaml"},
	)
	if err != nil {
		return errors.WrapCode(err, errors.ErrInfraCheckpoint)
	}
	return nil
}

// List 返回一个 run 的全部检查点清单
func (s *CheckpointStore) List(ctx context.Context, runID string) ([]*training.Checkpoint, error) {
	prefix := fmt.Sprintf("runs/%s/checkpoints/", runID)

	var out []*training.Checkpoint
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, errors.WrapCode(obj.Err, errors.ErrInfraCheckpoint)
		}

		reader, err := s.client.GetObject(ctx, s.bucket, obj.Key, minio.GetObjectOptions{})
		if err != nil {
			return nil, errors.WrapCode(err, errors.ErrInfraCheckpoint)
		}

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(reader); err != nil {
			reader.Close()
			return nil, errors.WrapCode(err, errors.ErrInfraCheckpoint)
		}
		reader.Close()

		ckpt := &training.Checkpoint{}
		if err := yaml.Unmarshal(buf.Bytes(), ckpt); err != nil {
			return nil, errors.WrapCode(err, errors.ErrInfraCheckpoint)
		}
		out = append(out, ckpt)
	}

	return out, nil
}

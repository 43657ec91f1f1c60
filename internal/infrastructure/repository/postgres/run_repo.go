// Package postgres 持久化训练运行的生命周期记录。
package postgres

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/safealign/safealign/pkg/errors"
	"github.com/safealign/safealign/pkg/types"
)

// RunRecord 是训练运行的数据库模型
type RunRecord struct {
	ID         string `gorm:"primaryKey;size:64"`
	Name       string `gorm:"size:255;not null"`
	Status     string `gorm:"size:32;not null;index"`
	GlobalStep int    `gorm:"not null;default:0"`
	StartedAt  time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName 指定表名
func (RunRecord) TableName() string {
	return "training_runs"
}

// RunRepository 实现 training.RunRecorder
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository 连接数据库并迁移表结构
func NewRunRepository(dsn string) (*RunRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrInfraRepository)
	}
	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, errors.WrapCode(err, errors.ErrInfraRepository)
	}
	return &RunRepository{db: db}, nil
}

// Start 登记一次新的训练运行
func (r *RunRepository) Start(ctx context.Context, runID, name string) error {
	record := &RunRecord{
		ID:        runID,
		Name:      name,
		Status:    types.RunStatusRunning.String(),
		StartedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return errors.WrapCode(err, errors.ErrInfraRepository)
	}
	return nil
}

// Progress 更新全局步
func (r *RunRepository) Progress(ctx context.Context, runID string, step int) error {
	err := r.db.WithContext(ctx).
		Model(&RunRecord{}).
		Where("id = ?", runID).
		Update("global_step", step).Error
	if err != nil {
		return errors.WrapCode(err, errors.ErrInfraRepository)
	}
	return nil
}

// Finish 记录终态
func (r *RunRepository) Finish(ctx context.Context, runID string, status string) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).
		Model(&RunRecord{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"status":      status,
			"finished_at": &now,
		}).Error
	if err != nil {
		return errors.WrapCode(err, errors.ErrInfraRepository)
	}
	return nil
}

// Get 查询一条运行记录
func (r *RunRepository) Get(ctx context.Context, runID string) (*RunRecord, error) {
	var record RunRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", runID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NewNotFoundError(errors.CodeNotFound, "training run not found")
		}
		return nil, errors.WrapCode(err, errors.ErrInfraRepository)
	}
	return &record, nil
}

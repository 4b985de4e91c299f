package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/geofeed/internal/model"
)

// ListenRepository 收听关系的两个投影（正向 listens / 反向 fans）。
// 每次插入/删除都幂等：已存在/已删除不报错，调用方通过返回值区分。
type ListenRepository interface {
	// CreateForward 正向投影写入；created=false 表示已存在
	CreateForward(ctx context.Context, listenerID, sourceID string) (created bool, err error)
	// CreateReverse 反向投影写入
	CreateReverse(ctx context.Context, sourceID, listenerID string) (created bool, err error)
	DeleteForward(ctx context.Context, listenerID, sourceID string) (removed bool, err error)
	DeleteReverse(ctx context.Context, sourceID, listenerID string) (removed bool, err error)

	// FindListeners 谁在收听这些 source（反向投影），candidates 非空时做交集过滤
	FindListeners(ctx context.Context, sourceIDs []string, candidates []string) ([]string, error)
	// FindSources 某 listener 收听了什么（正向投影）
	FindSources(ctx context.Context, listenerID string, candidates []string) ([]string, error)
	// ListenerCount source 的听众数（反向投影）
	ListenerCount(ctx context.Context, sourceID string) (int64, error)
}

type listenRepository struct {
	db *gorm.DB
}

func NewListenRepository(db *gorm.DB) ListenRepository { return &listenRepository{db: db} }

func (r *listenRepository) CreateForward(ctx context.Context, listenerID, sourceID string) (bool, error) {
	f := &model.Listen{ID: uuid.New().String(), ListenerID: listenerID, SourceID: sourceID}
	// 幂等：重复收听不报错，RowsAffected 区分新建/已存在
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(f)
	return res.RowsAffected == 1, res.Error
}

func (r *listenRepository) CreateReverse(ctx context.Context, sourceID, listenerID string) (bool, error) {
	f := &model.Fan{ID: uuid.New().String(), SourceID: sourceID, ListenerID: listenerID}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(f)
	return res.RowsAffected == 1, res.Error
}

func (r *listenRepository) DeleteForward(ctx context.Context, listenerID, sourceID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("listener_id = ? AND source_id = ?", listenerID, sourceID).
		Delete(&model.Listen{})
	return res.RowsAffected == 1, res.Error
}

func (r *listenRepository) DeleteReverse(ctx context.Context, sourceID, listenerID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("source_id = ? AND listener_id = ?", sourceID, listenerID).
		Delete(&model.Fan{})
	return res.RowsAffected == 1, res.Error
}

func (r *listenRepository) FindListeners(ctx context.Context, sourceIDs []string, candidates []string) ([]string, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}
	q := r.db.WithContext(ctx).
		Model(&model.Fan{}).
		Distinct("listener_id").
		Where("source_id IN ?", sourceIDs)
	if len(candidates) > 0 {
		q = q.Where("listener_id IN ?", candidates)
	}
	var ids []string
	err := q.Pluck("listener_id", &ids).Error
	return ids, err
}

func (r *listenRepository) FindSources(ctx context.Context, listenerID string, candidates []string) ([]string, error) {
	q := r.db.WithContext(ctx).
		Model(&model.Listen{}).
		Distinct("source_id").
		Where("listener_id = ?", listenerID)
	if len(candidates) > 0 {
		q = q.Where("source_id IN ?", candidates)
	}
	var ids []string
	err := q.Pluck("source_id", &ids).Error
	return ids, err
}

func (r *listenRepository) ListenerCount(ctx context.Context, sourceID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&model.Fan{}).
		Where("source_id = ?", sourceID).
		Count(&cnt).Error
	return cnt, err
}

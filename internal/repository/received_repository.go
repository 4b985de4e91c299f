package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/geofeed/internal/model"
	"github.com/d60-Lab/geofeed/internal/ranking"
)

// ReceivedRepository 投递记录仓储。
// 写路径全部幂等或单调：重复投递吞掉、已读/已通知只能置位不能撤销。
type ReceivedRepository interface {
	// Create 幂等插入；(user, item) 已存在时 created=false，不是错误也不产生重复行
	Create(ctx context.Context, rec *model.ReceivedItem) (created bool, err error)
	// FindAndClaim 在给定瓦片集合内挑出排序最优的可通知记录并原子置 notified，
	// 没有候选返回 (nil, nil)。并发调用最多一方认领同一条记录。
	FindAndClaim(ctx context.Context, listenerID string, tiles []string, now time.Time) (*model.ReceivedItem, error)

	MarkReadByItem(ctx context.Context, listenerID, itemID string) error
	MarkReadByAuthor(ctx context.Context, listenerID, authorID string) error
	MarkReadByRegion(ctx context.Context, listenerID string, prefixes []string, topicID string) error

	// UnreadCount 未读数（推送角标）
	UnreadCount(ctx context.Context, listenerID string) (int64, error)
	// PurgeByPair 删除 (listener, source 作为作者) 范围内的投递记录，unlisten 清理用
	PurgeByPair(ctx context.Context, listenerID, authorID string) error
	// Get 测试与重放路径用
	Get(ctx context.Context, listenerID, itemID string) (*model.ReceivedItem, error)
}

type receivedRepository struct {
	db *gorm.DB
}

func NewReceivedRepository(db *gorm.DB) ReceivedRepository { return &receivedRepository{db: db} }

func (r *receivedRepository) Create(ctx context.Context, rec *model.ReceivedItem) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	return res.RowsAffected == 1, res.Error
}

// 可通知条件与 ranking.Eligible 保持一致（SQL 侧表达）
const eligibleClause = "is_read = ? AND notified = ? AND blacklisted = ? AND " +
	"((effective_date IS NULL AND expiry_time >= ?) OR (effective_date IS NOT NULL AND effective_date >= ?))"

func (r *receivedRepository) FindAndClaim(ctx context.Context, listenerID string, tiles []string, now time.Time) (*model.ReceivedItem, error) {
	if len(tiles) == 0 {
		return nil, nil
	}
	var candidates []*model.ReceivedItem
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND tile_address IN ?", listenerID, tiles).
		Where(eligibleClause, false, false, false, now, now).
		Order(ranking.RankOrderSQL).
		Limit(8).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	// 按序逐条抢占：并发的另一次位置更新可能已经拿走队头
	for _, c := range candidates {
		res := r.db.WithContext(ctx).
			Model(&model.ReceivedItem{}).
			Where("id = ? AND notified = ?", c.ID, false).
			Update("notified", true)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			c.Notified = true
			return c, nil
		}
	}
	return nil, nil
}

func (r *receivedRepository) MarkReadByItem(ctx context.Context, listenerID, itemID string) error {
	return r.db.WithContext(ctx).
		Model(&model.ReceivedItem{}).
		Where("user_id = ? AND item_id = ?", listenerID, itemID).
		Update("is_read", true).Error
}

func (r *receivedRepository) MarkReadByAuthor(ctx context.Context, listenerID, authorID string) error {
	return r.db.WithContext(ctx).
		Model(&model.ReceivedItem{}).
		Where("user_id = ? AND author_id = ?", listenerID, authorID).
		Update("is_read", true).Error
}

func (r *receivedRepository) MarkReadByRegion(ctx context.Context, listenerID string, prefixes []string, topicID string) error {
	if len(prefixes) == 0 {
		return nil
	}
	q := r.db.WithContext(ctx).
		Model(&model.ReceivedItem{}).
		Where("user_id = ?", listenerID).
		Where(tilePrefixClause(prefixes), tilePrefixArgs(prefixes)...)
	if topicID != "" {
		q = q.Where("topic_ids LIKE ?", `%"`+topicID+`"%`)
	}
	return q.Update("is_read", true).Error
}

func (r *receivedRepository) UnreadCount(ctx context.Context, listenerID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&model.ReceivedItem{}).
		Where("user_id = ? AND is_read = ? AND blacklisted = ?", listenerID, false, false).
		Count(&cnt).Error
	return cnt, err
}

func (r *receivedRepository) PurgeByPair(ctx context.Context, listenerID, authorID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND author_id = ?", listenerID, authorID).
		Delete(&model.ReceivedItem{}).Error
}

func (r *receivedRepository) Get(ctx context.Context, listenerID, itemID string) (*model.ReceivedItem, error) {
	var rec model.ReceivedItem
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND item_id = ?", listenerID, itemID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

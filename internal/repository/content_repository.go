package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/geofeed/internal/model"
	"github.com/d60-Lab/geofeed/pkg/errs"
	"github.com/d60-Lab/geofeed/pkg/pagination"
)

// ContentRepository 内容主体仓储。拉黑的内容对所有读路径隐藏。
type ContentRepository interface {
	// Create 事务内落地内容 + outbox 待扇出事件
	Create(ctx context.Context, item *model.ContentItem) error
	// Get 按 id 读取（含点赞/评论）；不存在或已拉黑返回 ErrNotFound
	Get(ctx context.Context, id string) (*model.ContentItem, error)
	// Like 幂等点赞；created=false 表示已点过
	Like(ctx context.Context, itemID, userID, name string) (created bool, err error)
	Unlike(ctx context.Context, itemID, userID string) (removed bool, err error)
	LikeCount(ctx context.Context, itemID string) (int64, error)
	AddComment(ctx context.Context, c *model.Comment) error
	UpdatePopularity(ctx context.Context, itemID string, popularity float64) error
	SetBlacklisted(ctx context.Context, itemID string) error
	// Purge 物理删除内容及全部派生数据（点赞/评论/outbox/投递记录）
	Purge(ctx context.Context, itemID string) error
	// RecentBySource source 最近发布或挂在 source 地点下的内容，新在前
	RecentBySource(ctx context.Context, sourceID string, limit int) ([]*model.ContentItem, error)
	// RegionFeed 瓦片前缀区域内按热度排序的 keyset 分页
	RegionFeed(ctx context.Context, prefixes []string, topicID, cursor string, limit int) (*pagination.Page[model.ContentItem], error)
}

type contentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) ContentRepository { return &contentRepository{db: db} }

func (r *contentRepository) Create(ctx context.Context, item *model.ContentItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(item).Error; err != nil {
			return err
		}
		out := &model.Outbox{
			ID:        uuid.New().String(),
			ItemID:    item.ID,
			AuthorID:  item.AuthorID,
			CreatedAt: time.Now(),
			Status:    "pending",
		}
		return tx.Create(out).Error
	})
}

func (r *contentRepository) Get(ctx context.Context, id string) (*model.ContentItem, error) {
	var item model.ContentItem
	err := r.db.WithContext(ctx).
		Preload("Likes").
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ? AND blacklisted = ?", id, false).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: content item %s", errs.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *contentRepository) Like(ctx context.Context, itemID, userID, name string) (bool, error) {
	l := &model.Like{ID: uuid.New().String(), ItemID: itemID, UserID: userID, Name: name}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(l)
	return res.RowsAffected == 1, res.Error
}

func (r *contentRepository) Unlike(ctx context.Context, itemID, userID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("item_id = ? AND user_id = ?", itemID, userID).
		Delete(&model.Like{})
	return res.RowsAffected == 1, res.Error
}

func (r *contentRepository) LikeCount(ctx context.Context, itemID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Like{}).Where("item_id = ?", itemID).Count(&cnt).Error
	return cnt, err
}

func (r *contentRepository) AddComment(ctx context.Context, c *model.Comment) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *contentRepository) UpdatePopularity(ctx context.Context, itemID string, popularity float64) error {
	return r.db.WithContext(ctx).
		Model(&model.ContentItem{}).
		Where("id = ?", itemID).
		Update("popularity", popularity).Error
}

func (r *contentRepository) SetBlacklisted(ctx context.Context, itemID string) error {
	return r.db.WithContext(ctx).
		Model(&model.ContentItem{}).
		Where("id = ?", itemID).
		Update("blacklisted", true).Error
}

func (r *contentRepository) Purge(ctx context.Context, itemID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("item_id = ?", itemID).Delete(&model.ReceivedItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("item_id = ?", itemID).Delete(&model.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("item_id = ?", itemID).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("item_id = ?", itemID).Delete(&model.Outbox{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", itemID).Delete(&model.ContentItem{}).Error
	})
}

func (r *contentRepository) RecentBySource(ctx context.Context, sourceID string, limit int) ([]*model.ContentItem, error) {
	var items []*model.ContentItem
	err := r.db.WithContext(ctx).
		Where("(author_id = ? OR place_id = ?) AND blacklisted = ?", sourceID, sourceID, false).
		Order("created_time DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *contentRepository) RegionFeed(ctx context.Context, prefixes []string, topicID, cursor string, limit int) (*pagination.Page[model.ContentItem], error) {
	if limit <= 0 {
		limit = 20
	}
	page := &pagination.Page[model.ContentItem]{Data: []model.ContentItem{}}
	if len(prefixes) == 0 {
		return page, nil
	}

	q := r.db.WithContext(ctx).Model(&model.ContentItem{}).Where("blacklisted = ?", false)
	q = q.Where(tilePrefixClause(prefixes), tilePrefixArgs(prefixes)...)
	if topicID != "" {
		// topic_ids 以 JSON 数组存储，按成员匹配
		q = q.Where("topic_ids LIKE ?", `%"`+topicID+`"%`)
	}
	if cursor != "" {
		c, err := pagination.Decode(cursor)
		if err != nil {
			return nil, err
		}
		q = q.Where("popularity < ? OR (popularity = ? AND id < ?)", c.Popularity, c.Popularity, c.ID)
	}

	var items []model.ContentItem
	if err := q.Order("popularity DESC, id DESC").Limit(limit + 1).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		page.Paging.Next = pagination.Cursor{Popularity: last.Popularity, ID: last.ID}.Encode()
	}
	page.Data = items
	return page, nil
}

// tilePrefixClause 把前缀集合拼成 LIKE 'p%' 的或条件
func tilePrefixClause(prefixes []string) string {
	cond := ""
	for i := range prefixes {
		if i > 0 {
			cond += " OR "
		}
		cond += "tile_address LIKE ?"
	}
	return "(" + cond + ")"
}

func tilePrefixArgs(prefixes []string) []any {
	args := make([]any, len(prefixes))
	for i, p := range prefixes {
		args[i] = p + "%"
	}
	return args
}

package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/geofeed/internal/model"
	"github.com/d60-Lab/geofeed/internal/ranking"
	"github.com/d60-Lab/geofeed/internal/repository"
	"github.com/d60-Lab/geofeed/internal/tile"
	"github.com/d60-Lab/geofeed/pkg/errs"
	"github.com/d60-Lab/geofeed/pkg/pagination"
)

// 未指定过期时间时的默认生命周期
const defaultItemLifetime = 30 * 24 * time.Hour

// PublishInput 发布请求（已过校验层）
type PublishInput struct {
	AuthorID   string
	AuthorKind string // user / place
	PlaceID    string
	Message    string
	TopicIDs   []string
	ExpiryTime time.Time // 零值用默认生命周期
}

// ContentService 内容生命周期：发布、互动（点赞/评论）、清除。
// 热度在点赞变化时重算落库；地点内容在发布时求值时效窗口。
type ContentService struct {
	content repository.ContentRepository
	places  repository.PlaceRepository
	rank    *ranking.Engine
	zoom    int
	now     func() time.Time
}

func NewContentService(content repository.ContentRepository, places repository.PlaceRepository, rank *ranking.Engine, zoom int) *ContentService {
	if zoom <= 0 || zoom > tile.MaxZoom {
		zoom = 16
	}
	return &ContentService{content: content, places: places, rank: rank, zoom: zoom, now: time.Now}
}

// Publish 事务内落地内容与 outbox 扇出事件。
// 地点内容解析不出时间模式会直接带着 blacklisted 落库（对查询隐藏，不投递）。
func (s *ContentService) Publish(ctx context.Context, in PublishInput) (*model.ContentItem, error) {
	if in.AuthorKind != model.KindUser && in.AuthorKind != model.KindPlace {
		return nil, errs.InvalidArgumentf("author kind %q", in.AuthorKind)
	}
	place, err := s.places.Get(ctx, in.PlaceID)
	if err != nil {
		return nil, err
	}
	addr := place.TileAddress
	if addr == "" {
		a, err := tile.FromLatLon(place.Lat, place.Lon, s.zoom)
		if err != nil {
			return nil, err
		}
		addr = string(a)
	}

	now := s.now()
	expiry := in.ExpiryTime
	if expiry.IsZero() {
		expiry = now.Add(defaultItemLifetime)
	}
	topics, err := json.Marshal(in.TopicIDs)
	if err != nil {
		return nil, err
	}

	item := &model.ContentItem{
		ID:          uuid.New().String(),
		AuthorID:    in.AuthorID,
		AuthorKind:  in.AuthorKind,
		PlaceID:     place.ID,
		Lat:         place.Lat,
		Lon:         place.Lon,
		TileAddress: addr,
		TopicIDs:    topics,
		Message:     in.Message,
		CreatedTime: now,
		ExpiryTime:  expiry,
	}

	w := s.rank.EvaluateEffectiveWindow(item)
	item.EffectiveDate = w.EffectiveDate
	item.ExpiryTime = w.ExpiryTime
	item.Blacklisted = w.Blacklisted
	item.Popularity = s.rank.Popularity(item, 0)

	if err := s.content.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *ContentService) Get(ctx context.Context, id string) (*model.ContentItem, error) {
	return s.content.Get(ctx, id)
}

// Like 幂等点赞并重算热度
func (s *ContentService) Like(ctx context.Context, itemID, userID, name string) (bool, error) {
	item, err := s.content.Get(ctx, itemID)
	if err != nil {
		return false, err
	}
	created, err := s.content.Like(ctx, itemID, userID, name)
	if err != nil {
		return false, err
	}
	if created {
		if err := s.recomputePopularity(ctx, item); err != nil {
			return true, err
		}
	}
	return created, nil
}

func (s *ContentService) Unlike(ctx context.Context, itemID, userID string) (bool, error) {
	item, err := s.content.Get(ctx, itemID)
	if err != nil {
		return false, err
	}
	removed, err := s.content.Unlike(ctx, itemID, userID)
	if err != nil {
		return false, err
	}
	if removed {
		if err := s.recomputePopularity(ctx, item); err != nil {
			return true, err
		}
	}
	return removed, nil
}

func (s *ContentService) recomputePopularity(ctx context.Context, item *model.ContentItem) error {
	cnt, err := s.content.LikeCount(ctx, item.ID)
	if err != nil {
		return err
	}
	return s.content.UpdatePopularity(ctx, item.ID, s.rank.Popularity(item, int(cnt)))
}

func (s *ContentService) Comment(ctx context.Context, itemID, authorID, text string) (*model.Comment, error) {
	if _, err := s.content.Get(ctx, itemID); err != nil {
		return nil, err
	}
	c := &model.Comment{ID: uuid.New().String(), ItemID: itemID, AuthorID: authorID, Text: text}
	if err := s.content.AddComment(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Purge 物理删除内容及其全部派生投递记录
func (s *ContentService) Purge(ctx context.Context, itemID string) error {
	return s.content.Purge(ctx, itemID)
}

// RegionFeed 区域内按热度分页：先枚举覆盖瓦片，折叠成前缀谓词再下推存储层
func (s *ContentService) RegionFeed(ctx context.Context, b tile.Bounds, topicID, cursor string, limit, maxSpan int) (*pagination.Page[model.ContentItem], bool, error) {
	tiles, clamped, err := tile.CoveringTiles(b, s.zoom, maxSpan)
	if err != nil {
		return nil, false, err
	}
	pred := tile.CompactPredicate(tiles)
	page, err := s.content.RegionFeed(ctx, pred.Prefixes(), topicID, cursor, limit)
	if err != nil {
		return nil, clamped, err
	}
	return page, clamped, nil
}

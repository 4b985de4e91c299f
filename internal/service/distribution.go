package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/geofeed/internal/cache"
	"github.com/d60-Lab/geofeed/internal/model"
	"github.com/d60-Lab/geofeed/internal/push"
	"github.com/d60-Lab/geofeed/internal/ranking"
	"github.com/d60-Lab/geofeed/internal/repository"
	"github.com/d60-Lab/geofeed/pkg/errs"
	"github.com/d60-Lab/geofeed/pkg/logger"
)

// 单个 listener 的投递结果
const (
	OutcomeCreated       = "created"
	OutcomeAlreadyExists = "already_existed"
	OutcomeError         = "error"
)

// Outcome 扇出结果；调用方不得把个别 error 当作整体失败
type Outcome struct {
	Status string
	Err    error
}

// DistributionConfig 扇出宽度与回填上限
type DistributionConfig struct {
	FanoutWidth   int
	BackfillPlace int // 地点发帖频繁，回填窗口小
	BackfillUser  int
}

// DistributionEngine 分发引擎：发布时扇出投递记录，位置变化时选出最优待通知记录推送。
// 所有跨 listener 协调都落在存储层的唯一键与带条件更新上，重试永远安全。
type DistributionEngine struct {
	content   repository.ContentRepository
	received  repository.ReceivedRepository
	listens   repository.ListenRepository
	places    repository.PlaceRepository
	rank      *ranking.Engine
	locations *cache.LocationCache
	badges    *cache.BadgeCache
	gateway   push.Gateway
	cfg       DistributionConfig
	now       func() time.Time
}

// WithBadgeCache 挂未读数缓存（可选，推送角标读这里）
func (d *DistributionEngine) WithBadgeCache(b *cache.BadgeCache) *DistributionEngine {
	d.badges = b
	return d
}

func NewDistributionEngine(
	content repository.ContentRepository,
	received repository.ReceivedRepository,
	listens repository.ListenRepository,
	places repository.PlaceRepository,
	rank *ranking.Engine,
	locations *cache.LocationCache,
	gateway push.Gateway,
	cfg DistributionConfig,
) *DistributionEngine {
	if cfg.FanoutWidth <= 0 {
		cfg.FanoutWidth = 16
	}
	if cfg.BackfillPlace <= 0 {
		cfg.BackfillPlace = 3
	}
	if cfg.BackfillUser <= 0 {
		cfg.BackfillUser = 20
	}
	if gateway == nil {
		gateway = push.LogGateway{}
	}
	return &DistributionEngine{
		content: content, received: received, listens: listens, places: places,
		rank: rank, locations: locations, gateway: gateway, cfg: cfg,
		now: time.Now,
	}
}

// Distribute 把内容扇出给受众，每个 listener 一条投递记录。
// 受众 = {作者, 地点} 的听众去掉作者本人；受众为空直接返回，不写不推。
// 单个 listener 的失败被隔离在结果里，不影响其余 listener。
func (d *DistributionEngine) Distribute(ctx context.Context, itemID string, shouldPush bool) (map[string]Outcome, error) {
	// 以库内为准重新加载，绝不信任调用方传来的冗余字段
	item, err := d.content.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}

	audience, err := d.listens.FindListeners(ctx, []string{item.AuthorID, item.PlaceID}, nil)
	if err != nil {
		return nil, err
	}
	audience = exclude(audience, item.AuthorID)
	if len(audience) == 0 {
		return map[string]Outcome{}, nil
	}

	outcomes := d.fanout(ctx, audience, func(ctx context.Context, listenerID string) Outcome {
		created, err := d.received.Create(ctx, d.receivedFrom(item, listenerID))
		switch {
		case err != nil && errs.IsDuplicateKey(err):
			return Outcome{Status: OutcomeAlreadyExists}
		case err != nil:
			return Outcome{Status: OutcomeError, Err: err}
		case created:
			return Outcome{Status: OutcomeCreated}
		default:
			return Outcome{Status: OutcomeAlreadyExists}
		}
	})

	for id, o := range outcomes {
		if o.Status == OutcomeCreated {
			d.invalidateBadge(ctx, id)
		}
	}
	if shouldPush {
		d.pushToPresent(ctx, item, outcomes)
	}
	return outcomes, nil
}

// pushToPresent 给「此刻就在内容所在瓦片」的新建 listener 推送，失败只记日志
func (d *DistributionEngine) pushToPresent(ctx context.Context, item *model.ContentItem, outcomes map[string]Outcome) {
	var created []string
	for id, o := range outcomes {
		if o.Status == OutcomeCreated {
			created = append(created, id)
		}
	}
	if len(created) == 0 || d.locations == nil {
		return
	}
	present, err := d.locations.ListenersAt(ctx, created, item.TileAddress)
	if err != nil {
		logger.Warn("location cross-reference failed", zap.String("item", item.ID), zap.Error(err))
		return
	}
	for _, listenerID := range present {
		d.pushOne(ctx, listenerID, item)
	}
}

func (d *DistributionEngine) pushOne(ctx context.Context, listenerID string, item *model.ContentItem) {
	badge := d.unreadBadge(ctx, listenerID)
	err := d.gateway.Push(ctx, push.Notification{
		ListenerID: listenerID,
		Badge:      badge,
		Message:    item.Message,
		Metadata:   map[string]string{"item_id": item.ID, "place_id": item.PlaceID},
	})
	if err != nil {
		logger.Warn("push failed",
			zap.String("listener", listenerID), zap.String("item", item.ID), zap.Error(err))
	}
}

// OnLocationChanged listener 的位置进入新瓦片集合时调用。
// 认领（置 notified）和挑选在存储层同一原子步骤完成，
// 两次并发位置更新不可能重复选中同一条记录；推送失败不回滚 notified（宁可漏推不重推）。
func (d *DistributionEngine) OnLocationChanged(ctx context.Context, listenerID string, tiles []string) (bool, error) {
	if d.locations != nil {
		if err := d.locations.SetTiles(ctx, listenerID, tiles); err != nil {
			logger.Warn("location cache update failed", zap.String("listener", listenerID), zap.Error(err))
		}
	}

	rec, err := d.received.FindAndClaim(ctx, listenerID, tiles, d.now())
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	// 冗余字段里的文案可能过期，推送前重读全量内容
	item, err := d.content.Get(ctx, rec.ItemID)
	if err != nil {
		logger.Warn("claimed item vanished before push",
			zap.String("listener", listenerID), zap.String("item", rec.ItemID), zap.Error(err))
		return false, nil
	}
	d.pushOne(ctx, listenerID, item)
	return true, nil
}

// unreadBadge 读穿未读数缓存，缓存不可用时直接查库
func (d *DistributionEngine) unreadBadge(ctx context.Context, listenerID string) int64 {
	if d.badges != nil {
		if n, ok, err := d.badges.Get(ctx, listenerID); err == nil && ok {
			return n
		}
	}
	n, err := d.received.UnreadCount(ctx, listenerID)
	if err != nil {
		return 0
	}
	if d.badges != nil {
		_ = d.badges.Set(ctx, listenerID, n)
	}
	return n
}

func (d *DistributionEngine) invalidateBadge(ctx context.Context, listenerID string) {
	if d.badges != nil {
		_ = d.badges.Invalidate(ctx, listenerID)
	}
}

// MarkReadItem 单条置已读（幂等、单调）
func (d *DistributionEngine) MarkReadItem(ctx context.Context, listenerID, itemID string) error {
	d.invalidateBadge(ctx, listenerID)
	return d.received.MarkReadByItem(ctx, listenerID, itemID)
}

// MarkReadAuthor 某作者（地点/用户）名下全部置已读
func (d *DistributionEngine) MarkReadAuthor(ctx context.Context, listenerID, authorID string) error {
	d.invalidateBadge(ctx, listenerID)
	return d.received.MarkReadByAuthor(ctx, listenerID, authorID)
}

// MarkReadRegion 瓦片前缀区域（可叠加话题过滤）内全部置已读
func (d *DistributionEngine) MarkReadRegion(ctx context.Context, listenerID string, prefixes []string, topicID string) error {
	d.invalidateBadge(ctx, listenerID)
	return d.received.MarkReadByRegion(ctx, listenerID, prefixes, topicID)
}

// BackfillOnFollow 新建收听边时，把 source 最近的内容回填成投递记录。
// 上限按 source 类型区分；用幂等 upsert，listener 可能已经从别的 source 拿到过同一条。
func (d *DistributionEngine) BackfillOnFollow(ctx context.Context, listenerID, sourceID string) error {
	bound := d.cfg.BackfillUser
	if _, err := d.places.Get(ctx, sourceID); err == nil {
		bound = d.cfg.BackfillPlace
	}
	items, err := d.content.RecentBySource(ctx, sourceID, bound)
	if err != nil {
		return err
	}
	var eligible []*model.ContentItem
	for _, it := range items {
		if it.AuthorID != listenerID {
			eligible = append(eligible, it)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	ids := make([]string, len(eligible))
	byID := make(map[string]*model.ContentItem, len(eligible))
	for i, it := range eligible {
		ids[i] = it.ID
		byID[it.ID] = it
	}
	outcomes := d.fanout(ctx, ids, func(ctx context.Context, itemID string) Outcome {
		_, err := d.received.Create(ctx, d.receivedFrom(byID[itemID], listenerID))
		if err != nil && !errs.IsDuplicateKey(err) {
			return Outcome{Status: OutcomeError, Err: err}
		}
		return Outcome{Status: OutcomeCreated}
	})
	for id, o := range outcomes {
		if o.Status == OutcomeError {
			logger.Warn("backfill item failed",
				zap.String("listener", listenerID), zap.String("item", id), zap.Error(o.Err))
		}
	}
	return nil
}

// CleanupOnUnlisten 清掉该 listener 名下由 source 创作的投递记录
func (d *DistributionEngine) CleanupOnUnlisten(ctx context.Context, listenerID, sourceID string) error {
	d.invalidateBadge(ctx, listenerID)
	return d.received.PurgeByPair(ctx, listenerID, sourceID)
}

// fanout 固定宽度的任务池：结果收进一个 map，全部任务落定后一次性返回
func (d *DistributionEngine) fanout(ctx context.Context, keys []string, fn func(ctx context.Context, key string) Outcome) map[string]Outcome {
	type result struct {
		key string
		out Outcome
	}
	jobs := make(chan string)
	results := make(chan result, len(keys))

	width := d.cfg.FanoutWidth
	if width > len(keys) {
		width = len(keys)
	}
	var wg sync.WaitGroup
	for i := 0; i < width; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := range jobs {
				results <- result{key: k, out: fn(ctx, k)}
			}
		}()
	}
	for _, k := range keys {
		jobs <- k
	}
	close(jobs)
	wg.Wait()
	close(results)

	outcomes := make(map[string]Outcome, len(keys))
	for r := range results {
		outcomes[r.key] = r.out
	}
	return outcomes
}

// receivedFrom 插入时快照冗余字段
func (d *DistributionEngine) receivedFrom(item *model.ContentItem, listenerID string) *model.ReceivedItem {
	return &model.ReceivedItem{
		ID:            uuid.New().String(),
		UserID:        listenerID,
		ItemID:        item.ID,
		TileAddress:   item.TileAddress,
		Lat:           item.Lat,
		Lon:           item.Lon,
		TopicIDs:      item.TopicIDs,
		AuthorID:      item.AuthorID,
		AuthorKind:    item.AuthorKind,
		CreatedTime:   item.CreatedTime,
		EffectiveDate: item.EffectiveDate,
		ExpiryTime:    item.ExpiryTime,
		Popularity:    item.Popularity,
		Blacklisted:   item.Blacklisted,
	}
}

func exclude(ids []string, drop string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

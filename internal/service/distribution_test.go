package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/geofeed/config"
	"github.com/d60-Lab/geofeed/internal/model"
	"github.com/d60-Lab/geofeed/internal/push"
	"github.com/d60-Lab/geofeed/internal/ranking"
	"github.com/d60-Lab/geofeed/internal/repository"
	"github.com/d60-Lab/geofeed/internal/tile"
	"github.com/d60-Lab/geofeed/pkg/database"
)

type fakeGateway struct {
	mu     sync.Mutex
	pushes []push.Notification
	fail   bool
}

func (g *fakeGateway) Push(_ context.Context, n push.Notification) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return assert.AnError
	}
	g.pushes = append(g.pushes, n)
	return nil
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pushes)
}

type fixture struct {
	db       *gorm.DB
	content  repository.ContentRepository
	received repository.ReceivedRepository
	listens  repository.ListenRepository
	places   repository.PlaceRepository
	rank     *ranking.Engine
	gateway  *fakeGateway
	dist     *DistributionEngine
	cs       *ContentService
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库共享单连接，扇出 goroutine 由连接池串行化
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	f := &fixture{
		db:       db,
		content:  repository.NewContentRepository(db),
		received: repository.NewReceivedRepository(db),
		listens:  repository.NewListenRepository(db),
		places:   repository.NewPlaceRepository(db),
		gateway:  &fakeGateway{},
	}
	f.rank = ranking.NewEngine(config.RankingConfig{
		LikeWeight: 100, TimeDivisor: 3600000,
		PeopleBoostDays: 30, PlaceBoostDays: 7, UTCOffsetHours: -5,
	})
	f.dist = NewDistributionEngine(f.content, f.received, f.listens, f.places, f.rank, nil, f.gateway,
		DistributionConfig{FanoutWidth: 4, BackfillPlace: 3, BackfillUser: 20})
	f.cs = NewContentService(f.content, f.places, f.rank, 16)
	return f
}

func (f *fixture) seedPlace(t *testing.T, id string, lat, lon float64) *model.Place {
	t.Helper()
	addr, err := tile.FromLatLon(lat, lon, 16)
	require.NoError(t, err)
	p := &model.Place{ID: id, Name: id, Lat: lat, Lon: lon, TileAddress: string(addr)}
	require.NoError(t, f.places.Create(context.Background(), p))
	return p
}

func (f *fixture) seedListen(t *testing.T, listenerID, sourceID string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.listens.CreateForward(ctx, listenerID, sourceID)
	require.NoError(t, err)
	_, err = f.listens.CreateReverse(ctx, sourceID, listenerID)
	require.NoError(t, err)
}

func (f *fixture) publishUserItem(t *testing.T, authorID, placeID, msg string) *model.ContentItem {
	t.Helper()
	item, err := f.cs.Publish(context.Background(), PublishInput{
		AuthorID: authorID, AuthorKind: model.KindUser, PlaceID: placeID, Message: msg,
	})
	require.NoError(t, err)
	return item
}

func TestDistributeIdempotent(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.seedPlace(t, "p1", 40.0, -74.0)
	f.seedListen(t, "l1", "author")
	f.seedListen(t, "l2", "author")

	item := f.publishUserItem(t, "author", "p1", "hello")

	out, err := f.dist.Distribute(ctx, item.ID, false)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, OutcomeCreated, out["l1"].Status)
	assert.Equal(t, OutcomeCreated, out["l2"].Status)

	// 第二次：全部 already_existed，没有重复行
	out2, err := f.dist.Distribute(ctx, item.ID, false)
	require.NoError(t, err)
	require.Len(t, out2, 2)
	assert.Equal(t, OutcomeAlreadyExists, out2["l1"].Status)
	assert.Equal(t, OutcomeAlreadyExists, out2["l2"].Status)

	var cnt int64
	require.NoError(t, f.db.Model(&model.ReceivedItem{}).Where("item_id = ?", item.ID).Count(&cnt).Error)
	assert.EqualValues(t, 2, cnt)
}

func TestDistributeNeverSelfDelivers(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.seedPlace(t, "p1", 40.0, -74.0)
	// 作者自己也收听了地点
	f.seedListen(t, "author", "p1")
	f.seedListen(t, "l1", "p1")

	item := f.publishUserItem(t, "author", "p1", "hello")
	out, err := f.dist.Distribute(ctx, item.ID, false)
	require.NoError(t, err)
	assert.NotContains(t, out, "author")
	assert.Contains(t, out, "l1")
}

func TestDistributeEmptyAudience(t *testing.T) {
	f := setupFixture(t)
	f.seedPlace(t, "p1", 40.0, -74.0)
	item := f.publishUserItem(t, "author", "p1", "hello")

	out, err := f.dist.Distribute(context.Background(), item.ID, true)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, f.gateway.count())

	var cnt int64
	require.NoError(t, f.db.Model(&model.ReceivedItem{}).Count(&cnt).Error)
	assert.Zero(t, cnt)
}

func TestDistributeMissingItem(t *testing.T) {
	f := setupFixture(t)
	_, err := f.dist.Distribute(context.Background(), "no-such-item", false)
	require.Error(t, err)
}

func TestDistributeUnionsAuthorAndPlaceListeners(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	p := f.seedPlace(t, "p1", 40.0, -74.0)
	f.seedListen(t, "follows-author", "author")
	f.seedListen(t, "follows-place", "p1")
	f.seedListen(t, "follows-both", "author")
	f.seedListen(t, "follows-both", "p1")

	item := f.publishUserItem(t, "author", "p1", "hello")
	out, err := f.dist.Distribute(ctx, item.ID, false)
	require.NoError(t, err)
	require.Len(t, out, 3)

	// 每条投递记录都带内容所在瓦片
	rec, err := f.received.Get(ctx, "follows-both", item.ID)
	require.NoError(t, err)
	assert.Equal(t, p.TileAddress, rec.TileAddress)
}

func TestOnLocationChangedPushesAtMostOnce(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	p := f.seedPlace(t, "p1", 40.0, -74.0)
	f.seedListen(t, "l1", "author")

	item := f.publishUserItem(t, "author", "p1", "come by")
	_, err := f.dist.Distribute(ctx, item.ID, false)
	require.NoError(t, err)

	pushed, err := f.dist.OnLocationChanged(ctx, "l1", []string{p.TileAddress})
	require.NoError(t, err)
	assert.True(t, pushed)
	assert.Equal(t, 1, f.gateway.count())

	// 同一瓦片再来一次：已通知，不再推
	pushed, err = f.dist.OnLocationChanged(ctx, "l1", []string{p.TileAddress})
	require.NoError(t, err)
	assert.False(t, pushed)
	assert.Equal(t, 1, f.gateway.count())
}

func TestOnLocationChangedPushFailureKeepsNotified(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	p := f.seedPlace(t, "p1", 40.0, -74.0)
	f.seedListen(t, "l1", "author")
	item := f.publishUserItem(t, "author", "p1", "come by")
	_, err := f.dist.Distribute(ctx, item.ID, false)
	require.NoError(t, err)

	f.gateway.fail = true
	pushed, err := f.dist.OnLocationChanged(ctx, "l1", []string{p.TileAddress})
	require.NoError(t, err)
	assert.True(t, pushed) // 认领成功即视为已触发，宁可漏推不重推

	rec, err := f.received.Get(ctx, "l1", item.ID)
	require.NoError(t, err)
	assert.True(t, rec.Notified)

	// 失败也不回滚，后续不会重复选中
	f.gateway.fail = false
	pushed, err = f.dist.OnLocationChanged(ctx, "l1", []string{p.TileAddress})
	require.NoError(t, err)
	assert.False(t, pushed)
}

func TestOnLocationChangedRankOrder(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	p := f.seedPlace(t, "p1", 40.0, -74.0)
	f.seedListen(t, "l1", "author")
	f.seedListen(t, "l1", "p1")

	userItem := f.publishUserItem(t, "author", "p1", "user says hi")
	placeItem, err := f.cs.Publish(ctx, PublishInput{
		AuthorID: "p1", AuthorKind: model.KindPlace, PlaceID: "p1", Message: "party tonight",
	})
	require.NoError(t, err)

	_, err = f.dist.Distribute(ctx, userItem.ID, false)
	require.NoError(t, err)
	_, err = f.dist.Distribute(ctx, placeItem.ID, false)
	require.NoError(t, err)

	// 用户内容优先于地点内容被选中
	pushed, err := f.dist.OnLocationChanged(ctx, "l1", []string{p.TileAddress})
	require.NoError(t, err)
	require.True(t, pushed)
	require.Equal(t, 1, f.gateway.count())
	assert.Equal(t, userItem.ID, f.gateway.pushes[0].Metadata["item_id"])

	pushed, err = f.dist.OnLocationChanged(ctx, "l1", []string{p.TileAddress})
	require.NoError(t, err)
	require.True(t, pushed)
	assert.Equal(t, placeItem.ID, f.gateway.pushes[1].Metadata["item_id"])
}

func TestMarkReadMonotone(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	p := f.seedPlace(t, "p1", 40.0, -74.0)
	f.seedListen(t, "l1", "author")
	item := f.publishUserItem(t, "author", "p1", "hello")
	_, err := f.dist.Distribute(ctx, item.ID, false)
	require.NoError(t, err)

	require.NoError(t, f.dist.MarkReadItem(ctx, "l1", item.ID))
	rec, err := f.received.Get(ctx, "l1", item.ID)
	require.NoError(t, err)
	assert.True(t, rec.IsRead)

	// 重投递不清掉已读标记，已读记录也不再可通知
	_, err = f.dist.Distribute(ctx, item.ID, false)
	require.NoError(t, err)
	rec, err = f.received.Get(ctx, "l1", item.ID)
	require.NoError(t, err)
	assert.True(t, rec.IsRead)

	pushed, err := f.dist.OnLocationChanged(ctx, "l1", []string{p.TileAddress})
	require.NoError(t, err)
	assert.False(t, pushed)
}

func TestMarkReadRegion(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	p := f.seedPlace(t, "p1", 40.0, -74.0)
	f.seedListen(t, "l1", "author")
	item := f.publishUserItem(t, "author", "p1", "hello")
	_, err := f.dist.Distribute(ctx, item.ID, false)
	require.NoError(t, err)

	// 用瓦片地址前缀命中
	require.NoError(t, f.dist.MarkReadRegion(ctx, "l1", []string{p.TileAddress[:8]}, ""))
	rec, err := f.received.Get(ctx, "l1", item.ID)
	require.NoError(t, err)
	assert.True(t, rec.IsRead)
}

func TestBackfillOnFollowBounded(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.seedPlace(t, "p1", 40.0, -74.0)

	// 地点自己发了 5 条（均带可解析时间词，不被拉黑）
	for i := 0; i < 5; i++ {
		_, err := f.cs.Publish(ctx, PublishInput{
			AuthorID: "p1", AuthorKind: model.KindPlace, PlaceID: "p1", Message: "open tonight",
		})
		require.NoError(t, err)
	}

	// 地点 source 用小回填窗口
	require.NoError(t, f.dist.BackfillOnFollow(ctx, "l1", "p1"))
	var cnt int64
	require.NoError(t, f.db.Model(&model.ReceivedItem{}).Where("user_id = ?", "l1").Count(&cnt).Error)
	assert.EqualValues(t, 3, cnt)

	// 幂等：重复回填不产生重复行
	require.NoError(t, f.dist.BackfillOnFollow(ctx, "l1", "p1"))
	require.NoError(t, f.db.Model(&model.ReceivedItem{}).Where("user_id = ?", "l1").Count(&cnt).Error)
	assert.EqualValues(t, 3, cnt)
}

func TestBackfillSkipsOwnItems(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.seedPlace(t, "p1", 40.0, -74.0)
	f.publishUserItem(t, "l1", "p1", "my own post")
	f.publishUserItem(t, "other", "p1", "their post")

	require.NoError(t, f.dist.BackfillOnFollow(ctx, "l1", "p1"))
	var cnt int64
	require.NoError(t, f.db.Model(&model.ReceivedItem{}).Where("user_id = ? AND author_id = ?", "l1", "l1").Count(&cnt).Error)
	assert.Zero(t, cnt)
	require.NoError(t, f.db.Model(&model.ReceivedItem{}).Where("user_id = ?", "l1").Count(&cnt).Error)
	assert.EqualValues(t, 1, cnt)
}

func TestPurgeRemovesDerivedRecords(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.seedPlace(t, "p1", 40.0, -74.0)
	f.seedListen(t, "l1", "author")
	item := f.publishUserItem(t, "author", "p1", "hello")
	_, err := f.dist.Distribute(ctx, item.ID, false)
	require.NoError(t, err)

	require.NoError(t, f.cs.Purge(ctx, item.ID))
	var cnt int64
	require.NoError(t, f.db.Model(&model.ReceivedItem{}).Where("item_id = ?", item.ID).Count(&cnt).Error)
	assert.Zero(t, cnt)
	_, err = f.content.Get(ctx, item.ID)
	require.Error(t, err)
}

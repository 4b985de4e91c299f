package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/geofeed/internal/model"
	"github.com/d60-Lab/geofeed/pkg/database"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return db
}

func eligibleRecord(listenerID, itemID, tileAddr string) *model.ReceivedItem {
	return &model.ReceivedItem{
		UserID:      listenerID,
		ItemID:      itemID,
		TileAddress: tileAddr,
		AuthorID:    "author",
		AuthorKind:  model.KindUser,
		CreatedTime: time.Now(),
		ExpiryTime:  time.Now().Add(24 * time.Hour),
	}
}

func TestReceivedCreateIdempotent(t *testing.T) {
	db := setupDB(t)
	repo := NewReceivedRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, eligibleRecord("l1", "i1", "0123"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Create(ctx, eligibleRecord("l1", "i1", "0123"))
	require.NoError(t, err)
	assert.False(t, created)

	var cnt int64
	require.NoError(t, db.Model(&model.ReceivedItem{}).Count(&cnt).Error)
	assert.EqualValues(t, 1, cnt)
}

func TestFindAndClaimSingleWinner(t *testing.T) {
	db := setupDB(t)
	repo := NewReceivedRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, eligibleRecord("l1", "i1", "0123"))
	require.NoError(t, err)

	// 并发认领：恰好一方拿到记录
	const racers = 8
	var wg sync.WaitGroup
	wins := make(chan string, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := repo.FindAndClaim(ctx, "l1", []string{"0123"}, time.Now())
			if err == nil && rec != nil {
				wins <- rec.ItemID
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1)
	assert.Equal(t, "i1", winners[0])
}

func TestFindAndClaimSkipsIneligible(t *testing.T) {
	db := setupDB(t)
	repo := NewReceivedRepository(db)
	ctx := context.Background()
	now := time.Now()

	expired := eligibleRecord("l1", "expired", "0123")
	expired.ExpiryTime = now.Add(-time.Hour)
	_, err := repo.Create(ctx, expired)
	require.NoError(t, err)

	read := eligibleRecord("l1", "read", "0123")
	read.IsRead = true
	_, err = repo.Create(ctx, read)
	require.NoError(t, err)

	black := eligibleRecord("l1", "black", "0123")
	black.Blacklisted = true
	_, err = repo.Create(ctx, black)
	require.NoError(t, err)

	past := eligibleRecord("l1", "past-window", "0123")
	windowEnd := now.Add(-time.Hour)
	past.EffectiveDate = &windowEnd
	_, err = repo.Create(ctx, past)
	require.NoError(t, err)

	rec, err := repo.FindAndClaim(ctx, "l1", []string{"0123"}, now)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// 别的瓦片里有合格记录也不该被选中
	_, err = repo.Create(ctx, eligibleRecord("l1", "elsewhere", "3210"))
	require.NoError(t, err)
	rec, err = repo.FindAndClaim(ctx, "l1", []string{"0123"}, now)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = repo.FindAndClaim(ctx, "l1", []string{"3210"}, now)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "elsewhere", rec.ItemID)
}

func TestMarkReadScopes(t *testing.T) {
	db := setupDB(t)
	repo := NewReceivedRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, eligibleRecord("l1", "i1", "0120"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, eligibleRecord("l1", "i2", "0121"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, eligibleRecord("l1", "i3", "3000"))
	require.NoError(t, err)

	require.NoError(t, repo.MarkReadByRegion(ctx, "l1", []string{"012"}, ""))

	unread, err := repo.UnreadCount(ctx, "l1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)

	require.NoError(t, repo.MarkReadByAuthor(ctx, "l1", "author"))
	unread, err = repo.UnreadCount(ctx, "l1")
	require.NoError(t, err)
	assert.Zero(t, unread)
}

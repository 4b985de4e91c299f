package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/geofeed/internal/model"
)

type recordingSink struct {
	mu              sync.Mutex
	firstListeners  []string
	inconsistencies []Inconsistency
}

func (s *recordingSink) OnFirstListener(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firstListeners = append(s.firstListeners, sourceID)
}

func (s *recordingSink) OnInconsistency(inc Inconsistency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inconsistencies = append(s.inconsistencies, inc)
}

func TestListenIdempotent(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	sink := &recordingSink{}
	net := NewListenNetwork(f.listens, nil, sink)

	created, err := net.Listen(ctx, "l1", "s1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = net.Listen(ctx, "l1", "s1")
	require.NoError(t, err)
	assert.False(t, created)

	// 两个投影各恰好一条边
	var cnt int64
	require.NoError(t, f.db.Model(&model.Listen{}).Count(&cnt).Error)
	assert.EqualValues(t, 1, cnt)
	require.NoError(t, f.db.Model(&model.Fan{}).Count(&cnt).Error)
	assert.EqualValues(t, 1, cnt)
	assert.Empty(t, sink.inconsistencies)
}

func TestListenSelfRejected(t *testing.T) {
	f := setupFixture(t)
	net := NewListenNetwork(f.listens, nil, nil)
	_, err := net.Listen(context.Background(), "u1", "u1")
	assert.ErrorIs(t, err, ErrListenSelf)
}

func TestListenFirstListenerSignal(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	sink := &recordingSink{}
	net := NewListenNetwork(f.listens, nil, sink)

	_, err := net.Listen(ctx, "l1", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, sink.firstListeners)

	// 第二个听众不再触发
	_, err = net.Listen(ctx, "l2", "s1")
	require.NoError(t, err)
	assert.Len(t, sink.firstListeners, 1)
}

func TestListenProjectionDisagreementSignaled(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	sink := &recordingSink{}
	net := NewListenNetwork(f.listens, nil, sink)

	// 人为制造分叉：只有反向投影有边
	_, err := f.listens.CreateReverse(ctx, "s1", "l1")
	require.NoError(t, err)

	created, err := net.Listen(ctx, "l1", "s1")
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, sink.inconsistencies, 1)
	assert.Equal(t, "listen", sink.inconsistencies[0].Op)
	assert.Equal(t, "l1", sink.inconsistencies[0].ListenerID)
	assert.Equal(t, "s1", sink.inconsistencies[0].SourceID)
}

func TestUnlistenCleansReceived(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.seedPlace(t, "p1", 40.0, -74.0)
	net := NewListenNetwork(f.listens, f.dist, &recordingSink{})

	_, err := net.Listen(ctx, "l1", "author")
	require.NoError(t, err)
	item := f.publishUserItem(t, "author", "p1", "hello")
	_, err = f.dist.Distribute(ctx, item.ID, false)
	require.NoError(t, err)

	removed, err := net.Unlisten(ctx, "l1", "author")
	require.NoError(t, err)
	assert.True(t, removed)

	var cnt int64
	require.NoError(t, f.db.Model(&model.ReceivedItem{}).Where("user_id = ?", "l1").Count(&cnt).Error)
	assert.Zero(t, cnt)

	removed, err = net.Unlisten(ctx, "l1", "author")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestListenBackfillHook(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.seedPlace(t, "p1", 40.0, -74.0)
	f.publishUserItem(t, "author", "p1", "earlier post")

	net := NewListenNetwork(f.listens, f.dist, &recordingSink{})
	_, err := net.Listen(ctx, "l1", "author")
	require.NoError(t, err)

	rec, err := f.received.Get(ctx, "l1", mustFirstItemID(t, f))
	require.NoError(t, err)
	assert.Equal(t, "author", rec.AuthorID)
}

func mustFirstItemID(t *testing.T, f *fixture) string {
	t.Helper()
	var item model.ContentItem
	require.NoError(t, f.db.First(&item).Error)
	return item.ID
}

func TestRepairWorkerReconciles(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	repair := NewRepairWorker(f.listens, 16)
	stop := repair.Start(1)
	defer stop(ctx) //nolint:errcheck

	// 正向有边、反向缺失 -> 修复后补齐
	_, err := f.listens.CreateForward(ctx, "l1", "s1")
	require.NoError(t, err)
	repair.OnInconsistency(Inconsistency{ListenerID: "l1", SourceID: "s1", Op: "listen"})

	require.Eventually(t, func() bool {
		ids, err := f.listens.FindListeners(ctx, []string{"s1"}, nil)
		return err == nil && len(ids) == 1 && ids[0] == "l1"
	}, 2*time.Second, 20*time.Millisecond)

	// 正向无边、反向残留 -> 修复后删除
	_, err = f.listens.DeleteForward(ctx, "l1", "s1")
	require.NoError(t, err)
	repair.OnInconsistency(Inconsistency{ListenerID: "l1", SourceID: "s1", Op: "unlisten"})

	require.Eventually(t, func() bool {
		ids, err := f.listens.FindListeners(ctx, []string{"s1"}, nil)
		return err == nil && len(ids) == 0
	}, 2*time.Second, 20*time.Millisecond)
}

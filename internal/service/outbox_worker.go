package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/geofeed/internal/model"
	"github.com/d60-Lab/geofeed/pkg/errs"
	"github.com/d60-Lab/geofeed/pkg/logger"
)

// OutboxWorker 从 outbox 拉取发布事件并交给分发引擎扇出
type OutboxWorker struct {
	db           *gorm.DB
	dist         *DistributionEngine
	claimLimit   int
	pollInterval time.Duration
	workers      int
	metricsCh    chan time.Duration // outbox->processed latency
}

func NewOutboxWorker(db *gorm.DB, dist *DistributionEngine, workers, claimLimit int, pollInterval time.Duration) *OutboxWorker {
	if workers <= 0 {
		workers = 4
	}
	if claimLimit <= 0 {
		claimLimit = 64
	}
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	return &OutboxWorker{db: db, dist: dist, workers: workers, claimLimit: claimLimit, pollInterval: pollInterval, metricsCh: make(chan time.Duration, 65536)}
}

func (w *OutboxWorker) Metrics() <-chan time.Duration { return w.metricsCh }

// Start 启动若干 worker 轮询处理 outbox；返回停止函数。
func (w *OutboxWorker) Start() func(context.Context) error {
	stop := make(chan struct{})
	for i := 0; i < w.workers; i++ {
		go w.loop(stop)
	}
	return func(ctx context.Context) error { close(stop); return nil }
}

func (w *OutboxWorker) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := w.ProcessOnce(context.Background()); err != nil {
				logger.Warn("outbox poll failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce claim 一批 pending outbox 并逐条扇出
func (w *OutboxWorker) ProcessOnce(ctx context.Context) error {
	type ob struct {
		ID        string
		ItemID    string
		CreatedAt time.Time
	}
	var batch []ob
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := `
            SELECT id, item_id, created_at
            FROM outbox
            WHERE status = 'pending'
            ORDER BY created_at
            LIMIT ?`
		if tx.Dialector.Name() == "postgres" {
			q += " FOR UPDATE SKIP LOCKED"
		}
		if err := tx.Raw(q, w.claimLimit).Scan(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]string, len(batch))
		for i, b := range batch {
			ids[i] = b.ID
		}
		return tx.Model(&model.Outbox{}).Where("id IN ?", ids).Update("status", "processing").Error
	})
	if err != nil {
		return err
	}

	for _, b := range batch {
		outcomes, err := w.dist.Distribute(ctx, b.ItemID, true)
		if err != nil && !errs.IsNotFound(err) {
			// 瞬时存储故障：退回 pending 让下一轮重试（重投递总是安全的）
			_ = w.db.WithContext(ctx).Model(&model.Outbox{}).
				Where("id = ?", b.ID).
				Update("status", "pending").Error
			logger.Warn("distribute failed, outbox requeued", zap.String("item", b.ItemID), zap.Error(err))
			continue
		}
		// NotFound（已清除/已拉黑）也算处理完毕
		var count int64
		for _, o := range outcomes {
			if o.Status == OutcomeCreated {
				count++
			}
		}
		now := time.Now()
		_ = w.db.WithContext(ctx).Model(&model.Outbox{}).
			Where("id = ?", b.ID).
			Updates(map[string]any{"status": "done", "processed_at": now, "fanout_count": count}).Error
		if !b.CreatedAt.IsZero() {
			select {
			case w.metricsCh <- time.Since(b.CreatedAt):
			default:
			}
		}
	}
	return nil
}

package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/geofeed/internal/repository"
	"github.com/d60-Lab/geofeed/pkg/logger"
)

// RepairWorker 收听图分叉的异步修复器。
// 自身实现 Sink，分叉信号直接入队；以正向投影为准把反向投影拉齐。
type RepairWorker struct {
	repo      repository.ListenRepository
	ch        chan Inconsistency
	metricsCh chan time.Duration
}

func NewRepairWorker(repo repository.ListenRepository, queueSize int) *RepairWorker {
	if queueSize <= 0 {
		queueSize = 10000
	}
	return &RepairWorker{repo: repo, ch: make(chan Inconsistency, queueSize), metricsCh: make(chan time.Duration, 65536)}
}

func (r *RepairWorker) OnFirstListener(string) {}

// OnInconsistency 入队等待修复；队满丢弃并告警（后续全量对账兜底）
func (r *RepairWorker) OnInconsistency(inc Inconsistency) {
	select {
	case r.ch <- inc:
	default:
		logger.Warn("repair queue full, drop inconsistency",
			zap.String("listener", inc.ListenerID), zap.String("source", inc.SourceID))
	}
}

func (r *RepairWorker) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 2
	}
	stopCh := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case inc := <-r.ch:
					start := time.Now()
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					r.reconcile(ctx, inc)
					cancel()
					select {
					case r.metricsCh <- time.Since(start):
					default:
					}
				case <-stopCh:
					return
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		close(stopCh)
		// 等待队列自然排空一小段时间
		timeout := time.After(2 * time.Second)
		for {
			select {
			case <-timeout:
				return nil
			default:
				if len(r.ch) == 0 {
					return nil
				}
				time.Sleep(50 * time.Millisecond)
			}
		}
	}
}

// reconcile 以正向投影为真值：正向存在则补齐反向，否则删掉反向
func (r *RepairWorker) reconcile(ctx context.Context, inc Inconsistency) {
	sources, err := r.repo.FindSources(ctx, inc.ListenerID, []string{inc.SourceID})
	if err != nil {
		logger.Warn("repair lookup failed",
			zap.String("listener", inc.ListenerID), zap.String("source", inc.SourceID), zap.Error(err))
		return
	}
	if len(sources) > 0 {
		if _, err := r.repo.CreateReverse(ctx, inc.SourceID, inc.ListenerID); err != nil {
			logger.Warn("repair reverse insert failed",
				zap.String("listener", inc.ListenerID), zap.String("source", inc.SourceID), zap.Error(err))
		}
		return
	}
	if _, err := r.repo.DeleteReverse(ctx, inc.SourceID, inc.ListenerID); err != nil {
		logger.Warn("repair reverse delete failed",
			zap.String("listener", inc.ListenerID), zap.String("source", inc.SourceID), zap.Error(err))
	}
}

// Metrics 返回单条修复耗时的只读通道
func (r *RepairWorker) Metrics() <-chan time.Duration { return r.metricsCh }

// QueueLen 当前队列长度（采样值）
func (r *RepairWorker) QueueLen() int { return len(r.ch) }

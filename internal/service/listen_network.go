package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/d60-Lab/geofeed/internal/repository"
	"github.com/d60-Lab/geofeed/pkg/logger"
)

var (
	ErrListenSelf = errors.New("cannot listen to self")
)

// ListenNetwork 收听关系图：维护双向投影、检测分叉、回答「谁在听 X / X 在听谁」
type ListenNetwork interface {
	// Listen 幂等建立收听；created=false 表示早已存在，不是错误
	Listen(ctx context.Context, listenerID, sourceID string) (created bool, err error)
	// Unlisten 幂等取消收听；成功移除时清理该 (listener, source 作为作者) 的投递记录
	Unlisten(ctx context.Context, listenerID, sourceID string) (removed bool, err error)
	FindListeners(ctx context.Context, sourceIDs []string, candidates []string) ([]string, error)
	FindSources(ctx context.Context, listenerID string, candidates []string) ([]string, error)
}

type listenNetwork struct {
	repo repository.ListenRepository
	dist *DistributionEngine // 回填/清理钩子，可为 nil（测试）
	sink Sink
}

func NewListenNetwork(repo repository.ListenRepository, dist *DistributionEngine, sink Sink) ListenNetwork {
	if sink == nil {
		sink = LogSink{}
	}
	return &listenNetwork{repo: repo, dist: dist, sink: sink}
}

func (s *listenNetwork) Listen(ctx context.Context, listenerID, sourceID string) (bool, error) {
	if listenerID == sourceID {
		return false, ErrListenSelf
	}
	fwd, err := s.repo.CreateForward(ctx, listenerID, sourceID)
	if err != nil {
		return false, err
	}
	rev, err := s.repo.CreateReverse(ctx, sourceID, listenerID)
	if err != nil {
		// 正向已落地、反向失败：投影已分叉，交给修复，不让调用方失败
		s.sink.OnInconsistency(Inconsistency{
			ListenerID: listenerID, SourceID: sourceID, Op: "listen",
			Detail: "reverse write failed: " + err.Error(),
		})
		return fwd, nil
	}
	// 一边新建、一边已存在 => 此前就有过分叉
	if fwd != rev {
		s.sink.OnInconsistency(Inconsistency{
			ListenerID: listenerID, SourceID: sourceID, Op: "listen",
			Detail: "projection disagreement on create",
		})
	}

	if rev {
		if cnt, err := s.repo.ListenerCount(ctx, sourceID); err == nil && cnt == 1 {
			s.sink.OnFirstListener(sourceID)
		}
	}

	created := fwd || rev
	if created && s.dist != nil {
		if err := s.dist.BackfillOnFollow(ctx, listenerID, sourceID); err != nil {
			logger.Warn("backfill on follow failed",
				zap.String("listener", listenerID), zap.String("source", sourceID), zap.Error(err))
		}
	}
	return created, nil
}

func (s *listenNetwork) Unlisten(ctx context.Context, listenerID, sourceID string) (bool, error) {
	fwd, err := s.repo.DeleteForward(ctx, listenerID, sourceID)
	if err != nil {
		return false, err
	}
	rev, err := s.repo.DeleteReverse(ctx, sourceID, listenerID)
	if err != nil {
		s.sink.OnInconsistency(Inconsistency{
			ListenerID: listenerID, SourceID: sourceID, Op: "unlisten",
			Detail: "reverse delete failed: " + err.Error(),
		})
		return fwd, nil
	}
	if fwd != rev {
		s.sink.OnInconsistency(Inconsistency{
			ListenerID: listenerID, SourceID: sourceID, Op: "unlisten",
			Detail: "projection disagreement on delete",
		})
	}

	removed := fwd || rev
	if removed && s.dist != nil {
		if err := s.dist.CleanupOnUnlisten(ctx, listenerID, sourceID); err != nil {
			logger.Warn("received cleanup on unlisten failed",
				zap.String("listener", listenerID), zap.String("source", sourceID), zap.Error(err))
		}
	}
	return removed, nil
}

func (s *listenNetwork) FindListeners(ctx context.Context, sourceIDs []string, candidates []string) ([]string, error) {
	return s.repo.FindListeners(ctx, sourceIDs, candidates)
}

func (s *listenNetwork) FindSources(ctx context.Context, listenerID string, candidates []string) ([]string, error) {
	return s.repo.FindSources(ctx, listenerID, candidates)
}

// Package push 推送网关抽象：尽力而为、即发即忘，失败绝不回滚持久状态。
package push

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/geofeed/pkg/logger"
)

// Notification 一条推送
type Notification struct {
	ListenerID string
	Badge      int64
	Message    string
	Metadata   map[string]string
}

// Gateway 第三方推送通道的收口
type Gateway interface {
	Push(ctx context.Context, n Notification) error
}

// LogGateway 默认实现：只打日志，本地/测试环境用
type LogGateway struct{}

func (LogGateway) Push(_ context.Context, n Notification) error {
	logger.Info("push notification",
		zap.String("listener", n.ListenerID),
		zap.Int64("badge", n.Badge),
		zap.String("message", n.Message))
	return nil
}

// RateLimited 包一层全局速率限制，保护下游推送通道
type RateLimited struct {
	inner   Gateway
	limiter *rate.Limiter
}

func NewRateLimited(inner Gateway, perSecond int) *RateLimited {
	if perSecond <= 0 {
		perSecond = 50
	}
	return &RateLimited{inner: inner, limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond)}
}

func (g *RateLimited) Push(ctx context.Context, n Notification) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	return g.inner.Push(ctx, n)
}

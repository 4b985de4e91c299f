package service

import (
	"fmt"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/geofeed/pkg/logger"
)

// Inconsistency 收听图两个投影不一致的信号。
// 不是错误：发出后异步修复，当次 listen/unlisten 对调用方仍然成功。
type Inconsistency struct {
	ListenerID string
	SourceID   string
	Op         string // listen / unlisten
	Detail     string
}

// Sink 观察者回调，替代全局事件总线，便于各引擎独立测试
type Sink interface {
	// OnFirstListener source 的听众数从 0 变 1 时触发，每次跃迁恰好一次
	OnFirstListener(sourceID string)
	// OnInconsistency 投影分叉信号
	OnInconsistency(inc Inconsistency)
}

// LogSink 默认实现：打日志并上报 sentry
type LogSink struct{}

func (LogSink) OnFirstListener(sourceID string) {
	logger.Info("source gained first listener", zap.String("source", sourceID))
}

func (LogSink) OnInconsistency(inc Inconsistency) {
	logger.Warn("listen network inconsistency",
		zap.String("listener", inc.ListenerID),
		zap.String("source", inc.SourceID),
		zap.String("op", inc.Op),
		zap.String("detail", inc.Detail))
	sentry.CaptureException(fmt.Errorf("listen network inconsistency: %s %s->%s (%s)",
		inc.Op, inc.ListenerID, inc.SourceID, inc.Detail))
}

// Sinks 广播到多个 sink（日志 + 修复队列）
type Sinks []Sink

func (s Sinks) OnFirstListener(sourceID string) {
	for _, x := range s {
		x.OnFirstListener(sourceID)
	}
}

func (s Sinks) OnInconsistency(inc Inconsistency) {
	for _, x := range s {
		x.OnInconsistency(inc)
	}
}

package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/betbot/signalbot/internal/domain"
	"github.com/betbot/signalbot/internal/indicators"
	"github.com/betbot/signalbot/internal/metrics"
	"github.com/betbot/signalbot/pkg/logger"
	"github.com/betbot/signalbot/pkg/syncgroup"
)

// Runner 把读数扇出为并发的 Process 调用；不同信号之间没有顺序保证
type Runner struct {
	orch     *Orchestrator
	watch    *Watchlist
	inflight *syncgroup.SyncGroup
	results  func(domain.Action)
}

// NewRunner 创建 Runner；onResult 可为 nil
func NewRunner(orch *Orchestrator, watch *Watchlist, onResult func(domain.Action)) *Runner {
	return &Runner{
		orch:     orch,
		watch:    watch,
		inflight: syncgroup.NewSyncGroup(),
		results:  onResult,
	}
}

// Submit 异步处理一条读数；不在监控列表或 Runner 已关闭时返回 false
func (r *Runner) Submit(ctx context.Context, reading indicators.Reading) bool {
	if !r.watch.Allows(reading.Symbol, reading.Timeframe) {
		metrics.SignalsIgnored.Add(1)
		logger.WithFields(logrus.Fields{
			"symbol":    reading.Symbol,
			"timeframe": reading.Timeframe,
		}).Debug("reading outside watchlist ignored")
		return false
	}
	return r.inflight.Go(func() {
		action := r.orch.Process(ctx, reading)
		if r.results != nil {
			r.results(action)
		}
	})
}

// Run 消费读数直到 ctx 结束或 channel 关闭
func (r *Runner) Run(ctx context.Context, readings <-chan indicators.Reading) {
	for {
		select {
		case <-ctx.Done():
			return
		case reading, ok := <-readings:
			if !ok {
				return
			}
			r.Submit(ctx, reading)
		}
	}
}

// Close 拒绝新读数并等待在途信号处理完成
func (r *Runner) Close(ctx context.Context) error {
	r.inflight.Close()
	return r.inflight.WaitContext(ctx)
}

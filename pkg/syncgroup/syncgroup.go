package syncgroup

import (
	"context"
	"sync"
)

// SyncGroup 是 sync.WaitGroup 的包装器，简化动态 goroutine 的生命周期管理
// 自动管理 Add() 和 Done()，减少遗漏 Done() 的风险；Close 之后拒绝新任务，便于优雅关闭时排空。
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	running int
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Go 启动一个受管理的 goroutine；已 Close 时返回 false 且不执行 fn
func (g *SyncGroup) Go(fn func()) bool {
	if fn == nil {
		return false
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false
	}
	g.running++
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer func() {
			g.mu.Lock()
			g.running--
			g.mu.Unlock()
			g.wg.Done()
		}()
		fn()
	}()
	return true
}

// Running 当前运行中的 goroutine 数量
func (g *SyncGroup) Running() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Close 拒绝新的任务（已在运行的不受影响）
func (g *SyncGroup) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// Wait 等待所有 goroutine 完成
func (g *SyncGroup) Wait() {
	g.wg.Wait()
}

// WaitContext 等待所有 goroutine 完成或 ctx 结束
func (g *SyncGroup) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Ticket 一次预占的凭据；零值表示调用方没有预占（例如超额调用）
type Ticket uint64

// Budget 调用预算接口（两步式：先检查/预占，调用成功后再确认）
type Budget interface {
	TryAcquire() (Ticket, bool)
	MarkUsed(t Ticket)
	Release(t Ticket)
	Remaining() int
	ResetTime() time.Time
}

type ticketKey struct{}

// WithTicket 把预占凭据挂到 ctx 上，供下游确认或归还
func WithTicket(ctx context.Context, t Ticket) context.Context {
	return context.WithValue(ctx, ticketKey{}, t)
}

// TicketFrom 取出 ctx 上的预占凭据；没有时返回 0
func TicketFrom(ctx context.Context) Ticket {
	t, _ := ctx.Value(ticketKey{}).(Ticket)
	return t
}

// Clock 时间源，测试中可替换
type Clock func() time.Time

type slot struct {
	id      Ticket // 0 表示未经预占直接记录的超额调用
	at      time.Time
	pending bool // TryAcquire 预占、尚未被 MarkUsed 确认
}

// SlidingWindow 滑动窗口调用预算
//
// 任意长度为 window 的尾部区间内最多记录 limit 次调用。
// TryAcquire 预占一个槽位并返回凭据；MarkUsed 按凭据确认该预占
// （凭据为 0 或已失效时直接记录一次）；Release 只归还凭据对应的预占，
// 用于调用失败时不消耗预算。
type SlidingWindow struct {
	limit      int           // 限制数量
	windowSize time.Duration // 窗口大小
	slots      []slot        // 按时间升序
	nextID     Ticket
	now        Clock
	mu         sync.Mutex
}

// NewSlidingWindow 创建新的滑动窗口调用预算
func NewSlidingWindow(limit int, windowSize time.Duration) *SlidingWindow {
	return NewSlidingWindowWithClock(limit, windowSize, time.Now)
}

// NewSlidingWindowWithClock 使用自定义时间源创建
func NewSlidingWindowWithClock(limit int, windowSize time.Duration, clock Clock) *SlidingWindow {
	if limit < 1 {
		limit = 1
	}
	if clock == nil {
		clock = time.Now
	}
	return &SlidingWindow{
		limit:      limit,
		windowSize: windowSize,
		slots:      make([]slot, 0, limit),
		now:        clock,
	}
}

// evict 移除窗口外的记录，调用方必须持有锁
func (sw *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-sw.windowSize)
	i := 0
	for i < len(sw.slots) && !sw.slots[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		sw.slots = append(sw.slots[:0], sw.slots[i:]...)
	}
}

// find 返回凭据对应的预占下标，没有时返回 -1；调用方必须持有锁
func (sw *SlidingWindow) find(t Ticket) int {
	if t == 0 {
		return -1
	}
	for i := range sw.slots {
		if sw.slots[i].id == t && sw.slots[i].pending {
			return i
		}
	}
	return -1
}

// TryAcquire 非阻塞检查；窗口内调用数小于 limit 时预占一个槽位并返回其凭据
func (sw *SlidingWindow) TryAcquire() (Ticket, bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.evict(now)
	if len(sw.slots) >= sw.limit {
		return 0, false
	}
	sw.nextID++
	sw.slots = append(sw.slots, slot{id: sw.nextID, at: now, pending: true})
	return sw.nextID, true
}

// MarkUsed 记录一次完成的调用
func (sw *SlidingWindow) MarkUsed(t Ticket) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.evict(now)
	if i := sw.find(t); i >= 0 {
		sw.slots[i].pending = false
		return
	}
	// 没有预占（预算耗尽后仍按建议式限流继续调用，或预占已过期），记录一次超额调用
	sw.slots = append(sw.slots, slot{at: now})
}

// Release 归还凭据对应的预占；凭据为 0 或已不在窗口内时为空操作
func (sw *SlidingWindow) Release(t Ticket) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.evict(sw.now())
	if i := sw.find(t); i >= 0 {
		sw.slots = append(sw.slots[:i], sw.slots[i+1:]...)
	}
}

// Remaining 获取剩余可用次数
func (sw *SlidingWindow) Remaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.evict(sw.now())
	return max(0, sw.limit-len(sw.slots))
}

// ResetTime 最早一条记录离开窗口的时间（即下一个槽位释放的时间）
func (sw *SlidingWindow) ResetTime() time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.evict(now)
	if len(sw.slots) == 0 {
		return now
	}
	return sw.slots[0].at.Add(sw.windowSize)
}

// Limit 预算上限
func (sw *SlidingWindow) Limit() int { return sw.limit }

// Window 窗口大小
func (sw *SlidingWindow) Window() time.Duration { return sw.windowSize }

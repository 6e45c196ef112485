package pipeline

import (
	"strings"

	"github.com/betbot/signalbot/pkg/marketspec"
)

// Stream 一个监控的 标的/周期 组合；Timeframe 为空表示任意周期
type Stream struct {
	Symbol    string `yaml:"symbol"`
	Timeframe string `yaml:"timeframe"`
}

// Watchlist 监控列表；为空时放行所有读数
type Watchlist struct {
	entries map[string]map[string]struct{} // symbol -> timeframes（含 "" 表示任意）
}

// NewWatchlist 创建监控列表
func NewWatchlist(streams []Stream) *Watchlist {
	w := &Watchlist{entries: make(map[string]map[string]struct{})}
	for _, s := range streams {
		sym := strings.ToUpper(strings.TrimSpace(s.Symbol))
		if sym == "" {
			continue
		}
		if w.entries[sym] == nil {
			w.entries[sym] = make(map[string]struct{})
		}
		w.entries[sym][marketspec.Canonical(s.Timeframe)] = struct{}{}
	}
	return w
}

// Allows 读数是否在监控列表内
func (w *Watchlist) Allows(symbol, timeframe string) bool {
	if w == nil || len(w.entries) == 0 {
		return true
	}
	tfs, ok := w.entries[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return false
	}
	if _, wildcard := tfs[""]; wildcard {
		return true
	}
	_, ok = tfs[marketspec.Canonical(timeframe)]
	return ok
}

// Len 监控的标的数量
func (w *Watchlist) Len() int {
	if w == nil {
		return 0
	}
	return len(w.entries)
}

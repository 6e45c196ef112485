// Package marketspec 规范化指标周期（timeframe）写法。
package marketspec

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe 指标周期
// 支持：1m / 5m / 15m / 30m / 1h / 4h / 1d
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

var durations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe1d:  24 * time.Hour,
}

var aliases = map[string]Timeframe{
	"1min": Timeframe1m, "1mins": Timeframe1m, "1-minute": Timeframe1m,
	"5min": Timeframe5m, "5mins": Timeframe5m, "5-minute": Timeframe5m,
	"15min": Timeframe15m, "15mins": Timeframe15m, "15-minute": Timeframe15m, "15minutes": Timeframe15m,
	"30min": Timeframe30m, "30mins": Timeframe30m, "30-minute": Timeframe30m,
	"60m": Timeframe1h, "60min": Timeframe1h, "60mins": Timeframe1h, "1hour": Timeframe1h, "1-hour": Timeframe1h, "h1": Timeframe1h,
	"240m": Timeframe4h, "240min": Timeframe4h, "4hour": Timeframe4h, "4-hour": Timeframe4h, "h4": Timeframe4h,
	"24h": Timeframe1d, "1day": Timeframe1d, "d1": Timeframe1d, "1440m": Timeframe1d,
}

// ParseTimeframe 解析周期（大小写不敏感，接受常见别名）
func ParseTimeframe(v string) (Timeframe, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	if _, ok := durations[Timeframe(s)]; ok {
		return Timeframe(s), nil
	}
	if tf, ok := aliases[s]; ok {
		return tf, nil
	}
	return "", fmt.Errorf("不支持的 timeframe: %q（支持: 1m/5m/15m/30m/1h/4h/1d）", v)
}

// Canonical 返回规范写法；无法识别时原样返回（去掉首尾空白）
func Canonical(v string) string {
	if tf, err := ParseTimeframe(v); err == nil {
		return tf.String()
	}
	return strings.TrimSpace(v)
}

func (t Timeframe) String() string { return string(t) }

// Duration 周期时长；未知值返回 0
func (t Timeframe) Duration() time.Duration { return durations[t] }

package domain

import "strings"

// Bias 方向偏好（来自趋势指标）
type Bias string

const (
	BiasBullish Bias = "BULLISH"
	BiasBearish Bias = "BEARISH"
	BiasNeutral Bias = "NEUTRAL"
)

// ParseBias 解析趋势方向；无法识别时返回 (BiasNeutral, false)
func ParseBias(s string) (Bias, bool) {
	switch b := Bias(strings.ToUpper(strings.TrimSpace(s))); b {
	case BiasBullish, BiasBearish, BiasNeutral:
		return b, true
	}
	return BiasNeutral, false
}

// Momentum 动量强弱
type Momentum string

const (
	MomentumStrong Momentum = "STRONG"
	MomentumWeak   Momentum = "WEAK"
)

// Volatility 波动率档位
type Volatility string

const (
	VolatilityLow    Volatility = "LOW"
	VolatilityMedium Volatility = "MEDIUM"
	VolatilityHigh   Volatility = "HIGH"
)

// ParseVolatility 解析波动率；无法识别时返回 (VolatilityLow, false)
func ParseVolatility(s string) (Volatility, bool) {
	switch v := Volatility(strings.ToUpper(strings.TrimSpace(s))); v {
	case VolatilityLow, VolatilityMedium, VolatilityHigh:
		return v, true
	}
	return VolatilityLow, false
}

// Signal 标准化后的交易信号
//
// 按值传递，构造后不再修改；不持有任何账户状态。
type Signal struct {
	ID         string // 关联日志用的唯一 ID
	Symbol     string
	Timeframe  string
	Bias       Bias
	Momentum   Momentum
	Volatility Volatility
	Context    string // 触发形态，例如 "trend_pullback"
}

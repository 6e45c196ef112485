// Package indicators 把上游原始指标读数转换为标准化的 domain.Signal。
package indicators

// Reading 上游指标源推送的一次原始读数
//
// RSI 为指针：缺失与 0 需要区分。
type Reading struct {
	Symbol     string   `json:"symbol"`
	Timeframe  string   `json:"timeframe"`
	Trend      string   `json:"trend"`
	RSI        *float64 `json:"rsi"`
	Volatility string   `json:"volatility,omitempty"`
	Context    string   `json:"context,omitempty"`
}

// Float 便于构造 Reading.RSI
func Float(v float64) *float64 { return &v }

package indicators

import (
	"strings"

	"github.com/betbot/signalbot/internal/domain"
)

// DefaultStrongMomentumRSI RSI 严格大于该值时动量为 STRONG
const DefaultStrongMomentumRSI = 60.0

// SymbolPolicy 单个标的的默认值覆盖
type SymbolPolicy struct {
	Volatility domain.Volatility `yaml:"volatility"`
	Context    string            `yaml:"context"`
}

// PolicyTable 部署可替换的映射策略表
type PolicyTable struct {
	StrongMomentumRSI float64                 `yaml:"strong_momentum_rsi"`
	DefaultVolatility domain.Volatility       `yaml:"default_volatility"`
	DefaultContext    string                  `yaml:"default_context"`
	Symbols           map[string]SymbolPolicy `yaml:"symbols"`
}

// DefaultPolicy 参考部署的默认策略表
func DefaultPolicy() PolicyTable {
	return PolicyTable{
		StrongMomentumRSI: DefaultStrongMomentumRSI,
		DefaultVolatility: domain.VolatilityMedium,
		DefaultContext:    "trend_pullback",
	}
}

func (p PolicyTable) forSymbol(symbol string) (domain.Volatility, string) {
	vol, ctx := p.DefaultVolatility, p.DefaultContext
	if sp, ok := p.Symbols[strings.ToUpper(symbol)]; ok {
		if sp.Volatility != "" {
			vol = sp.Volatility
		}
		if sp.Context != "" {
			ctx = sp.Context
		}
	}
	return vol, ctx
}

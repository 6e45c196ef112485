package indicators

import (
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/signalbot/internal/domain"
	"github.com/betbot/signalbot/internal/metrics"
	"github.com/betbot/signalbot/pkg/logger"
	"github.com/betbot/signalbot/pkg/marketspec"
)

// UnknownSymbol 读数缺少标的时使用的占位符
const UnknownSymbol = "UNKNOWN"

// Normalizer 读数 -> Signal。全函数：无法识别的输入退化为最保守的取值，从不报错。
type Normalizer struct {
	policy PolicyTable
	newID  func() string
}

// NewNormalizer 创建 Normalizer；策略表中缺失的字段使用默认值
func NewNormalizer(policy PolicyTable) *Normalizer {
	def := DefaultPolicy()
	if policy.StrongMomentumRSI <= 0 {
		policy.StrongMomentumRSI = def.StrongMomentumRSI
	}
	if v, ok := domain.ParseVolatility(string(policy.DefaultVolatility)); ok {
		policy.DefaultVolatility = v
	} else {
		policy.DefaultVolatility = def.DefaultVolatility
	}
	if policy.DefaultContext == "" {
		policy.DefaultContext = def.DefaultContext
	}
	if len(policy.Symbols) > 0 {
		symbols := make(map[string]SymbolPolicy, len(policy.Symbols))
		for k, v := range policy.Symbols {
			if pv, ok := domain.ParseVolatility(string(v.Volatility)); ok {
				v.Volatility = pv
			} else {
				v.Volatility = ""
			}
			symbols[strings.ToUpper(k)] = v
		}
		policy.Symbols = symbols
	}
	return &Normalizer{policy: policy, newID: uuid.NewString}
}

// Policy 当前生效的策略表
func (n *Normalizer) Policy() PolicyTable { return n.policy }

// Normalize 把原始读数转换为 Signal
func (n *Normalizer) Normalize(r Reading) domain.Signal {
	var defaulted []string

	symbol := strings.ToUpper(strings.TrimSpace(r.Symbol))
	if symbol == "" {
		symbol = UnknownSymbol
		defaulted = append(defaulted, "symbol")
	}

	bias, ok := domain.ParseBias(r.Trend)
	if !ok {
		defaulted = append(defaulted, "bias")
	}

	momentum := domain.MomentumWeak
	switch {
	case r.RSI == nil || math.IsNaN(*r.RSI) || math.IsInf(*r.RSI, 0):
		defaulted = append(defaulted, "momentum")
	case *r.RSI > n.policy.StrongMomentumRSI:
		momentum = domain.MomentumStrong
	}

	volatility, pattern := n.policy.forSymbol(symbol)
	if strings.TrimSpace(r.Volatility) != "" {
		v, ok := domain.ParseVolatility(r.Volatility)
		if !ok {
			defaulted = append(defaulted, "volatility")
		}
		volatility = v
	}
	if c := strings.TrimSpace(r.Context); c != "" {
		pattern = c
	}

	sig := domain.Signal{
		ID:         n.newID(),
		Symbol:     symbol,
		Timeframe:  marketspec.Canonical(r.Timeframe),
		Bias:       bias,
		Momentum:   momentum,
		Volatility: volatility,
		Context:    pattern,
	}

	for _, field := range defaulted {
		metrics.NormalizationDefaults.Add(field, 1)
	}
	if len(defaulted) > 0 {
		logger.WithFields(logrus.Fields{
			"signal_id": sig.ID,
			"symbol":    sig.Symbol,
			"defaulted": defaulted,
		}).Debug("normalization default applied")
	}
	return sig
}

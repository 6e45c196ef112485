package inference

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/betbot/signalbot/internal/domain"
)

type rawDecision struct {
	Action     *string  `json:"action"`
	Confidence *float64 `json:"confidence"`
	Reason     string   `json:"reason"`
}

// StripCodeFences 去掉模型常见的 ```json ... ``` 包裹
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	rest := s[start+3:]
	// 跳过语言标记（json / JSON 等）
	i := 0
	for i < len(rest) && isTagChar(rest[i]) {
		i++
	}
	rest = rest[i:]
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func isTagChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-'
}

// ParseDecision 解析并校验模型输出
func ParseDecision(content string) (domain.TradeAction, float64, string, error) {
	payload := StripCodeFences(content)
	if payload == "" {
		return "", 0, "", errors.New("empty model output")
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return "", 0, "", errors.Wrap(err, "decode decision json")
	}
	if raw.Action == nil {
		return "", 0, "", errors.New("decision missing action")
	}
	action, ok := domain.ParseTradeAction(*raw.Action)
	if !ok {
		return "", 0, "", errors.Errorf("unknown action %q", *raw.Action)
	}
	if raw.Confidence == nil {
		return "", 0, "", errors.New("decision missing confidence")
	}
	conf := *raw.Confidence
	if math.IsNaN(conf) || conf < 0 || conf > 1 {
		return "", 0, "", errors.Errorf("confidence %v out of range [0,1]", conf)
	}
	return action, conf, strings.TrimSpace(raw.Reason), nil
}

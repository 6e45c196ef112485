package feed

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/betbot/signalbot/internal/indicators"
)

// DecodeReadings 接受单个对象或对象数组
func DecodeReadings(data []byte) ([]indicators.Reading, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty body")
	}
	if data[0] == '[' {
		var out []indicators.Reading
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, errors.Wrap(err, "decode readings")
		}
		return out, nil
	}
	var r indicators.Reading
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "decode reading")
	}
	return []indicators.Reading{r}, nil
}

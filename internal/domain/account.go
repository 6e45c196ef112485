package domain

// AccountState 调用方提供的账户快照，管道只读
type AccountState struct {
	HasOpenPosition  bool    `json:"has_open_position"`
	DailyLossPercent float64 `json:"daily_loss_percent"` // 0 表示无亏损，正数为亏损幅度
}

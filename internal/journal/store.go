// Package journal 把每个信号的最终结果落盘（Badger），用于复盘与审计。
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/betbot/signalbot/internal/domain"
)

const keyPrefix = "action/"

// Entry 落盘记录
type Entry struct {
	SignalID   string             `json:"signal_id"`
	RecordedAt time.Time          `json:"recorded_at"`
	Symbol     string             `json:"symbol"`
	Timeframe  string             `json:"timeframe"`
	Bias       domain.Bias        `json:"bias"`
	Momentum   domain.Momentum    `json:"momentum"`
	Volatility domain.Volatility  `json:"volatility"`
	Context    string             `json:"context"`
	Outcome    domain.Outcome     `json:"outcome"`
	Action     domain.TradeAction `json:"action"`
	Confidence float64            `json:"confidence"`
	Reason     string             `json:"reason"`
	Failure    domain.ErrorKind   `json:"failure,omitempty"`
	Cause      string             `json:"cause,omitempty"`
	RawPrompt  string             `json:"raw_prompt"`
}

// EntryFromAction 把 Action 展平为落盘记录
func EntryFromAction(a domain.Action, at time.Time) Entry {
	e := Entry{
		SignalID:   a.Signal.ID,
		RecordedAt: at.UTC(),
		Symbol:     a.Signal.Symbol,
		Timeframe:  a.Signal.Timeframe,
		Bias:       a.Signal.Bias,
		Momentum:   a.Signal.Momentum,
		Volatility: a.Signal.Volatility,
		Context:    a.Signal.Context,
		Outcome:    a.Outcome,
		Action:     a.Decision.Action,
		Confidence: a.Decision.Confidence,
		Reason:     a.Decision.Reason,
		Failure:    a.Decision.Failure,
		RawPrompt:  a.Decision.RawPrompt,
	}
	if a.Cause != nil {
		e.Cause = a.Cause.String()
	}
	return e
}

// Store Badger 日志存储；key 按记录时间排序
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// OpenOptions 打开参数
type OpenOptions struct {
	Path     string
	InMemory bool // 测试用
}

// Open 打开（或创建）日志库
func Open(opts OpenOptions) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if strings.TrimSpace(opts.Path) == "" {
			return nil, errors.New("journal: path is required")
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	db, err := badger.Open(bopts.WithLogger(nil))
	if err != nil {
		return nil, errors.Wrap(err, "journal: open badger")
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func entryKey(e Entry) []byte {
	// 固定宽度的纳秒时间戳保证字典序即时间序
	return []byte(fmt.Sprintf("%s%020d/%s", keyPrefix, e.RecordedAt.UnixNano(), e.SignalID))
}

// Record 写入一条结果
func (s *Store) Record(ctx context.Context, a domain.Action) error {
	if s == nil || s.db == nil {
		return errors.New("journal: not opened")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e := EntryFromAction(a, s.now())
	val, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "journal: encode entry")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(e), val)
	})
}

// Recent 按时间倒序返回最多 limit 条记录；symbol 为空时不过滤
func (s *Store) Recent(limit int, symbol string) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("journal: not opened")
	}
	if limit <= 0 {
		return nil, nil
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	out := make([]Entry, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// 反向迭代需要从前缀之后的最大 key 开始
		for it.Seek([]byte(keyPrefix + "\xff")); it.ValidForPrefix(opts.Prefix); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return errors.Wrapf(err, "journal: decode %s", it.Item().Key())
			}
			if symbol != "" && e.Symbol != symbol {
				continue
			}
			out = append(out, e)
			if len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

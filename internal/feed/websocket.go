package feed

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/signalbot/internal/indicators"
	"github.com/betbot/signalbot/pkg/logger"
)

// WSConfig WebSocket 读数流配置
type WSConfig struct {
	URL               string
	Subscribe         []string      // 连接后发送的订阅，例如 "BTCUSDT:15m"
	ReconnectDelay    time.Duration // 首次重连等待，之后指数退避
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	PongTimeout       time.Duration
	HandshakeTimeout  time.Duration
	BufferSize        int
}

// DefaultWSConfig 默认配置
func DefaultWSConfig(url string) WSConfig {
	return WSConfig{
		URL:               url,
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      15 * time.Second,
		PongTimeout:       45 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		BufferSize:        256,
	}
}

// WSFeed 从 WebSocket 推送流读取指标读数，断线自动重连
type WSFeed struct {
	cfg    WSConfig
	dialer websocket.Dialer
	out    chan indicators.Reading

	connMu sync.Mutex
	conn   *websocket.Conn
}

// NewWSFeed 创建推送流客户端
func NewWSFeed(cfg WSConfig) *WSFeed {
	def := DefaultWSConfig(cfg.URL)
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= cfg.PingInterval {
		cfg.PongTimeout = 3 * cfg.PingInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	return &WSFeed{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		out:    make(chan indicators.Reading, cfg.BufferSize),
	}
}

// Readings 读数通道；Run 返回时关闭
func (f *WSFeed) Readings() <-chan indicators.Reading { return f.out }

// Run 阻塞运行直到 ctx 结束
func (f *WSFeed) Run(ctx context.Context) {
	defer close(f.out)
	log := logger.WithField("feed", f.cfg.URL)

	delay := f.cfg.ReconnectDelay
	for ctx.Err() == nil {
		conn, err := f.connect(ctx)
		if err != nil {
			log.WithError(err).Warnf("连接失败，%v 后重试", delay)
			if !sleepCtx(ctx, delay) {
				return
			}
			delay = min(delay*2, f.cfg.MaxReconnectDelay)
			continue
		}
		delay = f.cfg.ReconnectDelay
		log.Info("推送流已连接")

		err = f.readLoop(ctx, conn, log)
		f.closeConn()
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Warn("推送流断开，重连中")
	}
}

func (f *WSFeed) connect(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("User-Agent", "signalbot/1.0")
	conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, header)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	if len(f.cfg.Subscribe) > 0 {
		msg := map[string]any{"type": "subscribe", "streams": f.cfg.Subscribe}
		if err := conn.WriteJSON(msg); err != nil {
			_ = conn.Close()
			return nil, errors.Wrap(err, "subscribe")
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(f.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.cfg.PongTimeout))
	})

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	return conn, nil
}

func (f *WSFeed) closeConn() {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
}

func (f *WSFeed) readLoop(ctx context.Context, conn *websocket.Conn, log *logrus.Entry) error {
	stop := make(chan struct{})
	defer close(stop)
	go f.pingLoop(ctx, conn, stop)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		// 任何数据帧都说明连接存活
		_ = conn.SetReadDeadline(time.Now().Add(f.cfg.PongTimeout))

		readings, err := DecodeReadings(data)
		if err != nil {
			log.WithError(err).Debug("忽略无法解析的消息")
			continue
		}
		for _, r := range readings {
			select {
			case f.out <- r:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (f *WSFeed) pingLoop(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// 关闭连接以打断阻塞的 ReadMessage
			f.connMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			f.connMu.Unlock()
			_ = conn.Close()
			return
		case <-stop:
			return
		case <-ticker.C:
			f.connMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			f.connMu.Unlock()
			if err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

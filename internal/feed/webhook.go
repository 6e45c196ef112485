// Package feed 接收外部指标读数：HTTP webhook（gin）与 WebSocket 推送流。
package feed

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/betbot/signalbot/internal/indicators"
	"github.com/betbot/signalbot/internal/journal"
	"github.com/betbot/signalbot/pkg/logger"
)

// Submitter 读数的接收方（pipeline.Runner）
type Submitter interface {
	Submit(ctx context.Context, reading indicators.Reading) bool
}

// History 最近结果查询（journal.Store）；可为 nil
type History interface {
	Recent(limit int, symbol string) ([]journal.Entry, error)
}

const (
	maxBatch = 100
	maxBody  = 1 << 20 // 单次请求体上限
)

// WebhookServer 指标推送入口：
//
//	POST /v1/indicators   单条或数组形式的 Reading
//	GET  /v1/actions      最近的处理结果
//	GET  /healthz
type WebhookServer struct {
	submit  Submitter
	history History
	token   string

	engine *gin.Engine
	srv    *http.Server
	addr   string
	base   context.Context
}

// NewWebhookServer token 非空时要求 X-Signal-Token 头匹配
func NewWebhookServer(submit Submitter, history History, token string) *WebhookServer {
	gin.SetMode(gin.ReleaseMode)
	s := &WebhookServer{submit: submit, history: history, token: token, base: context.Background()}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	v1 := r.Group("/v1", s.auth)
	v1.POST("/indicators", s.handleIndicators)
	v1.GET("/actions", s.handleActions)

	s.engine = r
	return s
}

// Handler 供测试或自定义 http.Server 使用
func (s *WebhookServer) Handler() http.Handler { return s.engine }

// Addr 实际监听地址（Start 之后有效）
func (s *WebhookServer) Addr() string { return s.addr }

// Start 异步监听；ctx 结束时关闭，且作为已接收读数的处理上下文
func (s *WebhookServer) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	s.base = ctx
	s.addr = ln.Addr().String()
	s.srv = &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Infof("指标 webhook 已启动: http://%s/v1/indicators", s.addr)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("指标 webhook 异常退出: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()
	return nil
}

func (s *WebhookServer) auth(c *gin.Context) {
	if s.token == "" {
		return
	}
	if subtle.ConstantTimeCompare([]byte(c.GetHeader("X-Signal-Token")), []byte(s.token)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	}
}

func (s *WebhookServer) handleIndicators(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large", "max_bytes": maxBody})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	readings, err := DecodeReadings(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(readings) > maxBatch {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many readings", "max": maxBatch})
		return
	}

	accepted := 0
	for _, r := range readings {
		// 请求结束后读数仍在处理，不能使用请求的 context
		if s.submit.Submit(s.base, r) {
			accepted++
		}
	}
	status := http.StatusAccepted
	if accepted == 0 {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"accepted": accepted, "ignored": len(readings) - accepted})
}

func (s *WebhookServer) handleActions(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be 1..500"})
		return
	}
	entries, err := s.history.Recent(limit, c.Query("symbol"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": entries})
}

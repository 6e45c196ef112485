package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/signalbot/internal/account"
	"github.com/betbot/signalbot/internal/domain"
	"github.com/betbot/signalbot/internal/feed"
	"github.com/betbot/signalbot/internal/indicators"
	"github.com/betbot/signalbot/internal/inference"
	"github.com/betbot/signalbot/internal/journal"
	"github.com/betbot/signalbot/internal/metrics"
	"github.com/betbot/signalbot/internal/pipeline"
	"github.com/betbot/signalbot/internal/risk"
	"github.com/betbot/signalbot/internal/sink"
	"github.com/betbot/signalbot/pkg/config"
	"github.com/betbot/signalbot/pkg/logger"
	"github.com/betbot/signalbot/pkg/ratelimit"
	"github.com/betbot/signalbot/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "yml/config.yaml", "配置文件路径（.yaml/.yml/.json，可为空）")
	envFile := flag.String("env", ".env", ".env 文件路径（不存在时忽略）")
	shutdownTimeout := flag.Duration("shutdown-timeout", 30*time.Second, "优雅关闭超时")
	flag.Parse()

	config.LoadDotEnv(*envFile)

	path := *configPath
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		logger.Errorf("配置验证失败: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := shutdown.NewManager()
	if err := run(ctx, cfg, mgr); err != nil {
		logger.Errorf("启动失败: %v", err)
		shutdownWith(mgr, *shutdownTimeout)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("收到退出信号，开始关闭")
	if failed := shutdownWith(mgr, *shutdownTimeout); failed > 0 {
		os.Exit(1)
	}
}

func shutdownWith(mgr *shutdown.Manager, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return mgr.Shutdown(ctx)
}

// run 组装并启动所有组件；关闭回调按 存储 → 编排器 → Runner 的顺序注册，逆序执行
func run(ctx context.Context, cfg *config.Config, mgr *shutdown.Manager) error {
	gate, err := risk.ForProfile(cfg.RiskProfile)
	if err != nil {
		return err
	}

	if cfg.MetricsListen != "" {
		if _, err := metrics.StartAsync(ctx, cfg.MetricsListen); err != nil {
			return errors.Wrap(err, "start metrics server")
		}
	}

	var (
		store   *journal.Store
		jrnl    pipeline.Journal
		history feed.History
	)
	if cfg.JournalDir != "" {
		store, err = journal.Open(journal.OpenOptions{Path: cfg.JournalDir})
		if err != nil {
			return err
		}
		jrnl, history = store, store
		mgr.OnShutdown("journal", func(context.Context) error { return store.Close() })
	}

	budget := ratelimit.NewSlidingWindow(cfg.Budget.Limit, cfg.Budget.Window)
	client := inference.NewClient(inference.Config{
		BaseURL: cfg.Inference.BaseURL,
		APIKey:  cfg.Inference.APIKey,
		Model:   cfg.Inference.Model,
		Timeout: cfg.Inference.Timeout,
	}, budget)

	orch := pipeline.NewOrchestrator(
		indicators.NewNormalizer(buildPolicy(cfg.Policy)),
		budget,
		client,
		gate,
		buildAccounts(cfg, gate),
		buildSink(cfg),
		pipeline.Options{
			BudgetWait:      cfg.Budget.Wait,
			DispatchTimeout: cfg.DispatchTimeout,
			Journal:         jrnl,
		},
	)
	mgr.OnShutdown("orchestrator", orch.Close)

	watchlist := pipeline.NewWatchlist(buildStreams(cfg.Streams))
	runner := pipeline.NewRunner(orch, watchlist, logResult)
	mgr.OnShutdown("runner", runner.Close)

	if cfg.WebhookListen != "" {
		if err := feed.NewWebhookServer(runner, history, cfg.WebhookToken).Start(ctx, cfg.WebhookListen); err != nil {
			return err
		}
	}
	if cfg.FeedWSURL != "" {
		wsCfg := feed.DefaultWSConfig(cfg.FeedWSURL)
		for _, s := range cfg.Streams {
			wsCfg.Subscribe = append(wsCfg.Subscribe, strings.TrimSuffix(s.Symbol+":"+s.Timeframe, ":"))
		}
		ws := feed.NewWSFeed(wsCfg)
		go ws.Run(ctx)
		go runner.Run(ctx, ws.Readings())
	}

	logrus.Infof("signalbot 已启动: profile=%s gate=%s budget=%d/%v dry_run=%v streams=%d",
		cfg.RiskProfile, gate.Name(), budget.Limit(), budget.Window(), cfg.DryRun, watchlist.Len())
	return nil
}

func logResult(a domain.Action) {
	fields := logrus.Fields{
		"signal_id":  a.Signal.ID,
		"symbol":     a.Signal.Symbol,
		"outcome":    a.Outcome,
		"action":     a.Decision.Action,
		"confidence": a.Decision.Confidence,
	}
	if a.Cause != nil {
		fields["cause"] = a.Cause.String()
	}
	logger.WithFields(fields).Info("signal processed")
}

func buildPolicy(pc config.PolicyConfig) indicators.PolicyTable {
	p := indicators.PolicyTable{
		StrongMomentumRSI: pc.StrongMomentumRSI,
		DefaultVolatility: domain.Volatility(pc.DefaultVolatility),
		DefaultContext:    pc.DefaultContext,
	}
	if len(pc.Symbols) > 0 {
		p.Symbols = make(map[string]indicators.SymbolPolicy, len(pc.Symbols))
		for sym, sp := range pc.Symbols {
			p.Symbols[sym] = indicators.SymbolPolicy{Volatility: domain.Volatility(sp.Volatility), Context: sp.Context}
		}
	}
	return p
}

func buildStreams(in []config.StreamConfig) []pipeline.Stream {
	out := make([]pipeline.Stream, 0, len(in))
	for _, s := range in {
		out = append(out, pipeline.Stream{Symbol: s.Symbol, Timeframe: s.Timeframe})
	}
	return out
}

// buildAccounts 风控不读取账户时不接入账户服务
func buildAccounts(cfg *config.Config, gate risk.Gate) pipeline.AccountProvider {
	if !gate.NeedsAccount() {
		return nil
	}
	if cfg.AccountURL == "" {
		return account.NewStatic(domain.AccountState{})
	}
	return account.NewCached(account.NewHTTP(cfg.AccountURL, cfg.AccountToken, 5*time.Second), cfg.AccountCacheTTL)
}

// buildSink dry-run 时只记录日志；否则投递到已配置的告警与执行器
func buildSink(cfg *config.Config) pipeline.Sink {
	sinks := sink.Multi{sink.LogSink{}}
	if cfg.DryRun {
		return sinks
	}
	if cfg.AlertWebhook != "" {
		sinks = append(sinks, sink.NewAlertSink(cfg.AlertWebhook, 10*time.Second))
	}
	if cfg.ExecutorURL != "" {
		sinks = append(sinks, sink.NewOrderSink(cfg.ExecutorURL, cfg.ExecutorToken, 10*time.Second))
	}
	return sinks
}

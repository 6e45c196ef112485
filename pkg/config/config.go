package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// InferenceConfig 推理服务配置
type InferenceConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// BudgetConfig 调用预算（滑动窗口）配置
type BudgetConfig struct {
	Limit  int
	Window time.Duration
	Wait   time.Duration // 预算耗尽时的一次性等待
}

// StreamConfig 一个被监控的 symbol/timeframe；Timeframe 为空表示全部周期
type StreamConfig struct {
	Symbol    string `yaml:"symbol" json:"symbol"`
	Timeframe string `yaml:"timeframe" json:"timeframe"`
}

// SymbolPolicyConfig 单个交易对的归一化默认值
type SymbolPolicyConfig struct {
	Volatility string `yaml:"volatility" json:"volatility"`
	Context    string `yaml:"context" json:"context"`
}

// PolicyConfig 归一化策略表
type PolicyConfig struct {
	StrongMomentumRSI float64                       `yaml:"strong_momentum_rsi" json:"strong_momentum_rsi"`
	DefaultVolatility string                        `yaml:"default_volatility" json:"default_volatility"`
	DefaultContext    string                        `yaml:"default_context" json:"default_context"`
	Symbols           map[string]SymbolPolicyConfig `yaml:"symbols" json:"symbols"`
}

// Config 运行配置
type Config struct {
	Inference       InferenceConfig
	Budget          BudgetConfig
	RiskProfile     string
	Streams         []StreamConfig
	Policy          PolicyConfig
	LogLevel        string
	LogFile         string
	MetricsListen   string
	WebhookListen   string
	WebhookToken    string
	FeedWSURL       string
	AlertWebhook    string
	ExecutorURL     string
	ExecutorToken   string
	AccountURL      string
	AccountToken    string
	AccountCacheTTL time.Duration
	JournalDir      string
	DryRun          bool
	DispatchTimeout time.Duration
}

// ConfigFile 配置文件结构（YAML/JSON）
type ConfigFile struct {
	Inference struct {
		BaseURL   string `yaml:"base_url" json:"base_url"`
		APIKey    string `yaml:"api_key" json:"api_key"`
		Model     string `yaml:"model" json:"model"`
		TimeoutMs int    `yaml:"timeout_ms" json:"timeout_ms"`
	} `yaml:"inference" json:"inference"`
	Budget struct {
		Limit    int `yaml:"limit" json:"limit"`
		WindowMs int `yaml:"window_ms" json:"window_ms"`
		WaitMs   int `yaml:"wait_ms" json:"wait_ms"`
	} `yaml:"budget" json:"budget"`
	RiskProfile string         `yaml:"risk_profile" json:"risk_profile"`
	Streams     []StreamConfig `yaml:"streams" json:"streams"`
	Policy      PolicyConfig   `yaml:"policy" json:"policy"`
	Log         struct {
		Level string `yaml:"level" json:"level"`
		File  string `yaml:"file" json:"file"`
	} `yaml:"log" json:"log"`
	Metrics struct {
		Listen string `yaml:"listen" json:"listen"`
	} `yaml:"metrics" json:"metrics"`
	Webhook struct {
		Listen string `yaml:"listen" json:"listen"`
		Token  string `yaml:"token" json:"token"`
	} `yaml:"webhook" json:"webhook"`
	Feed struct {
		WSURL string `yaml:"ws_url" json:"ws_url"`
	} `yaml:"feed" json:"feed"`
	Sinks struct {
		AlertWebhook      string `yaml:"alert_webhook" json:"alert_webhook"`
		ExecutorURL       string `yaml:"executor_url" json:"executor_url"`
		ExecutorToken     string `yaml:"executor_token" json:"executor_token"`
		DispatchTimeoutMs int    `yaml:"dispatch_timeout_ms" json:"dispatch_timeout_ms"`
	} `yaml:"sinks" json:"sinks"`
	Account struct {
		URL        string `yaml:"url" json:"url"`
		Token      string `yaml:"token" json:"token"`
		CacheTTLMs int    `yaml:"cache_ttl_ms" json:"cache_ttl_ms"`
	} `yaml:"account" json:"account"`
	JournalDir string `yaml:"journal_dir" json:"journal_dir"`
	DryRun     *bool  `yaml:"dry_run" json:"dry_run"`
}

// 默认值
const (
	defaultInferenceTimeout = 120 * time.Second
	defaultBudgetLimit      = 60
	defaultBudgetWindow     = time.Minute
	defaultBudgetWait       = time.Second
	defaultDispatchTimeout  = 30 * time.Second
	defaultRiskProfile      = "scalp"
	defaultMetricsListen    = "127.0.0.1:6060"
	defaultWebhookListen    = ":8088"
)

// LoadDotEnv 尽力加载 .env；文件不存在不是错误
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		_ = godotenv.Load()
		return
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		_ = godotenv.Load(p)
	}
}

// LoadFromFile 从文件加载配置并应用环境变量覆盖。filePath 为空时只使用环境变量与默认值。
// 优先级：环境变量 > 配置文件 > 默认值
func LoadFromFile(filePath string) (*Config, error) {
	cf := &ConfigFile{}
	if filePath != "" {
		loaded, err := loadConfigFile(filePath)
		if err != nil {
			return nil, err
		}
		cf = loaded
	}

	dryRun := true
	if cf.DryRun != nil {
		dryRun = *cf.DryRun
	}

	cfg := &Config{
		Inference: InferenceConfig{
			BaseURL: getEnv("INFERENCE_BASE_URL", cf.Inference.BaseURL),
			APIKey:  getEnv("INFERENCE_API_KEY", cf.Inference.APIKey),
			Model:   getEnv("INFERENCE_MODEL", cf.Inference.Model),
			Timeout: msOr(parseIntEnv("INFERENCE_TIMEOUT_MS", cf.Inference.TimeoutMs), defaultInferenceTimeout),
		},
		Budget: BudgetConfig{
			Limit:  intOr(parseIntEnv("CALL_BUDGET_LIMIT", cf.Budget.Limit), defaultBudgetLimit),
			Window: msOr(parseIntEnv("CALL_BUDGET_WINDOW_MS", cf.Budget.WindowMs), defaultBudgetWindow),
			Wait:   msOr(parseIntEnv("CALL_BUDGET_WAIT_MS", cf.Budget.WaitMs), defaultBudgetWait),
		},
		RiskProfile:     strings.ToLower(getEnv("RISK_PROFILE", strOr(cf.RiskProfile, defaultRiskProfile))),
		Streams:         cf.Streams,
		Policy:          cf.Policy,
		LogLevel:        getEnv("LOG_LEVEL", strOr(cf.Log.Level, "info")),
		LogFile:         getEnv("LOG_FILE", cf.Log.File),
		MetricsListen:   getEnv("METRICS_LISTEN", strOr(cf.Metrics.Listen, defaultMetricsListen)),
		WebhookListen:   getEnv("WEBHOOK_LISTEN", strOr(cf.Webhook.Listen, defaultWebhookListen)),
		WebhookToken:    getEnv("WEBHOOK_TOKEN", cf.Webhook.Token),
		FeedWSURL:       getEnv("FEED_WS_URL", cf.Feed.WSURL),
		AlertWebhook:    getEnv("ALERT_WEBHOOK_URL", cf.Sinks.AlertWebhook),
		ExecutorURL:     getEnv("EXECUTOR_URL", cf.Sinks.ExecutorURL),
		ExecutorToken:   getEnv("EXECUTOR_TOKEN", cf.Sinks.ExecutorToken),
		AccountURL:      getEnv("ACCOUNT_URL", cf.Account.URL),
		AccountToken:    getEnv("ACCOUNT_TOKEN", cf.Account.Token),
		AccountCacheTTL: time.Duration(cf.Account.CacheTTLMs) * time.Millisecond,
		JournalDir:      getEnv("JOURNAL_DIR", cf.JournalDir),
		DryRun:          parseBoolEnv("DRY_RUN", dryRun),
		DispatchTimeout: msOr(cf.Sinks.DispatchTimeoutMs, defaultDispatchTimeout),
	}

	if raw := os.Getenv("MONITORED_SYMBOLS"); raw != "" {
		cfg.Streams = ParseStreams(raw)
	}
	return cfg, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var configFile ConfigFile
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return &configFile, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Inference.APIKey == "" {
		return fmt.Errorf("INFERENCE_API_KEY 未配置")
	}
	if c.Budget.Limit <= 0 {
		return fmt.Errorf("CALL_BUDGET_LIMIT 必须大于 0")
	}
	if c.Budget.Window <= 0 {
		return fmt.Errorf("CALL_BUDGET_WINDOW_MS 必须大于 0")
	}
	if c.Inference.Timeout <= 0 {
		return fmt.Errorf("INFERENCE_TIMEOUT_MS 必须大于 0")
	}
	if c.Policy.StrongMomentumRSI < 0 || c.Policy.StrongMomentumRSI > 100 {
		return fmt.Errorf("policy.strong_momentum_rsi 必须在 0 到 100 之间")
	}
	for i, s := range c.Streams {
		if strings.TrimSpace(s.Symbol) == "" {
			return fmt.Errorf("streams[%d].symbol 不能为空", i)
		}
	}
	if !c.DryRun && c.ExecutorURL == "" && c.AlertWebhook == "" {
		return fmt.Errorf("非 dry-run 模式需要配置 EXECUTOR_URL 或 ALERT_WEBHOOK_URL")
	}
	if c.WebhookListen == "" && c.FeedWSURL == "" {
		return fmt.Errorf("WEBHOOK_LISTEN 与 FEED_WS_URL 至少配置一个")
	}
	return nil
}

// ParseStreams 解析 "BTCUSDT:15m,ETHUSDT" 形式的监控列表
func ParseStreams(str string) []StreamConfig {
	var out []StreamConfig
	for _, part := range strings.Split(str, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		symbol, tf, _ := strings.Cut(part, ":")
		out = append(out, StreamConfig{
			Symbol:    strings.ToUpper(strings.TrimSpace(symbol)),
			Timeframe: strings.TrimSpace(tf),
		})
	}
	return out
}

func strOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func msOr(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

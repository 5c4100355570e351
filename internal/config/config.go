package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	DBPath   string

	RedisAddr string
	RedisDB   int

	// Kafka 集群地址（逗号分隔）、Topic、消费者组
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox（文档写入原子入流，Relay 异步转 Kafka）
	DocEventStream   string
	DocEventGroup    string
	DocEventConsumer string

	// Gemini 打分配置
	GeminiEndpoint  string
	GeminiAPIKey    string
	GeminiModel     string
	GeminiTemp      float64
	GeminiMaxTokens int
	OracleTimeout   time.Duration

	// 撮合参数
	MinScoreThreshold   float64
	SuggestionTTL       time.Duration
	SuggestionStaleness time.Duration
	TopNSuggestions     int

	// 过期清扫调度（cron 表达式 + 时区）
	SweepCronSpec string
	SweepTimezone string

	// 写接口限流与简单管理员令牌
	WriteRateLimit  int
	WriteRateWindow time.Duration
	AdminToken      string

	// 配送费 stub 参数
	DeliveryFeeBase  float64
	DeliveryFeePerKg float64
	DefaultCurrency  string
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DBPath:              getEnv("DB_PATH", "agrimatch.db"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:             0,
		KafkaBrokers:        splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "agrimatch-doc-events"),
		KafkaGroupID:        getEnv("KAFKA_GROUP_ID", "agrimatch-trigger-consumer"),
		DocEventStream:      getEnv("DOC_EVENT_STREAM", "agrimatch:doc_events"),
		DocEventGroup:       getEnv("DOC_EVENT_GROUP", "agrimatch-relay-group"),
		DocEventConsumer:    getEnv("DOC_EVENT_CONSUMER", "agrimatch-relay-1"),
		GeminiEndpoint:      getEnv("GEMINI_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiTemp:          0.1,
		GeminiMaxTokens:     500,
		OracleTimeout:       15 * time.Second,
		MinScoreThreshold:   0.7,
		SuggestionTTL:       24 * time.Hour,
		SuggestionStaleness: 3 * 24 * time.Hour,
		TopNSuggestions:     3,
		SweepCronSpec:       getEnv("SWEEP_CRON", "0 1 * * *"),
		SweepTimezone:       getEnv("SWEEP_TZ", "Asia/Manila"),
		WriteRateLimit:      100,
		WriteRateWindow:     time.Second,
		AdminToken:          getEnv("ADMIN_TOKEN", "dev-admin-token"),
		DeliveryFeeBase:     50,
		DeliveryFeePerKg:    2,
		DefaultCurrency:     getEnv("DEFAULT_CURRENCY", "PHP"),
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	oracleTimeoutSec, err := getEnvInt("ORACLE_TIMEOUT_SEC", int(cfg.OracleTimeout.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid ORACLE_TIMEOUT_SEC: %w", err)
	}
	if oracleTimeoutSec <= 0 {
		return AppConfig{}, fmt.Errorf("ORACLE_TIMEOUT_SEC must be > 0")
	}
	cfg.OracleTimeout = time.Duration(oracleTimeoutSec) * time.Second

	threshold, err := getEnvFloat("MIN_SCORE_THRESHOLD", cfg.MinScoreThreshold)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid MIN_SCORE_THRESHOLD: %w", err)
	}
	if threshold <= 0 || threshold > 1 {
		return AppConfig{}, fmt.Errorf("MIN_SCORE_THRESHOLD must be in (0, 1]")
	}
	cfg.MinScoreThreshold = threshold

	ttlHour, err := getEnvInt("SUGGESTION_TTL_HOUR", int(cfg.SuggestionTTL.Hours()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SUGGESTION_TTL_HOUR: %w", err)
	}
	if ttlHour <= 0 {
		return AppConfig{}, fmt.Errorf("SUGGESTION_TTL_HOUR must be > 0")
	}
	cfg.SuggestionTTL = time.Duration(ttlHour) * time.Hour

	staleHour, err := getEnvInt("SUGGESTION_STALE_HOUR", int(cfg.SuggestionStaleness.Hours()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SUGGESTION_STALE_HOUR: %w", err)
	}
	if staleHour <= 0 {
		return AppConfig{}, fmt.Errorf("SUGGESTION_STALE_HOUR must be > 0")
	}
	cfg.SuggestionStaleness = time.Duration(staleHour) * time.Hour

	topN, err := getEnvInt("TOP_N_SUGGESTIONS", cfg.TopNSuggestions)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid TOP_N_SUGGESTIONS: %w", err)
	}
	if topN <= 0 {
		return AppConfig{}, fmt.Errorf("TOP_N_SUGGESTIONS must be > 0")
	}
	cfg.TopNSuggestions = topN

	rateLimit, err := getEnvInt("WRITE_RATE_LIMIT", cfg.WriteRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid WRITE_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("WRITE_RATE_LIMIT must be > 0")
	}
	cfg.WriteRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("WRITE_RATE_WINDOW_SEC", int(cfg.WriteRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid WRITE_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("WRITE_RATE_WINDOW_SEC must be > 0")
	}
	cfg.WriteRateWindow = time.Duration(rateWindowSec) * time.Second

	feeBase, err := getEnvFloat("DELIVERY_FEE_BASE", cfg.DeliveryFeeBase)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid DELIVERY_FEE_BASE: %w", err)
	}
	if feeBase < 0 {
		return AppConfig{}, fmt.Errorf("DELIVERY_FEE_BASE must be >= 0")
	}
	cfg.DeliveryFeeBase = feeBase

	feePerKg, err := getEnvFloat("DELIVERY_FEE_PER_KG", cfg.DeliveryFeePerKg)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid DELIVERY_FEE_PER_KG: %w", err)
	}
	if feePerKg < 0 {
		return AppConfig{}, fmt.Errorf("DELIVERY_FEE_PER_KG must be >= 0")
	}
	cfg.DeliveryFeePerKg = feePerKg

	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if cfg.KafkaGroupID == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
	}
	if cfg.DocEventStream == "" {
		return AppConfig{}, fmt.Errorf("DOC_EVENT_STREAM must not be empty")
	}
	if cfg.DocEventGroup == "" {
		return AppConfig{}, fmt.Errorf("DOC_EVENT_GROUP must not be empty")
	}
	if cfg.DocEventConsumer == "" {
		return AppConfig{}, fmt.Errorf("DOC_EVENT_CONSUMER must not be empty")
	}
	if cfg.SweepCronSpec == "" {
		return AppConfig{}, fmt.Errorf("SWEEP_CRON must not be empty")
	}
	if cfg.SweepTimezone == "" {
		return AppConfig{}, fmt.Errorf("SWEEP_TZ must not be empty")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// getEnvFloat 读取浮点环境变量，若为空则返回默认值。
func getEnvFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

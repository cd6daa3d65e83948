package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// StorageConfig 定义持久化存储后端配置
type StorageConfig struct {
	Type string // 存储类型: "memory"、"pebble"、"mysql" 或 "postgres"
	Path string // Pebble 数据目录，默认 "./data/mailledger"

	// SQL 后端连接配置
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// LedgerConfig 定义存储计费与捐赠相关的业务配置
type LedgerConfig struct {
	StorageCost     uint64 // 每条消息的存储费用 = bytes_per_message * unit_cost
	DonationAccount string // 附带金额的划转目标账户
}

// NotifyConfig 定义外部通知服务配置
type NotifyConfig struct {
	URL       string        // 通知服务地址
	Secret    string        // 请求体 HMAC 签名密钥
	Timeout   time.Duration // 单次调用超时，默认 10s
	Workers   int           // 出站调用协程数，默认 4
	QueueSize int           // 出站调用队列长度，默认 64
}

// PaymentConfig 定义支付划转服务配置
type PaymentConfig struct {
	Mode    string        // "log"（开发环境模拟）或 "http"
	URL     string        // 支付服务地址（http 模式）
	Timeout time.Duration // 单次划转超时，默认 10s
}

// SMTPConfig 定义 SMTP 消息接入服务器的配置
type SMTPConfig struct {
	Enabled  bool   // 是否启用 SMTP 接入
	BindAddr string // SMTP 服务监听地址，格式 "host:port"，默认 ":2525"
	Domain   string // SMTP 服务器域名，用于 HELO/EHLO 响应
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// RedisConfig 定义 Redis 缓存服务配置
type RedisConfig struct {
	Enabled  bool   // 是否启用消息读缓存
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// JWTConfig 定义 JWT 认证相关配置
type JWTConfig struct {
	Secret        string        // JWT 签名密钥，必须至少 32 字符
	Issuer        string        // JWT 签发者标识，默认 "mailledger"
	AccessExpiry  time.Duration // 访问令牌有效期，默认 15 分钟
	RefreshExpiry time.Duration // 刷新令牌有效期，默认 7 天
}

// RateLimitConfig 定义发送类接口的限流配置
type RateLimitConfig struct {
	RPS   float64 // 每秒允许的请求数，默认 10
	Burst int     // 突发容量，默认 20
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Ledger    LedgerConfig
	Notify    NotifyConfig
	Payment   PaymentConfig
	SMTP      SMTPConfig
	CORS      CORSConfig
	Log       LogConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: MAILLEDGER_
// 例如: MAILLEDGER_SERVER_PORT, MAILLEDGER_NOTIFY_URL
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("mailledger")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.path", "./data/mailledger")
	viper.SetDefault("storage.dsn", "")
	viper.SetDefault("storage.max_open_conns", 25)
	viper.SetDefault("storage.max_idle_conns", 5)
	viper.SetDefault("storage.conn_max_lifetime", "5m")
	viper.SetDefault("ledger.bytes_per_message", 1024)
	viper.SetDefault("ledger.storage_unit_cost", 10)
	viper.SetDefault("ledger.donation_account", "treasury")
	viper.SetDefault("notify.url", "http://localhost:9090/notify")
	viper.SetDefault("notify.secret", "")
	viper.SetDefault("notify.timeout", "10s")
	viper.SetDefault("notify.workers", 4)
	viper.SetDefault("notify.queue_size", 64)
	viper.SetDefault("payment.mode", "log")
	viper.SetDefault("payment.url", "")
	viper.SetDefault("payment.timeout", "10s")
	viper.SetDefault("smtp.enabled", false)
	viper.SetDefault("smtp.bind_addr", ":2525")
	viper.SetDefault("smtp.domain", "mailledger.local")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.issuer", "mailledger")
	viper.SetDefault("jwt.access_expiry", "15m")
	viper.SetDefault("jwt.refresh_expiry", "168h")
	viper.SetDefault("ratelimit.rps", 10.0)
	viper.SetDefault("ratelimit.burst", 20)

	storageType := viper.GetString("storage.type")
	switch storageType {
	case "memory", "pebble", "mysql", "postgres":
	default:
		return nil, fmt.Errorf("invalid storage.type: %s (supported: memory, pebble, mysql, postgres)", storageType)
	}
	if (storageType == "mysql" || storageType == "postgres") && viper.GetString("storage.dsn") == "" {
		return nil, fmt.Errorf("storage.dsn is required for storage.type=%s", storageType)
	}

	bytesPerMessage := viper.GetUint64("ledger.bytes_per_message")
	unitCost := viper.GetUint64("ledger.storage_unit_cost")

	donationAccount := viper.GetString("ledger.donation_account")
	if donationAccount == "" {
		return nil, fmt.Errorf("ledger.donation_account must not be empty")
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("storage.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}
	notifyTimeout, err := time.ParseDuration(viper.GetString("notify.timeout"))
	if err != nil {
		notifyTimeout = 10 * time.Second
	}
	paymentTimeout, err := time.ParseDuration(viper.GetString("payment.timeout"))
	if err != nil {
		paymentTimeout = 10 * time.Second
	}
	accessExpiry, err := time.ParseDuration(viper.GetString("jwt.access_expiry"))
	if err != nil {
		accessExpiry = 15 * time.Minute
	}
	refreshExpiry, err := time.ParseDuration(viper.GetString("jwt.refresh_expiry"))
	if err != nil {
		refreshExpiry = 7 * 24 * time.Hour
	}

	jwtSecret := viper.GetString("jwt.secret")

	// 安全检查：禁止使用默认的 JWT secret
	if jwtSecret == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret cannot be the default value. Please set MAILLEDGER_JWT_SECRET environment variable")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	paymentMode := viper.GetString("payment.mode")
	if paymentMode != "log" && paymentMode != "http" {
		return nil, fmt.Errorf("invalid payment.mode: %s (supported: log, http)", paymentMode)
	}
	if paymentMode == "http" && viper.GetString("payment.url") == "" {
		return nil, fmt.Errorf("payment.url is required for payment.mode=http")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Storage: StorageConfig{
			Type:            storageType,
			Path:            viper.GetString("storage.path"),
			DSN:             viper.GetString("storage.dsn"),
			MaxOpenConns:    viper.GetInt("storage.max_open_conns"),
			MaxIdleConns:    viper.GetInt("storage.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Ledger: LedgerConfig{
			StorageCost:     bytesPerMessage * unitCost,
			DonationAccount: donationAccount,
		},
		Notify: NotifyConfig{
			URL:       viper.GetString("notify.url"),
			Secret:    viper.GetString("notify.secret"),
			Timeout:   notifyTimeout,
			Workers:   viper.GetInt("notify.workers"),
			QueueSize: viper.GetInt("notify.queue_size"),
		},
		Payment: PaymentConfig{
			Mode:    paymentMode,
			URL:     viper.GetString("payment.url"),
			Timeout: paymentTimeout,
		},
		SMTP: SMTPConfig{
			Enabled:  viper.GetBool("smtp.enabled"),
			BindAddr: viper.GetString("smtp.bind_addr"),
			Domain:   viper.GetString("smtp.domain"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:        jwtSecret,
			Issuer:        viper.GetString("jwt.issuer"),
			AccessExpiry:  accessExpiry,
			RefreshExpiry: refreshExpiry,
		},
		RateLimit: RateLimitConfig{
			RPS:   viper.GetFloat64("ratelimit.rps"),
			Burst: viper.GetInt("ratelimit.burst"),
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 依次尝试当前目录与父目录，找到第一个即停止。
func loadEnvFile() {
	candidates := []string{".env", filepath.Join("..", ".env")}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			_ = godotenv.Load(candidate)
			return
		}
	}
}

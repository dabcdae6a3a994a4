package config

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	App        AppConfig        `mapstructure:"app"`
	Log        LogConfig        `mapstructure:"log"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Pricing    PricingConfig    `mapstructure:"pricing"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Push       PushConfig       `mapstructure:"push"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

type ServerConfig struct {
	Port         string `mapstructure:"port"`
	Mode         string `mapstructure:"mode"`
	AllowOrigins string `mapstructure:"allow_origins"` // 逗号分隔，"*" 表示全部
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

// RedisConfig Addr 为空时不启用分布式锁
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type AppConfig struct {
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

// GatewayConfig 支付网关配置 (Razorpay 风格: key_id/key_secret + HMAC 回调签名)
type GatewayConfig struct {
	Name          string        `mapstructure:"name"`
	BaseURL       string        `mapstructure:"base_url"`
	KeyID         string        `mapstructure:"key_id"`
	KeySecret     string        `mapstructure:"key_secret"`     // 回调签名密钥，不得输出到日志
	WebhookSecret string        `mapstructure:"webhook_secret"` // Webhook 签名密钥
	Currency      string        `mapstructure:"currency"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type PricingConfig struct {
	MinFinalAmount int64 `mapstructure:"min_final_amount"` // 最低成交价 (最小货币单位)
}

type SettlementConfig struct {
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	LockTries      int           `mapstructure:"lock_tries"`
	RateLimitQPS   float64       `mapstructure:"rate_limit_qps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

type PushConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	AppKey          int64  `mapstructure:"app_key"`
	RegionID        string `mapstructure:"region_id"` // e.g., "cn-hangzhou"
}

type NotifyConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
	MaxRetry  int `mapstructure:"max_retry"`
}

var GlobalConfig Config

// Validate 验证配置
func (c *Config) Validate() error {
	// JWT 配置验证
	if c.JWT.Secret == "" || c.JWT.Secret == "your_super_secret_key" {
		return errors.New("please set a secure JWT secret in production")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT secret should be at least 32 characters")
	}

	// 数据库配置验证
	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return errors.New("database configuration is incomplete")
	}

	// 支付网关配置验证
	if c.Gateway.KeyID == "" || c.Gateway.KeySecret == "" {
		return errors.New("gateway key_id and key_secret are required")
	}
	if len(c.Gateway.KeySecret) < 16 {
		return errors.New("gateway key_secret is too short")
	}
	if c.Gateway.Timeout <= 0 {
		return errors.New("gateway timeout must be positive")
	}

	if c.Pricing.MinFinalAmount < 0 {
		return errors.New("pricing.min_final_amount cannot be negative")
	}

	return nil
}

// LoadConfig 加载配置
func LoadConfig() {
	// 获取环境变量，默认为dev
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 根据环境选择配置文件
	configName := "config"
	if env != "dev" {
		configName = "config." + env
	}

	viper.SetConfigName(configName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Config file not found, using defaults or env vars: %v", err)
	}

	// 绑定环境变量 (gateway.key_secret -> GATEWAY_KEY_SECRET)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		log.Fatalf("Unable to decode into struct: %v", err)
	}

	applyEnvOverrides(&GlobalConfig)

	// 验证配置
	if err := GlobalConfig.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	log.Printf("Configuration loaded and validated successfully. Environment: %s", GlobalConfig.App.Env)
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.allow_origins", "*")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.timezone", "UTC")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.issuer", "course-checkout")
	viper.SetDefault("app.env", "dev")
	viper.SetDefault("app.debug", true)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("gateway.name", "razorpay")
	viper.SetDefault("gateway.base_url", "https://api.razorpay.com")
	viper.SetDefault("gateway.currency", "INR")
	viper.SetDefault("gateway.timeout", 10*time.Second)
	viper.SetDefault("pricing.min_final_amount", 0)
	viper.SetDefault("settlement.lock_ttl", 15*time.Second)
	viper.SetDefault("settlement.lock_tries", 20)
	viper.SetDefault("settlement.rate_limit_qps", 50)
	viper.SetDefault("settlement.rate_limit_burst", 100)
	viper.SetDefault("push.region_id", "cn-hangzhou")
	viper.SetDefault("notify.workers", 4)
	viper.SetDefault("notify.queue_size", 1000)
	viper.SetDefault("notify.max_retry", 3)
}

// applyEnvOverrides 手动覆盖，以防 viper 无法正确解析复杂结构或环境变量
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		cfg.JWT.Secret = jwtSecret
	}
	if secret := os.Getenv("GATEWAY_KEY_SECRET"); secret != "" {
		cfg.Gateway.KeySecret = secret
	}
	if secret := os.Getenv("GATEWAY_WEBHOOK_SECRET"); secret != "" {
		cfg.Gateway.WebhookSecret = secret
	}
}

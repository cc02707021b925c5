package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	BookingUpdated string `mapstructure:"booking_updated"`
	NotifyEmail    string `mapstructure:"notify_email"`
}

// GatewayConfig 支付网关配置
// server_key 用于回调签名校验：sha512(order_id + status + gross_amount + server_key)
type GatewayConfig struct {
	ServerKey string `mapstructure:"server_key"`
}

type BusinessConfig struct {
	PaymentTimeoutMinutes int   `mapstructure:"payment_timeout_minutes"` // 支付单有效期
	MaxRetryCount         int   `mapstructure:"max_retry_count"`         // 发件箱最大重试次数
	PlatformFeePercent    int64 `mapstructure:"platform_fee_percent"`    // 平台佣金百分比
	PointEarnDivisor      int64 `mapstructure:"point_earn_divisor"`      // 每消费多少最小货币单位累积1积分
	PointValue            int64 `mapstructure:"point_value"`             // 1积分兑换的代金券面值
	VoucherValidDays      int   `mapstructure:"voucher_valid_days"`      // 代金券有效天数
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}

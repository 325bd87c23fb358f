// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	LLM      LLMConfig      `mapstructure:"llm"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储设备令牌相关的配置。
type JWTConfig struct {
	Secret          string `mapstructure:"secret"`
	DeviceTokenDays int    `mapstructure:"device_token_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储扫描事件投递的配置，Brokers 为空时不投递。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// MinIOConfig 存储扫描原图归档的配置，Endpoint 为空时不归档。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// LLMConfig 存储生成式 AI 服务相关的配置。
type LLMConfig struct {
	APIKey              string              `mapstructure:"api_key"`
	BaseURL             string              `mapstructure:"base_url"`
	Model               string              `mapstructure:"model"`
	ChatModel           string              `mapstructure:"chat_model"`
	LiveModel           string              `mapstructure:"live_model"`
	Voice               string              `mapstructure:"voice"`
	TranslationCacheTTL time.Duration       `mapstructure:"translation_cache_ttl"`
	SessionKeyTTL       time.Duration       `mapstructure:"session_key_ttl"`
	Generation          LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
}

// Init 初始化配置加载：先加载 .env，再读取 YAML，最后由 AGRI_ 前缀的环境变量覆盖。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}

// Load 读取并校验配置，不修改全局变量。
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AGRI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EnvAPIKey 按优先级读取环境中的 API Key，每次调用都重新读取。
// LLM.APIKey 只承载配置文件（或 AGRI_LLM_API_KEY）中的值，两者由调用方组合。
func EnvAPIKey() string {
	for _, key := range []string{"GEMINI_API_KEY", "API_KEY"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// ResolveAPIKey 返回配置文件中的 API Key，未设置时实时读取环境变量。
func (c LLMConfig) ResolveAPIKey() string {
	if key := strings.TrimSpace(c.APIKey); key != "" {
		return key
	}
	return EnvAPIKey()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt.device_token_days", 365)
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.chat_model", "gemini-2.5-flash")
	v.SetDefault("llm.live_model", "gemini-2.5-flash-native-audio-preview-09-2025")
	v.SetDefault("llm.voice", "Zephyr")
	v.SetDefault("llm.translation_cache_ttl", "24h")
	v.SetDefault("llm.generation.temperature", 0.2)
	v.SetDefault("llm.session_key_ttl", "12h")
	v.SetDefault("kafka.topic", "scan-events")
	v.SetDefault("minio.bucket_name", "scan-images")
}

// Validate 校验必填项
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Redis.Addr == "" {
		return fmt.Errorf("database.redis.addr is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	return nil
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EnvConfigPath 指定配置文件路径的环境变量，优先于命令行参数。
const EnvConfigPath = "AGENTPLANE_CONFIG"

// Config 描述了控制面在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	State    StateConfig    `json:"state"`
	Audit    AuditConfig    `json:"audit"`
	LLM      LLMConfig      `json:"llm"`
	Logging  LoggingConfig  `json:"logging"`
	Metrics  MetricsConfig  `json:"metrics"`
	Alerting AlertingConfig `json:"alerting"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// StorageConfig 选择生命周期记录（执行、交接、升级、智能体、
// 工作流）的持久化后端。
type StorageConfig struct {
	Driver string `json:"driver"` // memory | mysql
	DSN    string `json:"dsn"`
}

// StateConfig 选择组件状态存储的后端。状态的访问模式（高频覆盖
// 写加 TTL）适合 Redis，与生命周期记录分开配置。
type StateConfig struct {
	Driver string      `json:"driver"` // memory | mysql | redis
	DSN    string      `json:"dsn"`
	Redis  RedisConfig `json:"redis"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Addr      string `json:"addr"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// AuditConfig 配置审计链路的落点。日志落点始终开启。
type AuditConfig struct {
	MySQL    bool           `json:"mysql"`
	DSN      string         `json:"dsn"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RabbitMQConfig 描述把审计事件发布到消息队列所需的信息。
type RabbitMQConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Queue   string `json:"queue"`
}

// LLMConfig 用于配置解释服务的大模型调用方式。
type LLMConfig struct {
	Provider       string       `json:"provider"` // static | openai
	TimeoutSeconds int          `json:"timeout_seconds"`
	OpenAI         OpenAIConfig `json:"openai"`
}

// OpenAIConfig 描述调用 OpenAI 兼容接口所需的信息。
type OpenAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

// LoggingConfig 控制应用日志与审计日志文件的行为。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
}

// MetricsConfig 控制指标端点。Address 为空时不单独起指标服务。
type MetricsConfig struct {
	Address string `json:"address"`
}

// AlertingConfig 配置高优先级升级的通知渠道。
type AlertingConfig struct {
	DingTalkWebhook string   `json:"dingtalk_webhook"`
	SlackWebhook    string   `json:"slack_webhook"`
	SlackChannel    string   `json:"slack_channel"`
	EmailTo         []string `json:"email_to"`
}

// Load 解析指定路径的 JSON 配置文件。环境变量 AGENTPLANE_CONFIG
// 存在时覆盖传入的路径。
func Load(path string) (*Config, error) {
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		path = envPath
	}
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// Default 返回一套纯内存的缺省配置，便于无配置文件时直接启动。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(".")
	return cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.State.Driver == "" {
		c.State.Driver = c.Storage.Driver
		if c.State.Driver == "mysql" && c.State.DSN == "" {
			c.State.DSN = c.Storage.DSN
		}
	}
	if c.Audit.MySQL && c.Audit.DSN == "" {
		c.Audit.DSN = c.Storage.DSN
	}
	if c.Audit.RabbitMQ.Enabled && c.Audit.RabbitMQ.Queue == "" {
		c.Audit.RabbitMQ.Queue = "agentplane.audit"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "static"
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 30
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.AuditPath == "" {
		c.Logging.AuditPath = filepath.Join(baseDir, "logs", "audit.log")
	} else if !filepath.IsAbs(c.Logging.AuditPath) {
		c.Logging.AuditPath = filepath.Join(baseDir, c.Logging.AuditPath)
	}
}

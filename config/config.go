package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 风控分析平台配置
type Config struct {
	// 应用配置
	App struct {
		Name    string `yaml:"name"`    // 应用名称，默认 edgerisk
		Version string `yaml:"version"` // 版本号（仅展示用）
	} `yaml:"app"`

	// 数据配置
	Data struct {
		LedgerPath string `yaml:"ledger_path"` // 信贷台账 CSV 路径
	} `yaml:"data"`

	// 沙箱执行配置
	Sandbox struct {
		OutputDir      string `yaml:"output_dir"`      // 产物输出目录（图表、明细）
		TranscriptDir  string `yaml:"transcript_dir"`  // 执行记录目录
		TimeoutSeconds int    `yaml:"timeout_seconds"` // 单次执行超时（秒），默认600
		MaxConcurrent  int    `yaml:"max_concurrent"`  // 最大并发执行数，0表示不限制
	} `yaml:"sandbox"`

	// 数据库配置（支持 SQLite、PostgreSQL、MySQL）
	Database struct {
		Type            string `yaml:"type"`              // 数据库类型: sqlite, postgres, mysql，默认 sqlite
		DSN             string `yaml:"dsn"`               // 数据源名称，默认 ./data/edgerisk.db
		MaxOpenConns    int    `yaml:"max_open_conns"`    // 最大打开连接数，默认100
		MaxIdleConns    int    `yaml:"max_idle_conns"`    // 最大空闲连接数，默认10
		ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // 连接最大生命周期（秒），默认3600
		LogLevel        string `yaml:"log_level"`         // 日志级别: silent, error, warn, info，默认 error
	} `yaml:"database"`

	// Web 服务配置
	Web struct {
		Enabled        bool     `yaml:"enabled"`          // 是否启用 Web 服务
		Host           string   `yaml:"host"`             // 监听地址，默认 0.0.0.0
		Port           int      `yaml:"port"`             // 监听端口，默认 18888
		AllowedOrigins []string `yaml:"allowed_origins"`  // CORS 允许的来源
		RateLimitQPS   float64  `yaml:"rate_limit_qps"`   // 单IP限流 QPS，默认10
		RateLimitBurst int      `yaml:"rate_limit_burst"` // 单IP限流突发量，默认20
		AuthEnabled    bool     `yaml:"auth_enabled"`     // 是否启用密码认证
		DataDir        string   `yaml:"data_dir"`         // 认证数据库目录，默认 ./data
	} `yaml:"web"`

	// 系统配置
	System struct {
		LogLevel         string `yaml:"log_level"`          // 日志级别，默认 info
		Timezone         string `yaml:"timezone"`           // 时区，如 "Asia/Shanghai"
		Language         string `yaml:"language"`           // 界面语言，如 "zh-CN" 或 "en-US"
		LogDBPath        string `yaml:"log_db_path"`        // 日志数据库路径，默认 ./data/logs.db
		LogRetentionDays int    `yaml:"log_retention_days"` // 日志保留天数（默认30天，0表示不清理）
	} `yaml:"system"`
}

// LoadConfig 加载并校验配置文件
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes 从字节数据加载配置
func LoadConfigFromBytes(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig 保存配置到文件
func SaveConfig(cfg *Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}

	return nil
}

// Validate 校验配置并填充默认值
func (c *Config) Validate() error {
	if c.App.Name == "" {
		c.App.Name = "edgerisk"
	}

	if c.Data.LedgerPath == "" {
		return fmt.Errorf("必须配置台账数据路径 data.ledger_path")
	}

	// 沙箱默认值
	if c.Sandbox.OutputDir == "" {
		c.Sandbox.OutputDir = "./static"
	}
	if c.Sandbox.TranscriptDir == "" {
		c.Sandbox.TranscriptDir = "./transcripts"
	}
	if c.Sandbox.TimeoutSeconds <= 0 {
		c.Sandbox.TimeoutSeconds = 600
	}
	if c.Sandbox.MaxConcurrent < 0 {
		return fmt.Errorf("sandbox.max_concurrent 不能为负数")
	}

	// 数据库默认值
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	switch c.Database.Type {
	case "sqlite", "postgres", "postgresql", "mysql":
	default:
		return fmt.Errorf("不支持的数据库类型: %s", c.Database.Type)
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "./data/edgerisk.db"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 3600
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "error"
	}

	// Web 默认值
	if c.Web.Host == "" {
		c.Web.Host = "0.0.0.0"
	}
	if c.Web.Port <= 0 {
		c.Web.Port = 18888
	}
	if c.Web.Port > 65535 {
		return fmt.Errorf("无效的 Web 端口: %d", c.Web.Port)
	}
	if c.Web.RateLimitQPS <= 0 {
		c.Web.RateLimitQPS = 10
	}
	if c.Web.RateLimitBurst <= 0 {
		c.Web.RateLimitBurst = 20
	}
	if c.Web.DataDir == "" {
		c.Web.DataDir = "./data"
	}

	// 系统默认值
	if c.System.LogLevel == "" {
		c.System.LogLevel = "info"
	}
	if c.System.Timezone == "" {
		c.System.Timezone = "Asia/Shanghai"
	}
	if c.System.Language == "" {
		c.System.Language = "zh-CN"
	}
	if c.System.LogDBPath == "" {
		c.System.LogDBPath = "./data/logs.db"
	}
	if c.System.LogRetentionDays < 0 {
		return fmt.Errorf("日志保留天数不能为负数")
	}
	if c.System.LogRetentionDays == 0 {
		c.System.LogRetentionDays = 30
	}

	return nil
}

// Package config 验证引擎配置
//
// 配置来源优先级：环境变量 > 配置文件 > 默认值。
// 环境变量前缀为 KATYDID_VALIDATION_，层级用下划线分隔，
// 例如 KATYDID_VALIDATION_LOG_LEVEL=debug。
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "KATYDID_VALIDATION"

// ErrInvalidConfig 配置值不合法
var ErrInvalidConfig = errors.New("invalid validation config")

// Validation 引擎行为
type Validation struct {
	SuspendAll   bool   `mapstructure:"suspend_all"`   // 全局挂起所有实例
	Lean         bool   `mapstructure:"lean"`          // 新实例默认为轻量实例
	AutoValidate bool   `mapstructure:"auto_validate"` // 属性变更后自动验证
	TagName      string `mapstructure:"tag_name"`      // 声明式规则的结构体标签
}

// Log 日志
type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"` // 为空时输出到 stderr
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
	Compress    bool   `mapstructure:"compress"`
}

// Metrics 指标
type Metrics struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// IDGen 实例ID生成
type IDGen struct {
	DatacenterID int64 `mapstructure:"datacenter_id"`
	WorkerID     int64 `mapstructure:"worker_id"`
}

// Config 完整配置
type Config struct {
	Validation Validation `mapstructure:"validation"`
	Log        Log        `mapstructure:"log"`
	Metrics    Metrics    `mapstructure:"metrics"`
	IDGen      IDGen      `mapstructure:"idgen"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Validation: Validation{
			AutoValidate: true,
			TagName:      "validate",
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Metrics: Metrics{
			Enabled:   true,
			Namespace: "katydid",
		},
	}
}

// Load 加载配置，path 为空时只使用环境变量与默认值
// 文件格式由扩展名决定（yaml/json/toml）
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Validation.TagName == "" {
		return fmt.Errorf("%w: validation.tag_name cannot be empty", ErrInvalidConfig)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("%w: log rotation limits cannot be negative", ErrInvalidConfig)
	}
	if c.IDGen.DatacenterID < 0 || c.IDGen.WorkerID < 0 {
		return fmt.Errorf("%w: idgen ids cannot be negative", ErrInvalidConfig)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 环境变量只对设置过默认值的键生效，所以每个键都要注册默认值
	d := Default()
	v.SetDefault("validation.suspend_all", d.Validation.SuspendAll)
	v.SetDefault("validation.lean", d.Validation.Lean)
	v.SetDefault("validation.auto_validate", d.Validation.AutoValidate)
	v.SetDefault("validation.tag_name", d.Validation.TagName)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)

	v.SetDefault("idgen.datacenter_id", d.IDGen.DatacenterID)
	v.SetDefault("idgen.worker_id", d.IDGen.WorkerID)
	return v
}

package llm

import (
	"os"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// 默认值
// ═══════════════════════════════════════════════════════════════════════════

const (
	// DefaultBaseURL Neuralwatt API 地址
	DefaultBaseURL = "https://api.neuralwatt.com/v1"

	// DefaultModel 默认模型（注册表 ID）
	DefaultModel = "neuralwatt/gpt-oss-20b"

	// DefaultTimeout 默认请求超时
	DefaultTimeout = 120 * time.Second
)

// ═══════════════════════════════════════════════════════════════════════════
// Provider 配置
// ═══════════════════════════════════════════════════════════════════════════

// Config Provider 创建配置
//
// 基本用法：
//
//	cfg := llm.DefaultConfig()
//	cfg.Model = "neuralwatt-qwen3-coder"
//
// 显式配置：
//
//	cfg := &llm.Config{
//	    APIKey:  "nw-xxx",
//	    Model:   "neuralwatt/gpt-oss-20b",
//	    Timeout: 2 * time.Minute,
//	}
type Config struct {
	// APIKey（必需）
	APIKey string `mapstructure:"api_key" yaml:"api_key"`

	// 可选字段（有默认值）
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// 网络配置
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// 扩展配置
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`
}

// DefaultConfig 返回默认配置，API Key 与 Base URL 从环境变量探测
func DefaultConfig() Config {
	baseURL := GetEnvBaseURL()
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return Config{
		APIKey:  GetEnvAPIKey(),
		Model:   DefaultModel,
		BaseURL: baseURL,
		Timeout: DefaultTimeout,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 环境变量探测
// ═══════════════════════════════════════════════════════════════════════════

// GetEnvAPIKey 按优先级读取 API Key：NEURALWATT_API_KEY、LLM_API_KEY
func GetEnvAPIKey() string {
	return firstEnv("NEURALWATT_API_KEY", "LLM_API_KEY")
}

// GetEnvBaseURL 按优先级读取 Base URL：NEURALWATT_BASE_URL、LLM_BASE_URL
func GetEnvBaseURL() string {
	return firstEnv("NEURALWATT_BASE_URL", "LLM_BASE_URL")
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Package provider 提供 LLM Provider 的统一工厂
//
// 使用方式：
//
//	p, err := provider.New(&llm.Config{
//	    APIKey: "nw-xxx",
//	    Model:  "neuralwatt-gpt-oss",
//	})
//
//	// 从环境变量读取配置
//	p, err := provider.Default()
package provider

import (
	"github.com/charmbracelet/log"

	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm/provider/neuralwatt"
)

// ═══════════════════════════════════════════════════════════════════════════
// 选项
// ═══════════════════════════════════════════════════════════════════════════

type options struct {
	logger   *log.Logger
	registry *llm.Registry
}

// Option 工厂选项
type Option func(*options)

// WithLogger 设置 Provider 使用的日志记录器
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRegistry 设置模型注册表
func WithRegistry(r *llm.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 工厂函数
// ═══════════════════════════════════════════════════════════════════════════

// New 创建 Provider
//
// 未设置的字段使用默认值：Model 为 [llm.DefaultModel]，BaseURL 为 [llm.DefaultBaseURL]。
func New(cfg *llm.Config, opts ...Option) (*neuralwatt.Client, error) {
	if cfg == nil {
		return nil, llm.NewConfigError("config is required", nil)
	}
	if cfg.APIKey == "" {
		return nil, llm.NewConfigError("API key is required (set NEURALWATT_API_KEY)", nil)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	model := cfg.Model
	if model == "" {
		model = llm.DefaultModel
	}

	return neuralwatt.New(&neuralwatt.Config{
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Model:    model,
		Timeout:  cfg.Timeout,
		Headers:  cfg.Headers,
		Logger:   o.logger,
		Registry: o.registry,
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// 便捷函数
// ═══════════════════════════════════════════════════════════════════════════

// Must 创建 Provider，失败时 panic
func Must(cfg *llm.Config, opts ...Option) *neuralwatt.Client {
	p, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Default 使用默认配置创建 Provider，API Key 从环境变量读取
func Default(opts ...Option) (*neuralwatt.Client, error) {
	cfg := llm.DefaultConfig()
	return New(&cfg, opts...)
}

// 确保工厂返回的类型实现了 llm.Provider 接口
var _ llm.Provider = (*neuralwatt.Client)(nil)

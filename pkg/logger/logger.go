// Package logger 提供基于 charmbracelet/log 的日志记录器构建
//
// 库代码接收 *log.Logger，由调用方（通常是 CLI）决定输出格式与级别：
//
//	l := logger.New(logger.WithDebug(true), logger.WithPrefix("neuralwatt"))
//	l.Info("stream finished", "chunks", 12)
//
// 默认输出到 os.Stderr，使 stdout 只包含模型输出。
package logger

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// ═══════════════════════════════════════════════════════════════════════════
// 选项
// ═══════════════════════════════════════════════════════════════════════════

type config struct {
	writer    io.Writer
	level     log.Level
	json      bool
	prefix    string
	timestamp bool
}

// Option 日志配置选项
type Option func(*config)

// WithDebug 为 true 时输出 Debug 级别日志，否则为 Info
func WithDebug(debug bool) Option {
	return func(c *config) {
		if debug {
			c.level = log.DebugLevel
		} else {
			c.level = log.InfoLevel
		}
	}
}

// WithJSON 使用 JSON 格式输出，便于采集
func WithJSON(json bool) Option {
	return func(c *config) {
		c.json = json
	}
}

// WithWriter 设置输出目标，默认 os.Stderr
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.writer = w
		}
	}
}

// WithPrefix 设置日志前缀
func WithPrefix(prefix string) Option {
	return func(c *config) {
		c.prefix = prefix
	}
}

// WithTimestamp 是否输出时间戳
func WithTimestamp(on bool) Option {
	return func(c *config) {
		c.timestamp = on
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 构建
// ═══════════════════════════════════════════════════════════════════════════

// New 创建日志记录器
func New(opts ...Option) *log.Logger {
	c := &config{
		writer: os.Stderr,
		level:  log.InfoLevel,
	}
	for _, opt := range opts {
		opt(c)
	}

	formatter := log.TextFormatter
	if c.json {
		formatter = log.JSONFormatter
	}

	return log.NewWithOptions(c.writer, log.Options{
		Level:           c.level,
		Prefix:          c.prefix,
		ReportTimestamp: c.timestamp,
		Formatter:       formatter,
	})
}

// Nop 丢弃所有输出的日志记录器
func Nop() *log.Logger {
	return log.New(io.Discard)
}

package core

import (
	"errors"
	"io"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 选项
// ═══════════════════════════════════════════════════════════════════════════

type streamConfig struct {
	logger   *log.Logger
	readSize int
	buffer   int
}

// StreamOption 流配置选项
type StreamOption func(*streamConfig)

// WithLogger 设置日志记录器，默认丢弃所有日志
func WithLogger(logger *log.Logger) StreamOption {
	return func(c *streamConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithReadSize 设置单次从字节源读取的字节数
func WithReadSize(n int) StreamOption {
	return func(c *streamConfig) {
		c.readSize = n
	}
}

// WithBuffer 设置 AsyncStream 文本 channel 的缓冲区大小，默认 10
func WithBuffer(n int) StreamOption {
	return func(c *streamConfig) {
		if n >= 0 {
			c.buffer = n
		}
	}
}

func newStreamConfig(opts []StreamOption) *streamConfig {
	c := &streamConfig{
		logger:   log.New(io.Discard),
		readSize: defaultReadSize,
		buffer:   10,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ═══════════════════════════════════════════════════════════════════════════
// Stream - 同步拉模式
// ═══════════════════════════════════════════════════════════════════════════

// Stream 同步流式响应
//
// 解码器与聚合器组成的单一顺序管道，由调用方逐步推进。
// 每个文本片段在读取下一个事件之前交给调用方；完整的聚合结果
// 只有在流耗尽后才可用。
//
// 使用示例：
//
//	stream := core.NewStream(resp.Body, openai.NewChunkHandler())
//	defer stream.Close()
//
//	for stream.Next() {
//	    fmt.Print(stream.Text())
//	}
//	result, err := stream.Response()
//
// 行为：
//   - 终止符、输入结束或出错时自动关闭字节源
//   - 输入在终止符之前结束按隐式终止处理，Response.Terminated 为 false
//   - 解码错误与传输错误是致命的，已转发的文本不会撤回
//   - 完成前调用 Close 会释放字节源并丢弃已累积的状态
//
// 除 Close 外的方法只能在同一个 goroutine 中调用。
type Stream struct {
	body      io.Closer
	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool

	reader *Reader
	agg    *Aggregator
	logger *log.Logger

	text string
	resp *llm.Response
	err  error
	done bool
}

// NewStream 创建同步流
func NewStream(body io.ReadCloser, handler ChunkHandler, opts ...StreamOption) *Stream {
	cfg := newStreamConfig(opts)
	return &Stream{
		body:   body,
		reader: NewReader(body, cfg.readSize),
		agg:    NewAggregator(handler),
		logger: cfg.logger,
	}
}

// Next 推进到下一个非空文本片段
//
// 流结束（终止符或输入耗尽）或出错时返回 false，之后通过 Err 或 Response 获取结果。
func (s *Stream) Next() bool {
	if s.done {
		return false
	}

	for {
		if s.closed.Load() {
			s.finish(nil)
			return false
		}

		event, err := s.reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			s.finish(err)
			return false
		}

		fragment, done := s.agg.Add(event)
		if done {
			s.finish(nil)
			return false
		}
		if fragment != "" {
			s.text = fragment
			return true
		}
	}
}

// Text 当前文本片段
func (s *Stream) Text() string {
	return s.text
}

// Err 第一个致命错误，正常结束时为 nil
func (s *Stream) Err() error {
	return s.err
}

// Response 耗尽剩余事件并返回聚合结果
//
// 剩余的文本片段不再单独返回，但仍会计入聚合结果。
func (s *Stream) Response() (*llm.Response, error) {
	for s.Next() {
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.resp.Clone(), nil
}

// Consume 将每个文本片段交给 fn，返回聚合结果
func (s *Stream) Consume(fn func(fragment string)) (*llm.Response, error) {
	for s.Next() {
		fn(s.Text())
	}
	return s.Response()
}

// Fragments 以迭代器形式返回文本片段
//
// 提前退出迭代会关闭流。
//
//	for text := range stream.Fragments() {
//	    fmt.Print(text)
//	}
func (s *Stream) Fragments() iter.Seq[string] {
	return func(yield func(string) bool) {
		for s.Next() {
			if !yield(s.Text()) {
				_ = s.Close()
				return
			}
		}
	}
}

// Terminated 是否观察到显式终止符
func (s *Stream) Terminated() bool {
	return s.resp != nil && s.resp.Terminated
}

// Close 释放字节源
//
// 可重复调用，可从其他 goroutine 调用以中止阻塞中的读取。
// 流完成之前关闭时，后续的 Response 返回 [llm.StreamError]。
func (s *Stream) Close() error {
	s.closed.Store(true)
	return s.release()
}

func (s *Stream) release() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// finish 结束消费并释放字节源
func (s *Stream) finish(err error) {
	s.done = true
	s.text = ""
	_ = s.release()

	if s.closed.Load() && !s.agg.Terminated() {
		// 调用方已放弃：丢弃部分状态
		s.agg = nil
		s.err = llm.NewStreamError("stream closed before completion", err)
		s.logger.Debug("stream abandoned")
		return
	}

	if err != nil {
		s.err = err
		s.logger.Debug("stream failed", "err", err)
		return
	}

	s.resp = s.agg.Result()
	if !s.resp.Terminated {
		s.logger.Warn("stream ended without [DONE], treating as implicit terminator",
			"chunks", len(s.resp.Chunks))
	}
	s.logger.Debug("stream finished",
		"chunks", len(s.resp.Chunks),
		"terminated", s.resp.Terminated,
		"energy", s.resp.HasEnergy())
}

// 确保 Stream 实现了 llm.ResponseStream 接口
var _ llm.ResponseStream = (*Stream)(nil)

package core

import (
	"context"
	"io"

	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// AsyncStream - 异步 channel 模式
// ═══════════════════════════════════════════════════════════════════════════

// AsyncStream 异步流式响应
//
// 在独立的 goroutine 中驱动与 [Stream] 相同的解码/聚合管道，
// 文本片段通过 channel 送出，等待网络数据时不阻塞调用方的其他工作。
// 相同的字节输入与 Stream 产生完全相同的结果。
//
// 使用示例：
//
//	as := core.NewAsyncStream(ctx, resp.Body, openai.NewChunkHandler())
//	for text := range as.Fragments() {
//	    fmt.Print(text)
//	}
//	result, err := as.Wait()
//
// 取消（ctx 取消或调用 Cancel）会关闭字节源，停止产生事件，
// Wait 返回包装了取消原因的 [llm.StreamError]。
type AsyncStream struct {
	stream    *Stream
	fragments chan string
	done      chan struct{}
	cancel    context.CancelFunc

	resp *llm.Response
	err  error
}

// NewAsyncStream 创建异步流并立即开始消费字节源
func NewAsyncStream(ctx context.Context, body io.ReadCloser, handler ChunkHandler, opts ...StreamOption) *AsyncStream {
	cfg := newStreamConfig(opts)
	ctx, cancel := context.WithCancel(ctx)

	a := &AsyncStream{
		stream:    NewStream(body, handler, opts...),
		fragments: make(chan string, cfg.buffer),
		done:      make(chan struct{}),
		cancel:    cancel,
	}

	// ctx 取消时关闭字节源，中止阻塞中的读取
	stop := context.AfterFunc(ctx, func() { _ = a.stream.Close() })

	go a.run(ctx, stop)
	return a
}

func (a *AsyncStream) run(ctx context.Context, stop func() bool) {
	defer a.cancel()
	defer close(a.done)
	defer close(a.fragments)
	defer stop()

	for a.stream.Next() {
		select {
		case a.fragments <- a.stream.Text():
		case <-ctx.Done():
			_ = a.stream.Close()
		}
	}

	a.resp, a.err = a.stream.Response()
	// 取消导致的读取失败统一报告为取消
	if a.err != nil && ctx.Err() != nil {
		a.err = llm.NewStreamError("stream canceled", context.Cause(ctx))
	}
}

// Fragments 文本片段 channel，流结束后关闭
func (a *AsyncStream) Fragments() <-chan string {
	return a.fragments
}

// Done 流结束后关闭的 channel
func (a *AsyncStream) Done() <-chan struct{} {
	return a.done
}

// Wait 等待流结束并返回聚合结果
//
// 未读取的文本片段会被丢弃（仍计入聚合结果）。
// 不应与 Fragments 的读取在不同 goroutine 中同时进行。
func (a *AsyncStream) Wait() (*llm.Response, error) {
	for range a.fragments {
	}
	<-a.done
	return a.resp, a.err
}

// Cancel 放弃消费，关闭字节源
func (a *AsyncStream) Cancel() {
	a.cancel()
}

package core

import (
	"maps"
	"slices"
	"strings"

	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 增量提取接口
// ═══════════════════════════════════════════════════════════════════════════

// ChunkHandler 内容增量提取接口
//
// 每种流式协议实现此接口，说明一个内容增量负载中的文本片段、
// 完成原因、标识等字段位于何处。聚合器只负责合并规则。
type ChunkHandler interface {
	// HandleChunk 从单个内容增量负载中提取字段
	//
	// 缺失的字段返回零值，不应修改 data。
	HandleChunk(data map[string]any) Delta
}

// Delta 单个内容增量中提取出的字段
type Delta struct {
	ID           string
	Model        string
	Created      int64
	Role         string
	Text         string
	FinishReason string
	Usage        map[string]any
}

// ═══════════════════════════════════════════════════════════════════════════
// Aggregator - 流聚合器
// ═══════════════════════════════════════════════════════════════════════════

// Aggregator 将事件序列折叠为一个 [llm.Response]
//
// 合并规则（按到达顺序逐个负载应用）：
//   - 文本片段按顺序拼接
//   - finish_reason：最后一个非空值生效，空值不会覆盖已有值
//   - usage：最后一次出现生效
//   - id / model / created：第一次出现生效
//   - role：第一个非空值生效
//   - 侧信道：最后一个生效，单独存放，不参与内容合并
//
// Aggregator 不是并发安全的，每个请求应使用独立的实例。
type Aggregator struct {
	handler ChunkHandler

	chunks       []map[string]any
	energy       map[string]any
	text         strings.Builder
	id           string
	model        string
	created      int64
	role         string
	finishReason string
	usage        map[string]any
	terminated   bool
}

// NewAggregator 创建聚合器
func NewAggregator(handler ChunkHandler) *Aggregator {
	return &Aggregator{handler: handler}
}

// Add 消费一个事件
//
// 返回：
//   - fragment: 需要立即转发给调用方的文本片段（无则为空）
//   - done: 是否为终止事件，调用方应停止消费并调用 Result
//
// 终止之后的事件被忽略。
func (a *Aggregator) Add(event llm.Event) (fragment string, done bool) {
	if a.terminated {
		return "", true
	}

	switch event.Type {
	case llm.EventTypeChunk:
		return a.addChunk(event.Data), false
	case llm.EventTypeEnergy:
		a.energy = event.Data
		return "", false
	case llm.EventTypeDone:
		a.terminated = true
		return "", true
	default:
		return "", false
	}
}

func (a *Aggregator) addChunk(data map[string]any) string {
	a.chunks = append(a.chunks, data)

	d := a.handler.HandleChunk(data)

	if a.id == "" {
		a.id = d.ID
	}
	if a.model == "" {
		a.model = d.Model
	}
	if a.created == 0 {
		a.created = d.Created
	}
	if a.role == "" {
		a.role = d.Role
	}
	if d.FinishReason != "" {
		a.finishReason = d.FinishReason
	}
	if d.Usage != nil {
		a.usage = d.Usage
	}

	a.text.WriteString(d.Text)
	return d.Text
}

// Terminated 是否已收到终止事件
func (a *Aggregator) Terminated() bool {
	return a.terminated
}

// Text 当前累积的文本
func (a *Aggregator) Text() string {
	return a.text.String()
}

// Result 构建聚合结果
//
// 可在任意时刻调用；未收到终止事件时结果的 Terminated 为 false（隐式终止）。
// 返回的 Response 是独立副本，之后的 Add 不会影响它。
func (a *Aggregator) Result() *llm.Response {
	return &llm.Response{
		ID:           a.id,
		Model:        a.model,
		Created:      a.created,
		Role:         llm.Role(a.role),
		Content:      a.text.String(),
		FinishReason: a.finishReason,
		Usage:        maps.Clone(a.usage),
		Energy:       maps.Clone(a.energy),
		Chunks:       slices.Clone(a.chunks),
		Terminated:   a.terminated,
	}
}

// Aggregate 便捷函数：折叠完整的事件序列
func Aggregate(handler ChunkHandler, events []llm.Event) *llm.Response {
	a := NewAggregator(handler)
	for _, e := range events {
		if _, done := a.Add(e); done {
			break
		}
	}
	return a.Result()
}

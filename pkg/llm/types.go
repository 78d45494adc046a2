package llm

import (
	"context"
	"maps"
	"slices"
)

// ═══════════════════════════════════════════════════════════════════════════
// Provider 接口
// ═══════════════════════════════════════════════════════════════════════════

// Provider LLM 提供者接口
type Provider interface {
	// Complete 同步完成
	Complete(ctx context.Context, messages []Message, opts *Options) (*Response, error)

	// Stream 流式完成
	Stream(ctx context.Context, messages []Message, opts *Options) (ResponseStream, error)

	// Close 关闭连接
	Close() error
}

// ResponseStream 流式响应
//
// 文本增量逐个实时返回，完整的聚合结果仅在流耗尽后可用。
//
//	for stream.Next() {
//	    fmt.Print(stream.Text())
//	}
//	resp, err := stream.Response()
type ResponseStream interface {
	// Next 推进到下一个非空文本增量，流结束或出错时返回 false
	Next() bool

	// Text 当前文本增量
	Text() string

	// Err 第一个致命错误
	Err() error

	// Response 耗尽剩余事件并返回聚合结果
	Response() (*Response, error)

	// Close 释放底层连接，未完成的聚合状态被丢弃
	Close() error
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求选项
// ═══════════════════════════════════════════════════════════════════════════

// Options 请求选项
type Options struct {
	// 基础配置
	System      string   `json:"system,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`

	// 采样参数
	TopP             float64  `json:"top_p,omitempty"`
	FrequencyPenalty float64  `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64  `json:"presence_penalty,omitempty"`
	StopSequences    []string `json:"stop_sequences,omitempty"`

	// IncludeUsage 请求在流末尾附带 usage（stream_options.include_usage）
	IncludeUsage bool `json:"include_usage,omitempty"`

	// 扩展：原样合并进请求体
	Extra map[string]any `json:"extra,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════
// 聚合响应
// ═══════════════════════════════════════════════════════════════════════════

// Response 聚合响应
//
// 流式请求由 core.Aggregator 逐块构建；非流式请求直接由响应体解析。
// 返回给调用方后不再被修改。
type Response struct {
	// 合并字段
	ID           string         `json:"id,omitempty"`            // 首个出现的 id
	Model        string         `json:"model,omitempty"`         // 首个出现的 model
	Created      int64          `json:"created,omitempty"`       // 首个出现的 created
	Role         Role           `json:"role,omitempty"`          // 首个非空 role
	Content      string         `json:"content"`                 // 文本增量按序拼接
	FinishReason string         `json:"finish_reason,omitempty"` // 最后一个非空 finish_reason
	Usage        map[string]any `json:"usage,omitempty"`         // 最后一次出现的 usage

	// ToolCalls 工具调用，仅非流式响应填充
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Energy 侧信道原始对象（最后一个生效），与内容字段分开存放
	Energy map[string]any `json:"energy,omitempty"`

	// Chunks 所有内容增量负载（到达顺序，保留重复）
	Chunks []map[string]any `json:"-"`

	// Terminated 是否观察到显式终止符 [DONE]
	//
	// 输入在终止符之前耗尽时按隐式终止处理，此字段为 false，
	// 需要严格模式的调用方可据此判断连接是否被截断。
	Terminated bool `json:"-"`
}

// JSON 返回聚合对象
//
// 侧信道位于独立的 "energy" 键下，不与增量字段混合。
func (r *Response) JSON() map[string]any {
	out := map[string]any{
		"content": r.Content,
	}
	if r.ID != "" {
		out["id"] = r.ID
	}
	if r.Model != "" {
		out["model"] = r.Model
	}
	if r.Created != 0 {
		out["created"] = r.Created
	}
	if r.Role != "" {
		out["role"] = string(r.Role)
	}
	if r.FinishReason != "" {
		out["finish_reason"] = r.FinishReason
	}
	if r.Usage != nil {
		out["usage"] = maps.Clone(r.Usage)
	}
	if len(r.ToolCalls) > 0 {
		calls := make([]any, len(r.ToolCalls))
		for i, tc := range r.ToolCalls {
			calls[i] = map[string]any{"id": tc.ID, "name": tc.Name, "arguments": maps.Clone(tc.Input)}
		}
		out["tool_calls"] = calls
	}
	if r.Energy != nil {
		out["energy"] = maps.Clone(r.Energy)
	}
	return out
}

// HasEnergy 是否捕获到能耗数据
func (r *Response) HasEnergy() bool {
	return r.Energy != nil
}

// HasToolCalls 是否包含工具调用
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// EnergyReport 返回类型化的能耗数据
func (r *Response) EnergyReport() (*Energy, error) {
	return ParseEnergy(r.Energy)
}

// TokenUsage 返回类型化的 Token 使用量，无 usage 时返回 nil
func (r *Response) TokenUsage() *TokenUsage {
	if r.Usage == nil {
		return nil
	}
	u := &TokenUsage{
		InputTokens:  toInt64(r.Usage["prompt_tokens"]),
		OutputTokens: toInt64(r.Usage["completion_tokens"]),
		TotalTokens:  toInt64(r.Usage["total_tokens"]),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return u
}

// Clone 深拷贝顶层容器
func (r *Response) Clone() *Response {
	c := *r
	c.Usage = maps.Clone(r.Usage)
	c.Energy = maps.Clone(r.Energy)
	c.Chunks = slices.Clone(r.Chunks)
	c.ToolCalls = slices.Clone(r.ToolCalls)
	return &c
}

// TokenUsage Token 使用量
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// toInt64 与 core.GetInt64 规则相同；core 依赖本包，这里不能反向引用
func toInt64(val any) int64 {
	switch v := val.(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}

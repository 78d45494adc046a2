package openai

import (
	"encoding/json"
	"fmt"

	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// OpenAI 协议适配器
// ═══════════════════════════════════════════════════════════════════════════

// Adapter OpenAI Chat Completions 协议适配器
//
// 负责请求消息的构建与非流式响应的解析，流式增量由 [ChunkHandler] 处理。
type Adapter struct{}

// NewAdapter 创建 OpenAI 协议适配器
func NewAdapter() *Adapter {
	return &Adapter{}
}

// ═══════════════════════════════════════════════════════════════════════════
// BuildMessages - 构建请求消息
// ═══════════════════════════════════════════════════════════════════════════

// BuildMessages 将消息列表转换为 OpenAI 请求格式
//
// system 非空且消息列表中没有系统消息时，作为第一条消息插入。
func (a *Adapter) BuildMessages(messages []llm.Message, system string) []map[string]any {
	result := make([]map[string]any, 0, len(messages)+1)

	if system != "" && !llm.HasSystem(messages) {
		result = append(result, map[string]any{
			"role":    string(llm.RoleSystem),
			"content": system,
		})
	}

	for _, msg := range messages {
		result = append(result, map[string]any{
			"role":    string(msg.Role),
			"content": msg.Content,
		})
	}

	return result
}

// ═══════════════════════════════════════════════════════════════════════════
// ParseResponse - 解析非流式响应
// ═══════════════════════════════════════════════════════════════════════════

// ParseResponse 解析 chat.completion 响应体
//
// 除标准字段外，保留响应体中的 "energy" 对象，并提取工具调用：
//
//	{
//	  "id": "chatcmpl-123",
//	  "choices": [{
//	    "message": {
//	      "role": "assistant",
//	      "content": null,
//	      "tool_calls": [{"id": "call_1", "function": {"name": "get_weather", "arguments": "{\"city\":\"Oslo\"}"}}]
//	    },
//	    "finish_reason": "tool_calls"
//	  }],
//	  "usage": {...},
//	  "energy": {"energy_joules": 30.42, ...}
//	}
//
// arguments 为字符串时按 JSON 解析，解析失败返回 [llm.ResponseError]；
// 已经是对象时原样使用。
func (a *Adapter) ParseResponse(body map[string]any) (*llm.Response, error) {
	resp := &llm.Response{
		ID:         core.GetString(body["id"]),
		Model:      core.GetString(body["model"]),
		Created:    core.GetInt64(body["created"]),
		Usage:      core.GetMap(body["usage"]),
		Energy:     core.GetMap(body["energy"]),
		Terminated: true,
	}

	choice := firstChoice(body)
	if choice == nil {
		return resp, nil
	}

	resp.FinishReason = core.GetString(choice["finish_reason"])
	message := core.GetMap(choice["message"])
	resp.Content = core.GetString(message["content"])
	resp.Role = llm.Role(core.GetString(message["role"]))

	calls, err := parseToolCalls(message["tool_calls"])
	if err != nil {
		return nil, err
	}
	resp.ToolCalls = calls

	return resp, nil
}

func parseToolCalls(val any) ([]llm.ToolCall, error) {
	items, _ := val.([]any)
	if len(items) == 0 {
		return nil, nil
	}

	calls := make([]llm.ToolCall, 0, len(items))
	for i, item := range items {
		tc := core.GetMap(item)
		fn := core.GetMap(tc["function"])

		call := llm.ToolCall{
			ID:   core.GetString(tc["id"]),
			Name: core.GetString(fn["name"]),
		}

		switch args := fn["arguments"].(type) {
		case string:
			// 空字符串表示无参数
			if args != "" {
				if err := json.Unmarshal([]byte(args), &call.Input); err != nil {
					field := fmt.Sprintf("tool_calls[%d].function.arguments", i)
					return nil, llm.NewResponseError(field, err)
				}
			}
		case map[string]any:
			call.Input = args
		}

		calls = append(calls, call)
	}
	return calls, nil
}

package openai

import (
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// OpenAI 流式增量提取
// ═══════════════════════════════════════════════════════════════════════════

// ChunkHandler OpenAI chat.completion.chunk 增量提取器
//
// 实现 core.ChunkHandler 接口。只读取 choices[0]：
//
//	{
//	  "id": "chatcmpl-123",
//	  "model": "openai/gpt-oss-20b",
//	  "created": 1700000000,
//	  "choices": [{
//	    "delta": {"role": "assistant", "content": "..."},
//	    "finish_reason": "stop"
//	  }],
//	  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
//	}
//
// 结构不符合预期的字段被视为缺失，不会 panic。
type ChunkHandler struct{}

// NewChunkHandler 创建 OpenAI 增量提取器
func NewChunkHandler() *ChunkHandler {
	return &ChunkHandler{}
}

// HandleChunk 提取单个增量负载中的字段
func (h *ChunkHandler) HandleChunk(data map[string]any) core.Delta {
	d := core.Delta{
		ID:      core.GetString(data["id"]),
		Model:   core.GetString(data["model"]),
		Created: core.GetInt64(data["created"]),
	}

	d.Usage = core.GetMap(data["usage"])

	choice := firstChoice(data)
	if choice == nil {
		return d
	}

	d.FinishReason = core.GetString(choice["finish_reason"])

	delta := core.GetMap(choice["delta"])
	d.Text = core.GetString(delta["content"])
	d.Role = core.GetString(delta["role"])

	return d
}

// firstChoice 返回 choices[0]，不存在或类型不符时返回 nil
func firstChoice(data map[string]any) map[string]any {
	choices, _ := data["choices"].([]any)
	if len(choices) == 0 {
		return nil
	}
	return core.GetMap(choices[0])
}

// 确保 ChunkHandler 实现了 core.ChunkHandler 接口
var _ core.ChunkHandler = (*ChunkHandler)(nil)

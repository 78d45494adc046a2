package localmock

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ═══════════════════════════════════════════════════════════════════════════
// 响应脚本
// ═══════════════════════════════════════════════════════════════════════════

// Script 一次响应的内容描述
//
// 流式请求按顺序输出：每个文本片段一个内容增量（片段之间插入注释行），
// 带 finish_reason 与 usage 的结束增量，Raw 原始行，能耗注释，最后是终止符。
// 非流式请求返回同样内容拼接后的 chat.completion 对象。
//
// 也可以从 YAML 加载：
//
//	id: chatcmpl-mock
//	model: openai/gpt-oss-20b
//	fragments: ["Hel", "lo"]
//	comments: ["keep-alive"]
//	energy:
//	  energy_joules: 1.0
type Script struct {
	ID           string         `yaml:"id" json:"id"`
	Model        string         `yaml:"model" json:"model"`
	Created      int64          `yaml:"created" json:"created"`
	Fragments    []string       `yaml:"fragments" json:"fragments"`
	Comments     []string       `yaml:"comments,omitempty" json:"comments,omitempty"`
	FinishReason string         `yaml:"finish_reason" json:"finish_reason"`
	Usage        map[string]any `yaml:"usage,omitempty" json:"usage,omitempty"`
	Energy       map[string]any `yaml:"energy,omitempty" json:"energy,omitempty"`

	// Raw 原样写入的行（位于能耗注释之前），用于构造异常输入
	Raw []string `yaml:"raw,omitempty" json:"raw,omitempty"`

	// NoTerminator 不输出 "data: [DONE]"
	NoTerminator bool `yaml:"no_terminator,omitempty" json:"no_terminator,omitempty"`

	// ToolCalls 非流式响应中 message.tool_calls 的原样内容
	ToolCalls []map[string]any `yaml:"tool_calls,omitempty" json:"tool_calls,omitempty"`
}

// DefaultScript 默认响应脚本
func DefaultScript() Script {
	return Script{
		ID:           "chatcmpl-mock",
		Model:        "openai/gpt-oss-20b",
		Created:      1700000000,
		Fragments:    []string{"This is ", "a mock ", "response."},
		FinishReason: "stop",
		Usage: map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 5,
			"total_tokens":      15,
		},
		Energy: map[string]any{
			"energy_joules":      30.42,
			"energy_kwh":         8.45e-06,
			"avg_power_watts":    350.1,
			"duration_seconds":   0.087,
			"attribution_method": "prorated",
			"attribution_ratio":  0.25,
		},
	}
}

// LoadScriptFile 从 YAML 文件加载脚本
func LoadScriptFile(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read script file: %w", err)
	}
	return LoadScript(data)
}

// LoadScript 从 YAML 数据加载脚本，未设置的字段使用默认值
func LoadScript(data []byte) (Script, error) {
	s := DefaultScript()
	s.Fragments = nil
	s.Energy = nil
	s.Usage = nil
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("parse YAML: %w", err)
	}
	return s, nil
}

// Text 所有片段拼接后的文本
func (s Script) Text() string {
	return strings.Join(s.Fragments, "")
}

// ═══════════════════════════════════════════════════════════════════════════
// 线路编码
// ═══════════════════════════════════════════════════════════════════════════

// Lines 流式响应的全部行（不含换行符）
func (s Script) Lines() []string {
	var lines []string
	emit := func(line string) {
		lines = append(lines, line, "")
	}

	for i, fragment := range s.Fragments {
		delta := map[string]any{"content": fragment}
		if i == 0 {
			delta["role"] = "assistant"
		}
		emit("data: " + s.chunkJSON(delta, nil, nil))
		if len(s.Comments) > 0 {
			emit(": " + s.Comments[i%len(s.Comments)])
		}
	}

	if s.FinishReason != "" || s.Usage != nil {
		var finish any
		if s.FinishReason != "" {
			finish = s.FinishReason
		}
		emit("data: " + s.chunkJSON(map[string]any{}, finish, s.Usage))
	}

	lines = append(lines, s.Raw...)

	if s.Energy != nil {
		emit(": energy " + mustJSON(s.Energy))
	}

	if !s.NoTerminator {
		emit("data: [DONE]")
	}
	return lines
}

// Bytes 流式响应的线路字节
func (s Script) Bytes() []byte {
	lines := s.Lines()
	if len(lines) == 0 {
		return nil
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

// Completion 非流式响应体
func (s Script) Completion() map[string]any {
	message := map[string]any{"role": "assistant", "content": s.Text()}
	if len(s.ToolCalls) > 0 {
		calls := make([]any, len(s.ToolCalls))
		for i, tc := range s.ToolCalls {
			calls[i] = tc
		}
		message["tool_calls"] = calls
	}

	body := map[string]any{
		"id":      s.ID,
		"object":  "chat.completion",
		"model":   s.Model,
		"created": s.Created,
		"choices": []any{
			map[string]any{
				"index":         0,
				"message":       message,
				"finish_reason": s.FinishReason,
			},
		},
	}
	if s.Usage != nil {
		body["usage"] = s.Usage
	}
	if s.Energy != nil {
		body["energy"] = s.Energy
	}
	return body
}

func (s Script) chunkJSON(delta map[string]any, finishReason any, usage map[string]any) string {
	chunk := map[string]any{
		"id":      s.ID,
		"object":  "chat.completion.chunk",
		"model":   s.Model,
		"created": s.Created,
		"choices": []any{
			map[string]any{"index": 0, "delta": delta, "finish_reason": finishReason},
		},
	}
	if usage != nil {
		chunk["usage"] = usage
	}
	return mustJSON(chunk)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("localmock: marshal: %v", err))
	}
	return string(b)
}

package llm

// ═══════════════════════════════════════════════════════════════════════════
// 角色定义
// ═══════════════════════════════════════════════════════════════════════════

// Role 消息角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ═══════════════════════════════════════════════════════════════════════════
// 消息结构
// ═══════════════════════════════════════════════════════════════════════════

// Message 对话消息
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage 创建用户消息
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// SystemMessage 创建系统消息
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// AssistantMessage 创建助手消息
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// HasSystem 消息列表中是否已包含系统消息
func HasSystem(messages []Message) bool {
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			return true
		}
	}
	return false
}

// ═══════════════════════════════════════════════════════════════════════════
// 工具调用
// ═══════════════════════════════════════════════════════════════════════════

// ToolCall 模型发起的工具调用
//
// 来自非流式响应的 choices[0].message.tool_calls。OpenAI 协议中
// function.arguments 是 JSON 字符串，解析后存入 Input。
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

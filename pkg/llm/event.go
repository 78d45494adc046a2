package llm

// ═══════════════════════════════════════════════════════════════════════════
// 事件类型 - SSE 线路事件
// ═══════════════════════════════════════════════════════════════════════════

// EventType 线路事件类型
type EventType string

const (
	EventTypeChunk  EventType = "chunk"  // 内容增量（data: 行）
	EventTypeEnergy EventType = "energy" // 能耗侧信道（": energy" 注释行）
	EventTypeDone   EventType = "done"   // 终止符（data: [DONE]）
)

// String 返回字符串表示
func (t EventType) String() string {
	return string(t)
}

// Event 线路事件
//
// 由 core.Decoder 从原始字节流中解码得到，是一个带标签的变体：
//   - EventTypeChunk: Data 为 data: 行解析出的 JSON 对象
//   - EventTypeEnergy: Data 为 ": energy" 注释行解析出的 JSON 对象
//   - EventTypeDone: 无负载，Data 为 nil
//
// 使用示例：
//
//	for {
//	    event, err := reader.Next()
//	    if err != nil {
//	        break
//	    }
//	    switch event.Type {
//	    case llm.EventTypeChunk:
//	        fmt.Println(event.Data["id"])
//	    case llm.EventTypeEnergy:
//	        fmt.Println(event.Data["energy_joules"])
//	    case llm.EventTypeDone:
//	        return
//	    }
//	}
type Event struct {
	Type EventType      `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// ChunkEvent 创建内容增量事件
func ChunkEvent(data map[string]any) Event {
	return Event{Type: EventTypeChunk, Data: data}
}

// EnergyEvent 创建能耗侧信道事件
func EnergyEvent(data map[string]any) Event {
	return Event{Type: EventTypeEnergy, Data: data}
}

// DoneEvent 创建终止事件
func DoneEvent() Event {
	return Event{Type: EventTypeDone}
}

// IsDone 是否为终止事件
func (e Event) IsDone() bool {
	return e.Type == EventTypeDone
}

package core

// ═══════════════════════════════════════════════════════════════════════════
// 负载字段读取
// ═══════════════════════════════════════════════════════════════════════════

// 增量负载来自 encoding/json 解码的 map[string]any，字段缺失或类型不符时
// 一律按零值处理，由聚合规则决定零值是否覆盖已有值。

// GetInt64 读取整数字段，如 "created"
//
// JSON 数字解码为 float64，小数部分被截断。
func GetInt64(val any) int64 {
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

// GetString 读取字符串字段，如 "id"、"finish_reason"
//
// JSON null 与非字符串值返回 ""。
func GetString(val any) string {
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

// GetMap 读取对象字段，如 "usage"、"delta"
func GetMap(val any) map[string]any {
	m, _ := val.(map[string]any)
	return m
}

package llm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ═══════════════════════════════════════════════════════════════════════════
// 能耗测量
// ═══════════════════════════════════════════════════════════════════════════

// Energy Neuralwatt 能耗测量
//
// 服务端通过 SSE 注释行下发：
//
//	: energy {"energy_joules": 30.42, "energy_kwh": 8.45e-06, ...}
//
// 非流式响应中则位于响应体的 "energy" 字段。
type Energy struct {
	Joules            float64 `json:"energy_joules"`
	KWh               float64 `json:"energy_kwh"`
	AvgPowerWatts     float64 `json:"avg_power_watts"`
	DurationSeconds   float64 `json:"duration_seconds"`
	AttributionMethod string  `json:"attribution_method"`
	AttributionRatio  float64 `json:"attribution_ratio"`
}

// energyFields 出现时必须全部存在的字段
var energyFields = []string{
	"energy_joules",
	"energy_kwh",
	"avg_power_watts",
	"duration_seconds",
	"attribution_method",
	"attribution_ratio",
}

// ParseEnergy 将侧信道原始对象转换为 [Energy]
//
// 六个字段必须全部存在、非 null 且类型正确，否则返回 [ResponseError]。
// 原始对象本身不做修改，Response.Energy 始终保留服务端下发的原样数据。
func ParseEnergy(data map[string]any) (*Energy, error) {
	if data == nil {
		return nil, NewResponseError("energy", errors.New("no energy payload"))
	}
	for _, field := range energyFields {
		v, ok := data[field]
		if !ok {
			return nil, NewResponseError("energy."+field, errors.New("field is required"))
		}
		// null 会被 json.Unmarshal 静默解码为零值
		if v == nil {
			return nil, NewResponseError("energy."+field, errors.New("field is null"))
		}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, NewResponseError("energy", err)
	}

	var e Energy
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, NewResponseError("energy", err)
	}
	return &e, nil
}

// String 返回便于展示的摘要
func (e *Energy) String() string {
	return fmt.Sprintf("%.4f J (%.3g kWh), avg %.2f W over %.3fs [%s %.2f]",
		e.Joules, e.KWh, e.AvgPowerWatts, e.DurationSeconds, e.AttributionMethod, e.AttributionRatio)
}

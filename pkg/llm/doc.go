// Package llm 提供 Neuralwatt LLM 客户端的核心类型
//
// 本包定义了与 LLM 服务交互所需的类型和接口：
//   - [Provider]: 统一的 LLM 调用抽象
//   - [ResponseStream]: 流式响应，文本增量实时返回
//   - [Event]: 解码后的线路事件（内容增量、能耗侧信道、终止符）
//   - [Response]: 聚合响应，能耗数据单独存放于 Energy 字段
//   - [Registry]: 模型注册表，支持别名
//
// 完整使用示例请参考 example_test.go。
//
// # 流式响应与能耗
//
// Neuralwatt 在 SSE 流中以注释行附带请求能耗：
//
//	data: {"choices":[{"delta":{"content":"Hel"}}]}
//	: energy {"energy_joules": 1.0, ...}
//	data: [DONE]
//
// 解码器（core.Decoder）将每行分类为 [Event]，聚合器（core.Aggregator）
// 拼接文本并保留最后一个能耗对象。能耗对象原样保存，[Response.EnergyReport]
// 提供类型化视图。
//
// # 错误
//
// 所有错误都基于 [BaseError]，通过 IsXxx 函数判断类型：
//   - [IsDecodeError]: 流中的非法行（[IsMalformedChunk]、[IsMalformedSideChannel]、[IsUnrecognizedLine]）
//   - [IsTransportError]: 连接失败或读取中断
//   - [IsAPIError]: HTTP 错误状态码
//   - [IsStreamError]: 流在完成之前被关闭或取消
//
// # 环境变量
//
// API Key（按优先级）:
//   - NEURALWATT_API_KEY
//   - LLM_API_KEY
//
// Base URL:
//   - NEURALWATT_BASE_URL
//   - LLM_BASE_URL
package llm

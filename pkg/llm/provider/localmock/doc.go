// Package localmock 提供本地 Neuralwatt 兼容的 HTTP 服务
//
// 服务基于 net/http/httptest，按 [Script] 输出 SSE 流（内容增量、注释、
// 能耗注释与终止符），用于在不访问真实 API 的情况下测试客户端与 CLI。
//
// 支持的场景：
//   - 分片写入（[WithWriteSize]），验证解码与切分方式无关
//   - 截断的连接（[WithoutTerminator]）
//   - 异常行（[WithRawLines]）
//   - 错误状态码（[WithStatus]）
//   - 从 YAML 加载脚本（[LoadScriptFile]）
package localmock
